// Package trigger запускает workflow по внешним событиям и расписанию.
//
// Структура:
//   - trigger.go — разбор описаний триггеров из WorkflowDefinition.Triggers
//   - router.go  — Router: сообщения trigger.event из RabbitMQ → Controller.Start
//   - cron.go    — CronScheduler: триггеры type: schedule → Controller.Start
//
// Движок триггеры не интерпретирует; этот пакет — единственный их потребитель.
//
// Пример триггеров в определении:
//
//	triggers:
//	  - type: event
//	    config:
//	      event: repository.added
//	  - type: schedule
//	    config:
//	      cron: "0 3 * * *"
//	      variables:
//	        repository: org/app
package trigger
