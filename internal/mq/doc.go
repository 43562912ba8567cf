// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация триггеров и событий execution
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - trigger.event       — внешнее событие, запускающее workflow
//   - execution.started   — execution перешёл в running
//   - execution.completed — все шаги выполнены
//   - execution.failed    — шаг упал или граф в deadlock
//   - execution.cancelled — execution отменён
//
// Exchanges:
//   - dagflow.triggers   — входящие триггеры
//   - dagflow.executions — события execution (topic)
//   - dagflow.dlq        — dead letter queue
package mq
