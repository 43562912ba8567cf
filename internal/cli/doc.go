// Package cli реализует инструмент командной строки dagflow.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с dagflow API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для регистрации workflows и управления executions.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для dagflow API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (data, list, error) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	workflows, err := client.ListWorkflows()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: dagflow execution list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - workflow: list, show, register
//   - execution: list, start, show, cancel
//
// Каждая группа создаётся через фабричную функцию (NewWorkflowCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
