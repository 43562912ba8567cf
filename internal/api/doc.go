// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с DI (store, controller, metrics, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (recovery, logging, metrics)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - workflow_handler.go  — обработчики для /workflows
//   - execution_handler.go — обработчики для /executions
//
// API предоставляет REST endpoints для регистрации workflow,
// запуска, наблюдения и отмены execution.
package api
