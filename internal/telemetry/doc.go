// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//
// Метрики регистрируются в переданном prometheus.Registerer
// и экспортируются на /metrics endpoint.
package telemetry
