// Package repo содержит PostgreSQL хранилище определений workflow.
//
// Таблица workflows хранит определение целиком в колонке definition (JSONB).
// История execution в БД не сохраняется.
package repo
