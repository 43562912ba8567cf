// Package engine содержит алгоритмическую часть движка workflow.
//
// Включает:
//   - dag.go      — граф зависимостей шагов, вычисление готовых шагов, диагностика deadlock
//   - parser.go   — разбор WorkflowDefinition из YAML/JSON и структурная валидация
//   - template.go — рендеринг конфигурации шагов ({{ .vars.x }})
//
// Engine не хранит состояние execution: он получает множества
// завершённых и выполняющихся шагов и отвечает, что можно запускать.
package engine
