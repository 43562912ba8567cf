// Package store хранит зарегистрированные WorkflowDefinition.
//
// DefinitionStore — реестр определений workflow в памяти процесса:
//   - Register валидирует определение и сохраняет собственную копию (last-write-wins)
//   - Lookup возвращает копию по ID или ErrNotFound
//   - при промахе Lookup может обратиться к внешнему Source (PostgreSQL)
//     и закэшировать результат
//
// Удаления нет: определение живёт до конца процесса.
package store
