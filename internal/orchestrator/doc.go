// Package orchestrator выполняет workflow.
//
// Состоит из трёх частей:
//   - ExecutionState — изменяемое состояние одного execution под мьютексом
//   - scheduler — цикл, который на каждом раунде вычисляет готовые шаги,
//     запускает их параллельно и ждёт завершения через канал
//   - Controller — публичная точка входа: Start, Status, Cancel, List, Wait
//
// Controller не знает, как выполняются шаги: executor передаётся через
// интерфейс StepExecutor.
//
// Ошибки scheduler'а (deadlock, падение шага) не возвращаются вызывающему
// коду, а записываются в Execution. Вызывающий код узнаёт о них через Status.
package orchestrator
