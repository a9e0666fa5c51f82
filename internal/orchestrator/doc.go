// Package orchestrator выполняет workflow.
//
// Orchestrator отвечает за:
//   - Валидацию workflow и создание run
//   - Рекурсивный обход дерева шагов (ProcessStep)
//   - Диспетчеризацию по типу шага: leaf-шаги — исполнителям из
//     steps.Registry, parallel — конкурентно, serial — по порядку
//   - Отмену run (CancelExecution) и таймаут run через scope отмены
//   - Сохранение прогресса и финального состояния run
//
// Корневые шаги workflow всегда выполняются последовательно.
package orchestrator
