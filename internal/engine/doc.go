// Package engine проверяет структуру workflow до запуска.
//
// Включает:
//   - validator.go — валидация workflow и шагов (все ошибки сразу)
//   - cycles.go    — поиск повторов ID на пути от корня (DFS)
//   - schedule.go  — разбор cron-выражений параметра schedule
//
// Выполнение шагов находится в пакете orchestrator.
package engine
