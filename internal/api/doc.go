// Package api содержит HTTP API сервера cascade-api.
//
// Структура:
//   - handler.go          — Handler (оркестратор, хранилище, метрики, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — recovery, logging, metrics
//   - response.go         — JSON-конверты и преобразование ошибок в статусы
//   - dto.go              — представления workflow и run
//   - workflow_handler.go — /api/v1/workflows
//   - run_handler.go      — запуск, история и отмена run
//   - hook_handler.go     — /hooks/{path}: запуск по endpoint
package api
