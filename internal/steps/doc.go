// Package steps содержит исполнители leaf-шагов workflow.
//
// # Интерфейс Executor
//
//	type Executor interface {
//	    Execute(ctx context.Context, step *domain.Step) (any, error)
//	}
//
// Исполнитель читает параметры шага через типизированные методы
// domain.Params, выполняет внешнее действие и возвращает результат.
// ctx — контекст run: его отмена прерывает шаг.
//
// # Registry
//
//	registry := steps.DefaultRegistry()  // http, batch, executable
//	exec, err := registry.Get(domain.StepKindHTTP)
//
// # Типы шагов
//
// ## http (http.go)
//
// Параметры: method (GET), url (обязателен), headers, body,
// timeout_seconds (60), allowed_status ([200]).
// Код ответа вне allowed_status — *HTTPError с телом ответа.
//
// ## batch, executable (process.go)
//
// Параметры: command (обязателен), args, working_dir, timeout_seconds (60).
// Вывод перехватывается. По таймауту или отмене убивается вся группа
// процессов. Ненулевой код выхода — *ExitError.
//
// # Ошибки
//
//	ErrInvalidConfig    // неверные параметры
//	ErrStepTimeout      // собственный таймаут шага
//	ErrStepCancelled    // отмена run (в т.ч. по таймауту run)
//	ErrHTTPRequest      // сетевая ошибка
//	ErrUnexpectedStatus // *HTTPError
//	ErrProcessStart     // не удалось запустить процесс
//	ErrProcessFailed    // *ExitError
//
// Retry не выполняется: ошибка попадает в результат шага.
package steps
