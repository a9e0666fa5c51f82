// Package cli реализует инструмент командной строки Cascade.
//
// Команды, работающие через HTTP API (Client):
//   - workflow: list, show, create, delete, validate
//   - run: start [--wait], show, cancel, history
//
// Команды без сервера:
//   - exec FILE — выполнить workflow в процессе (memory-хранилище)
//   - events    — события run.finished из RabbitMQ
//
// Output печатает таблицы (text/tabwriter) или JSON (--json); run
// выводится деревом результатов шагов. Данные идут в stdout,
// сообщения в stderr: cascade workflow list --json | jq .
//
// Группы команд создаются фабриками (NewWorkflowCmd, ...), принимающими
// clientFn и outputFn: Client и Output создаются после разбора флагов.
package cli
