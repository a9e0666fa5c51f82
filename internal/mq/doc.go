// Package mq публикует и потребляет события run через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с переподключением
//   - topology.go   — обменники, очереди, привязки
//   - publisher.go  — публикация событий и RunNotifier для оркестратора
//   - consumer.go   — потребление с ручным ack
//
// Сообщения:
//   - run.finished — run перешёл в финальное состояние
package mq
