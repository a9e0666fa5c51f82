package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Cascade/internal/domain"
)

// MessageType — тип сообщения.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunFinished MessageType = "run.finished"
)

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// RunFinishedPayload — событие о завершении run.
type RunFinishedPayload struct {
	RunID        uuid.UUID             `json:"run_id"`
	WorkflowID   uuid.UUID             `json:"workflow_id"`
	WorkflowName string                `json:"workflow_name"`
	State        domain.ExecutionState `json:"state"`
	Error        string                `json:"error,omitempty"`
	StartedAt    *time.Time            `json:"started_at,omitempty"`
	FinishedAt   *time.Time            `json:"finished_at,omitempty"`
	DurationMS   int64                 `json:"duration_ms"`
	Steps        int                   `json:"steps"`
}

// NewRunFinishedPayload строит событие по финальному run.
func NewRunFinishedPayload(run *domain.Run) RunFinishedPayload {
	return RunFinishedPayload{
		RunID:        run.ID,
		WorkflowID:   run.WorkflowID,
		WorkflowName: run.WorkflowName,
		State:        run.State,
		Error:        run.Error,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		DurationMS:   run.Duration().Milliseconds(),
		Steps:        len(run.Steps),
	}
}

// sendFunc отправляет подготовленное сообщение.
type sendFunc func(ctx context.Context, exchange Exchange, key RoutingKey, pub amqp.Publishing) error

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	send   sendFunc
	logger *slog.Logger
}

// NewPublisher создаёт Publisher поверх соединения.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	send := func(ctx context.Context, exchange Exchange, key RoutingKey, pub amqp.Publishing) error {
		return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
			return ch.PublishWithContext(ctx, string(exchange), string(key), false, false, pub)
		})
	}
	return newPublisher(send, logger)
}

func newPublisher(send sendFunc, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{send: send, logger: logger}
}

// Publish публикует сообщение в exchange с ключом маршрутизации.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	}

	if err := p.send(ctx, exchange, routingKey, pub); err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}

	p.logger.Debug("published message",
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", msg.ID,
		"type", msg.Type,
	)
	return nil
}

// PublishRunFinished публикует событие о завершении run.
func (p *Publisher) PublishRunFinished(ctx context.Context, run *domain.Run) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeRunFinished,
		Payload:   NewRunFinishedPayload(run),
		Timestamp: time.Now().UTC(),
	}
	return p.Publish(ctx, ExchangeRuns, RoutingKeyFinished, msg)
}

// DefaultPublishTimeout ограничивает публикацию одного уведомления.
const DefaultPublishTimeout = 5 * time.Second

// RunNotifier публикует события о завершении run.
// Реализует orchestrator.Notifier.
type RunNotifier struct {
	publisher *Publisher
	timeout   time.Duration
}

// NewRunNotifier создаёт RunNotifier.
func NewRunNotifier(publisher *Publisher) *RunNotifier {
	return &RunNotifier{publisher: publisher, timeout: DefaultPublishTimeout}
}

// NotifyRunFinished публикует событие о завершении run.
func (n *RunNotifier) NotifyRunFinished(ctx context.Context, run *domain.Run) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	return n.publisher.PublishRunFinished(ctx, run)
}
