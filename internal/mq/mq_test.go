package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Cascade/internal/domain"
)

type sentMessage struct {
	exchange Exchange
	key      RoutingKey
	pub      amqp.Publishing
}

func finishedRun() *domain.Run {
	run := domain.NewRun(&domain.Workflow{ID: uuid.New(), Name: "nightly"})
	run.MarkRunning()
	run.MarkFailed("step fetch failed")
	return run
}

func TestPublishRunFinished(t *testing.T) {
	var sent []sentMessage
	p := newPublisher(func(_ context.Context, ex Exchange, key RoutingKey, pub amqp.Publishing) error {
		sent = append(sent, sentMessage{ex, key, pub})
		return nil
	}, nil)

	run := finishedRun()
	if err := p.PublishRunFinished(context.Background(), run); err != nil {
		t.Fatalf("PublishRunFinished failed: %v", err)
	}

	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	got := sent[0]
	if got.exchange != ExchangeRuns || got.key != RoutingKeyFinished {
		t.Errorf("unexpected route %s/%s", got.exchange, got.key)
	}
	if got.pub.DeliveryMode != amqp.Persistent || got.pub.ContentType != "application/json" {
		t.Errorf("unexpected publishing: %+v", got.pub)
	}

	var msg Message
	if err := json.Unmarshal(got.pub.Body, &msg); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if msg.Type != MessageTypeRunFinished || msg.ID != got.pub.MessageId {
		t.Errorf("unexpected envelope: %+v", msg)
	}

	payload, err := ParsePayload[RunFinishedPayload](&msg)
	if err != nil {
		t.Fatalf("ParsePayload failed: %v", err)
	}
	if payload.RunID != run.ID || payload.State != domain.StateFailed || payload.Error != "step fetch failed" {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if payload.WorkflowName != "nightly" {
		t.Errorf("expected workflow name nightly, got %q", payload.WorkflowName)
	}
}

func TestRunNotifier_PropagatesError(t *testing.T) {
	sendErr := errors.New("broker down")
	p := newPublisher(func(ctx context.Context, _ Exchange, _ RoutingKey, _ amqp.Publishing) error {
		// Публикация ограничена таймаутом
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected deadline on publish context")
		}
		return sendErr
	}, nil)

	err := NewRunNotifier(p).NotifyRunFinished(context.Background(), finishedRun())
	if !errors.Is(err, sendErr) {
		t.Errorf("expected broker error, got %v", err)
	}
}

type fakeAcker struct {
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func delivery(acker *fakeAcker, tag uint64, body []byte) amqp.Delivery {
	return amqp.Delivery{Acknowledger: acker, DeliveryTag: tag, Body: body}
}

func envelope(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(&Message{
		ID:        "m-1",
		Type:      MessageTypeRunFinished,
		Payload:   NewRunFinishedPayload(finishedRun()),
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestConsumer_Handle(t *testing.T) {
	tests := []struct {
		name        string
		body        func(t *testing.T) []byte
		handlerErr  error
		wantAck     bool
		wantRequeue bool
	}{
		{name: "ok", body: envelope, wantAck: true},
		{name: "handler error requeues", body: envelope, handlerErr: errors.New("busy"), wantRequeue: true},
		{name: "malformed goes to dlq", body: func(*testing.T) []byte { return []byte("{not json") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acker := &fakeAcker{}
			var seen *Delivery

			c := NewConsumer(nil, nil, ConsumerConfig{
				Queue: QueueRunsFinished,
				Handler: func(_ context.Context, d *Delivery) error {
					seen = d
					return tt.handlerErr
				},
			})

			c.handle(context.Background(), delivery(acker, 7, tt.body(t)))

			if tt.wantAck {
				if len(acker.acked) != 1 || len(acker.nacked) != 0 {
					t.Fatalf("expected ack, got acked=%v nacked=%v", acker.acked, acker.nacked)
				}
				if seen == nil || seen.Message.ID != "m-1" {
					t.Errorf("handler did not receive message: %+v", seen)
				}
				return
			}

			if len(acker.nacked) != 1 {
				t.Fatalf("expected nack, got acked=%v nacked=%v", acker.acked, acker.nacked)
			}
			if acker.requeue[0] != tt.wantRequeue {
				t.Errorf("expected requeue=%v, got %v", tt.wantRequeue, acker.requeue[0])
			}
		})
	}
}

func TestTopology_QueuesBound(t *testing.T) {
	exchanges, queues, bindings := topology()

	declared := make(map[Exchange]bool)
	for _, ex := range exchanges {
		declared[ex.name] = true
	}
	queued := make(map[Queue]bool)
	for _, q := range queues {
		queued[q.name] = true
	}

	// Каждая очередь привязана к объявленному обменнику
	for _, b := range bindings {
		if !declared[b.exchange] || !queued[b.queue] {
			t.Errorf("binding %+v references undeclared entity", b)
		}
	}
	if len(bindings) != len(queues) {
		t.Errorf("expected every queue bound, got %d bindings for %d queues", len(bindings), len(queues))
	}
}
