package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Cascade/internal/domain"
	"github.com/shaiso/Cascade/internal/mq"
	"github.com/shaiso/Cascade/internal/telemetry"
)

// NewEventsCmd создаёт команду просмотра событий о завершении run.
func NewEventsCmd(outputFn func() *Output) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail run-finished events from RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := telemetry.NewLogger(os.Stderr, "WARN", "text")

			conn, err := mq.NewConnection(url, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := mq.SetupTopology(ctx, conn); err != nil {
				return fmt.Errorf("setup topology: %w", err)
			}

			out := outputFn()
			out.Success("Waiting for run events (Ctrl+C to stop)...")

			consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
				Queue:   mq.QueueRunsFinished,
				Handler: printEvent(out),
			})

			err = consumer.Start(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&url, "rabbitmq-url", envOr("RABBITMQ_URL", mq.DefaultURL), "RabbitMQ URL")

	return cmd
}

// printEvent выводит событие run.finished. Сообщения других типов
// подтверждаются без вывода.
func printEvent(out *Output) mq.Handler {
	return func(_ context.Context, d *mq.Delivery) error {
		if d.Message.Type != mq.MessageTypeRunFinished {
			return nil
		}

		payload, err := mq.ParsePayload[mq.RunFinishedPayload](&d.Message)
		if err != nil {
			// Повторная доставка не исправит payload
			out.Error(fmt.Sprintf("malformed event %s: %v", d.Message.ID, err))
			return nil
		}

		if out.jsonMode {
			out.JSON(payload)
			return nil
		}
		fmt.Fprintln(out.w, describeRun(payload.RunID.String(), payload.WorkflowName, payload.State, payload.DurationMS, payload.Error))
		return nil
	}
}

// describeRun — строка события о run.
func describeRun(id, workflow string, state domain.ExecutionState, durationMS int64, errMsg string) string {
	line := fmt.Sprintf("%s  %-10s  %s  %dms", id, state, workflow, durationMS)
	if errMsg != "" {
		line += "  " + errMsg
	}
	return line
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
