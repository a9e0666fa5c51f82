package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithStep(WithRunID(NewLogger(&buf, "INFO", "json"), "run-1"), "fetch", "http")

	logger.Debug("hidden")
	logger.Info("step finished", "state", "COMPLETED")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %s", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for key, want := range map[string]string{"run_id": "run-1", "step_id": "fetch", "kind": "http", "state": "COMPLETED"} {
		if entry[key] != want {
			t.Errorf("expected %s=%s, got %v", key, want, entry[key])
		}
	}
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "DEBUG", "text").Debug("visible", "workflow_id", "wf")

	if !strings.Contains(buf.String(), "workflow_id=wf") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	// Без логгера в контексте — глобальный
	if FromContext(context.Background()) != slog.Default() {
		t.Error("expected default logger")
	}

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Error("expected logger from context")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RunStarted()
	m.RunStarted()
	m.RunEnded()
	m.RunFinished("COMPLETED")
	m.StepFinished("http", "FAILED", 150*time.Millisecond)
	m.StepFinished("http", "FAILED", 50*time.Millisecond)

	if got := testutil.ToFloat64(m.ActiveRuns); got != 1 {
		t.Errorf("expected 1 active run, got %v", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("COMPLETED")); got != 1 {
		t.Errorf("expected 1 completed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.StepsTotal.WithLabelValues("http", "FAILED")); got != 2 {
		t.Errorf("expected 2 failed http steps, got %v", got)
	}
	if n := testutil.CollectAndCount(m.StepDuration); n != 1 {
		t.Errorf("expected 1 histogram series, got %d", n)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RunStarted()
	m.RunEnded()
	m.RunFinished("FAILED")
	m.StepFinished("serial", "COMPLETED", time.Second)
	m.HTTPRequest("GET", "200")
}
