package api

import (
	"log/slog"

	"github.com/shaiso/Cascade/internal/orchestrator"
	"github.com/shaiso/Cascade/internal/repo"
	"github.com/shaiso/Cascade/internal/telemetry"
)

// Handler — обработчики API с зависимостями.
type Handler struct {
	storage      repo.Storage
	orchestrator *orchestrator.Orchestrator
	metrics      *telemetry.Metrics
	logger       *slog.Logger
}

// Config — конфигурация Handler.
type Config struct {
	// Orchestrator — обязателен; хранилище берётся из него.
	Orchestrator *orchestrator.Orchestrator

	// Metrics — опционально.
	Metrics *telemetry.Metrics

	Logger *slog.Logger
}

// NewHandler создаёт Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		storage:      cfg.Orchestrator.Storage(),
		orchestrator: cfg.Orchestrator,
		metrics:      cfg.Metrics,
		logger:       logger,
	}
}
