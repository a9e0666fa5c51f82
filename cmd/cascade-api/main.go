// cascade-api — HTTP сервер Cascade: хранение workflow, запуск и отмена run.
//
// Конфигурация: cascade.yaml и переменные окружения
// (STORAGE_DRIVER, DB_URL, REDIS_ADDR, RABBITMQ_URL, API_PORT, ...).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Cascade/internal/api"
	"github.com/shaiso/Cascade/internal/config"
	"github.com/shaiso/Cascade/internal/mq"
	"github.com/shaiso/Cascade/internal/orchestrator"
	"github.com/shaiso/Cascade/internal/repo"
	"github.com/shaiso/Cascade/internal/telemetry"
)

var startTime = time.Now()

func main() {
	cfg, err := config.Load(os.Getenv("CASCADE_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting cascade-api", "storage", cfg.StorageDriver)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("cascade-api failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	storage, closeStorage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(registry)

	notifier, closeNotifier := openNotifier(ctx, cfg, logger)
	defer closeNotifier()

	orch := orchestrator.New(orchestrator.Config{
		Storage:  storage,
		Notifier: notifier,
		Metrics:  metrics,
		Logger:   logger,
	})

	handler := api.NewHandler(api.Config{
		Orchestrator: orch,
		Metrics:      metrics,
		Logger:       logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s active_runs=%d", time.Since(startTime).Round(time.Second), orch.ActiveRunsCount())
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		orch.Stop()
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Фоновые run отменяются и сохраняются как CANCELLED
	orch.Stop()
	return nil
}

// openStorage создаёт хранилище по STORAGE_DRIVER.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repo.Storage, func(), error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pool, err := repo.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := repo.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("connected to database")
		return repo.NewPostgresStorage(pool), pool.Close, nil

	case config.DriverRedis:
		storage, err := repo.NewRedisStorage(ctx, repo.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to redis", "addr", cfg.RedisAddr)
		return storage, func() {
			if err := storage.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}, nil

	default:
		logger.Warn("using in-memory storage, data is lost on restart")
		return repo.NewMemoryStorage(), func() {}, nil
	}
}

// openNotifier подключает уведомления о завершении run через RabbitMQ.
// Недоступный брокер не мешает запуску: run выполняются без уведомлений.
func openNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (orchestrator.Notifier, func()) {
	if cfg.RabbitMQURL == "" {
		return nil, func() {}
	}

	conn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ unavailable, run notifications disabled", "error", err)
		return nil, func() {}
	}

	if err := mq.SetupTopology(ctx, conn); err != nil {
		logger.Warn("failed to setup RabbitMQ topology, run notifications disabled", "error", err)
		_ = conn.Close()
		return nil, func() {}
	}
	logger.Debug("rabbitmq topology ready", "topology", mq.TopologyInfo())

	publisher := mq.NewPublisher(conn, logger)
	return mq.NewRunNotifier(publisher), func() {
		if err := conn.Close(); err != nil {
			logger.Warn("close RabbitMQ connection", "error", err)
		}
	}
}
