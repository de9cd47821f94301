// Command activity consumes the activity-log topic and appends each record
// to PostgreSQL, bumping document view and download counters.
//
// Usage:
//
//	go run ./cmd/activity [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/activity"
	pgstore "github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/store/postgres"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting activity consumer", "topic", cfg.Kafka.Topics.ActivityLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer client.Close()
	if err := client.Migrate(ctx, pgstore.Schema); err != nil {
		slog.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}
	st := pgstore.New(client.DB)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, "activity-consumer")
		defer shutdownMetrics(context.Background())
	}

	r := cfg.Resilience
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ActivityLog, activity.HandleMessage(st, m),
		kafka.WithGroupSuffix("-activity"),
		kafka.WithHandlerRetry(resilience.RetryConfig{
			MaxAttempts:  r.MaxRetries + 1,
			InitialDelay: r.RetryInitialBackoff,
			MaxDelay:     r.RetryMaxBackoff,
		}),
	)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(client.Ping))
	checker.Register("postgres_breaker", health.BreakerCheck(st.BreakerState))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server error", "error", err)
		}
	}()

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("activity consumer stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("health server shutdown error", "error", err)
	}
	slog.Info("activity consumer stopped")
}
