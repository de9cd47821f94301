// Command recommender serves document suggestions, personalized search,
// search suggestions, categories and activity tracking over HTTP.
//
// Usage:
//
//	go run ./cmd/recommender [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/activity"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/recommend/pipeline"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/recommend/ranker"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/recommend/similarity"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/recommend/vectorizer"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/search/personalize"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/service"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/store"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/store/memory"
	pgstore "github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/store/postgres"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/tracing"
)

const breakerName = "postgres-store"

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting recommender", "port", cfg.Server.Port, "store", cfg.Store.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()

	st, pg, err := openStore(ctx, cfg, checker)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	if ps, ok := st.(*pgstore.Store); ok {
		go reportBreaker(ctx, m, ps)
	}

	// Activities go straight to the store unless Kafka carries them to the
	// activity consumer, which only applies them to PostgreSQL.
	var appender activity.Appender = st
	if cfg.Kafka.Enabled && pg != nil {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ActivityLog)
		defer producer.Close()
		publisher := activity.NewPublisher(producer, cfg.Activity.BatchSize, cfg.Activity.FlushInterval)
		publisher.Start(ctx)
		defer publisher.Close()
		appender = publisher
		slog.Info("activity publisher enabled", "topic", cfg.Kafka.Topics.ActivityLog)
	}

	vec := vectorizer.New(vectorizer.WithStemming(cfg.Recommend.Stemming))
	rk := ranker.New(vec, similarity.New(),
		ranker.WithWeights(ranker.Weights{
			Content:       cfg.Recommend.ContentWeight,
			Category:      cfg.Recommend.CategoryWeight,
			Popularity:    cfg.Recommend.PopularityWeight,
			PopularityCap: cfg.Recommend.PopularityCap,
		}),
		ranker.WithLimit(cfg.Recommend.Limit),
	)
	pl := pipeline.New(st, st, rk,
		pipeline.WithLimit(cfg.Recommend.Limit),
		pipeline.WithRecentViews(cfg.Recommend.RecentViews),
		pipeline.WithDeadline(cfg.Recommend.Deadline),
		pipeline.WithObserver(m),
	)
	pers := personalize.New(st, personalize.WithConfig(personalize.Config{
		HistoryLimit:     cfg.Search.HistoryLimit,
		FrequencyCap:     cfg.Search.FrequencyCap,
		FrequencyWeight:  cfg.Search.FrequencyWeight,
		RecencyWeight:    cfg.Search.RecencyWeight,
		RecencyDecayDays: cfg.Search.RecencyDecayDays,
	}))
	svc := service.New(st, pl, pers, appender,
		service.WithConfig(service.Config{
			MaxResults:        cfg.Search.MaxResults,
			SuggestionLimit:   cfg.Search.SuggestionLimit,
			SuggestionHistory: cfg.Search.SuggestionHistory,
		}),
		service.WithSearchObserver(m),
	)

	opts := []handler.Option{handler.WithFallbackRecorder(m)}

	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, suggestion cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			suggestions := cache.New(redisClient, cfg.Redis.CacheTTL)
			m.RegisterCacheStats(suggestions.Stats)
			opts = append(opts, handler.WithCache(suggestions))
			checker.Register("redis", health.OptionalPingCheck(redisClient.Ping))
			slog.Info("suggestion cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		opts = append(opts, handler.WithEvents(collector))

		target, err := url.Parse(cfg.Analytics.ServiceURL)
		if err != nil {
			slog.Error("invalid analytics service url", "url", cfg.Analytics.ServiceURL, "error", err)
			os.Exit(1)
		}
		opts = append(opts, handler.WithAnalytics(httputil.NewSingleHostReverseProxy(target)))
		slog.Info("analytics events published", "topic", cfg.Kafka.Topics.AnalyticsEvents, "analytics_url", target.String())
	} else {
		agg := analytics.NewAggregator()
		if pg != nil {
			aggregator.NewStore(pg.DB).StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
		}
		opts = append(opts,
			handler.WithEvents(agg),
			handler.WithAnalytics(http.HandlerFunc(analytics.NewHandler(agg).Stats)),
		)
		slog.Info("analytics aggregated in process")
	}

	var limiter *middleware.Limiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		go sweepLimiter(ctx, limiter)
	}

	router := handler.NewRouter(handler.New(svc, opts...), handler.RouterConfig{
		Checker:        checker,
		Metrics:        m,
		Limiter:        limiter,
		Tracer:         tracing.New(cfg.Tracing),
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
	})

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, "recommender")
		defer shutdownMetrics(context.Background())
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("recommender listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("recommender stopped")
}

// openStore returns the configured store. For PostgreSQL the client is
// returned too so snapshots can share the pool.
func openStore(ctx context.Context, cfg *config.Config, checker *health.Checker) (store.Store, *postgres.Client, error) {
	switch cfg.Store.Driver {
	case "memory":
		mem := memory.New()
		if cfg.Store.SeedFile != "" {
			if err := mem.LoadSeed(ctx, cfg.Store.SeedFile); err != nil {
				return nil, nil, err
			}
			slog.Info("memory store seeded", "file", cfg.Store.SeedFile)
		}
		checker.Register("store", health.PingCheck(mem.Ping))
		return mem, nil, nil
	default:
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		schema := append(append([]string{}, pgstore.Schema...), aggregator.Schema...)
		if err := client.Migrate(ctx, schema); err != nil {
			client.Close()
			return nil, nil, err
		}
		r := cfg.Resilience
		pg := pgstore.New(client.DB, pgstore.WithPolicy(resilience.Policy{
			Name: breakerName,
			Breaker: resilience.NewCircuitBreaker(breakerName, resilience.CircuitBreakerConfig{
				FailureThreshold: r.BreakerMaxFailures,
				ResetTimeout:     r.BreakerResetTimeout,
			}),
			Retry: resilience.RetryConfig{
				MaxAttempts:  r.MaxRetries + 1,
				InitialDelay: r.RetryInitialBackoff,
				MaxDelay:     r.RetryMaxBackoff,
			},
			AttemptTimeout: r.QueryTimeout,
		}))
		checker.Register("postgres", health.PingCheck(client.Ping))
		checker.Register("postgres_breaker", health.BreakerCheck(pg.BreakerState))
		slog.Info("postgres store ready", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		return pg, client, nil
	}
}

func reportBreaker(ctx context.Context, m *metrics.Metrics, ps *pgstore.Store) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		m.SetBreakerState(breakerName, ps.BreakerState())
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func sweepLimiter(ctx context.Context, l *middleware.Limiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-ctx.Done():
			return
		}
	}
}
