package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Families lists the recommender metric families served on /metrics.
var Families = []string{
	"http_requests_total",
	"http_request_duration_seconds",
	"http_requests_in_flight",
	"recommendations_total",
	"recommendation_latency_seconds",
	"recommendation_results_count",
	"search_queries_total",
	"search_results_count",
	"suggestion_cache_fallbacks_total",
	"activities_tracked_total",
	"rate_limited_requests_total",
	"circuit_breaker_state",
	"cache_hits_total",
	"cache_misses_total",
}

type index struct {
	Service  string   `json:"service"`
	Scrape   string   `json:"scrape"`
	Live     string   `json:"live"`
	Families []string `json:"families"`
}

// StartServer serves /metrics for service on its own port and returns its
// shutdown func.
func StartServer(port int, service string) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      newServerMux(service),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger := slog.Default().With("component", "metrics-server", "service", service)
	go func() {
		logger.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}

func newServerMux(service string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	mux.HandleFunc("GET /health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(index{
			Service:  service,
			Scrape:   "/metrics",
			Live:     "/health/live",
			Families: Families,
		})
	})
	return mux
}
