package handler

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/tracing"
)

// RouterConfig carries the cross-cutting pieces of the middleware chain.
// Nil fields are skipped.
type RouterConfig struct {
	Checker        *health.Checker
	Metrics        *metrics.Metrics
	Limiter        *middleware.Limiter
	Tracer         *tracing.Tracer
	RequestTimeout time.Duration
	CORSOrigins    []string
}

// NewRouter builds the API with its middleware chain.
//
// Route table:
//
//	GET    /api/v1/suggestions/personalized
//	GET    /api/v1/documents/suggestions
//	GET    /api/v1/search
//	POST   /api/v1/search
//	GET    /api/v1/search/suggestions
//	GET    /api/v1/categories
//	POST   /api/v1/activities
//	GET    /api/v1/analytics
//	GET    /api/v1/cache/stats
//	POST   /api/v1/cache/invalidate
//	GET    /health/live
//	GET    /health/ready
//	GET    /metrics
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Metrics → Tracing → RateLimit → Timeout → client info → mux
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/suggestions/personalized", h.PersonalizedSuggestions)
	mux.HandleFunc("GET /api/v1/documents/suggestions", h.DocumentSuggestions)

	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search/suggestions", h.SearchSuggestions)
	mux.HandleFunc("GET /api/v1/categories", h.Categories)

	mux.HandleFunc("POST /api/v1/activities", h.TrackActivity)

	if h.analytics != nil {
		mux.Handle("GET /api/v1/analytics", h.analytics)
	}
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	if cfg.Checker != nil {
		mux.HandleFunc("GET /health/live", cfg.Checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", cfg.Checker.ReadyHandler())
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	var chain http.Handler = withClient(mux)
	if cfg.RequestTimeout > 0 {
		chain = middleware.Timeout(cfg.RequestTimeout)(chain)
	}
	if cfg.Limiter != nil {
		var onReject func()
		if cfg.Metrics != nil {
			onReject = cfg.Metrics.RateLimitedTotal.Inc
		}
		chain = middleware.RateLimit(cfg.Limiter, onReject)(chain)
	}
	if cfg.Tracer != nil {
		chain = cfg.Tracer.Middleware(chain)
	}
	if cfg.Metrics != nil {
		chain = middleware.Metrics(cfg.Metrics)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins...))(chain)
	chain = middleware.RequestID(chain)
	return chain
}
