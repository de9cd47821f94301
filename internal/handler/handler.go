// Package handler implements the recommender's HTTP API on top of
// service.Service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/activity"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/recommend/pipeline"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/middleware"
)

const maxBodyBytes = 64 << 10

// Service is implemented by *service.Service.
type Service interface {
	GetPersonalizedSuggestions(ctx context.Context, userID string) (service.Suggestions, error)
	GetDocumentSuggestions(ctx context.Context, userID string) (service.Suggestions, error)
	SearchAndRank(ctx context.Context, query string, filters document.Filters, userID string) (service.SearchResult, error)
	SearchSuggestions(ctx context.Context, partial, userID string) ([]string, error)
	Categories(ctx context.Context) []string
	Track(ctx context.Context, r activity.Record) (activity.Record, error)
}

// FallbackRecorder counts suggestion responses served from the cache.
type FallbackRecorder interface {
	RecordCachedFallback()
}

type Handler struct {
	svc       Service
	cache     *cache.SuggestionCache
	events    analytics.Sink
	fallbacks FallbackRecorder
	analytics http.Handler
	logger    *slog.Logger
}

type Option func(*Handler)

// WithCache serves the last good suggestion list when the pipeline fails.
func WithCache(c *cache.SuggestionCache) Option {
	return func(h *Handler) { h.cache = c }
}

// WithEvents emits one analytics event per suggestion or search response.
func WithEvents(s analytics.Sink) Option {
	return func(h *Handler) { h.events = s }
}

func WithFallbackRecorder(f FallbackRecorder) Option {
	return func(h *Handler) { h.fallbacks = f }
}

// WithAnalytics mounts GET /api/v1/analytics. It is either the in-process
// aggregator's handler or a proxy to the analytics service.
func WithAnalytics(a http.Handler) Option {
	return func(h *Handler) { h.analytics = a }
}

func New(svc Service, opts ...Option) *Handler {
	h := &Handler{
		svc:    svc,
		logger: logger.WithComponent("api-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SuggestionsResponse is returned by both suggestion endpoints.
type SuggestionsResponse struct {
	Documents []document.Scored `json:"documents"`
	Tier      string            `json:"tier"`
	Degraded  bool              `json:"degraded"`
	// Cached is set when the list is the last good one for the user rather
	// than a fresh computation.
	Cached bool `json:"cached"`
}

// PersonalizedSuggestions serves GET /api/v1/suggestions/personalized.
func (h *Handler) PersonalizedSuggestions(w http.ResponseWriter, r *http.Request) {
	h.suggestions(w, r, cache.KindPersonalized, h.svc.GetPersonalizedSuggestions)
}

// DocumentSuggestions serves GET /api/v1/documents/suggestions.
func (h *Handler) DocumentSuggestions(w http.ResponseWriter, r *http.Request) {
	h.suggestions(w, r, cache.KindDocument, h.svc.GetDocumentSuggestions)
}

type suggestFunc func(ctx context.Context, userID string) (service.Suggestions, error)

func (h *Handler) suggestions(w http.ResponseWriter, r *http.Request, kind cache.Kind, suggest suggestFunc) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	compute := func(ctx context.Context) (cache.Entry, error) {
		res, err := suggest(ctx, userID)
		if err != nil {
			return cache.Entry{}, err
		}
		return cache.Entry{Documents: res.Documents, Tier: string(res.Tier), Degraded: res.Degraded}, nil
	}

	var (
		entry cache.Entry
		stale bool
		err   error
	)
	if h.cache != nil {
		entry, stale, err = h.cache.Resolve(ctx, kind, userID, compute)
	} else {
		entry, err = compute(ctx)
	}
	if err != nil {
		if !errors.Is(err, apperrors.ErrRecommendationUnavailable) {
			h.writeAppError(w, r, err)
			return
		}
		log.Warn("suggestions unavailable, serving empty list", "kind", kind, "error", err)
		entry = cache.Entry{Tier: string(pipeline.TierNone), Degraded: true}
	}
	if stale && h.fallbacks != nil {
		h.fallbacks.RecordCachedFallback()
	}
	if entry.Documents == nil {
		entry.Documents = []document.Scored{}
	}

	latencyMs := time.Since(start).Milliseconds()
	log.Info("suggestions served",
		"kind", kind,
		"tier", entry.Tier,
		"returned", len(entry.Documents),
		"degraded", entry.Degraded,
		"cached", stale,
		"latency_ms", latencyMs,
	)
	h.track(analytics.Event{
		Type:      analytics.EventRecommendation,
		Tier:      entry.Tier,
		Degraded:  entry.Degraded,
		Cached:    stale,
		Returned:  len(entry.Documents),
		LatencyMs: latencyMs,
		Timestamp: start.UTC(),
		RequestID: middleware.GetRequestID(ctx),
	})
	h.writeJSON(w, http.StatusOK, SuggestionsResponse{
		Documents: entry.Documents,
		Tier:      entry.Tier,
		Degraded:  entry.Degraded,
		Cached:    stale,
	})
}

// SearchRequest is the POST /api/v1/search body.
type SearchRequest struct {
	Query   string           `json:"query"`
	Filters document.Filters `json:"filters"`
}

type SearchResponse struct {
	Query        string            `json:"query"`
	Documents    []document.Scored `json:"documents"`
	Total        int               `json:"total"`
	Personalized bool              `json:"personalized"`
	Degraded     bool              `json:"degraded"`
}

// Search serves GET and POST /api/v1/search. GET reads q, category, tags
// (comma separated or repeated), dateRange and sortBy from the query string.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req SearchRequest
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	} else {
		req = searchRequestFromQuery(r)
	}

	res, err := h.svc.SearchAndRank(ctx, req.Query, req.Filters, userID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	latencyMs := time.Since(start).Milliseconds()
	logger.FromContext(ctx).Info("search completed",
		"query", req.Query,
		"returned", len(res.Documents),
		"personalized", res.Personalized,
		"degraded", res.Degraded,
		"latency_ms", latencyMs,
	)
	h.track(analytics.Event{
		Type:         analytics.EventSearch,
		Degraded:     res.Degraded,
		Query:        strings.TrimSpace(req.Query),
		SortBy:       string(req.Filters.SortBy),
		Returned:     len(res.Documents),
		Personalized: res.Personalized,
		LatencyMs:    latencyMs,
		Timestamp:    start.UTC(),
		RequestID:    middleware.GetRequestID(ctx),
	})
	h.writeJSON(w, http.StatusOK, SearchResponse{
		Query:        req.Query,
		Documents:    res.Documents,
		Total:        len(res.Documents),
		Personalized: res.Personalized,
		Degraded:     res.Degraded,
	})
}

func searchRequestFromQuery(r *http.Request) SearchRequest {
	q := r.URL.Query()
	var tags []string
	for _, v := range q["tags"] {
		tags = append(tags, strings.Split(v, ",")...)
	}
	return SearchRequest{
		Query: q.Get("q"),
		Filters: document.Filters{
			Category:  q.Get("category"),
			Tags:      tags,
			DateRange: document.DateRange(q.Get("dateRange")),
			SortBy:    document.SortBy(q.Get("sortBy")),
		},
	}
}

// SearchSuggestions serves GET /api/v1/search/suggestions?q=.
func (h *Handler) SearchSuggestions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	suggestions, err := h.svc.SearchSuggestions(r.Context(), r.URL.Query().Get("q"), userID)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, suggestions)
}

// Categories serves GET /api/v1/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Categories(r.Context()))
}

// TrackActivity serves POST /api/v1/activities. The user id always comes
// from the X-User-ID header.
func (h *Handler) TrackActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var rec activity.Record
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rec.UserID = userID
	rec.ID = ""

	stored, err := h.svc.Track(r.Context(), rec)
	if err != nil {
		var verr *activity.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid activity", "fields": verr.Fields})
			return
		}
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, stored)
}

// CacheStats serves GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate serves POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(middleware.UserIDHeader))
	if userID == "" {
		h.writeAppError(w, r, apperrors.Newf(apperrors.ErrUnauthorized, http.StatusUnauthorized, "missing %s header", middleware.UserIDHeader))
		return "", false
	}
	return userID, true
}

func (h *Handler) track(e analytics.Event) {
	if h.events != nil {
		h.events.Track(e)
	}
}

// withClient records the caller's user agent and address for activities
// logged during the request.
func withClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := service.WithClient(r.Context(), service.Client{
			UserAgent: r.UserAgent(),
			IP:        clientIP(r),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP prefers the first X-Forwarded-For hop. Anything that does not
// parse as an IP is dropped.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}

func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := http.StatusText(status)
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		message = appErr.Message
	case errors.Is(err, apperrors.ErrInvalidInput):
		message = err.Error()
	case status >= http.StatusInternalServerError:
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	h.writeError(w, status, message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
