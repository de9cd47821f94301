package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"
)

// StatsSource is anything that can produce a stats snapshot.
type StatsSource interface {
	Stats() AggregatedStats
}

// Report is the dashboard view of a snapshot served on GET /api/v1/analytics.
type Report struct {
	Recommendations   RecommendationReport `json:"recommendations"`
	Search            SearchReport         `json:"search"`
	Latency           LatencyReport        `json:"latency"`
	RequestsPerMinute float64              `json:"requests_per_minute"`
	CapturedAt        time.Time            `json:"captured_at"`
}

type RecommendationReport struct {
	Total int64 `json:"total"`
	// Tiers is ordered by count, busiest first.
	Tiers              []TierShare `json:"tiers"`
	DegradedRate       float64     `json:"degraded_rate"`
	CachedFallbackRate float64     `json:"cached_fallback_rate"`
}

// TierShare is how many suggestion lists a fallback tier produced.
type TierShare struct {
	Tier  string  `json:"tier"`
	Count int64   `json:"count"`
	Share float64 `json:"share"`
}

type SearchReport struct {
	Total               int64        `json:"total"`
	Personalized        int64        `json:"personalized"`
	PersonalizationRate float64      `json:"personalization_rate"`
	ZeroResults         int64        `json:"zero_results"`
	TopQueries          []QueryCount `json:"top_queries"`
	ZeroResultQueries   []QueryCount `json:"zero_result_queries"`
}

type LatencyReport struct {
	AvgMs float64 `json:"avg_ms"`
	P50Ms int64   `json:"p50_ms"`
	P95Ms int64   `json:"p95_ms"`
	P99Ms int64   `json:"p99_ms"`
}

// NewReport shapes stats for dashboards. top bounds both query lists; a
// non-positive top keeps them whole.
func NewReport(stats AggregatedStats, top int) Report {
	rec := RecommendationReport{
		Total: stats.TotalRecommendations,
		Tiers: make([]TierShare, 0, len(stats.RecommendationsByTier)),
	}
	for tier, n := range stats.RecommendationsByTier {
		rec.Tiers = append(rec.Tiers, TierShare{Tier: tier, Count: n, Share: ratio(n, stats.TotalRecommendations)})
	}
	sort.Slice(rec.Tiers, func(i, j int) bool {
		if rec.Tiers[i].Count != rec.Tiers[j].Count {
			return rec.Tiers[i].Count > rec.Tiers[j].Count
		}
		return rec.Tiers[i].Tier < rec.Tiers[j].Tier
	})
	rec.DegradedRate = ratio(stats.DegradedRecommendations, stats.TotalRecommendations)
	rec.CachedFallbackRate = ratio(stats.CachedFallbacks, stats.TotalRecommendations)

	return Report{
		Recommendations: rec,
		Search: SearchReport{
			Total:               stats.TotalSearches,
			Personalized:        stats.PersonalizedSearches,
			PersonalizationRate: stats.PersonalizationRate,
			ZeroResults:         stats.ZeroResultCount,
			TopQueries:          head(stats.TopQueries, top),
			ZeroResultQueries:   head(stats.ZeroResultQueries, top),
		},
		Latency: LatencyReport{
			AvgMs: stats.AvgLatencyMs,
			P50Ms: stats.P50LatencyMs,
			P95Ms: stats.P95LatencyMs,
			P99Ms: stats.P99LatencyMs,
		},
		RequestsPerMinute: stats.RequestsPerMinute,
		CapturedAt:        stats.CapturedAt,
	}
}

func ratio(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func head(q []QueryCount, n int) []QueryCount {
	if q == nil {
		return []QueryCount{}
	}
	if n > 0 && len(q) > n {
		return q[:n]
	}
	return q
}

type Handler struct {
	source StatsSource
	logger *slog.Logger
}

func NewHandler(source StatsSource) *Handler {
	return &Handler{
		source: source,
		logger: slog.Default().With("component", "analytics-handler"),
	}
}

// Stats serves GET /api/v1/analytics. The optional top parameter trims the
// query lists.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top := 0
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "top must be a positive integer"})
			return
		}
		top = n
	}

	report := NewReport(h.source.Stats(), top)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
