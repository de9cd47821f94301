package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/kafka"
)

// maxLatencySamples bounds the window used for latency percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalRecommendations    int64            `json:"total_recommendations"`
	RecommendationsByTier   map[string]int64 `json:"recommendations_by_tier"`
	DegradedRecommendations int64            `json:"degraded_recommendations"`
	CachedFallbacks         int64            `json:"cached_fallbacks"`
	TotalSearches           int64            `json:"total_searches"`
	PersonalizedSearches    int64            `json:"personalized_searches"`
	PersonalizationRate     float64          `json:"personalization_rate"`
	ZeroResultCount         int64            `json:"zero_result_count"`
	AvgLatencyMs            float64          `json:"avg_latency_ms"`
	P50LatencyMs            int64            `json:"p50_latency_ms"`
	P95LatencyMs            int64            `json:"p95_latency_ms"`
	P99LatencyMs            int64            `json:"p99_latency_ms"`
	TopQueries              []QueryCount     `json:"top_queries"`
	ZeroResultQueries       []QueryCount     `json:"zero_result_queries"`
	RequestsPerMinute       float64          `json:"requests_per_minute"`
	CapturedAt              time.Time        `json:"captured_at"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds events into running statistics. It is also a Sink so the
// recommender can aggregate in process when Kafka is disabled.
type Aggregator struct {
	mu                sync.Mutex
	recommendations   int64
	byTier            map[string]int64
	degraded          int64
	cached            int64
	searches          int64
	personalized      int64
	zeroResults       int64
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time
	now               func() time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byTier:            make(map[string]int64),
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent returns a Kafka handler feeding agg. Undecodable messages are
// logged and skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		agg.Track(event)
		return nil
	}
}

// Track records one event.
func (a *Aggregator) Track(event Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch event.Type {
	case EventRecommendation:
		a.recommendations++
		a.byTier[event.Tier]++
		if event.Degraded {
			a.degraded++
		}
		if event.Cached {
			a.cached++
		}
	case EventSearch:
		a.searches++
		if event.Personalized {
			a.personalized++
		}
		if event.Query != "" {
			a.queryCounts[event.Query]++
		}
		if event.Returned == 0 {
			a.zeroResults++
			if event.Query != "" {
				a.zeroResultQueries[event.Query]++
			}
		}
	default:
		a.logger.Warn("unknown analytics event type", "type", event.Type)
		return
	}
	a.recordLatency(event.LatencyMs)
}

// recordLatency keeps the most recent maxLatencySamples values in a ring.
func (a *Aggregator) recordLatency(ms int64) {
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, ms)
		return
	}
	a.latencies[a.next] = ms
	a.next = (a.next + 1) % maxLatencySamples
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalRecommendations:    a.recommendations,
		RecommendationsByTier:   make(map[string]int64, len(a.byTier)),
		DegradedRecommendations: a.degraded,
		CachedFallbacks:         a.cached,
		TotalSearches:           a.searches,
		PersonalizedSearches:    a.personalized,
		ZeroResultCount:         a.zeroResults,
		CapturedAt:              a.now().UTC(),
	}
	for tier, n := range a.byTier {
		stats.RecommendationsByTier[tier] = n
	}
	if a.searches > 0 {
		stats.PersonalizationRate = float64(a.personalized) / float64(a.searches)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.RequestsPerMinute = float64(a.recommendations+a.searches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n most frequent queries, ties broken alphabetically.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
