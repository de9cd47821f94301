package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/kafka"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, e kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestCollectorPublishesAndDrains(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 16)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	c.Track(Event{Type: EventSearch, Query: "budget"})
	c.Track(Event{Type: EventRecommendation, Tier: "content"})
	assert.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-c.done
	assert.Equal(t, "search", pub.events[0].Key)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(&fakePublisher{}, 1)
	c.Track(Event{Type: EventSearch})
	c.Track(Event{Type: EventSearch})
	assert.Len(t, c.eventCh, 1)
}

func TestCollectorSurvivesPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 4)
	c.Start(context.Background())
	c.Track(Event{Type: EventSearch})
	c.Close()
	assert.Zero(t, pub.count())
}

func newTestAggregator(now time.Time) *Aggregator {
	a := NewAggregator()
	a.startTime = now.Add(-2 * time.Minute)
	a.now = func() time.Time { return now }
	return a
}

func TestAggregatorStats(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAggregator(now)

	a.Track(Event{Type: EventRecommendation, Tier: "content", LatencyMs: 10})
	a.Track(Event{Type: EventRecommendation, Tier: "popularity", Degraded: true, LatencyMs: 30})
	a.Track(Event{Type: EventRecommendation, Tier: "content", Cached: true, LatencyMs: 20})
	a.Track(Event{Type: EventSearch, Query: "budget", Returned: 3, Personalized: true, LatencyMs: 40})
	a.Track(Event{Type: EventSearch, Query: "budget", Returned: 0, LatencyMs: 50})
	a.Track(Event{Type: EventSearch, Query: "zzz", Returned: 0, LatencyMs: 60})
	a.Track(Event{Type: "bogus", LatencyMs: 1000})

	s := a.Stats()
	assert.Equal(t, int64(3), s.TotalRecommendations)
	assert.Equal(t, map[string]int64{"content": 2, "popularity": 1}, s.RecommendationsByTier)
	assert.Equal(t, int64(1), s.DegradedRecommendations)
	assert.Equal(t, int64(1), s.CachedFallbacks)
	assert.Equal(t, int64(3), s.TotalSearches)
	assert.Equal(t, int64(1), s.PersonalizedSearches)
	assert.InDelta(t, 1.0/3.0, s.PersonalizationRate, 1e-9)
	assert.Equal(t, int64(2), s.ZeroResultCount)
	assert.InDelta(t, 35.0, s.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(40), s.P50LatencyMs)
	assert.Equal(t, int64(60), s.P99LatencyMs)
	assert.Equal(t, []QueryCount{{"budget", 2}, {"zzz", 1}}, s.TopQueries)
	assert.Equal(t, []QueryCount{{"budget", 1}, {"zzz", 1}}, s.ZeroResultQueries)
	assert.InDelta(t, 3.0, s.RequestsPerMinute, 1e-9)
	assert.Equal(t, now, s.CapturedAt)
}

func TestAggregatorLatencyWindowIsBounded(t *testing.T) {
	a := NewAggregator()
	for i := 0; i < maxLatencySamples+10; i++ {
		a.Track(Event{Type: EventSearch, Returned: 1, LatencyMs: int64(i)})
	}
	assert.Len(t, a.latencies, maxLatencySamples)
	assert.Equal(t, int64(maxLatencySamples), a.latencies[0])
}

func TestHandleEventSkipsGarbage(t *testing.T) {
	a := NewAggregator()
	h := HandleEvent(a)
	require.NoError(t, h(context.Background(), nil, []byte("not json")))
	require.NoError(t, h(context.Background(), nil, []byte(`{"type":"recommendation","tier":"category"}`)))
	assert.Equal(t, int64(1), a.Stats().RecommendationsByTier["category"])
}

func TestHandlerStats(t *testing.T) {
	a := NewAggregator()
	a.Track(Event{Type: EventSearch, Query: "q", Returned: 1})
	a.Track(Event{Type: EventRecommendation, Tier: "content"})
	rec := httptest.NewRecorder()
	NewHandler(a).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, int64(1), report.Search.Total)
	assert.Equal(t, []QueryCount{{"q", 1}}, report.Search.TopQueries)
	assert.Equal(t, []TierShare{{Tier: "content", Count: 1, Share: 1}}, report.Recommendations.Tiers)
}

func TestHandlerStatsTopParam(t *testing.T) {
	a := NewAggregator()
	a.Track(Event{Type: EventSearch, Query: "a", Returned: 1})
	a.Track(Event{Type: EventSearch, Query: "b", Returned: 1})
	h := NewHandler(a)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, []QueryCount{{"a", 1}}, report.Search.TopQueries)

	for _, bad := range []string{"0", "-2", "many"} {
		rec = httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestNewReportTierShares(t *testing.T) {
	stats := AggregatedStats{
		TotalRecommendations:    4,
		RecommendationsByTier:   map[string]int64{"popularity": 1, "content": 2, "category": 1},
		DegradedRecommendations: 1,
		CachedFallbacks:         2,
	}
	r := NewReport(stats, 0)
	assert.Equal(t, []TierShare{
		{Tier: "content", Count: 2, Share: 0.5},
		{Tier: "category", Count: 1, Share: 0.25},
		{Tier: "popularity", Count: 1, Share: 0.25},
	}, r.Recommendations.Tiers)
	assert.InDelta(t, 0.25, r.Recommendations.DegradedRate, 1e-9)
	assert.InDelta(t, 0.5, r.Recommendations.CachedFallbackRate, 1e-9)
	assert.NotNil(t, r.Search.TopQueries)

	empty := NewReport(AggregatedStats{}, 0)
	assert.Empty(t, empty.Recommendations.Tiers)
	assert.Zero(t, empty.Recommendations.DegradedRate)
}
