package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/activity"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/recommend/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/errors"
)

var now = time.Date(2024, time.May, 15, 13, 30, 0, 0, time.UTC)

type fakeStore struct {
	recent     []activity.Record
	recentErr  error
	hits       []document.Candidate
	searchErr  error
	categories []string
	catErr     error

	lastQuery document.SearchQuery
	lastType  activity.Type
	lastLimit int
}

func (f *fakeStore) FindRecent(_ context.Context, _ string, t activity.Type, limit int) ([]activity.Record, error) {
	f.lastType, f.lastLimit = t, limit
	return f.recent, f.recentErr
}

func (f *fakeStore) Search(_ context.Context, q document.SearchQuery) ([]document.Candidate, error) {
	f.lastQuery = q
	return f.hits, f.searchErr
}

func (f *fakeStore) Categories(context.Context) ([]string, error) {
	return f.categories, f.catErr
}

type fakeRecommender struct {
	result pipeline.Result
	err    error
	calls  int
}

func (f *fakeRecommender) Recommend(context.Context, string) (pipeline.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakePersonalizer struct {
	err   error
	calls int
}

// Personalize reverses the hits so tests can tell it ran.
func (f *fakePersonalizer) Personalize(_ context.Context, results []document.Candidate, _, _ string) ([]document.Scored, error) {
	f.calls++
	out := document.Unscored(results)
	if f.err != nil {
		return out, f.err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

type fakeAppender struct {
	records []activity.Record
	err     error
}

func (f *fakeAppender) Append(_ context.Context, r activity.Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, r)
	return nil
}

type fakeObserver map[string]int

func (f fakeObserver) RecordSearch(outcome string, _ int) { f[outcome]++ }

type fixture struct {
	store    *fakeStore
	rec      *fakeRecommender
	pers     *fakePersonalizer
	appender *fakeAppender
	observed fakeObserver
	svc      *Service
}

func newFixture() *fixture {
	f := &fixture{
		store:    &fakeStore{},
		rec:      &fakeRecommender{},
		pers:     &fakePersonalizer{},
		appender: &fakeAppender{},
		observed: fakeObserver{},
	}
	f.svc = New(f.store, f.rec, f.pers, f.appender,
		WithClock(func() time.Time { return now }),
		WithSearchObserver(f.observed),
	)
	return f
}

func TestSuggestionsDelegateToPipeline(t *testing.T) {
	f := newFixture()
	f.rec.result = pipeline.Result{Documents: []document.Scored{{Candidate: document.Candidate{ID: "d1"}}}, Tier: pipeline.TierContent}

	got, err := f.svc.GetPersonalizedSuggestions(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, got.Documents, 1)
	assert.Equal(t, pipeline.TierContent, got.Tier)
	assert.False(t, got.Degraded)

	alias, err := f.svc.GetDocumentSuggestions(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, got, alias)
	assert.Equal(t, 2, f.rec.calls)
}

func TestSuggestionsNeverNil(t *testing.T) {
	f := newFixture()
	f.rec.result = pipeline.Result{Tier: pipeline.TierNone, Degraded: true}

	got, err := f.svc.GetPersonalizedSuggestions(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, got.Documents)
	assert.Empty(t, got.Documents)
	assert.True(t, got.Degraded)
}

func TestSuggestionsRejectEmptyUser(t *testing.T) {
	f := newFixture()
	_, err := f.svc.GetPersonalizedSuggestions(context.Background(), " ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Zero(t, f.rec.calls)
}

func TestSuggestionsPropagateUnavailable(t *testing.T) {
	f := newFixture()
	f.rec.err = apperrors.Unavailable("fetch", errors.New("down"))
	_, err := f.svc.GetDocumentSuggestions(context.Background(), "u1")
	assert.ErrorIs(t, err, apperrors.ErrRecommendationUnavailable)
}

func TestSearchAndRankPersonalizesRelevance(t *testing.T) {
	f := newFixture()
	f.store.hits = []document.Candidate{{ID: "a"}, {ID: "b"}}
	ctx := WithClient(context.Background(), Client{UserAgent: "curl/8", IP: "10.0.0.1"})

	res, err := f.svc.SearchAndRank(ctx, "  budget ", document.Filters{DateRange: document.RangeMonth}, "u1")
	require.NoError(t, err)
	assert.True(t, res.Personalized)
	assert.False(t, res.Degraded)
	assert.Equal(t, "b", res.Documents[0].ID)

	assert.Equal(t, "budget", f.store.lastQuery.Text)
	assert.Equal(t, 20, f.store.lastQuery.Limit)
	assert.Equal(t, document.SortRelevance, f.store.lastQuery.Filters.SortBy)
	assert.Equal(t, time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC), f.store.lastQuery.Since)

	require.Len(t, f.appender.records, 1)
	tracked := f.appender.records[0]
	assert.Equal(t, activity.TypeSearch, tracked.Type)
	assert.Equal(t, "budget", tracked.SearchQuery)
	assert.Equal(t, "curl/8", tracked.DeviceInfo)
	assert.Equal(t, "10.0.0.1", tracked.IPAddress)
	assert.NotEmpty(t, tracked.ID)
	assert.Equal(t, now, tracked.Timestamp)
	assert.Equal(t, 1, f.observed[OutcomePersonalized])
}

func TestSearchAndRankSkipsPersonalizationForOtherSorts(t *testing.T) {
	f := newFixture()
	f.store.hits = []document.Candidate{{ID: "a"}, {ID: "b"}}

	res, err := f.svc.SearchAndRank(context.Background(), "", document.Filters{SortBy: document.SortMostViewed}, "u1")
	require.NoError(t, err)
	assert.False(t, res.Personalized)
	assert.Equal(t, []string{"a", "b"}, []string{res.Documents[0].ID, res.Documents[1].ID})
	assert.Zero(t, f.pers.calls)
	assert.Empty(t, f.appender.records, "empty queries are not tracked")
	assert.Equal(t, 1, f.observed[OutcomePlain])
}

func TestSearchAndRankDegradesOnPersonalizationFailure(t *testing.T) {
	f := newFixture()
	f.store.hits = []document.Candidate{{ID: "a"}, {ID: "b"}}
	f.pers.err = apperrors.Unavailable("history", errors.New("down"))

	res, err := f.svc.SearchAndRank(context.Background(), "x", document.Filters{}, "u1")
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.False(t, res.Personalized)
	assert.Equal(t, "a", res.Documents[0].ID)
	assert.Equal(t, 1, f.observed[OutcomeDegraded])
}

func TestSearchAndRankErrors(t *testing.T) {
	f := newFixture()
	_, err := f.svc.SearchAndRank(context.Background(), "x", document.Filters{SortBy: "random"}, "u1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	f.store.searchErr = errors.New("db down")
	_, err = f.svc.SearchAndRank(context.Background(), "x", document.Filters{}, "u1")
	assert.ErrorIs(t, err, apperrors.ErrRecommendationUnavailable)
	assert.Equal(t, 1, f.observed[OutcomeError])
}

func TestSearchAndRankToleratesTrackingFailure(t *testing.T) {
	f := newFixture()
	f.appender.err = errors.New("kafka down")
	f.store.hits = []document.Candidate{{ID: "a"}}

	res, err := f.svc.SearchAndRank(context.Background(), "x", document.Filters{}, "u1")
	require.NoError(t, err)
	assert.Len(t, res.Documents, 1)
}

func TestSearchSuggestions(t *testing.T) {
	f := newFixture()
	f.store.recent = []activity.Record{
		{SearchQuery: "Budget 2024"},
		{SearchQuery: "budget review"},
		{SearchQuery: "Budget 2024"},
		{SearchQuery: "leave policy"},
		{SearchQuery: ""},
		{SearchQuery: "old budget"},
		{SearchQuery: "budget a"},
		{SearchQuery: "budget b"},
		{SearchQuery: "budget c"},
	}
	got, err := f.svc.SearchSuggestions(context.Background(), "BUD", "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Budget 2024", "budget review", "old budget", "budget a", "budget b"}, got)
	assert.Equal(t, activity.TypeSearch, f.store.lastType)
	assert.Equal(t, 20, f.store.lastLimit)

	f.store.recentErr = errors.New("down")
	got, err = f.svc.SearchSuggestions(context.Background(), "bud", "u1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCategoriesPolicy(t *testing.T) {
	f := newFixture()
	f.store.categories = []string{"Finance", "Zoology", ""}
	got := f.svc.Categories(context.Background())
	assert.Len(t, got, len(StandardCategories)+1)
	assert.Equal(t, "Zoology", got[len(got)-1])
	assert.IsIncreasing(t, got)

	f.store.catErr = errors.New("down")
	assert.Equal(t, StandardCategories, f.svc.Categories(context.Background()))
}

func TestTrack(t *testing.T) {
	f := newFixture()
	rec, err := f.svc.Track(context.Background(), activity.Record{UserID: "u1", DocumentID: "d1", Type: activity.TypeView})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Len(t, f.appender.records, 1)

	_, err = f.svc.Track(context.Background(), activity.Record{UserID: "u1", Type: activity.TypeView})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	f.appender.err = errors.New("down")
	_, err = f.svc.Track(context.Background(), activity.Record{UserID: "u1", DocumentID: "d1", Type: activity.TypeDownload})
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héll", truncate("héllo", 4))
	assert.Equal(t, "abc", truncate("abc", 10))
}
