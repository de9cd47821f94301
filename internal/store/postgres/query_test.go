package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/search/textindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/resilience"
)

func TestTSQuery(t *testing.T) {
	assert.Equal(t, "(budget:* | forecast:*)", tsQuery(textindex.Parse("budget forecast")))
	assert.Equal(t, "(budget:* & forecast:*)", tsQuery(textindex.Parse("budget AND forecast")))
	assert.Equal(t, "(revenue:*) & !draft:*", tsQuery(textindex.Parse("revenue -draft")))
	assert.Empty(t, tsQuery(textindex.Parse("the of")))
}

func TestBuildSearchText(t *testing.T) {
	q, args, ok := buildSearch(document.SearchQuery{
		Text:    "budget",
		Filters: document.Filters{Category: "Finance", Tags: []string{"q1"}, SortBy: document.SortRelevance},
		Since:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.True(t, ok)
	assert.Contains(t, q, "search_vector @@ to_tsquery('simple', $1)")
	assert.Contains(t, q, "ts_rank(search_vector, to_tsquery('simple', $1))")
	assert.Contains(t, q, "category = $2")
	assert.Contains(t, q, "tags && $3")
	assert.Contains(t, q, "created_at >= $4")
	assert.Contains(t, q, "ORDER BY text_score DESC, id LIMIT $5")
	require.Len(t, args, 5)
	assert.Equal(t, "(budget:*)", args[0])
	assert.Equal(t, "Finance", args[1])
	assert.Equal(t, 20, args[4])
}

func TestBuildSearchWithoutText(t *testing.T) {
	q, args, ok := buildSearch(document.SearchQuery{Limit: 5})
	require.True(t, ok)
	assert.NotContains(t, q, "WHERE")
	assert.Contains(t, q, "0::float8 AS text_score")
	assert.Contains(t, q, "ORDER BY created_at DESC, id LIMIT $1")
	assert.Equal(t, []any{5}, args)

	for sortBy, order := range map[document.SortBy]string{
		document.SortOldest:         "created_at ASC, id",
		document.SortMostViewed:     "view_count DESC, id",
		document.SortMostDownloaded: "download_count DESC, id",
	} {
		q, _, _ := buildSearch(document.SearchQuery{Filters: document.Filters{SortBy: sortBy}})
		assert.Contains(t, q, "ORDER BY "+order, sortBy)
	}
}

func TestBuildSearchStopwordsOnly(t *testing.T) {
	_, _, ok := buildSearch(document.SearchQuery{Text: "the of and"})
	assert.False(t, ok)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("connection reset")))
	assert.True(t, retryable(&pq.Error{Code: "08006"}))
	assert.True(t, retryable(fmt.Errorf("wrapped: %w", &pq.Error{Code: "40001"})))
	assert.False(t, retryable(&pq.Error{Code: "42P01"}))
	assert.False(t, retryable(context.Canceled))
	assert.False(t, retryable(context.DeadlineExceeded))
	assert.True(t, retryable(fmt.Errorf("search: %w", &resilience.TimeoutError{Op: "postgres", Limit: time.Second})))
	assert.False(t, retryable(resilience.ErrCircuitOpen))
	assert.False(t, retryable(apperrors.ErrInvalidInput))
}

func TestDocRowCandidate(t *testing.T) {
	r := docRow{Candidate: document.Candidate{ID: "d1"}}
	assert.Equal(t, []string{}, r.candidate().Tags)
	r.Tags = pq.StringArray{"a", "b"}
	assert.Equal(t, []string{"a", "b"}, r.candidate().Tags)
}

func TestUnavailableClassifiesAttemptTimeouts(t *testing.T) {
	s := &Store{logger: slog.Default()}

	err := s.unavailable("search", &resilience.TimeoutError{Op: "postgres", Limit: time.Second})
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = s.unavailable("search", context.DeadlineExceeded)
	assert.NotErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.Equal(t, context.DeadlineExceeded, err)
}
