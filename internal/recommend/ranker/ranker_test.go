package ranker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/recommend/similarity"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/recommend/vectorizer"
)

func newRanker(opts ...Option) *Ranker {
	return New(vectorizer.New(), similarity.New(), opts...)
}

func TestContentAndCategoryBeatPopularity(t *testing.T) {
	target := document.Candidate{ID: "t", Category: "Finance", Content: "quarterly revenue report"}
	a := document.Candidate{ID: "a", Category: "Finance", Content: "quarterly revenue report", ViewCount: 50}
	b := document.Candidate{ID: "b", Category: "HR", Content: "vacation policy", ViewCount: 200}

	got := newRanker().Rank(target, []document.Candidate{b, a})
	require.Len(t, got, 2)

	assert.Equal(t, "a", got[0].ID)
	assert.InDelta(t, 0.5+0.3+0.1, got[0].Score, 1e-9)
	assert.Equal(t, 90.0, got[0].RelevanceScore)
	assert.Equal(t, 100.0, got[0].ContentSimilarity)

	assert.Equal(t, "b", got[1].ID)
	assert.InDelta(t, 0.2, got[1].Score, 1e-9)
	assert.Equal(t, 20.0, got[1].RelevanceScore)
	assert.Equal(t, 0.0, got[1].ContentSimilarity)
}

func TestRankAtMostLimitAndPositive(t *testing.T) {
	target := document.Candidate{ID: "t", Category: "Eng", Content: "storage migration plan"}
	pool := make([]document.Candidate, 0, 40)
	for i := 0; i < 40; i++ {
		pool = append(pool, document.Candidate{
			ID:        fmt.Sprintf("d%02d", i),
			Category:  []string{"Eng", "HR", ""}[i%3],
			Content:   []string{"storage migration", "holiday calendar", "", "plan review"}[i%4],
			ViewCount: int64(i % 7),
		})
	}

	got := newRanker().Rank(target, pool)
	assert.LessOrEqual(t, len(got), 5)
	for _, s := range got {
		assert.Greater(t, s.Score, 0.0)
	}

	got = newRanker(WithLimit(12)).Rank(target, pool)
	assert.Len(t, got, 12)
}

func TestRankDropsZeroSignal(t *testing.T) {
	target := document.Candidate{ID: "t", Category: "Finance", Content: "budget"}
	pool := []document.Candidate{
		{ID: "none", Category: "HR", Content: "vacation", ViewCount: 0},
		{ID: "negative", Category: "HR", Content: "holiday", ViewCount: -10},
	}
	assert.Empty(t, newRanker().Rank(target, pool))
}

func TestRankIdempotent(t *testing.T) {
	target := document.Candidate{ID: "t", Category: "Eng", Description: "incident review for storage outage"}
	pool := []document.Candidate{
		{ID: "a", Category: "Eng", Title: "storage outage postmortem", ViewCount: 3},
		{ID: "b", Category: "Ops", Content: "incident review template", ViewCount: 80},
		{ID: "c", Category: "Eng", Content: "onboarding guide", ViewCount: 12},
		{ID: "d", Category: "Legal", Content: "contract", ViewCount: 400},
	}
	r := newRanker()
	first := r.Rank(target, pool)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, r.Rank(target, pool))
	}
}

func TestRankStableTies(t *testing.T) {
	target := document.Candidate{ID: "t", Category: "Eng", Content: "alpha"}
	pool := []document.Candidate{
		{ID: "z", Category: "Eng", Content: "omega"},
		{ID: "m", Category: "Eng", Content: "sigma"},
		{ID: "a", Category: "Eng", Content: "theta"},
	}
	got := newRanker().Rank(target, pool)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"z", "m", "a"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestUncategorizedDocumentsShareCategory(t *testing.T) {
	target := document.Candidate{ID: "t", Content: "quarterly revenue report"}
	pool := []document.Candidate{
		{ID: "a", Content: "vacation policy"},
		{ID: "b", Category: "HR", Content: "vacation policy"},
	}
	got := newRanker().Rank(target, pool)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.InDelta(t, 0.3, got[0].Score, 1e-9)
	assert.Equal(t, 30.0, got[0].RelevanceScore)
	assert.Equal(t, 0.0, got[0].ContentSimilarity)
}

func TestCategoryMismatchWithEmptyTarget(t *testing.T) {
	target := document.Candidate{ID: "t", Content: "alpha"}
	pool := []document.Candidate{{ID: "a", Category: "Finance", Content: "omega"}}
	assert.Empty(t, newRanker().Rank(target, pool))
}

func TestRankDoesNotMutateInputs(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	target := document.Candidate{ID: "t", Category: "Eng", Content: "alpha beta", Tags: []string{"x"}}
	pool := []document.Candidate{
		{ID: "b", Category: "Eng", Content: "alpha", ViewCount: 1, CreatedAt: created, Tags: []string{"y"}},
		{ID: "a", Category: "Eng", Content: "alpha beta", ViewCount: 2, CreatedAt: created},
	}
	poolCopy := append([]document.Candidate(nil), pool...)
	targetCopy := target

	_ = newRanker().Rank(target, pool)
	assert.Equal(t, poolCopy, pool)
	assert.Equal(t, targetCopy, target)
}

func TestRankEmptyPool(t *testing.T) {
	got := newRanker().Rank(document.Candidate{ID: "t"}, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

type panickyScorer struct {
	poison string
}

func (p panickyScorer) Similarity(a, b vectorizer.Vector) float64 {
	for _, tok := range b {
		if tok == p.poison {
			panic("bad vector")
		}
	}
	return 1
}

func TestRankAbsorbsCandidateFailure(t *testing.T) {
	r := New(vectorizer.New(), panickyScorer{poison: "poison"})
	target := document.Candidate{ID: "t", Category: "Eng", Content: "alpha"}
	pool := []document.Candidate{
		{ID: "bad", Category: "Eng", Content: "poison pill", ViewCount: 100},
		{ID: "good", Category: "HR", Content: "alpha"},
	}
	got := r.Rank(target, pool)
	require.Len(t, got, 1)
	assert.Equal(t, "good", got[0].ID)
	assert.Equal(t, 50.0, got[0].RelevanceScore)
}

func TestCustomWeights(t *testing.T) {
	r := newRanker(WithWeights(Weights{Content: 0, Category: 0, Popularity: 1, PopularityCap: 10}))
	target := document.Candidate{ID: "t", Category: "Eng", Content: "alpha"}
	pool := []document.Candidate{
		{ID: "a", Category: "Eng", Content: "alpha", ViewCount: 5},
		{ID: "b", Category: "HR", ViewCount: 50},
	}
	got := r.Rank(target, pool)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, 100.0, got[0].RelevanceScore)
	assert.Equal(t, 50.0, got[1].RelevanceScore)
}

func BenchmarkRank(b *testing.B) {
	target := document.Candidate{ID: "t", Category: "Finance", Content: "quarterly revenue report with regional breakdown and forecast"}
	pool := make([]document.Candidate, 200)
	for i := range pool {
		pool[i] = document.Candidate{
			ID:        fmt.Sprintf("d%d", i),
			Category:  []string{"Finance", "HR", "Engineering"}[i%3],
			Content:   fmt.Sprintf("document %d about revenue forecast budget planning region %d", i, i%11),
			ViewCount: int64(i),
		}
	}
	r := newRanker()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Rank(target, pool)
	}
}
