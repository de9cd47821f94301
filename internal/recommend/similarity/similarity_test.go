package similarity

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/recommend/vectorizer"
)

const eps = 1e-9

func TestIdenticalVectorsScoreOne(t *testing.T) {
	s := New()
	v := vectorizer.Vector{"quarterly", "revenue", "report", "report"}
	assert.InDelta(t, 1.0, s.Similarity(v, v), eps)
}

func TestEmptyVectorScoresZero(t *testing.T) {
	s := New()
	v := vectorizer.Vector{"quarterly", "revenue"}
	assert.Zero(t, s.Similarity(v, vectorizer.Vector{}))
	assert.Zero(t, s.Similarity(vectorizer.Vector{}, v))
	assert.Zero(t, s.Similarity(nil, nil))
}

func TestDisjointVectorsScoreZero(t *testing.T) {
	s := New()
	assert.Zero(t, s.Similarity(vectorizer.Vector{"vacation", "policy"}, vectorizer.Vector{"quarterly", "revenue"}))
}

func TestPartialOverlap(t *testing.T) {
	s := New()
	a := vectorizer.Vector{"quarterly", "revenue", "report"}
	b := vectorizer.Vector{"annual", "revenue", "report"}

	// shared terms weigh 1+ln(2/3), unique terms weigh 1
	w := 1 + math.Log(2.0/3.0)
	want := (2 * w * w) / (2*w*w + 1)
	got := s.Similarity(a, b)

	assert.InDelta(t, want, got, eps)
	assert.Greater(t, got, 0.0)
	assert.Less(t, got, 1.0)
}

func TestSymmetricAndDeterministic(t *testing.T) {
	s := New()
	a := vectorizer.New().Vectorize("Engineering design review for the storage platform migration")
	b := vectorizer.New().Vectorize("Platform migration runbook and storage review checklist")

	first := s.Similarity(a, b)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, s.Similarity(a, b))
		assert.Equal(t, first, s.Similarity(b, a))
	}
}

func TestBounded(t *testing.T) {
	s := New()
	inputs := []string{"", "alpha", "alpha beta", "alpha alpha alpha beta", "gamma delta alpha"}
	v := vectorizer.New()
	for _, x := range inputs {
		for _, y := range inputs {
			sim := s.Similarity(v.Vectorize(x), v.Vectorize(y))
			assert.GreaterOrEqual(t, sim, 0.0)
			assert.LessOrEqual(t, sim, 1.0)
			assert.False(t, math.IsNaN(sim))
		}
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, clamp(-0.1))
	assert.Equal(t, 1.0, clamp(1.0000001))
	assert.Equal(t, 0.5, clamp(0.5))
}

func BenchmarkSimilarity(b *testing.B) {
	v := vectorizer.New()
	x := v.Vectorize(strings.Repeat("quarterly revenue report finance forecast budget ", 40))
	y := v.Vectorize(strings.Repeat("annual budget forecast engineering headcount plan ", 40))
	s := New()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = s.Similarity(x, y)
	}
}
