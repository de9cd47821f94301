// Package similarity scores how alike two token vectors are using TF-IDF
// weights over the two-document corpus formed by the pair, compared with
// cosine similarity.
package similarity

import (
	"log/slog"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/recommend/vectorizer"
)

// Scorer computes pairwise similarity. It is stateless and safe for
// concurrent use.
type Scorer struct {
	logger *slog.Logger
}

// New creates a Scorer.
func New() *Scorer {
	return &Scorer{
		logger: slog.Default().With("component", "similarity"),
	}
}

// Similarity returns the cosine similarity of the TF-IDF weighted vectors of
// a and b, in [0,1]. It returns 0 when either vector has no weight and never
// panics.
func (s *Scorer) Similarity(a, b vectorizer.Vector) (sim float64) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("similarity computation failed", "panic", r)
			sim = 0
		}
	}()
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	tfA, tfB := counts(a), counts(b)
	terms := union(tfA, tfB)

	var dot, magA, magB float64
	for _, term := range terms {
		idf := idf(tfA, tfB, term)
		wa := float64(tfA[term]) * idf
		wb := float64(tfB[term]) * idf
		dot += wa * wb
		magA += wa * wa
		magB += wb * wb
	}
	magnitude := math.Sqrt(magA) * math.Sqrt(magB)
	if magnitude == 0 || math.IsNaN(magnitude) || math.IsInf(magnitude, 0) {
		return 0
	}
	sim = dot / magnitude
	if math.IsNaN(sim) {
		s.logger.Warn("similarity produced NaN", "terms", len(terms))
		return 0
	}
	return clamp(sim)
}

// idf is 1 + ln(N / (1 + df)) with N = 2: terms in one vector weigh 1, terms
// in both weigh 1 + ln(2/3).
func idf(tfA, tfB map[string]int, term string) float64 {
	df := 0
	if tfA[term] > 0 {
		df++
	}
	if tfB[term] > 0 {
		df++
	}
	return 1 + math.Log(2/float64(1+df))
}

func counts(v vectorizer.Vector) map[string]int {
	m := make(map[string]int, len(v))
	for _, t := range v {
		m[t]++
	}
	return m
}

// union returns the distinct terms of both maps sorted, so that floating
// point summation order is fixed.
func union(a, b map[string]int) []string {
	terms := make([]string, 0, len(a)+len(b))
	for t := range a {
		terms = append(terms, t)
	}
	for t := range b {
		if _, ok := a[t]; !ok {
			terms = append(terms, t)
		}
	}
	sort.Strings(terms)
	return terms
}

func clamp(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
