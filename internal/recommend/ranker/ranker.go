// Package ranker scores a pool of candidate documents against a target
// document. The composite score is a weighted sum of text similarity,
// category match and capped popularity:
//
//	score = w_content * sim(target, c) + w_category * [c.category == target.category] +
//	        w_popularity * min(c.views / cap, 1)
package ranker

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/recommend/vectorizer"
)

// Vectorizer turns document text into tokens.
type Vectorizer interface {
	Vectorize(text string) vectorizer.Vector
}

// Scorer compares two token vectors.
type Scorer interface {
	Similarity(a, b vectorizer.Vector) float64
}

// Weights holds the contribution of each signal. The defaults sum to 1.
type Weights struct {
	Content       float64
	Category      float64
	Popularity    float64
	PopularityCap float64
}

// DefaultWeights returns content 0.5, category 0.3, popularity 0.2 with
// popularity saturating at 100 views.
func DefaultWeights() Weights {
	return Weights{Content: 0.5, Category: 0.3, Popularity: 0.2, PopularityCap: 100}
}

const defaultLimit = 5

// Ranker is safe for concurrent use; it only reads its inputs.
type Ranker struct {
	vec     Vectorizer
	sim     Scorer
	weights Weights
	limit   int
	logger  *slog.Logger
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithWeights overrides the signal weights.
func WithWeights(w Weights) Option {
	return func(r *Ranker) {
		if w.PopularityCap <= 0 {
			w.PopularityCap = DefaultWeights().PopularityCap
		}
		r.weights = w
	}
}

// WithLimit caps the number of ranked results.
func WithLimit(n int) Option {
	return func(r *Ranker) {
		if n > 0 {
			r.limit = n
		}
	}
}

// New creates a Ranker from an explicit vectorizer and similarity scorer.
func New(vec Vectorizer, sim Scorer, opts ...Option) *Ranker {
	r := &Ranker{
		vec:     vec,
		sim:     sim,
		weights: DefaultWeights(),
		limit:   defaultLimit,
		logger:  slog.Default().With("component", "ranker"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Limit returns the maximum number of results Rank returns.
func (r *Ranker) Limit() int {
	return r.limit
}

type scored struct {
	doc   document.Candidate
	score float64
	sim   float64
}

// Rank scores every candidate in pool against target, drops candidates with
// no signal, and returns the best ones in descending score order. Ties keep
// their pool order. Neither target nor pool is modified.
func (r *Ranker) Rank(target document.Candidate, pool []document.Candidate) []document.Scored {
	if len(pool) == 0 {
		return []document.Scored{}
	}
	targetVec := r.vec.Vectorize(target.Text())

	results := make([]scored, 0, len(pool))
	for _, c := range pool {
		score, sim, err := r.scoreOne(target, targetVec, c)
		if err != nil {
			r.logger.Warn("candidate scoring failed",
				"doc_id", c.ID,
				"error", err,
			)
			continue
		}
		if score <= 0 {
			continue
		}
		results = append(results, scored{doc: c, score: score, sim: sim})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if len(results) > r.limit {
		results = results[:r.limit]
	}

	out := make([]document.Scored, len(results))
	for i, s := range results {
		out[i] = document.Scored{
			Candidate:         s.doc,
			Score:             s.score,
			RelevanceScore:    math.Round(s.score * 100),
			ContentSimilarity: math.Round(s.sim * 100),
		}
	}
	return out
}

func (r *Ranker) scoreOne(target document.Candidate, targetVec vectorizer.Vector, c document.Candidate) (score, sim float64, err error) {
	defer func() {
		if p := recover(); p != nil {
			score, sim, err = 0, 0, fmt.Errorf("panic: %v", p)
		}
	}()

	sim = r.sim.Similarity(targetVec, r.vec.Vectorize(c.Text()))
	if math.IsNaN(sim) || sim < 0 {
		sim = 0
	}
	score = sim * r.weights.Content

	// two uncategorized documents count as the same category
	if c.Category == target.Category {
		score += r.weights.Category
	}

	views := float64(c.ViewCount)
	if views < 0 {
		views = 0
	}
	score += math.Min(views/r.weights.PopularityCap, 1) * r.weights.Popularity

	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, 0, fmt.Errorf("non-finite score")
	}
	return score, sim, nil
}
