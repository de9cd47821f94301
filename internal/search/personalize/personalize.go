// Package personalize re-orders full-text search results for a user, boosting
// documents the user has interacted with often or recently.
package personalize

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/activity"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/errors"
)

// ActivityReader reads the user's most recent activity of any type.
type ActivityReader interface {
	FindRecent(ctx context.Context, userID string, t activity.Type, limit int) ([]activity.Record, error)
}

// Config holds the boost parameters.
type Config struct {
	HistoryLimit     int
	FrequencyCap     float64
	FrequencyWeight  float64
	RecencyWeight    float64
	RecencyDecayDays float64
}

// DefaultConfig reads the last 50 activities; five views saturate the
// frequency boost at 0.4 and the recency boost of 0.6 decays with a 14 day
// time constant.
func DefaultConfig() Config {
	return Config{
		HistoryLimit:     50,
		FrequencyCap:     5,
		FrequencyWeight:  0.4,
		RecencyWeight:    0.6,
		RecencyDecayDays: 14,
	}
}

// Personalizer is safe for concurrent use.
type Personalizer struct {
	activities ActivityReader
	cfg        Config
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Personalizer.
type Option func(*Personalizer)

// WithConfig overrides the boost parameters.
func WithConfig(cfg Config) Option {
	return func(p *Personalizer) { p.cfg = cfg }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Personalizer) { p.now = now }
}

// New creates a Personalizer.
func New(activities ActivityReader, opts ...Option) *Personalizer {
	p := &Personalizer{
		activities: activities,
		cfg:        DefaultConfig(),
		now:        time.Now,
		logger:     slog.Default().With("component", "personalizer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Personalize scores each result as base * (1 + frequency + recency), where
// base is the text relevance (1 when absent), and sorts descending keeping
// the incoming order for ties. Without any history the results come back in
// their original order. A store failure returns the unpersonalized results
// together with an ErrRecommendationUnavailable error.
func (p *Personalizer) Personalize(ctx context.Context, results []document.Candidate, userID, rawQuery string) ([]document.Scored, error) {
	if len(results) == 0 {
		return []document.Scored{}, nil
	}
	history, err := p.activities.FindRecent(ctx, userID, "", p.cfg.HistoryLimit)
	if err != nil {
		return document.Unscored(results), apperrors.Unavailable("loading search history", err)
	}
	if len(history) == 0 {
		return document.Unscored(results), nil
	}

	latest, views := activity.MostRecentByDocument(history)
	now := p.now()
	out := make([]document.Scored, len(results))
	for i, c := range results {
		base := c.TextScore
		if base <= 0 {
			p.logger.Debug("text score absent, using base relevance 1", "doc_id", c.ID, "query", rawQuery)
			base = 1
		}
		boost := 0.0
		if t, ok := latest[c.ID]; ok {
			boost = p.frequency(views[c.ID]) + p.recency(now.Sub(t))
		}
		combined := base * (1 + boost)
		out[i] = document.Scored{
			Candidate:      c,
			Score:          combined,
			RelevanceScore: math.Round(combined * 100),
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func (p *Personalizer) frequency(views int) float64 {
	return math.Min(float64(views)/p.cfg.FrequencyCap, 1) * p.cfg.FrequencyWeight
}

// recency treats interactions in the future as happening now.
func (p *Personalizer) recency(since time.Duration) float64 {
	days := since.Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Exp(-days/p.cfg.RecencyDecayDays) * p.cfg.RecencyWeight
}
