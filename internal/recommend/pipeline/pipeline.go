// Package pipeline produces per-user document suggestions by falling through
// three tiers: content similarity to the most recently viewed document, the
// user's preferred categories, and overall popularity. Each tier runs at most
// once and only when the previous one produced nothing.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/activity"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/tracing"
)

// ActivityReader reads the activity log.
type ActivityReader interface {
	// FindRecent returns up to limit records for the user, newest first. An
	// empty type matches every type.
	FindRecent(ctx context.Context, userID string, t activity.Type, limit int) ([]activity.Record, error)
	// DistinctDocumentCategories returns the categories of every document the
	// user has viewed.
	DistinctDocumentCategories(ctx context.Context, userID string) ([]string, error)
}

// DocumentReader reads document snapshots.
type DocumentReader interface {
	FindCandidates(ctx context.Context, excludeUserID string, excludeIDs []string) ([]document.Candidate, error)
	FindByIDs(ctx context.Context, ids []string) ([]document.Candidate, error)
}

// Ranker scores a pool against a target document.
type Ranker interface {
	Rank(target document.Candidate, pool []document.Candidate) []document.Scored
}

// Observer is told how each call ended.
type Observer interface {
	RecordRecommendation(tier string, degraded bool, elapsed time.Duration)
}

// Tier names the stage that produced a result.
type Tier string

const (
	TierNone       Tier = "none"
	TierContent    Tier = "content"
	TierCategory   Tier = "category"
	TierPopularity Tier = "popularity"
)

// Category tier ordering weights. The recency term is in milliseconds since
// the epoch, so it dominates the view term for any realistic counts.
const (
	categoryViewWeight    = 0.7
	categoryRecencyWeight = 0.3
)

// Result is the outcome of one Recommend call.
type Result struct {
	Documents []document.Scored `json:"documents"`
	Tier      Tier              `json:"tier"`
	// Degraded is set when the deadline cut the pipeline short.
	Degraded bool `json:"degraded"`
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	activities  ActivityReader
	documents   DocumentReader
	ranker      Ranker
	observer    Observer
	limit       int
	recentViews int
	deadline    time.Duration
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLimit sets the number of documents returned by the fallback tiers.
func WithLimit(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.limit = n
		}
	}
}

// WithRecentViews sets how many recent views are read.
func WithRecentViews(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.recentViews = n
		}
	}
}

// WithDeadline bounds every call in addition to the caller's context.
func WithDeadline(d time.Duration) Option {
	return func(p *Pipeline) { p.deadline = d }
}

// WithObserver reports tier outcomes, typically to metrics.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// New creates a Pipeline.
func New(activities ActivityReader, documents DocumentReader, ranker Ranker, opts ...Option) *Pipeline {
	p := &Pipeline{
		activities:  activities,
		documents:   documents,
		ranker:      ranker,
		limit:       5,
		recentViews: 5,
		logger:      slog.Default().With("component", "recommend-pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Recommend returns suggestions for userID. Store failures are reported as
// ErrRecommendationUnavailable. Running out of time is not an error: the
// result is either the popularity tier over the candidates already fetched,
// or empty, with Degraded set.
func (p *Pipeline) Recommend(ctx context.Context, userID string) (res Result, err error) {
	start := time.Now()
	if p.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.deadline)
		defer cancel()
	}
	ctx, span := tracing.StartChildSpan(ctx, "recommend")
	defer func() {
		span.SetAttr("tier", string(res.Tier))
		span.SetAttr("degraded", res.Degraded)
		span.SetAttr("results", len(res.Documents))
		span.End()
		if err == nil && p.observer != nil {
			p.observer.RecordRecommendation(string(res.Tier), res.Degraded, time.Since(start))
		}
	}()

	recent, candidates, err := p.fetch(ctx, userID)
	if err != nil {
		if ctx.Err() != nil {
			p.logger.Warn("recommendation deadline exceeded during fetch", "user_id", userID, "error", err)
			return p.degraded(candidates, ""), nil
		}
		return Result{}, apperrors.Unavailable("fetching activity and candidates", err)
	}
	if len(candidates) == 0 {
		return Result{Documents: []document.Scored{}, Tier: TierNone}, nil
	}

	recentIDs := viewedIDs(recent)
	var targetID string

	if len(recentIDs) > 0 {
		_, s := tracing.StartChildSpan(ctx, "tier.content")
		docs, tid, err := p.contentTier(ctx, recentIDs, candidates)
		s.SetAttr("results", len(docs))
		s.End()
		targetID = tid
		if err != nil {
			if ctx.Err() != nil {
				return p.degraded(candidates, recentIDs[0]), nil
			}
			return Result{}, apperrors.Unavailable("loading recently viewed documents", err)
		}
		if len(docs) > 0 {
			return Result{Documents: docs, Tier: TierContent}, nil
		}

		_, s = tracing.StartChildSpan(ctx, "tier.category")
		docs, err = p.categoryTier(ctx, userID, candidates, targetID)
		s.SetAttr("results", len(docs))
		s.End()
		if err != nil {
			if ctx.Err() != nil {
				return p.degraded(candidates, targetID), nil
			}
			return Result{}, apperrors.Unavailable("loading preferred categories", err)
		}
		if len(docs) > 0 {
			return Result{Documents: docs, Tier: TierCategory}, nil
		}
	}

	_, s := tracing.StartChildSpan(ctx, "tier.popularity")
	docs := p.popularityTier(candidates, targetID)
	s.SetAttr("results", len(docs))
	s.End()
	return Result{Documents: docs, Tier: TierPopularity, Degraded: ctx.Err() != nil}, nil
}

func (p *Pipeline) fetch(ctx context.Context, userID string) ([]activity.Record, []document.Candidate, error) {
	var (
		recent     []activity.Record
		candidates []document.Candidate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		recent, err = p.activities.FindRecent(gctx, userID, activity.TypeView, p.recentViews)
		return err
	})
	g.Go(func() error {
		var err error
		candidates, err = p.documents.FindCandidates(gctx, userID, nil)
		return err
	})
	err := g.Wait()
	return recent, candidates, err
}

// contentTier ranks candidates against the most recent viewed document that
// still exists. Every recently viewed document is left out of the pool.
func (p *Pipeline) contentTier(ctx context.Context, recentIDs []string, candidates []document.Candidate) ([]document.Scored, string, error) {
	found, err := p.documents.FindByIDs(ctx, recentIDs)
	if err != nil {
		return nil, "", err
	}
	byID := make(map[string]document.Candidate, len(found))
	for _, d := range found {
		byID[d.ID] = d
	}
	var (
		target document.Candidate
		ok     bool
	)
	for _, id := range recentIDs {
		if target, ok = byID[id]; ok {
			break
		}
	}
	if !ok {
		return nil, "", nil
	}

	exclude := make(map[string]struct{}, len(recentIDs)+1)
	for _, id := range recentIDs {
		exclude[id] = struct{}{}
	}
	exclude[target.ID] = struct{}{}
	pool := make([]document.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, skip := exclude[c.ID]; !skip {
			pool = append(pool, c)
		}
	}
	return p.ranker.Rank(target, pool), target.ID, nil
}

func (p *Pipeline) categoryTier(ctx context.Context, userID string, candidates []document.Candidate, targetID string) ([]document.Scored, error) {
	categories, err := p.activities.DistinctDocumentCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	preferred := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		if c != "" {
			preferred[c] = struct{}{}
		}
	}
	if len(preferred) == 0 {
		return nil, nil
	}

	matched := make([]document.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == targetID {
			continue
		}
		if _, ok := preferred[c.Category]; ok {
			matched = append(matched, c)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return categoryKey(matched[i]) > categoryKey(matched[j])
	})
	return p.unranked(matched), nil
}

func categoryKey(c document.Candidate) float64 {
	views := float64(c.ViewCount)
	created := float64(c.CreatedAt.UnixMilli())
	return views*categoryViewWeight + created*categoryRecencyWeight
}

func (p *Pipeline) popularityTier(candidates []document.Candidate, targetID string) []document.Scored {
	eligible := make([]document.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ID != targetID {
			eligible = append(eligible, c)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].ViewCount > eligible[j].ViewCount
	})
	return p.unranked(eligible)
}

// degraded is returned when the deadline expires. It falls back to
// popularity when the candidate pool is already in memory.
func (p *Pipeline) degraded(candidates []document.Candidate, targetID string) Result {
	if len(candidates) == 0 {
		return Result{Documents: []document.Scored{}, Tier: TierNone, Degraded: true}
	}
	return Result{Documents: p.popularityTier(candidates, targetID), Tier: TierPopularity, Degraded: true}
}

func (p *Pipeline) unranked(docs []document.Candidate) []document.Scored {
	if len(docs) > p.limit {
		docs = docs[:p.limit]
	}
	out := make([]document.Scored, len(docs))
	for i, d := range docs {
		out[i] = document.Scored{Candidate: d}
	}
	return out
}

// viewedIDs returns distinct document ids, newest view first.
func viewedIDs(recent []activity.Record) []string {
	sorted := append([]activity.Record(nil), recent...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	seen := make(map[string]struct{}, len(sorted))
	ids := make([]string, 0, len(sorted))
	for _, r := range sorted {
		if r.DocumentID == "" {
			continue
		}
		if _, ok := seen[r.DocumentID]; ok {
			continue
		}
		seen[r.DocumentID] = struct{}{}
		ids = append(ids, r.DocumentID)
	}
	return ids
}

// IsUnavailable reports whether err came from a store failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, apperrors.ErrRecommendationUnavailable)
}
