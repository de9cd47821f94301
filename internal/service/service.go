// Package service is the entry point the HTTP layer calls: suggestions,
// personalized search, search suggestions, categories and activity
// tracking.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/activity"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/recommend/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/tracing"
)

// StandardCategories is served when the store cannot list categories and is
// merged into the store's list otherwise.
var StandardCategories = []string{
	"Accounting",
	"Administration",
	"Customer Service",
	"Engineering",
	"Finance",
	"Human Resources",
	"Information Technology",
	"Legal",
	"Marketing",
	"Operations",
	"Product Management",
	"Research & Development",
	"Sales",
	"Technical Documentation",
	"Uncategorized",
}

// Store is the read side the service needs beyond the pipeline.
type Store interface {
	FindRecent(ctx context.Context, userID string, t activity.Type, limit int) ([]activity.Record, error)
	Search(ctx context.Context, q document.SearchQuery) ([]document.Candidate, error)
	Categories(ctx context.Context) ([]string, error)
}

type Recommender interface {
	Recommend(ctx context.Context, userID string) (pipeline.Result, error)
}

type Personalizer interface {
	Personalize(ctx context.Context, results []document.Candidate, userID, rawQuery string) ([]document.Scored, error)
}

// SearchObserver is told how each search ended.
type SearchObserver interface {
	RecordSearch(outcome string, results int)
}

// Search outcomes reported to the SearchObserver.
const (
	OutcomePersonalized = "personalized"
	OutcomePlain        = "plain"
	OutcomeDegraded     = "degraded"
	OutcomeError        = "error"
)

const (
	maxSearchQueryLen = 500
	maxDeviceInfoLen  = 512
)

type Config struct {
	MaxResults        int
	SuggestionLimit   int
	SuggestionHistory int
}

func DefaultConfig() Config {
	return Config{MaxResults: 20, SuggestionLimit: 5, SuggestionHistory: 20}
}

// SearchResult is the outcome of SearchAndRank.
type SearchResult struct {
	Documents []document.Scored `json:"documents"`
	// Personalized is set when the results were re-ranked by the user's
	// history.
	Personalized bool `json:"personalized"`
	// Degraded is set when personalization failed and the plain full-text
	// order was served instead.
	Degraded bool `json:"degraded"`
}

type Service struct {
	store        Store
	recommender  Recommender
	personalizer Personalizer
	appender     activity.Appender
	observer     SearchObserver
	cfg          Config
	now          func() time.Time
	logger       *slog.Logger
}

type Option func(*Service)

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		if cfg.MaxResults > 0 {
			s.cfg.MaxResults = cfg.MaxResults
		}
		if cfg.SuggestionLimit > 0 {
			s.cfg.SuggestionLimit = cfg.SuggestionLimit
		}
		if cfg.SuggestionHistory > 0 {
			s.cfg.SuggestionHistory = cfg.SuggestionHistory
		}
	}
}

func WithSearchObserver(o SearchObserver) Option {
	return func(s *Service) { s.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service. appender receives tracked activities; it is either
// the store itself or a Kafka-backed activity.Publisher.
func New(store Store, recommender Recommender, personalizer Personalizer, appender activity.Appender, opts ...Option) *Service {
	s := &Service{
		store:        store,
		recommender:  recommender,
		personalizer: personalizer,
		appender:     appender,
		cfg:          DefaultConfig(),
		now:          time.Now,
		logger:       slog.Default().With("component", "recommend-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Suggestions is one suggestion list together with the fallback tier that
// produced it.
type Suggestions struct {
	Documents []document.Scored
	Tier      pipeline.Tier
	Degraded  bool
}

func (s *Service) recommend(ctx context.Context, userID string) (Suggestions, error) {
	if strings.TrimSpace(userID) == "" {
		return Suggestions{}, fmt.Errorf("user id: %w", apperrors.ErrInvalidInput)
	}
	res, err := s.recommender.Recommend(ctx, userID)
	if err != nil {
		return Suggestions{}, err
	}
	docs := res.Documents
	if docs == nil {
		docs = []document.Scored{}
	}
	return Suggestions{Documents: docs, Tier: res.Tier, Degraded: res.Degraded}, nil
}

// GetPersonalizedSuggestions returns at most five suggested documents.
func (s *Service) GetPersonalizedSuggestions(ctx context.Context, userID string) (Suggestions, error) {
	return s.recommend(ctx, userID)
}

// GetDocumentSuggestions is the dashboard widget's name for
// GetPersonalizedSuggestions.
func (s *Service) GetDocumentSuggestions(ctx context.Context, userID string) (Suggestions, error) {
	return s.GetPersonalizedSuggestions(ctx, userID)
}

// SearchAndRank records the search, runs the full-text query and, when
// sorting by relevance, re-ranks the hits with the user's history. A
// personalization failure is not an error: the plain order is returned with
// Degraded set.
func (s *Service) SearchAndRank(ctx context.Context, query string, filters document.Filters, userID string) (SearchResult, error) {
	ctx, span := tracing.StartChildSpan(ctx, "search")
	defer span.End()
	log := logger.FromContext(ctx)

	filters, err := filters.Normalize()
	if err != nil {
		return SearchResult{}, err
	}
	query = strings.TrimSpace(query)
	if query != "" && userID != "" {
		s.trackSearch(ctx, userID, query)
	}

	q := document.SearchQuery{
		Text:    query,
		Filters: filters,
		Since:   filters.DateRange.Since(s.now()),
		Limit:   s.cfg.MaxResults,
	}
	hits, err := s.store.Search(ctx, q)
	if err != nil {
		s.observe(OutcomeError, 0)
		return SearchResult{}, apperrors.Unavailable("searching documents", err)
	}
	span.SetAttr("hits", len(hits))

	if filters.SortBy != document.SortRelevance || userID == "" || len(hits) == 0 {
		s.observe(OutcomePlain, len(hits))
		return SearchResult{Documents: document.Unscored(hits)}, nil
	}

	ranked, err := s.personalizer.Personalize(ctx, hits, userID, query)
	if err != nil {
		log.Warn("personalization failed, serving full-text order",
			"user_id", userID,
			"query", query,
			"error", err,
		)
		span.SetAttr("degraded", true)
		s.observe(OutcomeDegraded, len(ranked))
		return SearchResult{Documents: ranked, Degraded: true}, nil
	}
	s.observe(OutcomePersonalized, len(ranked))
	return SearchResult{Documents: ranked, Personalized: true}, nil
}

// SearchSuggestions returns up to five distinct past queries of the user
// containing partial, newest first. Lookup failures yield no suggestions.
func (s *Service) SearchSuggestions(ctx context.Context, partial, userID string) ([]string, error) {
	out := []string{}
	if userID == "" {
		return out, nil
	}
	recent, err := s.store.FindRecent(ctx, userID, activity.TypeSearch, s.cfg.SuggestionHistory)
	if err != nil {
		logger.FromContext(ctx).Warn("loading search history for suggestions failed",
			"user_id", userID,
			"error", err,
		)
		return out, nil
	}
	needle := strings.ToLower(strings.TrimSpace(partial))
	seen := make(map[string]struct{}, len(recent))
	for _, r := range recent {
		if r.SearchQuery == "" || !strings.Contains(strings.ToLower(r.SearchQuery), needle) {
			continue
		}
		if _, dup := seen[r.SearchQuery]; dup {
			continue
		}
		seen[r.SearchQuery] = struct{}{}
		out = append(out, r.SearchQuery)
		if len(out) == s.cfg.SuggestionLimit {
			break
		}
	}
	return out, nil
}

// Categories returns the standard categories merged with the store's,
// sorted. When the store fails the standard list is returned alone.
func (s *Service) Categories(ctx context.Context) []string {
	stored, err := s.store.Categories(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("listing categories failed, serving defaults", "error", err)
		return append([]string(nil), StandardCategories...)
	}
	seen := make(map[string]struct{}, len(StandardCategories)+len(stored))
	out := make([]string, 0, len(StandardCategories)+len(stored))
	for _, list := range [][]string{StandardCategories, stored} {
		for _, c := range list {
			if c == "" {
				continue
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Track validates r, fills in client details from ctx and appends it to the
// activity log.
func (s *Service) Track(ctx context.Context, r activity.Record) (activity.Record, error) {
	client := ClientFrom(ctx)
	if r.DeviceInfo == "" {
		r.DeviceInfo = truncate(client.UserAgent, maxDeviceInfoLen)
	}
	if r.IPAddress == "" {
		r.IPAddress = client.IP
	}
	r, err := activity.Prepare(r, s.now())
	if err != nil {
		return activity.Record{}, err
	}
	if err := s.appender.Append(ctx, r); err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			return activity.Record{}, err
		}
		return activity.Record{}, fmt.Errorf("appending activity: %w: %w", apperrors.ErrStoreUnavailable, err)
	}
	return r, nil
}

func (s *Service) trackSearch(ctx context.Context, userID, query string) {
	_, err := s.Track(ctx, activity.Record{
		UserID:      userID,
		Type:        activity.TypeSearch,
		SearchQuery: truncate(query, maxSearchQueryLen),
	})
	if err != nil {
		logger.FromContext(ctx).Warn("recording search activity failed",
			"user_id", userID,
			"error", err,
		)
	}
}

func (s *Service) observe(outcome string, n int) {
	if s.observer != nil {
		s.observer.RecordSearch(outcome, n)
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
