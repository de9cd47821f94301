// Package memory is an in-process implementation of store.Store backed by
// maps and the textindex full-text index. It serves local development,
// tests and single-node demos.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/activity"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/search/textindex"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/errors"
)

// Ensure Store implements the interface.
var _ store.Store = (*Store)(nil)

// Store keeps documents and activities in memory. Documents are returned in
// insertion order unless a query asks otherwise.
type Store struct {
	mu         sync.RWMutex
	docs       map[string]document.Candidate
	order      []string
	activities []activity.Record
	index      *textindex.Index
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		docs:  make(map[string]document.Candidate),
		index: textindex.New(),
	}
}

// PutDocument inserts or replaces a document.
func (s *Store) PutDocument(_ context.Context, d document.Candidate) error {
	if d.ID == "" {
		return fmt.Errorf("document id: %w", apperrors.ErrInvalidInput)
	}
	d.Tags = append([]string(nil), d.Tags...)
	d.TextScore = 0
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[d.ID]; !ok {
		s.order = append(s.order, d.ID)
	}
	s.docs[d.ID] = d
	s.index.Add(d.ID, strings.Join([]string{d.Title, d.Description, d.Content, strings.Join(d.Tags, " ")}, " "))
	return nil
}

// Append stores r and bumps view/download counters.
func (s *Store) Append(_ context.Context, r activity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, r)
	if d, ok := s.docs[r.DocumentID]; ok {
		switch r.Type {
		case activity.TypeView:
			d.ViewCount++
		case activity.TypeDownload:
			d.DownloadCount++
		}
		s.docs[r.DocumentID] = d
	}
	return nil
}

func (s *Store) FindRecent(_ context.Context, userID string, t activity.Type, limit int) ([]activity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]activity.Record, 0)
	for _, r := range s.activities {
		if r.UserID == userID && (t == "" || r.Type == t) {
			out = append(out, r)
		}
	}
	// newest first; for equal timestamps the later append wins
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DistinctDocumentCategories(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, r := range s.activities {
		if r.UserID != userID || r.Type != activity.TypeView {
			continue
		}
		if d, ok := s.docs[r.DocumentID]; ok && d.Category != "" {
			seen[d.Category] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func (s *Store) FindCandidates(_ context.Context, excludeUserID string, excludeIDs []string) ([]document.Candidate, error) {
	skip := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		skip[id] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]document.Candidate, 0, len(s.order))
	for _, id := range s.order {
		d := s.docs[id]
		if d.OwnerID == excludeUserID {
			continue
		}
		if _, ok := skip[id]; ok {
			continue
		}
		out = append(out, cloneDoc(d))
	}
	return out, nil
}

func (s *Store) FindByIDs(_ context.Context, ids []string) ([]document.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]document.Candidate, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if d, ok := s.docs[id]; ok {
			out = append(out, cloneDoc(d))
		}
	}
	return out, nil
}

// Search matches q.Text against the full-text index. An empty text lists
// every document passing the filters, newest first under relevance order.
func (s *Store) Search(_ context.Context, q document.SearchQuery) ([]document.Candidate, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = store.DefaultSearchLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []document.Candidate
	sortBy := q.Filters.SortBy
	if strings.TrimSpace(q.Text) == "" {
		out = make([]document.Candidate, 0, len(s.order))
		for _, id := range s.order {
			if d := s.docs[id]; q.Matches(d) {
				out = append(out, cloneDoc(d))
			}
		}
		if sortBy == "" || sortBy == document.SortRelevance {
			sortBy = document.SortNewest
		}
	} else {
		parsed := textindex.Parse(q.Text)
		hits := s.index.Search(parsed, func(id string) bool {
			d, ok := s.docs[id]
			return ok && q.Matches(d)
		}, 0)
		out = make([]document.Candidate, 0, len(hits))
		for _, h := range hits {
			d := cloneDoc(s.docs[h.DocID])
			d.TextScore = h.Score
			out = append(out, d)
		}
	}
	sortCandidates(out, sortBy)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Categories(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, d := range s.docs {
		if d.Category != "" {
			seen[d.Category] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Seed is the on-disk format read by LoadSeed.
type Seed struct {
	Documents  []document.Candidate `json:"documents"`
	Activities []activity.Record    `json:"activities"`
}

// LoadSeed reads a JSON seed file into the store. Activities are stored as
// given; counters come from the documents.
func (s *Store) LoadSeed(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed file %s: %w", path, err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	for _, d := range seed.Documents {
		if err := s.PutDocument(ctx, d); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.activities = append(s.activities, seed.Activities...)
	s.mu.Unlock()
	return nil
}

// sortCandidates orders docs in place. Relevance keeps the incoming order.
func sortCandidates(docs []document.Candidate, by document.SortBy) {
	var less func(a, b document.Candidate) bool
	switch by {
	case document.SortNewest:
		less = func(a, b document.Candidate) bool { return a.CreatedAt.After(b.CreatedAt) }
	case document.SortOldest:
		less = func(a, b document.Candidate) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case document.SortMostViewed:
		less = func(a, b document.Candidate) bool { return a.ViewCount > b.ViewCount }
	case document.SortMostDownloaded:
		less = func(a, b document.Candidate) bool { return a.DownloadCount > b.DownloadCount }
	default:
		return
	}
	sort.SliceStable(docs, func(i, j int) bool { return less(docs[i], docs[j]) })
}

func cloneDoc(d document.Candidate) document.Candidate {
	d.Tags = append([]string(nil), d.Tags...)
	return d
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
