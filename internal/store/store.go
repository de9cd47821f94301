// Package store names the persistence contract shared by the PostgreSQL and
// in-memory backends.
package store

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/activity"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/document"
)

// Store is implemented by every backend.
type Store interface {
	// FindRecent returns up to limit activity records for the user, newest
	// first. An empty type matches every type.
	FindRecent(ctx context.Context, userID string, t activity.Type, limit int) ([]activity.Record, error)
	// DistinctDocumentCategories returns the non-empty categories of every
	// document the user has viewed, sorted.
	DistinctDocumentCategories(ctx context.Context, userID string) ([]string, error)
	// FindCandidates returns every document not owned by excludeUserID and
	// not listed in excludeIDs.
	FindCandidates(ctx context.Context, excludeUserID string, excludeIDs []string) ([]document.Candidate, error)
	FindByIDs(ctx context.Context, ids []string) ([]document.Candidate, error)
	// Search runs the full-text primitive with filters and ordering.
	Search(ctx context.Context, q document.SearchQuery) ([]document.Candidate, error)
	// Categories returns the distinct non-empty document categories.
	Categories(ctx context.Context) ([]string, error)
	// Append adds an activity record and bumps the document's view or
	// download counter for those activity types.
	Append(ctx context.Context, r activity.Record) error
	Ping(ctx context.Context) error
	Close() error
}

// DefaultSearchLimit is used when a query does not set one.
const DefaultSearchLimit = 20
