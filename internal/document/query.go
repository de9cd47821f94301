package document

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/errors"
)

// SortBy selects the ordering of search results.
type SortBy string

const (
	SortRelevance      SortBy = "relevance"
	SortNewest         SortBy = "newest"
	SortOldest         SortBy = "oldest"
	SortMostViewed     SortBy = "mostViewed"
	SortMostDownloaded SortBy = "mostDownloaded"
)

// DateRange restricts results to documents created within a window ending now.
type DateRange string

const (
	RangeAll   DateRange = ""
	RangeToday DateRange = "today"
	RangeWeek  DateRange = "week"
	RangeMonth DateRange = "month"
	RangeYear  DateRange = "year"
)

// Filters narrows a search.
type Filters struct {
	Category  string    `json:"category,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	DateRange DateRange `json:"dateRange,omitempty"`
	SortBy    SortBy    `json:"sortBy,omitempty"`
}

// Normalize fills defaults and rejects unknown enum values.
func (f Filters) Normalize() (Filters, error) {
	if f.SortBy == "" {
		f.SortBy = SortRelevance
	}
	switch f.SortBy {
	case SortRelevance, SortNewest, SortOldest, SortMostViewed, SortMostDownloaded:
	default:
		return f, fmt.Errorf("sortBy %q: %w", f.SortBy, apperrors.ErrInvalidInput)
	}
	switch f.DateRange {
	case RangeAll, RangeToday, RangeWeek, RangeMonth, RangeYear:
	default:
		return f, fmt.Errorf("dateRange %q: %w", f.DateRange, apperrors.ErrInvalidInput)
	}
	if strings.EqualFold(f.Category, "all") {
		f.Category = ""
	}
	tags := f.Tags[:0:0]
	for _, t := range f.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	f.Tags = tags
	return f, nil
}

// Since returns the lower bound on CreatedAt for the date range, or the zero
// time when the range is unbounded. Weeks start on Sunday.
func (r DateRange) Since(now time.Time) time.Time {
	y, m, d := now.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	switch r {
	case RangeToday:
		return startOfDay
	case RangeWeek:
		return startOfDay.AddDate(0, 0, -int(now.Weekday()))
	case RangeMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	case RangeYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, now.Location())
	default:
		return time.Time{}
	}
}

// SearchQuery is what the full-text primitive executes.
type SearchQuery struct {
	Text    string
	Filters Filters
	// Since is resolved from Filters.DateRange by the caller.
	Since time.Time
	Limit int
}

// Matches reports whether c passes the non-text filters of q.
func (q SearchQuery) Matches(c Candidate) bool {
	if q.Filters.Category != "" && c.Category != q.Filters.Category {
		return false
	}
	if len(q.Filters.Tags) > 0 && !anyTag(c.Tags, q.Filters.Tags) {
		return false
	}
	if !q.Since.IsZero() && c.CreatedAt.Before(q.Since) {
		return false
	}
	return true
}

func anyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
