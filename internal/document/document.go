// Package document defines the read-only document snapshots the scoring code
// consumes and the scored values it produces.
package document

import (
	"math"
	"strings"
	"time"
)

// Candidate is a snapshot of a stored document taken at scoring time. It is
// passed by value and never mutated by the scoring code.
type Candidate struct {
	ID            string    `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	Description   string    `json:"description,omitempty" db:"description"`
	Content       string    `json:"content,omitempty" db:"content"`
	Category      string    `json:"category" db:"category"`
	Tags          []string  `json:"tags,omitempty" db:"-"`
	OwnerID       string    `json:"ownerId" db:"owner_id"`
	ViewCount     int64     `json:"viewCount" db:"view_count"`
	DownloadCount int64     `json:"downloadCount" db:"download_count"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	// TextScore is the full-text relevance assigned by the search backend.
	// Zero means the backend did not supply one.
	TextScore float64 `json:"textScore,omitempty" db:"text_score"`
}

// Text returns the first non-empty of content, description and title.
func (c Candidate) Text() string {
	for _, s := range []string{c.Content, c.Description, c.Title} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Scored is a candidate annotated with its ranking result.
type Scored struct {
	Candidate
	// Score is the raw composite score before rounding.
	Score float64 `json:"score"`
	// RelevanceScore is Score scaled to 0..100 and rounded for display.
	RelevanceScore float64 `json:"relevanceScore"`
	// ContentSimilarity is the unweighted text similarity as a rounded percentage.
	ContentSimilarity float64 `json:"contentSimilarity"`
}

// Unscored wraps candidates without changing their order, using the text
// score (or 1 when absent) as the relevance.
func Unscored(cs []Candidate) []Scored {
	out := make([]Scored, len(cs))
	for i, c := range cs {
		base := c.TextScore
		if base <= 0 {
			base = 1
		}
		out[i] = Scored{Candidate: c, Score: base, RelevanceScore: math.Round(base * 100)}
	}
	return out
}

// IDs returns the ids of cs in order.
func IDs(cs []Candidate) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}
