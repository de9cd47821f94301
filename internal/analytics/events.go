// Package analytics collects recommendation and search events, ships them
// over Kafka and aggregates them into dashboard statistics.
package analytics

import "time"

type EventType string

const (
	EventRecommendation EventType = "recommendation"
	EventSearch         EventType = "search"
)

// Event describes one served suggestion list or search. User ids are not
// recorded.
type Event struct {
	Type      EventType `json:"type"`
	Tier      string    `json:"tier,omitempty"`
	Degraded  bool      `json:"degraded"`
	Cached    bool      `json:"cached,omitempty"`
	Query     string    `json:"query,omitempty"`
	SortBy    string    `json:"sort_by,omitempty"`
	Returned  int       `json:"returned"`
	// Personalized is set for searches re-ranked by the user's history.
	Personalized bool      `json:"personalized,omitempty"`
	LatencyMs    int64     `json:"latency_ms"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}

// Sink accepts events without blocking the caller.
type Sink interface {
	Track(event Event)
}
