// Package activity defines the append-only user activity log: record types,
// validation, and the two append paths (direct to a store, or batched through
// Kafka and applied by a consumer).
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type is the kind of interaction a record describes.
type Type string

const (
	TypeView     Type = "view"
	TypeDownload Type = "download"
	TypeSearch   Type = "search"
	TypeEdit     Type = "edit"
)

// Record is one immutable entry in the activity log. DocumentID is empty for
// search activities that did not target a document.
type Record struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"userId" db:"user_id" validate:"required,max=128"`
	DocumentID  string    `json:"documentId,omitempty" db:"document_id" validate:"required_unless=Type search,max=128"`
	Type        Type      `json:"activityType" db:"activity_type" validate:"required,oneof=view download search edit"`
	Timestamp   time.Time `json:"timestamp" db:"occurred_at"`
	SearchQuery string    `json:"searchQuery,omitempty" db:"search_query" validate:"required_if=Type search,max=500"`
	// Duration is the time spent on the document, in seconds.
	Duration   int64  `json:"duration,omitempty" db:"duration_seconds" validate:"gte=0"`
	DeviceInfo string `json:"deviceInfo,omitempty" db:"device_info" validate:"max=512"`
	IPAddress  string `json:"ipAddress,omitempty" db:"ip_address" validate:"omitempty,ip"`
}

// Appender appends records to the activity log.
type Appender interface {
	Append(ctx context.Context, r Record) error
}

// Prepare assigns an id and timestamp when missing and validates the record.
func Prepare(r Record, now time.Time) (Record, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now.UTC()
	}
	if err := Validate(r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// MostRecentByDocument returns, for every document referenced in records, the
// timestamp of its latest interaction and the number of view records.
func MostRecentByDocument(records []Record) (latest map[string]time.Time, views map[string]int) {
	latest = make(map[string]time.Time)
	views = make(map[string]int)
	for _, r := range records {
		if r.DocumentID == "" {
			continue
		}
		if t, ok := latest[r.DocumentID]; !ok || r.Timestamp.After(t) {
			latest[r.DocumentID] = r.Timestamp
		}
		if r.Type == TypeView {
			views[r.DocumentID]++
		}
	}
	return latest, views
}
