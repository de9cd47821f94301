// Package postgres implements store.Store on PostgreSQL through sqlx and
// lib/pq. Full-text search uses a generated tsvector column ranked with
// ts_rank. Every call passes through a retry policy and circuit breaker.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/activity"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/pkg/resilience"
)

var _ store.Store = (*Store)(nil)

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	db     *sqlx.DB
	policy resilience.Policy
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPolicy replaces the default retry and breaker policy.
func WithPolicy(p resilience.Policy) Option {
	return func(s *Store) { s.policy = p }
}

// New wraps an open sqlx handle.
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{
		db: db,
		policy: resilience.Policy{
			Name:    "postgres-store",
			Breaker: resilience.NewCircuitBreaker("postgres-store", resilience.CircuitBreakerConfig{}),
			Retry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond, MaxDelay: 500 * time.Millisecond},
		},
		logger: slog.Default().With("component", "postgres-store"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.policy.Retry.Retryable == nil {
		s.policy.Retry.Retryable = retryable
	}
	return s
}

// retryable skips errors a second attempt cannot fix.
func retryable(err error) bool {
	var timeout *resilience.TimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, apperrors.ErrInvalidInput):
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// class 08 is connection exceptions, 40 is transaction rollback, 53 is
		// insufficient resources and 57 operator intervention.
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return true
		}
		return false
	}
	return true
}

type docRow struct {
	document.Candidate
	Tags pq.StringArray `db:"tags"`
}

func (r docRow) candidate() document.Candidate {
	c := r.Candidate
	c.Tags = []string(r.Tags)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return c
}

func toCandidates(rows []docRow) []document.Candidate {
	out := make([]document.Candidate, len(rows))
	for i, r := range rows {
		out[i] = r.candidate()
	}
	return out
}

func (s *Store) unavailable(op string, err error) error {
	var timeout *resilience.TimeoutError
	if !errors.As(err, &timeout) && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	s.logger.Error("store call failed", "op", op, "error", err)
	return fmt.Errorf("%s: %w", op, errors.Join(apperrors.ErrStoreUnavailable, err))
}

const activityColumns = `id, user_id, COALESCE(document_id, '') AS document_id, activity_type,
	occurred_at, COALESCE(search_query, '') AS search_query, duration_seconds,
	COALESCE(device_info, '') AS device_info, COALESCE(ip_address, '') AS ip_address`

func (s *Store) FindRecent(ctx context.Context, userID string, t activity.Type, limit int) ([]activity.Record, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	out, err := resilience.Do(ctx, s.policy, func(ctx context.Context) ([]activity.Record, error) {
		var recs []activity.Record
		err := s.db.SelectContext(ctx, &recs, `SELECT `+activityColumns+` FROM activities
			WHERE user_id = $1 AND ($2 = '' OR activity_type = $2)
			ORDER BY occurred_at DESC, id DESC LIMIT $3`, userID, string(t), lim)
		return recs, err
	})
	if err != nil {
		return nil, s.unavailable("find recent activity", err)
	}
	if out == nil {
		out = []activity.Record{}
	}
	return out, nil
}

func (s *Store) DistinctDocumentCategories(ctx context.Context, userID string) ([]string, error) {
	out, err := resilience.Do(ctx, s.policy, func(ctx context.Context) ([]string, error) {
		var cats []string
		err := s.db.SelectContext(ctx, &cats, `SELECT DISTINCT d.category FROM activities a
			JOIN documents d ON d.id = a.document_id
			WHERE a.user_id = $1 AND a.activity_type = 'view' AND d.category <> ''
			ORDER BY d.category`, userID)
		return cats, err
	})
	if err != nil {
		return nil, s.unavailable("distinct document categories", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (s *Store) FindCandidates(ctx context.Context, excludeUserID string, excludeIDs []string) ([]document.Candidate, error) {
	if excludeIDs == nil {
		excludeIDs = []string{}
	}
	rows, err := resilience.Do(ctx, s.policy, func(ctx context.Context) ([]docRow, error) {
		var rows []docRow
		err := s.db.SelectContext(ctx, &rows, `SELECT `+documentColumns+`, 0::float8 AS text_score
			FROM documents WHERE owner_id <> $1 AND NOT (id = ANY($2))
			ORDER BY created_at, id`, excludeUserID, pq.Array(excludeIDs))
		return rows, err
	})
	if err != nil {
		return nil, s.unavailable("find candidates", err)
	}
	return toCandidates(rows), nil
}

// FindByIDs returns the documents in the order of ids, skipping unknown and
// repeated ids.
func (s *Store) FindByIDs(ctx context.Context, ids []string) ([]document.Candidate, error) {
	if len(ids) == 0 {
		return []document.Candidate{}, nil
	}
	rows, err := resilience.Do(ctx, s.policy, func(ctx context.Context) ([]docRow, error) {
		var rows []docRow
		err := s.db.SelectContext(ctx, &rows, `SELECT `+documentColumns+`, 0::float8 AS text_score
			FROM documents WHERE id = ANY($1)`, pq.Array(ids))
		return rows, err
	})
	if err != nil {
		return nil, s.unavailable("find documents by id", err)
	}
	byID := make(map[string]document.Candidate, len(rows))
	for _, r := range rows {
		byID[r.ID] = r.candidate()
	}
	out := make([]document.Candidate, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
			delete(byID, id)
		}
	}
	return out, nil
}

func (s *Store) Search(ctx context.Context, q document.SearchQuery) ([]document.Candidate, error) {
	query, args, ok := buildSearch(q)
	if !ok {
		return []document.Candidate{}, nil
	}
	rows, err := resilience.Do(ctx, s.policy, func(ctx context.Context) ([]docRow, error) {
		var rows []docRow
		err := s.db.SelectContext(ctx, &rows, query, args...)
		return rows, err
	})
	if err != nil {
		return nil, s.unavailable("search documents", err)
	}
	return toCandidates(rows), nil
}

func (s *Store) Categories(ctx context.Context) ([]string, error) {
	out, err := resilience.Do(ctx, s.policy, func(ctx context.Context) ([]string, error) {
		var cats []string
		err := s.db.SelectContext(ctx, &cats, `SELECT DISTINCT category FROM documents
			WHERE category <> '' ORDER BY category`)
		return cats, err
	})
	if err != nil {
		return nil, s.unavailable("list categories", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// Append inserts r and bumps the document counter in one transaction. A
// record with an existing id is ignored.
func (s *Store) Append(ctx context.Context, r activity.Record) error {
	_, err := resilience.Do(ctx, s.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.appendTx(ctx, r)
	})
	if err != nil {
		return s.unavailable("append activity", err)
	}
	return nil
}

func (s *Store) appendTx(ctx context.Context, r activity.Record) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.NamedExecContext(ctx, `INSERT INTO activities
		(id, user_id, document_id, activity_type, occurred_at, search_query, duration_seconds, device_info, ip_address)
		VALUES (:id, :user_id, NULLIF(:document_id, ''), :activity_type, :occurred_at,
			NULLIF(:search_query, ''), :duration_seconds, NULLIF(:device_info, ''), NULLIF(:ip_address, ''))
		ON CONFLICT (id) DO NOTHING`, r)
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tx.Commit()
	}
	var column string
	switch r.Type {
	case activity.TypeView:
		column = "view_count"
	case activity.TypeDownload:
		column = "download_count"
	}
	if column != "" && r.DocumentID != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET `+column+` = `+column+` + 1 WHERE id = $1`, r.DocumentID); err != nil {
			return fmt.Errorf("bumping %s: %w", column, err)
		}
	}
	return tx.Commit()
}

// PutDocument inserts or replaces a document. Counters in d overwrite the
// stored values.
func (s *Store) PutDocument(ctx context.Context, d document.Candidate) error {
	if d.ID == "" {
		return fmt.Errorf("document id: %w", apperrors.ErrInvalidInput)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	row := docRow{Candidate: d, Tags: pq.StringArray(d.Tags)}
	if row.Tags == nil {
		row.Tags = pq.StringArray{}
	}
	_, err := resilience.Do(ctx, s.policy, func(ctx context.Context) (sql.Result, error) {
		return s.db.NamedExecContext(ctx, `INSERT INTO documents
			(id, title, description, content, category, tags, owner_id, view_count, download_count, created_at)
			VALUES (:id, :title, :description, :content, :category, :tags, :owner_id, :view_count, :download_count, :created_at)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title, description = EXCLUDED.description, content = EXCLUDED.content,
				category = EXCLUDED.category, tags = EXCLUDED.tags, owner_id = EXCLUDED.owner_id,
				view_count = EXCLUDED.view_count, download_count = EXCLUDED.download_count,
				created_at = EXCLUDED.created_at`, row)
	})
	if err != nil {
		return s.unavailable("put document", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// BreakerState exposes the circuit state for health checks.
func (s *Store) BreakerState() string {
	if s.policy.Breaker == nil {
		return "disabled"
	}
	return s.policy.Breaker.State()
}
