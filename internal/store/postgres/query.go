package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/search/textindex"
	"github.com/Adithya-Monish-Kumar-K/docgenius-recommender/internal/store"
)

const documentColumns = `id, title, description, content, category, tags, owner_id,
	view_count, download_count, created_at`

// tsQuery renders a parsed query as a to_tsquery('simple', ...) expression.
// Terms are prefix-matched because the index stems with the english
// dictionary while query terms carry the tokenizer's own stems.
func tsQuery(q textindex.Query) string {
	if q.Empty() {
		return ""
	}
	join := " | "
	if q.Mode == textindex.MatchAll {
		join = " & "
	}
	terms := make([]string, len(q.Terms))
	for i, t := range q.Terms {
		terms[i] = t + ":*"
	}
	out := "(" + strings.Join(terms, join) + ")"
	for _, t := range q.ExcludeTerms {
		out += " & !" + t + ":*"
	}
	return out
}

// buildSearch returns the SQL and arguments for q. ok is false when the text
// reduces to nothing searchable, in which case the result is empty.
func buildSearch(q document.SearchQuery) (query string, args []any, ok bool) {
	var where []string
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	score := "0::float8"
	hasText := strings.TrimSpace(q.Text) != ""
	if hasText {
		ts := tsQuery(textindex.Parse(q.Text))
		if ts == "" {
			return "", nil, false
		}
		p := arg(ts)
		where = append(where, "search_vector @@ to_tsquery('simple', "+p+")")
		score = "ts_rank(search_vector, to_tsquery('simple', " + p + "))::float8"
	}
	if q.Filters.Category != "" {
		where = append(where, "category = "+arg(q.Filters.Category))
	}
	if len(q.Filters.Tags) > 0 {
		where = append(where, "tags && "+arg(pq.Array(q.Filters.Tags)))
	}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= "+arg(q.Since))
	}

	var order string
	switch q.Filters.SortBy {
	case document.SortNewest:
		order = "created_at DESC, id"
	case document.SortOldest:
		order = "created_at ASC, id"
	case document.SortMostViewed:
		order = "view_count DESC, id"
	case document.SortMostDownloaded:
		order = "download_count DESC, id"
	default:
		if hasText {
			order = "text_score DESC, id"
		} else {
			order = "created_at DESC, id"
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = store.DefaultSearchLimit
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(documentColumns)
	b.WriteString(", ")
	b.WriteString(score)
	b.WriteString(" AS text_score FROM documents")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(order)
	b.WriteString(" LIMIT ")
	b.WriteString(arg(limit))
	return b.String(), args, true
}
