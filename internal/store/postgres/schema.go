package postgres

// Schema creates the documents and activities tables. Every statement is
// idempotent so it can run on each start.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id             TEXT PRIMARY KEY,
		title          TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		content        TEXT NOT NULL DEFAULT '',
		category       TEXT NOT NULL DEFAULT '',
		tags           TEXT[] NOT NULL DEFAULT '{}',
		owner_id       TEXT NOT NULL,
		view_count     BIGINT NOT NULL DEFAULT 0,
		download_count BIGINT NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		search_vector  TSVECTOR GENERATED ALWAYS AS (
			setweight(to_tsvector('english', coalesce(title, '')), 'A') ||
			setweight(to_tsvector('english', coalesce(description, '')), 'B') ||
			setweight(to_tsvector('english', coalesce(content, '')), 'C')
		) STORED
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_search ON documents USING GIN (search_vector)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_category ON documents (category)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents (owner_id)`,
	`CREATE TABLE IF NOT EXISTS activities (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		document_id      TEXT,
		activity_type    TEXT NOT NULL,
		occurred_at      TIMESTAMPTZ NOT NULL,
		search_query     TEXT,
		duration_seconds BIGINT NOT NULL DEFAULT 0,
		device_info      TEXT,
		ip_address       TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activities_user_type_time
		ON activities (user_id, activity_type, occurred_at DESC)`,
}
