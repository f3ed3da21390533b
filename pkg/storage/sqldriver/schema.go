package sqldriver

import "entgo.io/ent/dialect"

func schema(d string) []string {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	ts := "TIMESTAMP"
	real := "REAL"
	if d == dialect.Postgres {
		id = "BIGSERIAL PRIMARY KEY"
		ts = "TIMESTAMPTZ"
		real = "DOUBLE PRECISION"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS memory_facts (
			id ` + id + `,
			guild_id TEXT NOT NULL,
			channel_id TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL,
			fact TEXT NOT NULL,
			fact_type TEXT NOT NULL DEFAULT 'other',
			evidence_text TEXT NOT NULL DEFAULT '',
			source_message_id TEXT NOT NULL DEFAULT '',
			confidence ` + real + ` NOT NULL DEFAULT 0.5,
			created_at ` + ts + ` NOT NULL,
			archived_at ` + ts + `
		)`,
		`CREATE INDEX IF NOT EXISTS memory_facts_subject_idx ON memory_facts (guild_id, subject, created_at)`,
		`CREATE INDEX IF NOT EXISTS memory_facts_scope_idx ON memory_facts (guild_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS memory_messages (
			message_id TEXT PRIMARY KEY,
			guild_id TEXT NOT NULL DEFAULT '',
			channel_id TEXT NOT NULL DEFAULT '',
			author_id TEXT NOT NULL DEFAULT '',
			author_name TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS memory_messages_guild_idx ON memory_messages (guild_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS memory_actions (
			id ` + id + `,
			kind TEXT NOT NULL,
			guild_id TEXT NOT NULL DEFAULT '',
			channel_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			message_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at ` + ts + ` NOT NULL
		)`,
	}
}
