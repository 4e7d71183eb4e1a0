package sqlite

// Schema is the complete SQLite schema. Statements are idempotent so the
// schema can be applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	message_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role       TEXT NOT NULL DEFAULT 'user',
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_session_created
	ON messages(session_id, created_at DESC);

CREATE TABLE IF NOT EXISTS message_embeddings (
	message_id TEXT PRIMARY KEY REFERENCES messages(id) ON DELETE CASCADE,
	embedding  BLOB NOT NULL,
	dimension  INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entities (
	id                 TEXT PRIMARY KEY,
	session_id         TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	type               TEXT NOT NULL,
	value              TEXT NOT NULL,
	confidence         REAL NOT NULL DEFAULT 0,
	mention_count      INTEGER NOT NULL DEFAULT 1,
	first_mentioned_at TIMESTAMP NOT NULL,
	last_mentioned_at  TIMESTAMP NOT NULL,
	metadata           TEXT,
	UNIQUE(session_id, type, value)
);

CREATE INDEX IF NOT EXISTS idx_entities_session_type
	ON entities(session_id, type);

CREATE TABLE IF NOT EXISTS context_entries (
	id                TEXT PRIMARY KEY,
	session_id        TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	type              TEXT NOT NULL,
	key               TEXT NOT NULL,
	value             TEXT NOT NULL,
	confidence        REAL NOT NULL DEFAULT 0,
	source_message_id TEXT,
	created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_context_session_type
	ON context_entries(session_id, type);
`
