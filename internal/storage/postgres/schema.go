package postgres

// Schema is the base PostgreSQL schema. Statements are idempotent so the
// schema can be applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	message_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role       TEXT NOT NULL DEFAULT 'user',
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_messages_session_created
	ON messages(session_id, created_at DESC);

CREATE TABLE IF NOT EXISTS message_embeddings (
	message_id TEXT PRIMARY KEY REFERENCES messages(id) ON DELETE CASCADE,
	embedding  BYTEA NOT NULL,
	dimension  INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS entities (
	id                 TEXT PRIMARY KEY,
	session_id         TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	type               TEXT NOT NULL,
	value              TEXT NOT NULL,
	confidence         DOUBLE PRECISION NOT NULL DEFAULT 0,
	mention_count      INTEGER NOT NULL DEFAULT 1,
	first_mentioned_at TIMESTAMPTZ NOT NULL,
	last_mentioned_at  TIMESTAMPTZ NOT NULL,
	metadata           JSONB,
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
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	source_message_id TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_context_session_type
	ON context_entries(session_id, type);
`

// MigrationPgvector adds the vector column used for indexed similarity
// search. Applied only when the pgvector extension is present.
const MigrationPgvector = `
ALTER TABLE message_embeddings
	ADD COLUMN IF NOT EXISTS embedding_vec vector;
`
