package sqlite

// Schema creates the tables and indexes the store depends on. It is
// idempotent (IF NOT EXISTS throughout) so opening an existing database is
// safe. Tags are normalized into their own table rather than a JSON
// column so search_by_tag and get_all_tags can use an index instead of a
// full scan.
const Schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
	content_hash    TEXT PRIMARY KEY,
	content         TEXT NOT NULL,
	memory_type     TEXT NOT NULL DEFAULT '',
	metadata_json   TEXT NOT NULL DEFAULT '{}',
	embedding       BLOB,
	embedding_dim   INTEGER NOT NULL DEFAULT 0,
	created_at      REAL NOT NULL,
	updated_at      REAL NOT NULL,
	created_at_iso  TEXT NOT NULL,
	updated_at_iso  TEXT NOT NULL,
	archived_at     REAL
);

CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_memory_type ON memories(memory_type);
CREATE INDEX IF NOT EXISTS idx_memories_archived_at ON memories(archived_at);

CREATE TABLE IF NOT EXISTS memory_tags (
	content_hash TEXT NOT NULL REFERENCES memories(content_hash) ON DELETE CASCADE,
	tag          TEXT NOT NULL,
	PRIMARY KEY (content_hash, tag)
);

CREATE INDEX IF NOT EXISTS idx_memory_tags_tag ON memory_tags(tag);

CREATE TABLE IF NOT EXISTS associations (
	hash_a        TEXT NOT NULL,
	hash_b        TEXT NOT NULL,
	strength      REAL NOT NULL,
	discovered_at REAL NOT NULL,
	PRIMARY KEY (hash_a, hash_b)
);

CREATE TABLE IF NOT EXISTS clusters (
	id            TEXT PRIMARY KEY,
	member_hashes TEXT NOT NULL,
	centroid      BLOB,
	theme         TEXT NOT NULL DEFAULT '',
	created_at    REAL NOT NULL
);
`
