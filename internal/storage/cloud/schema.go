// Package cloud implements the SPEC_FULL.md §4.F cloud backend: a
// managed vector index (Weaviate), a relational metadata service
// (Postgres, authoritative), and an optional object store for oversized
// content, wired together with a background reconciler.
package cloud

// Schema is the relational metadata schema. It mirrors the embedded
// sqlite backend's logical model (memories + tags) trimmed to what the
// cloud backend's SQL service needs, plus a vector_missing flag the
// reconciler watches. The embedding_vec column (pgvector) is added
// separately by ensureVectorColumn since it needs a dimension and the
// pgvector extension may not be installed.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	content_hash    TEXT PRIMARY KEY,
	content         TEXT NOT NULL,
	content_ref     TEXT NOT NULL DEFAULT '',
	memory_type     TEXT NOT NULL DEFAULT '',
	metadata_json   JSONB NOT NULL DEFAULT '{}',
	created_at      DOUBLE PRECISION NOT NULL,
	updated_at      DOUBLE PRECISION NOT NULL,
	created_at_iso  TEXT NOT NULL,
	updated_at_iso  TEXT NOT NULL,
	archived_at     DOUBLE PRECISION,
	vector_missing  BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_cloud_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_cloud_memories_memory_type ON memories(memory_type);
CREATE INDEX IF NOT EXISTS idx_cloud_memories_vector_missing ON memories(vector_missing) WHERE vector_missing;

CREATE TABLE IF NOT EXISTS memory_tags (
	content_hash TEXT NOT NULL REFERENCES memories(content_hash) ON DELETE CASCADE,
	tag          TEXT NOT NULL,
	PRIMARY KEY (content_hash, tag)
);

CREATE INDEX IF NOT EXISTS idx_cloud_memory_tags_tag ON memory_tags(tag);
`
