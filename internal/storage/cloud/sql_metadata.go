package cloud

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	_ "github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// sqlMetadata is the authoritative relational store backing the cloud
// backend: every memory's metadata row lives here first, independent of
// whether the vector index write that accompanies it succeeds.
type sqlMetadata struct {
	db                *sql.DB
	pgvectorAvailable bool
	dimension         int
}

func newSQLMetadata(dsn string, dimension int) (*sqlMetadata, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, storage.Wrap(storage.KindMisconfigured, "open postgres dsn", "", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		return nil, storage.Wrap(storage.KindIO, "ping postgres", "", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, storage.Wrap(storage.KindIO, "apply cloud sql schema", "", err)
	}

	m := &sqlMetadata{db: db, dimension: dimension}
	m.pgvectorAvailable = m.ensureVectorColumn(dimension) == nil
	return m, nil
}

// ensureVectorColumn best-effort creates the pgvector extension and the
// embedding_vec column. A managed Postgres instance without the pgvector
// extension installed simply runs without the secondary vector column;
// the Weaviate index remains the primary search path either way.
func (m *sqlMetadata) ensureVectorColumn(dimension int) error {
	if _, err := m.db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		log.Printf("cloud: pgvector extension unavailable, embedding_vec column disabled: %v", err)
		return err
	}
	stmt := fmt.Sprintf(`ALTER TABLE memories ADD COLUMN IF NOT EXISTS embedding_vec vector(%d)`, dimension)
	if _, err := m.db.Exec(stmt); err != nil {
		log.Printf("cloud: failed to add embedding_vec column: %v", err)
		return err
	}
	return nil
}

func (m *sqlMetadata) close() error { return m.db.Close() }

// upsertMetadata writes the memory row with ON CONFLICT DO NOTHING
// semantics, matching §4.D's duplicate-is-success-not-failure contract.
// When embedding is non-nil and pgvector is available, it is written
// alongside the metadata row as a fallback search path.
func (m *sqlMetadata) upsertMetadata(ctx context.Context, mem *types.Memory, contentRef string) (bool, error) {
	metaJSON, err := json.Marshal(mem.Metadata)
	if err != nil {
		return false, storage.Wrap(storage.KindInvalidInput, "marshal metadata", mem.ContentHash, err)
	}

	content := mem.Content
	if contentRef != "" {
		content = ""
	}

	var res sql.Result
	if m.pgvectorAvailable && len(mem.Embedding) > 0 {
		vec := pgvector.NewVector(mem.Embedding)
		res, err = m.db.ExecContext(ctx, `
			INSERT INTO memories (content_hash, content, content_ref, memory_type, metadata_json, created_at, updated_at, created_at_iso, updated_at_iso, embedding_vec)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (content_hash) DO NOTHING`,
			mem.ContentHash, content, contentRef, mem.MemoryType, metaJSON,
			mem.CreatedAt, mem.UpdatedAt, mem.CreatedAtISO, mem.UpdatedAtISO, vec)
	} else {
		res, err = m.db.ExecContext(ctx, `
			INSERT INTO memories (content_hash, content, content_ref, memory_type, metadata_json, created_at, updated_at, created_at_iso, updated_at_iso)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (content_hash) DO NOTHING`,
			mem.ContentHash, content, contentRef, mem.MemoryType, metaJSON,
			mem.CreatedAt, mem.UpdatedAt, mem.CreatedAtISO, mem.UpdatedAtISO)
	}
	if err != nil {
		return false, storage.Wrap(storage.KindIO, "insert memory row", mem.ContentHash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storage.Wrap(storage.KindIO, "rows affected", mem.ContentHash, err)
	}
	if n == 0 {
		return false, nil
	}

	for _, tag := range mem.Tags {
		if _, err := m.db.ExecContext(ctx, `
			INSERT INTO memory_tags (content_hash, tag) VALUES ($1,$2)
			ON CONFLICT DO NOTHING`, mem.ContentHash, tag); err != nil {
			return false, storage.Wrap(storage.KindIO, "insert memory tag", mem.ContentHash, err)
		}
	}
	return true, nil
}

func (m *sqlMetadata) markVectorMissing(ctx context.Context, contentHash string, missing bool) error {
	_, err := m.db.ExecContext(ctx, `UPDATE memories SET vector_missing=$2 WHERE content_hash=$1`, contentHash, missing)
	if err != nil {
		return storage.Wrap(storage.KindIO, "mark vector_missing", contentHash, err)
	}
	return nil
}

func (m *sqlMetadata) listVectorMissing(ctx context.Context, limit int) ([]*types.Memory, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT content_hash, content, content_ref, memory_type, metadata_json, created_at, updated_at, created_at_iso, updated_at_iso
		FROM memories WHERE vector_missing = TRUE AND archived_at IS NULL LIMIT $1`, limit)
	if err != nil {
		return nil, storage.Wrap(storage.KindIO, "list vector_missing", "", err)
	}
	defer rows.Close()
	mems, _, err := m.scanRows(ctx, rows)
	return mems, err
}

// get returns the memory and its content-ref (empty when content is
// stored inline). Callers needing overflowed content resolve the ref
// against the object store themselves.
func (m *sqlMetadata) get(ctx context.Context, contentHash string) (*types.Memory, string, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT content_hash, content, content_ref, memory_type, metadata_json, created_at, updated_at, created_at_iso, updated_at_iso
		FROM memories WHERE content_hash=$1 AND archived_at IS NULL`, contentHash)
	mem, ref, err := scanMemoryRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, "", storage.NotFound("memory not found", contentHash)
		}
		return nil, "", storage.Wrap(storage.KindIO, "get memory", contentHash, err)
	}
	if err := m.attachTags(ctx, []*types.Memory{mem}); err != nil {
		return nil, "", err
	}
	return mem, ref, nil
}

func (m *sqlMetadata) delete(ctx context.Context, contentHash string) error {
	res, err := m.db.ExecContext(ctx, `DELETE FROM memories WHERE content_hash=$1`, contentHash)
	if err != nil {
		return storage.Wrap(storage.KindIO, "delete memory", contentHash, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return storage.NotFound("memory not found", contentHash)
	}
	return nil
}

// searchByTag mirrors the embedded backend's tag search: match=any uses a
// DISTINCT content_hash over an IN list, match=all requires the tag count
// per hash to equal len(tags). Results are sorted by updated_at descending.
func (m *sqlMetadata) searchByTag(ctx context.Context, tags []string, mode storage.TagMatchMode) ([]*types.Memory, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	placeholders := make([]any, len(tags))
	inClause := ""
	for i, t := range tags {
		placeholders[i] = t
		if i > 0 {
			inClause += ","
		}
		inClause += fmt.Sprintf("$%d", i+1)
	}

	var query string
	if mode == storage.MatchAll {
		query = fmt.Sprintf(`
			SELECT m.content_hash, m.content, m.content_ref, m.memory_type, m.metadata_json, m.created_at, m.updated_at, m.created_at_iso, m.updated_at_iso
			FROM memories m
			JOIN memory_tags t ON t.content_hash = m.content_hash
			WHERE t.tag IN (%s) AND m.archived_at IS NULL
			GROUP BY m.content_hash, m.content, m.content_ref, m.memory_type, m.metadata_json, m.created_at, m.updated_at, m.created_at_iso, m.updated_at_iso
			HAVING COUNT(DISTINCT t.tag) = %d
			ORDER BY m.updated_at DESC`, inClause, len(tags))
	} else {
		query = fmt.Sprintf(`
			SELECT DISTINCT m.content_hash, m.content, m.content_ref, m.memory_type, m.metadata_json, m.created_at, m.updated_at, m.created_at_iso, m.updated_at_iso
			FROM memories m
			JOIN memory_tags t ON t.content_hash = m.content_hash
			WHERE t.tag IN (%s) AND m.archived_at IS NULL
			ORDER BY m.updated_at DESC`, inClause)
	}

	rows, err := m.db.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return nil, storage.Wrap(storage.KindIO, "search by tag", "", err)
	}
	defer rows.Close()
	mems, _, err := m.scanRows(ctx, rows)
	return mems, err
}

func (m *sqlMetadata) deleteByTag(ctx context.Context, tag string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT content_hash FROM memory_tags WHERE tag=$1`, tag)
	if err != nil {
		return nil, storage.Wrap(storage.KindIO, "select by tag", tag, err)
	}
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return nil, storage.Wrap(storage.KindIO, "scan tag hash", tag, err)
		}
		hashes = append(hashes, h)
	}
	rows.Close()

	for _, h := range hashes {
		if _, err := m.db.ExecContext(ctx, `DELETE FROM memories WHERE content_hash=$1`, h); err != nil {
			return nil, storage.Wrap(storage.KindIO, "delete memory by tag", h, err)
		}
	}
	return hashes, nil
}

func (m *sqlMetadata) updateMetadata(ctx context.Context, contentHash string, updates types.Metadata, preserveTimestamps bool, nowSec float64, nowISO string) error {
	existing, _, err := m.get(ctx, contentHash)
	if err != nil {
		return err
	}
	merged := existing.Metadata
	if merged == nil {
		merged = types.Metadata{}
	}
	for k, v := range updates {
		merged[k] = v
	}
	metaJSON, err := json.Marshal(merged)
	if err != nil {
		return storage.Wrap(storage.KindInvalidInput, "marshal metadata", contentHash, err)
	}

	if preserveTimestamps {
		_, err = m.db.ExecContext(ctx, `UPDATE memories SET metadata_json=$2 WHERE content_hash=$1`, contentHash, metaJSON)
	} else {
		_, err = m.db.ExecContext(ctx, `UPDATE memories SET metadata_json=$2, updated_at=$3, updated_at_iso=$4 WHERE content_hash=$1`,
			contentHash, metaJSON, nowSec, nowISO)
	}
	if err != nil {
		return storage.Wrap(storage.KindIO, "update metadata", contentHash, err)
	}
	return nil
}

// setArchived sets or clears the archived_at column directly, independent
// of the metadata_json blob — the column every other query here filters on.
func (m *sqlMetadata) setArchived(ctx context.Context, contentHash string, archivedAt *float64) error {
	res, err := m.db.ExecContext(ctx, `UPDATE memories SET archived_at=$2 WHERE content_hash=$1`, contentHash, archivedAt)
	if err != nil {
		return storage.Wrap(storage.KindIO, "set archived_at", contentHash, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return storage.NotFound("no memory with this content hash", contentHash)
	}
	return nil
}

// getArchivedBefore returns every memory archived at or before cutoff.
func (m *sqlMetadata) getArchivedBefore(ctx context.Context, cutoff float64) ([]*types.Memory, map[string]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT content_hash, content, content_ref, memory_type, metadata_json, created_at, updated_at, created_at_iso, updated_at_iso
		FROM memories WHERE archived_at IS NOT NULL AND archived_at <= $1`, cutoff)
	if err != nil {
		return nil, nil, storage.Wrap(storage.KindIO, "get archived before", "", err)
	}
	defer rows.Close()
	return m.scanRows(ctx, rows)
}

func (m *sqlMetadata) getAllTags(ctx context.Context) ([]storage.TagCount, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT t.tag, COUNT(*) FROM memory_tags t
		JOIN memories m ON m.content_hash = t.content_hash
		WHERE m.archived_at IS NULL
		GROUP BY t.tag ORDER BY t.tag ASC`)
	if err != nil {
		return nil, storage.Wrap(storage.KindIO, "get all tags", "", err)
	}
	defer rows.Close()
	var out []storage.TagCount
	for rows.Next() {
		var tc storage.TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, storage.Wrap(storage.KindIO, "scan tag count", "", err)
		}
		out = append(out, tc)
	}
	return out, nil
}

func (m *sqlMetadata) getRecent(ctx context.Context, n int) ([]*types.Memory, map[string]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT content_hash, content, content_ref, memory_type, metadata_json, created_at, updated_at, created_at_iso, updated_at_iso
		FROM memories WHERE archived_at IS NULL ORDER BY created_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, nil, storage.Wrap(storage.KindIO, "get recent", "", err)
	}
	defer rows.Close()
	return m.scanRows(ctx, rows)
}

func (m *sqlMetadata) listAllActive(ctx context.Context) ([]*types.Memory, map[string]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT content_hash, content, content_ref, memory_type, metadata_json, created_at, updated_at, created_at_iso, updated_at_iso
		FROM memories WHERE archived_at IS NULL`)
	if err != nil {
		return nil, nil, storage.Wrap(storage.KindIO, "list active", "", err)
	}
	defer rows.Close()
	return m.scanRows(ctx, rows)
}

func (m *sqlMetadata) listByWindow(ctx context.Context, start, end float64) ([]*types.Memory, map[string]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT content_hash, content, content_ref, memory_type, metadata_json, created_at, updated_at, created_at_iso, updated_at_iso
		FROM memories WHERE archived_at IS NULL AND created_at BETWEEN $1 AND $2 ORDER BY created_at DESC`, start, end)
	if err != nil {
		return nil, nil, storage.Wrap(storage.KindIO, "list by window", "", err)
	}
	defer rows.Close()
	return m.scanRows(ctx, rows)
}

func (m *sqlMetadata) stats(ctx context.Context) (storage.Stats, error) {
	var s storage.Stats
	row := m.db.QueryRowContext(ctx, `SELECT COUNT(*), MIN(created_at), MAX(created_at) FROM memories WHERE archived_at IS NULL`)
	var oldest, newest sql.NullFloat64
	if err := row.Scan(&s.TotalMemories, &oldest, &newest); err != nil {
		return s, storage.Wrap(storage.KindIO, "stats totals", "", err)
	}
	s.OldestCreatedAt = oldest.Float64
	s.NewestCreatedAt = newest.Float64

	rows, err := m.db.QueryContext(ctx, `SELECT memory_type, COUNT(*) FROM memories WHERE archived_at IS NULL GROUP BY memory_type`)
	if err != nil {
		return s, storage.Wrap(storage.KindIO, "stats by type", "", err)
	}
	defer rows.Close()
	s.ByMemoryType = map[string]int{}
	for rows.Next() {
		var t string
		var c int
		if err := rows.Scan(&t, &c); err != nil {
			return s, storage.Wrap(storage.KindIO, "scan stats row", "", err)
		}
		s.ByMemoryType[t] = c
	}

	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT tag) FROM memory_tags`).Scan(&s.TotalTags); err != nil {
		return s, storage.Wrap(storage.KindIO, "stats tag count", "", err)
	}
	return s, nil
}

func (m *sqlMetadata) attachTags(ctx context.Context, mems []*types.Memory) error {
	for _, mem := range mems {
		rows, err := m.db.QueryContext(ctx, `SELECT tag FROM memory_tags WHERE content_hash=$1 ORDER BY tag`, mem.ContentHash)
		if err != nil {
			return storage.Wrap(storage.KindIO, "attach tags", mem.ContentHash, err)
		}
		var tags []string
		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err != nil {
				rows.Close()
				return storage.Wrap(storage.KindIO, "scan tag", mem.ContentHash, err)
			}
			tags = append(tags, t)
		}
		rows.Close()
		mem.Tags = tags
	}
	return nil
}

// scanRows scans every row and returns the memories alongside a
// content_hash -> content_ref map for any row whose content overflowed
// into the object store (ref non-empty).
func (m *sqlMetadata) scanRows(ctx context.Context, rows *sql.Rows) ([]*types.Memory, map[string]string, error) {
	var out []*types.Memory
	refs := map[string]string{}
	for rows.Next() {
		mem, ref, err := scanMemoryRow(rows)
		if err != nil {
			return nil, nil, storage.Wrap(storage.KindIO, "scan memory row", "", err)
		}
		if ref != "" {
			refs[mem.ContentHash] = ref
		}
		out = append(out, mem)
	}
	if err := m.attachTags(ctx, out); err != nil {
		return nil, nil, err
	}
	return out, refs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanMemoryRow scans the nine metadata columns shared by every select
// above, returning the content-ref column separately so callers can
// resolve overflowed content against the object store.
func scanMemoryRow(r rowScanner) (*types.Memory, string, error) {
	var mem types.Memory
	var metaJSON []byte
	var contentRef string
	if err := r.Scan(&mem.ContentHash, &mem.Content, &contentRef, &mem.MemoryType, &metaJSON,
		&mem.CreatedAt, &mem.UpdatedAt, &mem.CreatedAtISO, &mem.UpdatedAtISO); err != nil {
		return nil, "", err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &mem.Metadata); err != nil {
			return nil, "", err
		}
	}
	return &mem, contentRef, nil
}
