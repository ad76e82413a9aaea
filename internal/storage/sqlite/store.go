// Package sqlite implements the embedded SQL+vector backend (spec §4.E):
// a single-file SQLite database in WAL mode, one writer connection, and
// in-process cosine similarity search over BLOB-stored embeddings.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scrypster/memento/internal/embedding"
	"github.com/scrypster/memento/internal/planner"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// Store implements storage.Store against a single SQLite file.
type Store struct {
	db      *sql.DB
	embed   *embedding.Service
	weights planner.Weights
}

// New opens (or creates) the database at dsn, applying the same
// stale-WAL self-healing a crashed process can leave behind: if the
// initial open fails with an error pattern consistent with a stale
// -wal/-shm pair and no other process holds them, the files are removed
// and the open is retried once.
func New(dsn string, embed *embedding.Service) (*Store, error) {
	db, err := open(dsn)
	if err == nil {
		return &Store{db: db, embed: embed, weights: planner.DefaultWeights()}, nil
	}

	if !isRecoverableWALError(err) {
		return nil, storage.IOError("open sqlite database", err)
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, storage.IOError("open sqlite database", err)
	}

	removeStaleWAL(dbPath)

	db, retryErr := open(dsn)
	if retryErr != nil {
		return nil, storage.IOError("open sqlite database after WAL recovery", retryErr)
	}
	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return &Store{db: db, embed: embed, weights: planner.DefaultWeights()}, nil
}

func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports only one concurrent writer. A single open
	// connection serializes writes and avoids SQLITE_BUSY; WAL mode lets
	// readers proceed without blocking that writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

// WithWeights overrides the default planner weights used by Retrieve and
// Recall, for callers that want per-deployment tuning.
func (s *Store) WithWeights(w planner.Weights) *Store {
	s.weights = w
	return s
}

func (s *Store) Initialize(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return storage.IOError("read schema_version", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version(version) VALUES (1)"); err != nil {
			return storage.IOError("seed schema_version", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// Store persists memory, computing its embedding if not already set.
func (s *Store) Store(ctx context.Context, memory *types.Memory) error {
	if memory == nil || memory.Content == "" {
		return storage.InvalidInput("memory content is required", "")
	}
	if memory.ContentHash == "" {
		memory.ContentHash = types.ContentHash(memory.Content)
	}

	if len(memory.Embedding) == 0 {
		result, err := s.embed.Embed(ctx, memory.Content)
		if err != nil {
			return err
		}
		memory.Embedding = result.Vector
		if result.Fallback && !memory.HasTag(types.ReservedFallbackEmbeddingTag) {
			memory.Tags = types.NormalizeTags(append(memory.Tags, types.ReservedFallbackEmbeddingTag))
		}
	}

	metadataJSON, err := json.Marshal(memory.Metadata)
	if err != nil {
		return storage.InvalidInput("metadata is not serializable: "+err.Error(), memory.ContentHash)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.IOError("begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO memories (content_hash, content, memory_type, metadata_json, embedding, embedding_dim,
		                       created_at, updated_at, created_at_iso, updated_at_iso)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO NOTHING`,
		memory.ContentHash, memory.Content, memory.MemoryType, string(metadataJSON),
		serializeEmbedding(memory.Embedding), len(memory.Embedding),
		memory.CreatedAt, memory.UpdatedAt, memory.CreatedAtISO, memory.UpdatedAtISO,
	)
	if err != nil {
		return storage.IOError("insert memory", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return storage.Duplicate("a memory with this content already exists", memory.ContentHash)
	}

	for _, tag := range memory.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO memory_tags (content_hash, tag) VALUES (?, ?)`, memory.ContentHash, tag); err != nil {
			return storage.IOError("insert tag", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.IOError("commit transaction", err)
	}
	return nil
}

// activeMemoryRows scans every non-archived memory matching an optional
// extra WHERE clause and args, for the in-process similarity/filter paths.
func (s *Store) activeMemoryRows(ctx context.Context, extraWhere string, args ...interface{}) ([]*types.Memory, error) {
	query := `SELECT content_hash, content, memory_type, metadata_json, embedding, created_at, updated_at, created_at_iso, updated_at_iso
	          FROM memories WHERE archived_at IS NULL`
	if extraWhere != "" {
		query += " AND " + extraWhere
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.IOError("query memories", err)
	}
	defer rows.Close()

	var out []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, storage.IOError("scan memory row", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.IOError("iterate memory rows", err)
	}

	if err := s.attachTags(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	var (
		m        types.Memory
		metaJSON string
		embBlob  []byte
	)
	if err := row.Scan(&m.ContentHash, &m.Content, &m.MemoryType, &metaJSON, &embBlob,
		&m.CreatedAt, &m.UpdatedAt, &m.CreatedAtISO, &m.UpdatedAtISO); err != nil {
		return nil, err
	}

	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &m.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if len(embBlob) > 0 {
		vec, err := deserializeEmbedding(embBlob)
		if err != nil {
			return nil, err
		}
		m.Embedding = vec
	}
	return &m, nil
}

func (s *Store) attachTags(ctx context.Context, memories []*types.Memory) error {
	if len(memories) == 0 {
		return nil
	}
	byHash := make(map[string]*types.Memory, len(memories))
	placeholders := make([]string, len(memories))
	args := make([]interface{}, len(memories))
	for i, m := range memories {
		byHash[m.ContentHash] = m
		placeholders[i] = "?"
		args[i] = m.ContentHash
	}

	query := fmt.Sprintf(`SELECT content_hash, tag FROM memory_tags WHERE content_hash IN (%s)`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.IOError("query tags", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash, tag string
		if err := rows.Scan(&hash, &tag); err != nil {
			return storage.IOError("scan tag row", err)
		}
		if m, ok := byHash[hash]; ok {
			m.Tags = append(m.Tags, tag)
		}
	}
	for _, m := range memories {
		sort.Strings(m.Tags)
	}
	return rows.Err()
}

func (s *Store) Retrieve(ctx context.Context, query string, n int) ([]storage.ScoredMemory, error) {
	if n <= 0 {
		n = 10
	}
	result, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates, err := s.activeMemoryRows(ctx, "")
	if err != nil {
		return nil, err
	}

	now := float64(time.Now().UnixNano()) / 1e9
	scored := make([]storage.ScoredMemory, 0, len(candidates))
	for _, m := range candidates {
		sim := planner.CosineSimilarity(result.Vector, m.Embedding)
		score, _ := planner.Score(m, sim, nil, query, now, s.weights)
		scored = append(scored, storage.ScoredMemory{Memory: m, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > n {
		scored = scored[:n]
	}
	return scored, nil
}

func (s *Store) SearchByTag(ctx context.Context, tags []string, mode storage.TagMatchMode) ([]*types.Memory, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(tags))
	args := make([]interface{}, len(tags))
	for i, t := range tags {
		placeholders[i] = "?"
		args[i] = t
	}
	inClause := strings.Join(placeholders, ",")

	var query string
	if mode == storage.MatchAll {
		query = fmt.Sprintf(`
			SELECT content_hash FROM memory_tags WHERE tag IN (%s)
			GROUP BY content_hash HAVING COUNT(DISTINCT tag) = %d`, inClause, len(tags))
	} else {
		query = fmt.Sprintf(`SELECT DISTINCT content_hash FROM memory_tags WHERE tag IN (%s)`, inClause)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.IOError("query memory_tags", err)
	}
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return nil, storage.IOError("scan tag hash", err)
		}
		hashes = append(hashes, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storage.IOError("iterate tag hashes", err)
	}
	if len(hashes) == 0 {
		return nil, nil
	}

	hp := make([]string, len(hashes))
	hargs := make([]interface{}, len(hashes))
	for i, h := range hashes {
		hp[i] = "?"
		hargs[i] = h
	}
	where := fmt.Sprintf("content_hash IN (%s)", strings.Join(hp, ","))
	memories, err := s.activeMemoryRows(ctx, where, hargs...)
	if err != nil {
		return nil, err
	}
	sort.Slice(memories, func(i, j int) bool { return memories[i].UpdatedAt > memories[j].UpdatedAt })
	return memories, nil
}

func (s *Store) Recall(ctx context.Context, q storage.RecallQuery) ([]storage.ScoredMemory, error) {
	q.Normalize()

	var where []string
	var args []interface{}
	if q.MemoryType != "" {
		where = append(where, "memory_type = ?")
		args = append(args, q.MemoryType)
	}
	if q.Window != nil {
		where = append(where, "created_at BETWEEN ? AND ?")
		args = append(args, q.Window.Start, q.Window.End)
	}

	candidates, err := s.activeMemoryRows(ctx, strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, err
	}

	if len(q.Tags) > 0 {
		filtered := candidates[:0]
		for _, m := range candidates {
			var ok bool
			if q.MatchAllTags {
				ok = m.HasAllTags(q.Tags)
			} else {
				ok = m.HasAnyTag(q.Tags)
			}
			if ok {
				filtered = append(filtered, m)
			}
		}
		candidates = filtered
	}

	now := float64(time.Now().UnixNano()) / 1e9

	if q.Text != "" {
		result, err := s.embed.Embed(ctx, q.Text)
		if err != nil {
			return nil, err
		}
		scored := make([]storage.ScoredMemory, 0, len(candidates))
		for _, m := range candidates {
			sim := planner.CosineSimilarity(result.Vector, m.Embedding)
			score, _ := planner.Score(m, sim, q.Tags, q.Text, now, s.weights)
			if score < q.MinScore {
				continue
			}
			scored = append(scored, storage.ScoredMemory{Memory: m, Score: score})
		}
		sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
		if len(scored) > q.Limit {
			scored = scored[:q.Limit]
		}
		return scored, nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt > candidates[j].CreatedAt })
	if len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}
	scored := make([]storage.ScoredMemory, len(candidates))
	for i, m := range candidates {
		scored[i] = storage.ScoredMemory{Memory: m, Score: 1}
	}
	return scored, nil
}

func (s *Store) Delete(ctx context.Context, contentHash string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE content_hash = ?`, contentHash)
	if err != nil {
		return storage.IOError("delete memory", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return storage.NotFound("no memory with this content hash", contentHash)
	}
	return nil
}

func (s *Store) DeleteByTag(ctx context.Context, tag string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM memories WHERE content_hash IN (SELECT content_hash FROM memory_tags WHERE tag = ?)`, tag)
	if err != nil {
		return 0, storage.IOError("delete by tag", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *Store) DeleteByTags(ctx context.Context, tags []string, progress storage.ProgressFunc) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}

	memories, err := s.SearchByTag(ctx, tags, storage.MatchAny)
	if err != nil {
		return 0, err
	}

	total := len(memories)
	deleted := 0
	lastDecileReported := -1

	for i, m := range memories {
		if err := s.Delete(ctx, m.ContentHash); err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return deleted, err
			}
			continue
		}
		deleted++

		if progress != nil && total > 0 {
			decile := (i + 1) * 10 / total
			if decile != lastDecileReported {
				progress(i+1, total)
				lastDecileReported = decile
			}
		}
	}
	return deleted, nil
}

func (s *Store) UpdateMetadata(ctx context.Context, contentHash string, updates types.Metadata, preserveTimestamps bool) error {
	var metaJSON string
	var createdAt float64
	var createdAtISO string
	err := s.db.QueryRowContext(ctx, `SELECT metadata_json, created_at, created_at_iso FROM memories WHERE content_hash = ?`, contentHash).
		Scan(&metaJSON, &createdAt, &createdAtISO)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.NotFound("no memory with this content hash", contentHash)
	}
	if err != nil {
		return storage.IOError("read memory for metadata update", err)
	}

	current := types.Metadata{}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &current); err != nil {
			return storage.IOError("unmarshal existing metadata", err)
		}
	}
	for k, v := range updates {
		current[k] = v
	}

	merged, err := json.Marshal(current)
	if err != nil {
		return storage.InvalidInput("metadata update is not serializable: "+err.Error(), contentHash)
	}

	now := time.Now()
	if preserveTimestamps {
		_, err = s.db.ExecContext(ctx, `UPDATE memories SET metadata_json = ? WHERE content_hash = ?`, string(merged), contentHash)
	} else {
		_, err = s.db.ExecContext(ctx, `UPDATE memories SET metadata_json = ?, updated_at = ?, updated_at_iso = ? WHERE content_hash = ?`,
			string(merged), types.TimeToSeconds(now), now.UTC().Format(time.RFC3339), contentHash)
	}
	if err != nil {
		return storage.IOError("update metadata", err)
	}
	return nil
}

// SetArchived sets or clears the archived_at column directly, independent
// of the metadata_json blob. This is what actually hides a memory from
// every archived_at IS NULL read path; archiving must never be expressed
// as a metadata-only write.
func (s *Store) SetArchived(ctx context.Context, contentHash string, archivedAt *float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE memories SET archived_at = ? WHERE content_hash = ?`, archivedAt, contentHash)
	if err != nil {
		return storage.IOError("set archived_at", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return storage.NotFound("no memory with this content hash", contentHash)
	}
	return nil
}

// GetArchivedBefore returns every memory with a non-null archived_at at or
// before cutoff.
func (s *Store) GetArchivedBefore(ctx context.Context, cutoff float64) ([]*types.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content_hash, content, memory_type, metadata_json, embedding, created_at, updated_at, created_at_iso, updated_at_iso
		FROM memories WHERE archived_at IS NOT NULL AND archived_at <= ?`, cutoff)
	if err != nil {
		return nil, storage.IOError("query archived memories", err)
	}
	defer rows.Close()

	var out []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, storage.IOError("scan memory row", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.IOError("iterate memory rows", err)
	}

	if err := s.attachTags(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CleanupDuplicates recomputes content_hash from stored content for every
// row and merges any whose recomputed hash no longer matches its primary
// key (data drift from a hashing-scheme change), keeping the earliest
// created_at and the union of tags. Under normal operation, where
// content_hash is the primary key, no duplicates can exist; this guards
// against the one scenario where they can: an on-disk layout migrated
// from a pre-hash-enforcement representation.
func (s *Store) CleanupDuplicates(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT content_hash, content FROM memories`)
	if err != nil {
		return 0, storage.IOError("query memories for dedup scan", err)
	}
	type mismatch struct{ stored, recomputed string }
	var mismatches []mismatch
	for rows.Next() {
		var hash, content string
		if err := rows.Scan(&hash, &content); err != nil {
			rows.Close()
			return 0, storage.IOError("scan dedup row", err)
		}
		if recomputed := types.ContentHash(content); recomputed != hash {
			mismatches = append(mismatches, mismatch{stored: hash, recomputed: recomputed})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, storage.IOError("iterate dedup rows", err)
	}

	removed := 0
	for _, m := range mismatches {
		var exists int
		s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE content_hash = ?`, m.recomputed).Scan(&exists)
		if exists > 0 {
			if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO memory_tags (content_hash, tag)
				SELECT ?, tag FROM memory_tags WHERE content_hash = ?`, m.recomputed, m.stored); err != nil {
				continue
			}
			if _, err := s.db.ExecContext(ctx, `UPDATE memories SET
				created_at = (SELECT created_at FROM memories WHERE content_hash = ?),
				created_at_iso = (SELECT created_at_iso FROM memories WHERE content_hash = ?)
				WHERE content_hash = ? AND created_at > (SELECT created_at FROM memories WHERE content_hash = ?)`,
				m.stored, m.stored, m.recomputed, m.stored); err != nil {
				continue
			}
			if _, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE content_hash = ?`, m.stored); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

func (s *Store) GetAllTags(ctx context.Context) ([]storage.TagCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mt.tag, COUNT(*) FROM memory_tags mt
		JOIN memories m ON m.content_hash = mt.content_hash
		WHERE m.archived_at IS NULL
		GROUP BY mt.tag ORDER BY mt.tag ASC`)
	if err != nil {
		return nil, storage.IOError("query all tags", err)
	}
	defer rows.Close()

	var out []storage.TagCount
	for rows.Next() {
		var tc storage.TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, storage.IOError("scan tag count", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func (s *Store) GetRecent(ctx context.Context, n int) ([]*types.Memory, error) {
	if n <= 0 {
		n = 20
	}
	memories, err := s.activeMemoryRows(ctx, "")
	if err != nil {
		return nil, err
	}
	sort.Slice(memories, func(i, j int) bool { return memories[i].CreatedAt > memories[j].CreatedAt })
	if len(memories) > n {
		memories = memories[:n]
	}
	return memories, nil
}

func (s *Store) GetStats(ctx context.Context) (storage.Stats, error) {
	var stats storage.Stats
	stats.ByMemoryType = make(map[string]int)

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MIN(created_at), 0), COALESCE(MAX(created_at), 0)
		FROM memories WHERE archived_at IS NULL`)
	if err := row.Scan(&stats.TotalMemories, &stats.OldestCreatedAt, &stats.NewestCreatedAt); err != nil {
		return stats, storage.IOError("query stats", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_type, COUNT(*) FROM memories WHERE archived_at IS NULL GROUP BY memory_type`)
	if err != nil {
		return stats, storage.IOError("query stats by type", err)
	}
	for rows.Next() {
		var mt string
		var count int
		if err := rows.Scan(&mt, &count); err != nil {
			rows.Close()
			return stats, storage.IOError("scan stats by type", err)
		}
		stats.ByMemoryType[mt] = count
	}
	rows.Close()

	var tagCount int
	s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT tag) FROM memory_tags`).Scan(&tagCount)
	stats.TotalTags = tagCount

	var fallbackCount int
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_tags WHERE tag = ?`, types.ReservedFallbackEmbeddingTag).Scan(&fallbackCount)
	stats.FallbackEmbeddingCount = fallbackCount

	if dbPath := s.dbFilePath(); dbPath != "" {
		if info, err := os.Stat(dbPath); err == nil {
			stats.StorageBytes = info.Size()
		}
	}

	return stats, nil
}

func (s *Store) Health(ctx context.Context) storage.HealthStatus {
	now := float64(time.Now().UnixNano()) / 1e9
	if err := s.db.PingContext(ctx); err != nil {
		return storage.HealthStatus{Healthy: false, Backend: "sqlite", Detail: err.Error(), CheckedAtSec: now}
	}
	return storage.HealthStatus{Healthy: true, Backend: "sqlite", Detail: "connected", CheckedAtSec: now}
}

// Optimize runs SQLite's query-planner statistics refresh followed by a
// full VACUUM to reclaim space left behind by deletes and archiving.
func (s *Store) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return storage.IOError("pragma optimize", err)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return storage.IOError("vacuum", err)
	}
	return nil
}

func (s *Store) dbFilePath() string {
	var file string
	rows, err := s.db.Query(`PRAGMA database_list`)
	if err != nil {
		return ""
	}
	defer rows.Close()
	for rows.Next() {
		var seq int
		var name, path string
		if rows.Scan(&seq, &name, &path) == nil && name == "main" {
			file = path
		}
	}
	return file
}

// --- stale-WAL recovery, grounded on the crash-recovery pattern the
// embedded store has always used (a crashed process can leave behind a
// -wal/-shm pair that blocks the next open). ---

func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}
	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}
	return dsn
}

func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "database is locked")
}

func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"
	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	cmd := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath)
	output, err := cmd.Output()
	if err != nil {
		return true
	}
	return strings.TrimSpace(string(output)) == ""
}

func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
