package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"runtime"
	"time"

	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// exporterVersion is stamped into every export's metadata so a future
// importer can recognize which document shape produced a file.
const exporterVersion = "1.0.0"

// exportMetadata is spec §6's export_metadata block.
type exportMetadata struct {
	SourceMachine   string `json:"source_machine"`
	ExportTimestamp string `json:"export_timestamp"`
	TotalMemories   int    `json:"total_memories"`
	DatabasePath    string `json:"database_path"`
	Platform        string `json:"platform"`
	ExporterVersion string `json:"exporter_version"`
}

// exportedMemory is a single entry in an export document's "memories"
// array, spec §6's exact field set.
type exportedMemory struct {
	Content      string                 `json:"content"`
	ContentHash  string                 `json:"content_hash"`
	Tags         []string               `json:"tags"`
	CreatedAt    float64                `json:"created_at"`
	UpdatedAt    float64                `json:"updated_at"`
	MemoryType   string                 `json:"memory_type"`
	Metadata     map[string]interface{} `json:"metadata"`
	ExportSource string                 `json:"export_source"`
}

// exportDocument is the full JSON document spec §6 specifies as the only
// import/export surface.
type exportDocument struct {
	ExportMetadata exportMetadata   `json:"export_metadata"`
	Memories       []exportedMemory `json:"memories"`
}

// exportMemories writes every active memory (or the first limit of them,
// newest first, when limit > 0) to path as an exportDocument.
func exportMemories(ctx context.Context, store storage.Store, path string, limit int) (int, error) {
	n := limit
	if n <= 0 {
		stats, err := store.GetStats(ctx)
		if err != nil {
			return 0, err
		}
		n = stats.TotalMemories
		if n <= 0 {
			n = 1
		}
	}
	mems, err := store.GetRecent(ctx, n)
	if err != nil {
		return 0, err
	}

	host, _ := os.Hostname()
	doc := exportDocument{
		ExportMetadata: exportMetadata{
			SourceMachine:   host,
			ExportTimestamp: time.Now().UTC().Format(time.RFC3339),
			TotalMemories:   len(mems),
			DatabasePath:    path,
			Platform:        runtime.GOOS,
			ExporterVersion: exporterVersion,
		},
		Memories: make([]exportedMemory, len(mems)),
	}
	for i, m := range mems {
		meta := m.Metadata.ToMap()
		if meta == nil {
			meta = map[string]interface{}{}
		}
		doc.Memories[i] = exportedMemory{
			Content:      m.Content,
			ContentHash:  m.ContentHash,
			Tags:         m.Tags,
			CreatedAt:    m.CreatedAt,
			UpdatedAt:    m.UpdatedAt,
			MemoryType:   m.MemoryType,
			Metadata:     meta,
			ExportSource: "memento",
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, storage.IOError("write export file", err)
	}
	return len(mems), nil
}

// importMemories reads an exportDocument from path and stores every
// memory in it, preserving the original created_at/updated_at timestamps.
// Memories already present by content hash are counted as skipped, not
// re-stored (Store's upsert-by-hash semantics would no-op them anyway;
// the distinction here is purely for the caller's reported counts).
func importMemories(ctx context.Context, store storage.Store, path string) (*ImportMemoriesResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, storage.IOError("read import file", err)
	}
	var doc exportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, storage.InvalidInput("not a valid export document: "+err.Error(), "")
	}

	result := &ImportMemoriesResult{}
	for _, em := range doc.Memories {
		meta, err := types.MetadataFromMap(em.Metadata)
		if err != nil {
			result.Errors++
			continue
		}
		mem, err := types.New(em.Content, em.Tags, em.MemoryType, meta)
		if err != nil {
			result.Errors++
			continue
		}
		if em.CreatedAt > 0 {
			mem.CreatedAt = em.CreatedAt
			mem.CreatedAtISO = types.SecondsToTime(em.CreatedAt).Format(time.RFC3339Nano)
		}
		if em.UpdatedAt > 0 {
			mem.UpdatedAt = em.UpdatedAt
			mem.UpdatedAtISO = types.SecondsToTime(em.UpdatedAt).Format(time.RFC3339Nano)
		}

		storeErr := store.Store(ctx, mem)
		var se *storage.Error
		switch {
		case storeErr == nil:
			result.Imported++
		case errors.As(storeErr, &se) && se.Kind == storage.KindDuplicate:
			result.Skipped++
		default:
			result.Errors++
		}
	}
	return result, nil
}
