// Package mcp implements the Model Context Protocol (MCP) server for Memento.
// It provides JSON-RPC 2.0 based tools for storing, retrieving, and searching memories.
package mcp

import (
	"encoding/json"
	"strings"

	"github.com/scrypster/memento/internal/consolidation"
	"github.com/scrypster/memento/pkg/types"
)

// tagsOrCSV accepts a JSON array of tags or, for MCP clients that send
// array fields as a JSON-encoded string ("[\"a\",\"b\"]") or a bare
// comma-separated string, normalizes either form to a []string.
func tagsOrCSV(raw json.RawMessage) []string {
	if raw == nil {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err == nil {
		return tags
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		_ = json.Unmarshal([]byte(s), &tags)
		return tags
	}
	if s == "" {
		return nil
	}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// StoreMemoryArgs contains arguments for the store_memory tool.
type StoreMemoryArgs struct {
	Content    string                 `json:"content"`               // Memory content (required)
	Tags       []string               `json:"tags,omitempty"`        // User-defined tags
	MemoryType string                 `json:"memory_type,omitempty"` // e.g. "standard", "critical", "reference", "temporary"
	Metadata   map[string]interface{} `json:"metadata,omitempty"`    // Flat scalar metadata
	CreatedBy  string                 `json:"created_by,omitempty"`  // Stored as metadata["source"] when set
}

// UnmarshalJSON accepts tags as a proper array or, for clients that can't
// send one, a JSON-encoded/comma-separated string.
func (a *StoreMemoryArgs) UnmarshalJSON(data []byte) error {
	type Alias StoreMemoryArgs
	aux := &struct {
		Tags json.RawMessage `json:"tags,omitempty"`
		*Alias
	}{Alias: (*Alias)(a)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	a.Tags = tagsOrCSV(aux.Tags)
	return nil
}

// StoreMemoryResult contains the result of storing a memory.
type StoreMemoryResult struct {
	ContentHash string `json:"content_hash"`
	Stored      bool   `json:"stored"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

// ScoredMemoryOut is a Memory paired with its composite relevance score,
// the shape retrieve_memory and recall_memory return results in.
type ScoredMemoryOut struct {
	Memory types.Memory `json:"memory"`
	Score  float64      `json:"score"`
}

// RetrieveMemoryArgs contains arguments for the retrieve_memory tool: pure
// similarity search against query.
type RetrieveMemoryArgs struct {
	Query string `json:"query"`         // Search text (required)
	N     int    `json:"n,omitempty"`   // Max results (default 10)
}

// RetrieveMemoryResult contains the result of retrieve_memory.
type RetrieveMemoryResult struct {
	Memories []ScoredMemoryOut `json:"memories"`
	Total    int               `json:"total"`
}

// RecallMemoryArgs contains arguments for the recall_memory tool: the
// composite query planner (optional text, optional tag filter, optional
// time window). All fields empty is equivalent to get_recent(limit).
type RecallMemoryArgs struct {
	Query         string   `json:"query,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	MatchAllTags  bool     `json:"match_all_tags,omitempty"`
	MemoryType    string   `json:"memory_type,omitempty"`
	CreatedAfter  string   `json:"created_after,omitempty"`  // RFC-3339
	CreatedBefore string   `json:"created_before,omitempty"` // RFC-3339
	Limit         int      `json:"limit,omitempty"`
	MinScore      float64  `json:"min_score,omitempty"`
}

func (a *RecallMemoryArgs) UnmarshalJSON(data []byte) error {
	type Alias RecallMemoryArgs
	aux := &struct {
		Tags json.RawMessage `json:"tags,omitempty"`
		*Alias
	}{Alias: (*Alias)(a)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	a.Tags = tagsOrCSV(aux.Tags)
	return nil
}

// RecallMemoryResult contains the result of recall_memory.
type RecallMemoryResult struct {
	Memories []ScoredMemoryOut `json:"memories"`
	Total    int               `json:"total"`
}

// SearchByTagArgs contains arguments for the search_by_tag tool.
type SearchByTagArgs struct {
	Tags  []string `json:"tags"`            // required, non-empty
	Match string   `json:"match,omitempty"` // "any" (default) or "all"
}

func (a *SearchByTagArgs) UnmarshalJSON(data []byte) error {
	type Alias SearchByTagArgs
	aux := &struct {
		Tags json.RawMessage `json:"tags,omitempty"`
		*Alias
	}{Alias: (*Alias)(a)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	a.Tags = tagsOrCSV(aux.Tags)
	return nil
}

// SearchByTagResult contains the result of search_by_tag.
type SearchByTagResult struct {
	Memories []types.Memory `json:"memories"`
	Total    int            `json:"total"`
}

// DeleteMemoryArgs contains arguments for the delete_memory tool.
type DeleteMemoryArgs struct {
	ContentHash string `json:"content_hash"` // required
}

// DeleteMemoryResult contains the result of delete_memory.
type DeleteMemoryResult struct {
	Deleted bool `json:"deleted"`
}

// DeleteByTagArgs contains arguments for the delete_by_tag tool.
type DeleteByTagArgs struct {
	Tag string `json:"tag"` // required
}

// DeleteByTagResult contains the result of delete_by_tag.
type DeleteByTagResult struct {
	Count int `json:"count"`
}

// DeleteByTagsArgs contains arguments for the delete_by_tags tool.
type DeleteByTagsArgs struct {
	Tags []string `json:"tags"` // required, non-empty
}

func (a *DeleteByTagsArgs) UnmarshalJSON(data []byte) error {
	type Alias DeleteByTagsArgs
	aux := &struct {
		Tags json.RawMessage `json:"tags,omitempty"`
		*Alias
	}{Alias: (*Alias)(a)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	a.Tags = tagsOrCSV(aux.Tags)
	return nil
}

// DeleteByTagsResult contains the result of delete_by_tags.
type DeleteByTagsResult struct {
	Count int `json:"count"`
}

// UpdateMemoryMetadataArgs contains arguments for the
// update_memory_metadata tool.
type UpdateMemoryMetadataArgs struct {
	ContentHash        string                 `json:"content_hash"` // required
	Updates            map[string]interface{} `json:"updates"`      // required, flat scalars only
	PreserveTimestamps bool                   `json:"preserve_timestamps,omitempty"`
}

// UpdateMemoryMetadataResult contains the result of
// update_memory_metadata.
type UpdateMemoryMetadataResult struct {
	Updated bool `json:"updated"`
}

// CheckDatabaseHealthResult contains the result of check_database_health.
type CheckDatabaseHealthResult struct {
	Healthy       bool   `json:"healthy"`
	Backend       string `json:"backend"`
	Detail        string `json:"detail"`
	CheckedAt     string `json:"checked_at"` // RFC-3339
	TotalMemories int    `json:"total_memories"`
	TotalTags     int    `json:"total_tags"`
	StorageBytes  int64  `json:"storage_bytes"`
}

// CleanupDuplicatesResult contains the result of cleanup_duplicates.
type CleanupDuplicatesResult struct {
	Merged int `json:"merged"`
}

// BackupInfoOut is a single entry in list_backups' response.
type BackupInfoOut struct {
	Name           string `json:"name"`
	Timestamp      string `json:"timestamp"`
	SourceDatabase string `json:"source_database"`
	SizeBytes      int64  `json:"size_bytes"`
	Backend        string `json:"backend"`
}

// ListBackupsResult contains the result of list_backups.
type ListBackupsResult struct {
	Backups []BackupInfoOut `json:"backups"`
}

// CreateBackupResult contains the result of create_backup.
type CreateBackupResult struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	SizeBytes  int64  `json:"size_bytes"`
	DurationMS int64  `json:"duration_ms"`
	Verified   bool   `json:"verified"`
}

// OptimizeDBResult contains the result of optimize_db.
type OptimizeDBResult struct {
	Message string `json:"message"`
}

// ExportMemoriesArgs contains arguments for the export_memories tool.
type ExportMemoriesArgs struct {
	Path  string `json:"path"`            // destination file path (required)
	Limit int    `json:"limit,omitempty"` // 0 means export every active memory
}

// ExportMemoriesResult contains the result of export_memories.
type ExportMemoriesResult struct {
	Path          string `json:"path"`
	TotalMemories int    `json:"total_memories"`
}

// ImportMemoriesArgs contains arguments for the import_memories tool.
type ImportMemoriesArgs struct {
	Path string `json:"path"` // source file path (required), spec §6 export schema
}

// ImportMemoriesResult contains the result of import_memories.
type ImportMemoriesResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"` // duplicates, already present by content_hash
	Errors   int `json:"errors"`
}

// StageResultOut mirrors consolidation.StageResult for JSON export.
type StageResultOut struct {
	Stage     string `json:"stage"`
	Processed int    `json:"processed"`
	Produced  int    `json:"produced"`
	Error     string `json:"error,omitempty"`
}

func stageResultsOut(stages []consolidation.StageResult) []StageResultOut {
	out := make([]StageResultOut, len(stages))
	for i, s := range stages {
		o := StageResultOut{Stage: s.Stage, Processed: s.Processed, Produced: s.Produced}
		if s.Err != nil {
			o.Error = s.Err.Error()
		}
		out[i] = o
	}
	return out
}

// RunConsolidationResult contains the result of run_consolidation.
type RunConsolidationResult struct {
	Stages    []StageResultOut `json:"stages"`
	ElapsedMS int64            `json:"elapsed_ms"`
}

// ScheduleConsolidationResult contains the result of
// schedule_consolidation.
type ScheduleConsolidationResult struct {
	Running bool   `json:"running"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// JSON-RPC 2.0 envelope
// ---------------------------------------------------------------------------

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"` // Must be "2.0"
	Method  string      `json:"method"`  // Method name
	Params  interface{} `json:"params"`  // Method parameters
	ID      interface{} `json:"id"`      // Request ID (string, number, or null)
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`          // Must be "2.0"
	Result  interface{}   `json:"result,omitempty"` // Result (if successful)
	Error   *JSONRPCError `json:"error,omitempty"`  // Error (if failed)
	ID      interface{}   `json:"id"`               // Request ID
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int         `json:"code"`           // Error code
	Message string      `json:"message"`        // Error message
	Data    interface{} `json:"data,omitempty"` // Additional error data
}

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrCodeServerError    = -32000 // Server error
)

// ---------------------------------------------------------------------------
// Standard MCP protocol types (initialize / tools/list / tools/call)
// ---------------------------------------------------------------------------

// MCPInitializeParams holds the parameters sent by an MCP client in the
// initialize request.
type MCPInitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
	ClientInfo      MCPClientInfo          `json:"clientInfo"`
}

// MCPClientInfo identifies the connecting MCP client.
type MCPClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerInfo identifies this MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via the MCP tools/list endpoint.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the response to the tools/list request.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters sent in a tools/call request.
type MCPToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text" for now
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}
