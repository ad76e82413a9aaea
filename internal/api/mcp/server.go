package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/memento/internal/attribution"
	"github.com/scrypster/memento/internal/backup"
	"github.com/scrypster/memento/internal/consolidation"
	"github.com/scrypster/memento/internal/health"
	"github.com/scrypster/memento/internal/notify"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// Server implements the Model Context Protocol (MCP) for Memento. It
// provides JSON-RPC 2.0 based tools for AI assistants to store, retrieve,
// and manage persistent semantic memories.
type Server struct {
	store     storage.Store
	pipeline  *consolidation.Pipeline
	reporter  *health.Reporter
	backups   *backup.BackupService
	notifier  *notify.EventWriter
	sessionID string

	mu          sync.Mutex
	scheduler   *consolidation.Scheduler
	schedCancel context.CancelFunc
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithHealthReporter injects a *health.Reporter, used by
// check_database_health and get_stats.
func WithHealthReporter(r *health.Reporter) ServerOption {
	return func(s *Server) { s.reporter = r }
}

// WithBackupService injects a *backup.BackupService, used by list_backups
// and create_backup.
func WithBackupService(b *backup.BackupService) ServerOption {
	return func(s *Server) { s.backups = b }
}

// WithNotifier injects a *notify.EventWriter so consolidation runs can
// signal completion to the HTTP/SSE layer sharing the same data directory.
func WithNotifier(n *notify.EventWriter) ServerOption {
	return func(s *Server) { s.notifier = n }
}

// NewServer creates a new MCP server instance over store, running
// consolidation through pipeline. opts may inject a health reporter, a
// backup service, and a notifier; all are optional and the corresponding
// tools degrade to a clear error when the option was not supplied.
func NewServer(store storage.Store, pipeline *consolidation.Pipeline, opts ...ServerOption) *Server {
	s := &Server{
		store:     store,
		pipeline:  pipeline,
		sessionID: uuid.New().String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	log.Printf("memento-mcp: session ID: %s", s.sessionID)
	return s
}

// HandleRequest processes a JSON-RPC 2.0 request and returns a response.
// This is the main entry point for MCP protocol handling.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err)
	}

	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}

	var result interface{}
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(ctx, req.Params)
	case "initialized":
		result = map[string]interface{}{}
	case "tools/list":
		result, err = s.handleToolsList(ctx, req.Params)
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)

	case "store_memory":
		result, err = s.handleStoreMemory(ctx, req.Params)
	case "retrieve_memory":
		result, err = s.handleRetrieveMemory(ctx, req.Params)
	case "recall_memory":
		result, err = s.handleRecallMemory(ctx, req.Params)
	case "search_by_tag":
		result, err = s.handleSearchByTag(ctx, req.Params)
	case "delete_memory":
		result, err = s.handleDeleteMemory(ctx, req.Params)
	case "delete_by_tag":
		result, err = s.handleDeleteByTag(ctx, req.Params)
	case "delete_by_tags":
		result, err = s.handleDeleteByTags(ctx, req.Params)
	case "update_memory_metadata":
		result, err = s.handleUpdateMemoryMetadata(ctx, req.Params)
	case "check_database_health":
		result, err = s.handleCheckDatabaseHealth(ctx, req.Params)
	case "cleanup_duplicates":
		result, err = s.handleCleanupDuplicates(ctx, req.Params)
	case "list_backups":
		result, err = s.handleListBackups(ctx, req.Params)
	case "create_backup":
		result, err = s.handleCreateBackup(ctx, req.Params)
	case "optimize_db":
		result, err = s.handleOptimizeDB(ctx, req.Params)
	case "export_memories":
		result, err = s.handleExportMemories(ctx, req.Params)
	case "import_memories":
		result, err = s.handleImportMemories(ctx, req.Params)
	case "run_consolidation":
		result, err = s.handleRunConsolidation(ctx, req.Params)
	case "schedule_consolidation":
		result, err = s.handleScheduleConsolidation(ctx, req.Params)

	default:
		return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}

	if err != nil {
		return s.errorResponse(req.ID, ErrCodeServerError, err.Error(), nil)
	}

	return s.successResponse(req.ID, result)
}

// ---------------------------------------------------------------------------
// StoreMemory
// ---------------------------------------------------------------------------

// StoreMemory persists a new memory, computing its embedding and
// deduplicating by content hash. Storing identical content twice is a
// successful no-op, reported via Duplicate.
func (s *Server) StoreMemory(ctx context.Context, args StoreMemoryArgs) (*StoreMemoryResult, error) {
	if args.Content == "" {
		return nil, storage.InvalidInput("content is required", "")
	}

	createdBy := args.CreatedBy
	if createdBy == "" {
		createdBy = attribution.DetectAgent()
	}
	metaMap := args.Metadata
	if metaMap == nil {
		metaMap = map[string]interface{}{}
	}
	if _, ok := metaMap["source"]; !ok {
		metaMap["source"] = createdBy
	}
	meta, err := types.MetadataFromMap(metaMap)
	if err != nil {
		return nil, storage.InvalidInput(err.Error(), "")
	}

	mem, err := types.New(args.Content, args.Tags, args.MemoryType, meta)
	if err != nil {
		return nil, storage.InvalidInput(err.Error(), "")
	}

	storeErr := s.store.Store(ctx, mem)
	if storeErr != nil {
		var se *storage.Error
		if errors.As(storeErr, &se) && se.Kind == storage.KindDuplicate {
			return &StoreMemoryResult{ContentHash: mem.ContentHash, Stored: true, Duplicate: true}, nil
		}
		return nil, storeErr
	}

	return &StoreMemoryResult{ContentHash: mem.ContentHash, Stored: true}, nil
}

func (s *Server) handleStoreMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args StoreMemoryArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.StoreMemory(ctx, args)
}

// ---------------------------------------------------------------------------
// RetrieveMemory
// ---------------------------------------------------------------------------

// RetrieveMemory runs pure similarity search against query.
func (s *Server) RetrieveMemory(ctx context.Context, args RetrieveMemoryArgs) (*RetrieveMemoryResult, error) {
	if args.Query == "" {
		return nil, storage.InvalidInput("query is required", "")
	}
	n := args.N
	if n <= 0 {
		n = 10
	}
	scored, err := s.store.Retrieve(ctx, args.Query, n)
	if err != nil {
		return nil, err
	}
	return &RetrieveMemoryResult{Memories: scoredOut(scored), Total: len(scored)}, nil
}

func (s *Server) handleRetrieveMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args RetrieveMemoryArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.RetrieveMemory(ctx, args)
}

// ---------------------------------------------------------------------------
// RecallMemory
// ---------------------------------------------------------------------------

// RecallMemory runs the composite query planner: optional text similarity,
// optional tag filter, optional time window.
func (s *Server) RecallMemory(ctx context.Context, args RecallMemoryArgs) (*RecallMemoryResult, error) {
	q := storage.RecallQuery{
		Text:         args.Query,
		Tags:         args.Tags,
		MatchAllTags: args.MatchAllTags,
		MemoryType:   args.MemoryType,
		Limit:        args.Limit,
		MinScore:     args.MinScore,
	}
	if args.CreatedAfter != "" || args.CreatedBefore != "" {
		win, err := parseWindow(args.CreatedAfter, args.CreatedBefore)
		if err != nil {
			return nil, storage.InvalidInput(err.Error(), "")
		}
		q.Window = win
	}
	q.Normalize()

	scored, err := s.store.Recall(ctx, q)
	if err != nil {
		return nil, err
	}
	return &RecallMemoryResult{Memories: scoredOut(scored), Total: len(scored)}, nil
}

func (s *Server) handleRecallMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args RecallMemoryArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.RecallMemory(ctx, args)
}

func parseWindow(after, before string) (*storage.TimeRange, error) {
	win := &storage.TimeRange{Start: 0, End: 1 << 62}
	if after != "" {
		t, err := time.Parse(time.RFC3339, after)
		if err != nil {
			return nil, fmt.Errorf("created_after: %w", err)
		}
		win.Start = types.TimeToSeconds(t)
	}
	if before != "" {
		t, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return nil, fmt.Errorf("created_before: %w", err)
		}
		win.End = types.TimeToSeconds(t)
	}
	return win, nil
}

func scoredOut(scored []storage.ScoredMemory) []ScoredMemoryOut {
	out := make([]ScoredMemoryOut, len(scored))
	for i, sm := range scored {
		out[i] = ScoredMemoryOut{Memory: *sm.Memory, Score: sm.Score}
	}
	return out
}

// ---------------------------------------------------------------------------
// SearchByTag
// ---------------------------------------------------------------------------

// SearchByTag returns memories carrying any (or all) of tags.
func (s *Server) SearchByTag(ctx context.Context, args SearchByTagArgs) (*SearchByTagResult, error) {
	if len(args.Tags) == 0 {
		return nil, storage.InvalidInput("tags must be non-empty", "")
	}
	mode := storage.MatchAny
	if args.Match == "all" {
		mode = storage.MatchAll
	}
	mems, err := s.store.SearchByTag(ctx, args.Tags, mode)
	if err != nil {
		return nil, err
	}
	out := make([]types.Memory, len(mems))
	for i, m := range mems {
		out[i] = *m
	}
	return &SearchByTagResult{Memories: out, Total: len(out)}, nil
}

func (s *Server) handleSearchByTag(ctx context.Context, params interface{}) (interface{}, error) {
	var args SearchByTagArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.SearchByTag(ctx, args)
}

// ---------------------------------------------------------------------------
// Delete family
// ---------------------------------------------------------------------------

// DeleteMemory removes the memory with the given content hash.
func (s *Server) DeleteMemory(ctx context.Context, args DeleteMemoryArgs) (*DeleteMemoryResult, error) {
	if args.ContentHash == "" {
		return nil, storage.InvalidInput("content_hash is required", "")
	}
	if err := s.store.Delete(ctx, args.ContentHash); err != nil {
		return nil, err
	}
	return &DeleteMemoryResult{Deleted: true}, nil
}

func (s *Server) handleDeleteMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args DeleteMemoryArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.DeleteMemory(ctx, args)
}

// DeleteByTag removes every memory carrying tag.
func (s *Server) DeleteByTag(ctx context.Context, args DeleteByTagArgs) (*DeleteByTagResult, error) {
	if args.Tag == "" {
		return nil, storage.InvalidInput("tag is required", "")
	}
	n, err := s.store.DeleteByTag(ctx, args.Tag)
	if err != nil {
		return nil, err
	}
	return &DeleteByTagResult{Count: n}, nil
}

func (s *Server) handleDeleteByTag(ctx context.Context, params interface{}) (interface{}, error) {
	var args DeleteByTagArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.DeleteByTag(ctx, args)
}

// DeleteByTags removes every memory carrying any of tags. Progress isn't
// surfaced over JSON-RPC (no streaming channel in this transport), so the
// store is called with a nil progress callback.
func (s *Server) DeleteByTags(ctx context.Context, args DeleteByTagsArgs) (*DeleteByTagsResult, error) {
	if len(args.Tags) == 0 {
		return nil, storage.InvalidInput("tags must be non-empty", "")
	}
	n, err := s.store.DeleteByTags(ctx, args.Tags, nil)
	if err != nil {
		return nil, err
	}
	return &DeleteByTagsResult{Count: n}, nil
}

func (s *Server) handleDeleteByTags(ctx context.Context, params interface{}) (interface{}, error) {
	var args DeleteByTagsArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.DeleteByTags(ctx, args)
}

// ---------------------------------------------------------------------------
// UpdateMemoryMetadata
// ---------------------------------------------------------------------------

// UpdateMemoryMetadata merges updates into the memory's metadata.
func (s *Server) UpdateMemoryMetadata(ctx context.Context, args UpdateMemoryMetadataArgs) (*UpdateMemoryMetadataResult, error) {
	if args.ContentHash == "" {
		return nil, storage.InvalidInput("content_hash is required", "")
	}
	updates, err := types.MetadataFromMap(args.Updates)
	if err != nil {
		return nil, storage.InvalidInput(err.Error(), "")
	}
	if err := s.store.UpdateMetadata(ctx, args.ContentHash, updates, args.PreserveTimestamps); err != nil {
		return nil, err
	}
	return &UpdateMemoryMetadataResult{Updated: true}, nil
}

func (s *Server) handleUpdateMemoryMetadata(ctx context.Context, params interface{}) (interface{}, error) {
	var args UpdateMemoryMetadataArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.UpdateMemoryMetadata(ctx, args)
}

// ---------------------------------------------------------------------------
// Health, stats, maintenance
// ---------------------------------------------------------------------------

// CheckDatabaseHealth reports whether the backend is reachable and
// writable, plus the stats a health reporter tracks alongside it.
func (s *Server) CheckDatabaseHealth(ctx context.Context) (*CheckDatabaseHealthResult, error) {
	if s.reporter == nil {
		return nil, storage.Misconfigured("no health reporter configured")
	}
	status := s.reporter.Check(ctx)
	stats, err := s.reporter.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &CheckDatabaseHealthResult{
		Healthy:       status.Healthy,
		Backend:       status.Backend,
		Detail:        status.Detail,
		CheckedAt:     types.SecondsToTime(status.CheckedAtSec).Format(time.RFC3339),
		TotalMemories: stats.TotalMemories,
		TotalTags:     stats.TotalTags,
		StorageBytes:  stats.StorageBytes,
	}, nil
}

func (s *Server) handleCheckDatabaseHealth(ctx context.Context, params interface{}) (interface{}, error) {
	return s.CheckDatabaseHealth(ctx)
}

// CleanupDuplicates merges memories sharing a content hash.
func (s *Server) CleanupDuplicates(ctx context.Context) (*CleanupDuplicatesResult, error) {
	n, err := s.store.CleanupDuplicates(ctx)
	if err != nil {
		return nil, err
	}
	return &CleanupDuplicatesResult{Merged: n}, nil
}

func (s *Server) handleCleanupDuplicates(ctx context.Context, params interface{}) (interface{}, error) {
	return s.CleanupDuplicates(ctx)
}

// ---------------------------------------------------------------------------
// Backups
// ---------------------------------------------------------------------------

// ListBackups lists every backup directory under the configured backup dir.
func (s *Server) ListBackups(ctx context.Context) (*ListBackupsResult, error) {
	if s.backups == nil {
		return nil, storage.Misconfigured("no backup service configured")
	}
	infos, err := s.backups.ListBackups()
	if err != nil {
		return nil, err
	}
	out := make([]BackupInfoOut, len(infos))
	for i, info := range infos {
		out[i] = BackupInfoOut{
			Name:           info.Manifest.BackupName,
			Timestamp:      info.Manifest.Timestamp,
			SourceDatabase: info.Manifest.SourceDatabase,
			SizeBytes:      info.Size,
			Backend:        info.Manifest.Backend,
		}
	}
	return &ListBackupsResult{Backups: out}, nil
}

func (s *Server) handleListBackups(ctx context.Context, params interface{}) (interface{}, error) {
	return s.ListBackups(ctx)
}

// CreateBackup triggers an immediate backup, bypassing the scheduled
// interval.
func (s *Server) CreateBackup(ctx context.Context) (*CreateBackupResult, error) {
	if s.backups == nil {
		return nil, storage.Misconfigured("no backup service configured")
	}
	result, err := s.backups.BackupNow(ctx)
	if err != nil {
		return nil, err
	}
	return &CreateBackupResult{
		Name:       result.Path,
		Path:       result.Path,
		SizeBytes:  result.Size,
		DurationMS: result.Duration.Milliseconds(),
		Verified:   result.Verified,
	}, nil
}

func (s *Server) handleCreateBackup(ctx context.Context, params interface{}) (interface{}, error) {
	return s.CreateBackup(ctx)
}

// OptimizeDB runs backend-appropriate maintenance (index rebuild,
// statistics refresh, space reclamation).
func (s *Server) OptimizeDB(ctx context.Context) (*OptimizeDBResult, error) {
	if err := s.store.Optimize(ctx); err != nil {
		return nil, err
	}
	return &OptimizeDBResult{Message: "optimized"}, nil
}

func (s *Server) handleOptimizeDB(ctx context.Context, params interface{}) (interface{}, error) {
	return s.OptimizeDB(ctx)
}

// ---------------------------------------------------------------------------
// Export / import
// ---------------------------------------------------------------------------

// ExportMemories writes every active memory (or the first Limit of them) to
// path as spec §6's JSON export document.
func (s *Server) ExportMemories(ctx context.Context, args ExportMemoriesArgs) (*ExportMemoriesResult, error) {
	if args.Path == "" {
		return nil, storage.InvalidInput("path is required", "")
	}
	n, err := exportMemories(ctx, s.store, args.Path, args.Limit)
	if err != nil {
		return nil, err
	}
	return &ExportMemoriesResult{Path: args.Path, TotalMemories: n}, nil
}

func (s *Server) handleExportMemories(ctx context.Context, params interface{}) (interface{}, error) {
	var args ExportMemoriesArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.ExportMemories(ctx, args)
}

// ImportMemories reads a spec §6 export document from path and stores
// every memory in it, skipping ones already present by content hash.
func (s *Server) ImportMemories(ctx context.Context, args ImportMemoriesArgs) (*ImportMemoriesResult, error) {
	if args.Path == "" {
		return nil, storage.InvalidInput("path is required", "")
	}
	return importMemories(ctx, s.store, args.Path)
}

func (s *Server) handleImportMemories(ctx context.Context, params interface{}) (interface{}, error) {
	var args ImportMemoriesArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	return s.ImportMemories(ctx, args)
}

// ---------------------------------------------------------------------------
// Consolidation
// ---------------------------------------------------------------------------

// RunConsolidation runs every consolidation stage once, synchronously, and
// notifies the HTTP/SSE layer (if a notifier was injected) on completion.
func (s *Server) RunConsolidation(ctx context.Context) (*RunConsolidationResult, error) {
	if s.pipeline == nil {
		return nil, storage.Misconfigured("no consolidation pipeline configured")
	}
	start := time.Now()
	run := s.pipeline.RunAll(ctx)
	if s.notifier != nil {
		_ = s.notifier.Notify("consolidation_complete", s.sessionID)
	}
	return &RunConsolidationResult{
		Stages:    stageResultsOut(run.Stages),
		ElapsedMS: time.Since(start).Milliseconds(),
	}, nil
}

func (s *Server) handleRunConsolidation(ctx context.Context, params interface{}) (interface{}, error) {
	return s.RunConsolidation(ctx)
}

// ScheduleConsolidation starts (or confirms already running) the
// background scheduler that fires each consolidation stage on its own
// cadence (spec §4.H). The scheduler runs for the lifetime of the process
// once started; there is no per-call stop — the process owns that via
// context cancellation at shutdown.
func (s *Server) ScheduleConsolidation(ctx context.Context) (*ScheduleConsolidationResult, error) {
	if s.pipeline == nil {
		return nil, storage.Misconfigured("no consolidation pipeline configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return &ScheduleConsolidationResult{Running: true, Message: "scheduler already running"}, nil
	}
	sched := consolidation.NewScheduler(s.pipeline)
	schedCtx, cancel := context.WithCancel(context.Background())
	s.scheduler = sched
	s.schedCancel = cancel
	go func() {
		if err := sched.Run(schedCtx); err != nil && schedCtx.Err() == nil {
			log.Printf("memento-mcp: consolidation scheduler exited: %v", err)
		}
	}()
	return &ScheduleConsolidationResult{Running: true, Message: "scheduler started"}, nil
}

func (s *Server) handleScheduleConsolidation(ctx context.Context, params interface{}) (interface{}, error) {
	return s.ScheduleConsolidation(ctx)
}

// StopScheduler cancels a running consolidation scheduler, if any. Called
// from process shutdown, not exposed as an MCP tool.
func (s *Server) StopScheduler() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedCancel != nil {
		s.schedCancel()
		s.scheduler = nil
		s.schedCancel = nil
	}
}

// ---------------------------------------------------------------------------
// Standard MCP protocol handlers
// ---------------------------------------------------------------------------

// handleInitialize handles the MCP initialize handshake.
func (s *Server) handleInitialize(ctx context.Context, params interface{}) (interface{}, error) {
	return MCPInitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities: MCPServerCapabilities{
			Tools: &MCPToolsCapability{},
		},
		ServerInfo: MCPServerInfo{
			Name:    "memento",
			Version: "1.0.0",
		},
	}, nil
}

// handleToolsList returns the list of all tools this server exposes.
func (s *Server) handleToolsList(ctx context.Context, params interface{}) (interface{}, error) {
	return MCPToolsListResult{Tools: s.buildToolsList()}, nil
}

// handleToolsCall dispatches a tools/call request to the appropriate
// handler and wraps the result in the MCP content envelope.
func (s *Server) handleToolsCall(ctx context.Context, params interface{}) (interface{}, error) {
	var p MCPToolCallParams
	if err := s.unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	argsJSON, err := json.Marshal(p.Arguments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arguments: %w", err)
	}
	var rawParams interface{}
	if err := json.Unmarshal(argsJSON, &rawParams); err != nil {
		return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
	}

	var result interface{}
	var handlerErr error

	switch p.Name {
	case "store_memory":
		result, handlerErr = s.handleStoreMemory(ctx, rawParams)
	case "retrieve_memory":
		result, handlerErr = s.handleRetrieveMemory(ctx, rawParams)
	case "recall_memory":
		result, handlerErr = s.handleRecallMemory(ctx, rawParams)
	case "search_by_tag":
		result, handlerErr = s.handleSearchByTag(ctx, rawParams)
	case "delete_memory":
		result, handlerErr = s.handleDeleteMemory(ctx, rawParams)
	case "delete_by_tag":
		result, handlerErr = s.handleDeleteByTag(ctx, rawParams)
	case "delete_by_tags":
		result, handlerErr = s.handleDeleteByTags(ctx, rawParams)
	case "update_memory_metadata":
		result, handlerErr = s.handleUpdateMemoryMetadata(ctx, rawParams)
	case "check_database_health":
		result, handlerErr = s.handleCheckDatabaseHealth(ctx, rawParams)
	case "cleanup_duplicates":
		result, handlerErr = s.handleCleanupDuplicates(ctx, rawParams)
	case "list_backups":
		result, handlerErr = s.handleListBackups(ctx, rawParams)
	case "create_backup":
		result, handlerErr = s.handleCreateBackup(ctx, rawParams)
	case "optimize_db":
		result, handlerErr = s.handleOptimizeDB(ctx, rawParams)
	case "export_memories":
		result, handlerErr = s.handleExportMemories(ctx, rawParams)
	case "import_memories":
		result, handlerErr = s.handleImportMemories(ctx, rawParams)
	case "run_consolidation":
		result, handlerErr = s.handleRunConsolidation(ctx, rawParams)
	case "schedule_consolidation":
		result, handlerErr = s.handleScheduleConsolidation(ctx, rawParams)
	default:
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: fmt.Sprintf("unknown tool: %s", p.Name)}},
			IsError: true,
		}, nil
	}

	if handlerErr != nil {
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: handlerErr.Error()}},
			IsError: true,
		}, nil
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: string(text)}},
	}, nil
}

// buildToolsList returns the canonical list of MCP tool definitions, one
// per spec §6 command.
func (s *Server) buildToolsList() []MCPTool {
	strArray := map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}}
	return []MCPTool{
		{
			Name:        "store_memory",
			Description: "Store a new memory. Content is deduplicated by a SHA-256 content hash: storing the same text twice is a successful no-op.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"content"},
				"properties": map[string]interface{}{
					"content":     map[string]interface{}{"type": "string", "description": "The memory content to store (required)"},
					"tags":        strArray,
					"memory_type": map[string]interface{}{"type": "string", "description": "e.g. standard, critical, reference, temporary"},
					"metadata":    map[string]interface{}{"type": "object", "description": "Flat key-value metadata (no nested objects or arrays)"},
					"created_by":  map[string]interface{}{"type": "string", "description": "Name of the agent or developer storing this memory; auto-detected if omitted"},
				},
			},
		},
		{
			Name:        "retrieve_memory",
			Description: "Similarity search: embed query and return the n highest-scoring memories.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]interface{}{
					"query": map[string]interface{}{"type": "string", "description": "Search text (required)"},
					"n":     map[string]interface{}{"type": "integer", "description": "Max results (default 10)"},
				},
			},
		},
		{
			Name:        "recall_memory",
			Description: "Composite query: optional text similarity, optional tag filter, optional created_at window. All fields empty returns the most recent memories.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query":           map[string]interface{}{"type": "string", "description": "Optional search text"},
					"tags":            strArray,
					"match_all_tags":  map[string]interface{}{"type": "boolean", "description": "Require every tag instead of any (default false)"},
					"memory_type":     map[string]interface{}{"type": "string"},
					"created_after":   map[string]interface{}{"type": "string", "description": "RFC-3339 lower bound"},
					"created_before":  map[string]interface{}{"type": "string", "description": "RFC-3339 upper bound"},
					"limit":           map[string]interface{}{"type": "integer", "description": "Max results (default 10, max 200)"},
					"min_score":       map[string]interface{}{"type": "number", "description": "Drop results scoring below this"},
				},
			},
		},
		{
			Name:        "search_by_tag",
			Description: "Return memories matching one or more tags.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"tags"},
				"properties": map[string]interface{}{
					"tags":  strArray,
					"match": map[string]interface{}{"type": "string", "description": "\"any\" (default) or \"all\""},
				},
			},
		},
		{
			Name:        "delete_memory",
			Description: "Delete a single memory by content hash.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"content_hash"},
				"properties": map[string]interface{}{
					"content_hash": map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:        "delete_by_tag",
			Description: "Delete every memory carrying a single tag.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"tag"},
				"properties": map[string]interface{}{
					"tag": map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:        "delete_by_tags",
			Description: "Delete every memory carrying any of the given tags.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"tags"},
				"properties": map[string]interface{}{
					"tags": strArray,
				},
			},
		},
		{
			Name:        "update_memory_metadata",
			Description: "Merge updates into a memory's metadata. preserve_timestamps leaves created_at/updated_at untouched.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"content_hash", "updates"},
				"properties": map[string]interface{}{
					"content_hash":        map[string]interface{}{"type": "string"},
					"updates":             map[string]interface{}{"type": "object", "description": "Flat key-value updates"},
					"preserve_timestamps": map[string]interface{}{"type": "boolean"},
				},
			},
		},
		{
			Name:        "check_database_health",
			Description: "Report whether the backend is reachable and writable, plus current stats.",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		{
			Name:        "cleanup_duplicates",
			Description: "Merge memories that share a content hash (a leftover from a pre-hash-enforcement layout).",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		{
			Name:        "list_backups",
			Description: "List every backup currently retained.",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		{
			Name:        "create_backup",
			Description: "Trigger an immediate backup, bypassing the scheduled interval.",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		{
			Name:        "optimize_db",
			Description: "Run backend maintenance: statistics refresh and space reclamation.",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		{
			Name:        "export_memories",
			Description: "Export every active memory to a JSON file at path.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"path"},
				"properties": map[string]interface{}{
					"path":  map[string]interface{}{"type": "string"},
					"limit": map[string]interface{}{"type": "integer", "description": "0 means export everything"},
				},
			},
		},
		{
			Name:        "import_memories",
			Description: "Import memories from a JSON export file at path, skipping ones already present by content hash.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"path"},
				"properties": map[string]interface{}{
					"path": map[string]interface{}{"type": "string"},
				},
			},
		},
		{
			Name:        "run_consolidation",
			Description: "Run every consolidation stage once, synchronously: decay, associative discovery, clustering, compression, forgetting.",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		{
			Name:        "schedule_consolidation",
			Description: "Start the background scheduler that fires each consolidation stage on its own cadence for the life of the process.",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
	}
}

// ---------------------------------------------------------------------------
// Generic helpers
// ---------------------------------------------------------------------------

// unmarshalParams unmarshals JSON-RPC parameters into a typed struct.
func (s *Server) unmarshalParams(params interface{}, dest interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal params: %w", err)
	}
	return nil
}

// successResponse creates a JSON-RPC success response.
func (s *Server) successResponse(id interface{}, result interface{}) ([]byte, error) {
	resp := JSONRPCResponse{JSONRPC: "2.0", Result: result, ID: id}
	return json.Marshal(resp)
}

// errorResponse creates a JSON-RPC error response.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) ([]byte, error) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
		ID:      id,
	}
	return json.Marshal(resp)
}
