// cmd/memento-mcp is the entry point for the Memento MCP (Model Context
// Protocol) server. It wires the configured storage backend, embedding
// service, and consolidation pipeline behind the MCP JSON-RPC surface.
//
// Startup sequence:
//  1. Load configuration from environment variables.
//  2. Open the configured storage backend (embedded SQLite or cloud) and
//     apply its migrations.
//  3. Build the embedding service, health reporter, and backup service.
//  4. Build the consolidation pipeline and, if enabled, start its scheduler.
//  5. Create the MCP server and serve JSON-RPC 2.0 over stdin/stdout.
//
// CRITICAL: ALL logging MUST go to stderr. Any bytes written to stdout that
// are not valid JSON-RPC 2.0 response frames will corrupt the protocol.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scrypster/memento/internal/api/mcp"
	"github.com/scrypster/memento/internal/backup"
	"github.com/scrypster/memento/internal/config"
	"github.com/scrypster/memento/internal/consolidation"
	"github.com/scrypster/memento/internal/embedding"
	"github.com/scrypster/memento/internal/health"
	"github.com/scrypster/memento/internal/llm"
	"github.com/scrypster/memento/internal/notify"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/internal/storage/cloud"
	"github.com/scrypster/memento/internal/storage/sqlite"
)

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("memento-mcp: ")
	log.SetFlags(log.LstdFlags)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.EmbeddedPath), 0o700); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	embedSvc := buildEmbeddingService(cfg)

	store, err := openStore(rootCtx, cfg, embedSvc)
	if err != nil {
		log.Fatalf("failed to open storage backend: %v", err)
	}
	defer store.Close()
	if err := store.Initialize(rootCtx); err != nil {
		log.Fatalf("failed to initialize storage backend: %v", err)
	}

	reporter := health.NewReporter(store, prometheus.NewRegistry())

	var backupSvc *backup.BackupService
	if cfg.Storage.Backend != "cloud" {
		backupSvc, err = backup.NewBackupService(backup.BackupConfig{
			DBPath:        cfg.Storage.EmbeddedPath,
			BackupDir:     cfg.Storage.BackupsPath,
			VerifyBackups: true,
			Retention:     backup.RetentionPolicy{Hourly: 24, Daily: 7, Weekly: 4, Monthly: 12},
		})
		if err != nil {
			log.Printf("warning: backup service unavailable: %v", err)
		}
	}

	pipeline := consolidation.New(store, embedSvc, buildConsolidationConfig())
	notifier := notify.NewEventWriter(filepath.Dir(cfg.Storage.EmbeddedPath))

	srvOpts := []mcp.ServerOption{mcp.WithHealthReporter(reporter), mcp.WithNotifier(notifier)}
	if backupSvc != nil {
		srvOpts = append(srvOpts, mcp.WithBackupService(backupSvc))
	}
	srv := mcp.NewServer(store, pipeline, srvOpts...)

	if cfg.Consolidation.Enabled {
		if _, err := srv.ScheduleConsolidation(rootCtx); err != nil {
			log.Printf("warning: consolidation scheduler not started: %v", err)
		}
	}
	defer srv.StopScheduler()

	transport := mcp.NewStdioTransport(srv, os.Stdin, os.Stdout)

	log.Println("ready — serving JSON-RPC 2.0 on stdin/stdout")

	if err := transport.Serve(rootCtx); err != nil {
		// A non-nil error here is normal (context cancellation) or indicates
		// a fatal stdin/stdout problem. Either way it is informational only.
		log.Printf("transport stopped: %v", err)
	}
}

// buildEmbeddingService constructs the embedding.Service from the
// configured LLM provider, falling back to the deterministic hashed
// embedding when no provider is configured.
func buildEmbeddingService(cfg *config.Config) *embedding.Service {
	provider := os.Getenv("MEMENTO_LLM_PROVIDER")
	if provider == "" {
		return embedding.NewService(nil, embedding.DefaultRetryConfig())
	}

	llmCfg := llm.LLMConfig{
		Provider:       provider,
		Model:          os.Getenv("MEMENTO_LLM_MODEL"),
		APIKey:         os.Getenv("MEMENTO_LLM_API_KEY"),
		BaseURL:        os.Getenv("MEMENTO_LLM_BASE_URL"),
		EmbeddingModel: cfg.Cloud.EmbeddingModel,
	}
	if llmCfg.EmbeddingModel == "" {
		llmCfg.EmbeddingModel = os.Getenv("MEMENTO_EMBEDDING_MODEL")
	}
	gen, err := llm.NewEmbeddingGenerator(llmCfg, llmCfg.EmbeddingModel)
	if err != nil || gen == nil {
		if err != nil {
			log.Printf("warning: embedding provider %q unavailable, using fallback: %v", provider, err)
		}
		return embedding.NewService(nil, embedding.DefaultRetryConfig())
	}

	dim := 768
	if cfg.Storage.Backend == "cloud" {
		dim = 1536
	}
	return embedding.NewService(embedding.NewLLMAdapter(gen, dim), embedding.DefaultRetryConfig())
}

// buildConsolidationConfig returns spec defaults, optionally overridden by
// a YAML file named by MEMENTO_CONSOLIDATION_CONFIG — the pipeline has
// enough independently-tunable thresholds (relevance decay, similarity
// bounds, cluster sizing) that an operator adjusting more than one or two
// of them is better served by a file than a wall of env vars.
func buildConsolidationConfig() consolidation.Config {
	path := os.Getenv("MEMENTO_CONSOLIDATION_CONFIG")
	if path == "" {
		return consolidation.DefaultConfig()
	}
	cfg, err := consolidation.LoadConfigFile(path)
	if err != nil {
		log.Printf("warning: consolidation config file %q unusable, using defaults: %v", path, err)
		return consolidation.DefaultConfig()
	}
	return cfg
}

// openStore builds the configured storage.Store backend (embedded SQLite
// or managed cloud) without initializing it; callers run Initialize
// separately so a migration failure is distinguishable from an open
// failure.
func openStore(ctx context.Context, cfg *config.Config, embedSvc *embedding.Service) (storage.Store, error) {
	if cfg.Storage.Backend == "cloud" {
		return cloud.New(ctx, cloud.Config{
			Dimension:         embedSvc.Dimension(),
			ObjectStoreBucket: cfg.Cloud.ObjectBucket,
		}, embedSvc)
	}
	return sqlite.New(cfg.Storage.EmbeddedPath, embedSvc)
}
