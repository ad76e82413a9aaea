// cmd/memento-web is the entry point for Memento's HTTP/SSE surface: the
// same JSON-RPC command set the MCP stdin/stdout transport exposes,
// reachable over HTTP by multiple clients sharing one memory store, plus a
// WebSocket channel that rebroadcasts consolidation events written by a
// sibling memento-mcp process.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scrypster/memento/internal/api/mcp"
	"github.com/scrypster/memento/internal/config"
	"github.com/scrypster/memento/internal/consolidation"
	"github.com/scrypster/memento/internal/embedding"
	"github.com/scrypster/memento/internal/health"
	"github.com/scrypster/memento/internal/server"
	"github.com/scrypster/memento/internal/storage/sqlite"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("memento-web: failed to load config: %v", err)
	}

	embedSvc := embedding.NewService(nil, embedding.DefaultRetryConfig())
	store, err := sqlite.New(cfg.Storage.EmbeddedPath, embedSvc)
	if err != nil {
		log.Fatalf("memento-web: failed to open storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Initialize(ctx); err != nil {
		log.Fatalf("memento-web: failed to initialize storage: %v", err)
	}

	reporter := health.NewReporter(store, prometheus.NewRegistry())
	pipeline := consolidation.New(store, embedSvc, consolidation.DefaultConfig())
	mcpSrv := mcp.NewServer(store, pipeline, mcp.WithHealthReporter(reporter))

	addr, wsHub := server.Start(ctx, cfg, mcpSrv)
	log.Printf("memento-web: serving HTTP/SSE on %s", addr)

	watcher := server.WireCrossProcessEvents(filepath.Dir(cfg.Storage.EmbeddedPath), wsHub)
	defer watcher.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("memento-web: shutting down gracefully")

	cancel()
	time.Sleep(1 * time.Second)
}
