// main_test.go exercises the memento-web entry point wiring: config
// loading, storage construction, and the HTTP/SSE server's routes.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memento/internal/api/mcp"
	"github.com/scrypster/memento/internal/config"
	"github.com/scrypster/memento/internal/consolidation"
	"github.com/scrypster/memento/internal/embedding"
	"github.com/scrypster/memento/internal/server"
	"github.com/scrypster/memento/internal/storage/sqlite"
)

func TestMainServer_RPCAndHealthRoutes(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 0}}

	dbPath := filepath.Join(t.TempDir(), "test.db")
	embedSvc := embedding.NewService(nil, embedding.DefaultRetryConfig())
	store, err := sqlite.New(dbPath, embedSvc)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Initialize(context.Background()))

	pipeline := consolidation.New(store, embedSvc, consolidation.DefaultConfig())
	mcpSrv := mcp.NewServer(store, pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, _ := server.Start(ctx, cfg, mcpSrv)
	time.Sleep(50 * time.Millisecond)

	healthResp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	defer healthResp.Body.Close()
	assert.Equal(t, http.StatusOK, healthResp.StatusCode)

	rpcBody := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	rpcResp, err := http.Post("http://"+addr+"/rpc", "application/json", bytes.NewReader(rpcBody))
	require.NoError(t, err)
	defer rpcResp.Body.Close()
	assert.Equal(t, http.StatusOK, rpcResp.StatusCode)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(rpcResp.Body).Decode(&decoded))
	assert.Contains(t, decoded, "result")
}

func TestMainServer_ConfigurationLoading(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sqlite_vec.db")
	t.Setenv("MEMORY_EMBEDDED_PATH", dbPath)
	t.Setenv("MEMENTO_HOST", "127.0.0.1")
	t.Setenv("MEMENTO_PORT", "6363")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, dbPath, cfg.Storage.EmbeddedPath)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 6363, cfg.Server.Port)
}

func TestMainServer_ContextCancellationStopsServer(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 0}}

	dbPath := filepath.Join(t.TempDir(), "test.db")
	embedSvc := embedding.NewService(nil, embedding.DefaultRetryConfig())
	store, err := sqlite.New(dbPath, embedSvc)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Initialize(context.Background()))

	pipeline := consolidation.New(store, embedSvc, consolidation.DefaultConfig())
	mcpSrv := mcp.NewServer(store, pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	addr, _ := server.Start(ctx, cfg, mcpSrv)
	time.Sleep(50 * time.Millisecond)

	cancel()
	time.Sleep(100 * time.Millisecond)

	_, err = http.Get("http://" + addr + "/health")
	assert.Error(t, err, "server should have stopped accepting connections after shutdown")
}
