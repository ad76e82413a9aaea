package server_test

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

func startTestServer(t *testing.T) (string, context.CancelFunc) {
	t.Helper()
	cfg := &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 0}}

	dbPath := filepath.Join(t.TempDir(), "test.db")
	embedSvc := embedding.NewService(nil, embedding.DefaultRetryConfig())
	store, err := sqlite.New(dbPath, embedSvc)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	pipeline := consolidation.New(store, embedSvc, consolidation.DefaultConfig())
	mcpSrv := mcp.NewServer(store, pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	addr, _ := server.Start(ctx, cfg, mcpSrv)
	time.Sleep(50 * time.Millisecond)
	return addr, cancel
}

func TestStart_HealthEndpoint(t *testing.T) {
	addr, cancel := startTestServer(t)
	defer cancel()

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStart_RPCEndpoint_ToolsList(t *testing.T) {
	addr, cancel := startTestServer(t)
	defer cancel()

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	resp, err := http.Post("http://"+addr+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded struct {
		Result struct {
			Tools []mcp.MCPTool `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.NotEmpty(t, decoded.Result.Tools)
}

func TestStart_RPCEndpoint_StoreAndRecall(t *testing.T) {
	addr, cancel := startTestServer(t)
	defer cancel()

	storeBody := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"store_memory","arguments":{"content":"http surface round trip"}}}`)
	resp, err := http.Post("http://"+addr+"/rpc", "application/json", bytes.NewReader(storeBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded struct {
		Result mcp.MCPToolCallResult `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.False(t, decoded.Result.IsError)
}

func TestStart_RPCEndpoint_RejectsGET(t *testing.T) {
	addr, cancel := startTestServer(t)
	defer cancel()

	resp, err := http.Get("http://" + addr + "/rpc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStart_SecurityHeadersPresent(t *testing.T) {
	addr, cancel := startTestServer(t)
	defer cancel()

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}
