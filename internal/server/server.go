// Package server provides the HTTP/SSE surface described in spec §1: an
// authenticated service that exposes the same command surface as the MCP
// stdin/stdout transport, so multiple clients can share one memory store,
// plus a WebSocket channel for live consolidation/notify events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/scrypster/memento/internal/api/mcp"
	"github.com/scrypster/memento/internal/config"
	"github.com/scrypster/memento/internal/notify"
	"github.com/scrypster/memento/web/handlers"
)

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start initializes and starts the HTTP server, wrapping mcpSrv's JSON-RPC
// command surface (the same tool set the stdin/stdout transport exposes).
// It returns the actual listen address (useful for tests with port 0) and
// the WebSocketHub so callers can watch for a lifecycle event or attach
// additional broadcasters.
func Start(ctx context.Context, cfg *config.Config, mcpSrv *mcp.Server) (string, *handlers.WebSocketHub) {
	apiToken := os.Getenv("MEMENTO_API_TOKEN")

	mux := http.NewServeMux()

	wsHub := handlers.NewWebSocketHub()
	go wsHub.Run()

	rateLimiter := handlers.NewRateLimiter(10.0, 20)

	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := readLimited(r)
		if err != nil {
			http.Error(w, `{"error":"request body too large"}`, http.StatusRequestEntityTooLarge)
			return
		}
		resp, err := mcpSrv.HandleRequest(r.Context(), body)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"internal error"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(resp)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		res, err := mcpSrv.CheckDatabaseHealth(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(res)
	})

	topMux := http.NewServeMux()
	topMux.Handle("/rpc", handlers.RequireAuth(mux, apiToken))
	topMux.Handle("/health", mux)
	topMux.Handle("/events", wsHub)

	handler := handlers.RateLimitMiddleware(topMux, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("memento-web: failed to listen on %s: %v", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("memento-web: server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("memento-web: shutdown error: %v", err)
		}
		wsHub.Stop()
	}()

	return actualAddr, wsHub
}

// WireCrossProcessEvents starts an EventWatcher that rebroadcasts
// consolidation events written by a memento-mcp process sharing dataPath
// onto wsHub. Returns the watcher so the caller can Stop() it.
func WireCrossProcessEvents(dataPath string, wsHub *handlers.WebSocketHub) *notify.EventWatcher {
	watcher := notify.NewEventWatcher(dataPath, func(eventType, memoryID string) {
		wsHub.Broadcast(map[string]interface{}{
			"type":     eventType,
			"memoryId": memoryID,
		})
	})
	if err := watcher.Start(); err != nil {
		log.Printf("memento-web: cross-process notifications disabled: %v", err)
	}
	return watcher
}

func readLimited(r *http.Request) ([]byte, error) {
	const maxBody = 4 << 20 // 4 MiB
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBody {
		return nil, errors.New("request body too large")
	}
	return data, nil
}
