package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"windows-mcp-server/internal/protocol"
	"windows-mcp-server/internal/security"
	"windows-mcp-server/internal/version"
)

// WebSocketTransport serves JSON-RPC over WebSocket text frames at /ws.
// Credentials travel in headers or the api_key query parameter; the
// handshake is refused before the upgrade when they fail.
type WebSocketTransport struct {
	server   *http.Server
	handler  MessageHandler
	auth     *security.Authenticator
	logger   *slog.Logger
	upgrader websocket.Upgrader

	connMu sync.Mutex
	conns  map[*websocket.Conn]struct{}

	runMu  sync.Mutex
	runCtx context.Context
}

// NewWebSocketTransport creates a WebSocket transport listening on addr.
func NewWebSocketTransport(addr string, handler MessageHandler, auth *security.Authenticator, logger *slog.Logger) *WebSocketTransport {
	t := &WebSocketTransport{
		handler: handler,
		auth:    auth,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		conns: make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", t.handleUpgrade)
	mux.HandleFunc("/health", t.handleHealth)

	t.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return t
}

// Start serves until Stop is called or the listener fails.
func (t *WebSocketTransport) Start(ctx context.Context) error {
	t.runMu.Lock()
	t.runCtx = ctx
	t.runMu.Unlock()

	t.logger.Info("websocket transport started", "addr", t.server.Addr)
	err := t.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop closes open connections and shuts the listener down.
func (t *WebSocketTransport) Stop(ctx context.Context) error {
	t.connMu.Lock()
	for conn := range t.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	t.connMu.Unlock()
	return t.server.Shutdown(ctx)
}

func (t *WebSocketTransport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		apiKey = r.URL.Query().Get("api_key")
	}
	result := t.auth.Authenticate(apiKey, r.Header.Get("Authorization"))
	if !result.Authenticated {
		t.logger.Warn("rejected websocket handshake", "remote", r.RemoteAddr, "reason", result.Error)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(protocol.NewErrorResponse(nil,
			protocol.NewRPCError(protocol.CodeAuthenticationRequired, "", result.Error)))
		return
	}

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	clientID := fmt.Sprintf("ws_%s", uuid.NewString())
	t.logger.Info("websocket client connected", "client", clientID, "remote", r.RemoteAddr)

	t.connMu.Lock()
	t.conns[conn] = struct{}{}
	t.connMu.Unlock()

	// The read loop must not inherit r.Context(): net/http cancels it as
	// soon as this handler returns, which would abort every message
	// handled afterwards. Run the loop here, under the transport
	// lifecycle context.
	t.readLoop(t.baseContext(), conn, clientID)
}

// baseContext is the lifecycle context handed to Start, or Background
// when the mux is driven by an outer server.
func (t *WebSocketTransport) baseContext() context.Context {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	if t.runCtx != nil {
		return t.runCtx
	}
	return context.Background()
}

func (t *WebSocketTransport) readLoop(ctx context.Context, conn *websocket.Conn, clientID string) {
	defer func() {
		t.connMu.Lock()
		delete(t.conns, conn)
		t.connMu.Unlock()
		_ = conn.Close()
		t.logger.Info("websocket client disconnected", "client", clientID)
	}()

	var writeMu sync.Mutex
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Warn("websocket read error", "client", clientID, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		go func(msg []byte) {
			reply := t.handler(ctx, msg, clientID)
			if reply == nil {
				return
			}
			writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, reply)
			writeMu.Unlock()
			if err != nil {
				t.logger.Error("websocket write failed", "client", clientID, "error", err)
			}
		}(data)
	}
}

func (t *WebSocketTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"name":    version.ServerName,
		"version": version.Version,
	})
}
