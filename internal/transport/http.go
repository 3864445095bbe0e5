package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"windows-mcp-server/internal/protocol"
	"windows-mcp-server/internal/security"
	"windows-mcp-server/internal/version"
)

const httpMaxBodyBytes = 10 << 20

// HTTPTransport serves JSON-RPC over HTTP POST. Credentials travel in
// the X-API-Key or Authorization header and are checked before the
// body is read.
type HTTPTransport struct {
	server  *http.Server
	handler MessageHandler
	auth    *security.Authenticator
	logger  *slog.Logger
}

// NewHTTPTransport creates an HTTP transport listening on addr.
func NewHTTPTransport(addr string, handler MessageHandler, auth *security.Authenticator, logger *slog.Logger) *HTTPTransport {
	t := &HTTPTransport{
		handler: handler,
		auth:    auth,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", t.handleRPC)
	mux.HandleFunc("/health", t.handleHealth)

	t.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return t
}

// Start serves until Stop is called or the listener fails.
func (t *HTTPTransport) Start(ctx context.Context) error {
	t.logger.Info("http transport started", "addr", t.server.Addr)
	err := t.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop drains connections gracefully within the context deadline.
func (t *HTTPTransport) Stop(ctx context.Context) error {
	return t.server.Shutdown(ctx)
}

func (t *HTTPTransport) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := t.auth.Authenticate(r.Header.Get("X-API-Key"), r.Header.Get("Authorization"))
	if !result.Authenticated {
		t.logger.Warn("rejected unauthenticated request", "remote", r.RemoteAddr, "reason", result.Error)
		t.writeJSON(w, http.StatusUnauthorized, protocol.NewErrorResponse(nil,
			protocol.NewRPCError(protocol.CodeAuthenticationRequired, "", result.Error)))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, httpMaxBodyBytes))
	if err != nil {
		t.writeJSON(w, http.StatusBadRequest, protocol.NewErrorResponse(nil,
			protocol.NewRPCError(protocol.CodeParseError, "", err.Error())))
		return
	}

	// With a signing secret configured, every request must carry a
	// valid HMAC signature over method, path, timestamp, and body.
	if t.auth.SigningEnabled() {
		sig := r.Header.Get("X-Signature")
		ts := r.Header.Get("X-Timestamp")
		if !t.auth.VerifySignature(r.Method, r.URL.Path, body, ts, sig) {
			t.logger.Warn("rejected request with invalid signature", "remote", r.RemoteAddr)
			t.writeJSON(w, http.StatusUnauthorized, protocol.NewErrorResponse(nil,
				protocol.NewRPCError(protocol.CodeAuthenticationRequired, "Invalid request signature", nil)))
			return
		}
	}

	clientID := result.ClientID
	if clientID == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			clientID = host
		} else {
			clientID = r.RemoteAddr
		}
	}

	reply := t.handler(r.Context(), body, clientID)
	if reply == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(reply); err != nil {
		t.logger.Error("failed to write response", "error", err)
	}
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	t.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"name":    version.ServerName,
		"version": version.Version,
	})
}

func (t *HTTPTransport) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.logger.Error("failed to encode response", "error", err)
	}
}

// Addr formats a host/port pair for the HTTP and WebSocket listeners.
func Addr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
