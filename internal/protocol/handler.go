package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"windows-mcp-server/internal/version"
)

// ToolProvider is the slice of the tool registry the handler needs.
type ToolProvider interface {
	List() []ToolDefinition
	ExecuteTool(ctx context.Context, name string, args map[string]interface{}) *ToolResult
}

// Handler dispatches parsed JSON-RPC requests to MCP method
// implementations. It tracks the initialize handshake and in-flight
// tool calls so notifications/cancelled can abort them.
type Handler struct {
	tools  ToolProvider
	logger *slog.Logger

	mu          sync.Mutex
	handshaken  bool
	initialized bool
	clientCaps  map[string]interface{}
	pending     map[string]context.CancelFunc
}

// NewHandler creates a Handler over the given tool provider.
func NewHandler(tools ToolProvider, logger *slog.Logger) *Handler {
	return &Handler{
		tools:   tools,
		logger:  logger,
		pending: make(map[string]context.CancelFunc),
	}
}

// HandleRequest processes one request and returns its response, or nil
// when the request is a notification. Panics inside method handlers are
// contained and surface as internal errors.
func (h *Handler) HandleRequest(ctx context.Context, req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic in request handler", "method", req.Method, "panic", r)
			if req.IsNotification() {
				resp = nil
				return
			}
			resp = NewErrorResponse(req.ID, NewRPCError(CodeInternalError, "", fmt.Sprint(r)))
		}
	}()

	h.checkInitialized(req.Method)

	var (
		result interface{}
		rpcErr *RPCError
	)

	switch req.Method {
	case "initialize":
		result = h.handleInitialize(req.Params)
	case "initialized", "notifications/initialized":
		h.markInitialized()
	case "tools/list":
		result = h.handleToolsList()
	case "tools/call":
		result, rpcErr = h.handleToolsCall(ctx, req)
	case "notifications/cancelled":
		h.handleCancelled(req.Params)
	case "ping":
		result = map[string]interface{}{}
	default:
		rpcErr = NewRPCError(CodeMethodNotFound, "", fmt.Sprintf("unknown method: %s", req.Method))
	}

	if req.IsNotification() {
		if rpcErr != nil {
			h.logger.Warn("error handling notification", "method", req.Method, "code", rpcErr.Code, "message", rpcErr.Message)
		}
		return nil
	}
	if rpcErr != nil {
		return NewErrorResponse(req.ID, rpcErr)
	}
	return NewResponse(req.ID, result)
}

// checkInitialized logs non-handshake traffic seen before initialize.
// Requests are still served; strictness here breaks real clients.
func (h *Handler) checkInitialized(method string) {
	if method == "initialize" || method == "initialized" || method == "notifications/initialized" || method == "ping" {
		return
	}
	h.mu.Lock()
	ok := h.handshaken || h.initialized
	h.mu.Unlock()
	if !ok {
		h.logger.Warn("request received before initialize handshake", "method", method)
	}
}

// ClientCapabilities returns what the peer declared in initialize, nil
// before the handshake.
func (h *Handler) ClientCapabilities() map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clientCaps
}

func (h *Handler) markInitialized() {
	h.mu.Lock()
	h.initialized = true
	h.mu.Unlock()
	h.logger.Info("client initialization complete")
}

func (h *Handler) handleInitialize(params map[string]interface{}) *InitializeResult {
	clientVersion := ""
	if v, ok := params["protocolVersion"].(string); ok {
		clientVersion = v
	}
	if clientVersion != "" && clientVersion != version.ProtocolVersion {
		h.logger.Warn("client protocol version differs",
			"client", clientVersion, "server", version.ProtocolVersion)
	}

	// The handshake completes on the initialized notification; here the
	// client capabilities are only recorded.
	caps, _ := params["capabilities"].(map[string]interface{})
	h.mu.Lock()
	h.handshaken = true
	h.clientCaps = caps
	h.mu.Unlock()

	serverCaps := Capabilities{Tools: true, Logging: true}
	return &InitializeResult{
		ProtocolVersion: version.ProtocolVersion,
		Capabilities:    serverCaps,
		ServerInfo: ServerInfo{
			Name:            version.ServerName,
			Version:         version.Version,
			ProtocolVersion: version.ProtocolVersion,
			Capabilities:    serverCaps,
			Platform:        runtime.GOOS,
		},
	}
}

func (h *Handler) handleToolsList() *ToolsListResult {
	defs := h.tools.List()
	schemas := make([]map[string]interface{}, 0, len(defs))
	for _, def := range defs {
		schemas = append(schemas, def.ToMCPSchema())
	}
	return &ToolsListResult{Tools: schemas}
}

func (h *Handler) handleToolsCall(ctx context.Context, req *Request) (*ToolCallResult, *RPCError) {
	name, ok := req.Params["name"].(string)
	if !ok || name == "" {
		return nil, NewRPCError(CodeInvalidParams, "", "tool name is required")
	}

	args, _ := req.Params["arguments"].(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !req.IsNotification() {
		key := fmt.Sprint(req.ID)
		h.trackPending(key, cancel)
		defer h.untrackPending(key)
	}

	h.logger.Info("executing tool", "tool", name)
	result := h.tools.ExecuteTool(callCtx, name, args)

	if callCtx.Err() == context.Canceled {
		return nil, NewRPCError(CodeCancelled, "", fmt.Sprintf("tool call %s was cancelled", name))
	}

	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return ErrorResult(msg), nil
	}

	switch data := result.Data.(type) {
	case nil:
		return TextResult("Operation completed successfully"), nil
	case string:
		return TextResult(data), nil
	default:
		text, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return nil, NewRPCError(CodeInternalError, "", err.Error())
		}
		return TextResult(string(text)), nil
	}
}

// handleCancelled aborts the in-flight call named by requestId, if any.
func (h *Handler) handleCancelled(params map[string]interface{}) {
	rawID, ok := params["requestId"]
	if !ok {
		h.logger.Warn("cancellation notification without requestId")
		return
	}
	key := fmt.Sprint(rawID)

	h.mu.Lock()
	cancel, found := h.pending[key]
	h.mu.Unlock()

	if !found {
		h.logger.Debug("cancellation for unknown request", "request_id", key)
		return
	}
	h.logger.Info("cancelling in-flight request", "request_id", key)
	cancel()
}

func (h *Handler) trackPending(key string, cancel context.CancelFunc) {
	h.mu.Lock()
	h.pending[key] = cancel
	h.mu.Unlock()
}

func (h *Handler) untrackPending(key string) {
	h.mu.Lock()
	delete(h.pending, key)
	h.mu.Unlock()
}
