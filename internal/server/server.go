package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"windows-mcp-server/internal/config"
	"windows-mcp-server/internal/protocol"
	"windows-mcp-server/internal/security"
	"windows-mcp-server/internal/tools"
)

// Server wires the security gate, tool registry, and protocol handler
// together and exposes HandleMessage to the transports.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	auth     *security.Authenticator
	limiter  *security.RateLimiter
	sandbox  *security.Sandbox
	registry *tools.Registry
	handler  *protocol.Handler
}

// New builds a fully wired server from configuration.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	sandbox := security.NewSandbox(cfg.Security, logger)
	registry := tools.NewDefaultRegistry(cfg, sandbox, logger)

	return &Server{
		cfg:      cfg,
		logger:   logger,
		auth:     security.NewAuthenticator(cfg.Security, logger),
		limiter:  security.NewRateLimiter(cfg.Security, logger),
		sandbox:  sandbox,
		registry: registry,
		handler:  protocol.NewHandler(registry, logger),
	}
}

// Authenticator exposes the credential checker to transports.
func (s *Server) Authenticator() *security.Authenticator { return s.auth }

// RateLimiter exposes the limiter, mainly for tests and admin paths.
func (s *Server) RateLimiter() *security.RateLimiter { return s.limiter }

// Registry exposes the tool registry.
func (s *Server) Registry() *tools.Registry { return s.registry }

// HandleMessage processes one raw JSON-RPC message from clientID and
// returns the serialized reply, or nil when no reply is owed (a single
// notification, or a batch of only notifications).
func (s *Server) HandleMessage(ctx context.Context, raw []byte, clientID string) []byte {
	if !s.limiter.IsAllowed(clientID) {
		retryAfter := s.limiter.GetResetTime(clientID)
		s.logger.Warn("rate limit exceeded", "client", clientID, "retry_after", retryAfter)
		return s.marshal(protocol.NewErrorResponse(nil, protocol.NewRPCError(
			protocol.CodeRateLimited, "",
			map[string]interface{}{"retry_after_seconds": retryAfter.Seconds()},
		)))
	}

	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return s.marshal(protocol.NewErrorResponse(nil,
			protocol.NewRPCError(protocol.CodeParseError, "", "empty message")))
	}

	if trimmed[0] == '[' {
		return s.handleBatch(ctx, trimmed)
	}

	if !json.Valid(trimmed) {
		return s.marshal(protocol.NewErrorResponse(nil,
			protocol.NewRPCError(protocol.CodeParseError, "", "invalid JSON")))
	}

	resp := s.handleSingle(ctx, trimmed)
	if resp == nil {
		return nil
	}
	return s.marshal(resp)
}

// handleBatch answers a batch element-wise in input order. Responses of
// notifications are omitted; a batch of only notifications yields nil.
func (s *Server) handleBatch(ctx context.Context, raw []byte) []byte {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return s.marshal(protocol.NewErrorResponse(nil,
			protocol.NewRPCError(protocol.CodeParseError, "", err.Error())))
	}
	if len(elements) == 0 {
		return s.marshal(protocol.NewErrorResponse(nil,
			protocol.NewRPCError(protocol.CodeInvalidRequest, "", "empty batch")))
	}

	responses := make([]*protocol.Response, 0, len(elements))
	for _, element := range elements {
		if resp := s.handleSingle(ctx, element); resp != nil {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		return nil
	}

	data, err := json.Marshal(responses)
	if err != nil {
		s.logger.Error("failed to marshal batch response", "error", err)
		return s.marshal(protocol.NewErrorResponse(nil,
			protocol.NewRPCError(protocol.CodeInternalError, "", err.Error())))
	}
	return data
}

func (s *Server) handleSingle(ctx context.Context, raw []byte) *protocol.Response {
	req, rpcErr := protocol.ParseRequest(raw)
	if rpcErr != nil {
		return protocol.NewErrorResponse(nil, rpcErr)
	}

	reqCtx := ctx
	if s.cfg.Server.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.cfg.Server.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp := s.handler.HandleRequest(reqCtx, req)
	s.logger.Debug("handled request",
		"method", req.Method,
		"notification", req.IsNotification(),
		"duration", time.Since(start))
	return resp
}

func (s *Server) marshal(resp *protocol.Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", "error", err)
		return []byte(fmt.Sprintf(
			`{"jsonrpc":"2.0","id":null,"error":{"code":%d,"message":"Internal error"}}`,
			protocol.CodeInternalError))
	}
	return data
}
