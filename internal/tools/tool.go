package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"windows-mcp-server/internal/protocol"
	"windows-mcp-server/internal/security"
)

// Tool is a single named, schema-described operation dispatched by
// tools/call. Implementations consult the Sandbox before touching the
// host and report failures as errors; SafeExecute owns the translation
// into ToolResult failure categories.
type Tool interface {
	Definition() protocol.ToolDefinition
	Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error)
}

// SafeExecute runs a tool with the uniform error-classification wrapper
// so no tool needs its own top-level translation. Panics are contained
// and become generic execution failures.
func SafeExecute(ctx context.Context, tool Tool, args map[string]interface{}, logger *slog.Logger) (result *protocol.ToolResult) {
	name := tool.Definition().Name

	defer func() {
		if r := recover(); r != nil {
			logger.Error("tool panicked", "tool", name, "panic", r)
			result = protocol.Fail(fmt.Sprintf("Execution error: %v", r))
		}
	}()

	logger.Info("executing tool", "tool", name)

	res, err := tool.Execute(ctx, args)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrPermissionDenied):
			logger.Warn("permission denied", "tool", name, "error", err)
			return protocol.Fail(fmt.Sprintf("Permission denied: %v", err))
		case errors.Is(err, os.ErrNotExist):
			logger.Warn("file not found", "tool", name, "error", err)
			return protocol.Fail(fmt.Sprintf("File not found: %v", err))
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
			logger.Warn("operation timeout", "tool", name, "error", err)
			return protocol.Fail(fmt.Sprintf("Operation timeout: %v", err))
		default:
			logger.Error("tool execution failed", "tool", name, "error", err)
			return protocol.Fail(fmt.Sprintf("Execution error: %v", err))
		}
	}

	if res == nil {
		return protocol.Fail("Execution error: tool returned no result")
	}

	logger.Info("tool execution complete", "tool", name, "success", res.Success)
	return res
}

// stringArg extracts a string argument, handling absence and type
// mismatches uniformly across tools.
func stringArg(args map[string]interface{}, key string, required bool) (string, error) {
	value, exists := args[key]
	if !exists || value == nil {
		if required {
			return "", fmt.Errorf("required parameter %q is missing", key)
		}
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string, got %T", key, value)
	}
	return s, nil
}

// intArg extracts an integer argument. JSON numbers decode as float64;
// whole values are accepted, fractional ones rejected.
func intArg(args map[string]interface{}, key string, required bool, defaultValue int) (int, error) {
	value, exists := args[key]
	if !exists || value == nil {
		if required {
			return 0, fmt.Errorf("required parameter %q is missing", key)
		}
		return defaultValue, nil
	}
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
		return 0, fmt.Errorf("parameter %q must be an integer, got %v", key, v)
	default:
		return 0, fmt.Errorf("parameter %q must be an integer, got %T", key, value)
	}
}

// boolArg extracts a boolean argument with a default.
func boolArg(args map[string]interface{}, key string, defaultValue bool) (bool, error) {
	value, exists := args[key]
	if !exists || value == nil {
		return defaultValue, nil
	}
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %q must be a boolean, got %T", key, value)
	}
	return b, nil
}
