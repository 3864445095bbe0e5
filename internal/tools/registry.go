package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"windows-mcp-server/internal/config"
	"windows-mcp-server/internal/protocol"
	"windows-mcp-server/internal/security"
)

// Registry is the name-keyed collection of tools. The table is populated
// at startup and read-mostly afterwards; runtime (un)registration takes
// the write lock.
type Registry struct {
	mu      sync.RWMutex
	sandbox *security.Sandbox
	tools   map[string]Tool
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(sandbox *security.Sandbox, logger *slog.Logger) *Registry {
	return &Registry{
		sandbox: sandbox,
		tools:   make(map[string]Tool),
		logger:  logger,
	}
}

// Register adds a tool. Re-registration under an existing name
// overwrites with a log line, never fails.
func (r *Registry) Register(tool Tool) {
	def := tool.Definition()
	r.mu.Lock()
	if _, exists := r.tools[def.Name]; exists {
		r.logger.Warn("overwriting existing tool", "tool", def.Name)
	}
	r.tools[def.Name] = tool
	r.mu.Unlock()
	r.logger.Info("registered tool", "tool", def.Name, "category", def.Category)
}

// Unregister removes a tool, reporting whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	_, ok := r.tools[name]
	if ok {
		delete(r.tools, name)
	}
	r.mu.Unlock()
	if ok {
		r.logger.Info("unregistered tool", "tool", name)
	}
	return ok
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	return tool, ok
}

// List returns the definitions of all registered tools.
func (r *Registry) List() []protocol.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]protocol.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition())
	}
	return defs
}

// ListByCategory returns definitions filtered by category.
func (r *Registry) ListByCategory(category string) []protocol.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var defs []protocol.ToolDefinition
	for _, tool := range r.tools {
		if def := tool.Definition(); def.Category == category {
			defs = append(defs, def)
		}
	}
	return defs
}

// ExecuteTool dispatches by name through the safe-execute wrapper. An
// unknown name is a failed result, not an error.
func (r *Registry) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) *protocol.ToolResult {
	tool, ok := r.Get(name)
	if !ok {
		r.logger.Warn("tool not found", "tool", name)
		return protocol.Fail(fmt.Sprintf("Tool not found: %s", name))
	}
	return SafeExecute(ctx, tool, args, r.logger)
}

// NewDefaultRegistry builds the registry with the full host-automation
// tool set, gated by the security toggles.
func NewDefaultRegistry(cfg *config.Config, sandbox *security.Sandbox, logger *slog.Logger) *Registry {
	registry := NewRegistry(sandbox, logger)

	// File system tools
	registry.Register(&ReadFileTool{sandbox: sandbox, maxSize: cfg.Tools.FileMaxSize})
	registry.Register(&WriteFileTool{sandbox: sandbox, maxSize: cfg.Tools.FileMaxSize, allowedExtensions: cfg.Tools.FileAllowedExtensions})
	registry.Register(&ListDirectoryTool{sandbox: sandbox})
	registry.Register(&CreateDirectoryTool{sandbox: sandbox})
	registry.Register(&DeleteFileTool{sandbox: sandbox})
	registry.Register(&CopyFileTool{sandbox: sandbox, maxSize: cfg.Tools.FileMaxSize})
	registry.Register(&MoveFileTool{sandbox: sandbox})
	registry.Register(&FileInfoTool{sandbox: sandbox})
	registry.Register(&SearchFilesTool{sandbox: sandbox})
	registry.Register(&WatchFileTool{sandbox: sandbox})

	// Process tools
	if cfg.Security.AllowProcessManagement {
		registry.Register(&ListProcessesTool{sandbox: sandbox})
		registry.Register(&StartProcessTool{sandbox: sandbox})
		registry.Register(&StopProcessTool{sandbox: sandbox})
		registry.Register(&ProcessInfoTool{sandbox: sandbox})
		registry.Register(&ExecuteCommandTool{sandbox: sandbox, timeout: cfg.Tools.ProcessTimeout})
	}

	// Registry tools
	if cfg.Security.AllowRegistryAccess {
		registry.Register(&ReadRegistryTool{sandbox: sandbox, timeout: cfg.Tools.RegistryTimeout})
		registry.Register(&ListRegistryKeysTool{sandbox: sandbox, timeout: cfg.Tools.RegistryTimeout})
		registry.Register(&SearchRegistryTool{sandbox: sandbox, timeout: cfg.Tools.RegistryTimeout,
			maxDepth: cfg.Tools.RegistryMaxDepth, maxResults: cfg.Tools.RegistryMaxResults})
	}

	// Clipboard tools
	if cfg.Security.AllowClipboardAccess {
		registry.Register(&GetClipboardTool{sandbox: sandbox, maxSize: cfg.Tools.ClipboardMaxSize})
		registry.Register(&SetClipboardTool{sandbox: sandbox, maxSize: cfg.Tools.ClipboardMaxSize})
	}

	// Window management tools. set_window_state drives other processes'
	// windows, so it rides the process management toggle.
	registry.Register(&ListWindowsTool{})
	registry.Register(&GetActiveWindowTool{})
	registry.Register(&FindWindowTool{})
	if cfg.Security.AllowProcessManagement {
		registry.Register(&SetWindowStateTool{})
	}

	// System info tools
	registry.Register(&SystemInfoTool{})
	registry.Register(&DiskInfoTool{sandbox: sandbox})
	registry.Register(&MemoryInfoTool{})
	registry.Register(&EnvironmentVariableTool{})

	logger.Info("registered default tools", "count", len(registry.tools))
	return registry
}
