package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"windows-mcp-server/internal/protocol"
	"windows-mcp-server/internal/security"
	"windows-mcp-server/internal/version"
)

const categorySystem = "system"

// SystemInfoTool reports host and runtime facts.
type SystemInfoTool struct{}

func (t *SystemInfoTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "system_info",
		Description: "Get operating system and host information",
		Category:    categorySystem,
		Parameters:  []protocol.ToolParameter{},
	}
}

func (t *SystemInfoTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	info := map[string]interface{}{
		"hostname":       hostname,
		"os":             runtime.GOOS,
		"arch":           runtime.GOARCH,
		"cpus":           runtime.NumCPU(),
		"go_version":     runtime.Version(),
		"server_version": version.Version,
	}
	if wd, err := os.Getwd(); err == nil {
		info["working_dir"] = wd
	}

	return protocol.OK(info), nil
}

// DiskInfoTool reports disk usage for a path via the platform tools.
type DiskInfoTool struct {
	sandbox *security.Sandbox
}

func (t *DiskInfoTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "disk_info",
		Description: "Get disk usage information for a path or all drives",
		Category:    categorySystem,
		Parameters: []protocol.ToolParameter{
			{Name: "path", Description: "Path to report usage for", Type: "string", Required: false},
		},
	}
}

func (t *DiskInfoTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	path, err := stringArg(args, "path", false)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if _, err := t.sandbox.CheckFileAccess(path, "read"); err != nil {
			return nil, err
		}
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		script := "Get-PSDrive -PSProvider FileSystem | Select-Object Name,Used,Free | Format-Table -AutoSize | Out-String"
		cmd = exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script)
	} else if path != "" {
		cmd = exec.CommandContext(ctx, "df", "-h", path)
	} else {
		cmd = exec.CommandContext(ctx, "df", "-h")
	}

	out, err := cmd.Output()
	if err != nil {
		return protocol.Fail(fmt.Sprintf("Failed to query disk usage: %v", err)), nil
	}

	res := protocol.OK(strings.TrimSpace(string(out)))
	if path != "" {
		res.Metadata["path"] = path
	}
	return res, nil
}

// MemoryInfoTool reports physical memory usage.
type MemoryInfoTool struct{}

func (t *MemoryInfoTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "memory_info",
		Description: "Get physical memory usage information",
		Category:    categorySystem,
		Parameters:  []protocol.ToolParameter{},
	}
}

func (t *MemoryInfoTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		script := "Get-CimInstance Win32_OperatingSystem | Select-Object TotalVisibleMemorySize,FreePhysicalMemory | Format-List | Out-String"
		cmd = exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script)
	case "darwin":
		cmd = exec.CommandContext(ctx, "vm_stat")
	default:
		cmd = exec.CommandContext(ctx, "free", "-m")
	}

	out, err := cmd.Output()
	if err != nil {
		return protocol.Fail(fmt.Sprintf("Failed to query memory: %v", err)), nil
	}

	return protocol.OK(strings.TrimSpace(string(out))), nil
}

// EnvironmentVariableTool reads one environment variable or lists all
// of them, names sorted for deterministic output.
type EnvironmentVariableTool struct{}

func (t *EnvironmentVariableTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "environment_variable",
		Description: "Read an environment variable, or list all variable names",
		Category:    categorySystem,
		Parameters: []protocol.ToolParameter{
			{Name: "name", Description: "Variable name to read; omit to list all names", Type: "string", Required: false},
		},
	}
}

func (t *EnvironmentVariableTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	name, err := stringArg(args, "name", false)
	if err != nil {
		return nil, err
	}

	if name != "" {
		value, ok := os.LookupEnv(name)
		if !ok {
			return protocol.Fail(fmt.Sprintf("Environment variable not set: %s", name)), nil
		}
		res := protocol.OK(value)
		res.Metadata["name"] = name
		return res, nil
	}

	var names []string
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			names = append(names, kv[:i])
		}
	}
	sort.Strings(names)

	res := protocol.OK(names)
	res.Metadata["count"] = len(names)
	return res, nil
}
