package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"windows-mcp-server/internal/protocol"
	"windows-mcp-server/internal/security"
)

const categoryProcess = "process"

// ListProcessesTool enumerates running processes.
type ListProcessesTool struct {
	sandbox *security.Sandbox
}

func (t *ListProcessesTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "list_processes",
		Description: "List running processes, optionally filtered by name",
		Category:    categoryProcess,
		Parameters: []protocol.ToolParameter{
			{Name: "filter", Description: "Substring to filter process names", Type: "string", Required: false},
		},
	}
}

func (t *ListProcessesTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	filter, err := stringArg(args, "filter", false)
	if err != nil {
		return nil, err
	}
	if err := t.sandbox.CheckProcessOperation("list", "", 0); err != nil {
		return nil, err
	}

	output, err := listProcessesRaw(ctx)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if filter != "" {
		filtered := lines[:0]
		filterLower := strings.ToLower(filter)
		for _, line := range lines {
			if strings.Contains(strings.ToLower(line), filterLower) {
				filtered = append(filtered, line)
			}
		}
		lines = filtered
	}

	res := protocol.OK(lines)
	res.Metadata["count"] = len(lines)
	res.Metadata["filter"] = filter
	return res, nil
}

func listProcessesRaw(ctx context.Context) (string, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "tasklist", "/FO", "CSV", "/NH")
	} else {
		cmd = exec.CommandContext(ctx, "ps", "-eo", "pid,comm,pcpu,pmem")
	}
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to list processes: %w", err)
	}
	return string(out), nil
}

// StartProcessTool launches a program without waiting for it.
type StartProcessTool struct {
	sandbox *security.Sandbox
}

func (t *StartProcessTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:          "start_process",
		Description:   "Start a new process from an executable path",
		Category:      categoryProcess,
		IsDestructive: true,
		Parameters: []protocol.ToolParameter{
			{Name: "path", Description: "Executable path", Type: "string", Required: true},
			{Name: "args", Description: "Arguments to pass", Type: "array", Required: false},
			{Name: "working_dir", Description: "Working directory", Type: "string", Required: false},
		},
	}
}

func (t *StartProcessTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	path, err := stringArg(args, "path", true)
	if err != nil {
		return nil, err
	}
	workingDir, err := stringArg(args, "working_dir", false)
	if err != nil {
		return nil, err
	}
	if err := t.sandbox.CheckProcessOperation("start", path, 0); err != nil {
		return nil, err
	}

	var cmdArgs []string
	if raw, ok := args["args"].([]interface{}); ok {
		for _, a := range raw {
			cmdArgs = append(cmdArgs, fmt.Sprint(a))
		}
	}

	cmd := exec.Command(path, cmdArgs...)
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	pid := cmd.Process.Pid

	// Reap in the background so the child never zombies.
	go func() { _ = cmd.Wait() }()

	res := protocol.OK(map[string]interface{}{"pid": pid, "path": path})
	res.Metadata["pid"] = pid
	return res, nil
}

// StopProcessTool terminates a process by pid or name.
type StopProcessTool struct {
	sandbox *security.Sandbox
}

func (t *StopProcessTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:          "stop_process",
		Description:   "Stop a running process by PID or name",
		Category:      categoryProcess,
		IsDestructive: true,
		Parameters: []protocol.ToolParameter{
			{Name: "pid", Description: "Process ID to stop", Type: "number", Required: false},
			{Name: "name", Description: "Process name to stop", Type: "string", Required: false},
		},
	}
}

func (t *StopProcessTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	pid, err := intArg(args, "pid", false, 0)
	if err != nil {
		return nil, err
	}
	name, err := stringArg(args, "name", false)
	if err != nil {
		return nil, err
	}
	if pid == 0 && name == "" {
		return nil, fmt.Errorf("either pid or name is required")
	}

	if err := t.sandbox.CheckProcessOperation("stop", name, pid); err != nil {
		return nil, err
	}

	if pid != 0 {
		proc, err := os.FindProcess(pid)
		if err != nil {
			return nil, err
		}
		if err := proc.Kill(); err != nil {
			return nil, err
		}
		res := protocol.OK(fmt.Sprintf("Stopped process %d", pid))
		res.Metadata["pid"] = pid
		return res, nil
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "taskkill", "/IM", name, "/F")
	} else {
		cmd = exec.CommandContext(ctx, "pkill", "-x", name)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return protocol.Fail(fmt.Sprintf("Failed to stop process %s: %s", name, strings.TrimSpace(string(out)))), nil
	}

	res := protocol.OK(fmt.Sprintf("Stopped process %s", name))
	res.Metadata["name"] = name
	return res, nil
}

// ProcessInfoTool reports details for one pid.
type ProcessInfoTool struct {
	sandbox *security.Sandbox
}

func (t *ProcessInfoTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "process_info",
		Description: "Get detailed information about a process by PID",
		Category:    categoryProcess,
		Parameters: []protocol.ToolParameter{
			{Name: "pid", Description: "Process ID", Type: "number", Required: true},
		},
	}
}

func (t *ProcessInfoTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	pid, err := intArg(args, "pid", true, 0)
	if err != nil {
		return nil, err
	}
	if err := t.sandbox.CheckProcessOperation("info", "", pid); err != nil {
		return nil, err
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/FO", "CSV", "/NH")
	} else {
		cmd = exec.CommandContext(ctx, "ps", "-p", fmt.Sprint(pid), "-o", "pid,comm,pcpu,pmem,etime")
	}
	out, err := cmd.Output()
	if err != nil {
		return protocol.Fail(fmt.Sprintf("Process not found: %d", pid)), nil
	}

	res := protocol.OK(strings.TrimSpace(string(out)))
	res.Metadata["pid"] = pid
	return res, nil
}

// ExecuteCommandTool runs a command and captures its output, bounded by
// the configured process timeout.
type ExecuteCommandTool struct {
	sandbox *security.Sandbox
	timeout int
}

func (t *ExecuteCommandTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:          "execute_command",
		Description:   "Execute a command and return its output",
		Category:      categoryProcess,
		IsDestructive: true,
		Parameters: []protocol.ToolParameter{
			{Name: "command", Description: "Command to execute", Type: "string", Required: true},
			{Name: "args", Description: "Arguments to pass", Type: "array", Required: false},
			{Name: "working_dir", Description: "Working directory", Type: "string", Required: false},
		},
	}
}

func (t *ExecuteCommandTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	command, err := stringArg(args, "command", true)
	if err != nil {
		return nil, err
	}
	workingDir, err := stringArg(args, "working_dir", false)
	if err != nil {
		return nil, err
	}
	if err := t.sandbox.CheckProcessOperation("start", command, 0); err != nil {
		return nil, err
	}

	var cmdArgs []string
	if raw, ok := args["args"].([]interface{}); ok {
		for _, a := range raw {
			cmdArgs = append(cmdArgs, fmt.Sprint(a))
		}
	}

	timeout := time.Duration(t.timeout) * time.Second
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(cmdCtx, command, cmdArgs...)
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	out, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if cmdCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("command timed out after %s: %w", timeout, context.DeadlineExceeded)
	}

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return nil, err
	}

	res := protocol.OK(string(out))
	res.Metadata["command"] = command
	res.Metadata["exit_code"] = exitCode
	res.Metadata["duration_ms"] = elapsed.Milliseconds()
	return res, nil
}
