package tools

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"windows-mcp-server/internal/protocol"
)

const categoryWindow = "window"

const errWindowNotSupported = "Platform not supported: window tools require Windows"

// listWindowsScript enumerates top-level windows with process names via
// the process table; minimized/hidden windows have no main window title.
const listWindowsScript = `Get-Process | Where-Object { $_.MainWindowTitle } | ForEach-Object { "{0}|{1}|{2}" -f $_.Id, $_.ProcessName, $_.MainWindowTitle }`

// psEscaper neutralizes the metacharacters of a PowerShell double-quoted
// string so caller input cannot terminate the literal or expand
// variables and subexpressions.
var psEscaper = strings.NewReplacer(
	"`", "``",
	`"`, "`\"",
	"$", "`$",
	"\x00", "",
)

func psEscape(s string) string {
	return psEscaper.Replace(s)
}

func runWindowScript(ctx context.Context, script string) (string, error) {
	cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", script)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("window query failed: %w", err)
	}
	return string(out), nil
}

func parseWindowLines(output string) []map[string]interface{} {
	var windows []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		parts := strings.SplitN(strings.TrimRight(line, "\r"), "|", 3)
		if len(parts) != 3 {
			continue
		}
		windows = append(windows, map[string]interface{}{
			"pid":     strings.TrimSpace(parts[0]),
			"process": parts[1],
			"title":   parts[2],
		})
	}
	return windows
}

// ListWindowsTool enumerates visible top-level windows.
type ListWindowsTool struct{}

func (t *ListWindowsTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "list_windows",
		Description: "List visible top-level windows",
		Category:    categoryWindow,
		Parameters:  []protocol.ToolParameter{},
	}
}

func (t *ListWindowsTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	if runtime.GOOS != "windows" {
		return protocol.Fail(errWindowNotSupported), nil
	}
	out, err := runWindowScript(ctx, listWindowsScript)
	if err != nil {
		return nil, err
	}
	windows := parseWindowLines(out)
	res := protocol.OK(windows)
	res.Metadata["count"] = len(windows)
	return res, nil
}

// GetActiveWindowTool reports the foreground window.
type GetActiveWindowTool struct{}

func (t *GetActiveWindowTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "get_active_window",
		Description: "Get the currently focused window",
		Category:    categoryWindow,
		Parameters:  []protocol.ToolParameter{},
	}
}

func (t *GetActiveWindowTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	if runtime.GOOS != "windows" {
		return protocol.Fail(errWindowNotSupported), nil
	}
	script := `Add-Type @"
using System;
using System.Runtime.InteropServices;
public class FG {
  [DllImport("user32.dll")] public static extern IntPtr GetForegroundWindow();
  [DllImport("user32.dll")] public static extern int GetWindowText(IntPtr h, System.Text.StringBuilder s, int n);
}
"@; $h=[FG]::GetForegroundWindow(); $sb=New-Object System.Text.StringBuilder 256; [void][FG]::GetWindowText($h,$sb,256); $sb.ToString()`
	out, err := runWindowScript(ctx, script)
	if err != nil {
		return nil, err
	}
	return protocol.OK(map[string]interface{}{"title": strings.TrimSpace(out)}), nil
}

// SetWindowStateTool minimizes, maximizes, or restores a window by title.
type SetWindowStateTool struct{}

func (t *SetWindowStateTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:          "set_window_state",
		Description:   "Minimize, maximize, or restore a window by title",
		Category:      categoryWindow,
		IsDestructive: true,
		Parameters: []protocol.ToolParameter{
			{Name: "title", Description: "Window title substring", Type: "string", Required: true},
			{Name: "state", Description: "Target state", Type: "string", Required: true, Enum: []string{"minimize", "maximize", "restore"}},
		},
	}
}

func (t *SetWindowStateTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	title, err := stringArg(args, "title", true)
	if err != nil {
		return nil, err
	}
	state, err := stringArg(args, "state", true)
	if err != nil {
		return nil, err
	}

	showCmd := map[string]int{"minimize": 6, "maximize": 3, "restore": 9}[state]
	if showCmd == 0 {
		return nil, fmt.Errorf("invalid state %q, expected minimize, maximize, or restore", state)
	}
	if runtime.GOOS != "windows" {
		return protocol.Fail(errWindowNotSupported), nil
	}

	out, err := runWindowScript(ctx, buildSetWindowScript(title, showCmd))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out) != "ok" {
		return protocol.Fail(fmt.Sprintf("Window not found: %s", title)), nil
	}

	res := protocol.OK(fmt.Sprintf("Window %q set to %s", title, state))
	res.Metadata["state"] = state
	return res, nil
}

// buildSetWindowScript renders the ShowWindow script. The title is
// caller input and must be escaped before entering the string literal.
func buildSetWindowScript(title string, showCmd int) string {
	return fmt.Sprintf(`Add-Type @"
using System;
using System.Runtime.InteropServices;
public class SW { [DllImport("user32.dll")] public static extern bool ShowWindow(IntPtr h, int n); }
"@; $p = Get-Process | Where-Object { $_.MainWindowTitle -like "*%s*" } | Select-Object -First 1; if ($p) { [SW]::ShowWindow($p.MainWindowHandle, %d); "ok" } else { "not found" }`, psEscape(title), showCmd)
}

// FindWindowTool finds windows whose title contains a substring.
type FindWindowTool struct{}

func (t *FindWindowTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "find_window",
		Description: "Find windows whose title contains a substring",
		Category:    categoryWindow,
		Parameters: []protocol.ToolParameter{
			{Name: "title", Description: "Window title substring", Type: "string", Required: true},
		},
	}
}

func (t *FindWindowTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	title, err := stringArg(args, "title", true)
	if err != nil {
		return nil, err
	}
	if runtime.GOOS != "windows" {
		return protocol.Fail(errWindowNotSupported), nil
	}

	out, err := runWindowScript(ctx, listWindowsScript)
	if err != nil {
		return nil, err
	}

	titleLower := strings.ToLower(title)
	var matches []map[string]interface{}
	for _, w := range parseWindowLines(out) {
		if t, ok := w["title"].(string); ok && strings.Contains(strings.ToLower(t), titleLower) {
			matches = append(matches, w)
		}
	}

	res := protocol.OK(matches)
	res.Metadata["count"] = len(matches)
	res.Metadata["query"] = title
	return res, nil
}
