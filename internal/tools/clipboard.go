package tools

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"windows-mcp-server/internal/protocol"
	"windows-mcp-server/internal/security"
)

const categoryClipboard = "clipboard"

// GetClipboardTool reads the current clipboard text.
type GetClipboardTool struct {
	sandbox *security.Sandbox
	maxSize int
}

func (t *GetClipboardTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "get_clipboard",
		Description: "Get the current text content of the clipboard",
		Category:    categoryClipboard,
		Parameters:  []protocol.ToolParameter{},
	}
}

func (t *GetClipboardTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	if err := t.sandbox.CheckClipboardAccess("read"); err != nil {
		return nil, err
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", "Get-Clipboard")
	case "darwin":
		cmd = exec.CommandContext(ctx, "pbpaste")
	default:
		cmd = exec.CommandContext(ctx, "xclip", "-selection", "clipboard", "-o")
	}

	out, err := cmd.Output()
	if err != nil {
		return protocol.Fail(fmt.Sprintf("Failed to read clipboard: %v", err)), nil
	}

	content := string(out)
	if t.maxSize > 0 && len(content) > t.maxSize {
		content = content[:t.maxSize]
	}

	res := protocol.OK(content)
	res.Metadata["size"] = len(content)
	return res, nil
}

// SetClipboardTool replaces the clipboard text, size-capped.
type SetClipboardTool struct {
	sandbox *security.Sandbox
	maxSize int
}

func (t *SetClipboardTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:          "set_clipboard",
		Description:   "Set the text content of the clipboard",
		Category:      categoryClipboard,
		IsDestructive: true,
		Parameters: []protocol.ToolParameter{
			{Name: "content", Description: "Text to place on the clipboard", Type: "string", Required: true},
		},
	}
}

func (t *SetClipboardTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	content, err := stringArg(args, "content", true)
	if err != nil {
		return nil, err
	}
	if err := t.sandbox.CheckClipboardAccess("write"); err != nil {
		return nil, err
	}
	if t.maxSize > 0 && len(content) > t.maxSize {
		return protocol.Fail(fmt.Sprintf("Content too large: %d bytes (max %d)", len(content), t.maxSize)), nil
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.CommandContext(ctx, "clip")
	case "darwin":
		cmd = exec.CommandContext(ctx, "pbcopy")
	default:
		cmd = exec.CommandContext(ctx, "xclip", "-selection", "clipboard")
	}
	cmd.Stdin = strings.NewReader(content)

	if err := cmd.Run(); err != nil {
		return protocol.Fail(fmt.Sprintf("Failed to set clipboard: %v", err)), nil
	}

	res := protocol.OK(fmt.Sprintf("Clipboard set (%d bytes)", len(content)))
	res.Metadata["size"] = len(content)
	return res, nil
}
