package tools

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"windows-mcp-server/internal/protocol"
	"windows-mcp-server/internal/security"
)

const categoryRegistry = "registry"

const errPlatformNotSupported = "Platform not supported: registry tools require Windows"

// queryRegistry shells out to `reg query` with a timeout. All registry
// tools are read-only; the sandbox refuses every other operation.
func queryRegistry(ctx context.Context, timeoutSecs int, args ...string) (string, error) {
	qctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(qctx, "reg", args...)
	out, err := cmd.Output()
	if qctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("registry query timed out: %w", context.DeadlineExceeded)
	}
	if err != nil {
		return "", fmt.Errorf("registry query failed: %w", err)
	}
	return string(out), nil
}

// parseSubKeys extracts the sub-key paths from `reg query` output,
// sorted lexicographically so traversal order is deterministic.
func parseSubKeys(output, keyPath string) []string {
	var keys []string
	prefix := strings.ToUpper(keyPath)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(strings.ToUpper(line), prefix+`\`) {
			keys = append(keys, line)
		}
	}
	sort.Strings(keys)
	return keys
}

// ReadRegistryTool reads the values of a single key.
type ReadRegistryTool struct {
	sandbox *security.Sandbox
	timeout int
}

func (t *ReadRegistryTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "read_registry",
		Description: "Read values of a Windows registry key",
		Category:    categoryRegistry,
		Parameters: []protocol.ToolParameter{
			{Name: "key_path", Description: "Registry key path (e.g., HKLM\\SOFTWARE\\Microsoft)", Type: "string", Required: true},
			{Name: "value_name", Description: "Specific value name to read", Type: "string", Required: false},
		},
	}
}

func (t *ReadRegistryTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	keyPath, err := stringArg(args, "key_path", true)
	if err != nil {
		return nil, err
	}
	valueName, err := stringArg(args, "value_name", false)
	if err != nil {
		return nil, err
	}
	if err := t.sandbox.CheckRegistryAccess(keyPath, "read"); err != nil {
		return nil, err
	}
	if runtime.GOOS != "windows" {
		return protocol.Fail(errPlatformNotSupported), nil
	}

	queryArgs := []string{"query", keyPath}
	if valueName != "" {
		queryArgs = append(queryArgs, "/v", valueName)
	}
	out, err := queryRegistry(ctx, t.timeout, queryArgs...)
	if err != nil {
		return nil, err
	}

	res := protocol.OK(strings.TrimSpace(out))
	res.Metadata["key_path"] = keyPath
	return res, nil
}

// ListRegistryKeysTool lists the immediate sub-keys of a key.
type ListRegistryKeysTool struct {
	sandbox *security.Sandbox
	timeout int
}

func (t *ListRegistryKeysTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "list_registry_keys",
		Description: "List sub-keys of a Windows registry key",
		Category:    categoryRegistry,
		Parameters: []protocol.ToolParameter{
			{Name: "key_path", Description: "Registry key path", Type: "string", Required: true},
		},
	}
}

func (t *ListRegistryKeysTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	keyPath, err := stringArg(args, "key_path", true)
	if err != nil {
		return nil, err
	}
	if err := t.sandbox.CheckRegistryAccess(keyPath, "read"); err != nil {
		return nil, err
	}
	if runtime.GOOS != "windows" {
		return protocol.Fail(errPlatformNotSupported), nil
	}

	out, err := queryRegistry(ctx, t.timeout, "query", keyPath)
	if err != nil {
		return nil, err
	}

	keys := parseSubKeys(out, keyPath)
	res := protocol.OK(keys)
	res.Metadata["key_path"] = keyPath
	res.Metadata["count"] = len(keys)
	return res, nil
}

// SearchRegistryTool recursively searches sub-keys for a name fragment.
// Traversal is depth-first in lexicographic key order with max_depth and
// max_results cutoffs, so results are reproducible across runs.
type SearchRegistryTool struct {
	sandbox    *security.Sandbox
	timeout    int
	maxDepth   int
	maxResults int
}

func (t *SearchRegistryTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "search_registry",
		Description: "Search Windows registry key names for a substring",
		Category:    categoryRegistry,
		Parameters: []protocol.ToolParameter{
			{Name: "key_path", Description: "Registry key path to search under", Type: "string", Required: true},
			{Name: "query", Description: "Substring to match in key names", Type: "string", Required: true},
		},
	}
}

func (t *SearchRegistryTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	keyPath, err := stringArg(args, "key_path", true)
	if err != nil {
		return nil, err
	}
	query, err := stringArg(args, "query", true)
	if err != nil {
		return nil, err
	}
	if err := t.sandbox.CheckRegistryAccess(keyPath, "read"); err != nil {
		return nil, err
	}
	if runtime.GOOS != "windows" {
		return protocol.Fail(errPlatformNotSupported), nil
	}

	var results []string
	queryLower := strings.ToLower(query)

	var walk func(key string, depth int) error
	walk = func(key string, depth int) error {
		if depth > t.maxDepth || len(results) >= t.maxResults {
			return nil
		}
		out, err := queryRegistry(ctx, t.timeout, "query", key)
		if err != nil {
			return nil // unreadable keys are skipped
		}
		for _, sub := range parseSubKeys(out, key) {
			if len(results) >= t.maxResults {
				return nil
			}
			if strings.Contains(strings.ToLower(sub), queryLower) {
				results = append(results, sub)
			}
			if err := walk(sub, depth+1); err != nil {
				return err
			}
		}
		return ctx.Err()
	}

	if err := walk(keyPath, 1); err != nil {
		return nil, err
	}

	res := protocol.OK(results)
	res.Metadata["key_path"] = keyPath
	res.Metadata["query"] = query
	res.Metadata["result_count"] = len(results)
	res.Metadata["truncated"] = len(results) >= t.maxResults
	return res, nil
}
