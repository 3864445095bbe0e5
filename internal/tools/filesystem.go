package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"

	"windows-mcp-server/internal/protocol"
	"windows-mcp-server/internal/security"
)

const categoryFilesystem = "filesystem"

// ReadFileTool reads file contents, optionally windowed by offset/limit.
type ReadFileTool struct {
	sandbox *security.Sandbox
	maxSize int64
}

func (t *ReadFileTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "read_file",
		Description: "Read the contents of a file at the specified path",
		Category:    categoryFilesystem,
		Parameters: []protocol.ToolParameter{
			{Name: "path", Description: "Path to the file to read", Type: "string", Required: true},
			{Name: "offset", Description: "Byte offset to start reading from", Type: "number", Required: false, Default: 0},
			{Name: "limit", Description: "Maximum bytes to read (0 for unlimited)", Type: "number", Required: false, Default: 0},
		},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	path, err := stringArg(args, "path", true)
	if err != nil {
		return nil, err
	}
	offset, err := intArg(args, "offset", false, 0)
	if err != nil {
		return nil, err
	}
	limit, err := intArg(args, "limit", false, 0)
	if err != nil {
		return nil, err
	}

	validated, err := t.sandbox.CheckFileAccess(path, "read")
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(validated)
	if err != nil {
		return protocol.Fail(fmt.Sprintf("File not found: %s", path)), nil
	}
	if info.IsDir() {
		return protocol.Fail(fmt.Sprintf("Path is not a file: %s", path)), nil
	}
	if t.maxSize > 0 && info.Size() > t.maxSize && limit == 0 {
		return protocol.Fail(fmt.Sprintf("File too large: %d bytes (max %d)", info.Size(), t.maxSize)), nil
	}

	f, err := os.Open(validated)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
			return nil, err
		}
	}

	var reader io.Reader = f
	if limit > 0 {
		reader = io.LimitReader(f, int64(limit))
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if !utf8.Valid(data) {
		res := protocol.OK(fmt.Sprintf("<binary file, %d bytes>", len(data)))
		res.Metadata["path"] = validated
		res.Metadata["binary"] = true
		return res, nil
	}

	res := protocol.OK(string(data))
	res.Metadata["path"] = validated
	res.Metadata["size"] = len(data)
	return res, nil
}

// WriteFileTool writes content to a file, creating it when absent.
type WriteFileTool struct {
	sandbox           *security.Sandbox
	maxSize           int64
	allowedExtensions []string
}

func (t *WriteFileTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:          "write_file",
		Description:   "Write content to a file, creating it if it doesn't exist",
		Category:      categoryFilesystem,
		IsDestructive: true,
		Parameters: []protocol.ToolParameter{
			{Name: "path", Description: "Path to the file to write", Type: "string", Required: true},
			{Name: "content", Description: "Content to write", Type: "string", Required: true},
			{Name: "append", Description: "Append instead of overwrite", Type: "boolean", Required: false, Default: false},
		},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	path, err := stringArg(args, "path", true)
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content", true)
	if err != nil {
		return nil, err
	}
	appendMode, err := boolArg(args, "append", false)
	if err != nil {
		return nil, err
	}

	if t.maxSize > 0 && int64(len(content)) > t.maxSize {
		return protocol.Fail(fmt.Sprintf("Content too large: %d bytes (max %d)", len(content), t.maxSize)), nil
	}
	if len(t.allowedExtensions) > 0 && !t.extensionAllowed(path) {
		return protocol.Fail(fmt.Sprintf("File extension not allowed: %s", filepath.Ext(path))), nil
	}

	validated, err := t.sandbox.CheckFileAccess(path, "write")
	if err != nil {
		return nil, err
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(validated, flags, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n, err := f.WriteString(content)
	if err != nil {
		return nil, err
	}

	res := protocol.OK(fmt.Sprintf("Wrote %d bytes to %s", n, validated))
	res.Metadata["path"] = validated
	res.Metadata["bytes_written"] = n
	res.Metadata["append"] = appendMode
	return res, nil
}

func (t *WriteFileTool) extensionAllowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range t.allowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// ListDirectoryTool lists files and subdirectories.
type ListDirectoryTool struct {
	sandbox *security.Sandbox
}

func (t *ListDirectoryTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "list_directory",
		Description: "List files and subdirectories in a directory",
		Category:    categoryFilesystem,
		Parameters: []protocol.ToolParameter{
			{Name: "path", Description: "Directory path to list", Type: "string", Required: true},
			{Name: "include_hidden", Description: "Include hidden entries", Type: "boolean", Required: false, Default: false},
		},
	}
}

func (t *ListDirectoryTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	path, err := stringArg(args, "path", true)
	if err != nil {
		return nil, err
	}
	includeHidden, err := boolArg(args, "include_hidden", false)
	if err != nil {
		return nil, err
	}

	validated, err := t.sandbox.CheckFileAccess(path, "read")
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(validated)
	if err != nil {
		return nil, err
	}

	listing := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		if !includeHidden && strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		item := map[string]interface{}{
			"name":   entry.Name(),
			"is_dir": entry.IsDir(),
		}
		if info, err := entry.Info(); err == nil {
			item["size"] = info.Size()
			item["modified"] = info.ModTime().Format(time.RFC3339)
		}
		listing = append(listing, item)
	}

	res := protocol.OK(listing)
	res.Metadata["path"] = validated
	res.Metadata["count"] = len(listing)
	return res, nil
}

// CreateDirectoryTool creates a directory, with parents by default.
type CreateDirectoryTool struct {
	sandbox *security.Sandbox
}

func (t *CreateDirectoryTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:          "create_directory",
		Description:   "Create a new directory at the specified path",
		Category:      categoryFilesystem,
		IsDestructive: true,
		Parameters: []protocol.ToolParameter{
			{Name: "path", Description: "Directory path to create", Type: "string", Required: true},
			{Name: "parents", Description: "Create parent directories as needed", Type: "boolean", Required: false, Default: true},
		},
	}
}

func (t *CreateDirectoryTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	path, err := stringArg(args, "path", true)
	if err != nil {
		return nil, err
	}
	parents, err := boolArg(args, "parents", true)
	if err != nil {
		return nil, err
	}

	validated, err := t.sandbox.CheckFileAccess(path, "write")
	if err != nil {
		return nil, err
	}

	if parents {
		err = os.MkdirAll(validated, 0o755)
	} else {
		err = os.Mkdir(validated, 0o755)
	}
	if err != nil {
		return nil, err
	}

	res := protocol.OK(fmt.Sprintf("Created directory: %s", validated))
	res.Metadata["path"] = validated
	return res, nil
}

// DeleteFileTool deletes a file or directory.
type DeleteFileTool struct {
	sandbox *security.Sandbox
}

func (t *DeleteFileTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:          "delete_file",
		Description:   "Delete a file or directory at the specified path",
		Category:      categoryFilesystem,
		IsDestructive: true,
		Parameters: []protocol.ToolParameter{
			{Name: "path", Description: "Path to delete", Type: "string", Required: true},
			{Name: "recursive", Description: "Delete directories recursively", Type: "boolean", Required: false, Default: false},
		},
	}
}

func (t *DeleteFileTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	path, err := stringArg(args, "path", true)
	if err != nil {
		return nil, err
	}
	recursive, err := boolArg(args, "recursive", false)
	if err != nil {
		return nil, err
	}

	validated, err := t.sandbox.CheckFileAccess(path, "delete")
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(validated)
	if err != nil {
		return nil, err
	}

	if info.IsDir() && !recursive {
		return protocol.Fail(fmt.Sprintf("Path is a directory, set recursive=true to delete: %s", path)), nil
	}

	if recursive {
		err = os.RemoveAll(validated)
	} else {
		err = os.Remove(validated)
	}
	if err != nil {
		return nil, err
	}

	res := protocol.OK(fmt.Sprintf("Deleted: %s", validated))
	res.Metadata["path"] = validated
	res.Metadata["was_directory"] = info.IsDir()
	return res, nil
}

// CopyFileTool copies a file to a new location.
type CopyFileTool struct {
	sandbox *security.Sandbox
	maxSize int64
}

func (t *CopyFileTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:          "copy_file",
		Description:   "Copy a file to a new location",
		Category:      categoryFilesystem,
		IsDestructive: true,
		Parameters: []protocol.ToolParameter{
			{Name: "source", Description: "Source path", Type: "string", Required: true},
			{Name: "destination", Description: "Destination path", Type: "string", Required: true},
			{Name: "overwrite", Description: "Overwrite existing destination", Type: "boolean", Required: false, Default: false},
		},
	}
}

func (t *CopyFileTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	source, err := stringArg(args, "source", true)
	if err != nil {
		return nil, err
	}
	destination, err := stringArg(args, "destination", true)
	if err != nil {
		return nil, err
	}
	overwrite, err := boolArg(args, "overwrite", false)
	if err != nil {
		return nil, err
	}

	src, err := t.sandbox.CheckFileAccess(source, "read")
	if err != nil {
		return nil, err
	}
	dst, err := t.sandbox.CheckFileAccess(destination, "write")
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(src)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return protocol.Fail(fmt.Sprintf("Source is a directory, only files can be copied: %s", source)), nil
	}
	if t.maxSize > 0 && info.Size() > t.maxSize {
		return protocol.Fail(fmt.Sprintf("File too large: %d bytes (max %d)", info.Size(), t.maxSize)), nil
	}

	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return protocol.Fail(fmt.Sprintf("Destination exists, set overwrite=true: %s", destination)), nil
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return nil, err
	}

	res := protocol.OK(fmt.Sprintf("Copied %s to %s", src, dst))
	res.Metadata["source"] = src
	res.Metadata["destination"] = dst
	res.Metadata["bytes_copied"] = n
	return res, nil
}

// MoveFileTool renames or moves a file or directory.
type MoveFileTool struct {
	sandbox *security.Sandbox
}

func (t *MoveFileTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:          "move_file",
		Description:   "Move a file or directory to a new location",
		Category:      categoryFilesystem,
		IsDestructive: true,
		Parameters: []protocol.ToolParameter{
			{Name: "source", Description: "Source path", Type: "string", Required: true},
			{Name: "destination", Description: "Destination path", Type: "string", Required: true},
			{Name: "overwrite", Description: "Overwrite existing destination", Type: "boolean", Required: false, Default: false},
		},
	}
}

func (t *MoveFileTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	source, err := stringArg(args, "source", true)
	if err != nil {
		return nil, err
	}
	destination, err := stringArg(args, "destination", true)
	if err != nil {
		return nil, err
	}
	overwrite, err := boolArg(args, "overwrite", false)
	if err != nil {
		return nil, err
	}

	// A move is a delete at the source and a write at the destination.
	src, err := t.sandbox.CheckFileAccess(source, "delete")
	if err != nil {
		return nil, err
	}
	dst, err := t.sandbox.CheckFileAccess(destination, "write")
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(src); err != nil {
		return nil, err
	}
	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return protocol.Fail(fmt.Sprintf("Destination exists, set overwrite=true: %s", destination)), nil
		}
	}

	if err := os.Rename(src, dst); err != nil {
		return nil, err
	}

	res := protocol.OK(fmt.Sprintf("Moved %s to %s", src, dst))
	res.Metadata["source"] = src
	res.Metadata["destination"] = dst
	return res, nil
}

// FileInfoTool reports detailed metadata for a path.
type FileInfoTool struct {
	sandbox *security.Sandbox
}

func (t *FileInfoTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "file_info",
		Description: "Get detailed information about a file or directory",
		Category:    categoryFilesystem,
		Parameters: []protocol.ToolParameter{
			{Name: "path", Description: "Path to inspect", Type: "string", Required: true},
		},
	}
}

func (t *FileInfoTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	path, err := stringArg(args, "path", true)
	if err != nil {
		return nil, err
	}

	validated, err := t.sandbox.CheckFileAccess(path, "read")
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(validated)
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"path":     validated,
		"name":     info.Name(),
		"size":     info.Size(),
		"is_dir":   info.IsDir(),
		"mode":     info.Mode().String(),
		"modified": info.ModTime().Format(time.RFC3339),
	}
	return protocol.OK(data), nil
}

// SearchFilesTool finds files by glob pattern and/or content substring.
type SearchFilesTool struct {
	sandbox *security.Sandbox
}

func (t *SearchFilesTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "search_files",
		Description: "Search for files matching a pattern or containing text",
		Category:    categoryFilesystem,
		Parameters: []protocol.ToolParameter{
			{Name: "path", Description: "Directory to search in", Type: "string", Required: true},
			{Name: "pattern", Description: "Glob pattern to match file names (e.g., '*.txt')", Type: "string", Required: false},
			{Name: "content", Description: "Text to search for in file contents", Type: "string", Required: false},
			{Name: "max_results", Description: "Maximum number of results to return", Type: "number", Required: false, Default: 100},
			{Name: "recursive", Description: "Search recursively in subdirectories", Type: "boolean", Required: false, Default: true},
		},
	}
}

func (t *SearchFilesTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	path, err := stringArg(args, "path", true)
	if err != nil {
		return nil, err
	}
	pattern, err := stringArg(args, "pattern", false)
	if err != nil {
		return nil, err
	}
	contentQuery, err := stringArg(args, "content", false)
	if err != nil {
		return nil, err
	}
	maxResults, err := intArg(args, "max_results", false, 100)
	if err != nil {
		return nil, err
	}
	recursive, err := boolArg(args, "recursive", true)
	if err != nil {
		return nil, err
	}

	validated, err := t.sandbox.CheckFileAccess(path, "read")
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(validated)
	if err != nil {
		return protocol.Fail(fmt.Sprintf("Directory not found: %s", path)), nil
	}
	if !info.IsDir() {
		return protocol.Fail(fmt.Sprintf("Path is not a directory: %s", path)), nil
	}

	results := make([]map[string]interface{}, 0, maxResults)

	walkErr := filepath.WalkDir(validated, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if len(results) >= maxResults {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if !recursive && p != validated {
				return filepath.SkipDir
			}
			return nil
		}
		if pattern != "" {
			if match, _ := filepath.Match(pattern, d.Name()); !match {
				return nil
			}
		}

		entry := map[string]interface{}{
			"path": p,
			"name": d.Name(),
		}
		if contentQuery != "" {
			matches := searchContent(p, contentQuery)
			if len(matches) == 0 {
				return nil
			}
			entry["matches"] = matches
		}
		results = append(results, entry)
		return nil
	})
	if walkErr != nil && walkErr != filepath.SkipAll {
		return nil, walkErr
	}

	res := protocol.OK(results)
	res.Metadata["search_path"] = validated
	res.Metadata["result_count"] = len(results)
	return res, nil
}

// searchContent scans a file line by line for a case-insensitive
// substring match. Unreadable or binary files yield no matches.
func searchContent(path, query string) []map[string]interface{} {
	data, err := os.ReadFile(path)
	if err != nil || !utf8.Valid(data) {
		return nil
	}

	var matches []map[string]interface{}
	queryLower := strings.ToLower(query)
	for i, line := range strings.Split(string(data), "\n") {
		if strings.Contains(strings.ToLower(line), queryLower) {
			text := strings.TrimSpace(line)
			if len(text) > 200 {
				text = text[:200]
			}
			matches = append(matches, map[string]interface{}{
				"line": i + 1,
				"text": text,
			})
		}
	}
	return matches
}

// WatchFileTool waits for a change on a path, bounded by a timeout.
type WatchFileTool struct {
	sandbox *security.Sandbox
}

func (t *WatchFileTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "watch_file",
		Description: "Watch a file or directory for changes (one-time check)",
		Category:    categoryFilesystem,
		Parameters: []protocol.ToolParameter{
			{Name: "path", Description: "Path to watch", Type: "string", Required: true},
			{Name: "timeout", Description: "Timeout in seconds to wait for changes", Type: "number", Required: false, Default: 5},
		},
	}
}

func (t *WatchFileTool) Execute(ctx context.Context, args map[string]interface{}) (*protocol.ToolResult, error) {
	path, err := stringArg(args, "path", true)
	if err != nil {
		return nil, err
	}
	timeoutSecs, err := intArg(args, "timeout", false, 5)
	if err != nil {
		return nil, err
	}

	validated, err := t.sandbox.CheckFileAccess(path, "read")
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(validated); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	defer watcher.Close()

	if err := watcher.Add(validated); err != nil {
		return nil, err
	}

	timer := time.NewTimer(time.Duration(timeoutSecs) * time.Second)
	defer timer.Stop()

	select {
	case event := <-watcher.Events:
		res := protocol.OK(map[string]interface{}{
			"changed": true,
			"event":   strings.ToLower(event.Op.String()),
		})
		res.Metadata["path"] = validated
		return res, nil
	case err := <-watcher.Errors:
		return nil, err
	case <-timer.C:
		res := protocol.OK(map[string]interface{}{"changed": false})
		res.Metadata["path"] = validated
		res.Metadata["timeout"] = timeoutSecs
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
