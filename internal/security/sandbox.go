package security

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"windows-mcp-server/internal/config"
)

// PathValidator normalizes paths and enforces the allow/block lists.
// Both lists are resolved once at construction; blocked is checked before
// allowed and always wins.
type PathValidator struct {
	allowed []string
	blocked []string
}

// NewPathValidator resolves the configured path lists.
func NewPathValidator(allowedPaths, blockedPaths []string) *PathValidator {
	return &PathValidator{
		allowed: resolveAll(allowedPaths),
		blocked: resolveAll(blockedPaths),
	}
}

func resolveAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, resolvePath(p))
	}
	return out
}

// resolvePath produces an absolute, symlink-resolved, cleaned form. When
// the target does not exist the symlink resolution is skipped.
func resolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return filepath.Clean(abs)
}

// Normalize resolves a path to absolute symlink-free form. Any input
// string literally containing ".." is rejected as a traversal attempt;
// this check runs on the raw string, not the resolved path, so it cannot
// be bypassed by a resolved path that lands inside an allowed tree.
func (v *PathValidator) Normalize(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("%w: path traversal not allowed", ErrInvalidPath)
	}
	return resolvePath(path), nil
}

// IsAllowed reports whether a path passes the block/allow policy. A path
// under any blocked root is rejected regardless of allow-list membership.
// With no allowed roots configured, any non-blocked path is permitted;
// otherwise the path must descend from at least one allowed root.
func (v *PathValidator) IsAllowed(path string) bool {
	normalized, err := v.Normalize(path)
	if err != nil {
		return false
	}

	for _, blocked := range v.blocked {
		if isDescendant(normalized, blocked) {
			return false
		}
	}

	if len(v.allowed) == 0 {
		return true
	}

	for _, allowed := range v.allowed {
		if isDescendant(normalized, allowed) {
			return true
		}
	}
	return false
}

// Validate composes Normalize and IsAllowed, returning the normalized
// path or a permission error.
func (v *PathValidator) Validate(path string) (string, error) {
	normalized, err := v.Normalize(path)
	if err != nil {
		return "", err
	}
	if !v.IsAllowed(path) {
		return "", fmt.Errorf("%w: access denied: %s", ErrPermissionDenied, path)
	}
	return normalized, nil
}

// isDescendant reports whether path is root or lies under it, using
// path-segment semantics rather than a fixed-prefix string match (so
// /etc2 does not match a blocked /etc). Comparison is case-insensitive
// on Windows.
func isDescendant(path, root string) bool {
	p, r := path, root
	if runtime.GOOS == "windows" {
		p, r = strings.ToLower(p), strings.ToLower(r)
	}
	rel, err := filepath.Rel(r, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// protectedProcesses are core OS processes that a stop operation may
// never target, independent of configuration.
var protectedProcesses = map[string]bool{
	"system":       true,
	"csrss.exe":    true,
	"wininit.exe":  true,
	"services.exe": true,
	"lsass.exe":    true,
	"smss.exe":     true,
	"winlogon.exe": true,
	"explorer.exe": true,
}

// sensitiveRegistryPrefixes are hive paths refused even for read.
var sensitiveRegistryPrefixes = []string{
	`HKEY_LOCAL_MACHINE\SAM`,
	`HKEY_LOCAL_MACHINE\SECURITY`,
	`HKLM\SAM`,
	`HKLM\SECURITY`,
}

// Sandbox enforces file, process, registry, and clipboard policy. It
// holds no mutable state after construction and needs no locking.
type Sandbox struct {
	enabled                bool
	allowProcessManagement bool
	allowRegistryAccess    bool
	allowClipboardAccess   bool

	validator      *PathValidator
	protectedRoots []string
	logger         *slog.Logger
}

// NewSandbox builds the sandbox from security settings.
func NewSandbox(cfg config.SecurityConfig, logger *slog.Logger) *Sandbox {
	return &Sandbox{
		enabled:                cfg.SandboxMode,
		allowProcessManagement: cfg.AllowProcessManagement,
		allowRegistryAccess:    cfg.AllowRegistryAccess,
		allowClipboardAccess:   cfg.AllowClipboardAccess,
		validator:              NewPathValidator(cfg.AllowedPaths, cfg.BlockedPaths),
		protectedRoots:         protectedRoots(),
		logger:                 logger,
	}
}

// protectedRoots is the hard-coded floor beneath the configurable
// policy: write/delete under these trees is always refused.
func protectedRoots() []string {
	if runtime.GOOS == "windows" {
		return resolveAll([]string{
			envOr("WINDIR", `C:\Windows`),
			envOr("PROGRAMFILES", `C:\Program Files`),
			envOr("PROGRAMFILES(X86)", `C:\Program Files (x86)`),
		})
	}
	return resolveAll([]string{"/usr", "/bin", "/sbin", "/etc", "/boot"})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// PathValidator exposes the validator for tools that only need path
// normalization.
func (s *Sandbox) PathValidator() *PathValidator {
	return s.validator
}

// Enabled reports whether sandbox policy is enforced.
func (s *Sandbox) Enabled() bool {
	return s.enabled
}

// CheckFileAccess validates a file operation, returning the normalized
// path. With the sandbox disabled the path is only resolved. Write and
// delete operations are additionally refused under the OS-protected
// roots regardless of allow/block configuration.
func (s *Sandbox) CheckFileAccess(path, operation string) (string, error) {
	if !s.enabled {
		return resolvePath(path), nil
	}

	validated, err := s.validator.Validate(path)
	if err != nil {
		return "", err
	}

	if operation == "write" || operation == "delete" {
		for _, root := range s.protectedRoots {
			if isDescendant(validated, root) {
				return "", fmt.Errorf("%w: cannot %s files in protected directory: %s",
					ErrPermissionDenied, operation, root)
			}
		}
	}

	s.logger.Debug("file access allowed", "path", validated, "operation", operation)
	return validated, nil
}

// CheckProcessOperation validates a process operation. Stopping a
// protected core OS process is always refused.
func (s *Sandbox) CheckProcessOperation(operation, processName string, pid int) error {
	if !s.allowProcessManagement {
		return fmt.Errorf("%w: process management is disabled", ErrPermissionDenied)
	}

	if operation == "stop" && processName != "" {
		if protectedProcesses[strings.ToLower(processName)] {
			return fmt.Errorf("%w: cannot terminate protected process: %s",
				ErrPermissionDenied, processName)
		}
	}

	s.logger.Debug("process operation allowed", "operation", operation, "process", processName, "pid", pid)
	return nil
}

// CheckRegistryAccess validates registry access. Only reads are ever
// permitted, and sensitive hives are refused even for read.
func (s *Sandbox) CheckRegistryAccess(keyPath, operation string) error {
	if !s.allowRegistryAccess {
		return fmt.Errorf("%w: registry access is disabled", ErrPermissionDenied)
	}

	if operation != "read" {
		return fmt.Errorf("%w: only registry read operations are allowed", ErrPermissionDenied)
	}

	keyUpper := strings.ToUpper(keyPath)
	for _, sensitive := range sensitiveRegistryPrefixes {
		if strings.HasPrefix(keyUpper, strings.ToUpper(sensitive)) {
			return fmt.Errorf("%w: access to sensitive registry key denied: %s",
				ErrPermissionDenied, keyPath)
		}
	}

	s.logger.Debug("registry access allowed", "key", keyPath, "operation", operation)
	return nil
}

// CheckClipboardAccess is a binary gate on the clipboard toggle.
func (s *Sandbox) CheckClipboardAccess(operation string) error {
	if !s.allowClipboardAccess {
		return fmt.Errorf("%w: clipboard access is disabled", ErrPermissionDenied)
	}
	s.logger.Debug("clipboard access allowed", "operation", operation)
	return nil
}
