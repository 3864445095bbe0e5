package security

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windows-mcp-server/internal/config"
)

func TestPathValidatorNormalize(t *testing.T) {
	v := NewPathValidator(nil, nil)

	_, err := v.Normalize("")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = v.Normalize("../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidPath)

	// The traversal check is on the raw string, even when the resolved
	// path would be harmless. filepath.Join would clean the dots away,
	// so the path is built by hand.
	sep := string(filepath.Separator)
	_, err = v.Normalize(t.TempDir() + sep + "a" + sep + ".." + sep + "b")
	assert.ErrorIs(t, err, ErrInvalidPath)

	normalized, err := v.Normalize(t.TempDir())
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(normalized))
}

func TestPathValidatorBlockedWinsOverAllowed(t *testing.T) {
	root := t.TempDir()
	blocked := filepath.Join(root, "secrets")

	v := NewPathValidator([]string{root}, []string{blocked})

	assert.True(t, v.IsAllowed(filepath.Join(root, "data.txt")))
	assert.False(t, v.IsAllowed(filepath.Join(blocked, "key.pem")))
	assert.False(t, v.IsAllowed(blocked))
}

func TestPathValidatorEmptyAllowListPermitsNonBlocked(t *testing.T) {
	blocked := t.TempDir()
	v := NewPathValidator(nil, []string{blocked})

	assert.True(t, v.IsAllowed(t.TempDir()))
	assert.False(t, v.IsAllowed(filepath.Join(blocked, "file")))
}

func TestPathValidatorAllowListConfines(t *testing.T) {
	allowed := t.TempDir()
	outside := t.TempDir()
	v := NewPathValidator([]string{allowed}, nil)

	assert.True(t, v.IsAllowed(filepath.Join(allowed, "nested", "file.txt")))
	assert.False(t, v.IsAllowed(filepath.Join(outside, "file.txt")))
}

func TestPathValidatorSiblingPrefixNotDescendant(t *testing.T) {
	root := t.TempDir()
	blocked := filepath.Join(root, "app")
	sibling := filepath.Join(root, "app2")

	v := NewPathValidator(nil, []string{blocked})
	assert.False(t, v.IsAllowed(filepath.Join(blocked, "x")))
	assert.True(t, v.IsAllowed(filepath.Join(sibling, "x")))
}

func TestSandboxDisabledSkipsPolicy(t *testing.T) {
	sandbox := NewSandbox(config.SecurityConfig{
		SandboxMode:  false,
		BlockedPaths: []string{t.TempDir()},
	}, testLogger())

	path, err := sandbox.CheckFileAccess(filepath.Join(t.TempDir(), "anything"), "read")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
}

func TestSandboxProtectedRootsBlockWrites(t *testing.T) {
	sandbox := NewSandbox(config.SecurityConfig{SandboxMode: true}, testLogger())

	var protected string
	if runtime.GOOS == "windows" {
		protected = `C:\Windows\notepad.exe`
	} else {
		protected = "/etc/hosts"
	}

	// Reads under protected roots pass the floor check.
	_, err := sandbox.CheckFileAccess(protected, "read")
	assert.NoError(t, err)

	_, err = sandbox.CheckFileAccess(protected, "write")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = sandbox.CheckFileAccess(protected, "delete")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestSandboxProcessPolicy(t *testing.T) {
	sandbox := NewSandbox(config.SecurityConfig{
		SandboxMode:            true,
		AllowProcessManagement: true,
	}, testLogger())

	assert.NoError(t, sandbox.CheckProcessOperation("list", "", 0))
	assert.NoError(t, sandbox.CheckProcessOperation("stop", "notepad.exe", 0))

	err := sandbox.CheckProcessOperation("stop", "lsass.exe", 0)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// Case-insensitive protection.
	err = sandbox.CheckProcessOperation("stop", "LSASS.EXE", 0)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	disabled := NewSandbox(config.SecurityConfig{SandboxMode: true}, testLogger())
	err = disabled.CheckProcessOperation("list", "", 0)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestSandboxRegistryPolicy(t *testing.T) {
	sandbox := NewSandbox(config.SecurityConfig{
		SandboxMode:         true,
		AllowRegistryAccess: true,
	}, testLogger())

	assert.NoError(t, sandbox.CheckRegistryAccess(`HKLM\SOFTWARE\Microsoft`, "read"))

	err := sandbox.CheckRegistryAccess(`HKLM\SOFTWARE\Microsoft`, "write")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = sandbox.CheckRegistryAccess(`HKLM\SAM\Domains`, "read")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = sandbox.CheckRegistryAccess(`hklm\security\Policy`, "read")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestSandboxClipboardPolicy(t *testing.T) {
	enabled := NewSandbox(config.SecurityConfig{AllowClipboardAccess: true}, testLogger())
	assert.NoError(t, enabled.CheckClipboardAccess("read"))

	disabled := NewSandbox(config.SecurityConfig{}, testLogger())
	assert.ErrorIs(t, disabled.CheckClipboardAccess("read"), ErrPermissionDenied)
}
