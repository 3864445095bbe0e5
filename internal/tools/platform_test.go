package tools

import (
	"context"
	"runtime"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windows-mcp-server/internal/config"
	"windows-mcp-server/internal/security"
)

func fullAccessSandbox(t *testing.T) *security.Sandbox {
	t.Helper()
	return security.NewSandbox(config.SecurityConfig{
		SandboxMode:          true,
		AllowRegistryAccess:  true,
		AllowClipboardAccess: true,
	}, testLogger())
}

func TestRegistryToolsFailOffWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("windows has a live registry")
	}

	sandbox := fullAccessSandbox(t)
	registryTools := []Tool{
		&ReadRegistryTool{sandbox: sandbox, timeout: 5},
		&ListRegistryKeysTool{sandbox: sandbox, timeout: 5},
	}

	for _, tool := range registryTools {
		result, err := tool.Execute(context.Background(), map[string]interface{}{
			"key_path": `HKLM\SOFTWARE`,
		})
		require.NoError(t, err, tool.Definition().Name)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "Platform not supported")
	}
}

func TestRegistryToolSandboxBeforePlatform(t *testing.T) {
	// The sensitive-hive check applies on every platform, before the
	// platform check ever runs.
	sandbox := fullAccessSandbox(t)
	tool := &ReadRegistryTool{sandbox: sandbox, timeout: 5}

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"key_path": `HKLM\SAM\Domains`,
	})
	assert.ErrorIs(t, err, security.ErrPermissionDenied)
}

func TestWindowToolsFailOffWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("windows has real windows")
	}

	cases := []struct {
		tool Tool
		args map[string]interface{}
	}{
		{&ListWindowsTool{}, map[string]interface{}{}},
		{&GetActiveWindowTool{}, map[string]interface{}{}},
		{&SetWindowStateTool{}, map[string]interface{}{"title": "x", "state": "minimize"}},
		{&FindWindowTool{}, map[string]interface{}{"title": "x"}},
	}

	for _, tc := range cases {
		result, err := tc.tool.Execute(context.Background(), tc.args)
		require.NoError(t, err, tc.tool.Definition().Name)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "Platform not supported")
	}
}

func TestPSEscapeNeutralizesQuoting(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Notepad", "Notepad"},
		{`say "hi"`, "say `\"hi`\""},
		{"tick`tock", "tick``tock"},
		{"$env:PATH", "`$env:PATH"},
		{"nul\x00byte", "nulbyte"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, psEscape(tc.in))
	}
}

func TestSetWindowScriptContainsTitleBreakout(t *testing.T) {
	// A title that tries to close the string literal and inject a
	// statement must stay inside the -like pattern.
	script := buildSetWindowScript(`x" }; Get-Date; "`, 6)
	assert.NotContains(t, script, `*x" }; Get-Date; "*`)
	assert.Contains(t, script, "*x`\" }; Get-Date; `\"*")
}

func TestClipboardToolsRespectToggle(t *testing.T) {
	disabled := security.NewSandbox(config.SecurityConfig{SandboxMode: true}, testLogger())

	get := &GetClipboardTool{sandbox: disabled, maxSize: 1024}
	_, err := get.Execute(context.Background(), map[string]interface{}{})
	assert.ErrorIs(t, err, security.ErrPermissionDenied)

	set := &SetClipboardTool{sandbox: disabled, maxSize: 1024}
	_, err = set.Execute(context.Background(), map[string]interface{}{"content": "x"})
	assert.ErrorIs(t, err, security.ErrPermissionDenied)
}

func TestSetClipboardToolSizeCap(t *testing.T) {
	sandbox := fullAccessSandbox(t)
	tool := &SetClipboardTool{sandbox: sandbox, maxSize: 4}

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"content": "way beyond the cap",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "too large")
}

func TestSystemInfoTool(t *testing.T) {
	tool := &SystemInfoTool{}
	result, err := tool.Execute(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	require.True(t, result.Success)

	data := result.Data.(map[string]interface{})
	assert.Equal(t, runtime.GOOS, data["os"])
	assert.NotEmpty(t, data["hostname"])
}

func TestEnvironmentVariableTool(t *testing.T) {
	t.Setenv("WMCP_TEST_VAR", "hello")

	tool := &EnvironmentVariableTool{}

	result, err := tool.Execute(context.Background(), map[string]interface{}{"name": "WMCP_TEST_VAR"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "hello", result.Data)

	result, err = tool.Execute(context.Background(), map[string]interface{}{"name": "WMCP_DEFINITELY_NOT_SET"})
	require.NoError(t, err)
	assert.False(t, result.Success)

	// Listing mode returns sorted names.
	result, err = tool.Execute(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	names := result.Data.([]string)
	assert.True(t, sort.StringsAreSorted(names))
	assert.Contains(t, names, "WMCP_TEST_VAR")
}

func TestParseSubKeysSorted(t *testing.T) {
	output := "HKLM\\SOFTWARE\\Zeta\r\nHKLM\\SOFTWARE\\Alpha\r\nsome value line\r\nHKLM\\SOFTWARE\\Mid\r\n"
	keys := parseSubKeys(output, `HKLM\SOFTWARE`)
	assert.Equal(t, []string{
		`HKLM\SOFTWARE\Alpha`,
		`HKLM\SOFTWARE\Mid`,
		`HKLM\SOFTWARE\Zeta`,
	}, keys)
}
