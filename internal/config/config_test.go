package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, TransportStdio, cfg.Server.Transport)
	assert.Equal(t, 8765, cfg.Server.Port)
	assert.True(t, cfg.Security.SandboxMode)
	assert.False(t, cfg.Security.RequireAuth)
	assert.NotEmpty(t, cfg.Security.BlockedPaths)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 0.0.0.0
  port: 9000
  transport: http
security:
  require_auth: true
  api_key: wmcp_filekey
  rate_limit_requests: 50
logging:
  level: debug
  format: json
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, TransportHTTP, cfg.Server.Transport)
	assert.True(t, cfg.Security.RequireAuth)
	assert.Equal(t, "wmcp_filekey", cfg.Security.APIKey)
	assert.Equal(t, 50, cfg.Security.RateLimitRequests)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched fields keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.True(t, cfg.Security.SandboxMode)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server: [not a map"), 0o644))
	_, err = LoadFromFile(bad)
	assert.Error(t, err)

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("server:\n  port: 99999\n"), 0o644))
	_, err = LoadFromFile(invalid)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("WINDOWS_MCP_SERVER__HOST", "10.0.0.1")
	t.Setenv("WINDOWS_MCP_SERVER__PORT", "4321")
	t.Setenv("WINDOWS_MCP_SERVER__TRANSPORT", "websocket")
	t.Setenv("WINDOWS_MCP_SECURITY__REQUIRE_AUTH", "true")
	t.Setenv("WINDOWS_MCP_SECURITY__API_KEY", "wmcp_envkey")
	t.Setenv("WINDOWS_MCP_SECURITY__SANDBOX_MODE", "off")
	t.Setenv("WINDOWS_MCP_SECURITY__ALLOWED_PATHS", "/a, /b ,")
	t.Setenv("WINDOWS_MCP_LOGGING__LEVEL", "warn")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "10.0.0.1", cfg.Server.Host)
	assert.Equal(t, 4321, cfg.Server.Port)
	assert.Equal(t, TransportWebSocket, cfg.Server.Transport)
	assert.True(t, cfg.Security.RequireAuth)
	assert.Equal(t, "wmcp_envkey", cfg.Security.APIKey)
	assert.False(t, cfg.Security.SandboxMode)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Security.AllowedPaths)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad transport", func(c *Config) { c.Server.Transport = "pigeon" }},
		{"zero timeout", func(c *Config) { c.Server.Timeout = 0 }},
		{"zero concurrency", func(c *Config) { c.Server.MaxConcurrentRequests = 0 }},
		{"zero rate limit", func(c *Config) { c.Security.RateLimitRequests = 0 }},
		{"zero window", func(c *Config) { c.Security.RateLimitWindow = 0 }},
		{"auth without key", func(c *Config) { c.Security.RequireAuth = true; c.Security.APIKey = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
