package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile = "config.yaml"
	EnvPrefix         = "WINDOWS_MCP_"
)

const (
	TransportStdio     = "stdio"
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// ServerConfig controls the serving loop and transport selection.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`

	Port int `yaml:"port" json:"port"`

	// Transport selects the wire driver: stdio, http, or websocket.
	Transport string `yaml:"transport" json:"transport"`

	// Timeout bounds the handling of a single request.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// MaxConcurrentRequests bounds in-flight message handling on the
	// stdio transport. HTTP and WebSocket rely on per-connection limits.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests" json:"max_concurrent_requests"`
}

// SecurityConfig controls authentication, rate limiting, and the sandbox.
type SecurityConfig struct {
	RequireAuth bool `yaml:"require_auth" json:"require_auth"`

	// APIKey is the statically configured key, registered under the
	// "default" client identity at startup.
	APIKey string `yaml:"api_key" json:"api_key"`

	// SigningSecret is the shared secret for HMAC request signatures.
	SigningSecret string `yaml:"signing_secret" json:"signing_secret"`

	RateLimitRequests int `yaml:"rate_limit_requests" json:"rate_limit_requests"`
	RateLimitWindow   int `yaml:"rate_limit_window" json:"rate_limit_window"`

	SandboxMode  bool     `yaml:"sandbox_mode" json:"sandbox_mode"`
	AllowedPaths []string `yaml:"allowed_paths" json:"allowed_paths"`
	BlockedPaths []string `yaml:"blocked_paths" json:"blocked_paths"`

	AllowProcessManagement bool `yaml:"allow_process_management" json:"allow_process_management"`
	AllowRegistryAccess    bool `yaml:"allow_registry_access" json:"allow_registry_access"`
	AllowClipboardAccess   bool `yaml:"allow_clipboard_access" json:"allow_clipboard_access"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`

	// Format is json or console.
	Format string `yaml:"format" json:"format"`

	// File is an optional log sink; empty means stderr.
	File string `yaml:"file" json:"file"`
}

// ToolConfig carries per-tool operational limits.
type ToolConfig struct {
	FileMaxSize           int64    `yaml:"file_max_size" json:"file_max_size"`
	FileAllowedExtensions []string `yaml:"file_allowed_extensions" json:"file_allowed_extensions"`
	ProcessTimeout        int      `yaml:"process_timeout" json:"process_timeout"`
	RegistryTimeout       int      `yaml:"registry_timeout" json:"registry_timeout"`
	RegistryMaxDepth      int      `yaml:"registry_max_depth" json:"registry_max_depth"`
	RegistryMaxResults    int      `yaml:"registry_max_results" json:"registry_max_results"`
	ClipboardMaxSize      int      `yaml:"clipboard_max_size" json:"clipboard_max_size"`
}

// Config combines all configuration sections.
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Security SecurityConfig `yaml:"security" json:"security"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Tools    ToolConfig     `yaml:"tools" json:"tools"`
}

// DefaultConfig returns the configuration used when no file or
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                  "127.0.0.1",
			Port:                  8765,
			Transport:             TransportStdio,
			Timeout:               30 * time.Second,
			MaxConcurrentRequests: 10,
		},
		Security: SecurityConfig{
			RequireAuth:       false,
			RateLimitRequests: 100,
			RateLimitWindow:   60,
			SandboxMode:       true,
			BlockedPaths: []string{
				`C:\Windows\System32`,
				`C:\Windows\SysWOW64`,
				`C:\Program Files`,
				`C:\Program Files (x86)`,
			},
			AllowProcessManagement: true,
			AllowRegistryAccess:    true,
			AllowClipboardAccess:   true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Tools: ToolConfig{
			FileMaxSize: 10 * 1024 * 1024,
			FileAllowedExtensions: []string{
				".txt", ".json", ".xml", ".yaml", ".yml", ".md", ".csv",
				".log", ".ini", ".cfg", ".conf", ".bat", ".cmd", ".ps1",
				".py", ".js", ".ts", ".html", ".css", ".sql", ".go",
			},
			ProcessTimeout:     60,
			RegistryTimeout:    10,
			RegistryMaxDepth:   5,
			RegistryMaxResults: 100,
			ClipboardMaxSize:   1024 * 1024,
		},
	}
}

// LoadFromFile reads a YAML configuration file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays WINDOWS_MCP_* environment variables onto the config.
// Nested keys use double underscores: WINDOWS_MCP_SERVER__HOST,
// WINDOWS_MCP_SECURITY__REQUIRE_AUTH, WINDOWS_MCP_LOGGING__LEVEL.
func (c *Config) ApplyEnv() {
	if v := getEnv("SERVER__HOST"); v != "" {
		c.Server.Host = v
	}
	if v := getEnv("SERVER__PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := getEnv("SERVER__TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := getEnv("SERVER__TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Server.Timeout = time.Duration(secs) * time.Second
		}
	}
	if v := getEnv("SECURITY__REQUIRE_AUTH"); v != "" {
		c.Security.RequireAuth = parseBool(v)
	}
	if v := getEnv("SECURITY__API_KEY"); v != "" {
		c.Security.APIKey = v
	}
	if v := getEnv("SECURITY__SIGNING_SECRET"); v != "" {
		c.Security.SigningSecret = v
	}
	if v := getEnv("SECURITY__SANDBOX_MODE"); v != "" {
		c.Security.SandboxMode = parseBool(v)
	}
	if v := getEnv("SECURITY__ALLOWED_PATHS"); v != "" {
		c.Security.AllowedPaths = parseList(v)
	}
	if v := getEnv("SECURITY__BLOCKED_PATHS"); v != "" {
		c.Security.BlockedPaths = parseList(v)
	}
	if v := getEnv("SECURITY__ALLOW_PROCESS_MANAGEMENT"); v != "" {
		c.Security.AllowProcessManagement = parseBool(v)
	}
	if v := getEnv("SECURITY__ALLOW_REGISTRY_ACCESS"); v != "" {
		c.Security.AllowRegistryAccess = parseBool(v)
	}
	if v := getEnv("SECURITY__ALLOW_CLIPBOARD_ACCESS"); v != "" {
		c.Security.AllowClipboardAccess = parseBool(v)
	}
	if v := getEnv("LOGGING__LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getEnv("LOGGING__FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := getEnv("LOGGING__FILE"); v != "" {
		c.Logging.File = v
	}
	if v := getEnv("TOOLS__FILE_MAX_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Tools.FileMaxSize = n
		}
	}
	if v := getEnv("TOOLS__PROCESS_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Tools.ProcessTimeout = n
		}
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d, must be between 1 and 65535", c.Server.Port)
	}

	validTransports := map[string]bool{
		TransportStdio:     true,
		TransportHTTP:      true,
		TransportWebSocket: true,
	}
	if !validTransports[c.Server.Transport] {
		return fmt.Errorf("invalid transport type: %s", c.Server.Transport)
	}

	if c.Server.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Server.MaxConcurrentRequests < 1 {
		return fmt.Errorf("max_concurrent_requests must be at least 1")
	}
	if c.Security.RateLimitRequests < 1 {
		return fmt.Errorf("rate_limit_requests must be at least 1")
	}
	if c.Security.RateLimitWindow < 1 {
		return fmt.Errorf("rate_limit_window must be at least 1 second")
	}
	if c.Security.RequireAuth && c.Security.APIKey == "" {
		return fmt.Errorf("require_auth is set but no api_key is configured")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

func getEnv(key string) string {
	return os.Getenv(EnvPrefix + strings.ToUpper(key))
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func parseList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
