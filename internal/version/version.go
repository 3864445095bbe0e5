package version

// Package version provides centralized version information for the
// Windows MCP server. These variables are injected at build time via
// -ldflags. Default values are used when building without make.

var (
	Version   = "1.0.0"   // Application version
	GitCommit = "unknown" // Git commit hash
	BuildTime = "unknown" // Build timestamp
)

// ProtocolVersion is the MCP protocol revision this server implements.
const ProtocolVersion = "2024-11-05"

// ServerName identifies this server in the MCP handshake.
const ServerName = "windows-mcp-server"
