package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"windows-mcp-server/internal/config"
	"windows-mcp-server/internal/logging"
	"windows-mcp-server/internal/server"
)

var serveFlags struct {
	configFile  string
	transport   string
	host        string
	port        int
	logLevel    string
	logFormat   string
	requireAuth bool
	apiKey      string
	noSandbox   bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the MCP server on the configured transport.

Configuration is resolved in order: defaults, then the config file,
then WINDOWS_MCP_* environment variables, then command-line flags.`,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.StringVarP(&serveFlags.configFile, "config", "c", "", "path to YAML config file")
	flags.StringVarP(&serveFlags.transport, "transport", "t", "", "transport: stdio, http, or websocket")
	flags.StringVar(&serveFlags.host, "host", "", "listen host for http/websocket")
	flags.IntVarP(&serveFlags.port, "port", "p", 0, "listen port for http/websocket")
	flags.StringVar(&serveFlags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&serveFlags.logFormat, "log-format", "", "log format: json or console")
	flags.BoolVar(&serveFlags.requireAuth, "require-auth", false, "require API key authentication")
	flags.StringVar(&serveFlags.apiKey, "api-key", "", "static API key clients must present")
	flags.BoolVar(&serveFlags.noSandbox, "no-sandbox", false, "disable the path sandbox")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.Setup(cfg.Logging)
	srv := server.New(cfg, logger)
	return srv.Run(context.Background())
}

// loadConfig layers defaults, file, environment, and flags. Only flags
// the user actually set override the lower layers.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error

	switch {
	case serveFlags.configFile != "":
		cfg, err = config.LoadFromFile(serveFlags.configFile)
		if err != nil {
			return nil, err
		}
	default:
		cfg = config.DefaultConfig()
		if _, statErr := os.Stat(config.DefaultConfigFile); statErr == nil {
			cfg, err = config.LoadFromFile(config.DefaultConfigFile)
			if err != nil {
				return nil, err
			}
		}
	}

	cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Server.Transport = serveFlags.transport
	}
	if flags.Changed("host") {
		cfg.Server.Host = serveFlags.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = serveFlags.port
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = serveFlags.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = serveFlags.logFormat
	}
	if flags.Changed("require-auth") {
		cfg.Security.RequireAuth = serveFlags.requireAuth
	}
	if flags.Changed("api-key") {
		cfg.Security.APIKey = serveFlags.apiKey
	}
	if flags.Changed("no-sandbox") {
		cfg.Security.SandboxMode = !serveFlags.noSandbox
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
