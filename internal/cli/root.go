// Package cli implements the windows-mcp-server command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"windows-mcp-server/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "windows-mcp-server",
	Short: "MCP server exposing host automation tools",
	Long: `windows-mcp-server speaks the Model Context Protocol over stdio,
HTTP, or WebSocket, exposing file system, process, registry, clipboard,
window, and system tools behind authentication, rate limiting, and a
path sandbox.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"%s {{.Version}} (commit %s, built %s)\n",
		version.ServerName, version.GitCommit, version.BuildTime))
}
