package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"windows-mcp-server/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", version.ServerName, version.Version)
		fmt.Printf("  protocol: %s\n", version.ProtocolVersion)
		fmt.Printf("  commit:   %s\n", version.GitCommit)
		fmt.Printf("  built:    %s\n", version.BuildTime)
		fmt.Printf("  platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
