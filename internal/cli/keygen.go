package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"windows-mcp-server/internal/security"
)

var generateKeyCmd = &cobra.Command{
	Use:   "generate-key",
	Short: "Generate a new API key",
	Long: `Generate a cryptographically random API key suitable for the
security.api_key config field or the WINDOWS_MCP_SECURITY__API_KEY
environment variable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := security.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}

		color.Green("Generated API key:")
		fmt.Println(key)
		fmt.Println()
		color.Yellow("Store this key securely; it cannot be recovered.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateKeyCmd)
}
