// Package cli implements the rampartctl operator commands. Everything talks
// to a running server's HTTP API; nothing here touches a database directly.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
)

var rootCmd = &cobra.Command{
	Use:   "rampartctl",
	Short: "Operate a rampart tool-call gateway",
	Long:  "Manage invocation and result policies, quarantine configuration, and policy packs on a running rampart server, and dry-run policy checks.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOrDefault("RAMPART_SERVER", "http://localhost:8080"), "Base URL of the rampart server")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("RAMPART_API_KEY"), "API key for the execute surface (rk_...)")
}

func client() *adminClient {
	return newAdminClient(serverURL, apiKey)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
