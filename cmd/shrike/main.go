package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/umbra-intel/shrike/pkg/logging"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shrike",
	Short: "Dark web OSINT tool orchestration",
	Long:  "Shrike — an OSINT pipeline that drives dark web search, scraping, and analysis tools through language models, and serves the same tool set to other processes.",
	// SilenceUsage prevents printing usage on every error
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			})))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to JSON configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("tor-proxy", "socks5://127.0.0.1:9050", "SOCKS5 proxy URL for .onion traffic (empty disables)")
	rootCmd.PersistentFlags().String("db", "shrike.db", "Path to the investigation database")
	rootCmd.PersistentFlags().String("postgres", "", "PostgreSQL DSN for the investigation store (overrides --db)")
	rootCmd.PersistentFlags().String("redis", "", "Redis address for tool result caching (empty disables)")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("shrike version %s\n", version))

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newInvestigateCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newToolsCmd())
}
