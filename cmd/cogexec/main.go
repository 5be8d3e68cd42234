package main

import (
	"fmt"
	"os"

	"github.com/longregen/cogexec/internal/config"
	"github.com/spf13/cobra"
)

// Version information, set via ldflags at build time.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// cfg is loaded once in PersistentPreRunE and shared by every subcommand.
var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:   "cogexec",
		Short: "cogexec - cognitive execution pipeline CLI",
		Long: `cogexec sequences an utterance through planning, validation, sandboxed
execution, and verification, backed by a per-user semantic memory store.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		planCmd(),
		registryCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cogexec %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Build Date: %s\n", buildDate)
		},
	}
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "(set)"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func boolStatus(b bool) string {
	if b {
		return "configured"
	}
	return "not configured"
}
