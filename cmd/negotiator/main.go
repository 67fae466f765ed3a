// Command negotiator runs plan negotiation workflows from the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"negotiator/pkg/config"
)

// Version information - set by goreleaser via ldflags.
var (
	version = "dev"
	commit  = "none"
)

//nolint:gochecknoglobals // cobra command tree
var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "negotiator",
		Short: "Negotiate implementation plans with an LLM agent and route reviews",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return config.LoadConfig(configPath)
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("negotiator %s (commit %s)\n", version, commit)
		},
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "negotiator.yaml", "path to config file")
	rootCmd.AddCommand(versionCmd, negotiateCmd, secretsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
