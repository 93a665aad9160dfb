// Package main provides the triage CLI: build search, timeline inspection,
// rule execution and the broker worker.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "buildtriage/src/azdo"
	_ "buildtriage/src/buildkite"
	_ "buildtriage/src/githubactions"

	"buildtriage/src/config"
	"buildtriage/src/logger"
)

var (
	appConfig *config.Config
	rulesPath string
	liveMode  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "triage - automatic classification of CI build failures",
	Long: `triage searches CI build timelines for known failure messages, records
every matching build against a tracking issue, and keeps a report inside
that issue's body up to date.

Builds are searched in the local store (SQLite, or Postgres when POSTGRES_DSN
is set) which "triage sync" fills from the build provider. Pass --live to
query the provider directly instead.

Set REDPANDA_BROKERS to publish match events and to use the worker.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		appConfig, err = config.LoadFromEnv()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if rulesPath != "" {
			appConfig.RulesPath = rulesPath
		}
		logger.Init(appConfig.LogLevel, appConfig.LogFormat, os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "rule file (overrides TRIAGE_RULES)")
	rootCmd.PersistentFlags().BoolVar(&liveMode, "live", false, "search builds through the provider instead of the store")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
