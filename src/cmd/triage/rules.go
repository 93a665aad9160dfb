package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"buildtriage/src/broker"
	"buildtriage/src/ingest"
	"buildtriage/src/logger"
	"buildtriage/src/mcp"
	"buildtriage/src/provider"
	"buildtriage/src/worker"
)

var version = "dev"

var ruleName string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Run or submit triage rules",
}

var rulesRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run triage rules now",
	Long: `Run the rules in the rule file (or only --rule): search builds, record
new matches, and refresh each tracking issue's report.

Issue updates need GITHUB_TOKEN. Match events are published when
REDPANDA_BROKERS is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := newPipeline(ctx, appConfig, false)
		if err != nil {
			return err
		}
		defer p.Close()

		rules, err := p.rules.Select(ruleName)
		if err != nil {
			return err
		}
		summaries := p.orch.RunAll(ctx, "", rules)
		printSummaries(cmd.OutOrStdout(), summaries)

		for _, s := range summaries {
			if s.Error != "" {
				return fmt.Errorf("rule %s failed", s.RuleName)
			}
		}
		return nil
	},
}

var rulesSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Ask the worker to run triage rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(appConfig.RedpandaBrokers) == 0 {
			return fmt.Errorf("REDPANDA_BROKERS is required to submit rules")
		}
		brk, err := broker.New(appConfig.RedpandaBrokers)
		if err != nil {
			return fmt.Errorf("connect broker: %w", err)
		}
		defer brk.Close()

		requestID, err := worker.Submit(cmd.Context(), brk, ruleName)
		if err != nil {
			return fmt.Errorf("submit: %w", err)
		}
		target := ruleName
		if target == "" {
			target = "all rules"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", okStyle.Render("Submitted"), requestID, target)
		return nil
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume triage requests from the broker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := newPipeline(ctx, appConfig, true)
		if err != nil {
			return err
		}
		defer p.Close()

		w := worker.New(p.broker, p.rules, p.orch, logger.New("worker"))
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

var (
	syncDefinition string
	syncTop        int
	syncDays       int
	syncOrg        string
	syncProject    string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy recent builds from the provider into the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := newProvider(appConfig, appConfig.Provider)
		if err != nil {
			return err
		}
		st, err := openStore(ctx, appConfig)
		if err != nil {
			return err
		}
		defer st.Close()

		opts := ingest.SyncOptions{
			Organization: orDefault(syncOrg, appConfig.AzdoOrganization),
			Project:      orDefault(syncProject, appConfig.AzdoProject),
			Definition:   syncDefinition,
			Top:          syncTop,
		}
		if syncDays > 0 {
			opts.Since = time.Now().UTC().AddDate(0, 0, -syncDays)
		}
		if opts.Organization == "" || opts.Project == "" {
			return fmt.Errorf("organization and project are required (--org/--project or AZDO_ORGANIZATION/AZDO_PROJECT)")
		}

		res, err := ingest.NewSyncer(p, st, logger.New("sync")).Sync(ctx, opts)
		if err != nil {
			return provider.WrapError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d listed, %d stored, %d failed\n", res.Listed, res.Stored, res.Failed)
		if res.Failed > 0 {
			return fmt.Errorf("%d builds could not be stored", res.Failed)
		}
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve search and triage tools over MCP stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx, appConfig)
		if err != nil {
			return err
		}
		defer st.Close()

		deps := mcp.Deps{Builds: st, Records: st, Version: version}
		// stdout is the protocol channel, so nothing may log there.
		if p, err := newProvider(appConfig, appConfig.Provider); err == nil {
			deps.Matcher = newMatcher(appConfig, p, logger.NewSilentLogger())
			deps.Builds = buildSource(appConfig, st, p)
		}
		return mcp.NewServer(deps).Run()
	},
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func init() {
	rulesCmd.PersistentFlags().StringVar(&ruleName, "rule", "", "only this rule")
	rulesCmd.AddCommand(rulesRunCmd)
	rulesCmd.AddCommand(rulesSubmitCmd)

	syncCmd.Flags().StringVar(&syncDefinition, "definition", "", "definition (pipeline) to sync")
	syncCmd.Flags().IntVar(&syncTop, "top", 200, "maximum builds to list")
	syncCmd.Flags().IntVar(&syncDays, "days", 0, "only builds queued in the last N days")
	syncCmd.Flags().StringVar(&syncOrg, "org", "", "organization (default AZDO_ORGANIZATION)")
	syncCmd.Flags().StringVar(&syncProject, "project", "", "project (default AZDO_PROJECT)")
}
