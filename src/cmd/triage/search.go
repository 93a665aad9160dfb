package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"buildtriage/src/contracts"
	"buildtriage/src/junit"
	"buildtriage/src/logger"
	"buildtriage/src/provider"
	"buildtriage/src/query"
	"buildtriage/src/sanitize"
	"buildtriage/src/store"
	"buildtriage/src/timeline"
	"buildtriage/src/triage"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search builds, timelines, tests and job pass rates",
}

var searchBuildsCmd = &cobra.Command{
	Use:   "builds [query]",
	Short: "List builds matching a build query",
	Long: `List builds matching a build query, newest first.

Keys: definition, count, repository, started, finished, kind, result,
targetbranch. Dates accept YYYY-MM-DD, >YYYY-MM-DD, <YYYY-MM-DD and ~N.

Example: triage search builds "definition:runtime kind:pr started:~2"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := query.ParseBuildsRequest(firstArg(args))
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		src, closeFn, err := openBuildSource(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		builds, err := src.SearchBuilds(ctx, req)
		if err != nil {
			return provider.WrapError(err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, mutedStyle.Render(req.String()))
		t := newTable("Build", "Definition", "Kind", "Result", "Started", "Branch")
		for _, b := range builds {
			t.add(b.Key.String(), b.DefinitionName, string(b.Kind), string(b.Result), formatBuildTime(b), b.TargetBranch)
		}
		t.render(out)
		return nil
	},
}

var searchTimelinesCmd = &cobra.Command{
	Use:   "timelines <build query> <timeline query>",
	Short: "Search build timelines for matching issue messages",
	Long: `Search the timelines of the selected builds for records whose issue
messages match the timeline query.

Timeline keys: text (regex, case-insensitive), name, jobname, type. A bare
value is the text pattern.

Example: triage search timelines "definition:runtime count:20" "\"No space left on device\""`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		buildsReq, err := query.ParseBuildsRequest(args[0])
		if err != nil {
			return err
		}
		timelineReq, err := query.ParseTimelinesRequest(args[1])
		if err != nil {
			return err
		}
		filter, err := timelineReq.Filter()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		src, matcher, closeFn, err := openSearch(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		builds, err := src.SearchBuilds(ctx, buildsReq)
		if err != nil {
			return provider.WrapError(err)
		}
		res := matcher.Match(ctx, builds, filter)

		out := cmd.OutOrStdout()
		t := newTable("Build", "Attempt", "Job", "Record", "Message")
		for _, m := range res.Matches {
			t.add(m.Build.Key.String(), fmt.Sprint(m.Attempt), m.JobName, m.RecordName, oneLine(m.Message))
		}
		t.render(out)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%d builds scanned, %d matches\n", res.BuildsScanned, len(res.Matches))
		printSkipped(out, res.Skipped)
		return nil
	},
}

var (
	junitFiles  []string
	junitBuild  string
	failedTests bool
)

var searchTestsCmd = &cobra.Command{
	Use:   "tests [query] --junit <file>...",
	Short: "Search JUnit test results",
	Long: `Search test results read from JUnit XML files.

Test keys: name (substring), message (regex). A bare value is the name.

Example: triage search tests "message:timeout" --junit results.xml --failed`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := query.ParseTestsRequest(firstArg(args))
		if err != nil {
			return err
		}
		if len(junitFiles) == 0 {
			return fmt.Errorf("at least one --junit file is required")
		}

		var build contracts.BuildKey
		if junitBuild != "" {
			ref, err := provider.ParseURL(junitBuild)
			if err != nil {
				return provider.WrapError(err)
			}
			build = ref.Build
		}

		results, err := junit.ReadFiles(build, junitFiles)
		if err != nil {
			return err
		}
		if failedTests {
			results = junit.Failures(results)
		}
		matched, err := req.Filter(results)
		if err != nil {
			return err
		}

		t := newTable("Test", "Outcome", "Duration", "Message")
		for _, r := range matched {
			t.add(r.TestName, string(r.Outcome), r.Duration.String(), oneLine(r.ErrorMessage))
		}
		t.render(cmd.OutOrStdout())
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d tests matched\n", len(matched), len(results))
		return nil
	},
}

var searchJobsCmd = &cobra.Command{
	Use:   "jobs [build query]",
	Short: "Show per-job pass rates across builds",
	Long: `Fetch the timeline of each selected build and report, per job name, how
many builds passed it in any attempt or sub-timeline.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := query.ParseBuildsRequest(firstArg(args))
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		src, matcher, closeFn, err := openSearch(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		builds, err := src.SearchBuilds(ctx, req)
		if err != nil {
			return provider.WrapError(err)
		}
		stats, skipped := matcher.JobStats(ctx, builds)

		out := cmd.OutOrStdout()
		t := newTable("Job", "Passed", "Failed", "Rate")
		for _, s := range stats.All() {
			t.add(s.JobName, fmt.Sprint(s.Passed), fmt.Sprint(s.Failed()), formatRate(s))
		}
		t.render(out)
		printSkipped(out, skipped)
		return nil
	},
}

var timelineCmd = &cobra.Command{
	Use:   "timeline <build-url>",
	Short: "Print the timeline tree of one build",
	Long: `Fetch the timeline of one build (the attempt in the URL, or the latest)
and print its record tree, job nodes and any structural warnings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := provider.ParseURL(args[0])
		if err != nil {
			return provider.WrapError(err)
		}
		p, err := newProvider(appConfig, ref.Provider)
		if err != nil {
			return err
		}

		matcher := newMatcher(appConfig, p, logger.New("matcher"))
		trees, err := matcher.Trees(cmd.Context(), ref.AttemptKey())
		if err != nil {
			return provider.WrapError(err)
		}

		out := cmd.OutOrStdout()
		for i, t := range trees {
			if i > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, headerStyle.Render("Sub-timeline"))
			}
			printTree(out, t)
		}
		return nil
	},
}

func printTree(out io.Writer, t *timeline.Tree) {
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%s (%d records, %d jobs)", t.Attempt, t.Len(), len(t.JobNodes))))
	t.Walk(func(n *timeline.Node) bool {
		line := fmt.Sprintf("%s%s [%s] %s", strings.Repeat("  ", n.Depth()), n.Record.Name, n.Record.RecordType, resultLabel(n.Record.Result))
		fmt.Fprintln(out, line)
		for _, issue := range n.Record.Issues {
			fmt.Fprintf(out, "%s  %s %s\n", strings.Repeat("  ", n.Depth()), mutedStyle.Render(issue.Type+":"), oneLine(sanitize.Message(issue.Message)))
		}
		return true
	})
	for _, w := range t.Warnings {
		fmt.Fprintln(out, warnStyle.Render("warning: "+w.String()))
	}
}

func resultLabel(r contracts.TaskResult) string {
	switch {
	case r == contracts.ResultNone:
		return mutedStyle.Render("pending")
	case r.IsSuccess():
		return okStyle.Render(string(r))
	case r == contracts.ResultFailed:
		return errStyle.Render(string(r))
	default:
		return warnStyle.Render(string(r))
	}
}

func formatRate(s timeline.JobStat) string {
	rate, ok := s.Rate()
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", rate*100)
}

func printSkipped(out io.Writer, skipped []triage.SkippedBuild) {
	for _, s := range skipped {
		fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("skipped %s: %v", s.Build, s.Err)))
	}
}

// openBuildSource returns the store, or the provider in live mode.
func openBuildSource(ctx context.Context) (triage.BuildSource, func(), error) {
	if liveMode {
		p, err := newProvider(appConfig, appConfig.Provider)
		if err != nil {
			return nil, nil, err
		}
		return buildSource(appConfig, nil, p), func() {}, nil
	}
	st, err := openStore(ctx, appConfig)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { st.Close() }, nil
}

// openSearch returns a build source plus a matcher on the configured provider.
func openSearch(ctx context.Context) (triage.BuildSource, *triage.Matcher, func(), error) {
	p, err := newProvider(appConfig, appConfig.Provider)
	if err != nil {
		return nil, nil, nil, err
	}
	matcher := newMatcher(appConfig, p, logger.New("matcher"))
	if liveMode {
		return buildSource(appConfig, nil, p), matcher, func() {}, nil
	}

	var st store.Store
	st, err = openStore(ctx, appConfig)
	if err != nil {
		return nil, nil, nil, err
	}
	return st, matcher, func() { st.Close() }, nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func init() {
	searchTestsCmd.Flags().StringArrayVar(&junitFiles, "junit", nil, "JUnit XML file (repeatable)")
	searchTestsCmd.Flags().StringVar(&junitBuild, "build", "", "build URL the results belong to")
	searchTestsCmd.Flags().BoolVar(&failedTests, "failed", false, "only failed tests")

	searchCmd.AddCommand(searchBuildsCmd)
	searchCmd.AddCommand(searchTimelinesCmd)
	searchCmd.AddCommand(searchTestsCmd)
	searchCmd.AddCommand(searchJobsCmd)
}
