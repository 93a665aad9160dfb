package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"buildtriage/src/contracts"
	"buildtriage/src/provider"
	"buildtriage/src/query"
)

var (
	helixLogFiles []string
	helixBuild    string
)

var searchHelixCmd = &cobra.Command{
	Use:   "helix [query] --log [kind=]<file>...",
	Short: "Search downloaded Helix work item logs",
	Long: `Search Helix work item logs saved to disk for lines matching a pattern.

Helix keys: text (regex, case-insensitive), kind (comma list of console,
runclient, testresults, crashdump). A bare value is the text pattern.

Each --log is a file path, optionally prefixed with its kind. Without a
prefix the kind is guessed from the file name.

Example: triage search helix "OutOfMemory kind:console" --log console=wi-1.log`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := query.ParseHelixLogsRequest(firstArg(args))
		if err != nil {
			return err
		}
		if len(helixLogFiles) == 0 {
			return fmt.Errorf("at least one --log file is required")
		}

		var build contracts.BuildKey
		if helixBuild != "" {
			ref, err := provider.ParseURL(helixBuild)
			if err != nil {
				return provider.WrapError(err)
			}
			build = ref.Build
		}

		logs, err := readHelixLogs(build, helixLogFiles)
		if err != nil {
			return err
		}
		matches, err := req.Filter(logs)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		t := newTable("Work item", "Kind", "Line")
		for _, m := range matches {
			t.add(m.Log.WorkItem, string(m.Log.Kind), oneLine(m.Line))
		}
		t.render(out)
		fmt.Fprintf(out, "\n%d of %d logs matched\n", len(matches), len(logs))
		return nil
	},
}

// readHelixLogs loads each "[kind=]path" argument. The work item name is the
// file name without its extension.
func readHelixLogs(build contracts.BuildKey, args []string) ([]contracts.HelixLog, error) {
	logs := make([]contracts.HelixLog, 0, len(args))
	for _, arg := range args {
		path := arg
		kind := guessHelixKind(arg)
		if k, p, ok := strings.Cut(arg, "="); ok {
			kind, path = contracts.HelixLogKind(strings.ToLower(k)), p
			if !knownHelixKind(kind) {
				return nil, fmt.Errorf("--log %s: unknown helix log kind %q", arg, k)
			}
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read helix log: %w", err)
		}
		base := filepath.Base(path)
		logs = append(logs, contracts.HelixLog{
			Build:    build,
			WorkItem: strings.TrimSuffix(base, filepath.Ext(base)),
			Kind:     kind,
			URI:      path,
			Content:  string(data),
		})
	}
	return logs, nil
}

func guessHelixKind(path string) contracts.HelixLogKind {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(name, "runclient"):
		return contracts.HelixLogRunClient
	case strings.Contains(name, "testresults"):
		return contracts.HelixLogTestResults
	case strings.HasSuffix(name, ".dmp"), strings.Contains(name, "crashdump"):
		return contracts.HelixLogCrashDump
	}
	return contracts.HelixLogConsole
}

func knownHelixKind(kind contracts.HelixLogKind) bool {
	for _, k := range contracts.AllHelixLogKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func init() {
	searchHelixCmd.Flags().StringArrayVar(&helixLogFiles, "log", nil, "[kind=]path of a work item log (repeatable)")
	searchHelixCmd.Flags().StringVar(&helixBuild, "build", "", "build URL the logs belong to")
	searchCmd.AddCommand(searchHelixCmd)
}
