package main

import (
	"os"
	"path/filepath"
	"testing"

	"buildtriage/src/contracts"
	"buildtriage/src/query"
)

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadHelixLogs(t *testing.T) {
	dir := t.TempDir()
	console := writeLog(t, dir, "System.Net.Tests.log", "Running tests\nUnhandled exception. System.OutOfMemoryException\n")
	runclient := writeLog(t, dir, "runclient.py.log", "upload ok\n")
	other := writeLog(t, dir, "notes.txt", "OutOfMemoryException in summary\n")

	logs, err := readHelixLogs(contracts.BuildKey{}, []string{console, runclient, "testresults=" + other})
	if err != nil {
		t.Fatalf("readHelixLogs() error = %v", err)
	}

	wantKinds := []contracts.HelixLogKind{contracts.HelixLogConsole, contracts.HelixLogRunClient, contracts.HelixLogTestResults}
	for i, log := range logs {
		if log.Kind != wantKinds[i] {
			t.Errorf("logs[%d].Kind = %s, want %s", i, log.Kind, wantKinds[i])
		}
	}
	if logs[0].WorkItem != "System.Net.Tests" {
		t.Errorf("WorkItem = %q", logs[0].WorkItem)
	}

	req, err := query.ParseHelixLogsRequest("OutOfMemory kind:console")
	if err != nil {
		t.Fatal(err)
	}
	matches, err := req.Filter(logs)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Line != "Unhandled exception. System.OutOfMemoryException" {
		t.Errorf("matches = %+v", matches)
	}
}

func TestReadHelixLogs_Errors(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "a.log", "")

	if _, err := readHelixLogs(contracts.BuildKey{}, []string{"stdout=" + path}); err == nil {
		t.Error("unknown kind prefix should fail")
	}
	if _, err := readHelixLogs(contracts.BuildKey{}, []string{filepath.Join(dir, "missing.log")}); err == nil {
		t.Error("missing file should fail")
	}
}
