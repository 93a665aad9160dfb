package query

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"buildtriage/src/contracts"
)

func TestParseHelixLogsRequest(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		want      *HelixLogsRequest
		canonical string
		wantErr   error
	}{
		{
			name:      "bare text",
			query:     `"out of memory"`,
			want:      &HelixLogsRequest{Text: "out of memory"},
			canonical: `text:"out of memory"`,
		},
		{
			name:  "kinds are deduplicated into canonical order",
			query: "text:SIGSEGV kind:crashdump,Console,crashdump",
			want: &HelixLogsRequest{
				Text:  "SIGSEGV",
				Kinds: []contracts.HelixLogKind{contracts.HelixLogConsole, contracts.HelixLogCrashDump},
			},
			canonical: "text:SIGSEGV kind:console,crashdump",
		},
		{
			name:      "all clears the kind filter",
			query:     "kind:all",
			want:      &HelixLogsRequest{},
			canonical: "",
		},
		{name: "unknown kind", query: "kind:stdout", wantErr: ErrBadValue},
		{name: "bad pattern", query: "text:(", wantErr: ErrBadValue},
		{name: "unknown key", query: "workitem:x", wantErr: ErrUnknownOption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHelixLogsRequest(tt.query)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHelixLogsRequest() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
			if s := got.String(); s != tt.canonical {
				t.Errorf("String() = %q, want %q", s, tt.canonical)
			}
		})
	}
}

func TestHelixLogsRequest_Filter(t *testing.T) {
	logs := []contracts.HelixLog{
		{WorkItem: "a", Kind: contracts.HelixLogConsole, Content: "start\r\nProcess terminated. Out of memory.\r\n"},
		{WorkItem: "b", Kind: contracts.HelixLogConsole, Content: "all tests passed"},
		{WorkItem: "c", Kind: contracts.HelixLogRunClient, Content: "out of memory while uploading"},
	}

	req, err := ParseHelixLogsRequest("text:\"out of memory\" kind:console")
	if err != nil {
		t.Fatal(err)
	}
	got, err := req.Filter(logs)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Log.WorkItem != "a" || got[0].Line != "Process terminated. Out of memory." {
		t.Errorf("Filter() = %+v", got)
	}

	// No text: every log of a selected kind, without a line.
	all, err := (&HelixLogsRequest{Kinds: []contracts.HelixLogKind{contracts.HelixLogRunClient}}).Filter(logs)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Log.WorkItem != "c" || all[0].Line != "" {
		t.Errorf("Filter() without text = %+v", all)
	}
}
