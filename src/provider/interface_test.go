package provider

import (
	"context"
	"errors"
	"testing"

	"buildtriage/src/contracts"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    BuildRef
		wantErr bool
	}{
		{
			name: "azure devops URL",
			url:  "https://dev.azure.com/dnceng-public/public/_build/results?buildId=123456&view=results",
			want: BuildRef{Provider: "azdo", Build: contracts.BuildKey{Organization: "dnceng-public", Project: "public", Number: 123456}},
		},
		{
			name: "azure devops URL with attempt",
			url:  "https://dev.azure.com/dnceng/internal/_build/results?buildId=7&attempt=2",
			want: BuildRef{Provider: "azdo", Build: contracts.BuildKey{Organization: "dnceng", Project: "internal", Number: 7}, Attempt: 2},
		},
		{
			name: "buildkite URL",
			url:  "https://buildkite.com/org/pipeline/builds/123",
			want: BuildRef{Provider: "buildkite", Build: contracts.BuildKey{Organization: "org", Project: "pipeline", Number: 123}},
		},
		{
			name: "github actions URL",
			url:  "https://github.com/owner/repo/actions/runs/456",
			want: BuildRef{Provider: "github", Build: contracts.BuildKey{Organization: "owner", Project: "repo", Number: 456}},
		},
		{
			name: "github actions attempt URL",
			url:  "https://github.com/owner/repo/actions/runs/456/attempts/3",
			want: BuildRef{Provider: "github", Build: contracts.BuildKey{Organization: "owner", Project: "repo", Number: 456}, Attempt: 3},
		},
		{
			name:    "azure devops URL without build id",
			url:     "https://dev.azure.com/org/project/_build?definitionId=15",
			wantErr: true,
		},
		{
			name:    "invalid URL",
			url:     "https://example.com/invalid",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURL(tt.url)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidURL) {
					t.Errorf("ParseURL() error = %v, want ErrInvalidURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURL() unexpected error: %v", err)
			}
			if *got != tt.want {
				t.Errorf("ParseURL() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

type stubProvider struct{ token string }

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) FetchTimeline(ctx context.Context, key contracts.BuildAttemptKey) ([]contracts.TimelineRecord, bool, error) {
	return nil, false, nil
}

func (s *stubProvider) ListBuilds(ctx context.Context, opts ListOptions) ([]contracts.Build, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	Register("Stub", func(opts Options) (Provider, error) {
		if opts.Token == "" {
			return nil, MissingToken("stub", "STUB_TOKEN")
		}
		return &stubProvider{token: opts.Token}, nil
	})

	p, err := New("stub", Options{Token: "secret"})
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	if p.Name() != "stub" {
		t.Errorf("Name() = %q", p.Name())
	}

	_, err = New("stub", Options{})
	var userErr *UserError
	if !errors.As(err, &userErr) || !errors.Is(err, ErrAuthFailed) {
		t.Errorf("New() without token error = %v, want UserError wrapping ErrAuthFailed", err)
	}

	if _, err := New("jenkins", Options{}); !errors.Is(err, ErrProviderUnknown) {
		t.Errorf("New(jenkins) error = %v, want ErrProviderUnknown", err)
	}

	found := false
	for _, name := range Registered() {
		if name == "stub" {
			found = true
		}
	}
	if !found {
		t.Errorf("Registered() = %v, missing stub", Registered())
	}
}

func TestBuildURL_RoundTrip(t *testing.T) {
	key := contracts.BuildKey{Organization: "org", Project: "proj", Number: 42}
	for _, name := range []string{"azdo", "github", "buildkite"} {
		t.Run(name, func(t *testing.T) {
			raw := BuildURL(name, key)
			ref, err := ParseURL(raw)
			if err != nil {
				t.Fatalf("ParseURL(%q): %v", raw, err)
			}
			if ref.Provider != name || ref.Build != key {
				t.Errorf("ParseURL(%q) = %+v", raw, ref)
			}
		})
	}
}
