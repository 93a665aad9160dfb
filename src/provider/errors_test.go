package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestWrapError_Hints(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMessage string
		wantHint    []string
	}{
		{
			name:        "invalid URL",
			err:         fmt.Errorf("%w: https://invalid.com", ErrInvalidURL),
			wantMessage: "Invalid build URL",
			wantHint:    []string{"dev.azure.com", "github.com", "buildkite.com"},
		},
		{
			name:        "auth failed",
			err:         fmt.Errorf("%w: status 401", ErrAuthFailed),
			wantMessage: "Authentication failed",
			wantHint:    []string{"AZDO_TOKEN", "GITHUB_TOKEN", "BUILDKITE_API_TOKEN"},
		},
		{
			name:        "build not found",
			err:         fmt.Errorf("azdo: %w", ErrBuildNotFound),
			wantMessage: "Build not found",
		},
		{
			name:        "rate limited",
			err:         fmt.Errorf("fetch timeline: %w", ErrRateLimited),
			wantMessage: "The build provider is throttling requests",
			wantHint:    []string{"TRIAGE_PARALLELISM"},
		},
		{
			name:        "timeline unavailable",
			err:         ErrTimelineUnavailable,
			wantMessage: "The build has no timeline yet",
		},
		{
			name:        "deadline",
			err:         fmt.Errorf("get timeline: %w", context.DeadlineExceeded),
			wantMessage: "The build provider did not answer in time",
			wantHint:    []string{"TRIAGE_FETCH_TIMEOUT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := WrapError(tt.err)

			var userErr *UserError
			if !errors.As(wrapped, &userErr) {
				t.Fatalf("WrapError() returned %T, want *UserError", wrapped)
			}
			if userErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", userErr.Message, tt.wantMessage)
			}
			for _, want := range tt.wantHint {
				if !strings.Contains(userErr.Hint, want) {
					t.Errorf("Hint %q should mention %q", userErr.Hint, want)
				}
			}
			if !errors.Is(wrapped, tt.err) {
				t.Error("wrapped error should still match the original")
			}
		})
	}
}

func TestWrapError_UnknownProvider(t *testing.T) {
	Register("hintstub", func(opts Options) (Provider, error) { return nil, nil })

	_, err := New("travis", Options{})
	wrapped := WrapError(err)

	var userErr *UserError
	if !errors.As(wrapped, &userErr) {
		t.Fatalf("WrapError() returned %T, want *UserError", wrapped)
	}
	if !strings.Contains(userErr.Hint, "hintstub") {
		t.Errorf("Hint should list registered providers, got %q", userErr.Hint)
	}
}

func TestWrapError_PassThrough(t *testing.T) {
	if WrapError(nil) != nil {
		t.Error("WrapError(nil) should be nil")
	}

	plain := errors.New("connection reset by peer")
	if got := WrapError(plain); got != plain {
		t.Errorf("WrapError() = %v, want the original error", got)
	}

	// An error that already carries a hint is not wrapped twice.
	missing := MissingToken("GitHub", "GITHUB_TOKEN")
	if got := WrapError(fmt.Errorf("new provider: %w", missing)); !strings.Contains(got.Error(), "Set GITHUB_TOKEN") ||
		strings.Count(got.Error(), "Hint:") != 1 {
		t.Errorf("WrapError() = %q", got)
	}
}

func TestUserError_Error(t *testing.T) {
	tests := []struct {
		name    string
		userErr *UserError
		want    string
	}{
		{
			name:    "message only",
			userErr: &UserError{Message: "Something went wrong"},
			want:    "Something went wrong",
		},
		{
			name:    "message with hint",
			userErr: &UserError{Message: "Something went wrong", Hint: "Try this"},
			want:    "Something went wrong\n\nHint: Try this",
		},
		{
			name:    "message with hint and error",
			userErr: &UserError{Message: "Something went wrong", Hint: "Try this", Err: errors.New("boom")},
			want:    "Something went wrong\n\nHint: Try this\n\nDetails: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.userErr.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMissingToken(t *testing.T) {
	err := MissingToken("Buildkite", "BUILDKITE_API_TOKEN")
	if !errors.Is(err, ErrAuthFailed) {
		t.Error("MissingToken should wrap ErrAuthFailed")
	}
	if !strings.Contains(err.Error(), "BUILDKITE_API_TOKEN") {
		t.Errorf("Error() = %q", err.Error())
	}
}
