// Package provider defines the build provider capabilities consumed by
// triage, a registry of provider factories, and build URL parsing.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"buildtriage/src/contracts"
)

var (
	ErrInvalidURL      = errors.New("invalid build URL")
	ErrProviderUnknown = errors.New("unknown CI provider")
)

// TimelineProvider fetches the timeline of one build attempt.
type TimelineProvider interface {
	// Name returns the provider name (e.g., "azdo", "github", "buildkite")
	Name() string

	// FetchTimeline returns the records of the given attempt, or of the latest
	// attempt when key.Attempt is 0. ok is false when the build exists but no
	// timeline is available yet; that is not an error.
	FetchTimeline(ctx context.Context, key contracts.BuildAttemptKey) (records []contracts.TimelineRecord, ok bool, err error)
}

// SubTimelineFetcher is implemented by providers whose records can point at
// a nested timeline.
type SubTimelineFetcher interface {
	FetchSubTimeline(ctx context.Context, build contracts.BuildKey, ref contracts.TimelineDetailsRef) ([]contracts.TimelineRecord, bool, error)
}

// BuildLister lists recent builds for search and sync.
type BuildLister interface {
	ListBuilds(ctx context.Context, opts ListOptions) ([]contracts.Build, error)
}

// Provider is the full capability set of a registered provider.
type Provider interface {
	TimelineProvider
	BuildLister
}

// ListOptions narrows a build listing.
type ListOptions struct {
	Organization string
	Project      string
	// Definition is a provider-specific pipeline or definition identifier.
	Definition string
	// Top caps the number of builds returned; 0 uses the provider default.
	Top int
	// MinTime excludes builds queued before it when non-zero.
	MinTime time.Time
}

// Options configures a provider instance.
type Options struct {
	Token string
	// BaseURL overrides the API endpoint, mostly for tests.
	BaseURL string
}

// Factory creates a provider from options.
type Factory func(opts Options) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a provider factory available by name. It is called from
// provider package init functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = factory
}

// New creates the named provider.
func New(name string, opts Options) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(name)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnknown, name)
	}
	return factory(opts)
}

// Registered returns the registered provider names in sorted order.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
