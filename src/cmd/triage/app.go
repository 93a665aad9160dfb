package main

import (
	"context"
	"fmt"

	"buildtriage/src/broker"
	"buildtriage/src/config"
	"buildtriage/src/contracts"
	"buildtriage/src/github"
	"buildtriage/src/ingest"
	"buildtriage/src/logger"
	"buildtriage/src/provider"
	"buildtriage/src/store"
	"buildtriage/src/triage"
)

// tokenFor returns the configured token of the named provider.
func tokenFor(cfg *config.Config, name string) string {
	switch name {
	case "github":
		return cfg.GitHubToken
	case "buildkite":
		return cfg.BuildkiteAPIToken
	default:
		return cfg.AzdoToken
	}
}

func newProvider(cfg *config.Config, name string) (provider.Provider, error) {
	p, err := provider.New(name, provider.Options{Token: tokenFor(cfg, name)})
	if err != nil {
		return nil, provider.WrapError(err)
	}
	return p, nil
}

func newMatcher(cfg *config.Config, p provider.TimelineProvider, log logger.Logger) *triage.Matcher {
	return triage.NewMatcher(p, triage.MatcherOptions{
		Parallelism:  cfg.Parallelism,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       log,
	})
}

// buildSource answers build searches from the store, or from the provider
// in live mode.
func buildSource(cfg *config.Config, st store.BuildStore, p provider.BuildLister) triage.BuildSource {
	if liveMode {
		return ingest.LiveSource{Builds: p, Organization: cfg.AzdoOrganization, Project: cfg.AzdoProject}
	}
	return st
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, cfg.PostgresDSN, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// newTracker returns nil when no GitHub token is configured, which turns
// issue updates off.
func newTracker(cfg *config.Config, rules *config.Rules, log logger.Logger) github.IssueTracker {
	if cfg.GitHubToken == "" {
		log.Warn("GITHUB_TOKEN is not set; tracking issues will not be updated")
		return nil
	}
	return github.NewTracker(github.NewClient(cfg.GitHubToken), rules.IssueRemap)
}

// pipeline is everything a rule run needs.
type pipeline struct {
	store    store.Store
	broker   broker.Broker
	provider provider.Provider
	orch     *triage.Orchestrator
	rules    *config.Rules
}

func (p *pipeline) Close() {
	if p.broker != nil {
		p.broker.Close()
	}
	if p.store != nil {
		p.store.Close()
	}
}

// newPipeline wires store, provider, tracker and broker into an
// orchestrator. The broker is only created when brokers are configured or
// required.
func newPipeline(ctx context.Context, cfg *config.Config, needBroker bool) (*pipeline, error) {
	log := logger.New("triage")

	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		return nil, err
	}
	if len(rules.Rules) == 0 {
		return nil, fmt.Errorf("%s defines no rules", cfg.RulesPath)
	}

	if needBroker && len(cfg.RedpandaBrokers) == 0 {
		return nil, fmt.Errorf("REDPANDA_BROKERS is required")
	}

	p := &pipeline{rules: rules}
	p.provider, err = newProvider(cfg, cfg.Provider)
	if err != nil {
		return nil, err
	}
	p.store, err = openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := triage.Options{
		Tracker:     newTracker(cfg, rules, log),
		BuildURL:    func(k contracts.BuildKey) string { return provider.BuildURL(cfg.Provider, k) },
		Parallelism: cfg.Parallelism,
		Timeout:     cfg.FetchTimeout,
		Logger:      logger.New("orchestrator"),
	}
	if len(cfg.RedpandaBrokers) > 0 {
		p.broker, err = broker.New(cfg.RedpandaBrokers)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("connect broker: %w", err)
		}
		opts.Publisher = p.broker
	}

	matcher := newMatcher(cfg, p.provider, logger.New("matcher"))
	p.orch = triage.NewOrchestrator(buildSource(cfg, p.store, p.provider), p.store, matcher, opts)
	return p, nil
}
