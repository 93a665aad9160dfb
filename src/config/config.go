// Package config provides configuration management for buildtriage.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultProvider     = "azdo"
	DefaultSQLitePath   = "buildtriage.db"
	DefaultFetchTimeout = 30 * time.Second
	DefaultParallelism  = 8
)

// Config holds the application configuration.
type Config struct {
	// Provider is the build provider name (azdo, github, buildkite).
	Provider string

	AzdoToken         string
	AzdoOrganization  string
	AzdoProject       string
	GitHubToken       string
	BuildkiteAPIToken string

	// PostgresDSN selects the Postgres store when set; otherwise SQLitePath is used.
	PostgresDSN string
	SQLitePath  string

	// RedpandaBrokers enables the broker when non-empty.
	RedpandaBrokers []string

	// RulesPath is the YAML rule file.
	RulesPath string

	LogLevel  string
	LogFormat string

	// FetchTimeout bounds every external call made for one build or issue.
	FetchTimeout time.Duration
	// Parallelism bounds concurrent timeline fetches within one rule.
	Parallelism int
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Provider:          strings.ToLower(envOr("BUILD_PROVIDER", DefaultProvider)),
		AzdoToken:         os.Getenv("AZDO_TOKEN"),
		AzdoOrganization:  os.Getenv("AZDO_ORGANIZATION"),
		AzdoProject:       os.Getenv("AZDO_PROJECT"),
		GitHubToken:       os.Getenv("GITHUB_TOKEN"),
		BuildkiteAPIToken: os.Getenv("BUILDKITE_API_TOKEN"),
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		SQLitePath:        envOr("SQLITE_PATH", DefaultSQLitePath),
		RulesPath:         os.Getenv("TRIAGE_RULES"),
		LogLevel:          envOr("LOG_LEVEL", "info"),
		LogFormat:         envOr("LOG_FORMAT", "text"),
		FetchTimeout:      DefaultFetchTimeout,
		Parallelism:       DefaultParallelism,
	}

	switch cfg.Provider {
	case "azdo", "github", "buildkite":
	default:
		return nil, fmt.Errorf("BUILD_PROVIDER %q is not one of azdo, github, buildkite", cfg.Provider)
	}

	if brokers := os.Getenv("REDPANDA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.RedpandaBrokers = append(cfg.RedpandaBrokers, b)
			}
		}
	}

	if v := os.Getenv("TRIAGE_FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("TRIAGE_FETCH_TIMEOUT %q is not a positive duration", v)
		}
		cfg.FetchTimeout = d
	}

	if v := os.Getenv("TRIAGE_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("TRIAGE_PARALLELISM %q is not a positive integer", v)
		}
		cfg.Parallelism = n
	}

	return cfg, nil
}

// MustLoadFromEnv loads configuration from environment variables and panics on error.
// This is useful for initialization in main() where configuration errors should be fatal.
func MustLoadFromEnv() *Config {
	cfg, err := LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// ProviderToken returns the token for the configured provider.
func (c *Config) ProviderToken() string {
	switch c.Provider {
	case "github":
		return c.GitHubToken
	case "buildkite":
		return c.BuildkiteAPIToken
	default:
		return c.AzdoToken
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
