package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "DEDUP_"
	envCfgPath = "DEDUP_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if DEDUP_CONFIG is set
//  3. env (prefix DEDUP_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envCfgPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// DEDUP_UPSTREAM_URL -> upstream_url. Flat keys keep their underscores
	// so they match the koanf tags. DEDUP_DEDUPE_METHODS is comma separated.
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if key == "config" {
			return "", nil
		}
		if key == "dedupe_methods" {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for i, m := range cfg.DedupeMethods {
		cfg.DedupeMethods[i] = strings.ToUpper(m)
	}
	return &cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.UpstreamURL) == "" {
		return fmt.Errorf("%w: upstream_url must not be empty", ErrInvalidConfig)
	}
	u, err := url.Parse(c.UpstreamURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: upstream_url must be an absolute http(s) URL, got %q", ErrInvalidConfig, c.UpstreamURL)
	}
	durations := []struct {
		name string
		v    int
	}{
		{"upstream_timeout_ms", c.UpstreamTimeoutMS},
		{"request_timeout_ms", c.RequestTimeoutMS},
		{"cleanup_interval_ms", c.CleanupIntervalMS},
		{"cleanup_max_age_ms", c.CleanupMaxAgeMS},
		{"block_after_complete_ms", c.BlockAfterCompleteMS},
	}
	for _, d := range durations {
		if d.v < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, d.name)
		}
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
