// Package config defines the proxy configuration and how it is loaded.
package config

import "time"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// UpstreamURL is the backend API every proxied request is sent to.
	UpstreamURL string `koanf:"upstream_url"`

	// UpstreamTimeoutMS bounds one upstream round trip. Zero disables it.
	UpstreamTimeoutMS int `koanf:"upstream_timeout_ms"`

	// RequestTimeoutMS is the age after which a pending entry counts as stuck.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// CleanupIntervalMS is the period of the background cleanup sweep.
	CleanupIntervalMS int `koanf:"cleanup_interval_ms"`

	// CleanupMaxAgeMS is the age after which completed records are swept.
	CleanupMaxAgeMS int `koanf:"cleanup_max_age_ms"`

	// BlockAfterCompleteMS rejects repeats of a successful unsafe request
	// (POST, PUT, PATCH, DELETE) for this long. Zero disables the cool-down.
	BlockAfterCompleteMS int `koanf:"block_after_complete_ms"`

	// DedupeMethods lists the HTTP methods routed through the deduplicator.
	DedupeMethods []string `koanf:"dedupe_methods"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9080",
		UpstreamURL:          "http://127.0.0.1:8080",
		UpstreamTimeoutMS:    15_000,
		RequestTimeoutMS:     30_000,
		CleanupIntervalMS:    60_000,
		CleanupMaxAgeMS:      10_000,
		BlockAfterCompleteMS: 2_000,
		DedupeMethods:        []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE"},
	}
}

// UpstreamTimeout returns UpstreamTimeoutMS as a duration.
func (c *Config) UpstreamTimeout() time.Duration { return ms(c.UpstreamTimeoutMS) }

// RequestTimeout returns RequestTimeoutMS as a duration.
func (c *Config) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMS) }

// CleanupInterval returns CleanupIntervalMS as a duration.
func (c *Config) CleanupInterval() time.Duration { return ms(c.CleanupIntervalMS) }

// CleanupMaxAge returns CleanupMaxAgeMS as a duration.
func (c *Config) CleanupMaxAge() time.Duration { return ms(c.CleanupMaxAgeMS) }

// BlockAfterComplete returns BlockAfterCompleteMS as a duration.
func (c *Config) BlockAfterComplete() time.Duration { return ms(c.BlockAfterCompleteMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
