package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propsignal/crosscheck/internal/domain"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.True(t, cfg.EnableValidation)
	assert.True(t, cfg.EnableCrossValidation)
	assert.Equal(t, Duration(8*time.Second), cfg.ValidationTimeout)
	assert.Equal(t, int64(50), cfg.MaxConcurrentValidations)
	assert.Equal(t, 1000, cfg.MaxRequestsPerMinute)
	assert.Equal(t, Duration(time.Hour), cfg.CacheTTL)
	assert.Equal(t, 10000, cfg.MaxCacheSize)
	assert.Equal(t, uint32(5), cfg.FailureThreshold)
	assert.Equal(t, "auto", cfg.ConsensusStrategy)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
validation_timeout: 5s
max_requests_per_minute: 250
consensus_strategy: weighted
enable_fallback_on_failure: false
breaker_overrides:
  - source: external_api
    failure_threshold: 3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Duration(5*time.Second), cfg.ValidationTimeout)
	assert.Equal(t, 250, cfg.MaxRequestsPerMinute)
	assert.Equal(t, "weighted", cfg.ConsensusStrategy)
	assert.False(t, cfg.EnableFallback)
	// untouched keys keep defaults
	assert.Equal(t, 10000, cfg.MaxCacheSize)

	overrides := cfg.BreakerOverrideMap()
	require.Contains(t, overrides, domain.SourceExternal)
	assert.Equal(t, uint32(3), overrides[domain.SourceExternal].FailureThreshold)
	// unset override fields inherit the globals
	assert.Equal(t, Duration(60*time.Second), overrides[domain.SourceExternal].RecoveryTimeout)
}

func TestLoadEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validation.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis_addr: file:6379\n"), 0o644))

	t.Setenv("REDIS_ADDR", "env:6379")
	t.Setenv("HTTP_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env:6379", cfg.RedisAddr)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero timeout", func(c *Config) { c.ValidationTimeout = 0 }},
		{"zero concurrency", func(c *Config) { c.MaxConcurrentValidations = 0 }},
		{"zero rate limit", func(c *Config) { c.MaxRequestsPerMinute = 0 }},
		{"zero cache size", func(c *Config) { c.MaxCacheSize = 0 }},
		{"confidence above one", func(c *Config) { c.MinConfidenceThreshold = 1.5 }},
		{"unknown strategy", func(c *Config) { c.ConsensusStrategy = "quorum" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
