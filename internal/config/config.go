// Package config loads the validation service configuration: YAML file with
// shipped defaults, environment overrides for deploy-varying values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/propsignal/crosscheck/internal/domain"
)

// DefaultPath is where the shipped configuration lives relative to the
// working directory.
const DefaultPath = "config/validation.yaml"

// Duration wraps time.Duration so YAML values like "8s" parse; bare numbers
// are taken as nanoseconds for compatibility.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asInt int64
	if err := value.Decode(&asInt); err == nil {
		*d = Duration(asInt)
		return nil
	}
	var asString string
	if err := value.Decode(&asString); err != nil {
		return fmt.Errorf("duration must be a string like \"8s\": %w", err)
	}
	parsed, err := time.ParseDuration(asString)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", asString, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the full service configuration. Zero values are filled in by
// Default(); Load starts from defaults and applies the file on top.
type Config struct {
	// Feature switches.
	EnableValidation      bool `yaml:"enable_validation"`
	EnableCrossValidation bool `yaml:"enable_cross_validation"`
	EnableFallback        bool `yaml:"enable_fallback_on_failure"`
	CacheResults          bool `yaml:"cache_validation_results"`
	AlertOnConflicts      bool `yaml:"alert_on_conflicts"`

	// Whole-call policy.
	ValidationTimeout        Duration `yaml:"validation_timeout"`
	MinConfidenceThreshold   float64  `yaml:"min_confidence_threshold"`
	MaxConcurrentValidations int64    `yaml:"max_concurrent_validations"`
	MaxRequestsPerMinute     int      `yaml:"max_requests_per_minute"`

	// Consensus strategy: "auto" (median/majority) or "weighted".
	ConsensusStrategy string `yaml:"consensus_strategy"`

	// Cache tuning.
	CacheTTL     Duration `yaml:"cache_ttl"`
	MaxCacheSize int      `yaml:"max_cache_size"`

	// Circuit breaker tuning, applied to every source unless overridden.
	FailureThreshold uint32            `yaml:"failure_threshold"`
	RecoveryTimeout  Duration          `yaml:"recovery_timeout"`
	SuccessThreshold uint32            `yaml:"success_threshold"`
	BreakerOverrides []BreakerOverride `yaml:"breaker_overrides"`

	// Deploy-varying endpoints; env always wins over file.
	HTTPAddr    string `yaml:"http_addr"`
	RedisAddr   string `yaml:"redis_addr"`
	DatabaseURL string `yaml:"database_url"`
}

// BreakerOverride tunes one source's breaker away from the global settings.
type BreakerOverride struct {
	Source           string   `yaml:"source"`
	FailureThreshold uint32   `yaml:"failure_threshold"`
	RecoveryTimeout  Duration `yaml:"recovery_timeout"`
	SuccessThreshold uint32   `yaml:"success_threshold"`
}

// Default returns the shipped configuration, mirroring the values the
// service runs with when no file is present.
func Default() Config {
	return Config{
		EnableValidation:         true,
		EnableCrossValidation:    true,
		EnableFallback:           true,
		CacheResults:             true,
		AlertOnConflicts:         true,
		ValidationTimeout:        Duration(8 * time.Second),
		MinConfidenceThreshold:   0.7,
		MaxConcurrentValidations: 50,
		MaxRequestsPerMinute:     1000,
		ConsensusStrategy:        "auto",
		CacheTTL:                 Duration(time.Hour),
		MaxCacheSize:             10000,
		FailureThreshold:         5,
		RecoveryTimeout:          Duration(60 * time.Second),
		SuccessThreshold:         1,
		HTTPAddr:                 ":8090",
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. A missing file is not an error; the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// defaults only
	case err != nil:
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
}

// Validate rejects configurations that cannot run.
func (c Config) Validate() error {
	if c.ValidationTimeout <= 0 {
		return fmt.Errorf("validation_timeout must be positive, got %s", c.ValidationTimeout)
	}
	if c.MaxConcurrentValidations <= 0 {
		return fmt.Errorf("max_concurrent_validations must be positive, got %d", c.MaxConcurrentValidations)
	}
	if c.MaxRequestsPerMinute <= 0 {
		return fmt.Errorf("max_requests_per_minute must be positive, got %d", c.MaxRequestsPerMinute)
	}
	if c.MaxCacheSize <= 0 {
		return fmt.Errorf("max_cache_size must be positive, got %d", c.MaxCacheSize)
	}
	if c.MinConfidenceThreshold < 0 || c.MinConfidenceThreshold > 1 {
		return fmt.Errorf("min_confidence_threshold must be in [0,1], got %v", c.MinConfidenceThreshold)
	}
	switch c.ConsensusStrategy {
	case "auto", "weighted":
	default:
		return fmt.Errorf("consensus_strategy must be auto or weighted, got %q", c.ConsensusStrategy)
	}
	return nil
}

// BreakerOverrideMap resolves the per-source overrides into domain keys,
// filling unset fields from the global breaker settings.
func (c Config) BreakerOverrideMap() map[domain.DataSource]BreakerOverride {
	if len(c.BreakerOverrides) == 0 {
		return nil
	}
	out := make(map[domain.DataSource]BreakerOverride, len(c.BreakerOverrides))
	for _, o := range c.BreakerOverrides {
		if o.FailureThreshold == 0 {
			o.FailureThreshold = c.FailureThreshold
		}
		if o.RecoveryTimeout == 0 {
			o.RecoveryTimeout = c.RecoveryTimeout
		}
		if o.SuccessThreshold == 0 {
			o.SuccessThreshold = c.SuccessThreshold
		}
		out[domain.DataSource(o.Source)] = o
	}
	return out
}
