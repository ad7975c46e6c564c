package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/shannon-labs/resilientd/internal/circuitbreaker"
	"github.com/shannon-labs/resilientd/internal/fallback"
	"github.com/shannon-labs/resilientd/internal/health"
	"github.com/shannon-labs/resilientd/internal/llmrouter"
)

// BreakerConfig is the mapstructure-friendly shape of a breaker's tunables,
// expressed in the units operators write in YAML (seconds, fractions)
// rather than the package's native time.Duration/uint32 fields.
type BreakerConfig struct {
	FailureThreshold  uint32  `mapstructure:"failure_threshold"`
	CallTimeoutSec    int     `mapstructure:"call_timeout_sec"`
	HalfOpenMax       uint32  `mapstructure:"half_open_max"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	MaxBackoffSec     int     `mapstructure:"max_backoff_sec"`
	JitterFraction    float64 `mapstructure:"jitter_fraction"`
}

// ToBreakerConfig converts to the circuitbreaker package's native Config.
func (b BreakerConfig) ToBreakerConfig() circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig()
	cfg.FailureThreshold = b.FailureThreshold
	cfg.MaxRequests = b.HalfOpenMax
	cfg.Timeout = time.Duration(b.CallTimeoutSec) * time.Second
	cfg.BackoffMultiplier = b.BackoffMultiplier
	cfg.MaxBackoff = time.Duration(b.MaxBackoffSec) * time.Second
	cfg.JitterFraction = b.JitterFraction
	return cfg
}

// HealthSurfaceConfig is the Configuration's health probing section.
type HealthSurfaceConfig struct {
	ProbeIntervalSec int `mapstructure:"probe_interval_sec"`
	ProbeTimeoutSec  int `mapstructure:"probe_timeout_sec"`
}

func (h HealthSurfaceConfig) ToHealthConfiguration() *health.HealthConfiguration {
	return &health.HealthConfiguration{
		Enabled:       true,
		CheckInterval: time.Duration(h.ProbeIntervalSec) * time.Second,
		GlobalTimeout: time.Duration(h.ProbeTimeoutSec) * time.Second,
		Checks:        make(map[string]health.CheckConfig),
	}
}

// FallbackSurfaceConfig is the Configuration's fallback/recovery/degradation
// section, including the degradable_operations table.
type FallbackSurfaceConfig struct {
	Strategy                 string   `mapstructure:"strategy"`
	RecoveryThreshold        int      `mapstructure:"recovery_threshold"`
	MaxRecoveryAttempts      int      `mapstructure:"max_recovery_attempts"`
	RecoveryProbeIntervalSec int      `mapstructure:"recovery_probe_interval_sec"`
	DegradationTimeoutSec    int      `mapstructure:"degradation_timeout_sec"`
	DegradableOperations     []string `mapstructure:"degradable_operations"`
}

// ToCoordinatorConfig converts to the fallback package's native Config. The
// degradable-operation handlers themselves are fixed Go code (fallback's
// DefaultDegradableOps), not data — the config table only gates which of
// those named operations are active.
func (f FallbackSurfaceConfig) ToCoordinatorConfig() fallback.Config {
	cfg := fallback.DefaultConfig()
	if f.RecoveryThreshold > 0 {
		cfg.RecoveryThreshold = f.RecoveryThreshold
	}
	if f.MaxRecoveryAttempts > 0 {
		cfg.MaxRecoveryAttempts = f.MaxRecoveryAttempts
	}
	if f.RecoveryProbeIntervalSec > 0 {
		cfg.RecoveryProbeInterval = time.Duration(f.RecoveryProbeIntervalSec) * time.Second
	}
	if f.DegradationTimeoutSec > 0 {
		cfg.DegradationTimeout = time.Duration(f.DegradationTimeoutSec) * time.Second
	}
	if len(f.DegradableOperations) > 0 {
		cfg.DegradableOperations = fallback.FilterDegradableOps(f.DegradableOperations)
	}
	return cfg
}

// LLMSurfaceConfig is the Configuration's LLM router section.
type LLMSurfaceConfig struct {
	Priority         []string `mapstructure:"priority"`
	CacheTTLSec      int      `mapstructure:"cache_ttl_sec"`
	FailureThreshold int      `mapstructure:"failure_threshold"`
}

func (l LLMSurfaceConfig) ToRouterConfig() llmrouter.Config {
	cfg := llmrouter.DefaultConfig()
	if len(l.Priority) > 0 {
		priority := make([]llmrouter.Provider, 0, len(l.Priority))
		for _, p := range l.Priority {
			priority = append(priority, llmrouter.Provider(p))
		}
		cfg.Priority = priority
	}
	if l.CacheTTLSec > 0 {
		cfg.CacheTTL = time.Duration(l.CacheTTLSec) * time.Second
	}
	if l.FailureThreshold > 0 {
		cfg.FailureThreshold = l.FailureThreshold
	}
	return cfg
}

// Configuration is the single nested record covering every field in the
// resilience core's configuration surface: breaker defaults and per-service
// overrides, health probe intervals, fallback/recovery/degradation
// parameters, and the LLM router block.
type Configuration struct {
	Breaker         BreakerConfig            `mapstructure:"breaker"`
	BreakerOverrides map[string]BreakerConfig `mapstructure:"breaker_overrides"`
	Health          HealthSurfaceConfig      `mapstructure:"health"`
	Fallback        FallbackSurfaceConfig    `mapstructure:"fallback"`
	LLM             LLMSurfaceConfig         `mapstructure:"llm"`
}

// BreakerConfigFor resolves the effective breaker config for a named
// service: a per-service override if one is configured, the shared
// breaker defaults otherwise.
func (c *Configuration) BreakerConfigFor(service string) circuitbreaker.Config {
	if override, ok := c.BreakerOverrides[service]; ok {
		return override.ToBreakerConfig()
	}
	return c.Breaker.ToBreakerConfig()
}

// Defaults returns the Configuration populated with spec §6's documented
// defaults.
func Defaults() *Configuration {
	return &Configuration{
		Breaker: BreakerConfig{
			FailureThreshold:  5,
			CallTimeoutSec:    60,
			HalfOpenMax:       3,
			BackoffMultiplier: 2.0,
			MaxBackoffSec:     300,
			JitterFraction:    0.1,
		},
		BreakerOverrides: make(map[string]BreakerConfig),
		Health: HealthSurfaceConfig{
			ProbeIntervalSec: 30,
			ProbeTimeoutSec:  10,
		},
		Fallback: FallbackSurfaceConfig{
			Strategy:                 "immediate",
			RecoveryThreshold:        3,
			MaxRecoveryAttempts:      5,
			RecoveryProbeIntervalSec: 30,
			DegradationTimeoutSec:    300,
			DegradableOperations:     fallback.DefaultDegradableOpNames(),
		},
		LLM: LLMSurfaceConfig{
			Priority:         []string{"aws_bedrock", "openai", "local"},
			CacheTTLSec:      3600,
			FailureThreshold: 3,
		},
	}
}

// Load reads the Configuration from CONFIG_PATH, or /app/config/resilience.yaml
// if present, falling back to config/resilience.yaml. Missing files are not
// an error: Load returns spec-documented defaults so the core can run
// unconfigured. Values present in the file override those defaults; no other
// environment variable than CONFIG_PATH is consulted.
func Load() (*Configuration, error) {
	cfg := Defaults()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		if _, err := os.Stat("/app/config/resilience.yaml"); err == nil {
			cfgPath = "/app/config/resilience.yaml"
		} else {
			cfgPath = "config/resilience.yaml"
		}
	}
	if info, err := os.Stat(cfgPath); err == nil && info.IsDir() {
		cfgPath = filepath.Join(cfgPath, "resilience.yaml")
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
