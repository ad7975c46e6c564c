package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDefaultsMatchDocumentedValues(t *testing.T) {
	cfg := Defaults()

	assert.EqualValues(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 60, cfg.Breaker.CallTimeoutSec)
	assert.EqualValues(t, 3, cfg.Breaker.HalfOpenMax)
	assert.Equal(t, 2.0, cfg.Breaker.BackoffMultiplier)
	assert.Equal(t, 300, cfg.Breaker.MaxBackoffSec)
	assert.Equal(t, 0.1, cfg.Breaker.JitterFraction)

	assert.Equal(t, 30, cfg.Health.ProbeIntervalSec)
	assert.Equal(t, 10, cfg.Health.ProbeTimeoutSec)

	assert.Equal(t, 3, cfg.Fallback.RecoveryThreshold)
	assert.Equal(t, 5, cfg.Fallback.MaxRecoveryAttempts)
	assert.Equal(t, 300, cfg.Fallback.DegradationTimeoutSec)
	assert.NotEmpty(t, cfg.Fallback.DegradableOperations)

	assert.Equal(t, 3600, cfg.LLM.CacheTTLSec)
	assert.Equal(t, 3, cfg.LLM.FailureThreshold)
	assert.Equal(t, []string{"aws_bedrock", "openai", "local"}, cfg.LLM.Priority)
}

func TestBreakerConfigForFallsBackToSharedDefault(t *testing.T) {
	cfg := Defaults()
	cfg.BreakerOverrides = map[string]BreakerConfig{
		"payments": {FailureThreshold: 1, CallTimeoutSec: 5, HalfOpenMax: 1, BackoffMultiplier: 2, MaxBackoffSec: 30, JitterFraction: 0},
	}

	overridden := cfg.BreakerConfigFor("payments")
	assert.EqualValues(t, 1, overridden.FailureThreshold)

	shared := cfg.BreakerConfigFor("search")
	assert.EqualValues(t, 5, shared.FailureThreshold)
	assert.Equal(t, 60*time.Second, shared.Timeout)
}

func TestLoadReturnsDefaultsWhenNoFileIsPresent(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.EqualValues(t, 5, cfg.Breaker.FailureThreshold)
}

func TestLoadOverridesFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resilience.yaml")
	contents := `
breaker:
  failure_threshold: 7
  call_timeout_sec: 45
llm:
  cache_ttl_sec: 120
  priority: ["openai", "local"]
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.EqualValues(t, 7, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 45, cfg.Breaker.CallTimeoutSec)
	assert.Equal(t, 120, cfg.LLM.CacheTTLSec)
	assert.Equal(t, []string{"openai", "local"}, cfg.LLM.Priority)
}

func TestConfigurationManagerHotReloadsOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)

	cm, err := NewConfigManager(dir, logger)
	require.NoError(t, err)

	var seen *Configuration
	rcm := NewConfigurationManager(cm, logger)
	rcm.RegisterCallback(func(old, new *Configuration) error {
		seen = new
		return nil
	})
	require.NoError(t, rcm.Initialize())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, cm.Start(ctx))
	defer cm.Stop()

	path := filepath.Join(dir, "resilience.yaml")
	require.NoError(t, os.WriteFile(path, []byte("breaker:\n  failure_threshold: 9\n"), 0o644))

	require.Eventually(t, func() bool {
		return seen != nil && seen.Breaker.FailureThreshold == 9
	}, 2*time.Second, 10*time.Millisecond)

	assert.EqualValues(t, 9, rcm.GetConfig().Breaker.FailureThreshold)
}
