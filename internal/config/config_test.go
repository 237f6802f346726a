package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadDefaults tests that Load produces a valid default configuration
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Call.MaxBackgroundDuration)
	assert.Equal(t, 2*time.Minute, cfg.Call.InviteTTL)
	assert.Equal(t, 24*time.Hour, cfg.Call.NavStateTTL)
	assert.Equal(t, 5*time.Minute, cfg.Call.AuthRouteTTL)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Reconnect.BackoffMultiplier)
}

// TestLoadEnvOverrides tests environment variable overrides
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CALL_MAX_BACKGROUND_DURATION", "90s")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "8")
	t.Setenv("RECONNECT_JITTER_RATIO", "0.1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Call.MaxBackgroundDuration)
	assert.Equal(t, 8, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 0.1, cfg.Reconnect.JitterRatio)
}

// TestValidateRejectsBadValues tests the validation gates
func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero background duration", func(c *Config) { c.Call.MaxBackgroundDuration = 0 }},
		{"zero attempts", func(c *Config) { c.Reconnect.MaxAttempts = 0 }},
		{"multiplier below one", func(c *Config) { c.Reconnect.BackoffMultiplier = 0.5 }},
		{"jitter above one", func(c *Config) { c.Reconnect.JitterRatio = 1.5 }},
		{"max delay below base", func(c *Config) { c.Reconnect.MaxDelay = time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
