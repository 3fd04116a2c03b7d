package kademlia

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_RequiresListenAddr(t *testing.T) {
	cfg := Config{}
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrConfig)
}

func TestConfig_Validate_FillsDefaults(t *testing.T) {
	cfg := Config{ListenAddr: "127.0.0.1:9001"}
	require.NoError(t, cfg.Validate())

	want := DefaultConfig()
	assert.Equal(t, want.K, cfg.K)
	assert.Equal(t, want.Alpha, cfg.Alpha)
	assert.Equal(t, want.RequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, want.RefreshInterval, cfg.RefreshInterval)
	assert.Equal(t, want.LivenessWindow, cfg.LivenessWindow)
	assert.Equal(t, want.MaxRetries, cfg.MaxRetries)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestConfig_Validate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := Config{ListenAddr: "127.0.0.1:9001", LogLevel: "verbose"}
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrConfig)
}

func TestConfig_Validate_AcceptsExplicitValues(t *testing.T) {
	cfg := Config{ListenAddr: "127.0.0.1:9001", K: 5, Alpha: 1, LogLevel: "debug"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.K)
	assert.Equal(t, 1, cfg.Alpha)
	assert.Equal(t, "debug", cfg.LogLevel)
}
