package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.DBHost)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "escalate", cfg.DetectionPolicy)
	assert.Equal(t, 8, cfg.DetectorConcurrency)
	assert.True(t, cfg.DetectorPrefilter)
	assert.Equal(t, uint32(3), cfg.Argon2Time)
	assert.Equal(t, "000", cfg.Argon2TargetPrefix)
	assert.Equal(t, 30, cfg.ChallengeExpiryMinutes)
	assert.Equal(t, []string{"*"}, cfg.APICORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DETECTION_POLICY", "challenge")
	t.Setenv("DETECTOR_PREFILTER", "false")
	t.Setenv("DETECTOR_CONCURRENCY", "2")
	t.Setenv("API_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5433, cfg.DBPort)
	assert.Equal(t, "challenge", cfg.DetectionPolicy)
	assert.False(t, cfg.DetectorPrefilter)
	assert.Equal(t, 2, cfg.DetectorConcurrency)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.APICORSOrigins)
}

func TestLoadIgnoresUnparseableValues(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("DETECTOR_PREFILTER", "maybe")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.DBPort)
	assert.True(t, cfg.DetectorPrefilter)
}
