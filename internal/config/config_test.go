package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	settings, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, settings.TickInterval)
	assert.Equal(t, time.Second, settings.SubmitLatency)
	assert.Equal(t, 20, settings.Capacity)
	assert.Equal(t, 0.4, settings.Policy.InsertProbability)
	assert.Equal(t, "0.0.0.0:9001", cfg.Listen)
}

func TestLoad_YAMLOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
listen: 127.0.0.1:8080
board:
  tick_interval: 500ms
  capacity: 10
  start_paused: true
  market:
    insert_probability: 0.5
`))
	require.NoError(t, err)

	settings, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, 500*time.Millisecond, settings.TickInterval)
	assert.Equal(t, 10, settings.Capacity)
	assert.True(t, settings.StartPaused)
	assert.Equal(t, 0.5, settings.Policy.InsertProbability)
	assert.Equal(t, 0.2, settings.Policy.UpdateProbability)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BOARD_TICK_INTERVAL", "3s")
	t.Setenv("BOARD_SEED", "99")
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	settings, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, settings.TickInterval)
	assert.Equal(t, int64(99), settings.Seed)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad duration":     "board:\n  tick_interval: soon\n",
		"zero latency":     "board:\n  submit_latency: 0s\n",
		"zero capacity":    "board:\n  capacity: 0\n",
		"probability mass": "board:\n  market:\n    insert_probability: 0.9\n",
		"empty band":       "board:\n  market:\n    price_min: 110\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
