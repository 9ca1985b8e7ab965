package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at an empty directory so a developer's
// ~/.proclife/proclife.yaml does not leak into the tests
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Pipe.StrictClose)
	assert.Equal(t, "go.mod", cfg.Scenario.WCTarget)
	assert.Equal(t, "forking.output", cfg.Scenario.RedirectOutput)
	assert.Equal(t, "q2.txt", cfg.Scenario.SharedFile)
	assert.Equal(t, 25*time.Millisecond, cfg.Scenario.RaceJitter)
	assert.Equal(t, "proclife", cfg.Metrics.Namespace)
	assert.Empty(t, cfg.Metrics.Textfile)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PROCLIFE_LOG_LEVEL", "debug")
	t.Setenv("PROCLIFE_PIPE_STRICT_CLOSE", "false")
	t.Setenv("PROCLIFE_SCENARIO_RACE_JITTER", "5ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Pipe.StrictClose)
	assert.Equal(t, 5*time.Millisecond, cfg.Scenario.RaceJitter)
}

func TestLoad_HomeConfigFile(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".proclife")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "proclife.yaml"), []byte(`
log:
  format: text
scenario:
  wc_target: /etc/hostname
tracing:
  enabled: true
`), 0600))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "/etc/hostname", cfg.Scenario.WCTarget)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ExplicitFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("metrics:\n  textfile: /tmp/proclife.prom\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/proclife.prom", cfg.Metrics.Textfile)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_Invalid(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		env  map[string]string
	}{
		{"log level", map[string]string{"PROCLIFE_LOG_LEVEL": "loud"}},
		{"log format", map[string]string{"PROCLIFE_LOG_FORMAT": "xml"}},
		{"negative jitter", map[string]string{"PROCLIFE_SCENARIO_RACE_JITTER": "-1ms"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
