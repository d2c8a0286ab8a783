package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 50, cfg.DomainConfig().MaxHistorySteps)
	assert.Empty(t, cfg.File)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowstudio.yaml")
	writeFile(t, path, `
environment: staging
server_address: ":9090"
max_history_steps: 7
generation_timeout: 90s
allowed_origins: ["https://editor.test"]
`)
	t.Setenv("SERVER_ADDRESS", ":7070")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ServerAddress)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, []string{"https://editor.test"}, cfg.AllowedOrigins)
	assert.Equal(t, path, cfg.File)

	domain := cfg.DomainConfig()
	assert.Equal(t, 7, domain.MaxHistorySteps)
	assert.Equal(t, 90*time.Second, domain.GenerationTimeout)
	assert.Equal(t, 500, domain.MaxNodesPerGraph)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "workers", env: map[string]string{"WORKERS": "0"}},
		{name: "queue", env: map[string]string{"QUEUE_SIZE": "0"}},
		{name: "sample rate", env: map[string]string{"TRACE_SAMPLE_RATE": "1.5"}},
		{name: "history", env: map[string]string{"MAX_HISTORY_STEPS": "-1"}},
		{name: "production key", env: map[string]string{"ENVIRONMENT": "production"}},
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

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDomainConfig_Production(t *testing.T) {
	cfg := Defaults()
	cfg.Environment = "production"

	d := cfg.DomainConfig()

	assert.Equal(t, 200, d.MaxNodesPerGraph)
	assert.Equal(t, 800, d.MaxEdgesPerGraph)
}

func TestConfigWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowstudio.yaml")
	writeFile(t, path, "max_history_steps: 5\n")
	initial, err := Load(path)
	require.NoError(t, err)

	w, err := NewConfigWatcher(initial, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	var steps atomic.Int64
	w.OnChange(func(c *Config) { steps.Store(int64(c.MaxHistorySteps)) })

	writeFile(t, path, "max_history_steps: 12\n")

	assert.Eventually(t, func() bool { return steps.Load() == 12 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 12, w.GetConfig().MaxHistorySteps)
}

func TestConfigWatcher_InvalidReloadKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowstudio.yaml")
	writeFile(t, path, "max_history_steps: 5\n")
	initial, err := Load(path)
	require.NoError(t, err)

	w, err := NewConfigWatcher(initial, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	var calls atomic.Int32
	w.OnChange(func(*Config) { calls.Add(1) })

	w.reload(path)
	writeFile(t, path, "max_history_steps: [not a number\n")
	w.reload(path)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 5, w.GetConfig().MaxHistorySteps)
}

func TestConfigWatcher_NoFile(t *testing.T) {
	w, err := NewConfigWatcher(Defaults(), nil)
	require.NoError(t, err)

	w.Stop()
	w.Stop()
	assert.Equal(t, ":8080", w.GetConfig().ServerAddress)
}
