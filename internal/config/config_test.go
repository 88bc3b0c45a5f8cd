package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caffeineduck/runjs/hostfunc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Zero(t, cfg.DrainTimeout)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, []string{"/:.:rwc"}, cfg.Mounts)
	assert.Empty(t, cfg.AllowedHosts)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.Addr)
}

func TestParseEnvironment(t *testing.T) {
	t.Setenv("RUNJS_TIMEOUT", "5s")
	t.Setenv("RUNJS_WORKERS", "2")
	t.Setenv("RUNJS_ALLOW_HOSTS", "api.example.com,cdn.example.com")
	t.Setenv("RUNJS_MOUNTS", "/data:./data:ro,/out:./out:rwc")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, []string{"api.example.com", "cdn.example.com"}, cfg.AllowedHosts)
	assert.Equal(t, []string{"/data:./data:ro", "/out:./out:rwc"}, cfg.Mounts)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero workers", "RUNJS_WORKERS", "0"},
		{"unknown level", "RUNJS_LOG_LEVEL", "trace"},
		{"bad mount mode", "RUNJS_MOUNTS", "/:.:rx"},
		{"malformed mount", "RUNJS_MOUNTS", "/only"},
		{"not a duration", "RUNJS_TIMEOUT", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "runjs.env")
	require.NoError(t, os.WriteFile(file, []byte("RUNJS_DRAIN_TIMEOUT=2s\nRUNJS_ALLOW_NET=true\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("RUNJS_DRAIN_TIMEOUT")
		os.Unsetenv("RUNJS_ALLOW_NET")
	})

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.DrainTimeout)
	assert.Equal(t, []string{hostfunc.AnyHost}, cfg.Hosts())
}

func TestLoadEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	file := filepath.Join(t.TempDir(), "runjs.env")
	require.NoError(t, os.WriteFile(file, []byte("RUNJS_WORKERS=3\n"), 0o644))
	t.Setenv("RUNJS_WORKERS", "5")

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Workers)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)

	// t.Chdir requires Go 1.24; equivalent chdir-with-restore for the local toolchain.
	tmp := t.TempDir()
	prev, werr := os.Getwd()
	require.NoError(t, werr)
	require.NoError(t, os.Chdir(tmp))
	t.Cleanup(func() { _ = os.Chdir(prev) })
	_, err = Load("")
	assert.NoError(t, err, "missing default env file is ignored")
}

func TestExecutorOptions(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	cfg.Mounts = append(cfg.Mounts, "/data:./data:ro")
	opts, err := cfg.ExecutorOptions(zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, opts, 11)

	cfg.Mounts = []string{"bad"}
	_, err = cfg.ExecutorOptions(zap.NewNop())
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	cfg := Config{LogLevel: "debug"}
	logger, err := cfg.Logger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	cfg.LogLevel = "loud"
	_, err = cfg.Logger()
	assert.Error(t, err)
}
