package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotevault/internal/platform/retry"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "quotevault", cfg.App.Name)
	assert.Equal(t, "local", cfg.App.Environment)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "./logs/quotevault.log", cfg.Log.File.Path)
	assert.Equal(t, "X-User-ID", cfg.Auth.SubjectHeader)
	assert.Equal(t, []string{"admin"}, cfg.Auth.PrivilegedRoles)
	assert.False(t, cfg.Store.InMemory)
	assert.Equal(t, 10*time.Minute, cfg.Store.GCInterval)
	assert.Equal(t, retry.DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, 20*time.Millisecond, cfg.Retry.InitialInterval)
	assert.Equal(t, DefaultCandidateLimit, cfg.Detector.CandidateLimit)
	assert.Equal(t, 30*time.Second, cfg.Tags.CacheTTL)
	assert.Equal(t, DefaultCascadeConcurrency, cfg.Tags.CascadeConcurrency)
	assert.True(t, cfg.Pipeline.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.PollInterval)

	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	t.Setenv("APP_SERVER_PORT", "9090")
	t.Setenv("APP_LOG_LEVEL", "warn")
	t.Setenv("APP_STORE_IN__MEMORY", "true")
	t.Setenv("APP_TAGS_CASCADE__CONCURRENCY", "16")
	t.Setenv("APP_PIPELINE_POLL__INTERVAL", "2s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Store.InMemory)
	assert.Equal(t, 16, cfg.Tags.CascadeConcurrency)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.PollInterval)
}

func TestLoadFrom_ProfilePrecedence(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(`
log:
  level: debug
store:
  path: /var/lib/quotevault
detector:
  candidate_limit: 50
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.yaml"), []byte(`
store:
  in_memory: true
detector:
  candidate_limit: 25
`), 0o600))

	t.Setenv("APP_LOG_LEVEL", "error")

	cfg, err := LoadFrom(dir, "test")
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Log.Level, "env beats files")
	assert.Equal(t, 25, cfg.Detector.CandidateLimit, "profile beats base")
	assert.Equal(t, "/var/lib/quotevault", cfg.Store.Path, "base beats defaults")
	assert.True(t, cfg.Store.InMemory)
}

func TestLoadFrom_MissingProfileFallsBack(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir(), "nonexistent")
	require.NoError(t, err)

	assert.Equal(t, "quotevault", cfg.App.Name)
}

func TestLoadFrom_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte("store: [unclosed"), 0o600))

	_, err := LoadFrom(dir, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading base config")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.port", envKey("APP_SERVER_PORT"))
	assert.Equal(t, "store.gc_discard_ratio", envKey("APP_STORE_GC__DISCARD__RATIO"))
	assert.Equal(t, "log.file.max_size", envKey("APP_LOG_FILE_MAX__SIZE"))
}

func TestRetryConfig_Policy(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	shared := cfg.Retry.Policy()
	assert.Equal(t, cfg.Retry.MaxAttempts, shared.MaxAttempts)
	assert.Equal(t, time.Second, shared.MaxInterval)

	pipeline := cfg.Pipeline.Policy(cfg.Retry)
	assert.Equal(t, cfg.Pipeline.MaxAttempts, pipeline.MaxAttempts)
	assert.Equal(t, shared.InitialInterval, pipeline.InitialInterval)
}
