package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "legalcopilot.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, int64(4096), cfg.Anthropic.MaxTokens)
	assert.InDelta(t, 2.0, cfg.Anthropic.RPS, 0.001)
	assert.Equal(t, "native", cfg.OCR.Provider)
	assert.Equal(t, "taxonomy.yaml", cfg.Taxonomy.Path)
	assert.InDelta(t, 0.85, cfg.Pipeline.AutoApplyThreshold, 0.001)
	assert.Equal(t, 4, cfg.Pipeline.ExtractConcurrency)
	assert.Equal(t, 2000, cfg.Chunker.Window)
	assert.Equal(t, 400, cfg.Chunker.Overlap)
	assert.Equal(t, 512, cfg.DLQ.MaxEntries)

	assert.Equal(t, 8, cfg.Queue.Intake.Concurrency)
	assert.Equal(t, 4, cfg.Queue.OCR.Concurrency)
	assert.Equal(t, 2, cfg.Queue.Classify.Concurrency)
	assert.Equal(t, 2, cfg.Queue.Extract.Concurrency)
	assert.Equal(t, 4, cfg.Queue.Reconcile.Concurrency)
	assert.Equal(t, 4, cfg.Queue.Actions.Concurrency)
	assert.Equal(t, 3, cfg.Queue.Intake.MaxAttempts)
	assert.Equal(t, 500, cfg.Queue.Intake.BackoffMs)
	assert.Equal(t, 120, cfg.Queue.Intake.TimeoutSecs)
	assert.Equal(t, 256, cfg.Queue.Intake.Depth)
	// Extract waits on many model calls per document.
	assert.Equal(t, 600, cfg.Queue.Extract.TimeoutSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/legalcopilot
log:
  level: debug
  format: console
server:
  port: 9090
queue:
  extract:
    concurrency: 1
    timeout_secs: 900
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/legalcopilot", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Queue.Extract.Concurrency)
	assert.Equal(t, 900, cfg.Queue.Extract.TimeoutSecs)
	// Defaults still apply for unset values
	assert.Equal(t, 8, cfg.Queue.Intake.Concurrency)
	assert.InDelta(t, 0.85, cfg.Pipeline.AutoApplyThreshold, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LEGALCOPILOT_STORE_DRIVER", "sqlite")
	t.Setenv("LEGALCOPILOT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("LEGALCOPILOT_SERVER_PORT", "3000")
	t.Setenv("LEGALCOPILOT_ANTHROPIC_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
}

func TestStageQueueConfigDurations(t *testing.T) {
	c := StageQueueConfig{BackoffMs: 250, TimeoutSecs: 30}
	assert.Equal(t, 250*time.Millisecond, c.Backoff())
	assert.Equal(t, 30*time.Second, c.Timeout())
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Anthropic.Key = "sk-ant-test"
	cfg.Taxonomy.Path = "taxonomy.yaml"
	cfg.Pipeline.AutoApplyThreshold = 0.85
	cfg.Pipeline.ExtractConcurrency = 4
	cfg.Chunker.Window = 2000
	cfg.Chunker.Overlap = 400
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateServe_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateIngest_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = ""
	cfg.Taxonomy.Path = ""

	err := cfg.Validate("ingest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "taxonomy.path is required")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateThresholdBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Pipeline.AutoApplyThreshold = 1.1
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "auto_apply_threshold")

	cfg.Pipeline.AutoApplyThreshold = 0.85
	cfg.Pipeline.ExtractConcurrency = 0
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "extract_concurrency must be between 1 and 32")

	cfg.Pipeline.ExtractConcurrency = 33
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "extract_concurrency must be between 1 and 32")

	cfg.Pipeline.ExtractConcurrency = 32
	err = cfg.Validate("serve")
	assert.NoError(t, err)
}

func TestValidateChunkerBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Chunker.Window = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "chunker.window must be > 0")

	cfg.Chunker.Window = 2000
	cfg.Chunker.Overlap = 2000
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "chunker.overlap")

	cfg.Chunker.Overlap = 1999
	err = cfg.Validate("serve")
	assert.NoError(t, err)
}
