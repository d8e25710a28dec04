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

func chTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "advisor.db", cfg.Store.Path)
	assert.Equal(t, "memory", cfg.Queue.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Queue.SQS.VisibilityTimeout)
	assert.Equal(t, "fs", cfg.Blob.Driver)
	assert.Equal(t, "./data", cfg.Blob.Root)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Advisor.Model)
	assert.Equal(t, int64(4096), cfg.Anthropic.Advisor.MaxTokens)
	assert.InDelta(t, 30, cfg.Anthropic.Advisor.RequestsPerMinute, 0.001)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 20*time.Second, cfg.Worker.PollWait)
	assert.Equal(t, 5*time.Second, cfg.Worker.ErrorBackoff)
	assert.Equal(t, 8, cfg.Worker.MaxKPIs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/argus
queue:
  driver: sqs
  sqs:
    queue_url: https://sqs.us-east-1.amazonaws.com/1/jobs
    visibility_timeout: 10m
blob:
  driver: s3
  s3:
    bucket: argus-artifacts
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/argus", cfg.Store.DatabaseURL)
	assert.Equal(t, "sqs", cfg.Queue.Driver)
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/1/jobs", cfg.Queue.SQS.QueueURL)
	assert.Equal(t, 10*time.Minute, cfg.Queue.SQS.VisibilityTimeout)
	assert.Equal(t, "s3", cfg.Blob.Driver)
	assert.Equal(t, "argus-artifacts", cfg.Blob.S3.Bucket)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 8, cfg.Worker.MaxKPIs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
log:
  level: info
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
	t.Setenv("ARGUS_LOG_LEVEL", "warn")
	t.Setenv("ARGUS_SERVER_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := chTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.DebugLevel))
}

func TestInitLoggerBadLevel(t *testing.T) {
	assert.Error(t, InitLogger(LogConfig{Level: "shout", Format: "json"}))
}
