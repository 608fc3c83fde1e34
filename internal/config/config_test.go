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
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RECALL_SMTP_PASSWORD", "s3cret")

	path := writeConfig(t, `
app:
  base_url: https://app.example.com
database:
  path: `+filepath.Join(dir, "db", "recall.db")+`
email:
  host: smtp.example.com
  from: noreply@example.com
  password: ${RECALL_SMTP_PASSWORD}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Email.Password)
	assert.Equal(t, "UTC", cfg.App.Timezone)
	assert.Equal(t, "@every 1m", cfg.Schedule.Due)
	assert.Equal(t, "0 8 * * *", cfg.Schedule.Digest)
	assert.Equal(t, 10, cfg.Dispatch.Workers)
	assert.Equal(t, 587, cfg.Email.Port)
	assert.Equal(t, time.Hour, cfg.Snooze())
	assert.Equal(t, 24*time.Hour, cfg.DigestLookahead())
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())
	assert.True(t, cfg.EmailConfigured())
	assert.False(t, cfg.PushConfigured())

	_, err = os.Stat(filepath.Join(dir, "db"))
	assert.NoError(t, err, "database directory is created")
}

func TestLoad_InvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
app:
  timezone: Mars/Olympus
database:
  path: `+filepath.Join(dir, "recall.db")+`
schedule:
  digest: "every morning"
push:
  vapid_public_key: abc
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.timezone")
	assert.Contains(t, err.Error(), "schedule.digest")
	assert.Contains(t, err.Error(), "vapid")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
