package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worklog/internal/actions"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
api_host: https://backend.example.com/api
user_id: 42
timeout_seconds: 5
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://backend.example.com/api", cfg.APIHost)
	assert.Equal(t, int64(42), cfg.UserID)
	assert.Equal(t, 5*time.Second, cfg.Timeout())
	assert.Equal(t, filepath.Join(filepath.Dir(path), "worklog.db"), cfg.Database,
		"database defaults next to the config file")
}

func TestLoadConfig_Validation(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "user_id: 42\n"))
	assert.ErrorContains(t, err, "api_host")

	_, err = LoadConfig(writeConfig(t, "api_host: https://backend.example.com/api\n"))
	assert.ErrorContains(t, err, "user_id")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "api_host: [broken\n"))
	assert.Error(t, err)
}

func TestConfig_TimeoutDefault(t *testing.T) {
	assert.Equal(t, 30*time.Second, Config{}.Timeout())
	assert.Equal(t, 30*time.Second, Config{TimeoutSeconds: -1}.Timeout())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(&ExitError{Code: ExitCommandError, Message: "bad flag"}))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("anything else")))
}

func TestPrinterAlerts(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinterAlerts(&buf)
	assert.False(t, p.Failed())

	p.Success("Mission haul validated.")
	p.Error(actions.Alert{
		ActionDescription: "the drive activity of you at 08:30",
		Messages:          []string{"Conflict with other activities of the user."},
		ProposeRefresh:    true,
	})

	assert.True(t, p.Failed())
	out := buf.String()
	assert.Contains(t, out, "Mission haul validated.")
	assert.Contains(t, out, "Rejected: the drive activity of you at 08:30")
	assert.Contains(t, out, "Conflict with other activities of the user.")
	assert.Contains(t, out, "worklog sync")
}
