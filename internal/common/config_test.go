package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drover.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFilesWithoutFilesKeepsDefaults(t *testing.T) {
	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 8385, config.Server.Port)
	assert.Equal(t, 4, config.Aggregate.MaxAttempts)
	assert.Equal(t, 2*time.Minute, config.Locks.TTL.Std())
	assert.Equal(t, "scripted", config.Automation.Engine)
}

func TestLoadFromFilesParsesShippedLocalConfig(t *testing.T) {
	config, err := LoadFromFiles("../../deployments/local/drover.toml")
	require.NoError(t, err, "the shipped deployment config must load cleanly")

	assert.Equal(t, 8385, config.Server.Port)
	assert.Equal(t, "http://localhost:8000", config.Aggregate.BaseURL)

	// Duration strings from the file land as parsed durations
	assert.Equal(t, 500*time.Millisecond, config.Aggregate.RetryWaitMin.Std())
	assert.Equal(t, 8*time.Second, config.Aggregate.RetryWaitMax.Std())
	assert.Equal(t, 30*time.Second, config.Aggregate.Timeout.Std())
	assert.Equal(t, 2*time.Minute, config.Locks.TTL.Std())
	assert.Equal(t, 10*time.Minute, config.Jobs.EntityTimeout.Std())
	assert.Equal(t, 72*time.Hour, config.Jobs.Retention.Std())
	assert.Equal(t, 15*time.Second, config.Dispatch.Timeout.Std())
	assert.Equal(t, 60*time.Second, config.Automation.NavTimeout.Std())

	assert.Equal(t, []string{"http://localhost:8385"}, config.Dispatch.Workers)
}

func TestLoadFromFilesLaterFileOverridesEarlier(t *testing.T) {
	base := writeConfigFile(t, `
[locks]
ttl = "90s"

[server]
port = 9000
`)
	override := writeConfigFile(t, `
[locks]
ttl = "3m"
`)

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Minute, config.Locks.TTL.Std())
	assert.Equal(t, 9000, config.Server.Port, "values the later file omits keep the earlier layer")
}

func TestLoadFromFilesRejectsMalformedDuration(t *testing.T) {
	path := writeConfigFile(t, `
[locks]
ttl = "soon"
`)

	_, err := LoadFromFiles(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "soon")
}

func TestLoadFromFilesMissingFileFails(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestEnvOverridesApplyAfterFiles(t *testing.T) {
	path := writeConfigFile(t, `
[server]
port = 9000
`)
	t.Setenv("DROVER_PORT", "9100")
	t.Setenv("DROVER_LOG_LEVEL", "debug")

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, config.Server.Port)
	assert.Equal(t, "debug", config.Logging.Level)
}
