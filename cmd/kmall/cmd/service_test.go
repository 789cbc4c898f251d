package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/kmall/pkg/config"
)

func fakeCommands(t *testing.T) *[]string {
	t.Helper()
	var calls []string
	orig := runCommand
	runCommand = func(command string, args ...string) error {
		calls = append(calls, command+" "+strings.Join(args, " "))
		return nil
	}
	t.Cleanup(func() { runCommand = orig })
	return &calls
}

func TestSystemdUnit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.DataDir = "/srv/survey"

	unit := systemdUnit(cfg, "/etc/kmall/config.yaml", "survey", "/usr/local/bin/kmall")
	assert.Contains(t, unit, "User=survey")
	assert.Contains(t, unit, "Group=survey")
	assert.Contains(t, unit, "ExecStart=/usr/local/bin/kmall --config /etc/kmall/config.yaml serve")
	assert.Contains(t, unit, "ReadOnlyPaths=/srv/survey")
	assert.NotContains(t, unit, "ReadWritePaths")

	cfg.Reader.IndexCache = true
	cfg.Reader.CacheDir = "/var/cache/kmall"
	cfg.Logging.File = "/var/log/kmall/kmall.log"
	unit = systemdUnit(cfg, "/etc/kmall/config.yaml", "survey", "/usr/local/bin/kmall")
	assert.Contains(t, unit, "ReadWritePaths=/var/cache/kmall")
	assert.Contains(t, unit, "ReadWritePaths=/var/log/kmall")
}

func TestServiceCommands(t *testing.T) {
	calls := fakeCommands(t)
	dir := t.TempDir()
	unitDir := filepath.Join(dir, "units")
	require.NoError(t, os.MkdirAll(unitDir, 0755))
	configPath := filepath.Join(dir, "etc", "config.yaml")
	dataDir := filepath.Join(dir, "survey")

	t.Run("install bootstraps the configuration", func(t *testing.T) {
		*calls = nil
		out, err := execute(t, "service", "install", "--unit-dir", unitDir, "--config", configPath,
			"--data-dir", dataDir, "--port", "9400", "--start=false")
		require.NoError(t, err)
		assert.Contains(t, out, "Created configuration")
		assert.Equal(t, []string{"systemctl daemon-reload", "systemctl enable kmall.service"}, *calls)

		cfg, err := config.LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, dataDir, cfg.Server.DataDir)
		assert.Equal(t, 9400, cfg.Server.Port)
		assert.Len(t, cfg.Server.APIKey, 64)

		unit, err := os.ReadFile(filepath.Join(unitDir, serviceName))
		require.NoError(t, err)
		assert.Contains(t, string(unit), "--config "+configPath+" serve")
	})

	t.Run("install keeps an existing configuration", func(t *testing.T) {
		before, err := config.LoadConfig(configPath)
		require.NoError(t, err)

		*calls = nil
		_, err = execute(t, "service", "install", "--unit-dir", unitDir, "--config", configPath)
		require.NoError(t, err)
		assert.Equal(t, "systemctl start kmall.service", (*calls)[len(*calls)-1])

		after, err := config.LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, before.Server.APIKey, after.Server.APIKey)
		assert.Equal(t, dataDir, after.Server.DataDir)
	})

	t.Run("control", func(t *testing.T) {
		*calls = nil
		_, err := execute(t, "service", "restart", "--unit-dir", unitDir)
		require.NoError(t, err)
		_, err = execute(t, "service", "logs", "-f", "-n", "50", "--unit-dir", unitDir)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"systemctl restart kmall.service",
			"journalctl -u kmall.service -f -n50",
		}, *calls)
	})

	t.Run("uninstall", func(t *testing.T) {
		*calls = nil
		_, err := execute(t, "service", "uninstall", "--unit-dir", unitDir)
		require.NoError(t, err)
		assert.NoFileExists(t, filepath.Join(unitDir, serviceName))
		assert.Equal(t, "systemctl daemon-reload", (*calls)[len(*calls)-1])
	})
}
