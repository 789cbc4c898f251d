/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ssargent/kmall/pkg/config"
)

const (
	serviceName    = "kmall.service"
	systemdUnitDir = "/etc/systemd/system"
)

// runCommand runs a system command with its output attached to ours.
// Tests replace it.
var runCommand = func(command string, args ...string) error {
	cmd := exec.Command(command, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func systemctl(args ...string) error {
	return runCommand("systemctl", args...)
}

// serviceCmd represents the service command
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the inspection API as a systemd service",
	Long: `Manage 'kmall serve' as a systemd service. The unit runs with a
read-only view of the data directory and restarts on failure.`,
}

// installServiceCmd represents the service install command
var installServiceCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the inspection API as a systemd service",
	Long: `Install 'kmall serve' as a systemd service.

This will:
- Create the configuration, with a generated API key, if it is missing
- Write the systemd unit file
- Enable and optionally start the service

Examples:
  sudo kmall service install --data-dir /srv/survey
  sudo kmall service install --data-dir /srv/survey --user survey --start=false`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The configuration may not exist yet; install creates it.
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		configPath, _ := cmd.Flags().GetString("config")
		user, _ := cmd.Flags().GetString("user")
		unitDir, _ := cmd.Flags().GetString("unit-dir")
		binary, _ := cmd.Flags().GetString("binary")
		startNow, _ := cmd.Flags().GetBool("start")

		if configPath == "" {
			configPath = config.GetDefaultConfigPath()
		}
		if unitDir == systemdUnitDir && os.Geteuid() != 0 {
			return fmt.Errorf("service install requires root privileges (run with sudo)")
		}

		var cfg *config.Config
		var err error
		if config.ConfigExists(configPath) {
			if cfg, err = config.LoadConfig(configPath); err != nil {
				return err
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.Server.DataDir = dataDir
			}
		} else {
			if cfg, err = config.BootstrapConfig(configPath, dataDir); err != nil {
				return err
			}
			cmd.Printf("Created configuration with a new API key at %s\n", configPath)
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if err := config.SaveConfig(cfg, configPath); err != nil {
			return err
		}

		unitPath := filepath.Join(unitDir, serviceName)
		if err := os.WriteFile(unitPath, []byte(systemdUnit(cfg, configPath, user, binary)), 0644); err != nil {
			return fmt.Errorf("write unit file: %w", err)
		}
		if err := systemctl("daemon-reload"); err != nil {
			return fmt.Errorf("reload systemd: %w", err)
		}
		if err := systemctl("enable", serviceName); err != nil {
			return fmt.Errorf("enable service: %w", err)
		}
		if startNow {
			if err := systemctl("start", serviceName); err != nil {
				return fmt.Errorf("start service: %w", err)
			}
		}

		cmd.Printf("Service: %s\n", unitPath)
		cmd.Printf("Config: %s\n", configPath)
		cmd.Printf("Data: %s\n", cfg.Server.DataDir)
		cmd.Printf("Listening on: %s:%d\n", cfg.Server.Bind, cfg.Server.Port)
		return nil
	},
}

// systemctlCmd builds a service subcommand that forwards to systemctl
func systemctlCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return systemctl(action, serviceName)
		},
	}
}

// logsCmd represents the service logs command
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the service logs",
	Long: `Show the service logs using journalctl.

Examples:
  kmall service logs
  kmall service logs -f  # Follow logs`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		lines, _ := cmd.Flags().GetInt("lines")

		journalArgs := []string{"-u", serviceName}
		if follow {
			journalArgs = append(journalArgs, "-f")
		}
		if lines > 0 {
			journalArgs = append(journalArgs, fmt.Sprintf("-n%d", lines))
		}
		return runCommand("journalctl", journalArgs...)
	},
}

// uninstallCmd represents the service uninstall command
var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		unitDir, _ := cmd.Flags().GetString("unit-dir")
		if unitDir == systemdUnitDir && os.Geteuid() != 0 {
			return fmt.Errorf("service uninstall requires root privileges (run with sudo)")
		}

		_ = systemctl("stop", serviceName) // may already be stopped
		if err := systemctl("disable", serviceName); err != nil {
			cmd.Printf("Warning: could not disable service: %v\n", err)
		}
		if err := os.Remove(filepath.Join(unitDir, serviceName)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove unit file: %w", err)
		}
		if err := systemctl("daemon-reload"); err != nil {
			return fmt.Errorf("reload systemd: %w", err)
		}
		cmd.Printf("Service uninstalled; configuration and data were left in place\n")
		return nil
	},
}

// systemdUnit renders the unit file running the inspection API
func systemdUnit(cfg *config.Config, configPath, user, binary string) string {
	unit := fmt.Sprintf(`[Unit]
Description=KMALL inspection API
After=network-online.target
Wants=network-online.target

[Service]
User=%s
Group=%s
ExecStart=%s --config %s serve
Restart=on-failure
NoNewPrivileges=true
UMask=0077
ReadOnlyPaths=%s
`, user, user, binary, configPath, cfg.Server.DataDir)
	if cfg.Reader.IndexCache {
		unit += fmt.Sprintf("ReadWritePaths=%s\n", cfg.Reader.CacheDir)
	}
	if cfg.Logging.File != "" {
		unit += fmt.Sprintf("ReadWritePaths=%s\n", filepath.Dir(cfg.Logging.File))
	}
	return unit + `
[Install]
WantedBy=multi-user.target
`
}

func init() {
	rootCmd.AddCommand(serviceCmd)

	serviceCmd.AddCommand(installServiceCmd)
	serviceCmd.AddCommand(systemctlCmd("start", "Start the service"))
	serviceCmd.AddCommand(systemctlCmd("stop", "Stop the service"))
	serviceCmd.AddCommand(systemctlCmd("restart", "Restart the service"))
	serviceCmd.AddCommand(systemctlCmd("status", "Show the service status"))
	serviceCmd.AddCommand(logsCmd)
	serviceCmd.AddCommand(uninstallCmd)

	serviceCmd.PersistentFlags().String("unit-dir", systemdUnitDir, "Directory of systemd unit files")

	installServiceCmd.Flags().String("data-dir", "/srv/kmall", "Directory of KMALL files to serve")
	installServiceCmd.Flags().String("user", "kmall", "User to run the service as")
	installServiceCmd.Flags().Int("port", 8080, "Port for the service")
	installServiceCmd.Flags().String("binary", "/usr/local/bin/kmall", "Path of the installed kmall binary")
	installServiceCmd.Flags().Bool("start", true, "Start the service after installation")

	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().IntP("lines", "n", 0, "Number of lines to show")
}
