/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/config"
	"github.com/ssargent/kmall/pkg/di"
	"github.com/ssargent/kmall/pkg/index"
	"github.com/ssargent/kmall/pkg/logging"
	"github.com/ssargent/kmall/pkg/metrics"
	"github.com/ssargent/kmall/pkg/store"
)

var container *di.Container

// SetContainer injects the dependency container used by every command
func SetContainer(c *di.Container) {
	container = c
}

type appKey struct{}

// app is what the root command prepares for its subcommands.
type app struct {
	config  *config.Config
	order   codec.ByteOrder
	logger  *logging.Logger
	metrics *metrics.Metrics
}

func appFrom(cmd *cobra.Command) *app {
	a, _ := cmd.Context().Value(appKey{}).(*app)
	return a
}

// readerConfig builds a file reader configuration that reports diagnostics
// to the logger and metrics under a fresh session id.
func (a *app) readerConfig(path string) (store.ReaderConfig, *logging.Logger) {
	log := a.logger.WithFile(path).WithSession(ksuid.New().String())
	return store.ReaderConfig{
		FilePath:   path,
		Order:      a.order,
		ChunkSize:  a.config.Reader.ChunkSize,
		PingWindow: a.config.Reader.PingWindow.Seconds(),
		BlockSize:  a.config.Reader.ScratchBlockSize,
		Observer: func(e index.Event) {
			log.LogResync(e)
			a.metrics.RecordEvent(e)
		},
		OnDrop: func(e *codec.RecordError) {
			log.LogDropped(e)
			a.metrics.RecordDropped(e)
		},
	}, log
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kmall",
	Short: "kmall - Kongsberg KMALL multibeam datagram toolkit",
	Long: `kmall indexes, reads and writes Kongsberg KMALL multibeam files.

Files are indexed once, read back in time order with multi-datagram pings
reassembled, and damaged regions are skipped and reported.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		order, err := cfg.ByteOrder()
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		var m *metrics.Metrics
		if container != nil {
			m = container.GetMetrics()
		}
		a := &app{config: cfg, order: order, logger: logger, metrics: m}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(context.WithValue(ctx, appKey{}, a))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if a := appFrom(cmd); a != nil {
			return a.logger.Close()
		}
		return nil
	},
}

// loadConfig reads the configuration file named by --config, or the
// default one if it exists, and applies the global flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" && config.ConfigExists(config.GetDefaultConfigPath()) {
		path = config.GetDefaultConfigPath()
	}

	cfg := config.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("byte-order") {
		cfg.Codec.ByteOrder, _ = flags.GetString("byte-order")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-file") {
		cfg.Logging.File, _ = flags.GetString("log-file")
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format, _ = flags.GetString("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: ~/.config/kmall/config.yaml if present)")
	rootCmd.PersistentFlags().String("byte-order", "auto", "Datagram byte order: little, big or auto")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().String("log-file", "", "Also log to this rotating file")
}
