/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ssargent/kmall/pkg/api"
	"github.com/ssargent/kmall/pkg/storage"
	"github.com/ssargent/kmall/pkg/store"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the inspection REST API server",
	Long: `Serve the KMALL files of a data directory over a read-only REST API,
with Prometheus metrics on /metrics. Settings come from the server section
of the config file; flags override them.

Examples:
  kmall serve --data-dir ./survey
  kmall serve --config ./kmall.yaml --port 9000 --bind 0.0.0.0`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFrom(cmd)
		cfg := a.config.Server
		flags := cmd.Flags()
		if flags.Changed("data-dir") {
			cfg.DataDir, _ = flags.GetString("data-dir")
		}
		if flags.Changed("port") {
			cfg.Port, _ = flags.GetInt("port")
		}
		if flags.Changed("bind") {
			cfg.Bind, _ = flags.GetString("bind")
		}
		if flags.Changed("api-key") {
			cfg.APIKey, _ = flags.GetString("api-key")
		}

		info, err := os.Stat(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("data directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("data directory %s is not a directory", cfg.DataDir)
		}

		var cache store.IndexCache
		if a.config.Reader.IndexCache {
			c, err := storage.Open(a.config.Reader.CacheDir, a.metrics)
			if err != nil {
				return err
			}
			defer c.Close()
			cache = c
		}

		if container == nil {
			return fmt.Errorf("dependency container not initialized")
		}

		files := api.NewDirFiles(api.DirFilesConfig{
			DataDir:   cfg.DataDir,
			Order:     a.order,
			BlockSize: a.config.Reader.ScratchBlockSize,
			ChunkSize: a.config.Reader.ChunkSize,
			Cache:     cache,
			Metrics:   a.metrics,
			Logger:    a.logger,
		})
		if cfg.APIKey == "" {
			a.logger.Warn("serving without authentication")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		starter := container.GetServerFactory().CreateServerStarter()
		return starter.StartServer(ctx, files, api.ServerConfig{
			Port:     cfg.Port,
			Bind:     cfg.Bind,
			APIKey:   cfg.APIKey,
			Gatherer: container.GetRegistry(),
		}, a.metrics, a.logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("data-dir", "d", "./data", "Directory of KMALL files to serve")
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind server to")
	serveCmd.Flags().String("api-key", "", "API key required in the X-API-Key header")
}
