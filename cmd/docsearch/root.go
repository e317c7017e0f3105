package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "docsearch",
		Short: "Document store with full-text search",
		Long: `docsearch accepts plain-text uploads over HTTP, keeps the original bytes
and maintains a full-text index of their contents.

Configuration is read from an optional YAML file and DS_* environment
variables.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
		slog.Debug("config loaded", "path", configPath)
		return cfg, nil
	}

	cmd.AddCommand(newServeCmd(load))
	cmd.AddCommand(newReconcileCmd(load))
	return cmd
}
