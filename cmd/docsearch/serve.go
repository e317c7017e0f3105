package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/api/router"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting docsearch",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Backend,
		"tasks", cfg.Tasks.Backend,
		"catalog", cfg.Catalog.Backend,
	)

	var m *metrics.Metrics
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		if err := metricsServer.Start(); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, cfg, m)
	if err != nil {
		if metricsServer != nil {
			_ = metricsServer.Shutdown(context.Background())
		}
		return err
	}

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil {
				slog.Error("index task consumer stopped", "error", err)
			}
		}()
	}

	if cfg.Index.ReconcileOnStart {
		if _, err := a.svc.Reconcile(ctx); err != nil {
			slog.Warn("startup reconcile failed", "error", err)
		}
	}

	h := handler.New(a.svc, cfg.Server.MaxUploadBytes)
	routes := router.New(h, a.checker, m, router.Options{
		Timeout:   cfg.Server.WriteTimeout,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      routes,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("docsearch listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err = <-serveErr:
		if err != nil {
			slog.Error("server error", "error", err)
		}
	}
	// stops the task consumer before its reader is closed
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		slog.Error("server shutdown error", "error", serr)
	}
	a.close(shutdownCtx)
	if metricsServer != nil {
		if serr := metricsServer.Shutdown(shutdownCtx); serr != nil {
			slog.Error("metrics server shutdown error", "error", serr)
		}
	}

	slog.Info("docsearch stopped")
	return err
}
