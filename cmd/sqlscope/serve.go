package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/sqlscope/internal/config"
	"github.com/koustreak/sqlscope/internal/server"
	"github.com/koustreak/sqlscope/internal/server/metrics"
	"github.com/koustreak/sqlscope/internal/service"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio or streamable HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("transport", "", "transport to serve on (stdio, http)")
	cmd.Flags().String("listen-addr", "", "listen address for the http transport")
	cmd.Flags().String("export-dir", "", "directory relative export filenames resolve against")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := newLogger(cfg)
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	svc, err := service.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer svc.Close()
	if svc.Connected() {
		metrics.DatabaseConnected.Set(1)
	}

	srv, err := server.New(server.Config{
		Logger:            log,
		Service:           svc,
		Version:           version,
		ListenAddr:        cfg.Server.ListenAddr,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.InfoWith("starting sqlscope", map[string]interface{}{
		"version":   version,
		"transport": cfg.Server.Transport,
		"policy":    cfg.Database.Policy,
	})

	if cfg.Server.Transport == config.TransportHTTP {
		return srv.RunHTTP(ctx)
	}
	return srv.RunStdio(ctx)
}
