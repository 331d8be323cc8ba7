package service

import (
	"context"
	"fmt"

	"github.com/koustreak/sqlscope/internal/config"
	"github.com/koustreak/sqlscope/internal/connection"
	"github.com/koustreak/sqlscope/internal/export"
	"github.com/koustreak/sqlscope/internal/filestore/minio"
	"github.com/koustreak/sqlscope/internal/guard"
	"github.com/koustreak/sqlscope/internal/logger"
	"github.com/koustreak/sqlscope/internal/query"
	"github.com/koustreak/sqlscope/internal/schema"
	"github.com/koustreak/sqlscope/internal/stats"
)

// Build wires every component from cfg. When cfg names a database path it
// is connected before Build returns.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Service, error) {
	conns, err := connection.NewManager(connection.Config{
		Logger: log,
		Opener: connection.SQLiteOpener(cfg.DatabaseConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	exec, err := query.NewExecutor(query.Config{
		Logger:      log,
		Connections: conns,
		Guard:       guard.New(cfg.GuardPolicy()),
		Timeout:     cfg.Database.QueryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	insp, err := schema.NewInspector(schema.Config{
		Logger:      log,
		Connections: conns,
		CacheTTL:    cfg.Stats.SchemaCacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create schema inspector: %w", err)
	}

	engine, err := stats.NewEngine(stats.Config{
		Logger:           log,
		Connections:      conns,
		Schema:           insp,
		Workers:          cfg.Stats.Workers,
		DefaultLimit:     cfg.Stats.DefaultLimit,
		MaxLimit:         cfg.Stats.MaxLimit,
		FullScanRowLimit: cfg.Stats.FullScanRowLimit,
		SampleSize:       cfg.Stats.SampleSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create statistics engine: %w", err)
	}

	sinkCfg := export.Config{
		Logger:   log,
		Streamer: exec,
		Dir:      cfg.Export.Dir,
	}
	var closers []func() error
	if cfg.Export.Storage.Enabled() {
		store, err := minio.New(ctx, cfg.StoreConfig())
		if err != nil {
			engine.Close()
			return nil, fmt.Errorf("failed to connect export storage: %w", err)
		}
		sinkCfg.Store = store
		sinkCfg.Bucket = cfg.Export.Storage.Bucket
		sinkCfg.Prefix = cfg.Export.Storage.Prefix
		sinkCfg.PresignTTL = cfg.Export.Storage.PresignTTL
		closers = append(closers, store.Close)
	}
	sink, err := export.NewSink(sinkCfg)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to create export sink: %w", err)
	}

	svc, err := New(Config{
		Logger:      log,
		Connections: conns,
		Executor:    exec,
		Schema:      insp,
		Stats:       engine,
		Export:      sink,
		Closers:     closers,
	})
	if err != nil {
		engine.Close()
		return nil, err
	}

	if path := cfg.Database.Path; path != "" {
		if _, err := svc.Connect(ctx, path); err != nil {
			svc.Close()
			return nil, err
		}
	}
	return svc, nil
}
