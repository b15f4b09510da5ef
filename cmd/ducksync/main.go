// Command ducksync runs one incremental sync of a local DuckDB file into
// the configured destination. Setup failures exit non-zero; per-table
// load failures are reported but the process still exits zero, so
// schedulers only alert on runs that could not start.
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/nwdata/ducksync/internal/config"
	"github.com/nwdata/ducksync/internal/logger"
	"github.com/nwdata/ducksync/internal/source"
	"github.com/nwdata/ducksync/internal/sync"
)

func main() {
	// A .env file is a convenience for local runs; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log := logger.New(nil)
		log.ErrorWith("invalid configuration", err, nil)
		os.Exit(1)
	}

	log := logger.New(&logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stdout,
	})

	ctx := context.Background()

	src, err := source.Open(ctx, cfg.DuckDBPath)
	if err != nil {
		log.ErrorWith("failed to open source database", err, map[string]any{"path": cfg.DuckDBPath})
		os.Exit(1)
	}
	defer func() { _ = src.Close() }()

	strategy, err := sync.NewStrategy(cfg, src, log)
	if err != nil {
		log.ErrorWith("failed to build destination strategy", err, nil)
		os.Exit(1)
	}

	log.InfoWith("starting sync", map[string]any{
		"source":      cfg.DuckDBPath,
		"destination": string(cfg.Destination),
		"batch_size":  cfg.BatchSize,
		"truncate":    cfg.TruncateBeforeLoad,
	})

	result, err := sync.New(src, strategy, cfg.TruncateBeforeLoad, log).Run(ctx)
	if err != nil {
		log.ErrorWith("sync aborted", err, nil)
		os.Exit(1)
	}

	for _, failed := range result.Failed() {
		log.ErrorWith("table failed", failed.Err, map[string]any{"table": failed.Table})
	}
	log.InfoWith("sync complete", map[string]any{
		"tables":   len(result.Tables),
		"failed":   len(result.Failed()),
		"rows":     result.TotalRows(),
		"duration": result.Duration.String(),
	})
}
