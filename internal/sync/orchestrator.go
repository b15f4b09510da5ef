// Package sync drives a run end to end: discover tables, order them by
// foreign-key dependencies, and push each through the configured
// destination strategy. One table failing never stops the others.
package sync

import (
	"context"
	"time"

	"github.com/nwdata/ducksync/internal/dest"
	"github.com/nwdata/ducksync/internal/logger"
	"github.com/nwdata/ducksync/internal/schema"
)

// timestampCandidates are checked in priority order; the first column
// name present in a table drives its incremental watermark.
var timestampCandidates = []string{"updated_at", "modified_at", "created_at", "inserted_at"}

// Source is the slice of the source database the orchestrator needs.
// *source.DB satisfies it.
type Source interface {
	ListTables(ctx context.Context) ([]string, error)
	Describe(ctx context.Context, table string) (*schema.Table, error)
	Metadata(ctx context.Context) (map[string]string, error)
	Stream(ctx context.Context, table, tsColumn string, after any) (dest.RowSource, error)
}

// Runner orchestrates one sync run.
type Runner struct {
	src      Source
	strategy dest.Strategy
	truncate bool
	log      *logger.Logger
}

// New builds a Runner. truncate forces a full reload of every table.
func New(src Source, strategy dest.Strategy, truncate bool, log *logger.Logger) *Runner {
	return &Runner{src: src, strategy: strategy, truncate: truncate, log: log}
}

// Run executes the full pipeline. It returns an error only for setup
// failures (destination connect, catalog listing); per-table failures
// are recorded in the Result and logged, and the remaining tables still
// run. The strategy is always closed, whatever happens mid-run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	started := time.Now()

	// Close is safe after a partial connect, so cleanup is registered
	// before connecting.
	defer func() {
		if err := r.strategy.Close(ctx); err != nil {
			r.log.With().Err(err).Logger().Warn("failed to close destination")
		}
	}()

	// Connect first: an unreachable destination is fatal even when the
	// source turns out to be empty.
	if err := r.strategy.Connect(ctx); err != nil {
		return nil, err
	}

	tables, err := r.src.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		r.log.Warn("no tables found in source, nothing to sync")
		return &Result{Duration: time.Since(started)}, nil
	}

	// The side channel is optional: without it tables load in catalog
	// order and foreign keys are skipped.
	meta, err := r.src.Metadata(ctx)
	if err != nil {
		r.log.With().Err(err).Logger().Warn("table metadata unavailable, syncing without dependency order")
		meta = map[string]string{}
	}

	ordered := schema.SortByDependency(tables, meta, r.log)

	result := &Result{Tables: make([]TableResult, 0, len(ordered))}
	for _, name := range ordered {
		tableStart := time.Now()
		rows, incremental, err := r.syncTable(ctx, name, meta[name])

		tr := TableResult{
			Table:       name,
			Rows:        rows,
			Incremental: incremental,
			Duration:    time.Since(tableStart),
			Err:         err,
		}
		result.Tables = append(result.Tables, tr)

		if err != nil {
			r.log.ErrorWith("table sync failed", err, map[string]any{"table": name})
			continue
		}
		r.log.InfoWith("table synced", map[string]any{
			"table":       name,
			"rows":        rows,
			"incremental": incremental,
			"duration":    tr.Duration.String(),
		})
	}

	result.Duration = time.Since(started)
	return result, nil
}

// syncTable loads one table: describe, prepare, decide incremental vs
// full, stream and load.
func (r *Runner) syncTable(ctx context.Context, name, rawMeta string) (int64, bool, error) {
	t, err := r.src.Describe(ctx, name)
	if err != nil {
		return 0, false, err
	}

	if rawMeta != "" {
		fks, err := schema.ForeignKeysOf(rawMeta)
		if err != nil {
			r.log.With().Str("table", name).Err(err).Logger().
				Warn("malformed metadata, loading table without foreign keys")
		} else {
			t.ForeignKeys = fks
		}
	}

	if err := r.strategy.PrepareTable(ctx, t); err != nil {
		return 0, false, err
	}

	// Incremental only when the table has a recognized timestamp column
	// AND a watermark from a previous run. Truncate mode always reloads.
	tsColumn := timestampColumn(t)
	var (
		incremental bool
		after       any
	)
	if tsColumn != "" && !r.truncate {
		last, ok, err := r.strategy.LastSync(ctx, name)
		if err != nil {
			return 0, false, err
		}
		if ok {
			incremental = true
			after = last
		}
	}

	streamColumn := ""
	if incremental {
		streamColumn = tsColumn
	}

	// Whole-table strategies pull rows through their own channel; a
	// cursor would be opened and never read.
	var rows dest.RowSource
	if _, whole := r.strategy.(dest.WholeTableLoader); !whole {
		var err error
		rows, err = r.src.Stream(ctx, name, streamColumn, after)
		if err != nil {
			return 0, incremental, err
		}
		defer rows.Close()
	}

	n, err := r.strategy.LoadData(ctx, t, rows, tsColumn)
	return n, incremental, err
}

// timestampColumn returns the table's watermark column, or "" when the
// table has none and must always load fully.
func timestampColumn(t *schema.Table) string {
	present := make(map[string]bool, len(t.Columns))
	for _, col := range t.Columns {
		present[col.Name] = true
	}
	for _, candidate := range timestampCandidates {
		if present[candidate] {
			return candidate
		}
	}
	return ""
}
