// Package dest defines the contract every destination backend implements.
//
// All variants (Postgres warehouse, MotherDuck lakehouse, S3 object
// store) live in subpackages and implement the Strategy interface.
// Callers depend only on this package and never import a variant
// package directly; the orchestrator's factory selects one from
// configuration.
package dest

import (
	"context"
	"time"

	"github.com/nwdata/ducksync/internal/schema"
)

// DefaultBatchSize bounds memory use when no batch size is configured.
const DefaultBatchSize = 5000

// RowSource is a streaming cursor over source rows. It is consumed in
// batches; the full result set is never materialized. Callers own
// Close.
type RowSource interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// WholeTableLoader marks a Strategy whose LoadData reads the table
// through its own channel and ignores the row cursor. The orchestrator
// does not open a cursor for such strategies and passes nil rows.
type WholeTableLoader interface {
	LoadsWholeTable()
}

// Strategy is the uniform load contract shared by all destinations.
type Strategy interface {
	// Connect establishes the session and idempotently ensures the
	// watermark control structure exists. A failure here is fatal for
	// the whole run.
	Connect(ctx context.Context) error

	// Close releases connection resources. Safe to call even if
	// Connect partially failed.
	Close(ctx context.Context) error

	// LastSync reads the table's watermark. ok=false means the table
	// was never synced and triggers a full load.
	LastSync(ctx context.Context, table string) (ts time.Time, ok bool, err error)

	// PrepareTable creates the destination table if absent, translating
	// column types through the type mapper and emitting a primary-key
	// clause only when the descriptor has one. Idempotent: an existing
	// table is left alone apart from an optional truncate when the
	// truncate-before-load flag is set.
	PrepareTable(ctx context.Context, table *schema.Table) error

	// LoadData consumes rows in batches, skipping rows that violate a
	// uniqueness constraint, and returns the number of rows loaded.
	// When tsColumn is non-empty the maximum observed value becomes the
	// new watermark; the watermark only advances after the rows are
	// durably committed.
	LoadData(ctx context.Context, table *schema.Table, rows RowSource, tsColumn string) (int64, error)
}
