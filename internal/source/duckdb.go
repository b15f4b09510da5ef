// Package source reads the local DuckDB file: catalog introspection,
// side-channel metadata lookup and streamed row access.
//
// The connection is held open and read-only for the full run. The only
// writes DuckDB performs on our behalf are parquet exports for the
// object-store destination.
package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // register "duckdb" driver

	"github.com/nwdata/ducksync/internal/dest"
	"github.com/nwdata/ducksync/internal/errs"
	"github.com/nwdata/ducksync/internal/schema"
)

// Control tables that describe the catalog itself. They are never synced
// as data tables.
const (
	MetadataTable = "table_metadata"
	FKTable       = "fk_metadata"
)

// DB is a read-only handle to the source DuckDB file.
type DB struct {
	db   *sql.DB
	path string
}

// Open validates that the DuckDB file exists and opens a connection.
// A missing file is a fatal setup error, no run is attempted.
func Open(ctx context.Context, path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errs.Wrap(errs.ErrKindNotFound, fmt.Sprintf("duckdb file %q not found", path), err)
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to open duckdb", err)
	}

	d := &DB{db: db, path: path}
	if err := d.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// Ping verifies the database file is readable.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close releases the connection. Safe to call once after Open succeeds.
func (d *DB) Close() error {
	return d.db.Close()
}

// ListTables returns the user tables to sync, in catalog order, with the
// two control tables filtered out.
func (d *DB) ListTables(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, mapError(err, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapError(err, "failed to scan table name")
		}
		if name == MetadataTable || name == FKTable {
			continue
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating tables")
	}
	return tables, nil
}

// Describe introspects one table: ordered columns with upper-cased type
// names, and the primary-key columns in key order.
func (d *DB) Describe(ctx context.Context, table string) (*schema.Table, error) {
	const q = `SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`

	rows, err := d.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("failed to describe table %q", table))
	}
	defer rows.Close()

	t := &schema.Table{Name: table}
	for rows.Next() {
		var (
			col     schema.Column
			notNull bool
			pk      bool
		)
		if err := rows.Scan(&col.Name, &col.Type, &notNull, &pk); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		col.Type = strings.ToUpper(col.Type)
		col.Nullable = !notNull
		t.Columns = append(t.Columns, col)
		if pk {
			t.PrimaryKey = append(t.PrimaryKey, col.Name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating columns")
	}
	if len(t.Columns) == 0 {
		return nil, errs.New(errs.ErrKindNotFound, fmt.Sprintf("table %q has no columns", table))
	}
	return t, nil
}

// Metadata returns the raw schema_json documents keyed by table name.
// Callers treat a failure here as "no metadata"; the side channel is
// optional.
func (d *DB) Metadata(ctx context.Context) (map[string]string, error) {
	q := fmt.Sprintf("SELECT table_name, schema_json FROM %s", MetadataTable)

	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return nil, mapError(err, "failed to read table metadata")
	}
	defer rows.Close()

	meta := map[string]string{}
	for rows.Next() {
		var table, raw string
		if err := rows.Scan(&table, &raw); err != nil {
			return nil, mapError(err, "failed to scan table metadata")
		}
		meta[table] = raw
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating table metadata")
	}
	return meta, nil
}

// Stream opens a cursor over all rows of table, optionally restricted to
// rows whose tsColumn is after the watermark. Rows are streamed, never
// materialized. The caller owns Close on the returned cursor.
func (d *DB) Stream(ctx context.Context, table, tsColumn string, after any) (dest.RowSource, error) {
	q := fmt.Sprintf("SELECT * FROM %s", quoteIdent(table))
	var args []any
	if tsColumn != "" {
		q += fmt.Sprintf(" WHERE %s > ?", quoteIdent(tsColumn))
		args = append(args, after)
	}

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("failed to stream table %q", table))
	}
	return &duckRows{rows: rows}, nil
}

// ExportParquet writes the full table to a parquet file using DuckDB's
// native columnar export.
func (d *DB) ExportParquet(ctx context.Context, table, path string) error {
	q := fmt.Sprintf("COPY (SELECT * FROM %s) TO %s (FORMAT PARQUET)",
		quoteIdent(table), quoteString(path))
	if _, err := d.db.ExecContext(ctx, q); err != nil {
		return mapError(err, fmt.Sprintf("failed to export table %q to parquet", table))
	}
	return nil
}

// CountParquet reads back the row count of a written parquet file.
func (d *DB) CountParquet(ctx context.Context, path string) (int64, error) {
	var count int64
	err := d.db.QueryRowContext(ctx, "SELECT count(*) FROM read_parquet(?)", path).Scan(&count)
	if err != nil {
		return 0, mapError(err, "failed to count parquet rows")
	}
	return count, nil
}

// --- sql wrappers ---

// duckRows wraps *sql.Rows to satisfy dest.RowSource.
type duckRows struct{ rows *sql.Rows }

func (r *duckRows) Next() bool             { return r.rows.Next() }
func (r *duckRows) Scan(dst ...any) error  { return r.rows.Scan(dst...) }
func (r *duckRows) Err() error             { return r.rows.Err() }
func (r *duckRows) Close()                 { _ = r.rows.Close() }

// --- helpers ---

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// mapError translates database/sql and driver errors into *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	case errors.Is(err, sql.ErrNoRows):
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	default:
		return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
	}
}
