// Package lakehouse implements the MotherDuck-style destination: a
// remote DuckDB database reached through the duckdb driver with a
// service token. The backing store is eventually consistent; there is no
// conflict handling; duplicate avoidance relies on the watermark alone.
package lakehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // register "duckdb" driver

	"github.com/nwdata/ducksync/internal/config"
	"github.com/nwdata/ducksync/internal/dest"
	"github.com/nwdata/ducksync/internal/errs"
	"github.com/nwdata/ducksync/internal/logger"
	"github.com/nwdata/ducksync/internal/schema"
)

const controlTable = "controle_cargas"

// Strategy is the lakehouse implementation of dest.Strategy.
type Strategy struct {
	cfg      config.MotherDuckConfig
	batch    int
	truncate bool
	log      *logger.Logger

	db *sql.DB
}

// New returns an unconnected Strategy. Call Connect before use.
func New(cfg config.MotherDuckConfig, batchSize int, truncate bool, log *logger.Logger) *Strategy {
	if batchSize <= 0 {
		batchSize = dest.DefaultBatchSize
	}
	return &Strategy{cfg: cfg, batch: batchSize, truncate: truncate, log: log}
}

// buildDSN attaches the token (and optional endpoint override) to the
// remote database path.
func buildDSN(cfg config.MotherDuckConfig) string {
	dsn := cfg.Path
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if cfg.Token != "" {
		dsn += sep + "motherduck_token=" + cfg.Token
		sep = "&"
	}
	if cfg.Endpoint != "" {
		dsn += sep + "motherduck_host=" + cfg.Endpoint
	}
	return dsn
}

// Connect opens the remote session and ensures the control table exists.
func (s *Strategy) Connect(ctx context.Context) error {
	db, err := sql.Open("duckdb", buildDSN(s.cfg))
	if err != nil {
		return errs.Wrap(errs.ErrKindConnectionFailed, "invalid lakehouse configuration", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return errs.Wrap(errs.ErrKindConnectionFailed, "lakehouse unreachable", err)
	}
	s.db = db

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		tabela_nome VARCHAR PRIMARY KEY,
		ultima_carga TIMESTAMP,
		linhas_carregadas BIGINT DEFAULT 0
	)`, controlTable)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return mapError(err, "failed to ensure control table")
	}
	return nil
}

// Close releases the session. Safe to call even if Connect failed.
func (s *Strategy) Close(_ context.Context) error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LastSync reads the table's watermark. ok=false means never synced.
func (s *Strategy) LastSync(ctx context.Context, table string) (time.Time, bool, error) {
	var ts sql.NullTime
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT ultima_carga FROM %s WHERE tabela_nome = ?", controlTable),
		table).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, mapError(err, "failed to read watermark")
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return ts.Time, true, nil
}

// PrepareTable creates the table if absent; idempotent via IF NOT
// EXISTS. Truncate mode clears the table so every run is a full reload.
func (s *Strategy) PrepareTable(ctx context.Context, t *schema.Table) error {
	parts := make([]string, 0, len(t.Columns)+1)
	for _, col := range t.Columns {
		parts = append(parts, fmt.Sprintf("%s %s", quoteIdent(col.Name), schema.MapType(col.Type)))
	}
	if len(t.PrimaryKey) > 0 {
		parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", quoteIdents(t.PrimaryKey)))
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(t.Name), strings.Join(parts, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return mapError(err, fmt.Sprintf("failed to create table %q", t.Name))
	}

	if s.truncate {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+quoteIdent(t.Name)); err != nil {
			return mapError(err, fmt.Sprintf("failed to truncate table %q", t.Name))
		}
		s.log.With().Str("table", t.Name).Logger().Info("table truncated before load")
	}
	return nil
}

// LoadData issues literal-value multi-row inserts per batch and upserts
// the watermark after the last batch.
func (s *Strategy) LoadData(ctx context.Context, t *schema.Table, rows dest.RowSource, tsColumn string) (int64, error) {
	tsIdx := -1
	if tsColumn != "" {
		tsIdx = dest.ColumnIndex(t.Columns, tsColumn)
	}

	columnList := quoteIdents(t.ColumnNames())
	var (
		total int64
		maxTS time.Time
	)

	for {
		batch, err := dest.ReadBatch(rows, t.Columns, s.batch)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			break
		}

		values := make([]string, len(batch))
		for i, row := range batch {
			values[i] = renderRow(row)
			if tsIdx >= 0 {
				maxTS = dest.LaterTimestamp(maxTS, row[tsIdx])
			}
		}

		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			quoteIdent(t.Name), columnList, strings.Join(values, ", "))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return total, mapError(err, fmt.Sprintf("failed to insert batch into %q", t.Name))
		}
		total += int64(len(batch))
	}

	if total > 0 {
		watermark := maxTS
		if watermark.IsZero() {
			watermark = time.Now()
		}
		upsert := fmt.Sprintf(`INSERT INTO %s (tabela_nome, ultima_carga, linhas_carregadas)
			VALUES (?, ?, ?)
			ON CONFLICT (tabela_nome) DO UPDATE SET
				ultima_carga      = EXCLUDED.ultima_carga,
				linhas_carregadas = %s.linhas_carregadas + EXCLUDED.linhas_carregadas`,
			controlTable, controlTable)
		if _, err := s.db.ExecContext(ctx, upsert, t.Name, watermark, total); err != nil {
			return total, mapError(err, fmt.Sprintf("failed to update watermark for %q", t.Name))
		}
	}
	return total, nil
}

// mapError translates database/sql errors into *errs.Error.
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
