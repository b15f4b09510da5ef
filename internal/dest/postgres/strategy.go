// Package postgres implements the relational warehouse destination on
// top of pgx. It owns the watermark control table and is the only
// variant that retrofits constraints onto pre-existing tables.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nwdata/ducksync/internal/config"
	"github.com/nwdata/ducksync/internal/dest"
	"github.com/nwdata/ducksync/internal/errs"
	"github.com/nwdata/ducksync/internal/logger"
	"github.com/nwdata/ducksync/internal/schema"
)

// Strategy is the Postgres implementation of dest.Strategy.
type Strategy struct {
	cfg      config.PostgresConfig
	batch    int
	truncate bool
	log      *logger.Logger

	pool *pgxpool.Pool
}

// New returns an unconnected Strategy. Call Connect before use.
func New(cfg config.PostgresConfig, batchSize int, truncate bool, log *logger.Logger) *Strategy {
	if batchSize <= 0 {
		batchSize = dest.DefaultBatchSize
	}
	return &Strategy{cfg: cfg, batch: batchSize, truncate: truncate, log: log}
}

// Connect establishes the pool, validates it with a ping and ensures the
// watermark control table exists.
func (s *Strategy) Connect(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, buildDSN(s.cfg))
	if err != nil {
		return errs.Wrap(errs.ErrKindConnectionFailed, "invalid postgres configuration", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return errs.Wrap(errs.ErrKindConnectionFailed, "postgres unreachable", err)
	}
	s.pool = pool

	if _, err := s.pool.Exec(ctx, createControlTableSQL); err != nil {
		return mapError(err, "failed to ensure control table")
	}
	s.log.Debugf("control table %s ready", controlTable)
	return nil
}

// Close drains the pool. Safe to call even if Connect failed.
func (s *Strategy) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// LastSync reads the table's watermark. ok=false means never synced.
func (s *Strategy) LastSync(ctx context.Context, table string) (time.Time, bool, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT ultima_carga FROM %s WHERE tabela_nome = $1", controlTable),
		table).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, mapError(err, "failed to read watermark")
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return *ts, true, nil
}

// PrepareTable creates the destination table if absent. For pre-existing
// tables it retrofits the primary key and the side-channel foreign keys;
// both are soft operations that downgrade instead of failing the table.
func (s *Strategy) PrepareTable(ctx context.Context, t *schema.Table) error {
	exists, err := s.tableExists(ctx, t.Name)
	if err != nil {
		return err
	}

	if !exists {
		if _, err := s.pool.Exec(ctx, buildCreateTable(t)); err != nil {
			return mapError(err, fmt.Sprintf("failed to create table %q", t.Name))
		}
		s.log.With().Str("table", t.Name).Logger().Info("destination table created")
	} else {
		s.ensurePrimaryKey(ctx, t)
	}

	s.applyForeignKeys(ctx, t)

	if s.truncate {
		if _, err := s.pool.Exec(ctx, buildTruncate(t.Name)); err != nil {
			return mapError(err, fmt.Sprintf("failed to truncate table %q", t.Name))
		}
		s.log.With().Str("table", t.Name).Logger().Info("table truncated before load")
	}
	return nil
}

// ensurePrimaryKey adds the primary-key constraint to a pre-existing
// table that lacks one. The ALTER runs inside a savepoint: when the
// existing data cannot satisfy the constraint, only the savepoint is
// rolled back and the table continues without uniqueness enforcement.
func (s *Strategy) ensurePrimaryKey(ctx context.Context, t *schema.Table) {
	log := s.log.With().Str("table", t.Name).Logger()

	hasPK, err := s.hasPrimaryKey(ctx, t.Name)
	if err != nil {
		log.With().Err(err).Logger().Warn("could not check primary key, skipping retrofit")
		return
	}
	if hasPK {
		return
	}
	if len(t.PrimaryKey) == 0 {
		log.Warn("no primary key in source, destination stays without uniqueness enforcement")
		return
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		log.With().Err(err).Logger().Warn("could not open transaction for primary key retrofit")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// pgx nested transactions are savepoints.
	sp, err := tx.Begin(ctx)
	if err != nil {
		log.With().Err(err).Logger().Warn("could not open savepoint for primary key retrofit")
		return
	}
	if _, err := sp.Exec(ctx, buildAddPrimaryKey(t)); err != nil {
		_ = sp.Rollback(ctx)
		_ = tx.Commit(ctx)
		log.With().Err(err).Logger().Warn("primary key retrofit failed, continuing without uniqueness enforcement")
		return
	}
	if err := sp.Commit(ctx); err != nil {
		log.With().Err(err).Logger().Warn("primary key retrofit failed to commit")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		log.With().Err(err).Logger().Warn("primary key retrofit failed to commit")
		return
	}
	log.Info("primary key constraint added to pre-existing table")
}

// applyForeignKeys creates the constraints recorded in the side-channel
// metadata. Every guard failure skips that constraint only; a skipped or
// failed constraint never fails the table.
func (s *Strategy) applyForeignKeys(ctx context.Context, t *schema.Table) {
	for _, fk := range t.ForeignKeys {
		name := foreignKeyConstraintName(t.Name, fk)
		log := s.log.With().Str("table", t.Name).Str("constraint", name).Logger()

		exists, err := s.constraintExists(ctx, t.Name, name)
		if err != nil {
			log.With().Err(err).Logger().Warn("could not check constraint, skipping")
			continue
		}
		if exists {
			log.Debug("constraint already present")
			continue
		}

		refExists, err := s.tableExists(ctx, fk.RefTable)
		if err != nil {
			log.With().Err(err).Logger().Warn("could not check referenced table, skipping")
			continue
		}
		if !refExists {
			log.Infof("referenced table %q not in destination yet, constraint skipped", fk.RefTable)
			continue
		}

		unique, err := s.columnIsUnique(ctx, fk.RefTable, fk.RefColumn)
		if err != nil {
			log.With().Err(err).Logger().Warn("could not check referenced column, skipping")
			continue
		}
		if !unique {
			log.Warnf("referenced column %s.%s has no unique or primary key constraint, constraint skipped",
				fk.RefTable, fk.RefColumn)
			continue
		}

		if _, err := s.pool.Exec(ctx, buildAddForeignKey(t.Name, name, fk)); err != nil {
			log.With().Err(err).Logger().Error("failed to add foreign key constraint")
			continue
		}
		log.Info("foreign key constraint added")
	}
}

// LoadData streams rows in batches. Each batch commits on its own; the
// watermark is upserted only after all batches landed, so it can never
// get ahead of the data.
func (s *Strategy) LoadData(ctx context.Context, t *schema.Table, rows dest.RowSource, tsColumn string) (int64, error) {
	tsIdx := -1
	if tsColumn != "" {
		tsIdx = dest.ColumnIndex(t.Columns, tsColumn)
	}

	columns := t.ColumnNames()
	// A wide table can push batch*columns past the protocol's parameter
	// ceiling, so a read batch may span several INSERT statements.
	rowsPerInsert := maxRowsPerInsert(len(columns))
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

		if tsIdx >= 0 {
			for _, row := range batch {
				maxTS = dest.LaterTimestamp(maxTS, row[tsIdx])
			}
		}

		for start := 0; start < len(batch); start += rowsPerInsert {
			end := start + rowsPerInsert
			if end > len(batch) {
				end = len(batch)
			}
			chunk := batch[start:end]

			args := make([]any, 0, len(chunk)*len(columns))
			for _, row := range chunk {
				args = append(args, row...)
			}

			tag, err := s.pool.Exec(ctx, buildInsert(t.Name, columns, len(chunk)), args...)
			if err != nil {
				return total, mapError(err, fmt.Sprintf("failed to insert batch into %q", t.Name))
			}
			total += tag.RowsAffected()
		}
	}

	if total > 0 {
		watermark := maxTS
		if watermark.IsZero() {
			watermark = time.Now()
		}
		if _, err := s.pool.Exec(ctx, upsertWatermarkSQL, t.Name, watermark, total); err != nil {
			return total, mapError(err, fmt.Sprintf("failed to update watermark for %q", t.Name))
		}
	}
	return total, nil
}

// --- catalog checks ---

func (s *Strategy) tableExists(ctx context.Context, table string) (bool, error) {
	const q = `
		SELECT 1
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_type   = 'BASE TABLE'
		  AND table_name   = $1`

	var one int
	err := s.pool.QueryRow(ctx, q, table).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err, "failed to check table existence")
	}
	return true, nil
}

func (s *Strategy) hasPrimaryKey(ctx context.Context, table string) (bool, error) {
	const q = `
		SELECT COUNT(*)
		FROM information_schema.table_constraints
		WHERE table_schema    = 'public'
		  AND table_name      = $1
		  AND constraint_type = 'PRIMARY KEY'`

	var count int
	if err := s.pool.QueryRow(ctx, q, table).Scan(&count); err != nil {
		return false, mapError(err, "failed to check primary key")
	}
	return count > 0, nil
}

func (s *Strategy) constraintExists(ctx context.Context, table, constraint string) (bool, error) {
	const q = `
		SELECT 1
		FROM information_schema.table_constraints
		WHERE table_name      = $1
		  AND constraint_name = $2`

	var one int
	err := s.pool.QueryRow(ctx, q, table, constraint).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err, "failed to check constraint existence")
	}
	return true, nil
}

func (s *Strategy) columnIsUnique(ctx context.Context, table, column string) (bool, error) {
	const q = `
		SELECT COUNT(*)
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		WHERE tc.table_name  = $1
		  AND kcu.column_name = $2
		  AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')`

	var count int
	if err := s.pool.QueryRow(ctx, q, table, column).Scan(&count); err != nil {
		return false, mapError(err, "failed to check column uniqueness")
	}
	return count > 0, nil
}
