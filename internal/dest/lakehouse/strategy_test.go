package lakehouse

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwdata/ducksync/internal/config"
	"github.com/nwdata/ducksync/internal/logger"
	"github.com/nwdata/ducksync/internal/schema"
)

// sliceRows is an in-memory RowSource for tests.
type sliceRows struct {
	rows [][]any
	pos  int
}

func (s *sliceRows) Next() bool {
	if s.pos >= len(s.rows) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceRows) Scan(dest ...any) error {
	row := s.rows[s.pos-1]
	for i := range dest {
		*(dest[i].(*any)) = row[i]
	}
	return nil
}

func (s *sliceRows) Err() error { return nil }
func (s *sliceRows) Close()     {}

func pedidosTable() *schema.Table {
	return &schema.Table{
		Name: "pedidos",
		Columns: []schema.Column{
			{Name: "id", Type: "INTEGER"},
			{Name: "status", Type: "VARCHAR"},
			{Name: "updated_at", Type: "TIMESTAMP"},
		},
		PrimaryKey: []string{"id"},
	}
}

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Output: io.Discard})
}

// Two successive loads against a real local database: the watermark must
// track the maximum observed timestamp and the row count must accumulate
// across loads. Prepare is idempotent throughout.
func TestStrategy_WatermarkAcrossLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warehouse.duckdb")
	cfg := config.MotherDuckConfig{Path: path}
	ctx := context.Background()

	ts1 := time.Date(2024, 10, 1, 10, 0, 0, 0, time.UTC)
	ts2 := time.Date(2024, 10, 5, 11, 30, 0, 0, time.UTC)
	ts3 := time.Date(2024, 10, 6, 9, 0, 0, 0, time.UTC)

	s := New(cfg, 10, false, testLogger())
	require.NoError(t, s.Connect(ctx))

	table := pedidosTable()
	require.NoError(t, s.PrepareTable(ctx, table))
	require.NoError(t, s.PrepareTable(ctx, table))

	_, ok, err := s.LastSync(ctx, "pedidos")
	require.NoError(t, err)
	assert.False(t, ok, "fresh table must report never synced")

	n, err := s.LoadData(ctx, table, &sliceRows{rows: [][]any{
		{int64(1), "novo", ts1},
		{int64(2), "pago", ts2},
	}}, "updated_at")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, ok, err := s.LastSync(ctx, "pedidos")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(ts2), "watermark must be the first batch's maximum, got %v", got)

	n, err = s.LoadData(ctx, table, &sliceRows{rows: [][]any{
		{int64(3), "enviado", ts3},
	}}, "updated_at")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, ok, err = s.LastSync(ctx, "pedidos")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(ts3), "watermark must advance to the second batch's maximum, got %v", got)

	require.NoError(t, s.Close(ctx))

	// Inspect the control table and the data directly.
	db, err := sql.Open("duckdb", path)
	require.NoError(t, err)
	defer db.Close()

	var count int64
	require.NoError(t, db.QueryRow(
		"SELECT linhas_carregadas FROM controle_cargas WHERE tabela_nome = ?", "pedidos").Scan(&count))
	assert.Equal(t, int64(3), count, "row count must accumulate across loads")

	var dataRows int64
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM "pedidos"`).Scan(&dataRows))
	assert.Equal(t, int64(3), dataRows)
}

// An empty cursor must not touch the watermark.
func TestStrategy_EmptyLoadLeavesWatermarkUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warehouse.duckdb")
	ctx := context.Background()

	s := New(config.MotherDuckConfig{Path: path}, 10, false, testLogger())
	require.NoError(t, s.Connect(ctx))
	defer s.Close(ctx)

	table := pedidosTable()
	require.NoError(t, s.PrepareTable(ctx, table))

	n, err := s.LoadData(ctx, table, &sliceRows{}, "updated_at")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, ok, err := s.LastSync(ctx, "pedidos")
	require.NoError(t, err)
	assert.False(t, ok)
}

// Truncate mode clears the table on prepare so every run is a full
// reload.
func TestStrategy_TruncateClearsTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warehouse.duckdb")
	ctx := context.Background()

	s := New(config.MotherDuckConfig{Path: path}, 10, true, testLogger())
	require.NoError(t, s.Connect(ctx))
	defer s.Close(ctx)

	table := pedidosTable()
	require.NoError(t, s.PrepareTable(ctx, table))

	ts := time.Date(2024, 10, 1, 10, 0, 0, 0, time.UTC)
	_, err := s.LoadData(ctx, table, &sliceRows{rows: [][]any{
		{int64(1), "novo", ts},
	}}, "updated_at")
	require.NoError(t, err)

	require.NoError(t, s.PrepareTable(ctx, table))

	var dataRows int64
	require.NoError(t, s.db.QueryRow(`SELECT count(*) FROM "pedidos"`).Scan(&dataRows))
	assert.Zero(t, dataRows)
}
