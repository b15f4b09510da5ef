package dest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwdata/ducksync/internal/errs"
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

var testColumns = []schema.Column{
	{Name: "id", Type: "INTEGER"},
	{Name: "nome", Type: "VARCHAR"},
	{Name: "updated_at", Type: "TIMESTAMP"},
}

func TestReadBatch_RespectsLimit(t *testing.T) {
	src := &sliceRows{rows: [][]any{
		{int32(1), "ana", "2024-10-01 10:00:00"},
		{int32(2), "bruno", "2024-10-05 11:30:00"},
		{int32(3), "carla", "2024-10-06 09:00:00"},
	}}

	batch, err := ReadBatch(src, testColumns, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, int64(1), batch[0][0])
	assert.Equal(t, "ana", batch[0][1])

	batch, err = ReadBatch(src, testColumns, 2)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	batch, err = ReadBatch(src, testColumns, 2)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestReadBatch_ConvertsValues(t *testing.T) {
	src := &sliceRows{rows: [][]any{
		{int32(1), []byte("ana"), "2024-10-01 10:00:00.500000"},
	}}

	batch, err := ReadBatch(src, testColumns, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	assert.Equal(t, int64(1), batch[0][0])
	assert.Equal(t, "ana", batch[0][1])
	assert.Equal(t, time.Date(2024, 10, 1, 10, 0, 0, 500000000, time.UTC), batch[0][2])
}

func TestReadBatch_ConversionFailurePropagates(t *testing.T) {
	src := &sliceRows{rows: [][]any{
		{int32(1), "ana", "not-a-timestamp"},
	}}

	_, err := ReadBatch(src, testColumns, 10)
	require.Error(t, err)
	assert.True(t, errs.IsConversionFailed(err))
}

func TestLaterTimestamp(t *testing.T) {
	t0 := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	t1 := time.Date(2024, 10, 2, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, t1, LaterTimestamp(t0, t1))
	assert.Equal(t, t1, LaterTimestamp(t1, t0))
	assert.Equal(t, t0, LaterTimestamp(t0, "not a time"))
	assert.Equal(t, t0, LaterTimestamp(t0, nil))
}

func TestColumnIndex(t *testing.T) {
	assert.Equal(t, 2, ColumnIndex(testColumns, "updated_at"))
	assert.Equal(t, -1, ColumnIndex(testColumns, "missing"))
}
