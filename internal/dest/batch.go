package dest

import (
	"fmt"
	"time"

	"github.com/nwdata/ducksync/internal/errs"
	"github.com/nwdata/ducksync/internal/schema"
)

// ReadBatch scans up to limit rows from the cursor, converting every
// value through the type mapper. It returns the converted rows; an empty
// slice means the cursor is exhausted. A conversion failure aborts the
// batch and propagates as a per-table error, never a silent null.
func ReadBatch(rows RowSource, columns []schema.Column, limit int) ([][]any, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}

	batch := make([][]any, 0, limit)
	for len(batch) < limit && rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan source row", err)
		}

		converted := make([]any, len(columns))
		for i, col := range columns {
			v, err := schema.MapValue(raw[i], col.Type)
			if err != nil {
				return nil, errs.Wrap(errs.ErrKindConversionFailed,
					fmt.Sprintf("column %q", col.Name), err)
			}
			converted[i] = v
		}
		batch = append(batch, converted)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error iterating source rows", err)
	}
	return batch, nil
}

// LaterTimestamp returns the later of current and v when v carries a
// timestamp, otherwise current. Strategies use it to track the maximum
// observed watermark value across batches.
func LaterTimestamp(current time.Time, v any) time.Time {
	ts, ok := v.(time.Time)
	if !ok {
		return current
	}
	if ts.After(current) {
		return ts
	}
	return current
}

// ColumnIndex returns the position of name among columns, or -1.
func ColumnIndex(columns []schema.Column, name string) int {
	for i, c := range columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}
