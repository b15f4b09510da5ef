package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nwdata/ducksync/internal/errs"
)

// Timestamp layouts accepted by MapValue, tried in order. The fractional
// layout must come first: DuckDB emits microseconds when present.
const (
	tsLayoutFractional = "2006-01-02 15:04:05.999999"
	tsLayoutWhole      = "2006-01-02 15:04:05"
)

// MapType translates a DuckDB type name to the destination type name.
// Rules are substring matches evaluated in a fixed order (TINYINT before
// the integer family, DOUBLE before DECIMAL) and anything unmatched
// passes through unchanged. The input is upper-cased first, so matching
// is case-insensitive.
func MapType(sourceType string) string {
	t := strings.ToUpper(sourceType)
	switch {
	case strings.Contains(t, "TINYINT"):
		return "SMALLINT"
	case strings.Contains(t, "BLOB"):
		return "BYTEA"
	case strings.Contains(t, "DOUBLE"):
		return "DOUBLE PRECISION"
	case strings.Contains(t, "DECIMAL"):
		// DECIMAL(p,s) keeps its precision suffix verbatim.
		return "NUMERIC" + t[strings.Index(t, "DECIMAL")+len("DECIMAL"):]
	default:
		return t
	}
}

// MapValue converts one scalar read from DuckDB into the destination
// representation, dispatching on the source type name. nil maps to nil
// unconditionally. A timestamp string that parses under neither layout
// is a conversion error; it propagates instead of silently nulling out.
func MapValue(value any, sourceType string) (any, error) {
	if value == nil {
		return nil, nil
	}

	t := strings.ToUpper(sourceType)
	switch {
	case strings.Contains(t, "VARCHAR"), strings.Contains(t, "TEXT"):
		return toString(value), nil
	case strings.Contains(t, "BOOLEAN"):
		return toBool(value)
	case strings.Contains(t, "INTEGER"), strings.Contains(t, "BIGINT"), strings.Contains(t, "TINYINT"):
		return toInt64(value)
	case strings.Contains(t, "DECIMAL"), strings.Contains(t, "FLOAT"), strings.Contains(t, "DOUBLE"), strings.Contains(t, "REAL"):
		return toFloat64(value)
	case strings.Contains(t, "BLOB"):
		return toBytes(value)
	case strings.Contains(t, "TIMESTAMP"), strings.Contains(t, "DATETIME"):
		return toTimestamp(value)
	default:
		return value, nil
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}

func toBool(v any) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int64:
		return b != 0, nil
	case int32:
		return b != 0, nil
	case int8:
		return b != 0, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindConversionFailed, fmt.Sprintf("cannot convert %q to boolean", b), err)
		}
		return parsed, nil
	default:
		return nil, errs.New(errs.ErrKindConversionFailed, fmt.Sprintf("cannot convert %T to boolean", v))
	}
}

func toInt64(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindConversionFailed, fmt.Sprintf("cannot convert %q to integer", n), err)
		}
		return parsed, nil
	default:
		return nil, errs.New(errs.ErrKindConversionFailed, fmt.Sprintf("cannot convert %T to integer", v))
	}
}

func toFloat64(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindConversionFailed, fmt.Sprintf("cannot convert %q to float", n), err)
		}
		return parsed, nil
	default:
		return nil, errs.New(errs.ErrKindConversionFailed, fmt.Sprintf("cannot convert %T to float", v))
	}
}

func toBytes(v any) (any, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, errs.New(errs.ErrKindConversionFailed, fmt.Sprintf("cannot convert %T to bytes", v))
	}
}

func toTimestamp(v any) (any, error) {
	switch ts := v.(type) {
	case time.Time:
		return ts, nil
	case string:
		if parsed, err := time.Parse(tsLayoutFractional, ts); err == nil {
			return parsed, nil
		}
		parsed, err := time.Parse(tsLayoutWhole, ts)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindConversionFailed, fmt.Sprintf("cannot parse timestamp %q", ts), err)
		}
		return parsed, nil
	default:
		return nil, errs.New(errs.ErrKindConversionFailed, fmt.Sprintf("cannot convert %T to timestamp", v))
	}
}
