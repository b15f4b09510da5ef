package lakehouse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The lakehouse endpoint takes plain SQL text, so batches are rendered
// as literal-value multi-row inserts instead of going through a bulk
// API. Values are escaped here; nothing else may interpolate into SQL.

func renderLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quoteString(val)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case time.Time:
		return "TIMESTAMP " + quoteString(val.Format("2006-01-02 15:04:05.999999"))
	case []byte:
		var sb strings.Builder
		for _, b := range val {
			fmt.Fprintf(&sb, `\x%02X`, b)
		}
		return quoteString(sb.String()) + "::BLOB"
	default:
		return quoteString(fmt.Sprint(val))
	}
}

func renderRow(row []any) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = renderLiteral(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
