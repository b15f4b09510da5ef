// Package schema holds the table descriptors built from the DuckDB
// catalog, the side-channel metadata parser, the type mapper that
// translates DuckDB types to destination types and the foreign-key
// dependency orderer.
package schema

// Column describes a single column in a source table.
type Column struct {
	Name string
	// Type is the engine-specific lexical form, upper-cased,
	// e.g. "DECIMAL(10,2)".
	Type string
	// Nullable is permissive: absent NOT NULL info means nullable.
	Nullable bool
}

// ForeignKey describes a relationship recorded in the side-channel
// metadata. The source engine does not enforce these.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
	OnUpdate  string // "NO ACTION" when unspecified
	OnDelete  string // "NO ACTION" when unspecified
}

// Table describes a source table for one run. Built fresh from
// introspection each run, never persisted.
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  []string
	ForeignKeys []ForeignKey
}

// ColumnNames returns the column names in ordinal order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
