package schema

import (
	"encoding/json"
	"sort"

	"github.com/nwdata/ducksync/internal/errs"
)

// NoAction is the default referential action when the metadata omits one.
const NoAction = "NO ACTION"

// ColumnMeta is one column's entry in the side-channel schema_json
// document. The wire shape is fixed: downstream tooling reads the same
// documents, so field names must not change.
type ColumnMeta struct {
	DataType   string          `json:"data_type"`
	PrimaryKey bool            `json:"primary_key"`
	ForeignKey *ForeignKeyMeta `json:"foreign_key"`
}

// ForeignKeyMeta is the "foreign_key" entry of a ColumnMeta.
type ForeignKeyMeta struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	OnUpdate string `json:"on_update,omitempty"`
	OnDelete string `json:"on_delete,omitempty"`
}

// ParseTableMeta decodes a raw schema_json document into per-column
// metadata. An empty document is valid and yields an empty map.
func ParseTableMeta(raw string) (map[string]ColumnMeta, error) {
	if raw == "" {
		return map[string]ColumnMeta{}, nil
	}
	meta := map[string]ColumnMeta{}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "malformed schema_json document", err)
	}
	return meta, nil
}

// ForeignKeysOf extracts the foreign keys recorded in a raw schema_json
// document, sorted by owning column for deterministic DDL order. A table
// with no side-channel entry has no foreign keys: callers pass "" and
// get an empty slice, not an error.
func ForeignKeysOf(raw string) ([]ForeignKey, error) {
	meta, err := ParseTableMeta(raw)
	if err != nil {
		return nil, err
	}

	var fks []ForeignKey
	for column, def := range meta {
		if def.ForeignKey == nil || def.ForeignKey.Table == "" {
			continue
		}
		fk := ForeignKey{
			Column:    column,
			RefTable:  def.ForeignKey.Table,
			RefColumn: def.ForeignKey.Column,
			OnUpdate:  def.ForeignKey.OnUpdate,
			OnDelete:  def.ForeignKey.OnDelete,
		}
		if fk.OnUpdate == "" {
			fk.OnUpdate = NoAction
		}
		if fk.OnDelete == "" {
			fk.OnDelete = NoAction
		}
		fks = append(fks, fk)
	}

	sort.Slice(fks, func(i, j int) bool { return fks[i].Column < fks[j].Column })
	return fks, nil
}
