package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pedidosMeta = `{
	"id":         {"data_type": "INTEGER", "primary_key": true,  "foreign_key": null},
	"cliente_id": {"data_type": "INTEGER", "primary_key": false, "foreign_key": {"table": "clientes", "column": "id"}},
	"updated_at": {"data_type": "TIMESTAMP", "primary_key": false, "foreign_key": null}
}`

func TestParseTableMeta(t *testing.T) {
	meta, err := ParseTableMeta(pedidosMeta)
	require.NoError(t, err)
	require.Len(t, meta, 3)

	assert.True(t, meta["id"].PrimaryKey)
	assert.Equal(t, "INTEGER", meta["id"].DataType)
	assert.Nil(t, meta["id"].ForeignKey)

	require.NotNil(t, meta["cliente_id"].ForeignKey)
	assert.Equal(t, "clientes", meta["cliente_id"].ForeignKey.Table)
}

func TestParseTableMeta_Empty(t *testing.T) {
	meta, err := ParseTableMeta("")
	require.NoError(t, err)
	assert.Empty(t, meta)
}

func TestParseTableMeta_Malformed(t *testing.T) {
	_, err := ParseTableMeta("{not json")
	require.Error(t, err)
}

func TestForeignKeysOf(t *testing.T) {
	fks, err := ForeignKeysOf(pedidosMeta)
	require.NoError(t, err)
	require.Len(t, fks, 1)

	assert.Equal(t, "cliente_id", fks[0].Column)
	assert.Equal(t, "clientes", fks[0].RefTable)
	assert.Equal(t, "id", fks[0].RefColumn)
	assert.Equal(t, NoAction, fks[0].OnUpdate)
	assert.Equal(t, NoAction, fks[0].OnDelete)
}

func TestForeignKeysOf_ExplicitActions(t *testing.T) {
	raw := `{
		"pedido_id": {"data_type": "INTEGER", "primary_key": false,
			"foreign_key": {"table": "pedidos", "column": "id", "on_update": "CASCADE", "on_delete": "SET NULL"}}
	}`
	fks, err := ForeignKeysOf(raw)
	require.NoError(t, err)
	require.Len(t, fks, 1)
	assert.Equal(t, "CASCADE", fks[0].OnUpdate)
	assert.Equal(t, "SET NULL", fks[0].OnDelete)
}

func TestForeignKeysOf_NoEntryMeansNoKeys(t *testing.T) {
	fks, err := ForeignKeysOf("")
	require.NoError(t, err)
	assert.Empty(t, fks)
}

func TestForeignKeysOf_DeterministicOrder(t *testing.T) {
	raw := `{
		"b_id": {"data_type": "INTEGER", "primary_key": false, "foreign_key": {"table": "b", "column": "id"}},
		"a_id": {"data_type": "INTEGER", "primary_key": false, "foreign_key": {"table": "a", "column": "id"}}
	}`
	fks, err := ForeignKeysOf(raw)
	require.NoError(t, err)
	require.Len(t, fks, 2)
	assert.Equal(t, "a_id", fks[0].Column)
	assert.Equal(t, "b_id", fks[1].Column)
}
