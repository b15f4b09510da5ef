package schema

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwdata/ducksync/internal/logger"
)

func quietLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "json", Output: io.Discard})
}

func fkMeta(column, refTable string) string {
	return `{"` + column + `": {"data_type": "INTEGER", "primary_key": false, "foreign_key": {"table": "` + refTable + `", "column": "id"}}}`
}

func indexOf(t *testing.T, list []string, item string) int {
	t.Helper()
	for i, v := range list {
		if v == item {
			return i
		}
	}
	t.Fatalf("%q not found in %v", item, list)
	return -1
}

func TestSortByDependency(t *testing.T) {
	tables := []string{"clientes", "pedidos", "itens_pedido", "pagamentos"}
	meta := map[string]string{
		"clientes":     `{}`,
		"pedidos":      fkMeta("cliente_id", "clientes"),
		"itens_pedido": fkMeta("pedido_id", "pedidos"),
		"pagamentos":   fkMeta("pedido_id", "pedidos"),
	}

	ordered := SortByDependency(tables, meta, quietLogger())
	require.Len(t, ordered, len(tables))

	assert.Less(t, indexOf(t, ordered, "clientes"), indexOf(t, ordered, "pedidos"))
	assert.Less(t, indexOf(t, ordered, "pedidos"), indexOf(t, ordered, "itens_pedido"))
	assert.Less(t, indexOf(t, ordered, "pedidos"), indexOf(t, ordered, "pagamentos"))
}

func TestSortByDependency_CycleFallsBackToInputOrder(t *testing.T) {
	tables := []string{"a", "b"}
	meta := map[string]string{
		"a": fkMeta("b_id", "b"),
		"b": fkMeta("a_id", "a"),
	}

	ordered := SortByDependency(tables, meta, quietLogger())
	assert.Equal(t, tables, ordered)
}

func TestSortByDependency_StableForIndependentTables(t *testing.T) {
	tables := []string{"zeta", "alpha", "mid"}
	ordered := SortByDependency(tables, map[string]string{}, quietLogger())
	// No edges: the input order is preserved, not sorted alphabetically.
	assert.Equal(t, tables, ordered)
}

func TestSortByDependency_EdgesOutsideSetIgnored(t *testing.T) {
	tables := []string{"pedidos"}
	meta := map[string]string{
		"pedidos": fkMeta("cliente_id", "clientes"), // clientes not in the run
	}

	ordered := SortByDependency(tables, meta, quietLogger())
	assert.Equal(t, []string{"pedidos"}, ordered)
}

func TestSortByDependency_MalformedMetadataIsLocal(t *testing.T) {
	tables := []string{"clientes", "pedidos", "broken"}
	meta := map[string]string{
		"pedidos": fkMeta("cliente_id", "clientes"),
		"broken":  "{not json",
	}

	ordered := SortByDependency(tables, meta, quietLogger())
	require.Len(t, ordered, 3)
	assert.Less(t, indexOf(t, ordered, "clientes"), indexOf(t, ordered, "pedidos"))
	assert.Contains(t, ordered, "broken")
}
