package postgres

import (
	"fmt"
	"strings"

	"github.com/nwdata/ducksync/internal/config"
	"github.com/nwdata/ducksync/internal/schema"
)

// controlTable tracks one watermark row per synced table. The layout is
// shared with external tooling; do not rename columns.
const controlTable = "controle_cargas"

const createControlTableSQL = `
	CREATE TABLE IF NOT EXISTS ` + controlTable + ` (
		tabela_nome TEXT PRIMARY KEY,
		ultima_carga TIMESTAMP,
		linhas_carregadas BIGINT NOT NULL DEFAULT 0
	)`

const upsertWatermarkSQL = `
	INSERT INTO ` + controlTable + ` (tabela_nome, ultima_carga, linhas_carregadas)
	VALUES ($1, $2, $3)
	ON CONFLICT (tabela_nome) DO UPDATE SET
		ultima_carga      = EXCLUDED.ultima_carga,
		linhas_carregadas = ` + controlTable + `.linhas_carregadas + EXCLUDED.linhas_carregadas`

// buildDSN constructs the postgres connection string.
func buildDSN(cfg config.PostgresConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.User, cfg.Password, cfg.Name, sslMode,
	)
}

// buildCreateTable emits CREATE TABLE IF NOT EXISTS with column types
// translated through the type mapper. The primary-key clause is emitted
// only when the descriptor has key columns.
func buildCreateTable(t *schema.Table) string {
	parts := make([]string, 0, len(t.Columns)+1)
	for _, col := range t.Columns {
		parts = append(parts, fmt.Sprintf("%s %s", quoteIdent(col.Name), schema.MapType(col.Type)))
	}
	if len(t.PrimaryKey) > 0 {
		parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", quoteIdents(t.PrimaryKey)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(t.Name), strings.Join(parts, ", "))
}

// maxBindParams is the extended-protocol ceiling: the Bind message
// encodes the parameter count as uint16.
const maxBindParams = 65535

// maxRowsPerInsert bounds how many rows one INSERT may carry so that
// rows*columns never exceeds maxBindParams.
func maxRowsPerInsert(columnCount int) int {
	if columnCount <= 0 {
		return 1
	}
	n := maxBindParams / columnCount
	if n < 1 {
		return 1
	}
	return n
}

// buildInsert emits a multi-row parameterized INSERT that silently skips
// rows violating a uniqueness constraint. Not an upsert: existing rows
// are left untouched.
func buildInsert(table string, columns []string, rowCount int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", quoteIdent(table), quoteIdents(columns))

	arg := 1
	for row := 0; row < rowCount; row++ {
		if row > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for col := 0; col < len(columns); col++ {
			if col > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", arg)
			arg++
		}
		sb.WriteByte(')')
	}

	sb.WriteString(" ON CONFLICT DO NOTHING")
	return sb.String()
}

// buildAddPrimaryKey retrofits a primary key onto a pre-existing table.
func buildAddPrimaryKey(t *schema.Table) string {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s PRIMARY KEY (%s)",
		quoteIdent(t.Name), quoteIdent("pk_"+t.Name), quoteIdents(t.PrimaryKey))
}

// buildAddForeignKey emits the constraint DDL for one side-channel
// foreign key. ON UPDATE / ON DELETE are emitted only when the action is
// not the default.
func buildAddForeignKey(table, constraint string, fk schema.ForeignKey) string {
	ddl := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		quoteIdent(table), quoteIdent(constraint),
		quoteIdent(fk.Column), quoteIdent(fk.RefTable), quoteIdent(fk.RefColumn))
	if !strings.EqualFold(fk.OnUpdate, schema.NoAction) {
		ddl += " ON UPDATE " + fk.OnUpdate
	}
	if !strings.EqualFold(fk.OnDelete, schema.NoAction) {
		ddl += " ON DELETE " + fk.OnDelete
	}
	return ddl
}

// buildTruncate resets the table and any identity sequences, turning the
// run into a full reload.
func buildTruncate(table string) string {
	return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY", quoteIdent(table))
}

func foreignKeyConstraintName(table string, fk schema.ForeignKey) string {
	return fmt.Sprintf("fk_%s_%s_%s", table, fk.Column, fk.RefTable)
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
