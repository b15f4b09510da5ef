package schema

import (
	"github.com/nwdata/ducksync/internal/logger"
)

// SortByDependency orders tables so that every table referenced by a
// foreign key loads before the tables that reference it (Kahn's
// algorithm). meta maps table name to its raw schema_json document;
// tables without an entry have no dependencies.
//
// Edges pointing at tables outside the input set are dropped. Zero
// in-degree tables are seeded in input order, so ties stay deterministic
// by input order rather than alphabetically. A malformed document
// disables ordering for that table only. A cycle is not an error: it is
// logged as a warning and the original input order is returned; any
// resulting foreign-key violations surface later as per-table errors.
func SortByDependency(tables []string, meta map[string]string, log *logger.Logger) []string {
	inSet := make(map[string]bool, len(tables))
	for _, t := range tables {
		inSet[t] = true
	}

	dependents := make(map[string][]string, len(tables))
	inDegree := make(map[string]int, len(tables))
	for _, t := range tables {
		inDegree[t] = 0
	}

	for _, table := range tables {
		fks, err := ForeignKeysOf(meta[table])
		if err != nil {
			log.With().Str("table", table).Err(err).Logger().
				Warn("malformed metadata, ordering table without dependencies")
			continue
		}
		for _, fk := range fks {
			if !inSet[fk.RefTable] {
				continue
			}
			dependents[fk.RefTable] = append(dependents[fk.RefTable], table)
			inDegree[table]++
		}
	}

	queue := make([]string, 0, len(tables))
	for _, t := range tables {
		if inDegree[t] == 0 {
			queue = append(queue, t)
		}
	}

	ordered := make([]string, 0, len(tables))
	for len(queue) > 0 {
		table := queue[0]
		queue = queue[1:]
		ordered = append(ordered, table)
		for _, dep := range dependents[table] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(ordered) != len(tables) {
		log.Warn("dependency cycle detected, falling back to unordered table list")
		return tables
	}
	return ordered
}
