package introspect

import "sort"

// junctionInfo describes a pure junction table: two single-column FKs to
// distinct tables, ordered alphabetically by referenced table.
type junctionInfo struct {
	table   string
	leftFK  fkInfo
	rightFK fkInfo
}

type junctionMap map[string]junctionInfo

// classifyJunctions finds pure junction tables. A table qualifies when:
//   - it has exactly 2 single-column foreign keys to different tables
//   - both FK columns are NOT NULL
//   - a primary key or unique constraint covers both FK columns
//   - both referenced tables exist in the schema
//
// Junctions with extra attribute columns are left as ordinary tables.
func classifyJunctions(tables map[string]*tableInfo) junctionMap {
	result := make(junctionMap)
	for name, info := range tables {
		if jc, ok := classifyTable(info, tables); ok {
			result[name] = jc
		}
	}
	return result
}

func classifyTable(info *tableInfo, tables map[string]*tableInfo) (junctionInfo, bool) {
	if len(info.foreignKeys) != 2 {
		return junctionInfo{}, false
	}
	fk1, fk2 := info.foreignKeys[0], info.foreignKeys[1]
	if len(fk1.columns) != 1 || len(fk2.columns) != 1 {
		return junctionInfo{}, false
	}
	if fk1.refTable == fk2.refTable {
		return junctionInfo{}, false
	}
	if tables[fk1.refTable] == nil || tables[fk2.refTable] == nil {
		return junctionInfo{}, false
	}

	fkColumns := map[string]bool{fk1.columns[0]: true, fk2.columns[0]: true}
	for _, col := range info.columns {
		if fkColumns[col.name] && col.nullable {
			return junctionInfo{}, false
		}
		if !fkColumns[col.name] {
			// Attribute junctions stay visible as ordinary entities.
			return junctionInfo{}, false
		}
	}

	if !hasCoveringConstraint(info, fkColumns) {
		return junctionInfo{}, false
	}

	left, right := fk1, fk2
	if left.refTable > right.refTable {
		left, right = right, left
	}
	return junctionInfo{table: info.name, leftFK: left, rightFK: right}, true
}

// hasCoveringConstraint checks for a PK or unique constraint covering all FK columns.
func hasCoveringConstraint(info *tableInfo, fkColumns map[string]bool) bool {
	check := func(set []string) bool {
		covered := make(map[string]bool, len(set))
		for _, col := range set {
			covered[col] = true
		}
		for col := range fkColumns {
			if !covered[col] {
				return false
			}
		}
		return true
	}
	if len(info.primaryKey) > 0 && check(info.primaryKey) {
		return true
	}
	for _, set := range info.uniqueSets {
		if check(set) {
			return true
		}
	}
	return false
}

func orderedJunctions(junctions junctionMap) []junctionInfo {
	names := make([]string, 0, len(junctions))
	for name := range junctions {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]junctionInfo, len(names))
	for i, name := range names {
		out[i] = junctions[name]
	}
	return out
}
