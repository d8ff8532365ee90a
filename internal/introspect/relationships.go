package introspect

import (
	"log/slog"

	"github.com/smoogly/entity-builder/internal/metadata"
	"github.com/smoogly/entity-builder/internal/naming"
)

// buildEntities registers one entity per non-junction table with a single
// primary key column. FK columns become relations, not value columns.
func buildEntities(schema *metadata.Schema, tables map[string]*tableInfo, order []string, junctions junctionMap) error {
	for _, name := range order {
		info := tables[name]
		if _, isJunction := junctions[name]; isJunction {
			continue
		}
		if len(info.primaryKey) != 1 {
			warnSkip("skipping table without a single-column primary key", name,
				slog.Int("primary_key_columns", len(info.primaryKey)))
			continue
		}

		relationColumns := make(map[string]bool)
		for _, fk := range info.foreignKeys {
			if len(fk.columns) == 1 {
				relationColumns[fk.columns[0]] = true
			}
		}

		entity := &metadata.Entity{
			Name:       naming.TypeName(name),
			Table:      name,
			PrimaryKey: info.primaryKey,
		}
		for _, col := range info.columns {
			if relationColumns[col.name] {
				continue
			}
			entity.Columns = append(entity.Columns, metadata.Column{
				Property: naming.PropertyName(col.name),
				Database: col.name,
				Type:     columnType(col.dataType),
			})
		}
		if _, err := schema.AddEntity(entity); err != nil {
			return err
		}
	}
	return nil
}

// buildRelations wires FK-backed relations between registered entities and
// many-to-many relations through classified junctions.
func buildRelations(schema *metadata.Schema, tables map[string]*tableInfo, order []string, junctions junctionMap) error {
	for _, name := range order {
		info := tables[name]
		if _, isJunction := junctions[name]; isJunction {
			continue
		}
		owner, err := schema.EntityByTable(name)
		if err != nil {
			continue // table was skipped during entity building
		}

		fkCountByTarget := make(map[string]int)
		for _, fk := range info.foreignKeys {
			fkCountByTarget[fk.refTable]++
		}

		for _, fk := range info.foreignKeys {
			if len(fk.columns) != 1 {
				warnSkip("skipping unsupported composite foreign key", name,
					slog.String("constraint", fk.constraint),
					slog.String("referenced_table", fk.refTable))
				continue
			}
			inverse, err := schema.EntityByTable(fk.refTable)
			if err != nil {
				warnSkip("skipping foreign key to unregistered table", name,
					slog.String("referenced_table", fk.refTable))
				continue
			}

			column := fk.columns[0]
			if hasSingleColumnUnique(info, column) {
				err = schema.OneToOne(
					owner, naming.ToOnePropertyName(column),
					inverse, naming.PropertyName(naming.Singularize(name)),
					column,
				)
			} else {
				isOnlyFK := fkCountByTarget[fk.refTable] == 1
				err = schema.ManyToOne(
					owner, naming.ToOnePropertyName(column),
					inverse, naming.ToManyPropertyName(name, column, isOnlyFK),
					column,
				)
			}
			if err != nil {
				return err
			}
		}
	}

	for _, jc := range orderedJunctions(junctions) {
		left, err := schema.EntityByTable(jc.leftFK.refTable)
		if err != nil {
			continue
		}
		right, err := schema.EntityByTable(jc.rightFK.refTable)
		if err != nil {
			continue
		}
		err = schema.ManyToMany(
			left, naming.ToManyPropertyName(right.Table, "", true),
			right, naming.ToManyPropertyName(left.Table, "", true),
			jc.table, jc.leftFK.columns[0], jc.rightFK.columns[0],
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func hasSingleColumnUnique(info *tableInfo, column string) bool {
	for _, set := range info.uniqueSets {
		if len(set) == 1 && set[0] == column {
			return true
		}
	}
	return false
}
