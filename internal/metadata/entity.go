// Package metadata holds the read-only schema view the query compiler works
// from: entities, columns, relations of the five kinds, junction tables, and
// the relation-id-property registry.
package metadata

import (
	"fmt"

	"github.com/smoogly/entity-builder/builderr"
	"github.com/smoogly/entity-builder/internal/sqlutil"
)

// RelationKind is one of the five relation shapes between two entities.
type RelationKind int

const (
	// OwnerToOne is a one-to-one relation whose FK column lives on this side.
	OwnerToOne RelationKind = iota
	// OneToOwner is a one-to-one relation whose FK column lives on the remote side.
	OneToOwner
	// ManyToOne is a to-one relation whose FK column lives on this side.
	ManyToOne
	// OneToMany is a to-many relation whose FK column lives on the remote side.
	OneToMany
	// ManyToMany links both sides through a junction table carrying two FKs.
	ManyToMany
)

// String returns the canonical kind name. It is part of the tree fingerprint,
// so the values are load-bearing and must stay stable.
func (k RelationKind) String() string {
	switch k {
	case OwnerToOne:
		return "owner-to-one"
	case OneToOwner:
		return "one-to-owner"
	case ManyToOne:
		return "many-to-one"
	case OneToMany:
		return "one-to-many"
	case ManyToMany:
		return "many-to-many"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ToMany reports whether the relation resolves to a collection.
func (k RelationKind) ToMany() bool {
	return k == OneToMany || k == ManyToMany
}

// OwnsForeignKey reports whether this side of the relation carries the FK column.
func (k RelationKind) OwnsForeignKey() bool {
	return k == OwnerToOne || k == ManyToOne
}

// Column describes one own (non-relation) column of an entity.
type Column struct {
	// Property is the caller-visible name the column is projected under.
	Property string
	// Database is the column name in the table.
	Database string
	// Type hydrates driver values into domain values.
	Type ColumnType
}

// JoinColumn maps an owning-side FK column to the referenced remote column.
type JoinColumn struct {
	// Property is the relation property the column belongs to.
	Property string
	// Database is the FK column name on the owning table.
	Database string
	// Referenced is the column name on the remote table, normally its PK.
	Referenced string
}

// Junction describes the intermediate table of a many-to-many relation as
// seen from one side: OwnerColumn references this entity, InverseColumn the
// remote one.
type Junction struct {
	Schema        string
	Table         string
	OwnerColumn   string
	InverseColumn string
}

// TablePath returns the schema-qualified, quoted junction table name.
func (j Junction) TablePath() string {
	return sqlutil.QualifiedName(j.Schema, j.Table)
}

// HelperKey is the alias under which the compiler projects the junction's
// owner column for grouping. The hydrator strips it from returned rows.
func (j Junction) HelperKey() string {
	return j.Table + "_" + j.OwnerColumn
}

// Relation is a directed association from one entity to another.
type Relation struct {
	// Property is the caller-visible name of the relation on this entity.
	Property string
	Kind     RelationKind
	// Inverse is the remote entity's metadata.
	Inverse *Entity
	// InverseProperty is the relation property on the remote side.
	InverseProperty string
	// Owning marks the side that writes the association (FK holder, or the
	// declaring side for many-to-many).
	Owning bool
	// JoinColumns are populated on FK-owning sides only.
	JoinColumns []JoinColumn
	// Junction is populated for many-to-many relations only.
	Junction *Junction
}

// ForeignKey is one FK constraint of an entity's table.
type ForeignKey struct {
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
}

// Entity is the read-only metadata of one row type backed by one table.
type Entity struct {
	Name        string
	Schema      string
	Table       string
	Columns     []Column
	PrimaryKey  []string
	Relations   []Relation
	ForeignKeys []ForeignKey
}

// TablePath returns the schema-qualified, quoted table name.
func (e *Entity) TablePath() string {
	return sqlutil.QualifiedName(e.Schema, e.Table)
}

// PrimaryKeyColumn returns the single PK column. Entities with composite
// primary keys are rejected.
func (e *Entity) PrimaryKeyColumn() (Column, error) {
	if len(e.PrimaryKey) != 1 {
		return Column{}, builderr.UnsupportedComposite("entity %s has %d primary key columns", e.Name, len(e.PrimaryKey))
	}
	for _, col := range e.Columns {
		if col.Database == e.PrimaryKey[0] {
			return col, nil
		}
	}
	return Column{}, builderr.Schema("primary key column %s of %s is not declared", e.PrimaryKey[0], e.Name)
}

// Relation returns the relation declared under the given property name.
func (e *Entity) Relation(property string) (Relation, error) {
	for _, rel := range e.Relations {
		if rel.Property == property {
			return rel, nil
		}
	}
	return Relation{}, builderr.Schema("entity %s has no relation %s", e.Name, property)
}

// RelationTo returns the first relation pointing at the given entity's table.
func (e *Entity) RelationTo(other *Entity) (Relation, error) {
	for _, rel := range e.Relations {
		if rel.Inverse != nil && rel.Inverse.Table == other.Table {
			return rel, nil
		}
	}
	return Relation{}, builderr.Schema("entity %s has no relation to %s", e.Name, other.Name)
}

// ForeignKeyTo finds the FK on this entity's table that references the other
// entity's table. Composite FKs are rejected.
func (e *Entity) ForeignKeyTo(other *Entity) (ForeignKey, error) {
	for _, fk := range e.ForeignKeys {
		if fk.ReferencedTable != other.Table {
			continue
		}
		if len(fk.Columns) != 1 {
			return ForeignKey{}, builderr.UnsupportedComposite("foreign key %s -> %s spans %d columns", e.Table, other.Table, len(fk.Columns))
		}
		return fk, nil
	}
	return ForeignKey{}, builderr.Schema("no foreign key from %s to %s", e.Table, other.Table)
}
