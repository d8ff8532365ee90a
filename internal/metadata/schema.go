package metadata

import (
	"github.com/smoogly/entity-builder/builderr"
)

// Schema is the injected schema descriptor: the set of registered entities
// for one database schema. It is assembled once at startup, either by hand
// through the builder methods below or by the introspection source, and is
// read-only afterwards.
type Schema struct {
	name     string
	entities []*Entity
	byTable  map[string]*Entity
}

// NewSchema creates an empty schema descriptor for the given database schema.
func NewSchema(name string) *Schema {
	return &Schema{name: name, byTable: make(map[string]*Entity)}
}

// Name returns the database schema name.
func (s *Schema) Name() string { return s.name }

// Entities returns the registered entities in registration order.
func (s *Schema) Entities() []*Entity { return s.entities }

// AddEntity registers an entity and stamps it with the schema name.
// Registering two entities for one table is a caller bug.
func (s *Schema) AddEntity(e *Entity) (*Entity, error) {
	if e.Table == "" {
		return nil, builderr.InvalidArgument("entity %q has no table", e.Name)
	}
	if _, exists := s.byTable[e.Table]; exists {
		return nil, builderr.InvalidArgument("table %s is already registered", e.Table)
	}
	e.Schema = s.name
	s.entities = append(s.entities, e)
	s.byTable[e.Table] = e
	return e, nil
}

// MustAddEntity is AddEntity for static schema definitions.
func (s *Schema) MustAddEntity(e *Entity) *Entity {
	added, err := s.AddEntity(e)
	if err != nil {
		panic(err)
	}
	return added
}

// EntityByTable resolves an entity by table name.
func (s *Schema) EntityByTable(table string) (*Entity, error) {
	e, ok := s.byTable[table]
	if !ok {
		return nil, builderr.Schema("no entity registered for table %s", table)
	}
	return e, nil
}

// OneToOne declares a one-to-one link owned by owner: fkColumn on the
// owner's table references the inverse entity's primary key. Both sides get
// a relation; the owner side carries the join column.
func (s *Schema) OneToOne(owner *Entity, ownerProperty string, inverse *Entity, inverseProperty, fkColumn string) error {
	return s.linkOwned(owner, ownerProperty, OwnerToOne, inverse, inverseProperty, OneToOwner, fkColumn)
}

// ManyToOne declares a to-one link owned by many: fkColumn on the many
// side references the one side's primary key. The one side gets the
// matching one-to-many relation.
func (s *Schema) ManyToOne(many *Entity, manyProperty string, one *Entity, oneProperty, fkColumn string) error {
	return s.linkOwned(many, manyProperty, ManyToOne, one, oneProperty, OneToMany, fkColumn)
}

// ManyToMany declares a junction-backed link. ownerColumn references owner,
// inverseColumn references inverse; the declaring side is the owning one.
func (s *Schema) ManyToMany(owner *Entity, ownerProperty string, inverse *Entity, inverseProperty, junctionTable, ownerColumn, inverseColumn string) error {
	// Junction joins target both primary keys; reject composite ones up front.
	if _, err := owner.PrimaryKeyColumn(); err != nil {
		return err
	}
	if _, err := inverse.PrimaryKeyColumn(); err != nil {
		return err
	}

	owner.Relations = append(owner.Relations, Relation{
		Property:        ownerProperty,
		Kind:            ManyToMany,
		Inverse:         inverse,
		InverseProperty: inverseProperty,
		Owning:          true,
		Junction: &Junction{
			Schema:        s.name,
			Table:         junctionTable,
			OwnerColumn:   ownerColumn,
			InverseColumn: inverseColumn,
		},
	})
	inverse.Relations = append(inverse.Relations, Relation{
		Property:        inverseProperty,
		Kind:            ManyToMany,
		Inverse:         owner,
		InverseProperty: ownerProperty,
		Owning:          false,
		Junction: &Junction{
			Schema:        s.name,
			Table:         junctionTable,
			OwnerColumn:   inverseColumn,
			InverseColumn: ownerColumn,
		},
	})
	return nil
}

func (s *Schema) linkOwned(owner *Entity, ownerProperty string, ownerKind RelationKind, inverse *Entity, inverseProperty string, inverseKind RelationKind, fkColumn string) error {
	inversePK, err := inverse.PrimaryKeyColumn()
	if err != nil {
		return err
	}
	if _, ok := owner.columnByDatabase(fkColumn); ok {
		return builderr.InvalidArgument("fk column %s on %s collides with a declared value column", fkColumn, owner.Table)
	}

	owner.Relations = append(owner.Relations, Relation{
		Property:        ownerProperty,
		Kind:            ownerKind,
		Inverse:         inverse,
		InverseProperty: inverseProperty,
		Owning:          true,
		JoinColumns: []JoinColumn{{
			Property:   ownerProperty,
			Database:   fkColumn,
			Referenced: inversePK.Database,
		}},
	})
	owner.ForeignKeys = append(owner.ForeignKeys, ForeignKey{
		Columns:           []string{fkColumn},
		ReferencedTable:   inverse.Table,
		ReferencedColumns: []string{inversePK.Database},
	})
	inverse.Relations = append(inverse.Relations, Relation{
		Property:        inverseProperty,
		Kind:            inverseKind,
		Inverse:         owner,
		InverseProperty: ownerProperty,
		Owning:          false,
	})
	return nil
}

// columnByDatabase returns the declared value column with the given database name.
func (e *Entity) columnByDatabase(database string) (Column, bool) {
	for _, col := range e.Columns {
		if col.Database == database {
			return col, true
		}
	}
	return Column{}, false
}
