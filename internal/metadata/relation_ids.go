package metadata

import (
	"sync"

	"github.com/smoogly/entity-builder/builderr"
)

// RelationIDs maps a relation property to the name its foreign-key value is
// projected under. The projected name follows no convention — a relation
// "related" may surface its id as "absolutelyUnrelated" — so every relation
// a fetch touches must be registered here.
//
// Entries are registered while the schema is assembled and are read-only
// afterwards; a table-name-keyed lookup is derived on first use. Reset
// exists for tests and must not race with readers.
type RelationIDs struct {
	mu      sync.RWMutex
	entries map[*Entity]map[string]string
	byTable map[string]map[string]string
}

// NewRelationIDs creates an empty registry.
func NewRelationIDs() *RelationIDs {
	return &RelationIDs{entries: make(map[*Entity]map[string]string)}
}

// With records that entity's relationProperty projects its id under
// idProperty. It returns the registry for chained registration.
func (r *RelationIDs) With(entity *Entity, relationProperty, idProperty string) *RelationIDs {
	r.mu.Lock()
	defer r.mu.Unlock()
	props, ok := r.entries[entity]
	if !ok {
		props = make(map[string]string)
		r.entries[entity] = props
	}
	props[relationProperty] = idProperty
	r.byTable = nil
	return r
}

// IDProperty returns the registered id property name for (entity, relation
// property). The answer is stable for the process lifetime.
func (r *RelationIDs) IDProperty(entity *Entity, relationProperty string) (string, error) {
	byTable := r.derived()

	props, ok := byTable[entity.Table]
	if !ok {
		return "", builderr.Schema("no relation id properties registered for entity %s", entity.Name)
	}
	idProperty, ok := props[relationProperty]
	if !ok {
		return "", builderr.Schema("no id property registered for relation %s of entity %s", relationProperty, entity.Name)
	}
	return idProperty, nil
}

// Reset clears registrations and the derived cache. Testing hook only;
// callers must guarantee no concurrent readers.
func (r *RelationIDs) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[*Entity]map[string]string)
	r.byTable = nil
}

func (r *RelationIDs) derived() map[string]map[string]string {
	r.mu.RLock()
	byTable := r.byTable
	r.mu.RUnlock()
	if byTable != nil {
		return byTable
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byTable == nil {
		derived := make(map[string]map[string]string, len(r.entries))
		for entity, props := range r.entries {
			copied := make(map[string]string, len(props))
			for prop, idProp := range props {
				copied[prop] = idProp
			}
			derived[entity.Table] = copied
		}
		r.byTable = derived
	}
	return r.byTable
}
