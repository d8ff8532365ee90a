package fetch

import (
	"sort"

	"github.com/smoogly/entity-builder/builderr"
	"github.com/smoogly/entity-builder/internal/metadata"
	"github.com/smoogly/entity-builder/internal/querytree"
)

// hydrateRows applies the per-node fixups to every returned root row.
func hydrateRows(rows []map[string]any, root *querytree.Node, ids *metadata.RelationIDs) error {
	for _, row := range rows {
		if err := hydrateEntity(row, root, ids); err != nil {
			return err
		}
	}
	return nil
}

// hydrateEntity fixes one entity object in place, pre-order: value columns
// run through their type's hydration hook, id children are normalized, data
// children are sorted and recursed into.
func hydrateEntity(row map[string]any, node *querytree.Node, ids *metadata.RelationIDs) error {
	for _, col := range node.Meta.Columns {
		value, ok := row[col.Property]
		if !ok {
			continue
		}
		hydrated, err := col.Type.Hydrate(value)
		if err != nil {
			return err
		}
		row[col.Property] = hydrated
	}

	for _, child := range node.Children {
		var err error
		if child.Kind == querytree.IDs {
			err = hydrateIDChild(row, node, child, ids)
		} else {
			err = hydrateDataChild(row, node, child, ids)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func hydrateIDChild(row map[string]any, node, child *querytree.Node, ids *metadata.RelationIDs) error {
	rel := child.Rel
	idProp, err := ids.IDProperty(node.Meta, rel.Property)
	if err != nil {
		return err
	}

	if rel.Kind.ToMany() {
		row[idProp] = sortedIDs(row[idProp])
	} else if value, present := row[idProp]; present && value == nil {
		// A missing to-one relation reads back as NULL; the property is
		// dropped so callers can tell "no relation" from "id = 0".
		delete(row, idProp)
	}

	if rel.Kind == metadata.ManyToMany && rel.Junction != nil {
		delete(row, rel.Junction.HelperKey())
	}
	return nil
}

func hydrateDataChild(row map[string]any, node, child *querytree.Node, ids *metadata.RelationIDs) error {
	rel := child.Rel

	if !rel.Kind.ToMany() {
		value, present := row[rel.Property]
		if !present || value == nil {
			delete(row, rel.Property)
			return nil
		}
		entity, ok := value.(map[string]any)
		if !ok {
			return builderr.Implementation("data child %s of %s is %T, expected an object", rel.Property, node.Meta.Name, value)
		}
		return hydrateEntity(entity, child, ids)
	}

	childPK, err := child.Meta.PrimaryKeyColumn()
	if err != nil {
		return err
	}

	list := []any{}
	if value, present := row[rel.Property]; present && value != nil {
		elements, ok := value.([]any)
		if !ok {
			return builderr.Implementation("data child %s of %s is %T, expected an array", rel.Property, node.Meta.Name, value)
		}
		list = elements
	}

	sort.SliceStable(list, func(i, j int) bool {
		return lessByProperty(list[i], list[j], childPK.Property)
	})

	for _, element := range list {
		entity, ok := element.(map[string]any)
		if !ok {
			return builderr.Implementation("element of %s on %s is %T, expected an object", rel.Property, node.Meta.Name, element)
		}
		if rel.Kind == metadata.ManyToMany && rel.Junction != nil {
			delete(entity, rel.Junction.HelperKey())
		}
		if err := hydrateEntity(entity, child, ids); err != nil {
			return err
		}
	}
	row[rel.Property] = list
	return nil
}

// sortedIDs normalizes a to-many id projection: NULL becomes an empty list,
// null entries are dropped, and ids sort ascending.
func sortedIDs(value any) []any {
	elements, _ := value.([]any)
	out := make([]any, 0, len(elements))
	for _, element := range elements {
		if element != nil {
			out = append(out, element)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return lessValue(out[i], out[j])
	})
	return out
}

func lessByProperty(a, b any, property string) bool {
	am, aok := a.(map[string]any)
	bm, bok := b.(map[string]any)
	if !aok || !bok {
		return false
	}
	return lessValue(am[property], bm[property])
}

func lessValue(a, b any) bool {
	an, aok := numericValue(a)
	bn, bok := numericValue(b)
	if aok && bok {
		return an < bn
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}
	return false
}
