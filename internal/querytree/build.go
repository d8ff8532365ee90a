package querytree

import (
	"github.com/smoogly/entity-builder/builderr"
	"github.com/smoogly/entity-builder/internal/metadata"
)

// Fetch is the caller-supplied tree naming which relations to return as
// data. Relations not named are returned as ids.
type Fetch struct {
	Entity *metadata.Entity
	Nested []Fetch
}

// Build expands a fetch tree into the normalized query tree. The shape
// depends only on the fetch tree and the schema; aliases are minted
// depth-first, so identical inputs produce identical trees.
func Build(tree Fetch) (*Node, error) {
	if tree.Entity == nil {
		return nil, builderr.InvalidArgument("fetch tree has no root entity")
	}
	seq := &aliasSeq{}
	return build(tree, nil, seq)
}

func build(tree Fetch, rel *metadata.Relation, seq *aliasSeq) (*Node, error) {
	node := &Node{
		Kind:  Data,
		Alias: seq.next(),
		Meta:  tree.Entity,
		Rel:   rel,
	}

	matched := make(map[string]bool, len(tree.Nested))
	for i := range tree.Entity.Relations {
		childRel := &tree.Entity.Relations[i]
		if childRel.Inverse == nil {
			return nil, builderr.Schema("relation %s of %s has no inverse entity", childRel.Property, tree.Entity.Name)
		}

		nested, ok := findNested(tree.Nested, childRel.Inverse.Table)
		if ok && !matched[childRel.Inverse.Table] {
			matched[childRel.Inverse.Table] = true
			child, err := build(nested, childRel, seq)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
			continue
		}

		node.Children = append(node.Children, &Node{
			Kind:  IDs,
			Alias: seq.next(),
			Meta:  childRel.Inverse,
			Rel:   childRel,
		})
	}

	for _, nested := range tree.Nested {
		if nested.Entity == nil {
			return nil, builderr.InvalidArgument("nested fetch tree under %s has no entity", tree.Entity.Name)
		}
		if !matched[nested.Entity.Table] {
			return nil, builderr.InvalidArgument("entity %s is nested under %s but %s has no relation to it", nested.Entity.Name, tree.Entity.Name, tree.Entity.Name)
		}
	}

	return node, nil
}

func findNested(nested []Fetch, table string) (Fetch, bool) {
	for _, n := range nested {
		if n.Entity != nil && n.Entity.Table == table {
			return n, true
		}
	}
	return Fetch{}, false
}
