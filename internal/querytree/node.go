// Package querytree normalizes a caller's fetch tree against schema metadata:
// every relation of every visited entity becomes exactly one child node,
// either fetched as full data or projected as ids only.
package querytree

import (
	"fmt"

	"github.com/smoogly/entity-builder/internal/metadata"
)

// Kind tags a node as returning full entity data or foreign-key ids only.
type Kind int

const (
	// Data nodes materialize the entity's columns and recurse into children.
	Data Kind = iota
	// IDs nodes project the relation's foreign-key values only.
	IDs
)

// String returns the tag name used in tree fingerprints.
func (k Kind) String() string {
	if k == IDs {
		return "ids"
	}
	return "data"
}

// Node is one entity occurrence in the normalized query tree.
type Node struct {
	Kind  Kind
	Alias string
	Meta  *metadata.Entity
	// Rel is the relation on the parent's entity that produced this node.
	// Nil at the root.
	Rel      *metadata.Relation
	Children []*Node
}

// aliasSeq mints tree-unique aliases from a monotonic counter.
type aliasSeq struct{ n int }

func (s *aliasSeq) next() string {
	s.n++
	return fmt.Sprintf("rel_%d", s.n)
}
