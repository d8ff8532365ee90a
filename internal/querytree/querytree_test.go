package querytree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smoogly/entity-builder/builderr"
	"github.com/smoogly/entity-builder/internal/metadata"
)

type fixture struct {
	schema *metadata.Schema
	parent *metadata.Entity
	child  *metadata.Entity
	tag    *metadata.Entity
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	s := metadata.NewSchema("main")
	parent := s.MustAddEntity(&metadata.Entity{
		Name:       "Parent",
		Table:      "parents",
		PrimaryKey: []string{"id"},
		Columns: []metadata.Column{
			{Property: "id", Database: "id", Type: metadata.Int},
			{Property: "name", Database: "name", Type: metadata.Text},
		},
	})
	child := s.MustAddEntity(&metadata.Entity{
		Name:       "Child",
		Table:      "children",
		PrimaryKey: []string{"id"},
		Columns: []metadata.Column{
			{Property: "id", Database: "id", Type: metadata.Int},
			{Property: "title", Database: "title", Type: metadata.Text},
		},
	})
	tag := s.MustAddEntity(&metadata.Entity{
		Name:       "Tag",
		Table:      "tags",
		PrimaryKey: []string{"id"},
		Columns: []metadata.Column{
			{Property: "id", Database: "id", Type: metadata.Int},
			{Property: "label", Database: "label", Type: metadata.Text},
		},
	})
	require.NoError(t, s.ManyToOne(child, "parent", parent, "children", "parent_id"))
	require.NoError(t, s.ManyToMany(parent, "tags", tag, "parents", "parent_tags", "parent_id", "tag_id"))
	return fixture{schema: s, parent: parent, child: child, tag: tag}
}

func TestBuildAllRelationsBecomeIDLeaves(t *testing.T) {
	f := newFixture(t)

	root, err := Build(Fetch{Entity: f.parent})
	require.NoError(t, err)

	assert.Equal(t, Data, root.Kind)
	assert.Equal(t, "rel_1", root.Alias)
	require.Len(t, root.Children, 2)

	children := root.Children[0]
	assert.Equal(t, IDs, children.Kind)
	assert.Equal(t, "rel_2", children.Alias)
	assert.Equal(t, f.child, children.Meta)
	assert.Empty(t, children.Children)

	tags := root.Children[1]
	assert.Equal(t, IDs, tags.Kind)
	assert.Equal(t, "rel_3", tags.Alias)
	assert.Equal(t, f.tag, tags.Meta)
}

func TestBuildNestedBecomesDataChild(t *testing.T) {
	f := newFixture(t)

	root, err := Build(Fetch{Entity: f.parent, Nested: []Fetch{{Entity: f.child}}})
	require.NoError(t, err)

	require.Len(t, root.Children, 2)
	children := root.Children[0]
	assert.Equal(t, Data, children.Kind)
	assert.Equal(t, "rel_2", children.Alias)
	// The child's own backlink relation expands to an ids leaf.
	require.Len(t, children.Children, 1)
	assert.Equal(t, IDs, children.Children[0].Kind)
	assert.Equal(t, "rel_3", children.Children[0].Alias)
	assert.Equal(t, f.parent, children.Children[0].Meta)

	tags := root.Children[1]
	assert.Equal(t, IDs, tags.Kind)
	assert.Equal(t, "rel_4", tags.Alias)
}

func TestBuildAliasesAreDeterministic(t *testing.T) {
	f := newFixture(t)
	tree := Fetch{Entity: f.parent, Nested: []Fetch{{Entity: f.child}}}

	first, err := Build(tree)
	require.NoError(t, err)
	second, err := Build(tree)
	require.NoError(t, err)

	var collect func(n *Node) []string
	collect = func(n *Node) []string {
		aliases := []string{n.Alias}
		for _, child := range n.Children {
			aliases = append(aliases, collect(child)...)
		}
		return aliases
	}
	assert.Equal(t, collect(first), collect(second))
}

func TestBuildRejectsMissingRoot(t *testing.T) {
	_, err := Build(Fetch{})
	assert.ErrorIs(t, err, builderr.ErrInvalidArgument)
}

func TestBuildRejectsUnrelatedNested(t *testing.T) {
	f := newFixture(t)
	_, err := Build(Fetch{Entity: f.child, Nested: []Fetch{{Entity: f.tag}}})
	assert.ErrorIs(t, err, builderr.ErrInvalidArgument)
}

func TestFingerprintStable(t *testing.T) {
	f := newFixture(t)
	tree := Fetch{Entity: f.parent, Nested: []Fetch{{Entity: f.child}}}

	first, err := Build(tree)
	require.NoError(t, err)
	second, err := Build(tree)
	require.NoError(t, err)

	assert.Equal(t, Fingerprint(first), Fingerprint(second))
	assert.NotEmpty(t, Fingerprint(first))
	for _, c := range Fingerprint(first) {
		assert.True(t, c >= '0' && c <= '9', "fingerprint must be digits only")
	}
}

func TestFingerprintChangesWithShape(t *testing.T) {
	f := newFixture(t)

	idsOnly, err := Build(Fetch{Entity: f.parent})
	require.NoError(t, err)
	nested, err := Build(Fetch{Entity: f.parent, Nested: []Fetch{{Entity: f.child}}})
	require.NoError(t, err)
	assert.NotEqual(t, Fingerprint(idsOnly), Fingerprint(nested))
}

func TestFingerprintChangesWithColumns(t *testing.T) {
	f := newFixture(t)
	before, err := Build(Fetch{Entity: f.parent})
	require.NoError(t, err)
	beforeHash := Fingerprint(before)

	f.parent.Columns = append(f.parent.Columns, metadata.Column{Property: "extra", Database: "extra", Type: metadata.Text})
	after, err := Build(Fetch{Entity: f.parent})
	require.NoError(t, err)

	assert.NotEqual(t, beforeHash, Fingerprint(after))
}
