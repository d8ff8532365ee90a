package fetch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smoogly/entity-builder/internal/metadata"
	"github.com/smoogly/entity-builder/internal/querytree"
)

func TestHydrateDeletesAbsentToOneID(t *testing.T) {
	f := newFixture(t)
	root, err := querytree.Build(querytree.Fetch{Entity: f.child})
	require.NoError(t, err)

	present := map[string]any{"id": 1.0, "title": "a", "parentId": 5.0}
	absent := map[string]any{"id": 2.0, "title": "b", "parentId": nil}

	require.NoError(t, hydrateRows([]map[string]any{present, absent}, root, f.ids))

	assert.Equal(t, 5.0, present["parentId"])
	assert.NotContains(t, absent, "parentId")
}

func TestHydrateKeepsZeroToOneID(t *testing.T) {
	f := newFixture(t)
	root, err := querytree.Build(querytree.Fetch{Entity: f.child})
	require.NoError(t, err)

	// Only NULL means absent; a numeric zero is a real id.
	row := map[string]any{"id": 1.0, "title": "a", "parentId": 0.0}
	require.NoError(t, hydrateRows([]map[string]any{row}, root, f.ids))
	assert.Equal(t, 0.0, row["parentId"])
}

func TestHydrateNormalizesToManyIDs(t *testing.T) {
	f := newFixture(t)
	root, err := querytree.Build(querytree.Fetch{Entity: f.parent})
	require.NoError(t, err)

	row := map[string]any{"id": 1.0, "name": "p", "childIds": []any{3.0, nil, 1.0, 2.0}, "tagIds": nil}
	require.NoError(t, hydrateRows([]map[string]any{row}, root, f.ids))

	assert.Equal(t, []any{1.0, 2.0, 3.0}, row["childIds"])
	assert.Equal(t, []any{}, row["tagIds"])
}

func TestHydrateDeletesNullToOneDataChild(t *testing.T) {
	f := newFixture(t)
	root, err := querytree.Build(querytree.Fetch{Entity: f.child, Nested: []querytree.Fetch{{Entity: f.parent}}})
	require.NoError(t, err)

	row := map[string]any{"id": 1.0, "title": "a", "parent": nil}
	require.NoError(t, hydrateRows([]map[string]any{row}, root, f.ids))
	assert.NotContains(t, row, "parent")
}

func TestHydrateRecursesIntoToOneDataChild(t *testing.T) {
	f := newFixture(t)
	root, err := querytree.Build(querytree.Fetch{Entity: f.child, Nested: []querytree.Fetch{{Entity: f.parent}}})
	require.NoError(t, err)

	row := map[string]any{
		"id": 1.0, "title": "a",
		"parent": map[string]any{"id": 7.0, "name": "p", "childIds": []any{2.0, 1.0}, "tagIds": nil},
	}
	require.NoError(t, hydrateRows([]map[string]any{row}, root, f.ids))

	parent := row["parent"].(map[string]any)
	assert.Equal(t, []any{1.0, 2.0}, parent["childIds"])
	assert.Equal(t, []any{}, parent["tagIds"])
}

func TestHydrateDefaultsMissingToManyDataChild(t *testing.T) {
	f := newFixture(t)
	root, err := querytree.Build(querytree.Fetch{Entity: f.parent, Nested: []querytree.Fetch{{Entity: f.child}}})
	require.NoError(t, err)

	row := map[string]any{"id": 1.0, "name": "p", "children": nil, "tagIds": []any{}}
	require.NoError(t, hydrateRows([]map[string]any{row}, root, f.ids))
	assert.Equal(t, []any{}, row["children"])
}

func TestHydrateValueColumnsRunThroughTypeHooks(t *testing.T) {
	s := metadata.NewSchema("main")
	event := s.MustAddEntity(&metadata.Entity{
		Name:       "Event",
		Table:      "events",
		PrimaryKey: []string{"id"},
		Columns: []metadata.Column{
			{Property: "id", Database: "id", Type: metadata.Int},
			{Property: "occurredAt", Database: "occurred_at", Type: metadata.Timestamp},
		},
	})
	root, err := querytree.Build(querytree.Fetch{Entity: event})
	require.NoError(t, err)
	ids := metadata.NewRelationIDs()

	row := map[string]any{"id": 1.0, "occurredAt": "2024-03-01T12:00:00"}
	require.NoError(t, hydrateRows([]map[string]any{row}, root, ids))

	occurred, ok := row["occurredAt"].(time.Time)
	require.True(t, ok)
	assert.Equal(t, 12, occurred.Hour())

	// Hydration is idempotent: a second pass leaves domain values alone.
	require.NoError(t, hydrateRows([]map[string]any{row}, root, ids))
	assert.Equal(t, occurred, row["occurredAt"])
}
