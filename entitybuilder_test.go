package entitybuilder_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	entitybuilder "github.com/smoogly/entity-builder"
)

func newSchema(t *testing.T) (*entitybuilder.Schema, *entitybuilder.Entity, *entitybuilder.Entity, *entitybuilder.RelationIDs) {
	t.Helper()
	s := entitybuilder.NewSchema("main")
	parent := s.MustAddEntity(&entitybuilder.Entity{
		Name:       "Parent",
		Table:      "parents",
		PrimaryKey: []string{"id"},
		Columns: []entitybuilder.Column{
			{Property: "id", Database: "id", Type: entitybuilder.TypeInt},
			{Property: "name", Database: "name", Type: entitybuilder.TypeText},
		},
	})
	child := s.MustAddEntity(&entitybuilder.Entity{
		Name:       "Child",
		Table:      "children",
		PrimaryKey: []string{"id"},
		Columns: []entitybuilder.Column{
			{Property: "id", Database: "id", Type: entitybuilder.TypeInt},
		},
	})
	require.NoError(t, s.ManyToOne(child, "parent", parent, "children", "parent_id"))

	ids := entitybuilder.NewRelationIDs().
		With(child, "parent", "parentId").
		With(parent, "children", "childIds")
	return s, parent, child, ids
}

func TestBuilderFetchEmpty(t *testing.T) {
	s, parent, _, ids := newSchema(t)
	builder := entitybuilder.New(s, ids)

	rows, err := builder.FetchEntity(context.Background(), entitybuilder.NewManager(nil), parent, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBuilderFetchRoundTrip(t *testing.T) {
	s, parent, _, ids := newSchema(t)
	builder := entitybuilder.New(s, ids)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	mock.ExpectQuery("execute_if_exists_n1").
		WillReturnRows(sqlmock.NewRows([]string{"res"}).
			AddRow(`{"id":1,"name":"p","childIds":[2,1]}`))

	hookCalls := 0
	rows, err := builder.FetchEntity(context.Background(), entitybuilder.NewManager(db), parent, []string{"1"},
		entitybuilder.WithRequestHook(func() { hookCalls++ }))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1.0, rows[0]["id"])
	assert.Equal(t, []any{1.0, 2.0}, rows[0]["childIds"])
	assert.Equal(t, 1, hookCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuilderSetRelation(t *testing.T) {
	s, parent, child, ids := newSchema(t)
	builder := entitybuilder.New(s, ids)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "main"."children"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id" FROM "main"."parents"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE "main"."children" SET "parent_id"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	err = builder.SetRelation(context.Background(), entitybuilder.NewManager(db),
		entitybuilder.Ref{Entity: child, ID: "5"},
		entitybuilder.Ref{Entity: parent, ID: "10"},
	)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
