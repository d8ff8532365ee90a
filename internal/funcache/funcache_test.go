package funcache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smoogly/entity-builder/builderr"
)

func TestFunctionName(t *testing.T) {
	name, err := FunctionName("parents", "123456", 7)
	require.NoError(t, err)
	assert.Equal(t, "builder_1_parents_123456_n7", name)
}

func TestFunctionNameTruncatesTablePrefix(t *testing.T) {
	name, err := FunctionName("a_very_long_table_name_indeed", "42", 1)
	require.NoError(t, err)
	assert.Equal(t, "builder_1_a_very_long_tab_42_n1", name)
}

func TestFunctionNameRejectsBadBatchSize(t *testing.T) {
	_, err := FunctionName("parents", "42", 0)
	assert.ErrorIs(t, err, builderr.ErrInvalidArgument)
	_, err = FunctionName("parents", "42", MaxFnArguments+1)
	assert.ErrorIs(t, err, builderr.ErrInvalidArgument)
}

func TestCheckName(t *testing.T) {
	short, err := FunctionName("parents", "42", 1)
	require.NoError(t, err)
	assert.NoError(t, CheckName(short, true))

	long := "builder_" + strings.Repeat("x", 80)
	assert.ErrorIs(t, CheckName(long, true), builderr.ErrDatabase)
	assert.NoError(t, CheckName(long, false))
	assert.Len(t, TruncateName(long), 63)
}

func TestCreateFunctionSQL(t *testing.T) {
	sql, err := CreateFunctionSQL("builder_1_parents_42_n2", `SELECT "rel_1"."id" AS "id" FROM "main"."parents" "rel_1" WHERE "rel_1"."id" IN (:...ids)`, 2)
	require.NoError(t, err)

	assert.Contains(t, sql, "CREATE FUNCTION builder_1_parents_42_n2(int, int) RETURNS SETOF JSON STABLE")
	assert.Contains(t, sql, "RETURN QUERY SELECT row_to_json(rows) AS res")
	assert.Contains(t, sql, `WHERE "rel_1"."id" IN ($1, $2)`)
	assert.Contains(t, sql, "LANGUAGE plpgsql ROWS 2")
	assert.NotContains(t, sql, ":...ids")
}

func TestProbeSQL(t *testing.T) {
	assert.Equal(t, "SELECT * FROM execute_if_exists_n3($1, $2, $3, $4)", ProbeSQL(3))
	assert.Equal(t, "SELECT * FROM execute_if_exists_n1($1, $2)", ProbeSQL(1))
}

func TestInvokeSQL(t *testing.T) {
	assert.Equal(t, "SELECT * FROM builder_1_parents_42_n2($1, $2)", InvokeSQL("builder_1_parents_42_n2", 2))
}

func TestWrapRaw(t *testing.T) {
	assert.Equal(t,
		"SELECT row_to_json(rows) AS res FROM (SELECT 1 AS x) rows",
		WrapRaw("SELECT 1 AS x"),
	)
}

func TestPriorVersionsQuery(t *testing.T) {
	query := PriorVersionsQuery()
	assert.Contains(t, query, "pg_proc")
	assert.Contains(t, query, `NOT LIKE 'builder\_`+Version+`\_%'`)
}
