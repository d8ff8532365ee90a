// Package migrations installs the helper SQL function pair the executor
// relies on: safe_create_fn and execute_if_exists_n<N> for every supported
// batch size. The helpers are the stable on-database interface — once
// shipped they are never edited, only replaced through a new migration.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/smoogly/entity-builder/builderr"
	"github.com/smoogly/entity-builder/internal/funcache"
)

// SafeCreateFnSQL defines safe_create_fn: EXECUTE the given DDL, swallowing
// the duplicate errors concurrent creators race into.
func SafeCreateFnSQL() string {
	return `CREATE OR REPLACE FUNCTION safe_create_fn(sql text) RETURNS void AS $helper$
BEGIN
  EXECUTE sql;
EXCEPTION
  WHEN unique_violation THEN RETURN;
  WHEN duplicate_function THEN RETURN;
END
$helper$ LANGUAGE plpgsql`
}

// ExecuteIfExistsSQL defines the probe-and-invoke helper for one batch
// size: it executes the named function, or yields a single NULL row when
// the function does not exist yet.
func ExecuteIfExistsSQL(n int) (string, error) {
	if n <= 0 || n > funcache.MaxFnArguments {
		return "", builderr.InvalidArgument("batch size %d out of range [1..%d]", n, funcache.MaxFnArguments)
	}

	params := make([]string, n)
	placeholders := make([]string, n)
	using := make([]string, n)
	for i := 0; i < n; i++ {
		params[i] = fmt.Sprintf("a%d int", i+1)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		using[i] = fmt.Sprintf("a%d", i+1)
	}

	return fmt.Sprintf(`CREATE OR REPLACE FUNCTION execute_if_exists_n%d(fn text, %s)
RETURNS SETOF JSON STABLE AS $helper$
BEGIN
  RETURN QUERY EXECUTE 'select res from ' || fn || '(%s) res' USING %s;
EXCEPTION
  WHEN undefined_function THEN RETURN NEXT NULL::json;
END
$helper$ LANGUAGE plpgsql ROWS %d`,
		n,
		strings.Join(params, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(using, ", "),
		n,
	), nil
}

// Statements returns the full helper installation script in order.
func Statements() ([]string, error) {
	statements := make([]string, 0, funcache.MaxFnArguments+1)
	statements = append(statements, SafeCreateFnSQL())
	for n := 1; n <= funcache.MaxFnArguments; n++ {
		stmt, err := ExecuteIfExistsSQL(n)
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}
	return statements, nil
}

// PriorVersionsQuery lists stored functions generated by earlier builder
// versions. They keep working but are never called again after a version
// bump; ops drops them at leisure.
func PriorVersionsQuery() string {
	return funcache.PriorVersionsQuery()
}

// Apply installs the helpers. The statements are CREATE OR REPLACE, so
// re-running the migration is harmless.
func Apply(ctx context.Context, db *sql.DB) error {
	statements, err := Statements()
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return builderr.Database(err, "install helper function")
		}
	}
	return nil
}
