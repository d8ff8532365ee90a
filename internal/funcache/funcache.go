// Package funcache names and generates the server-side stored functions
// that cache compiled queries. One function exists per (tree shape, batch
// size); repeated fetches of the same shape skip parsing and planning
// entirely.
package funcache

import (
	"fmt"
	"strings"

	"github.com/smoogly/entity-builder/builderr"
	"github.com/smoogly/entity-builder/internal/sqlgen"
)

// Version is baked into every generated function name. Bumping it retires
// all prior functions: they stay in the catalog, unused, until ops drops
// them (see PriorVersionsQuery).
const Version = "1"

// MaxFnArguments is the largest batch a stored function accepts, bounded by
// the set of pre-installed execute_if_exists_n<N> helpers.
const MaxFnArguments = 99

// maxIdentifierBytes is PostgreSQL's identifier length limit.
const maxIdentifierBytes = 63

// tablePrefixLen bounds the root-table fragment of the function name.
const tablePrefixLen = 15

// FunctionName derives the stored function name for a tree shape and batch
// size: builder_<version>_<table prefix>_<tree hash>_n<batch>.
func FunctionName(rootTable, treeHash string, batchSize int) (string, error) {
	if batchSize <= 0 || batchSize > MaxFnArguments {
		return "", builderr.InvalidArgument("batch size %d out of range [1..%d]", batchSize, MaxFnArguments)
	}
	prefix := rootTable
	if len(prefix) > tablePrefixLen {
		prefix = prefix[:tablePrefixLen]
	}
	return fmt.Sprintf("builder_%s_%s_%s_n%d", Version, prefix, treeHash, batchSize), nil
}

// CheckName enforces the identifier limit. In development an oversized name
// fails loudly; in production the caller truncates via TruncateName and
// logs, accepting the (remote) collision risk.
func CheckName(name string, dev bool) error {
	if len(name) <= maxIdentifierBytes {
		return nil
	}
	if dev {
		return builderr.Database(
			fmt.Errorf("generated function name %q is %d bytes, identifier limit is %d", name, len(name), maxIdentifierBytes),
			"stored function name",
		)
	}
	return nil
}

// TruncateName cuts a name down to the identifier limit.
func TruncateName(name string) string {
	if len(name) <= maxIdentifierBytes {
		return name
	}
	return name[:maxIdentifierBytes]
}

// CreateFunctionSQL renders the CREATE FUNCTION statement wrapping a
// compiled query. STABLE and the declared ROWS estimate let the planner
// cost call sites; row_to_json yields one JSON document per root row.
func CreateFunctionSQL(name, compiledSQL string, batchSize int) (string, error) {
	if batchSize <= 0 || batchSize > MaxFnArguments {
		return "", builderr.InvalidArgument("batch size %d out of range [1..%d]", batchSize, MaxFnArguments)
	}
	body := strings.Replace(compiledSQL, sqlgen.IDPlaceholder, Params(batchSize), 1)
	args := strings.TrimSuffix(strings.Repeat("int, ", batchSize), ", ")
	return fmt.Sprintf(
		"CREATE FUNCTION %s(%s) RETURNS SETOF JSON STABLE AS $body$\n"+
			"BEGIN\n"+
			"  RETURN QUERY SELECT row_to_json(rows) AS res\n"+
			"               FROM (%s) rows;\n"+
			"END\n"+
			"$body$ LANGUAGE plpgsql ROWS %d",
		name, args, body, batchSize,
	), nil
}

// ProbeSQL invokes the pre-installed probe helper: it executes the named
// function when present and yields a single NULL row when it is missing.
// Arguments are the function name followed by the batch ids.
func ProbeSQL(batchSize int) string {
	return fmt.Sprintf("SELECT * FROM execute_if_exists_n%d($1, %s)", batchSize, shiftedParams(batchSize))
}

// InvokeSQL calls a stored function directly. The name is generated
// internally and contains identifier-safe characters only.
func InvokeSQL(name string, batchSize int) string {
	return fmt.Sprintf("SELECT * FROM %s(%s)", name, Params(batchSize))
}

// WrapRaw wraps a compiled query with ids already inlined so the fallback
// path returns the same one-JSON-per-row shape as the stored functions.
func WrapRaw(inlinedSQL string) string {
	return fmt.Sprintf("SELECT row_to_json(rows) AS res FROM (%s) rows", inlinedSQL)
}

// Params renders "$1, $2, …, $n".
func Params(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

// shiftedParams renders "$2, …, $n+1", leaving $1 for the function name.
func shiftedParams(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+2)
	}
	return strings.Join(parts, ", ")
}

// PriorVersionsQuery lists stored functions generated by earlier versions,
// for ops to drop after a version bump.
func PriorVersionsQuery() string {
	return fmt.Sprintf(
		`SELECT proname FROM pg_proc WHERE proname LIKE 'builder\_%%' AND proname NOT LIKE 'builder\_%s\_%%'`,
		Version,
	)
}
