// Package introspect builds schema metadata from a live PostgreSQL
// database. It reads information_schema, classifies pure junction tables,
// and derives the relation kinds from foreign keys and unique constraints.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/smoogly/entity-builder/internal/metadata"
)

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type columnInfo struct {
	name     string
	dataType string
	nullable bool
}

type fkInfo struct {
	constraint string
	columns    []string
	refTable   string
	refColumns []string
}

type tableInfo struct {
	name        string
	columns     []columnInfo
	primaryKey  []string
	uniqueSets  [][]string
	foreignKeys []fkInfo
}

// Introspect reads the given database schema and assembles entity metadata.
// Tables with composite primary keys and composite foreign keys are skipped
// with a warning rather than mangled; pure junction tables are hidden
// behind many-to-many relations on both endpoint entities.
func Introspect(ctx context.Context, db Queryer, schemaName string) (*metadata.Schema, error) {
	ctx, span := startSpan(ctx, "introspect.build_schema",
		attribute.String("db.schema", schemaName),
	)
	defer span.End()

	names, err := getTables(ctx, db, schemaName)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	tables := make(map[string]*tableInfo, len(names))
	order := make([]string, 0, len(names))
	for _, name := range names {
		info := &tableInfo{name: name}
		if info.columns, err = getColumns(ctx, db, schemaName, name); err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to get columns for %s: %w", name, err)
		}
		if info.primaryKey, info.uniqueSets, err = getKeyConstraints(ctx, db, schemaName, name); err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to get key constraints for %s: %w", name, err)
		}
		if info.foreignKeys, err = getForeignKeys(ctx, db, schemaName, name); err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to get foreign keys for %s: %w", name, err)
		}
		tables[name] = info
		order = append(order, name)
	}

	junctions := classifyJunctions(tables)

	schema := metadata.NewSchema(schemaName)
	if err := buildEntities(schema, tables, order, junctions); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if err := buildRelations(schema, tables, order, junctions); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return schema, nil
}

func getTables(ctx context.Context, db Queryer, schemaName string) ([]string, error) {
	ctx, span := startSpan(ctx, "introspect.get_tables",
		attribute.String("db.schema", schemaName),
	)
	defer span.End()

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := db.QueryContext(ctx, query, schemaName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return tables, nil
}

func getColumns(ctx context.Context, db Queryer, schemaName, tableName string) ([]columnInfo, error) {
	ctx, span := startSpan(ctx, "introspect.get_columns",
		attribute.String("db.schema", schemaName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := db.QueryContext(ctx, query, schemaName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []columnInfo
	for rows.Next() {
		var col columnInfo
		var isNullable string
		if err := rows.Scan(&col.name, &col.dataType, &isNullable); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		col.nullable = strings.EqualFold(isNullable, "YES")
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return columns, nil
}

func getKeyConstraints(ctx context.Context, db Queryer, schemaName, tableName string) (primaryKey []string, uniqueSets [][]string, err error) {
	ctx, span := startSpan(ctx, "introspect.get_key_constraints",
		attribute.String("db.schema", schemaName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT tc.constraint_name, tc.constraint_type, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_name = tc.constraint_name
			AND kcu.table_schema = tc.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2
			AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`

	rows, err := db.QueryContext(ctx, query, schemaName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	type constraint struct {
		kind    string
		columns []string
	}
	byName := make(map[string]*constraint)
	var names []string
	for rows.Next() {
		var name, kind, column string
		if err := rows.Scan(&name, &kind, &column); err != nil {
			recordSpanError(span, err)
			return nil, nil, err
		}
		c, ok := byName[name]
		if !ok {
			c = &constraint{kind: kind}
			byName[name] = c
			names = append(names, name)
		}
		c.columns = append(c.columns, column)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, nil, err
	}

	for _, name := range names {
		c := byName[name]
		if c.kind == "PRIMARY KEY" {
			primaryKey = c.columns
		}
		uniqueSets = append(uniqueSets, c.columns)
	}
	return primaryKey, uniqueSets, nil
}

func getForeignKeys(ctx context.Context, db Queryer, schemaName, tableName string) ([]fkInfo, error) {
	ctx, span := startSpan(ctx, "introspect.get_foreign_keys",
		attribute.String("db.schema", schemaName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT tc.constraint_name, kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_name = tc.constraint_name
			AND kcu.table_schema = tc.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2
			AND tc.constraint_type = 'FOREIGN KEY'
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`

	rows, err := db.QueryContext(ctx, query, schemaName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	byName := make(map[string]*fkInfo)
	var names []string
	for rows.Next() {
		var name, column, refTable, refColumn string
		if err := rows.Scan(&name, &column, &refTable, &refColumn); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		fk, ok := byName[name]
		if !ok {
			fk = &fkInfo{constraint: name, refTable: refTable}
			byName[name] = fk
			names = append(names, name)
		}
		fk.columns = append(fk.columns, column)
		fk.refColumns = append(fk.refColumns, refColumn)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	fks := make([]fkInfo, 0, len(names))
	for _, name := range names {
		fks = append(fks, *byName[name])
	}
	return fks, nil
}

// columnType maps information_schema data types onto hydration descriptors.
func columnType(dataType string) metadata.ColumnType {
	normalized := strings.ToLower(strings.TrimSpace(dataType))
	switch {
	case normalized == "smallint", normalized == "integer", normalized == "bigint":
		return metadata.Int
	case normalized == "real", normalized == "double precision", normalized == "numeric":
		return metadata.Float
	case normalized == "boolean":
		return metadata.Bool
	case normalized == "date":
		return metadata.Date
	case strings.HasPrefix(normalized, "timestamp"):
		return metadata.Timestamp
	case normalized == "json", normalized == "jsonb":
		return metadata.JSON
	case normalized == "text", strings.HasPrefix(normalized, "character"), normalized == "uuid":
		return metadata.Text
	default:
		return metadata.Raw
	}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("entity-builder/introspect")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func warnSkip(reason, table string, args ...any) {
	attrs := append([]any{slog.String("table", table)}, args...)
	slog.Default().Warn(reason, attrs...)
}
