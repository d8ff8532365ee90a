package entitybuilder

import (
	"context"
	"database/sql"

	"github.com/smoogly/entity-builder/internal/introspect"
	"github.com/smoogly/entity-builder/internal/metadata"
	"github.com/smoogly/entity-builder/internal/observability"
)

// Schema metadata types, re-exported for schema definition and lookup.
type (
	Schema      = metadata.Schema
	Entity      = metadata.Entity
	Column      = metadata.Column
	ColumnType  = metadata.ColumnType
	RelationIDs = metadata.RelationIDs
)

// Column type descriptors.
var (
	TypeInt       = metadata.Int
	TypeFloat     = metadata.Float
	TypeText      = metadata.Text
	TypeBool      = metadata.Bool
	TypeJSON      = metadata.JSON
	TypeRaw       = metadata.Raw
	TypeTimestamp = metadata.Timestamp
	TypeDate      = metadata.Date
)

// NewSchema creates an empty schema descriptor for a database schema name.
func NewSchema(name string) *Schema {
	return metadata.NewSchema(name)
}

// NewRelationIDs creates an empty relation-id registry.
func NewRelationIDs() *RelationIDs {
	return metadata.NewRelationIDs()
}

// IntrospectSchema builds a schema descriptor from a live database.
func IntrospectSchema(ctx context.Context, db *sql.DB, schemaName string) (*Schema, error) {
	return introspect.Introspect(ctx, db, schemaName)
}

// InitMetrics initializes the builder's metric instruments on the global
// meter; pass the result to WithMetrics.
func InitMetrics() (*observability.Metrics, error) {
	return observability.InitMetrics()
}

// InitMeterProvider installs a Prometheus-backed meter provider globally.
// Its Handler exposes the collected metrics over HTTP.
func InitMeterProvider(serviceVersion string) (*observability.MeterProvider, error) {
	return observability.InitMeterProvider(serviceVersion)
}
