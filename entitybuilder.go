// Package entitybuilder fetches entity graphs from PostgreSQL in a single
// round-trip per fetch tree. A caller-supplied tree picks which relations
// come back as embedded data; everything else is projected as ids. Compiled
// queries are cached as server-side stored functions keyed by tree shape
// and batch size, so repeated fetches of one shape skip parsing and
// planning entirely.
package entitybuilder

import (
	"context"
	"log/slog"

	"github.com/smoogly/entity-builder/internal/fetch"
	"github.com/smoogly/entity-builder/internal/observability"
	"github.com/smoogly/entity-builder/internal/querytree"
	"github.com/smoogly/entity-builder/internal/relations"
)

// Row is one fetched entity with nested relations embedded.
type Row = map[string]any

// FetchTree names which relations of an entity should be returned as full
// data. Relations not listed in Nested are returned as ids.
type FetchTree struct {
	Entity *Entity
	Nested []FetchTree
}

// Ref addresses one entity row.
type Ref struct {
	Entity *Entity
	ID     string
}

// Removal asks for the direct relation between two rows to be cleared.
type Removal struct {
	From Ref
	To   Ref
}

// Builder is the public surface of the module. It is immutable and safe
// for concurrent use.
type Builder struct {
	schema  *Schema
	ids     *RelationIDs
	log     *slog.Logger
	metrics *observability.Metrics
	dev     bool
}

// Option customizes a Builder.
type Option func(*Builder)

// WithLogger routes builder logging through the given logger.
func WithLogger(log *slog.Logger) Option {
	return func(b *Builder) { b.log = log }
}

// WithMetrics records executor metrics on the given set.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// WithDevChecks tightens validation: empty ids are rejected and oversized
// generated function names fail instead of being truncated.
func WithDevChecks(dev bool) Option {
	return func(b *Builder) { b.dev = dev }
}

// New creates a Builder over the given schema descriptor and relation-id
// registry.
func New(schema *Schema, ids *RelationIDs, opts ...Option) *Builder {
	b := &Builder{
		schema: schema,
		ids:    ids,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Schema returns the schema descriptor the builder was constructed with.
func (b *Builder) Schema() *Schema { return b.schema }

// FetchOption customizes one fetch call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	hook fetch.Hook
}

// WithRequestHook registers an observability callback invoked once per
// issued batch.
func WithRequestHook(hook func()) FetchOption {
	return func(o *fetchOptions) { o.hook = hook }
}

// Fetch returns one Row per existing id, ordered by the first occurrence of
// each id in the request. Ids of absent rows are skipped silently.
func (b *Builder) Fetch(ctx context.Context, mgr Manager, tree FetchTree, ids []string, opts ...FetchOption) ([]Row, error) {
	var options fetchOptions
	for _, opt := range opts {
		opt(&options)
	}
	rows, err := fetch.Fetch(ctx, mgr, fetch.Config{
		IDs:     b.ids,
		Dev:     b.dev,
		Logger:  b.log,
		Metrics: b.metrics,
	}, toQueryFetch(tree), ids, options.hook)
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out, nil
}

// FetchEntity is Fetch for the common case of no nested data.
func (b *Builder) FetchEntity(ctx context.Context, mgr Manager, entity *Entity, ids []string, opts ...FetchOption) ([]Row, error) {
	return b.Fetch(ctx, mgr, FetchTree{Entity: entity}, ids, opts...)
}

// SetRelation assigns the direct relation between from and to on its owning
// side, appending for many-to-many.
func (b *Builder) SetRelation(ctx context.Context, mgr Manager, from, to Ref) error {
	return relations.Set(ctx, mgr, b.log,
		relations.Ref{Entity: from.Entity, ID: from.ID},
		relations.Ref{Entity: to.Entity, ID: to.ID},
	)
}

// RemoveRelation clears the direct relations of all given pairs under
// REPEATABLE READ unless the manager is already transactional.
func (b *Builder) RemoveRelation(ctx context.Context, mgr Manager, removals []Removal) error {
	converted := make([]relations.Removal, len(removals))
	for i, removal := range removals {
		converted[i] = relations.Removal{
			From: relations.Ref{Entity: removal.From.Entity, ID: removal.From.ID},
			To:   relations.Ref{Entity: removal.To.Entity, ID: removal.To.ID},
		}
	}
	return relations.Remove(ctx, mgr, b.log, converted)
}

func toQueryFetch(tree FetchTree) querytree.Fetch {
	nested := make([]querytree.Fetch, len(tree.Nested))
	for i, child := range tree.Nested {
		nested[i] = toQueryFetch(child)
	}
	return querytree.Fetch{Entity: tree.Entity, Nested: nested}
}
