// Package fetch executes compiled entity queries: it batches root ids,
// drives the stored-function cache, and hydrates the returned JSON rows.
package fetch

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/smoogly/entity-builder/builderr"
	"github.com/smoogly/entity-builder/internal/dbexec"
	"github.com/smoogly/entity-builder/internal/funcache"
	"github.com/smoogly/entity-builder/internal/logging"
	"github.com/smoogly/entity-builder/internal/metadata"
	"github.com/smoogly/entity-builder/internal/observability"
	"github.com/smoogly/entity-builder/internal/querytree"
	"github.com/smoogly/entity-builder/internal/sqlgen"
)

// Config carries the per-builder collaborators into a fetch.
type Config struct {
	IDs     *metadata.RelationIDs
	Dev     bool
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Hook is invoked once per issued batch, before its first statement.
type Hook func()

// Fetch returns one JSON row per existing id, in the first-occurrence order
// of the requested ids. Missing ids produce no row.
func Fetch(ctx context.Context, mgr dbexec.Manager, cfg Config, tree querytree.Fetch, ids []string, hook Hook) ([]map[string]any, error) {
	if len(ids) == 0 {
		return []map[string]any{}, nil
	}

	root, err := querytree.Build(tree)
	if err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "fetch.entities",
		attribute.String("db.table", root.Meta.Table),
		attribute.Int("fetch.id_count", len(ids)),
	)
	defer span.End()

	log := logging.FromContext(ctx)
	if cfg.Logger != nil {
		log = &logging.Logger{Logger: cfg.Logger}
	}
	requestID := uuid.NewString()
	log = log.WithRequestID(requestID).WithFields(slog.String("root", root.Meta.Table))
	ctx = logging.WithLogger(logging.WithRequestIDContext(ctx, requestID), log)

	unique, err := parseIDs(ids, cfg.Dev)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	sqlText, err := sqlgen.New(cfg.IDs).Compile(root)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	hash := querytree.Fingerprint(root)
	log.Debug("fetching entities", slog.Int("unique_ids", len(unique)), slog.String("tree_hash", hash))

	run := runner{cfg: cfg, log: log, root: root, sql: sqlText, hash: hash}

	var docs []json.RawMessage
	if len(unique) > funcache.MaxFnArguments && !mgr.InTransaction() {
		// Batches must stay atomic with respect to the DDL the cache may
		// issue, so a multi-batch fetch gets its own transaction. Creation
		// stays allowed: the transaction is ours, not the caller's.
		tx, err := mgr.BeginTx(ctx, nil)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		docs, err = run.batches(ctx, tx, unique, true, hook)
		if err != nil {
			_ = tx.Rollback()
			recordSpanError(span, err)
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			err = builderr.Database(err, "commit batch transaction")
			recordSpanError(span, err)
			return nil, err
		}
	} else {
		docs, err = run.batches(ctx, mgr, unique, !mgr.InTransaction(), hook)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
	}

	rows := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		var row map[string]any
		if err := json.Unmarshal(doc, &row); err != nil {
			err = builderr.Database(err, "decode result row")
			recordSpanError(span, err)
			return nil, err
		}
		rows = append(rows, row)
	}

	if err := hydrateRows(rows, root, cfg.IDs); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	if err := sortByRequested(rows, root, unique); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return rows, nil
}

// parseIDs validates and parses ids, deduplicating while preserving the
// first-seen order.
func parseIDs(ids []string, dev bool) ([]int64, error) {
	seen := make(map[int64]bool, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if dev && strings.TrimSpace(id) == "" {
			return nil, builderr.InvalidArgument("empty id in fetch request")
		}
		parsed, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, builderr.InvalidArgument("id %q is not numeric", id)
		}
		if !seen[parsed] {
			seen[parsed] = true
			unique = append(unique, parsed)
		}
	}
	return unique, nil
}

type runner struct {
	cfg  Config
	log  *logging.Logger
	root *querytree.Node
	sql  string
	hash string
}

func (r runner) batches(ctx context.Context, m dbexec.Manager, unique []int64, allowCreate bool, hook Hook) ([]json.RawMessage, error) {
	var docs []json.RawMessage
	for start := 0; start < len(unique); start += funcache.MaxFnArguments {
		end := start + funcache.MaxFnArguments
		if end > len(unique) {
			end = len(unique)
		}
		if hook != nil {
			hook()
		}
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordBatch(ctx)
		}
		batchDocs, err := r.batch(ctx, m, unique[start:end], allowCreate)
		if err != nil {
			return nil, err
		}
		docs = append(docs, batchDocs...)
	}
	return docs, nil
}

// batch probes for the stored function, creating or falling back when it is
// missing, and returns the raw JSON documents of one id batch.
func (r runner) batch(ctx context.Context, m dbexec.Manager, batch []int64, allowCreate bool) ([]json.RawMessage, error) {
	ctx, span := startSpan(ctx, "fetch.batch",
		attribute.Int("fetch.batch_size", len(batch)),
		attribute.String("fetch.request_id", logging.GetRequestID(ctx)),
	)
	defer span.End()

	fnName, err := funcache.FunctionName(r.root.Meta.Table, r.hash, len(batch))
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if err := funcache.CheckName(fnName, r.cfg.Dev); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if truncated := funcache.TruncateName(fnName); truncated != fnName {
		r.log.Warn("stored function name truncated to identifier limit", slog.String("function", fnName))
		fnName = truncated
	}

	probeArgs := make([]any, 0, len(batch)+1)
	probeArgs = append(probeArgs, fnName)
	for _, id := range batch {
		probeArgs = append(probeArgs, id)
	}
	docs, nulls, err := queryJSON(ctx, m, funcache.ProbeSQL(len(batch)), probeArgs...)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if !(len(docs) == 0 && nulls == 1) {
		// Function existed; the probe already executed it.
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordProbeHit(ctx)
		}
		return docs, nil
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordProbeMiss(ctx)
	}

	if !allowCreate {
		// CREATE FUNCTION inside a caller's transaction can deadlock with
		// concurrent creators; run the raw query instead.
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordFallbackQuery(ctx)
		}
		r.log.Debug("stored function missing inside transaction, running raw query", slog.String("function", fnName))
		inlined := strings.Replace(r.sql, sqlgen.IDPlaceholder, joinIDs(batch), 1)
		docs, _, err := queryJSON(ctx, m, funcache.WrapRaw(inlined))
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		return docs, nil
	}

	create, err := funcache.CreateFunctionSQL(fnName, r.sql, len(batch))
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if _, err := m.ExecContext(ctx, "SELECT safe_create_fn($1)", create); err != nil {
		err = builderr.Database(err, "create stored function")
		recordSpanError(span, err)
		return nil, err
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordFunctionCreation(ctx)
	}
	r.log.Debug("created stored function", slog.String("function", fnName))

	invokeArgs := make([]any, len(batch))
	for i, id := range batch {
		invokeArgs[i] = id
	}
	docs, _, err = queryJSON(ctx, m, funcache.InvokeSQL(fnName, len(batch)), invokeArgs...)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return docs, nil
}

// queryJSON runs a statement returning a single JSON column and splits the
// result into documents and NULL rows (the probe's missing-function marker).
func queryJSON(ctx context.Context, m dbexec.Manager, query string, args ...any) ([]json.RawMessage, int, error) {
	rows, err := m.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, builderr.Database(err, "query")
	}
	defer func() {
		_ = rows.Close()
	}()

	var docs []json.RawMessage
	nulls := 0
	for rows.Next() {
		var doc sql.NullString
		if err := rows.Scan(&doc); err != nil {
			return nil, 0, builderr.Database(err, "scan result row")
		}
		if !doc.Valid {
			nulls++
			continue
		}
		docs = append(docs, json.RawMessage(doc.String))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, builderr.Database(err, "iterate result rows")
	}
	return docs, nulls, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

// sortByRequested restores the caller's first-occurrence id order.
func sortByRequested(rows []map[string]any, root *querytree.Node, unique []int64) error {
	pk, err := root.Meta.PrimaryKeyColumn()
	if err != nil {
		return err
	}
	rank := make(map[int64]int, len(unique))
	for i, id := range unique {
		rank[id] = i
	}
	position := func(row map[string]any) int {
		id, ok := numericValue(row[pk.Property])
		if !ok {
			return len(unique)
		}
		pos, ok := rank[int64(id)]
		if !ok {
			return len(unique)
		}
		return pos
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return position(rows[i]) < position(rows[j])
	})
	return nil
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("entity-builder/fetch")
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
