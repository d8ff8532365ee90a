// Package relations mutates associations between entities: assigning a
// relation on its owning side and removing relations in grouped statements.
package relations

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/smoogly/entity-builder/builderr"
	"github.com/smoogly/entity-builder/internal/dbexec"
	"github.com/smoogly/entity-builder/internal/metadata"
	"github.com/smoogly/entity-builder/internal/sqlutil"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Ref names one entity row.
type Ref struct {
	Entity *metadata.Entity
	ID     string
}

// Removal asks for the direct relation between two rows to be cleared.
type Removal struct {
	From Ref
	To   Ref
}

// Set assigns the direct relation between from and to on its owning side.
// Many-to-many assignment appends a junction row; re-assigning an existing
// pair is a no-op.
func Set(ctx context.Context, mgr dbexec.Manager, log *slog.Logger, from, to Ref) error {
	rel, err := from.Entity.RelationTo(to.Entity)
	if err != nil {
		return err
	}
	fromID, err := parseID(from)
	if err != nil {
		return err
	}
	toID, err := parseID(to)
	if err != nil {
		return err
	}

	if err := ensureExists(ctx, mgr, from.Entity, fromID); err != nil {
		return err
	}
	if err := ensureExists(ctx, mgr, to.Entity, toID); err != nil {
		return err
	}

	switch rel.Kind {
	case metadata.ManyToOne, metadata.OwnerToOne:
		fk, err := owningJoinColumn(from.Entity, rel)
		if err != nil {
			return err
		}
		return assignForeignKey(ctx, mgr, from.Entity, fk.Database, fromID, toID)

	case metadata.OneToOwner, metadata.OneToMany:
		backFK, err := to.Entity.ForeignKeyTo(from.Entity)
		if err != nil {
			return err
		}
		return assignForeignKey(ctx, mgr, to.Entity, backFK.Columns[0], toID, fromID)

	case metadata.ManyToMany:
		jn := rel.Junction
		if jn == nil {
			return builderr.Schema("many-to-many relation %s of %s has no junction", rel.Property, from.Entity.Name)
		}
		query, args, err := psql.
			Insert(jn.TablePath()).
			Columns(sqlutil.QuoteIdentifier(jn.OwnerColumn), sqlutil.QuoteIdentifier(jn.InverseColumn)).
			Values(fromID, toID).
			Suffix("ON CONFLICT DO NOTHING").
			ToSql()
		if err != nil {
			return builderr.Implementation("build junction insert: %v", err)
		}
		if _, err := mgr.ExecContext(ctx, query, args...); err != nil {
			return builderr.Database(err, "insert junction row")
		}
		if log != nil {
			log.Debug("linked entities through junction",
				slog.String("junction", jn.Table),
				slog.Int64("from", fromID),
				slog.Int64("to", toID),
			)
		}
		return nil

	default:
		return builderr.Implementation("unhandled relation kind %s", rel.Kind)
	}
}

// Remove clears the direct relations of all given pairs. FK-backed removals
// null the owning column; junction-backed ones delete the junction rows.
// Statements are grouped per table and column to minimize round-trips, and
// everything runs under REPEATABLE READ unless the caller already opened a
// transaction.
func Remove(ctx context.Context, mgr dbexec.Manager, log *slog.Logger, removals []Removal) error {
	if len(removals) == 0 {
		return nil
	}

	if !mgr.InTransaction() {
		tx, err := mgr.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
		if err != nil {
			return err
		}
		if err := Remove(ctx, tx, log, removals); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return builderr.Database(err, "commit relation removal")
		}
		return nil
	}

	if err := verifyAllExist(ctx, mgr, removals); err != nil {
		return err
	}

	// local FK updates grouped by (table, column); junction deletes grouped
	// by junction table.
	type fkGroup struct {
		entity *metadata.Entity
		column string
		ids    []int64
	}
	type junctionGroup struct {
		junction *metadata.Junction
		pairs    [][2]int64
	}
	fkGroups := map[string]*fkGroup{}
	junctionGroups := map[string]*junctionGroup{}
	var fkOrder, junctionOrder []string

	for _, removal := range removals {
		rel, err := removal.From.Entity.RelationTo(removal.To.Entity)
		if err != nil {
			return err
		}
		fromID, err := parseID(removal.From)
		if err != nil {
			return err
		}
		toID, err := parseID(removal.To)
		if err != nil {
			return err
		}

		switch rel.Kind {
		case metadata.ManyToOne, metadata.OwnerToOne:
			fk, err := owningJoinColumn(removal.From.Entity, rel)
			if err != nil {
				return err
			}
			key := removal.From.Entity.Table + "." + fk.Database
			group, ok := fkGroups[key]
			if !ok {
				group = &fkGroup{entity: removal.From.Entity, column: fk.Database}
				fkGroups[key] = group
				fkOrder = append(fkOrder, key)
			}
			group.ids = append(group.ids, fromID)

		case metadata.OneToOwner, metadata.OneToMany:
			backFK, err := removal.To.Entity.ForeignKeyTo(removal.From.Entity)
			if err != nil {
				return err
			}
			key := removal.To.Entity.Table + "." + backFK.Columns[0]
			group, ok := fkGroups[key]
			if !ok {
				group = &fkGroup{entity: removal.To.Entity, column: backFK.Columns[0]}
				fkGroups[key] = group
				fkOrder = append(fkOrder, key)
			}
			group.ids = append(group.ids, toID)

		case metadata.ManyToMany:
			jn := rel.Junction
			if jn == nil {
				return builderr.Schema("many-to-many relation %s of %s has no junction", rel.Property, removal.From.Entity.Name)
			}
			group, ok := junctionGroups[jn.Table]
			if !ok {
				group = &junctionGroup{junction: jn}
				junctionGroups[jn.Table] = group
				junctionOrder = append(junctionOrder, jn.Table)
			}
			group.pairs = append(group.pairs, [2]int64{fromID, toID})

		default:
			return builderr.Implementation("unhandled relation kind %s", rel.Kind)
		}
	}

	for _, key := range fkOrder {
		group := fkGroups[key]
		pk, err := group.entity.PrimaryKeyColumn()
		if err != nil {
			return err
		}
		query, args, err := psql.
			Update(group.entity.TablePath()).
			Set(sqlutil.QuoteIdentifier(group.column), nil).
			Where(sq.Eq{sqlutil.QuoteIdentifier(pk.Database): group.ids}).
			ToSql()
		if err != nil {
			return builderr.Implementation("build relation update: %v", err)
		}
		if _, err := mgr.ExecContext(ctx, query, args...); err != nil {
			return builderr.Database(err, "clear foreign keys")
		}
	}

	for _, table := range junctionOrder {
		group := junctionGroups[table]
		tupleSQL, args := tupleIn(
			[]string{group.junction.OwnerColumn, group.junction.InverseColumn},
			group.pairs,
		)
		query, queryArgs, err := psql.
			Delete(group.junction.TablePath()).
			Where(sq.Expr(tupleSQL, args...)).
			ToSql()
		if err != nil {
			return builderr.Implementation("build junction delete: %v", err)
		}
		if _, err := mgr.ExecContext(ctx, query, queryArgs...); err != nil {
			return builderr.Database(err, "delete junction rows")
		}
	}

	if log != nil {
		log.Debug("removed relations",
			slog.Int("fk_updates", len(fkOrder)),
			slog.Int("junction_deletes", len(junctionOrder)),
		)
	}
	return nil
}

// assignForeignKey sets the owning FK column and checks the write-back
// invariant: the updated row must be the one addressed.
func assignForeignKey(ctx context.Context, mgr dbexec.Manager, owner *metadata.Entity, column string, rowID, value int64) error {
	pk, err := owner.PrimaryKeyColumn()
	if err != nil {
		return err
	}
	query, args, err := psql.
		Update(owner.TablePath()).
		Set(sqlutil.QuoteIdentifier(column), value).
		Where(sq.Eq{sqlutil.QuoteIdentifier(pk.Database): rowID}).
		Suffix("RETURNING " + sqlutil.QuoteIdentifier(pk.Database)).
		ToSql()
	if err != nil {
		return builderr.Implementation("build relation update: %v", err)
	}

	rows, err := mgr.QueryContext(ctx, query, args...)
	if err != nil {
		return builderr.Database(err, "assign relation")
	}
	defer func() {
		_ = rows.Close()
	}()

	if !rows.Next() {
		return builderr.NotFound("%s id %d disappeared during relation assignment", owner.Name, rowID)
	}
	var saved int64
	if err := rows.Scan(&saved); err != nil {
		return builderr.Database(err, "scan updated id")
	}
	if saved != rowID {
		return builderr.Implementation("saved %s id %d does not match input id %d", owner.Name, saved, rowID)
	}
	return rows.Err()
}

// verifyAllExist checks every referenced row in one query per table.
func verifyAllExist(ctx context.Context, mgr dbexec.Manager, removals []Removal) error {
	type tableIDs struct {
		entity *metadata.Entity
		ids    map[int64]bool
	}
	byTable := map[string]*tableIDs{}
	var order []string

	collect := func(ref Ref) error {
		id, err := parseID(ref)
		if err != nil {
			return err
		}
		group, ok := byTable[ref.Entity.Table]
		if !ok {
			group = &tableIDs{entity: ref.Entity, ids: map[int64]bool{}}
			byTable[ref.Entity.Table] = group
			order = append(order, ref.Entity.Table)
		}
		group.ids[id] = true
		return nil
	}
	for _, removal := range removals {
		if err := collect(removal.From); err != nil {
			return err
		}
		if err := collect(removal.To); err != nil {
			return err
		}
	}

	for _, table := range order {
		group := byTable[table]
		pk, err := group.entity.PrimaryKeyColumn()
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(group.ids))
		for id := range group.ids {
			ids = append(ids, id)
		}
		query, args, err := psql.
			Select(sqlutil.QuoteIdentifier(pk.Database)).
			From(group.entity.TablePath()).
			Where(sq.Eq{sqlutil.QuoteIdentifier(pk.Database): ids}).
			ToSql()
		if err != nil {
			return builderr.Implementation("build existence check: %v", err)
		}
		rows, err := mgr.QueryContext(ctx, query, args...)
		if err != nil {
			return builderr.Database(err, "check entity existence")
		}
		found := map[int64]bool{}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return builderr.Database(err, "scan existence check")
			}
			found[id] = true
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return builderr.Database(err, "iterate existence check")
		}
		_ = rows.Close()
		for id := range group.ids {
			if !found[id] {
				return builderr.NotFound("%s id %d does not exist", group.entity.Name, id)
			}
		}
	}
	return nil
}

func ensureExists(ctx context.Context, mgr dbexec.Manager, entity *metadata.Entity, id int64) error {
	pk, err := entity.PrimaryKeyColumn()
	if err != nil {
		return err
	}
	query, args, err := psql.
		Select(sqlutil.QuoteIdentifier(pk.Database)).
		From(entity.TablePath()).
		Where(sq.Eq{sqlutil.QuoteIdentifier(pk.Database): id}).
		ToSql()
	if err != nil {
		return builderr.Implementation("build existence check: %v", err)
	}
	rows, err := mgr.QueryContext(ctx, query, args...)
	if err != nil {
		return builderr.Database(err, "check entity existence")
	}
	defer func() {
		_ = rows.Close()
	}()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return builderr.Database(err, "check entity existence")
		}
		return builderr.NotFound("%s id %d does not exist", entity.Name, id)
	}
	return nil
}

// tupleIn renders "(a, b) IN ((?,?), (?,?))" for grouped junction deletes.
func tupleIn(columns []string, tuples [][2]int64) (string, []any) {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = sqlutil.QuoteIdentifier(col)
	}
	args := make([]any, 0, len(tuples)*2)
	rows := make([]string, len(tuples))
	for i, tuple := range tuples {
		rows[i] = "(?,?)"
		args = append(args, tuple[0], tuple[1])
	}
	return fmt.Sprintf("(%s) IN (%s)", strings.Join(quoted, ", "), strings.Join(rows, ", ")), args
}

func owningJoinColumn(owner *metadata.Entity, rel metadata.Relation) (metadata.JoinColumn, error) {
	if len(rel.JoinColumns) != 1 {
		return metadata.JoinColumn{}, builderr.UnsupportedComposite("relation %s of %s has %d join columns", rel.Property, owner.Name, len(rel.JoinColumns))
	}
	return rel.JoinColumns[0], nil
}

func parseID(ref Ref) (int64, error) {
	if ref.Entity == nil {
		return 0, builderr.InvalidArgument("relation reference has no entity")
	}
	id, err := strconv.ParseInt(ref.ID, 10, 64)
	if err != nil {
		return 0, builderr.InvalidArgument("id %q of %s is not numeric", ref.ID, ref.Entity.Name)
	}
	return id, nil
}
