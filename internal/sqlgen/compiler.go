// Package sqlgen compiles a query tree into a single PostgreSQL statement.
// Nested data is assembled server-side with row_to_json/json_agg under
// lateral joins, so one round-trip returns the whole requested graph; id-only
// relations are projected without materializing the related entities.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/smoogly/entity-builder/builderr"
	"github.com/smoogly/entity-builder/internal/metadata"
	"github.com/smoogly/entity-builder/internal/querytree"
	"github.com/smoogly/entity-builder/internal/sqlutil"
)

// IDPlaceholder marks the root id list in compiled SQL. The executor
// replaces it with function parameters or inlined ids.
const IDPlaceholder = ":...ids"

// Compiler turns query trees into SQL. It is stateless apart from the
// injected relation-id registry and safe for concurrent use.
type Compiler struct {
	ids *metadata.RelationIDs
}

// New creates a compiler reading id-property names from the given registry.
func New(ids *metadata.RelationIDs) *Compiler {
	return &Compiler{ids: ids}
}

// Compile emits the statement for the whole tree. The root is restricted by
// IDPlaceholder; every nested node is restricted by its parent through a
// correlated lateral subquery.
func (c *Compiler) Compile(root *querytree.Node) (string, error) {
	return c.compileNode(root, nil)
}

func (c *Compiler) compileNode(node *querytree.Node, parent *querytree.Node) (string, error) {
	pk, err := node.Meta.PrimaryKeyColumn()
	if err != nil {
		return "", err
	}

	var selects, joins, wheres []string
	for _, col := range node.Meta.Columns {
		selects = append(selects, aliased(column(node.Alias, col.Database), col.Property))
	}

	if parent == nil {
		wheres = append(wheres, fmt.Sprintf("%s IN (%s)", column(node.Alias, pk.Database), IDPlaceholder))
	} else {
		restriction, err := c.parentRestriction(node, parent, pk)
		if err != nil {
			return "", err
		}
		selects = append(selects, restriction.selects...)
		joins = append(joins, restriction.joins...)
		wheres = append(wheres, restriction.wheres...)
	}

	for _, child := range node.Children {
		var part nodePart
		var err error
		if child.Kind == querytree.IDs {
			part, err = c.idChild(node, child, pk)
		} else {
			part, err = c.dataChild(node, child, pk)
		}
		if err != nil {
			return "", err
		}
		selects = append(selects, part.selects...)
		joins = append(joins, part.joins...)
		wheres = append(wheres, part.wheres...)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(selects, ", "))
	b.WriteString("\nFROM ")
	b.WriteString(node.Meta.TablePath())
	b.WriteString(" ")
	b.WriteString(sqlutil.QuoteIdentifier(node.Alias))
	for _, join := range joins {
		b.WriteString("\n")
		b.WriteString(join)
	}
	if len(wheres) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(wheres, " AND "))
	}
	return b.String(), nil
}

// nodePart is the contribution of one child (or the parent restriction) to
// the enclosing node's clauses.
type nodePart struct {
	selects []string
	joins   []string
	wheres  []string
}

// parentRestriction limits a nested node's rows to those belonging to the
// current parent row.
func (c *Compiler) parentRestriction(node, parent *querytree.Node, pk metadata.Column) (nodePart, error) {
	rel := node.Rel
	switch rel.Kind {
	case metadata.ManyToOne, metadata.OwnerToOne:
		fk, err := singleJoinColumn(parent.Meta, rel)
		if err != nil {
			return nodePart{}, err
		}
		return nodePart{wheres: []string{
			equal(column(node.Alias, pk.Database), column(parent.Alias, fk.Database)),
		}}, nil

	case metadata.OneToOwner, metadata.OneToMany:
		parentPK, err := parent.Meta.PrimaryKeyColumn()
		if err != nil {
			return nodePart{}, err
		}
		backFK, err := node.Meta.ForeignKeyTo(parent.Meta)
		if err != nil {
			return nodePart{}, err
		}
		return nodePart{wheres: []string{
			equal(column(node.Alias, backFK.Columns[0]), column(parent.Alias, parentPK.Database)),
		}}, nil

	case metadata.ManyToMany:
		jn, err := junctionOf(parent.Meta, rel)
		if err != nil {
			return nodePart{}, err
		}
		parentPK, err := parent.Meta.PrimaryKeyColumn()
		if err != nil {
			return nodePart{}, err
		}
		jAlias := parent.Alias + "_" + node.Alias + "_junction"
		return nodePart{
			selects: []string{aliased(column(jAlias, jn.OwnerColumn), jn.HelperKey())},
			joins: []string{fmt.Sprintf(
				"LEFT JOIN %s %s ON %s",
				jn.TablePath(), sqlutil.QuoteIdentifier(jAlias),
				equal(column(jAlias, jn.InverseColumn), column(node.Alias, pk.Database)),
			)},
			wheres: []string{equal(column(jAlias, jn.OwnerColumn), column(parent.Alias, parentPK.Database))},
		}, nil

	default:
		return nodePart{}, builderr.Implementation("unhandled relation kind %s", rel.Kind)
	}
}

// idChild projects the foreign-key value(s) of a relation without fetching
// the related entity.
func (c *Compiler) idChild(node, child *querytree.Node, pk metadata.Column) (nodePart, error) {
	rel := child.Rel
	idProp, err := c.ids.IDProperty(node.Meta, rel.Property)
	if err != nil {
		return nodePart{}, err
	}

	switch rel.Kind {
	case metadata.ManyToOne, metadata.OwnerToOne:
		fk, err := singleJoinColumn(node.Meta, rel)
		if err != nil {
			return nodePart{}, err
		}
		return nodePart{selects: []string{aliased(column(node.Alias, fk.Database), idProp)}}, nil

	case metadata.OneToOwner:
		remotePK, err := child.Meta.PrimaryKeyColumn()
		if err != nil {
			return nodePart{}, err
		}
		backFK, err := child.Meta.ForeignKeyTo(node.Meta)
		if err != nil {
			return nodePart{}, err
		}
		joinAlias := child.Alias + "_join"
		sub := fmt.Sprintf(
			"SELECT %s, %s FROM %s %s WHERE %s",
			aliased(column(child.Alias, remotePK.Database), idProp),
			column(child.Alias, backFK.Columns[0]),
			child.Meta.TablePath(), sqlutil.QuoteIdentifier(child.Alias),
			equal(column(child.Alias, backFK.Columns[0]), column(node.Alias, pk.Database)),
		)
		return nodePart{
			selects: []string{aliased(column(joinAlias, idProp), idProp)},
			joins:   []string{fmt.Sprintf("LEFT JOIN LATERAL (%s) %s ON TRUE", sub, sqlutil.QuoteIdentifier(joinAlias))},
		}, nil

	case metadata.OneToMany:
		remotePK, err := child.Meta.PrimaryKeyColumn()
		if err != nil {
			return nodePart{}, err
		}
		backFK, err := child.Meta.ForeignKeyTo(node.Meta)
		if err != nil {
			return nodePart{}, err
		}
		joinAlias := child.Alias + "_join"
		fkCol := backFK.Columns[0]
		sub := fmt.Sprintf(
			"SELECT json_agg(%s) AS %s, %s FROM %s %s WHERE %s GROUP BY %s",
			column(child.Alias, remotePK.Database), sqlutil.QuoteIdentifier(idProp),
			column(child.Alias, fkCol),
			child.Meta.TablePath(), sqlutil.QuoteIdentifier(child.Alias),
			equal(column(child.Alias, fkCol), column(node.Alias, pk.Database)),
			column(child.Alias, fkCol),
		)
		return nodePart{
			selects: []string{aliased(column(joinAlias, idProp), idProp)},
			joins: []string{fmt.Sprintf(
				"LEFT JOIN LATERAL (%s) %s ON %s",
				sub, sqlutil.QuoteIdentifier(joinAlias),
				equal(column(joinAlias, fkCol), column(node.Alias, pk.Database)),
			)},
		}, nil

	case metadata.ManyToMany:
		jn, err := junctionOf(node.Meta, rel)
		if err != nil {
			return nodePart{}, err
		}
		jnAlias := node.Alias + "_" + child.Alias + "_junction"
		joinAlias := child.Alias + "_join"
		sub := fmt.Sprintf(
			"SELECT json_agg(%s) AS %s, %s FROM %s %s WHERE %s GROUP BY %s",
			column(jnAlias, jn.InverseColumn), sqlutil.QuoteIdentifier(idProp),
			column(jnAlias, jn.OwnerColumn),
			jn.TablePath(), sqlutil.QuoteIdentifier(jnAlias),
			equal(column(jnAlias, jn.OwnerColumn), column(node.Alias, pk.Database)),
			column(jnAlias, jn.OwnerColumn),
		)
		return nodePart{
			selects: []string{aliased(column(joinAlias, idProp), idProp)},
			joins: []string{fmt.Sprintf(
				"LEFT JOIN LATERAL (%s) %s ON %s",
				sub, sqlutil.QuoteIdentifier(joinAlias),
				equal(column(joinAlias, jn.OwnerColumn), column(node.Alias, pk.Database)),
			)},
		}, nil

	default:
		return nodePart{}, builderr.Implementation("unhandled relation kind %s", rel.Kind)
	}
}

// dataChild embeds a fully-fetched relation: the child subquery is compiled
// recursively and wrapped in row_to_json (to-one) or json_agg (to-many).
func (c *Compiler) dataChild(node, child *querytree.Node, pk metadata.Column) (nodePart, error) {
	rel := child.Rel
	sub, err := c.compileNode(child, node)
	if err != nil {
		return nodePart{}, err
	}
	joinAlias := child.Alias + "_join"
	prop := sqlutil.QuoteIdentifier(rel.Property)

	switch rel.Kind {
	case metadata.ManyToOne, metadata.OwnerToOne:
		childPK, err := child.Meta.PrimaryKeyColumn()
		if err != nil {
			return nodePart{}, err
		}
		fk, err := singleJoinColumn(node.Meta, rel)
		if err != nil {
			return nodePart{}, err
		}
		join := fmt.Sprintf(
			"LEFT JOIN LATERAL (SELECT row_to_json(\"t\") AS %s, %s FROM (%s) \"t\") %s ON %s",
			prop, column("t", childPK.Property),
			sub, sqlutil.QuoteIdentifier(joinAlias),
			equal(column(joinAlias, childPK.Property), column(node.Alias, fk.Database)),
		)
		return nodePart{
			selects: []string{aliased(column(joinAlias, rel.Property), rel.Property)},
			joins:   []string{join},
		}, nil

	case metadata.OneToOwner:
		backIDProp, err := c.backlinkIDProperty(child, node)
		if err != nil {
			return nodePart{}, err
		}
		join := fmt.Sprintf(
			"LEFT JOIN LATERAL (SELECT row_to_json(\"t\") AS %s, %s FROM (%s) \"t\") %s ON %s",
			prop, column("t", backIDProp),
			sub, sqlutil.QuoteIdentifier(joinAlias),
			equal(column(joinAlias, backIDProp), column(node.Alias, pk.Database)),
		)
		return nodePart{
			selects: []string{aliased(column(joinAlias, rel.Property), rel.Property)},
			joins:   []string{join},
		}, nil

	case metadata.OneToMany:
		backIDProp, err := c.backlinkIDProperty(child, node)
		if err != nil {
			return nodePart{}, err
		}
		join := fmt.Sprintf(
			"LEFT JOIN LATERAL ("+
				"SELECT json_agg(%s) AS %s, %s "+
				"FROM (SELECT %s, row_to_json(\"t\") AS \"rel\" FROM (%s) \"t\") \"a\" "+
				"WHERE %s GROUP BY %s) %s ON %s",
			column("a", "rel"), prop, column("a", backIDProp),
			column("t", backIDProp), sub,
			equal(column("a", backIDProp), column(node.Alias, pk.Database)),
			column("a", backIDProp),
			sqlutil.QuoteIdentifier(joinAlias),
			equal(column(joinAlias, backIDProp), column(node.Alias, pk.Database)),
		)
		return nodePart{
			selects: []string{aliased(column(joinAlias, rel.Property), rel.Property)},
			joins:   []string{join},
		}, nil

	case metadata.ManyToMany:
		jn, err := junctionOf(node.Meta, rel)
		if err != nil {
			return nodePart{}, err
		}
		helper := jn.HelperKey()
		join := fmt.Sprintf(
			"LEFT JOIN LATERAL ("+
				"SELECT json_agg(row_to_json(\"a\")) AS %s, %s "+
				"FROM (%s) \"a\" GROUP BY %s) %s ON %s",
			prop, column("a", helper),
			sub, column("a", helper),
			sqlutil.QuoteIdentifier(joinAlias),
			equal(column(joinAlias, helper), column(node.Alias, pk.Database)),
		)
		return nodePart{
			selects: []string{aliased(column(joinAlias, rel.Property), rel.Property)},
			joins:   []string{join},
		}, nil

	default:
		return nodePart{}, builderr.Implementation("unhandled relation kind %s", rel.Kind)
	}
}

// backlinkIDProperty resolves the projected id property of the child's
// relation pointing back at the parent. The child subquery always projects
// it, because the backlink is an FK-owning relation rendered as an ids leaf.
func (c *Compiler) backlinkIDProperty(child, node *querytree.Node) (string, error) {
	backRel, err := child.Meta.RelationTo(node.Meta)
	if err != nil {
		return "", err
	}
	return c.ids.IDProperty(child.Meta, backRel.Property)
}

func singleJoinColumn(owner *metadata.Entity, rel *metadata.Relation) (metadata.JoinColumn, error) {
	if len(rel.JoinColumns) != 1 {
		return metadata.JoinColumn{}, builderr.UnsupportedComposite("relation %s of %s has %d join columns", rel.Property, owner.Name, len(rel.JoinColumns))
	}
	return rel.JoinColumns[0], nil
}

func junctionOf(owner *metadata.Entity, rel *metadata.Relation) (*metadata.Junction, error) {
	if rel.Junction == nil {
		return nil, builderr.Schema("many-to-many relation %s of %s has no junction", rel.Property, owner.Name)
	}
	return rel.Junction, nil
}

func column(alias, name string) string {
	return sqlutil.QuoteIdentifier(alias) + "." + sqlutil.QuoteIdentifier(name)
}

func aliased(expr, as string) string {
	return expr + " AS " + sqlutil.QuoteIdentifier(as)
}

func equal(left, right string) string {
	return left + " = " + right
}
