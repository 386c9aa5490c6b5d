package sqlast

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// rankColumn and rankedAlias name the helper column and derived table emitted
// when QUALIFY is rewritten for dialects without native support.
const (
	rankColumn  = "_rn"
	rankedAlias = "_ranked"
)

// ErrUnsupported is returned when a tree cannot be expressed in a dialect.
var ErrUnsupported = errors.New("sqlast: unsupported construct")

// Render renders q as SQL text for dialect d.
func Render(q Query, d Dialect) (string, error) {
	r := &renderer{d: d}
	r.query(q)
	if r.err != nil {
		return "", r.err
	}
	return r.b.String(), nil
}

// RenderExpr renders a scalar expression for dialect d.
func RenderExpr(e Expr, d Dialect) (string, error) {
	r := &renderer{d: d}
	r.expr(e)
	if r.err != nil {
		return "", r.err
	}
	return r.b.String(), nil
}

// RenderInsert renders INSERT INTO table (columns) followed by q. For dialects
// other than DuckDB a leading WITH clause is hoisted in front of INSERT.
func RenderInsert(table Table, columns []string, q Query, d Dialect) (string, error) {
	r := &renderer{d: d}
	body := q
	if sel, ok := q.(*Select); ok && len(sel.With) > 0 && d.Name != DuckDB.Name {
		r.with(sel.With)
		r.b.WriteByte('\n')
		cp := *sel
		cp.With = nil
		body = &cp
	}
	r.b.WriteString("INSERT INTO ")
	r.table(table)
	r.b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			r.b.WriteString(", ")
		}
		r.b.WriteString(QuoteIdent(c))
	}
	r.b.WriteString(")\n")
	r.query(body)
	if r.err != nil {
		return "", r.err
	}
	return r.b.String(), nil
}

type renderer struct {
	d   Dialect
	b   strings.Builder
	err error
}

func (r *renderer) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *renderer) query(q Query) {
	switch n := q.(type) {
	case *Select:
		r.selectStmt(n)
	case *Union:
		r.unionSide(n.Left)
		if n.All {
			r.b.WriteString("\nUNION ALL\n")
		} else {
			r.b.WriteString("\nUNION\n")
		}
		r.unionSide(n.Right)
	case nil:
		r.fail(errors.New("sqlast: nil query"))
	default:
		r.fail(fmt.Errorf("%w: query node %T", ErrUnsupported, q))
	}
}

func (r *renderer) unionSide(q Query) {
	if sel, ok := q.(*Select); ok && len(sel.With) > 0 {
		r.b.WriteString("(\n")
		r.query(q)
		r.b.WriteString("\n)")
		return
	}
	r.query(q)
}

func (r *renderer) with(ctes []CTE) {
	r.b.WriteString("WITH ")
	for i, c := range ctes {
		if i > 0 {
			r.b.WriteString(", ")
		}
		r.b.WriteString(QuoteIdent(c.Name))
		r.b.WriteString(" AS (\n")
		r.query(c.Query)
		r.b.WriteString("\n)")
	}
}

func (r *renderer) selectStmt(s *Select) {
	if s.Qualify != nil && !r.d.Qualify {
		rewritten, err := rewriteQualify(s)
		if err != nil {
			r.fail(err)
			return
		}
		s = rewritten
	}
	if len(s.With) > 0 {
		r.with(s.With)
		r.b.WriteByte('\n')
	}
	if len(s.Columns) == 0 {
		r.fail(errors.New("sqlast: select without columns"))
		return
	}
	if s.From == nil {
		r.fail(errors.New("sqlast: select without FROM"))
		return
	}
	r.b.WriteString("SELECT ")
	for i, p := range s.Columns {
		if i > 0 {
			r.b.WriteString(", ")
		}
		r.expr(p.Expr)
		if p.Alias != "" {
			r.b.WriteString(" AS ")
			r.b.WriteString(QuoteIdent(p.Alias))
		}
	}
	r.b.WriteString("\nFROM ")
	r.fromItem(s.From)

	where := s.Where
	for _, j := range s.Joins {
		r.b.WriteByte('\n')
		kind := j.Kind
		if kind == AntiJoin && !r.d.AntiJoin {
			probe, ok := firstColumnOf(j.On, j.Table.RefName())
			if !ok {
				r.fail(fmt.Errorf("%w: anti join on %s needs a column of the joined table", ErrUnsupported, j.Table.RefName()))
				return
			}
			where = conjoin(where, IsNull{Expr: probe})
			kind = LeftJoin
		}
		switch kind {
		case AntiJoin:
			r.b.WriteString("ANTI JOIN ")
		case LeftJoin:
			r.b.WriteString("LEFT JOIN ")
		default:
			r.b.WriteString("JOIN ")
		}
		r.table(j.Table)
		if j.On != nil {
			r.b.WriteString(" ON ")
			r.expr(j.On)
		}
	}
	if where != nil {
		r.b.WriteString("\nWHERE ")
		r.expr(where)
	}
	if s.Qualify != nil {
		r.b.WriteString("\nQUALIFY ")
		r.expr(s.Qualify)
	}
}

func (r *renderer) fromItem(f FromItem) {
	switch n := f.(type) {
	case Table:
		r.table(n)
	case Subquery:
		r.b.WriteString("(\n")
		r.query(n.Query)
		r.b.WriteString("\n)")
		if n.Alias != "" {
			r.b.WriteString(" AS ")
			r.b.WriteString(QuoteIdent(n.Alias))
		}
	default:
		r.fail(fmt.Errorf("%w: from item %T", ErrUnsupported, f))
	}
}

func (r *renderer) table(t Table) {
	if t.Name == "" {
		r.fail(errors.New("sqlast: table without name"))
		return
	}
	r.b.WriteString(t.QualifiedName())
	if t.Alias != "" {
		r.b.WriteString(" AS ")
		r.b.WriteString(QuoteIdent(t.Alias))
	}
}

func (r *renderer) expr(e Expr) {
	switch n := e.(type) {
	case String:
		r.b.WriteString(QuoteString(n.Value))
	case Number:
		r.b.WriteString(strconv.FormatInt(n.Value, 10))
	case Null:
		r.b.WriteString("NULL")
	case Column:
		if n.Table != "" {
			r.b.WriteString(QuoteIdent(n.Table))
			r.b.WriteByte('.')
		}
		r.b.WriteString(QuoteIdent(n.Name))
	case Cast:
		r.b.WriteString("CAST(")
		r.expr(n.Expr)
		r.b.WriteString(" AS ")
		r.b.WriteString(r.d.TypeName(n.Type))
		r.b.WriteByte(')')
	case Concat:
		if len(n.Parts) == 0 {
			r.fail(errors.New("sqlast: empty concat"))
			return
		}
		r.b.WriteByte('(')
		for i, p := range n.Parts {
			if i > 0 {
				r.b.WriteString(" || ")
			}
			r.expr(p)
		}
		r.b.WriteByte(')')
	case Coalesce:
		if len(n.Args) == 0 {
			r.fail(errors.New("sqlast: empty coalesce"))
			return
		}
		r.b.WriteString("COALESCE(")
		for i, a := range n.Args {
			if i > 0 {
				r.b.WriteString(", ")
			}
			r.expr(a)
		}
		r.b.WriteByte(')')
	case Eq:
		r.expr(n.Left)
		r.b.WriteString(" = ")
		r.expr(n.Right)
	case And:
		for i, t := range n.Terms {
			if i > 0 {
				r.b.WriteString(" AND ")
			}
			r.expr(t)
		}
	case IsNull:
		r.expr(n.Expr)
		r.b.WriteString(" IS NULL")
	case RowNumber:
		r.b.WriteString("ROW_NUMBER() OVER (")
		sep := ""
		if len(n.PartitionBy) > 0 {
			r.b.WriteString("PARTITION BY ")
			for i, p := range n.PartitionBy {
				if i > 0 {
					r.b.WriteString(", ")
				}
				r.expr(p)
			}
			sep = " "
		}
		if len(n.OrderBy) > 0 {
			r.b.WriteString(sep)
			r.b.WriteString("ORDER BY ")
			for i, o := range n.OrderBy {
				if i > 0 {
					r.b.WriteString(", ")
				}
				r.expr(o.Expr)
				if o.Desc {
					r.b.WriteString(" DESC")
				}
			}
		}
		r.b.WriteByte(')')
	case nil:
		r.fail(errors.New("sqlast: nil expression"))
	default:
		r.fail(fmt.Errorf("%w: expression %T", ErrUnsupported, e))
	}
}

// rewriteQualify turns SELECT cols FROM f QUALIFY ROW_NUMBER() ... = n into
// SELECT cols FROM (SELECT cols, ROW_NUMBER() ... AS _rn FROM f) WHERE _rn = n.
func rewriteQualify(s *Select) (*Select, error) {
	eq, ok := s.Qualify.(Eq)
	if !ok {
		return nil, fmt.Errorf("%w: QUALIFY must compare ROW_NUMBER() for dialects without QUALIFY", ErrUnsupported)
	}
	window, bound := eq.Left, eq.Right
	if _, isRank := window.(RowNumber); !isRank {
		window, bound = eq.Right, eq.Left
	}
	if _, isRank := window.(RowNumber); !isRank {
		return nil, fmt.Errorf("%w: QUALIFY without ROW_NUMBER()", ErrUnsupported)
	}
	inner := &Select{
		Columns: append(append([]Projection{}, s.Columns...), As(window, rankColumn)),
		From:    s.From,
		Joins:   s.Joins,
		Where:   s.Where,
	}
	outerCols := make([]Projection, 0, len(s.Columns))
	for _, p := range s.Columns {
		name := p.OutputName()
		if name == "" {
			return nil, fmt.Errorf("%w: QUALIFY rewrite needs named projections", ErrUnsupported)
		}
		outerCols = append(outerCols, Projection{Expr: QCol(rankedAlias, name)})
	}
	return &Select{
		With:    s.With,
		Columns: outerCols,
		From:    Subquery{Query: inner, Alias: rankedAlias},
		Where:   Eq{Left: QCol(rankedAlias, rankColumn), Right: bound},
	}, nil
}

func firstColumnOf(e Expr, table string) (Column, bool) {
	switch n := e.(type) {
	case Column:
		if n.Table == table {
			return n, true
		}
	case Eq:
		if c, ok := firstColumnOf(n.Left, table); ok {
			return c, true
		}
		return firstColumnOf(n.Right, table)
	case And:
		for _, t := range n.Terms {
			if c, ok := firstColumnOf(t, table); ok {
				return c, true
			}
		}
	}
	return Column{}, false
}

func conjoin(where Expr, term Expr) Expr {
	switch w := where.(type) {
	case nil:
		return term
	case And:
		return And{Terms: append(append([]Expr{}, w.Terms...), term)}
	default:
		return And{Terms: []Expr{where, term}}
	}
}
