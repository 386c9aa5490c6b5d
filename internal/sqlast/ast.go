// Package sqlast models generated queries as an expression tree and renders
// them for a target SQL dialect. Identifiers are always quoted and string
// literals escaped by the renderer, never by callers.
package sqlast

import "strings"

// DataType names a column type in dialect-neutral form.
type DataType string

// Data types used by generated queries.
const (
	Varchar   DataType = "VARCHAR"
	Timestamp DataType = "TIMESTAMP"
	Bigint    DataType = "BIGINT"
)

// Expr is a scalar expression.
type Expr interface{ isExpr() }

// Query is a row-producing statement: a Select or a Union.
type Query interface{ isQuery() }

// FromItem is anything a SELECT can read from.
type FromItem interface{ isFromItem() }

// String is a string literal.
type String struct{ Value string }

// Number is an integer literal.
type Number struct{ Value int64 }

// Null is the SQL NULL literal.
type Null struct{}

// Column references a column, optionally qualified by a table or CTE name.
type Column struct {
	Table string
	Name  string
}

// Cast converts an expression to a data type.
type Cast struct {
	Expr Expr
	Type DataType
}

// Concat concatenates string expressions in order.
type Concat struct{ Parts []Expr }

// Coalesce returns the first non-NULL argument.
type Coalesce struct{ Args []Expr }

// Eq is an equality comparison.
type Eq struct{ Left, Right Expr }

// And is a conjunction of terms.
type And struct{ Terms []Expr }

// IsNull tests an expression for NULL.
type IsNull struct{ Expr Expr }

// OrderTerm is one ORDER BY element.
type OrderTerm struct {
	Expr Expr
	Desc bool
}

// RowNumber is the ROW_NUMBER() window function.
type RowNumber struct {
	PartitionBy []Expr
	OrderBy     []OrderTerm
}

func (String) isExpr()    {}
func (Number) isExpr()    {}
func (Null) isExpr()      {}
func (Column) isExpr()    {}
func (Cast) isExpr()      {}
func (Concat) isExpr()    {}
func (Coalesce) isExpr()  {}
func (Eq) isExpr()        {}
func (And) isExpr()       {}
func (IsNull) isExpr()    {}
func (RowNumber) isExpr() {}

// Projection is one output column of a SELECT.
type Projection struct {
	Expr  Expr
	Alias string
}

// OutputName is the name the projection is visible under in enclosing queries.
func (p Projection) OutputName() string {
	if p.Alias != "" {
		return p.Alias
	}
	if c, ok := p.Expr.(Column); ok {
		return c.Name
	}
	return ""
}

// Table references a physical table or a CTE.
type Table struct {
	Catalog string
	Schema  string
	Name    string
	Alias   string
}

// RefName is the name other clauses use to qualify columns of this table.
func (t Table) RefName() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

// QualifiedName renders the quoted catalog.schema.name of t without alias.
func (t Table) QualifiedName() string {
	var b strings.Builder
	for _, part := range []string{t.Catalog, t.Schema} {
		if part != "" {
			b.WriteString(QuoteIdent(part))
			b.WriteByte('.')
		}
	}
	b.WriteString(QuoteIdent(t.Name))
	return b.String()
}

// Subquery is a derived table.
type Subquery struct {
	Query Query
	Alias string
}

func (Table) isFromItem()    {}
func (Subquery) isFromItem() {}

// JoinKind selects the join operator.
type JoinKind int

// Supported joins.
const (
	InnerJoin JoinKind = iota
	LeftJoin
	// AntiJoin keeps left rows without a match on the right.
	AntiJoin
)

// Join attaches a table to the FROM clause.
type Join struct {
	Kind  JoinKind
	Table Table
	On    Expr
}

// CTE is one named sub-query of a WITH clause.
type CTE struct {
	Name  string
	Query Query
}

// Select is a SELECT statement, optionally with CTEs and a QUALIFY filter.
type Select struct {
	With    []CTE
	Columns []Projection
	From    FromItem
	Joins   []Join
	Where   Expr
	Qualify Expr
}

// Union combines two queries. All keeps duplicate rows.
type Union struct {
	Left  Query
	Right Query
	All   bool
}

func (*Select) isQuery() {}
func (*Union) isQuery()  {}

// Col is shorthand for an unqualified column reference.
func Col(name string) Column { return Column{Name: name} }

// QCol is shorthand for a qualified column reference.
func QCol(table, name string) Column { return Column{Table: table, Name: name} }

// As projects expr under alias.
func As(expr Expr, alias string) Projection { return Projection{Expr: expr, Alias: alias} }

// CountUnions returns the number of UNION operators in q.
func CountUnions(q Query) int {
	u, ok := q.(*Union)
	if !ok {
		return 0
	}
	return 1 + CountUnions(u.Left) + CountUnions(u.Right)
}
