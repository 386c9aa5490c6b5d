package core

import (
	"errors"

	"anchorgen/internal/sqlast"
)

// CTE names used by the incremental query.
const (
	cteTarget = "target"
	cteSource = "source"
)

// BuildIncremental wraps feed in the anti-join pattern:
//
//	WITH target AS (SELECT keys FROM <target> QUALIFY ROW_NUMBER() OVER
//	                (PARTITION BY keys ORDER BY rank DESC...) = 1),
//	     source AS (<feed>)
//	SELECT CAST(source.col AS type) AS col, ... FROM source ANTI JOIN target ON keys
//
// Only feed rows whose unique key tuple is absent from the target survive.
func BuildIncremental(feed sqlast.Query, target sqlast.Table, uniqueKeys, rankBy []string, columns []OutputColumn) (*sqlast.Select, error) {
	if feed == nil {
		return nil, errors.New("incremental query needs a source feed")
	}
	if len(uniqueKeys) == 0 {
		return nil, errors.New("incremental query needs at least one unique key")
	}
	if len(columns) == 0 {
		return nil, errors.New("incremental query needs an output schema")
	}

	keys := make([]sqlast.Expr, len(uniqueKeys))
	keyCols := make([]sqlast.Projection, len(uniqueKeys))
	on := make([]sqlast.Expr, len(uniqueKeys))
	for i, k := range uniqueKeys {
		keys[i] = sqlast.Col(k)
		keyCols[i] = sqlast.Projection{Expr: sqlast.Col(k)}
		on[i] = sqlast.Eq{Left: sqlast.QCol(cteSource, k), Right: sqlast.QCol(cteTarget, k)}
	}
	order := make([]sqlast.OrderTerm, len(rankBy))
	for i, c := range rankBy {
		order[i] = sqlast.OrderTerm{Expr: sqlast.Col(c), Desc: true}
	}

	current := &sqlast.Select{
		Columns: keyCols,
		From:    target,
		Qualify: sqlast.Eq{
			Left:  sqlast.RowNumber{PartitionBy: keys, OrderBy: order},
			Right: sqlast.Number{Value: 1},
		},
	}

	outer := make([]sqlast.Projection, len(columns))
	for i, c := range columns {
		outer[i] = sqlast.As(sqlast.Cast{Expr: sqlast.QCol(cteSource, c.Name), Type: c.Type}, c.Name)
	}

	var cond sqlast.Expr = on[0]
	if len(on) > 1 {
		cond = sqlast.And{Terms: on}
	}

	return &sqlast.Select{
		With:    []sqlast.CTE{{Name: cteTarget, Query: current}, {Name: cteSource, Query: feed}},
		Columns: outer,
		From:    sqlast.Table{Name: cteSource},
		Joins:   []sqlast.Join{{Kind: sqlast.AntiJoin, Table: sqlast.Table{Name: cteTarget}, On: cond}},
	}, nil
}
