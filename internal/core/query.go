package core

import (
	"anchorgen/internal/sqlast"
	"anchorgen/pkg/domain"
)

// Compiled is the generated query of one entity plus the schema metadata the
// materialization side needs.
type Compiled struct {
	Blueprint  Blueprint      `json:"blueprint"`
	Target     sqlast.Table   `json:"-"`
	Query      *sqlast.Select `json:"-"`
	UniqueKeys []string       `json:"unique_keys"`
	Columns    []OutputColumn `json:"columns"`
}

// BuildQuery compiles the incremental query for one blueprint.
func BuildQuery(bp Blueprint, bc BuildContext) (Compiled, error) {
	switch bp.Kind {
	case domain.KindAnchor, domain.KindTie, domain.KindAttribute, domain.KindKnot:
	default:
		return Compiled{}, &ConfigError{Kind: bp.Kind, Entity: bp.Name, Reason: "unknown entity kind"}
	}
	if len(bp.Sources) == 0 {
		return Compiled{}, noSources(bp.Kind, bp.Name)
	}
	selects := make([]sqlast.Query, 0, len(bp.Sources))
	for _, src := range bp.Sources {
		sel, err := BuildSelect(bp, src, bc)
		if err != nil {
			return Compiled{}, err
		}
		selects = append(selects, sel)
	}
	target := bc.Target.Table(bp.ModelName)
	columns := bp.Columns()
	keys := bp.UniqueKeys()
	q, err := BuildIncremental(CombineSelects(selects), target, keys, bp.RankColumns(), columns)
	if err != nil {
		return Compiled{}, err
	}
	return Compiled{Blueprint: bp, Target: target, Query: q, UniqueKeys: keys, Columns: columns}, nil
}

// SQL renders the compiled query for a dialect.
func (c Compiled) SQL(d sqlast.Dialect) (string, error) {
	return sqlast.Render(c.Query, d)
}

// InsertSQL renders INSERT INTO target (columns) followed by the query.
func (c Compiled) InsertSQL(d sqlast.Dialect) (string, error) {
	names := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.Name
	}
	return sqlast.RenderInsert(c.Target, names, c.Query, d)
}

// CreateTableSQL renders the DDL of the target table from the output schema.
func (c Compiled) CreateTableSQL(d sqlast.Dialect) (string, error) {
	defs := make([]sqlast.ColumnDef, len(c.Columns))
	for i, col := range c.Columns {
		defs[i] = sqlast.ColumnDef{Name: col.Name, Type: col.Type}
	}
	return sqlast.RenderCreateTable(c.Target, defs, d)
}
