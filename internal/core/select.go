package core

import (
	"fmt"
	"strings"
	"time"

	"anchorgen/internal/sqlast"
	"anchorgen/pkg/domain"
)

// TimestampLayout renders the execution timestamp as a SQL literal.
const TimestampLayout = "2006-01-02 15:04:05"

// Target locates the materialized entity tables.
type Target struct {
	Database string
	Schema   string
}

// Table returns the fully qualified target table of a model.
func (t Target) Table(modelName string) sqlast.Table {
	return sqlast.Table{Catalog: t.Database, Schema: t.Schema, Name: modelName}
}

// BuildContext carries the per-run settings threaded through the builders.
type BuildContext struct {
	ExecutedAt time.Time
	Target     Target
	ColumnCase ColumnCase
}

func (bc BuildContext) timestamp() sqlast.Expr {
	return sqlast.Cast{Expr: sqlast.String{Value: bc.ExecutedAt.UTC().Format(TimestampLayout)}, Type: sqlast.Timestamp}
}

func (bc BuildContext) columns(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = bc.ColumnCase.Apply(c)
	}
	return out
}

// BuildSelect builds the SELECT for one (entity, source) pair.
func BuildSelect(bp Blueprint, src domain.Source, bc BuildContext) (*sqlast.Select, error) {
	if missing := src.MissingFields(bp.Kind); len(missing) > 0 {
		return nil, &ConfigError{Kind: bp.Kind, Entity: bp.Name, Fields: missing}
	}
	var lead []sqlast.Projection
	switch bp.Kind {
	case domain.KindAnchor:
		lead = []sqlast.Projection{
			sqlast.As(BuildKeyset(bp.Descriptor, src.System, bc.columns(src.Key), src.Tenant), bp.col(suffixID)),
		}
	case domain.KindTie:
		roles, err := tieRoleProjections(bp, src, bc)
		if err != nil {
			return nil, err
		}
		lead = roles
	case domain.KindAttribute:
		if bp.AnchorDescriptor == "" {
			return nil, &ConfigError{Kind: bp.Kind, Entity: bp.Name, Reason: fmt.Sprintf("unknown anchor %s", bp.AnchorMnemonic)}
		}
		value := sqlast.Expr(sqlast.Col(bc.ColumnCase.Apply(src.Value)))
		if bp.KnotMnemonic != "" {
			if bp.KnotDescriptor == "" {
				return nil, &ConfigError{Kind: bp.Kind, Entity: bp.Name, Reason: fmt.Sprintf("unknown knot %s", bp.KnotMnemonic)}
			}
			value = BuildKeyset(bp.KnotDescriptor, src.System, bc.columns([]string{src.Value}), src.Tenant)
		}
		lead = []sqlast.Projection{
			sqlast.As(BuildKeyset(bp.AnchorDescriptor, src.System, bc.columns(src.Key), src.Tenant), bp.col(suffixID)),
			sqlast.As(value, bp.col(suffixValue)),
		}
	case domain.KindKnot:
		lead = []sqlast.Projection{
			sqlast.As(BuildKeyset(bp.Descriptor, src.System, bc.columns(src.Key), src.Tenant), bp.col(suffixID)),
			sqlast.As(sqlast.Col(bc.ColumnCase.Apply(src.Value)), bp.col(suffixValue)),
		}
	default:
		return nil, &ConfigError{Kind: bp.Kind, Entity: bp.Name, Reason: "unknown entity kind"}
	}

	cols := append(lead,
		sqlast.As(sqlast.String{Value: src.System}, bp.col(suffixSystem)),
		sqlast.As(tenantExpr(src.Tenant), bp.col(suffixTenant)),
	)
	if bp.tracksChange() {
		changed := bc.timestamp()
		if src.ChangedAt != "" {
			changed = sqlast.Col(bc.ColumnCase.Apply(src.ChangedAt))
		}
		cols = append(cols, sqlast.As(changed, bp.col(suffixChangedAt)))
	}
	cols = append(cols, sqlast.As(bc.timestamp(), bp.col(suffixLoadedAt)))

	return &sqlast.Select{Columns: cols, From: sourceTable(src.Table)}, nil
}

func tieRoleProjections(bp Blueprint, src domain.Source, bc BuildContext) ([]sqlast.Projection, error) {
	out := make([]sqlast.Projection, 0, len(bp.Roles))
	for i, r := range bp.Roles {
		keys, ok := src.KeysFor(r)
		if !ok {
			return nil, &ConfigError{
				Kind:   domain.KindTie,
				Entity: bp.Name,
				Reason: fmt.Sprintf("no key mapping for role %s_%s or %s", r.Type, r.Role, r.Type),
			}
		}
		descriptor, ok := bp.RoleDescriptors[r.Type]
		if !ok {
			return nil, &ConfigError{Kind: domain.KindTie, Entity: bp.Name, Reason: fmt.Sprintf("unknown anchor %s", r.Type)}
		}
		out = append(out, sqlast.As(BuildKeyset(descriptor, src.System, bc.columns(keys), src.Tenant), bp.RoleColumn(i)))
	}
	return out, nil
}

func tenantExpr(tenant string) sqlast.Expr {
	if tenant == "" {
		return sqlast.Cast{Expr: sqlast.Null{}, Type: sqlast.Varchar}
	}
	return sqlast.String{Value: tenant}
}

// sourceTable splits dotted source table names into catalog, schema and table.
func sourceTable(name string) sqlast.Table {
	parts := strings.Split(name, ".")
	switch len(parts) {
	case 2:
		return sqlast.Table{Schema: parts[0], Name: parts[1]}
	case 3:
		return sqlast.Table{Catalog: parts[0], Schema: parts[1], Name: parts[2]}
	default:
		return sqlast.Table{Name: name}
	}
}
