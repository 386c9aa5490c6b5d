// Package warehouse is the entry point for applying compiled runs to a
// database. It is the only package allowed to import the infra warehouse
// drivers.
package warehouse

import (
	"context"
	"fmt"

	"anchorgen/internal/config"
	"anchorgen/internal/core"
	infra "anchorgen/internal/infra/warehouse"
	"anchorgen/internal/infra/warehouse/postgres"
	"anchorgen/internal/infra/warehouse/sqlite"
	"anchorgen/internal/sqlast"
)

// Result reports the rows one entity load inserted.
type Result = infra.Result

// Warehouse applies generated SQL.
type Warehouse interface {
	Apply(ctx context.Context, run *core.Run) ([]Result, error)
	ApplyScript(ctx context.Context, script string) error
	Count(ctx context.Context, table sqlast.Table) (int64, error)
	Dialect() sqlast.Dialect
	Close() error
}

var _ Warehouse = (*infra.Applier)(nil)

// Open connects to the configured warehouse. target is needed by SQLite,
// which attaches one database per target schema.
func Open(ctx context.Context, cfg config.Warehouse, target core.Target, logger core.Logger) (Warehouse, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(ctx, cfg.DSN, infra.WithLogger(logger))
	case "sqlite":
		if target.Database != "" {
			return nil, fmt.Errorf("sqlite warehouse: target database %q is not supported", target.Database)
		}
		return sqlite.Open(ctx, cfg.DSN, []string{target.Schema}, infra.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown warehouse driver %s", cfg.Driver)
	}
}
