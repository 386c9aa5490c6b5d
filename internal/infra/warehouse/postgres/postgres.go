// Package postgres opens a Postgres warehouse through the pgx database/sql
// driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"anchorgen/internal/infra/warehouse"
	"anchorgen/internal/sqlast"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/anchorgen?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// OverrideSQLOpen swaps the function used to open connections and returns a
// restore func. Tests use it to inject sqlmock.
func OverrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}

// Open connects to dsn (falls back to defaultDSN) and verifies the
// connection.
func Open(ctx context.Context, dsn string, opts ...warehouse.Option) (*warehouse.Applier, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return warehouse.New(db, sqlast.Postgres, opts...), nil
}
