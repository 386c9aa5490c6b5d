// Package sqlite opens a SQLite warehouse through the pure Go modernc driver.
// Target schemas are emulated with attached databases.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"anchorgen/internal/infra/warehouse"
	"anchorgen/internal/sqlast"
)

const defaultDSN = "file:anchorgen.db"

// Open opens dsn and attaches one database per schema. In-memory databases
// attach in-memory schemas; file databases attach <name>.<schema>.db next to
// the main file. The pool is limited to one connection so attachments and
// in-memory contents are shared by every statement.
func Open(ctx context.Context, dsn string, schemas []string, opts ...warehouse.Option) (*warehouse.Applier, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	if p := filePath(dsn); p != "" {
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	seen := make(map[string]bool)
	for _, schema := range schemas {
		if schema == "" || seen[schema] || strings.EqualFold(schema, "main") {
			continue
		}
		seen[schema] = true
		target := attachPath(dsn, schema)
		stmt := fmt.Sprintf("ATTACH DATABASE %s AS %s", sqlast.QuoteString(target), sqlast.QuoteIdent(schema))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("attach schema %s: %w", schema, err)
		}
	}
	return warehouse.New(db, sqlast.SQLite, opts...), nil
}

func isMemory(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// filePath extracts the database file from a DSN; empty for in-memory DSNs.
func filePath(dsn string) string {
	if isMemory(dsn) {
		return ""
	}
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}

func attachPath(dsn, schema string) string {
	p := filePath(dsn)
	if p == "" {
		return ":memory:"
	}
	ext := filepath.Ext(p)
	return strings.TrimSuffix(p, ext) + "." + schema + ".db"
}
