// Package warehouse applies compiled runs to a database/sql warehouse: it
// creates the target tables from the output schema and executes the
// incremental INSERT of every entity.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"anchorgen/internal/core"
	"anchorgen/internal/entitymodel/sqlbundle"
	"anchorgen/internal/sqlast"
)

// Result reports the rows one entity load inserted.
type Result struct {
	ModelName string        `json:"model_name"`
	Inserted  int64         `json:"inserted"`
	Duration  time.Duration `json:"duration"`
}

// Applier executes generated SQL against an open database.
type Applier struct {
	db      *sql.DB
	dialect sqlast.Dialect
	logger  core.Logger

	mu      sync.Mutex
	schemas map[string]bool
}

// Option configures an Applier.
type Option func(*Applier)

// WithLogger logs one line per applied entity.
func WithLogger(l core.Logger) Option {
	return func(a *Applier) {
		if l != nil {
			a.logger = l
		}
	}
}

// New wraps db. Queries are rendered for dialect d.
func New(db *sql.DB, d sqlast.Dialect, opts ...Option) *Applier {
	a := &Applier{db: db, dialect: d, schemas: make(map[string]bool)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dialect returns the dialect queries are rendered in.
func (a *Applier) Dialect() sqlast.Dialect { return a.dialect }

// DB exposes the underlying handle for tests and seeding.
func (a *Applier) DB() *sql.DB { return a.db }

// Close closes the database.
func (a *Applier) Close() error { return a.db.Close() }

// Apply ensures every target table exists, then runs each entity's
// incremental insert in its own transaction, in run order. It stops at the
// first failure and returns the results gathered so far.
func (a *Applier) Apply(ctx context.Context, run *core.Run) ([]Result, error) {
	if run == nil {
		return nil, errors.New("apply: nil run")
	}
	results := make([]Result, 0, len(run.Queries))
	for _, q := range run.Queries {
		res, err := a.ApplyQuery(ctx, q)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// ApplyQuery ensures and loads one entity.
func (a *Applier) ApplyQuery(ctx context.Context, q core.Compiled) (Result, error) {
	name := q.Blueprint.ModelName
	start := time.Now()
	if err := a.ensureSchema(ctx, q.Target.Schema); err != nil {
		return Result{}, fmt.Errorf("apply %s: %w", name, err)
	}
	ddl, err := q.CreateTableSQL(a.dialect)
	if err != nil {
		return Result{}, fmt.Errorf("apply %s: %w", name, err)
	}
	insert, err := q.InsertSQL(a.dialect)
	if err != nil {
		return Result{}, fmt.Errorf("apply %s: %w", name, err)
	}
	var inserted int64
	err = a.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
		res, err := tx.ExecContext(ctx, insert)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		inserted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("apply %s: %w", name, err)
	}
	r := Result{ModelName: name, Inserted: inserted, Duration: time.Since(start)}
	if a.logger != nil {
		a.logger.Info("entity applied", "model", name, "inserted", inserted, "duration", r.Duration)
	}
	return r, nil
}

func (a *Applier) ensureSchema(ctx context.Context, schema string) error {
	stmt := sqlast.RenderCreateSchema(schema, a.dialect)
	if stmt == "" {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.schemas[schema] {
		return nil
	}
	if _, err := a.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	a.schemas[schema] = true
	return nil
}

// ApplyScript executes every statement of script in one transaction.
func (a *Applier) ApplyScript(ctx context.Context, script string) error {
	return a.inTx(ctx, func(tx *sql.Tx) error {
		for i, stmt := range sqlbundle.SplitStatements(script) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
		}
		return nil
	})
}

// Count returns the number of rows in table.
func (a *Applier) Count(ctx context.Context, table sqlast.Table) (int64, error) {
	var n int64
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table.QualifiedName()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table.Name, err)
	}
	return n, nil
}

func (a *Applier) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
