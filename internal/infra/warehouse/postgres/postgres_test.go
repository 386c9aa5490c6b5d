package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"anchorgen/internal/sqlast"
)

func TestOpenUsesPgxDriverAndPings(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	var gotDriver, gotDSN string
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return db, nil
	})
	defer restore()

	mock.ExpectPing()
	a, err := Open(context.Background(), "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if gotDriver != "pgx" || gotDSN != defaultDSN {
		t.Fatalf("opened %s %s", gotDriver, gotDSN)
	}
	if a.Dialect().Name != sqlast.Postgres.Name {
		t.Fatalf("dialect = %s", a.Dialect().Name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("bad dsn") })
	if _, err := Open(context.Background(), "postgres://x"); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open error, got %v", err)
	}
	restore()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	restore = OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()
	if _, err := Open(context.Background(), "postgres://x"); err == nil || !strings.Contains(err.Error(), "ping postgres") {
		t.Fatalf("expected ping error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
