package warehouse

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"anchorgen/internal/core"
	"anchorgen/internal/sqlast"
	"anchorgen/pkg/domain"
)

type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.record(msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record(msg) }

func productRun(t *testing.T) *core.Run {
	t.Helper()
	bp := core.Blueprint{
		ModelName:  "anchor__PR",
		Kind:       domain.KindAnchor,
		Name:       "PR",
		Descriptor: "Product",
		Sources:    []domain.Source{{System: "nw", Table: "products", Key: domain.Columns{"product_id"}}},
	}
	bc := core.BuildContext{ExecutedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Target: core.Target{Schema: "dab"}}
	q, err := core.BuildQuery(bp, bc)
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	return &core.Run{ID: "RUN", ExecutedAt: bc.ExecutedAt, Queries: []core.Compiled{q}}
}

func newMock(t *testing.T) (*Applier, sqlmock.Sqlmock, *recordingLogger) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	logger := &recordingLogger{}
	return New(db, sqlast.Postgres, WithLogger(logger)), mock, logger
}

func TestApplyCreatesSchemaOnceAndReportsRows(t *testing.T) {
	a, mock, logger := newMock(t)
	run := productRun(t)
	q := run.Queries[0]
	ddl, _ := q.CreateTableSQL(sqlast.Postgres)
	insert, _ := q.InsertSQL(sqlast.Postgres)

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "dab"`).WillReturnResult(sqlmock.NewResult(0, 0))
	for _, rows := range []int64{3, 0} {
		mock.ExpectBegin()
		mock.ExpectExec(ddl).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, rows))
		mock.ExpectCommit()
	}

	ctx := context.Background()
	first, err := a.Apply(ctx, run)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	second, err := a.Apply(ctx, run)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if len(first) != 1 || first[0].ModelName != "anchor__PR" || first[0].Inserted != 3 || second[0].Inserted != 0 {
		t.Fatalf("unexpected results %+v %+v", first, second)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
	if len(logger.msgs) != 2 || logger.msgs[0] != "entity applied" {
		t.Fatalf("logged %v", logger.msgs)
	}
}

func TestApplyRollsBackAndNamesEntity(t *testing.T) {
	a, mock, _ := newMock(t)
	run := productRun(t)
	q := run.Queries[0]
	ddl, _ := q.CreateTableSQL(sqlast.Postgres)
	insert, _ := q.InsertSQL(sqlast.Postgres)
	boom := errors.New("relation \"products\" does not exist")

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "dab"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(ddl).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insert).WillReturnError(boom)
	mock.ExpectRollback()

	results, err := a.Apply(context.Background(), run)
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "apply anchor__PR: insert") {
		t.Fatalf("expected wrapped insert error, got %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("no results expected, got %+v", results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
	if _, err := a.Apply(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil run")
	}
}

func TestApplyScriptRunsStatementsInOneTransaction(t *testing.T) {
	a, mock, _ := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE t (a INTEGER);").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO t VALUES (1);").WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err := a.ApplyScript(context.Background(), "-- seed\nCREATE TABLE t (a INTEGER);\nINSERT INTO t VALUES (1);\n")
	if err == nil || !strings.Contains(err.Error(), "statement 2") {
		t.Fatalf("expected statement 2 failure, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCount(t *testing.T) {
	a, mock, _ := newMock(t)
	mock.ExpectQuery(`SELECT COUNT(*) FROM "dab"."anchor__PR"`).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(7))
	n, err := a.Count(context.Background(), sqlast.Table{Schema: "dab", Name: "anchor__PR"})
	if err != nil || n != 7 {
		t.Fatalf("count = %d, %v", n, err)
	}
	if a.Dialect().Name != sqlast.Postgres.Name {
		t.Fatalf("dialect = %s", a.Dialect().Name)
	}
	mock.ExpectClose()
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
