package sqlast

import "testing"

func TestRenderCreateTable(t *testing.T) {
	cols := []ColumnDef{{Name: "PR_id", Type: Varchar}, {Name: "PR_loaded_at", Type: Timestamp}}
	got, err := RenderCreateTable(Table{Schema: "dab", Name: "anchor__PR", Alias: "t"}, cols, Postgres)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "CREATE TABLE IF NOT EXISTS \"dab\".\"anchor__PR\" (\n  \"PR_id\" VARCHAR,\n  \"PR_loaded_at\" TIMESTAMP\n)"
	if got != want {
		t.Fatalf("got\n%s\nwant\n%s", got, want)
	}
	got, err = RenderCreateTable(Table{Name: "anchor__PR"}, cols, SQLite)
	if err != nil {
		t.Fatalf("render sqlite: %v", err)
	}
	if got != "CREATE TABLE IF NOT EXISTS \"anchor__PR\" (\n  \"PR_id\" TEXT,\n  \"PR_loaded_at\" TEXT\n)" {
		t.Fatalf("sqlite types not applied:\n%s", got)
	}
	if _, err := RenderCreateTable(Table{}, cols, DuckDB); err == nil {
		t.Fatal("expected error for table without name")
	}
}

func TestRenderCreateSchema(t *testing.T) {
	if got := RenderCreateSchema("dab", DuckDB); got != `CREATE SCHEMA IF NOT EXISTS "dab"` {
		t.Fatalf("got %q", got)
	}
	if RenderCreateSchema("dab", SQLite) != "" || RenderCreateSchema("", Postgres) != "" {
		t.Fatal("sqlite and empty schemas render nothing")
	}
}
