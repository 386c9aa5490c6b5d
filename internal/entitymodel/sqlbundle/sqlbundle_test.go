package sqlbundle

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"anchorgen/internal/core"
)

func TestSplitStatementsNorthwindSeed(t *testing.T) {
	stmts := SplitStatements(NorthwindSeed())
	if len(stmts) != 16 {
		t.Fatalf("expected 8 CREATE and 8 INSERT statements, got %d", len(stmts))
	}
	for _, stmt := range stmts {
		if strings.HasPrefix(stmt, "--") {
			t.Fatalf("statement unexpectedly starts with comment: %q", stmt)
		}
		if !strings.HasSuffix(stmt, ";") {
			t.Fatalf("statement missing semicolon terminator: %q", stmt)
		}
	}
	if !strings.Contains(stmts[13], "Chef Anton''s Cajun Seasoning") {
		t.Fatalf("quoted literal must survive splitting: %q", stmts[13])
	}
}

func TestSplitStatementsQuotes(t *testing.T) {
	script := "SELECT 'a;b' AS \"x;--y\"; -- trailing\n\n-- only comment\nSELECT 'it''s -- fine';\nSELECT 3"
	got := SplitStatements(script)
	want := []string{
		"SELECT 'a;b' AS \"x;--y\";",
		"SELECT 'it''s -- fine';",
		"SELECT 3",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("split = %#v", got)
	}
	if got := SplitStatements("-- nothing\n\n"); len(got) != 0 {
		t.Fatalf("comment-only script = %#v", got)
	}
}

func TestBundleRoundTrip(t *testing.T) {
	artifacts := []core.Artifact{
		{ModelName: "anchor__PR", SQL: "WITH target AS (\n  SELECT 1\n)\nSELECT 'Product@nw|' FROM source", Checksum: "aa"},
		{ModelName: "knot__CAT", SQL: "SELECT 2;", Checksum: "bb"},
	}
	h := Header{RunID: "RUN", Dialect: "postgres", ExecutedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Fingerprint: "fp"}
	script := Bundle(h, artifacts)
	for _, want := range []string{"-- anchorgen run RUN (postgres)", "-- executed_at: 2024-01-01T00:00:00Z", "-- fingerprint: fp", "-- knot__CAT checksum bb"} {
		if !strings.Contains(script, want) {
			t.Fatalf("bundle missing %q:\n%s", want, script)
		}
	}
	if strings.Contains(script, ";;") {
		t.Fatalf("statements must be terminated once:\n%s", script)
	}
	stmts := SplitStatements(script)
	if len(stmts) != 2 || stmts[0] != artifacts[0].SQL+";" || stmts[1] != "SELECT 2;" {
		t.Fatalf("split bundle = %#v", stmts)
	}
	if Bundle(h, artifacts) != script {
		t.Fatal("bundle must be deterministic")
	}
}
