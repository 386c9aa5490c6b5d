package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	schema "anchorgen/docs/schema"
	"anchorgen/internal/blob"
)

var fixedNow = time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

type result struct {
	code           int
	stdout, stderr string
}

func runCLI(t *testing.T, vars map[string]string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	e := &env{
		stdout: &stdout,
		stderr: &stderr,
		getenv: func(k string) string { return vars[k] },
		now:    func() time.Time { return fixedNow },
	}
	code := e.dispatch(context.Background(), args)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestUsage(t *testing.T) {
	if r := runCLI(t, nil); r.code != 2 || !strings.Contains(r.stderr, "Commands:") {
		t.Fatalf("no args: %+v", r)
	}
	r := runCLI(t, nil, "help")
	if r.code != 0 {
		t.Fatalf("help: %+v", r)
	}
	for _, cmd := range (&env{}).rootCmd().Commands() {
		if !strings.Contains(r.stdout, cmd.Name()) {
			t.Fatalf("usage misses %s:\n%s", cmd.Name(), r.stdout)
		}
	}
	if r := runCLI(t, nil, "frobnicate"); r.code != 2 || !strings.Contains(r.stderr, `unknown command "frobnicate"`) {
		t.Fatalf("unknown: %+v", r)
	}
	if r := runCLI(t, nil, "generate", "-h"); r.code != 0 || !strings.Contains(r.stdout, "--publish") || !strings.Contains(r.stdout, "--config") {
		t.Fatalf("command help: %+v", r)
	}
	if r := runCLI(t, nil, "--bogus"); r.code != 2 {
		t.Fatalf("unknown root flag: %+v", r)
	}
}

func TestValidateEmbeddedModel(t *testing.T) {
	r := runCLI(t, nil, "validate")
	if r.code != 0 || !strings.HasPrefix(r.stdout, "model OK:") {
		t.Fatalf("validate: %+v", r)
	}
}

// writeNorthwind copies the embedded documents into dir, passing the sources
// through edit.
func writeNorthwind(t *testing.T, dir string, edit func(string) string) (string, string) {
	t.Helper()
	model, err := fs.ReadFile(schema.Northwind, schema.NorthwindModel)
	if err != nil {
		t.Fatalf("read model: %v", err)
	}
	sources, err := fs.ReadFile(schema.Northwind, schema.NorthwindSources)
	if err != nil {
		t.Fatalf("read sources: %v", err)
	}
	modelPath := filepath.Join(dir, "model.xml")
	sourcesPath := filepath.Join(dir, "sources.yaml")
	if err := os.WriteFile(modelPath, model, 0o600); err != nil {
		t.Fatalf("write model: %v", err)
	}
	if err := os.WriteFile(sourcesPath, []byte(edit(string(sources))), 0o600); err != nil {
		t.Fatalf("write sources: %v", err)
	}
	return modelPath, sourcesPath
}

func TestValidateReportsMissingMappings(t *testing.T) {
	shipper := "  SH:  # Shipper\n    - system: northwind\n      table: shippers\n      key: shipper_id\n"
	modelPath, sourcesPath := writeNorthwind(t, t.TempDir(), func(s string) string {
		if !strings.Contains(s, shipper) {
			t.Fatalf("fixture drifted: shipper mapping not found")
		}
		return strings.Replace(s, shipper, "", 1)
	})
	r := runCLI(t, nil, "validate", "--model", modelPath, "--sources", sourcesPath)
	if r.code != 1 {
		t.Fatalf("expected exit 1: %+v", r)
	}
	for _, want := range []string{"Missing or incomplete source mappings in sources.yaml", "anchors:", "SH:", "# Shipper", "system: ???"} {
		if !strings.Contains(r.stderr, want) {
			t.Fatalf("report misses %q:\n%s", want, r.stderr)
		}
	}
	if strings.Contains(r.stderr, "anchorgen validate:") {
		t.Fatalf("validation report must be printed verbatim:\n%s", r.stderr)
	}
}

func TestBlueprints(t *testing.T) {
	r := runCLI(t, nil, "blueprints")
	if r.code != 0 || !regexp.MustCompile(`(?m)^anchor__PR\s+anchor\s+1\s+PR_id$`).MatchString(r.stdout) {
		t.Fatalf("table: %+v", r)
	}
	r = runCLI(t, nil, "blueprints", "--json")
	var bps []map[string]any
	if err := json.Unmarshal([]byte(r.stdout), &bps); err != nil || r.code != 0 {
		t.Fatalf("json: %v %+v", err, r)
	}
	if len(bps) == 0 || bps[0]["model_name"] != "anchor__PR" {
		t.Fatalf("unexpected blueprints %v", bps[:1])
	}
}

func TestGenerateBundleIsDeterministic(t *testing.T) {
	args := []string{"generate", "--dialect", "postgres", "--ts", "2024-01-02T00:00:00Z"}
	first := runCLI(t, nil, args...)
	second := runCLI(t, nil, args...)
	if first.code != 0 || second.code != 0 {
		t.Fatalf("generate: %+v %+v", first, second)
	}
	body := func(s string) string {
		_, rest, _ := strings.Cut(s, "\n")
		return rest
	}
	if body(first.stdout) != body(second.stdout) {
		t.Fatal("bundles differ beyond the run id header")
	}
	for _, want := range []string{"-- anchorgen run ", "(postgres)", "-- anchor__PR checksum ", "LEFT JOIN", "2024-01-02 00:00:00"} {
		if !strings.Contains(first.stdout, want) {
			t.Fatalf("bundle misses %q", want)
		}
	}
}

func TestGenerateWritesAndPublishes(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "sql")
	root := filepath.Join(dir, "artifacts")
	trace := filepath.Join(dir, "trace.jsonl")
	vars := map[string]string{"ANCHORGEN_BLOB_DRIVER": "fs", "ANCHORGEN_BLOB_FS_ROOT": root}

	r := runCLI(t, vars, "generate", "--out", out, "--publish", "--trace", trace)
	if r.code != 0 {
		t.Fatalf("generate: %+v", r)
	}
	b, err := os.ReadFile(filepath.Join(out, "anchor__PR.sql"))
	if err != nil || !strings.Contains(string(b), "ANTI JOIN") || !strings.HasSuffix(string(b), ";\n") {
		t.Fatalf("artifact file: %v %q", err, b)
	}
	if r.stdout != "" {
		t.Fatalf("--out must not write a bundle to stdout: %q", r.stdout)
	}
	spans, err := os.ReadFile(trace)
	if err != nil || !strings.Contains(string(spans), `"operation":"compile"`) || !strings.Contains(string(spans), `"operation":"render"`) {
		t.Fatalf("trace: %v %s", err, spans)
	}

	store, err := blob.NewFilesystem(root)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	m, err := blob.LoadManifest(context.Background(), store, "")
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if !m.ExecutedAt.Equal(fixedNow) || m.Dialect != "duckdb" || m.Fingerprint == "" {
		t.Fatalf("manifest: %+v", m)
	}
	entries, _ := os.ReadDir(out)
	if len(m.Artifacts) != len(entries) {
		t.Fatalf("published %d artifacts, wrote %d files", len(m.Artifacts), len(entries))
	}
	if bad, err := blob.Verify(context.Background(), store, m); err != nil || len(bad) != 0 {
		t.Fatalf("verify: %v %v", bad, err)
	}
}

func TestApplySQLiteIsIdempotent(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "wh", "northwind.db")
	total := regexp.MustCompile(`(?m)^total\s+(\d+)$`)

	first := runCLI(t, nil, "apply", "--warehouse", "sqlite", "--dsn", dsn, "--seed", "--ts", "2024-01-02T00:00:00Z")
	if first.code != 0 {
		t.Fatalf("first apply: %+v", first)
	}
	if m := total.FindStringSubmatch(first.stdout); m == nil || m[1] != "54" {
		t.Fatalf("first apply total: %q", first.stdout)
	}
	second := runCLI(t, nil, "apply", "--warehouse", "sqlite", "--dsn", dsn, "--seed", "--ts", "2024-01-03T00:00:00Z")
	if second.code != 0 {
		t.Fatalf("second apply: %+v", second)
	}
	if m := total.FindStringSubmatch(second.stdout); m == nil || m[1] != "0" {
		t.Fatalf("second apply total: %q", second.stdout)
	}

	if r := runCLI(t, nil, "apply", "--warehouse", "sqlite", "--dsn", dsn, "--target-db", "lake"); r.code != 1 || !strings.Contains(r.stderr, "not supported") {
		t.Fatalf("sqlite with catalog: %+v", r)
	}
}

func TestExportSources(t *testing.T) {
	r := runCLI(t, nil, "export-sources")
	if r.code != 0 {
		t.Fatalf("export: %+v", r)
	}
	for _, want := range []string{"anchors:", "ties:", "attributes:", "shipper_id", "reports_to"} {
		if !strings.Contains(r.stdout, want) {
			t.Fatalf("export misses %q:\n%s", want, r.stdout)
		}
	}
	out := filepath.Join(t.TempDir(), "sources.yaml")
	if r := runCLI(t, nil, "export-sources", "--out", out); r.code != 0 {
		t.Fatalf("export to file: %+v", r)
	}
	b, err := os.ReadFile(out)
	if err != nil || string(b) != r.stdout {
		t.Fatalf("file export differs from stdout export: %v", err)
	}
}

func TestConfigErrors(t *testing.T) {
	if r := runCLI(t, map[string]string{"ANCHORGEN_DIALECT": "oracle"}, "generate"); r.code != 1 || !strings.Contains(r.stderr, "dialect") {
		t.Fatalf("bad env dialect: %+v", r)
	}
	if r := runCLI(t, nil, "generate", "--ts", "yesterday"); r.code != 1 || !strings.Contains(r.stderr, "RFC 3339") {
		t.Fatalf("bad ts: %+v", r)
	}
	if r := runCLI(t, nil, "validate", "extra"); r.code != 1 || !strings.Contains(r.stderr, "unexpected arguments") {
		t.Fatalf("extra args: %+v", r)
	}
	if r := runCLI(t, nil, "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml")); r.code != 1 || !strings.Contains(r.stderr, "read config") {
		t.Fatalf("missing config: %+v", r)
	}

	cfgPath := filepath.Join(t.TempDir(), "anchorgen.yaml")
	if err := os.WriteFile(cfgPath, []byte("dialect: sqlite\nlog:\n  level: debug\n  format: json\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	r := runCLI(t, nil, "generate", "--config="+cfgPath)
	if r.code != 0 || !strings.Contains(r.stdout, "(sqlite)") || !strings.Contains(r.stderr, `"msg":"generate metrics"`) {
		t.Fatalf("config file: %+v", r)
	}
}

func TestFlagsOverrideEnvAndFile(t *testing.T) {
	vars := map[string]string{"ANCHORGEN_DIALECT": "sqlite"}
	if r := runCLI(t, vars, "generate"); r.code != 0 || !strings.Contains(r.stdout, "(sqlite)") {
		t.Fatalf("env dialect: %+v", r)
	}
	if r := runCLI(t, vars, "generate", "--dialect", "postgres"); r.code != 0 || !strings.Contains(r.stdout, "(postgres)") {
		t.Fatalf("flag must win over env: %+v", r)
	}
	cfgPath := filepath.Join(t.TempDir(), "anchorgen.yaml")
	if err := os.WriteFile(cfgPath, []byte("target:\n  schema: raw\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	r := runCLI(t, nil, "generate", "--config", cfgPath, "--target-schema", "vault")
	if r.code != 0 || !strings.Contains(r.stdout, `"vault"."anchor__PR"`) || strings.Contains(r.stdout, `"raw".`) {
		t.Fatalf("flag must win over file: %+v", r)
	}
}

func TestServe(t *testing.T) {
	if r := runCLI(t, nil, "serve", "--watch"); r.code != 1 || !strings.Contains(r.stderr, "--watch requires --model") {
		t.Fatalf("watch without model: %+v", r)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stdout, stderr bytes.Buffer
	e := &env{stdout: &stdout, stderr: &stderr, getenv: func(string) string { return "" }, now: time.Now}
	if code := e.dispatch(ctx, []string{"serve", "--addr", "127.0.0.1:0"}); code != 0 {
		t.Fatalf("serve with canceled context: %d %s", code, stderr.String())
	}
}
