package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	gen "anchorgen/internal/core"
)

// LatestKey points at the manifest of the most recent published run.
const LatestKey = "latest.json"

// RunManifest indexes the artifacts of one published run.
type RunManifest struct {
	RunID       string          `json:"run_id"`
	ExecutedAt  time.Time       `json:"executed_at"`
	Dialect     string          `json:"dialect"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Artifacts   []ManifestEntry `json:"artifacts"`
}

// ManifestEntry locates one rendered query.
type ManifestEntry struct {
	ModelName string `json:"model_name"`
	Kind      string `json:"kind"`
	Key       string `json:"key"`
	Checksum  string `json:"checksum"`
}

// RunPrefix is the key prefix of every blob of a run.
func RunPrefix(runID string) string { return path.Join("runs", runID) + "/" }

func manifestKey(runID string) string { return RunPrefix(runID) + "manifest.json" }

// Publish writes every artifact to runs/<id>/<model>.sql, then the run
// manifest, then repoints latest.json. Artifacts of a run are immutable:
// publishing the same run twice fails with ErrExists.
func Publish(ctx context.Context, store Store, run *gen.Run, fingerprint string, artifacts []gen.Artifact) (RunManifest, error) {
	if run == nil {
		return RunManifest{}, fmt.Errorf("publish: nil run")
	}
	m := RunManifest{RunID: run.ID, ExecutedAt: run.ExecutedAt, Fingerprint: fingerprint, Artifacts: make([]ManifestEntry, 0, len(artifacts))}
	for _, a := range artifacts {
		if m.Dialect == "" {
			m.Dialect = a.Dialect
		}
		key := RunPrefix(run.ID) + a.ModelName + ".sql"
		md := map[string]string{"run": run.ID, "model": a.ModelName, "dialect": a.Dialect}
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte(a.SQL)), PutOptions{ContentType: "application/sql", Metadata: md}); err != nil {
			return RunManifest{}, fmt.Errorf("publish %s: %w", key, err)
		}
		m.Artifacts = append(m.Artifacts, ManifestEntry{ModelName: a.ModelName, Kind: string(a.Kind), Key: key, Checksum: a.Checksum})
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return RunManifest{}, err
	}
	if _, err := store.Put(ctx, manifestKey(run.ID), bytes.NewReader(b), PutOptions{ContentType: "application/json"}); err != nil {
		return RunManifest{}, fmt.Errorf("publish manifest: %w", err)
	}
	if _, err := store.Put(ctx, LatestKey, bytes.NewReader(b), PutOptions{ContentType: "application/json", Overwrite: true}); err != nil {
		return RunManifest{}, fmt.Errorf("publish %s: %w", LatestKey, err)
	}
	return m, nil
}

// LoadManifest reads the manifest of runID, or of the latest run when runID
// is empty.
func LoadManifest(ctx context.Context, store Store, runID string) (RunManifest, error) {
	key := LatestKey
	if runID != "" {
		key = manifestKey(runID)
	}
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return RunManifest{}, err
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		return RunManifest{}, err
	}
	var m RunManifest
	if err := json.Unmarshal(b, &m); err != nil {
		return RunManifest{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return m, nil
}

// Verify re-reads every artifact of m and compares its stored checksum with
// the manifest. It returns the keys that are missing or differ.
func Verify(ctx context.Context, store Store, m RunManifest) ([]string, error) {
	var bad []string
	for _, e := range m.Artifacts {
		info, err := store.Head(ctx, e.Key)
		switch {
		case err == nil:
			if info.Checksum != e.Checksum {
				bad = append(bad, e.Key)
			}
		case isNotFound(err):
			bad = append(bad, e.Key)
		default:
			return nil, err
		}
	}
	return bad, nil
}
