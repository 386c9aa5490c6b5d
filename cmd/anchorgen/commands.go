package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"anchorgen/internal/api"
	"anchorgen/internal/blob"
	"anchorgen/internal/config"
	"anchorgen/internal/core"
	"anchorgen/internal/entitymodel/sqlbundle"
	promrec "anchorgen/internal/infra/metrics/prometheus"
	"anchorgen/internal/metadata"
	"anchorgen/internal/validation"
	"anchorgen/internal/warehouse"
)

func (e *env) validateCmd() *cobra.Command {
	return e.newCommand("validate", "Check the model and sources.yaml, printing stubs for missing mappings", nil, e.runValidate)
}

func (e *env) runValidate(_ context.Context, cfg config.Config, logger *slog.Logger) error {
	loaded, err := loadModel(cfg)
	if err != nil {
		return err
	}
	if err := validation.ValidateModel(loaded.Model, validation.WithManifestEntries(loaded.Manifest)); err != nil {
		var merr *validation.ModelError
		if errors.As(err, &merr) {
			logger.Warn("model invalid", "issues", len(merr.Issues()))
		}
		return err
	}
	fmt.Fprintf(e.stdout, "model OK: %d entities (fingerprint %s)\n", len(loaded.Model.Entities()), loaded.Fingerprint)
	return nil
}

func (e *env) blueprintsCmd() *cobra.Command {
	var asJSON bool
	bind := func(fs *pflag.FlagSet, _ *config.Config) {
		fs.BoolVar(&asJSON, "json", false, "print blueprints as JSON")
	}
	return e.newCommand("blueprints", "List the entities a run would load", bind,
		func(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
			return e.runBlueprints(ctx, cfg, logger, asJSON)
		})
}

func (e *env) runBlueprints(ctx context.Context, cfg config.Config, logger *slog.Logger, asJSON bool) error {
	loaded, err := loadModel(cfg)
	if err != nil {
		return err
	}
	bps, err := core.NewService(core.WithLogger(logger)).Blueprints(ctx, loaded.Model)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(e.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(bps)
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tKIND\tSOURCES\tUNIQUE KEYS")
	for _, bp := range bps {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", bp.ModelName, bp.Kind, len(bp.Sources), strings.Join(bp.UniqueKeys(), ","))
	}
	return tw.Flush()
}

// generateOptions are the flags of the generate command.
type generateOptions struct {
	outDir  string
	trace   string
	publish bool
	ts      tsFlag
}

func (e *env) generateCmd() *cobra.Command {
	var o generateOptions
	bind := func(fs *pflag.FlagSet, _ *config.Config) {
		fs.StringVar(&o.outDir, "out", "", "write one <model_name>.sql per entity into this directory (default: bundle to stdout)")
		fs.StringVar(&o.trace, "trace", "", "write JSON trace spans to this file (- for stderr)")
		fs.BoolVar(&o.publish, "publish", false, "publish the artifacts and a run manifest to the blob store")
		fs.Var(&o.ts, "ts", "execution timestamp, RFC 3339 (default: now)")
	}
	return e.newCommand("generate", "Render the incremental queries to files, stdout or the artifact store", bind,
		func(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
			return e.runGenerate(ctx, cfg, logger, o)
		})
}

func (e *env) runGenerate(ctx context.Context, cfg config.Config, logger *slog.Logger, o generateOptions) error {
	d, err := cfg.SQLDialect()
	if err != nil {
		return err
	}
	loaded, err := loadModel(cfg)
	if err != nil {
		return err
	}
	req, err := compileRequest(cfg, loaded, o.ts.t)
	if err != nil {
		return err
	}

	metrics := core.NewExpvarMetricsRecorder("")
	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithClock(core.ClockFunc(e.now)),
		core.WithParallelism(cfg.Parallelism),
	}
	switch o.trace {
	case "":
	case "-":
		opts = append(opts, core.WithTracer(core.NewJSONTracer(e.stderr)))
	default:
		f, err := os.Create(o.trace)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer func() { _ = f.Close() }()
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}
	svc := core.NewService(opts...)

	run, artifacts, err := svc.Generate(ctx, req, d)
	if err != nil {
		return err
	}
	if o.outDir != "" {
		if err := writeArtifacts(o.outDir, artifacts); err != nil {
			return err
		}
		logger.Info("artifacts written", "dir", o.outDir, "count", len(artifacts))
	} else {
		header := sqlbundle.Header{RunID: run.ID, Dialect: d.Name, ExecutedAt: run.ExecutedAt, Fingerprint: loaded.Fingerprint}
		if _, err := fmt.Fprint(e.stdout, sqlbundle.Bundle(header, artifacts)); err != nil {
			return err
		}
	}
	if o.publish {
		store, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			return err
		}
		m, err := blob.Publish(ctx, store, run, loaded.Fingerprint, artifacts)
		if err != nil {
			return err
		}
		logger.Info("run published", "run", m.RunID, "driver", store.Driver(), "artifacts", len(m.Artifacts))
	}
	logger.Debug("generate metrics", "snapshot", metrics.Snapshot())
	return nil
}

func writeArtifacts(dir string, artifacts []core.Artifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	for _, a := range artifacts {
		path := filepath.Join(dir, a.ModelName+".sql")
		if err := os.WriteFile(path, []byte(a.SQL+";\n"), 0o644); err != nil { //nolint:gosec // generated SQL is not secret
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

func (e *env) applyCmd() *cobra.Command {
	var (
		seed bool
		ts   tsFlag
	)
	bind := func(fs *pflag.FlagSet, c *config.Config) {
		c.BindWarehouseFlags(fs)
		fs.BoolVar(&seed, "seed", false, "create and seed the Northwind source tables first")
		fs.Var(&ts, "ts", "execution timestamp, RFC 3339 (default: now)")
	}
	return e.newCommand("apply", "Create target tables and run the incremental loads on the warehouse", bind,
		func(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
			return e.runApply(ctx, cfg, logger, seed, ts.t)
		})
}

func (e *env) runApply(ctx context.Context, cfg config.Config, logger *slog.Logger, seed bool, ts time.Time) error {
	loaded, err := loadModel(cfg)
	if err != nil {
		return err
	}
	req, err := compileRequest(cfg, loaded, ts)
	if err != nil {
		return err
	}
	wh, err := warehouse.Open(ctx, cfg.Warehouse, req.Target, logger)
	if err != nil {
		return err
	}
	defer func() { _ = wh.Close() }()

	if seed {
		if err := wh.ApplyScript(ctx, sqlbundle.NorthwindSeed()); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		logger.Info("northwind sources seeded")
	}
	svc := core.NewService(core.WithLogger(logger), core.WithClock(core.ClockFunc(e.now)), core.WithParallelism(cfg.Parallelism))
	run, err := svc.Compile(ctx, req)
	if err != nil {
		return err
	}
	results, err := wh.Apply(ctx, run)
	printResults(e, results)
	if err != nil {
		return err
	}
	logger.Info("run applied", "run", run.ID, "dialect", wh.Dialect().Name, "entities", len(results))
	return nil
}

func printResults(e *env, results []warehouse.Result) {
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tINSERTED")
	var total int64
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\n", r.ModelName, r.Inserted)
		total += r.Inserted
	}
	fmt.Fprintf(tw, "total\t%d\n", total)
	_ = tw.Flush()
}

func (e *env) serveCmd() *cobra.Command {
	var watch bool
	bind := func(fs *pflag.FlagSet, c *config.Config) {
		fs.StringVar(&c.HTTP.Addr, "addr", c.HTTP.Addr, "listen address")
		fs.BoolVar(&watch, "watch", false, "reload when the model or sources file changes")
	}
	return e.newCommand("serve", "Serve blueprints and queries over HTTP", bind,
		func(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
			return runServe(ctx, cfg, logger, watch)
		})
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger, watch bool) error {
	if watch && cfg.ModelPath == "" {
		return errors.New("--watch requires --model")
	}
	d, err := cfg.SQLDialect()
	if err != nil {
		return err
	}
	cc, err := cfg.ColumnCase()
	if err != nil {
		return err
	}
	metrics, err := promrec.New(promrec.WithProcessMetrics())
	if err != nil {
		return err
	}
	store, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return err
	}
	svc := core.NewService(core.WithLogger(logger), core.WithMetricsRecorder(metrics), core.WithParallelism(cfg.Parallelism))
	srv, err := api.New(svc, func() (*metadata.Loaded, error) { return loadModel(cfg) },
		api.Settings{Target: cfg.CoreTarget(), ColumnCase: cc, Dialect: d},
		api.WithLogger(logger), api.WithArtifacts(store), api.WithMetricsHandler(metrics.Handler()))
	if err != nil {
		return err
	}
	if watch {
		go func() {
			err := metadata.Watch(ctx, []string{cfg.ModelPath, cfg.SourcesPath}, metadata.DefaultDebounce, func() {
				if err := srv.Reload(); err != nil {
					logger.Warn("reload after change failed", "error", err)
				}
			})
			if err != nil {
				logger.Error("watcher stopped", "error", err)
			}
		}()
	}
	return srv.Serve(ctx, cfg.HTTP.Addr)
}

func (e *env) exportSourcesCmd() *cobra.Command {
	var out string
	bind := func(fs *pflag.FlagSet, _ *config.Config) {
		fs.StringVar(&out, "out", "", "write to this file instead of stdout")
	}
	return e.newCommand("export-sources", "Write the source mappings of the model as sources.yaml", bind,
		func(_ context.Context, cfg config.Config, _ *slog.Logger) error {
			return e.runExportSources(cfg, out)
		})
}

func (e *env) runExportSources(cfg config.Config, out string) error {
	loaded, err := loadModel(cfg)
	if err != nil {
		return err
	}
	b, err := metadata.ManifestFromModel(loaded.Model).Encode()
	if err != nil {
		return err
	}
	if out == "" {
		_, err = e.stdout.Write(b)
		return err
	}
	return os.WriteFile(out, b, 0o644) //nolint:gosec // manifest is meant to be shared
}
