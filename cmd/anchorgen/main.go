// Command anchorgen validates an anchor model against its source manifest
// and generates, publishes, applies or serves the incremental load query of
// every entity.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	schema "anchorgen/docs/schema"
	"anchorgen/internal/config"
	"anchorgen/internal/core"
	"anchorgen/internal/metadata"
	"anchorgen/internal/validation"
)

var exitFunc = os.Exit

// env is the process surface a command sees.
type env struct {
	stdout, stderr io.Writer
	getenv         func(string) string
	now            func() time.Time
}

// binder registers command specific flags. Flags backed by configuration
// fields bind to c.
type binder func(fs *pflag.FlagSet, c *config.Config)

// runner executes a command with the layered configuration.
type runner func(ctx context.Context, cfg config.Config, logger *slog.Logger) error

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	e := &env{stdout: stdout, stderr: stderr, getenv: os.Getenv, now: time.Now}
	return e.dispatch(ctx, args)
}

func (e *env) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "anchorgen",
		Short:         "anchorgen generates incremental anchor model loads",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(e.stdout)
	root.SetErr(e.stderr)
	root.PersistentFlags().String("config", "", "path to a YAML config file")
	root.AddCommand(
		e.validateCmd(),
		e.blueprintsCmd(),
		e.generateCmd(),
		e.applyCmd(),
		e.serveCmd(),
		e.exportSourcesCmd(),
	)
	return root
}

// dispatch runs args and maps the outcome to an exit code: 2 for usage
// errors, 1 for failed commands.
func (e *env) dispatch(ctx context.Context, args []string) int {
	root := e.rootCmd()
	if len(args) == 0 {
		root.SetOut(e.stderr)
		_ = root.Usage()
		return 2
	}
	root.SetArgs(args)
	cmd, err := root.ExecuteContextC(ctx)
	var merr *validation.ModelError
	switch {
	case err == nil:
		return 0
	case cmd == root:
		fmt.Fprintf(e.stderr, "anchorgen: %v\nRun 'anchorgen --help' for usage.\n", err)
		return 2
	case errors.As(err, &merr):
		fmt.Fprintln(e.stderr, merr.Error())
		return 1
	default:
		fmt.Fprintf(e.stderr, "anchorgen %s: %v\n", cmd.Name(), err)
		return 1
	}
}

// newCommand builds a subcommand carrying the common configuration flags plus
// the ones bind registers.
func (e *env) newCommand(use, short string, bind binder, run runner) *cobra.Command {
	defaults := config.Default()
	cmd := &cobra.Command{Use: use, Short: short, Args: noArgs}
	defaults.BindFlags(cmd.Flags())
	if bind != nil {
		bind(cmd.Flags(), &defaults)
	}
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := e.setup(cmd, bind)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg, logger)
	}
	return cmd
}

func noArgs(_ *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	return nil
}

// setup layers config file and environment, then re-applies the flags given
// on the command line, validates the result and builds the logger.
func (e *env) setup(cmd *cobra.Command, bind binder) (config.Config, *slog.Logger, error) {
	// Rebinding resets flag variables to their defaults; capture values first.
	given := make(map[string]string)
	cmd.Flags().Visit(func(f *pflag.Flag) { given[f.Name] = f.Value.String() })

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, e.getenv)
	if err != nil {
		return cfg, nil, err
	}
	fs := pflag.NewFlagSet(cmd.Name(), pflag.ContinueOnError)
	cfg.BindFlags(fs)
	if bind != nil {
		bind(fs, &cfg)
	}
	for name, value := range given {
		if fs.Lookup(name) == nil {
			continue
		}
		if err := fs.Set(name, value); err != nil {
			return cfg, nil, fmt.Errorf("--%s: %w", name, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	return cfg, newLogger(cfg.Log, e.stderr), nil
}

func newLogger(c config.Log, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadModel reads the configured documents, or the embedded Northwind model
// when no model path is set.
func loadModel(cfg config.Config) (*metadata.Loaded, error) {
	if cfg.ModelPath == "" {
		return schema.LoadNorthwind()
	}
	return metadata.Load(cfg.ModelPath, cfg.SourcesPath)
}

func compileRequest(cfg config.Config, loaded *metadata.Loaded, ts time.Time) (core.CompileRequest, error) {
	cc, err := cfg.ColumnCase()
	if err != nil {
		return core.CompileRequest{}, err
	}
	return core.CompileRequest{
		Model:      loaded.Model,
		Manifest:   loaded.Manifest,
		Target:     cfg.CoreTarget(),
		ColumnCase: cc,
		ExecutedAt: ts,
	}, nil
}

// tsFlag binds --ts, an RFC 3339 execution timestamp.
type tsFlag struct{ t time.Time }

func (f *tsFlag) String() string {
	if f.t.IsZero() {
		return ""
	}
	return f.t.Format(time.RFC3339)
}

func (f *tsFlag) Type() string { return "time" }

func (f *tsFlag) Set(s string) error {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("want RFC 3339, e.g. 2024-01-02T00:00:00Z: %w", err)
	}
	f.t = t
	return nil
}
