package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"anchorgen/internal/sqlast"
	"anchorgen/internal/validation"
	"anchorgen/pkg/domain"
)

// Clock supplies the execution timestamp of a run.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the span tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock overrides the clock used for execution timestamps.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithParallelism bounds how many entities are compiled concurrently.
// Values below one leave the default in place.
func WithParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// Service compiles anchor models into incremental load queries.
type Service struct {
	logger      Logger
	metrics     MetricsRecorder
	tracer      Tracer
	clock       Clock
	parallelism int

	mu      sync.Mutex
	entropy io.Reader
}

// NewService constructs a service with the supplied options.
func NewService(opts ...Option) *Service {
	s := &Service{
		logger:      NopLogger{},
		metrics:     noopMetrics{},
		tracer:      noopTracer{},
		clock:       ClockFunc(time.Now),
		parallelism: 4,
		entropy:     ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CompileRequest describes one compilation.
type CompileRequest struct {
	Model *domain.Model
	// Manifest lists the entity names present in sources.yaml per kind.
	Manifest   map[domain.Kind][]string
	Target     Target
	ColumnCase ColumnCase
	// ExecutedAt pins the execution timestamp. Zero reads the service clock.
	ExecutedAt time.Time
}

// Run is the result of one compilation. All queries share the run's
// execution timestamp.
type Run struct {
	ID         string     `json:"id"`
	ExecutedAt time.Time  `json:"executed_at"`
	Queries    []Compiled `json:"queries"`
}

// Artifact is one rendered query.
type Artifact struct {
	ModelName string      `json:"model_name"`
	Kind      domain.Kind `json:"kind"`
	Dialect   string      `json:"dialect"`
	SQL       string      `json:"sql"`
	Checksum  string      `json:"checksum"`
}

// Checksum fingerprints generated text.
func Checksum(b []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(b))
}

// Query returns the compiled query for a model name.
func (r *Run) Query(modelName string) (Compiled, bool) {
	for _, q := range r.Queries {
		if q.Blueprint.ModelName == modelName {
			return q, true
		}
	}
	return Compiled{}, false
}

// Render renders every query of the run for a dialect in blueprint order.
func (r *Run) Render(d sqlast.Dialect) ([]Artifact, error) {
	out := make([]Artifact, 0, len(r.Queries))
	for _, q := range r.Queries {
		sql, err := q.SQL(d)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", q.Blueprint.ModelName, err)
		}
		out = append(out, Artifact{
			ModelName: q.Blueprint.ModelName,
			Kind:      q.Blueprint.Kind,
			Dialect:   d.Name,
			SQL:       sql,
			Checksum:  Checksum([]byte(sql)),
		})
	}
	return out, nil
}

func (s *Service) newID(at time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), s.entropy).String()
}

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)
	s.metrics.Observe(ctx, op, err == nil, d)
	span.End(err)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "error", err, "duration", d)
		return err
	}
	s.logger.Debug("operation completed", "operation", op, "duration", d)
	return nil
}

// Blueprints enumerates the model without validating its source mappings.
func (s *Service) Blueprints(ctx context.Context, m *domain.Model) ([]Blueprint, error) {
	var out []Blueprint
	err := s.run(ctx, "blueprints", func(context.Context) error {
		if m == nil {
			return errors.New("blueprints: nil model")
		}
		out = GenerateBlueprints(m)
		return nil
	})
	return out, err
}

// Compile validates the model and builds the incremental query of every
// entity. Validation failures are returned as *validation.ModelError before
// any query is built.
func (s *Service) Compile(ctx context.Context, req CompileRequest) (*Run, error) {
	var result *Run
	err := s.run(ctx, "compile", func(ctx context.Context) error {
		if err := validation.ValidateModel(req.Model, validation.WithManifestEntries(req.Manifest)); err != nil {
			return err
		}
		executedAt := s.executedAt(req)
		bc := BuildContext{ExecutedAt: executedAt, Target: req.Target, ColumnCase: req.ColumnCase}
		blueprints := GenerateBlueprints(req.Model)

		queries := make([]Compiled, len(blueprints))
		eg, ctx := errgroup.WithContext(ctx)
		eg.SetLimit(s.parallelism)
		for i, bp := range blueprints {
			eg.Go(func() error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				q, err := BuildQuery(bp, bc)
				if err != nil {
					return fmt.Errorf("compile %s: %w", bp.ModelName, err)
				}
				queries[i] = q
				s.logger.Debug("entity compiled", "model", bp.ModelName, "sources", len(bp.Sources))
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
		result = &Run{ID: s.newID(executedAt), ExecutedAt: executedAt, Queries: queries}
		s.logger.Info("model compiled", "run", result.ID, "entities", len(queries))
		return nil
	})
	return result, err
}

// CompileEntity validates the model and builds the query of one entity,
// addressed by model name (e.g. anchor__PR).
func (s *Service) CompileEntity(ctx context.Context, req CompileRequest, modelName string) (Compiled, time.Time, error) {
	var (
		result     Compiled
		executedAt time.Time
	)
	err := s.run(ctx, "compile_entity", func(context.Context) error {
		if err := validation.ValidateModel(req.Model, validation.WithManifestEntries(req.Manifest)); err != nil {
			return err
		}
		for _, bp := range GenerateBlueprints(req.Model) {
			if bp.ModelName != modelName {
				continue
			}
			executedAt = s.executedAt(req)
			q, err := BuildQuery(bp, BuildContext{ExecutedAt: executedAt, Target: req.Target, ColumnCase: req.ColumnCase})
			if err != nil {
				return fmt.Errorf("compile %s: %w", modelName, err)
			}
			result = q
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnknownEntity, modelName)
	})
	return result, executedAt, err
}

func (s *Service) executedAt(req CompileRequest) time.Time {
	at := req.ExecutedAt
	if at.IsZero() {
		at = s.clock.Now()
	}
	return at.UTC().Truncate(time.Second)
}

// Generate compiles the model and renders it for one dialect.
func (s *Service) Generate(ctx context.Context, req CompileRequest, d sqlast.Dialect) (*Run, []Artifact, error) {
	run, err := s.Compile(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	var artifacts []Artifact
	err = s.run(ctx, "render", func(context.Context) error {
		var rerr error
		artifacts, rerr = run.Render(d)
		return rerr
	})
	if err != nil {
		return nil, nil, err
	}
	return run, artifacts, nil
}
