// Package api serves generated blueprints and queries over HTTP so an
// external scheduler can fetch the SQL of each entity at run time.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"anchorgen/internal/blob"
	"anchorgen/internal/core"
	"anchorgen/internal/metadata"
	"anchorgen/internal/sqlast"
	"anchorgen/internal/validation"
)

// Loader reads the model documents. It is called at start-up and on every
// reload.
type Loader func() (*metadata.Loaded, error)

// Settings are the generation settings applied to every request.
type Settings struct {
	Target     core.Target
	ColumnCase core.ColumnCase
	Dialect    sqlast.Dialect
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and reload logger.
func WithLogger(l core.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithArtifacts exposes published run manifests from store.
func WithArtifacts(store blob.Store) Option {
	return func(s *Server) { s.artifacts = store }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// Server holds the current model behind a read/write lock. Reload swaps it
// only when the new documents pass validation.
type Server struct {
	svc       *core.Service
	load      Loader
	settings  Settings
	logger    core.Logger
	artifacts blob.Store
	metrics   http.Handler

	mu       sync.RWMutex
	loaded   *metadata.Loaded
	loadedAt time.Time
}

// New loads the model once and fails when it does not validate.
func New(svc *core.Service, load Loader, settings Settings, opts ...Option) (*Server, error) {
	if svc == nil || load == nil {
		return nil, errors.New("api: service and loader are required")
	}
	if settings.Dialect.Name == "" {
		settings.Dialect = sqlast.DuckDB
	}
	s := &Server{svc: svc, load: load, settings: settings, logger: core.NopLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the model. On any load or validation error the previous
// model stays in place.
func (s *Server) Reload() error {
	loaded, err := s.load()
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	if err := validation.ValidateModel(loaded.Model, validation.WithManifestEntries(loaded.Manifest)); err != nil {
		return err
	}
	s.mu.Lock()
	s.loaded = loaded
	s.loadedAt = time.Now().UTC()
	s.mu.Unlock()
	s.logger.Info("model loaded", "fingerprint", loaded.Fingerprint, "entities", len(loaded.Model.Entities()))
	return nil
}

func (s *Server) current() (*metadata.Loaded, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded, s.loadedAt
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", s.health)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/blueprints", s.listBlueprints)
		apiGroup.GET("/blueprints/:model", s.getBlueprint)
		apiGroup.GET("/blueprints/:model/sql", s.getSQL)
		apiGroup.POST("/admin/reload", s.reload)
		if s.artifacts != nil {
			apiGroup.GET("/runs/latest", s.getManifest)
			apiGroup.GET("/runs/:id", s.getManifest)
		}
	}
	return r
}

// Serve runs the router on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("http server listening", "addr", addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
