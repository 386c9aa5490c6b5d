package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"anchorgen/internal/blob"
	"anchorgen/internal/core"
	"anchorgen/internal/sqlast"
	"anchorgen/internal/validation"
)

type blueprintSummary struct {
	ModelName string `json:"model_name"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Sources   int    `json:"sources"`
}

type blueprintDetail struct {
	core.Blueprint
	UniqueKeys  []string            `json:"unique_keys"`
	RankColumns []string            `json:"rank_columns"`
	Columns     []core.OutputColumn `json:"columns"`
}

type queryResponse struct {
	ModelName  string    `json:"model_name"`
	Dialect    string    `json:"dialect"`
	ExecutedAt time.Time `json:"executed_at"`
	Target     string    `json:"target"`
	UniqueKeys []string  `json:"unique_keys"`
	Checksum   string    `json:"checksum"`
	SQL        string    `json:"sql"`
}

func (s *Server) health(c *gin.Context) {
	loaded, at := s.current()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"fingerprint": loaded.Fingerprint,
		"loaded_at":   at,
	})
}

func (s *Server) blueprints(c *gin.Context) ([]core.Blueprint, bool) {
	loaded, _ := s.current()
	bps, err := s.svc.Blueprints(c.Request.Context(), loaded.Model)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return bps, true
}

func (s *Server) listBlueprints(c *gin.Context) {
	bps, ok := s.blueprints(c)
	if !ok {
		return
	}
	kind := strings.TrimSpace(c.Query("kind"))
	out := make([]blueprintSummary, 0, len(bps))
	for _, bp := range bps {
		if kind != "" && string(bp.Kind) != kind {
			continue
		}
		out = append(out, blueprintSummary{ModelName: bp.ModelName, Kind: string(bp.Kind), Name: bp.Name, Sources: len(bp.Sources)})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getBlueprint(c *gin.Context) {
	bps, ok := s.blueprints(c)
	if !ok {
		return
	}
	model := c.Param("model")
	for _, bp := range bps {
		if bp.ModelName == model {
			c.JSON(http.StatusOK, blueprintDetail{Blueprint: bp, UniqueKeys: bp.UniqueKeys(), RankColumns: bp.RankColumns(), Columns: bp.Columns()})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "blueprint not found", "model": model})
}

// getSQL compiles one entity. ts pins the execution timestamp (RFC 3339,
// default now) and dialect overrides the configured dialect. format=sql
// returns the bare statement as text.
func (s *Server) getSQL(c *gin.Context) {
	dialect := s.settings.Dialect
	if name := c.Query("dialect"); name != "" {
		d, err := sqlast.ParseDialect(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		dialect = d
	}
	var ts time.Time
	if raw := c.Query("ts"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ts, want RFC 3339", "details": err.Error()})
			return
		}
		ts = parsed
	}

	loaded, _ := s.current()
	req := core.CompileRequest{
		Model:      loaded.Model,
		Manifest:   loaded.Manifest,
		Target:     s.settings.Target,
		ColumnCase: s.settings.ColumnCase,
		ExecutedAt: ts,
	}
	model := c.Param("model")
	q, at, err := s.svc.CompileEntity(c.Request.Context(), req, model)
	switch {
	case errors.Is(err, core.ErrUnknownEntity):
		c.JSON(http.StatusNotFound, gin.H{"error": "blueprint not found", "model": model})
		return
	case err != nil:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	sql, err := q.SQL(dialect)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if c.Query("format") == "sql" {
		c.Data(http.StatusOK, "application/sql; charset=utf-8", []byte(sql+"\n"))
		return
	}
	c.JSON(http.StatusOK, queryResponse{
		ModelName:  model,
		Dialect:    dialect.Name,
		ExecutedAt: at,
		Target:     q.Target.QualifiedName(),
		UniqueKeys: q.UniqueKeys,
		Checksum:   core.Checksum([]byte(sql)),
		SQL:        sql,
	})
}

func (s *Server) reload(c *gin.Context) {
	err := s.Reload()
	var merr *validation.ModelError
	switch {
	case errors.As(err, &merr):
		issues := make([]string, 0, len(merr.Issues()))
		for _, it := range merr.Issues() {
			issues = append(issues, it.String())
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "model has blocking issues", "issues": issues, "report": merr.Error()})
		return
	case err != nil:
		s.logger.Warn("reload failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loaded, at := s.current()
	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"fingerprint": loaded.Fingerprint,
		"entities":    len(loaded.Model.Entities()),
		"loaded_at":   at,
	})
}

func (s *Server) getManifest(c *gin.Context) {
	id := c.Param("id")
	if id != "" {
		if _, err := ulid.ParseStrict(id); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id", "details": err.Error()})
			return
		}
	}
	m, err := blob.LoadManifest(c.Request.Context(), s.artifacts, id)
	switch {
	case errors.Is(err, blob.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}
