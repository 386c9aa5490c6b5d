// Package config centralizes anchorgen configuration. Values are layered:
// built-in defaults, an optional YAML file, ANCHORGEN_* environment variables,
// then command-line flags bound with BindFlags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"anchorgen/internal/core"
	"anchorgen/internal/sqlast"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ANCHORGEN_"

// Config holds all process configuration. It is a plain value and may be
// copied freely after loading.
type Config struct {
	// ModelPath and SourcesPath locate the model documents. Both empty selects
	// the embedded Northwind model.
	ModelPath   string `yaml:"model_path"`
	SourcesPath string `yaml:"sources_path"`

	Target      Target    `yaml:"target"`
	Naming      Naming    `yaml:"naming"`
	Dialect     string    `yaml:"dialect"`
	Parallelism int       `yaml:"parallelism"`
	Log         Log       `yaml:"log"`
	Blob        Blob      `yaml:"blob"`
	Warehouse   Warehouse `yaml:"warehouse"`
	HTTP        HTTP      `yaml:"http"`
}

// Target names where materialized entities live.
type Target struct {
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
}

// Naming controls how source columns are referenced.
type Naming struct {
	ColumnCase string `yaml:"column_case"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Blob selects the artifact store.
type Blob struct {
	Driver string `yaml:"driver"`
	FSRoot string `yaml:"fs_root"`
	S3     S3     `yaml:"s3"`
}

// S3 configures the S3 artifact store.
type S3 struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
}

// Warehouse selects the database queries are applied to.
type Warehouse struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// HTTP configures the API server.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Target:      Target{Schema: "dab"},
		Naming:      Naming{ColumnCase: string(core.CasePreserve)},
		Dialect:     sqlast.DuckDB.Name,
		Parallelism: 4,
		Log:         Log{Level: "info", Format: "text"},
		Blob:        Blob{Driver: "memory", FSRoot: "artifacts"},
		Warehouse:   Warehouse{Driver: "sqlite", DSN: "file:anchorgen.db"},
		HTTP:        HTTP{Addr: ":8080"},
	}
}

// Load layers the YAML file at path (skipped when empty) and environment
// overrides read through getenv over the defaults. A nil getenv reads the
// process environment.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(EnvPrefix + key)); v != "" {
			*dst = v
		}
	}
	str("MODEL_PATH", &c.ModelPath)
	str("SOURCES_PATH", &c.SourcesPath)
	str("TARGET_DATABASE", &c.Target.Database)
	str("TARGET_SCHEMA", &c.Target.Schema)
	str("COLUMN_CASE", &c.Naming.ColumnCase)
	str("DIALECT", &c.Dialect)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("BLOB_DRIVER", &c.Blob.Driver)
	str("BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("S3_BUCKET", &c.Blob.S3.Bucket)
	str("S3_REGION", &c.Blob.S3.Region)
	str("S3_ENDPOINT", &c.Blob.S3.Endpoint)
	str("S3_PREFIX", &c.Blob.S3.Prefix)
	str("WAREHOUSE_DRIVER", &c.Warehouse.Driver)
	str("WAREHOUSE_DSN", &c.Warehouse.DSN)
	str("HTTP_ADDR", &c.HTTP.Addr)

	var errs []error
	if v := strings.TrimSpace(getenv(EnvPrefix + "PARALLELISM")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sPARALLELISM: %w", EnvPrefix, err))
		} else {
			c.Parallelism = n
		}
	}
	if v := strings.TrimSpace(getenv(EnvPrefix + "S3_PATH_STYLE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sS3_PATH_STYLE: %w", EnvPrefix, err))
		} else {
			c.Blob.S3.PathStyle = b
		}
	}
	return errors.Join(errs...)
}

// BindFlags registers the common flags on fs, defaulting to the current
// values of c. Parsing fs then overrides c in place.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ModelPath, "model", c.ModelPath, "path to the Anchor Modeler XML (empty: embedded Northwind)")
	fs.StringVar(&c.SourcesPath, "sources", c.SourcesPath, "path to sources.yaml")
	fs.StringVar(&c.Target.Database, "target-db", c.Target.Database, "target database (catalog) of materialized entities")
	fs.StringVar(&c.Target.Schema, "target-schema", c.Target.Schema, "target schema of materialized entities")
	fs.StringVar(&c.Naming.ColumnCase, "column-case", c.Naming.ColumnCase, "source column naming: preserve or snake_case")
	fs.StringVar(&c.Dialect, "dialect", c.Dialect, "sql dialect: "+strings.Join(sqlast.Dialects(), ", "))
	fs.IntVar(&c.Parallelism, "parallelism", c.Parallelism, "entities compiled concurrently")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "log level: debug, info, warn, error")
	fs.StringVar(&c.Log.Format, "log-format", c.Log.Format, "log format: text or json")
}

// BindWarehouseFlags registers the warehouse connection flags.
func (c *Config) BindWarehouseFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Warehouse.Driver, "warehouse", c.Warehouse.Driver, "warehouse driver: postgres or sqlite")
	fs.StringVar(&c.Warehouse.DSN, "dsn", c.Warehouse.DSN, "warehouse data source name")
}

// ColumnCase resolves Naming.ColumnCase.
func (c Config) ColumnCase() (core.ColumnCase, error) {
	return core.ParseColumnCase(c.Naming.ColumnCase)
}

// SQLDialect resolves Dialect.
func (c Config) SQLDialect() (sqlast.Dialect, error) {
	return sqlast.ParseDialect(c.Dialect)
}

// CoreTarget converts Target for the query builders.
func (c Config) CoreTarget() core.Target {
	return core.Target{Database: c.Target.Database, Schema: c.Target.Schema}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.ColumnCase(); err != nil {
		errs = append(errs, fmt.Errorf("naming.column_case: %w", err))
	}
	if _, err := c.SQLDialect(); err != nil {
		errs = append(errs, fmt.Errorf("dialect: %w", err))
	}
	if c.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("parallelism: must be at least 1, got %d", c.Parallelism))
	}
	if c.SourcesPath != "" && c.ModelPath == "" {
		errs = append(errs, errors.New("sources_path: requires model_path"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	switch c.Blob.Driver {
	case "memory":
	case "fs":
		if c.Blob.FSRoot == "" {
			errs = append(errs, errors.New("blob.fs_root: required for the fs driver"))
		}
	case "s3":
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket: required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver))
	}
	switch c.Warehouse.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("warehouse.driver: unknown driver %q", c.Warehouse.Driver))
	}
	return errors.Join(errs...)
}
