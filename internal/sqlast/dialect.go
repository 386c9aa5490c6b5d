package sqlast

import (
	"fmt"
	"strings"
)

// Dialect captures the syntax differences between supported warehouses.
type Dialect struct {
	Name string
	// Qualify reports native QUALIFY support; otherwise a ranked subquery is emitted.
	Qualify bool
	// AntiJoin reports native ANTI JOIN support; otherwise LEFT JOIN ... IS NULL is emitted.
	AntiJoin bool
	// Types overrides the rendered name of neutral data types.
	Types map[DataType]string
}

// Supported dialects.
var (
	DuckDB   = Dialect{Name: "duckdb", Qualify: true, AntiJoin: true}
	Postgres = Dialect{Name: "postgres"}
	// SQLite has no TIMESTAMP affinity; timestamps are stored as ISO text.
	SQLite = Dialect{Name: "sqlite", Types: map[DataType]string{Timestamp: "TEXT", Varchar: "TEXT"}}
)

// Dialects lists the supported dialect names.
func Dialects() []string {
	return []string{DuckDB.Name, Postgres.Name, SQLite.Name}
}

// ParseDialect resolves a dialect by name. An empty name selects DuckDB.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DuckDB.Name:
		return DuckDB, nil
	case Postgres.Name, "postgresql", "pgx":
		return Postgres, nil
	case SQLite.Name, "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unknown sql dialect %q (supported: %s)", name, strings.Join(Dialects(), ", "))
	}
}

// TypeName renders a data type for the dialect.
func (d Dialect) TypeName(t DataType) string {
	if name, ok := d.Types[t]; ok {
		return name
	}
	return string(t)
}

// QuoteIdent quotes an identifier, doubling embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteString quotes a string literal, doubling embedded single quotes.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
