// Package sqlbundle assembles rendered entity queries into executable scripts
// and splits scripts back into statements for the warehouse appliers.
package sqlbundle

import (
	"fmt"
	"strings"
	"time"

	sqldocs "anchorgen/docs/schema/sql"
	"anchorgen/internal/core"
)

// NorthwindSeed returns the portable DDL and seed rows of the Northwind
// source tables.
func NorthwindSeed() string {
	return sqldocs.Northwind
}

// Header describes the run a bundle was generated from.
type Header struct {
	RunID       string
	Dialect     string
	ExecutedAt  time.Time
	Fingerprint string
}

// Bundle concatenates artifacts in order into one script. Every statement is
// preceded by a comment naming the model and its checksum and terminated with
// a semicolon.
func Bundle(h Header, artifacts []core.Artifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- anchorgen run %s (%s)\n", h.RunID, h.Dialect)
	if !h.ExecutedAt.IsZero() {
		fmt.Fprintf(&b, "-- executed_at: %s\n", h.ExecutedAt.UTC().Format(time.RFC3339))
	}
	if h.Fingerprint != "" {
		fmt.Fprintf(&b, "-- fingerprint: %s\n", h.Fingerprint)
	}
	for _, a := range artifacts {
		fmt.Fprintf(&b, "\n-- %s checksum %s\n", a.ModelName, a.Checksum)
		b.WriteString(strings.TrimRight(strings.TrimSpace(a.SQL), ";"))
		b.WriteString(";\n")
	}
	return b.String()
}

// SplitStatements splits a semicolon-terminated script into executable
// statements. Comments ("--" to end of line) and blank lines are dropped;
// semicolons and comment markers inside quoted strings or identifiers are
// kept. Each returned statement keeps its terminating semicolon, a trailing
// unterminated statement is returned as is.
func SplitStatements(script string) []string {
	var stmts []string
	var current strings.Builder
	var quote rune

	flush := func() {
		if stmt := trimBlankLines(current.String()); stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if quote != 0 {
			current.WriteRune(c)
			if c == quote {
				// doubled quotes escape themselves
				if i+1 < len(runes) && runes[i+1] == quote {
					current.WriteRune(runes[i+1])
					i++
					continue
				}
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
			current.WriteRune(c)
		case c == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			if i < len(runes) {
				current.WriteRune('\n')
			}
		case c == ';':
			current.WriteRune(c)
			flush()
		default:
			current.WriteRune(c)
		}
	}
	flush()
	return stmts
}

func trimBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, strings.TrimRight(l, " \t\r"))
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
