package core

import (
	"fmt"
	"strings"
	"unicode"
)

// ColumnCase selects how source column names are referenced.
type ColumnCase string

const (
	// CasePreserve references source columns exactly as written in the manifest.
	CasePreserve ColumnCase = "preserve"
	// CaseSnake normalizes source columns with NormalizeColumn.
	CaseSnake ColumnCase = "snake_case"
)

// ParseColumnCase validates a column case name. Empty selects CasePreserve.
func ParseColumnCase(s string) (ColumnCase, error) {
	switch ColumnCase(strings.ToLower(strings.TrimSpace(s))) {
	case "", CasePreserve:
		return CasePreserve, nil
	case CaseSnake, "snake":
		return CaseSnake, nil
	default:
		return "", fmt.Errorf("unknown column case %q (supported: preserve, snake_case)", s)
	}
}

// Apply maps a source column name according to the case style.
func (c ColumnCase) Apply(name string) string {
	if c == CaseSnake {
		return NormalizeColumn(name)
	}
	return name
}

// NormalizeColumn converts a camelCase source field to snake_case. Existing
// underscores are doubled first so they stay distinguishable from inserted
// ones: bool_isCamelCase -> bool__is_camel_case, boolIsCamelCase -> bool_is_camel_case.
func NormalizeColumn(name string) string {
	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range runes {
		if r == '_' {
			b.WriteString("__")
			continue
		}
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
