package core

import "anchorgen/internal/sqlast"

// KeysetPrefix returns the literal part of a keyset identifier:
// {descriptor}@{system}[~{tenant}]|. An empty tenant is treated as absent.
func KeysetPrefix(descriptor, system, tenant string) string {
	if tenant != "" {
		return descriptor + "@" + system + "~" + tenant + "|"
	}
	return descriptor + "@" + system + "|"
}

// BuildKeyset builds the keyset identifier expression for one source row.
// Key columns are cast to text and joined by a literal "|" in input order. A
// NULL key column contributes an empty string so the keyset itself is never
// NULL and the anti-join can match it on the next run.
func BuildKeyset(descriptor, system string, key []string, tenant string) sqlast.Expr {
	parts := make([]sqlast.Expr, 0, 2*len(key))
	parts = append(parts, sqlast.String{Value: KeysetPrefix(descriptor, system, tenant)})
	for i, k := range key {
		if i > 0 {
			parts = append(parts, sqlast.String{Value: "|"})
		}
		parts = append(parts, sqlast.Coalesce{Args: []sqlast.Expr{
			sqlast.Cast{Expr: sqlast.Col(k), Type: sqlast.Varchar},
			sqlast.String{Value: ""},
		}})
	}
	return sqlast.Concat{Parts: parts}
}
