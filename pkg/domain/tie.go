package domain

import (
	"sort"
	"strings"
)

// SortedRoles returns the roles in canonical order: identifier roles first,
// then by anchor type. Roles of equal rank keep their declaration order.
func SortedRoles(roles []Role) []Role {
	sorted := make([]Role, len(roles))
	copy(sorted, roles)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Identifier != sorted[j].Identifier {
			return sorted[i].Identifier
		}
		return sorted[i].Type < sorted[j].Type
	})
	return sorted
}

// TieName builds the canonical tie name from the sorted roles joined as
// type_role pairs.
func TieName(roles []Role) string {
	sorted := SortedRoles(roles)
	parts := make([]string, 0, 2*len(sorted))
	for _, r := range sorted {
		parts = append(parts, r.Type, r.Role)
	}
	return strings.Join(parts, "_")
}
