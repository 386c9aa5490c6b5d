package core

import "anchorgen/internal/sqlast"

// CombineSelects merges per-source selects into one feed with UNION ALL.
// A single select is returned unchanged; nil is returned for no input.
func CombineSelects(selects []sqlast.Query) sqlast.Query {
	if len(selects) == 0 {
		return nil
	}
	result := selects[0]
	for _, s := range selects[1:] {
		result = &sqlast.Union{Left: result, Right: s, All: true}
	}
	return result
}
