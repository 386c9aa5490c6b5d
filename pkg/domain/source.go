package domain

import (
	"sort"
	"strings"
)

// Source field names as they appear in sources.yaml.
const (
	FieldSystem    = "system"
	FieldTable     = "table"
	FieldKey       = "key"
	FieldKeys      = "keys"
	FieldValue     = "value"
	FieldTenant    = "tenant"
	FieldChangedAt = "changed_at"
)

// Columns is an ordered, non-empty list of source columns. Simple keys hold
// one column; composite keys keep their declared order.
type Columns []string

// Source maps one entity to one physical source table.
type Source struct {
	System string
	Table  string
	// Key identifies the row for anchors, attributes and knots.
	Key Columns
	// Keys maps tie role keys ({type} or {type}_{role}) to source columns.
	Keys      map[string]Columns
	Value     string
	Tenant    string
	ChangedAt string
}

// RequiredFields returns the mandatory source fields for an entity kind.
func RequiredFields(kind Kind) []string {
	switch kind {
	case KindTie:
		return []string{FieldSystem, FieldTable, FieldKeys}
	case KindAttribute, KindKnot:
		return []string{FieldSystem, FieldTable, FieldKey, FieldValue}
	default:
		return []string{FieldSystem, FieldTable, FieldKey}
	}
}

// MissingFields returns the required fields the source leaves empty, sorted.
func (s Source) MissingFields(kind Kind) []string {
	var missing []string
	for _, f := range RequiredFields(kind) {
		if !s.has(f) {
			missing = append(missing, f)
		}
	}
	sort.Strings(missing)
	return missing
}

func (s Source) has(field string) bool {
	switch field {
	case FieldSystem:
		return strings.TrimSpace(s.System) != ""
	case FieldTable:
		return strings.TrimSpace(s.Table) != ""
	case FieldKey:
		return len(s.Key) > 0
	case FieldKeys:
		return len(s.Keys) > 0
	case FieldValue:
		return strings.TrimSpace(s.Value) != ""
	case FieldTenant:
		return s.Tenant != ""
	case FieldChangedAt:
		return s.ChangedAt != ""
	}
	return false
}

// KeysFor resolves the source columns for a tie role: {type}_{role} first,
// then {type} alone.
func (s Source) KeysFor(r Role) (Columns, bool) {
	if cols, ok := s.Keys[r.Type+"_"+r.Role]; ok && len(cols) > 0 {
		return cols, true
	}
	if cols, ok := s.Keys[r.Type]; ok && len(cols) > 0 {
		return cols, true
	}
	return nil, false
}
