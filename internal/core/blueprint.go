package core

import (
	"anchorgen/internal/sqlast"
	"anchorgen/pkg/domain"
)

// Column suffixes of the generated output contract.
const (
	suffixID        = "_id"
	suffixValue     = "_value"
	suffixSystem    = "_system"
	suffixTenant    = "_tenant"
	suffixChangedAt = "_changed_at"
	suffixLoadedAt  = "_loaded_at"
)

// OutputColumn is one column of an entity's output schema.
type OutputColumn struct {
	Name string          `json:"name"`
	Type sqlast.DataType `json:"type"`
}

// Blueprint is the per-entity configuration record that drives query
// generation. It carries everything the builders need so that entities can
// be compiled independently of each other and of the model.
type Blueprint struct {
	ModelName  string          `json:"model_name"`
	Kind       domain.Kind     `json:"kind"`
	Name       string          `json:"name"`
	Descriptor string          `json:"descriptor"`
	Historized bool            `json:"historized"`
	Sources    []domain.Source `json:"-"`

	// Anchor
	Identity string `json:"identity,omitempty"`

	// Tie
	Roles           []domain.Role     `json:"roles,omitempty"`
	RoleDescriptors map[string]string `json:"role_descriptors,omitempty"`

	// Attribute
	AnchorMnemonic   string `json:"anchor,omitempty"`
	AnchorDescriptor string `json:"anchor_descriptor,omitempty"`
	KnotMnemonic     string `json:"knot,omitempty"`
	KnotDescriptor   string `json:"knot_descriptor,omitempty"`
}

// ModelName returns the materialized table name for an entity.
func ModelName(kind domain.Kind, name string) string {
	return string(kind) + "__" + name
}

// GenerateBlueprints enumerates the model into one blueprint per entity:
// anchors, ties, attributes, then knots, each in declaration order.
func GenerateBlueprints(m *domain.Model) []Blueprint {
	descriptors := m.AnchorDescriptors()
	out := make([]Blueprint, 0, len(m.Anchors)+len(m.Ties)+len(m.Attributes)+len(m.Knots))
	for _, a := range m.Anchors {
		out = append(out, Blueprint{
			ModelName:  ModelName(domain.KindAnchor, a.Mnemonic),
			Kind:       domain.KindAnchor,
			Name:       a.Mnemonic,
			Descriptor: a.Descriptor,
			Identity:   a.Identity,
			Sources:    a.Sources,
		})
	}
	for _, t := range m.Ties {
		roleDescriptors := make(map[string]string, len(t.Roles))
		for _, r := range t.Roles {
			if d, ok := descriptors[r.Type]; ok {
				roleDescriptors[r.Type] = d
			}
		}
		name := t.Name()
		out = append(out, Blueprint{
			ModelName:       ModelName(domain.KindTie, name),
			Kind:            domain.KindTie,
			Name:            name,
			Descriptor:      t.Label(),
			Historized:      t.Historized,
			Roles:           domain.SortedRoles(t.Roles),
			RoleDescriptors: roleDescriptors,
			Sources:         t.Sources,
		})
	}
	for _, a := range m.Attributes {
		bp := Blueprint{
			ModelName:        ModelName(domain.KindAttribute, a.Name()),
			Kind:             domain.KindAttribute,
			Name:             a.Name(),
			Descriptor:       a.Descriptor,
			Historized:       a.Historized,
			AnchorMnemonic:   a.AnchorMnemonic,
			AnchorDescriptor: a.AnchorDescriptor,
			Sources:          a.Sources,
		}
		if bp.AnchorDescriptor == "" {
			bp.AnchorDescriptor = descriptors[a.AnchorMnemonic]
		}
		if a.Knotted() {
			bp.KnotMnemonic = a.KnotRange
			if k, ok := m.Knot(a.KnotRange); ok {
				bp.KnotDescriptor = k.Descriptor
			}
		}
		out = append(out, bp)
	}
	for _, k := range m.Knots {
		out = append(out, Blueprint{
			ModelName:  ModelName(domain.KindKnot, k.Mnemonic),
			Kind:       domain.KindKnot,
			Name:       k.Mnemonic,
			Descriptor: k.Descriptor,
			Sources:    k.Sources,
		})
	}
	return out
}

// tracksChange reports whether the entity carries a changed_at column.
func (bp Blueprint) tracksChange() bool {
	switch bp.Kind {
	case domain.KindAnchor, domain.KindTie:
		return true
	case domain.KindAttribute:
		return bp.Historized
	default:
		return false
	}
}

func (bp Blueprint) changeFromSource() bool {
	if len(bp.Sources) == 0 {
		return false
	}
	for _, src := range bp.Sources {
		if src.ChangedAt == "" {
			return false
		}
	}
	return true
}

func (bp Blueprint) col(suffix string) string { return bp.Name + suffix }

// RoleColumn names the keyset column of tie role i: {type}_id, or
// {type}_{role}_id when the anchor type occurs in more than one role.
func (bp Blueprint) RoleColumn(i int) string {
	tie := domain.Tie{Roles: bp.Roles}
	return tie.RoleKey(i) + suffixID
}

// UniqueKeys returns the columns identifying a row of the materialized entity.
// A historized attribute is versioned by changed_at only when every source
// declares a changed_at column; the execution timestamp fallback differs per
// run and would make every unchanged row look new.
func (bp Blueprint) UniqueKeys() []string {
	switch bp.Kind {
	case domain.KindTie:
		keys := make([]string, len(bp.Roles))
		for i := range bp.Roles {
			keys[i] = bp.RoleColumn(i)
		}
		return keys
	case domain.KindAttribute:
		if bp.Historized && bp.changeFromSource() {
			return []string{bp.col(suffixID), bp.col(suffixChangedAt)}
		}
		return []string{bp.col(suffixID)}
	default:
		return []string{bp.col(suffixID)}
	}
}

// RankColumns orders duplicate target rows: latest load first, then latest change.
func (bp Blueprint) RankColumns() []string {
	cols := []string{bp.col(suffixLoadedAt)}
	if bp.tracksChange() {
		cols = append(cols, bp.col(suffixChangedAt))
	}
	return cols
}

// Columns returns the output schema of the entity in select order.
func (bp Blueprint) Columns() []OutputColumn {
	var cols []OutputColumn
	switch bp.Kind {
	case domain.KindTie:
		for i := range bp.Roles {
			cols = append(cols, OutputColumn{Name: bp.RoleColumn(i), Type: sqlast.Varchar})
		}
	case domain.KindAttribute, domain.KindKnot:
		// Values are kept as text; dataRange is descriptive only.
		cols = append(cols,
			OutputColumn{Name: bp.col(suffixID), Type: sqlast.Varchar},
			OutputColumn{Name: bp.col(suffixValue), Type: sqlast.Varchar},
		)
	default:
		cols = append(cols, OutputColumn{Name: bp.col(suffixID), Type: sqlast.Varchar})
	}
	cols = append(cols,
		OutputColumn{Name: bp.col(suffixSystem), Type: sqlast.Varchar},
		OutputColumn{Name: bp.col(suffixTenant), Type: sqlast.Varchar},
	)
	if bp.tracksChange() {
		cols = append(cols, OutputColumn{Name: bp.col(suffixChangedAt), Type: sqlast.Timestamp})
	}
	return append(cols, OutputColumn{Name: bp.col(suffixLoadedAt), Type: sqlast.Timestamp})
}

// ColumnNames returns the names of Columns().
func (bp Blueprint) ColumnNames() []string {
	cols := bp.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
