// Package domain defines the anchor-model entities (anchors, ties, attributes
// and knots) together with their source mappings. Values are loaded once per
// generation run and treated as read-only afterwards.
package domain

import "strings"

// Kind identifies the structural shape of a modeled entity.
type Kind string

// Supported entity kinds. The order here is the order blueprints are emitted in.
const (
	// KindAnchor identifies an anchor (entity type).
	KindAnchor Kind = "anchor"
	// KindTie identifies a tie (relationship between anchors).
	KindTie Kind = "tie"
	// KindAttribute identifies an attribute of one anchor.
	KindAttribute Kind = "attribute"
	// KindKnot identifies a knot (enumerated value domain).
	KindKnot Kind = "knot"
)

// Kinds lists every supported entity kind in emission order.
func Kinds() []Kind {
	return []Kind{KindAnchor, KindTie, KindAttribute, KindKnot}
}

// Entity is implemented by every modeled entity kind.
type Entity interface {
	Kind() Kind
	// Name is the identifier used in sources.yaml and in model table names.
	Name() string
	// Label is a human readable description used in diagnostics.
	Label() string
	Mappings() []Source
}

// Anchor is a modeled entity type.
type Anchor struct {
	Mnemonic   string
	Descriptor string
	Identity   string
	Sources    []Source
}

// Kind implements Entity.
func (a *Anchor) Kind() Kind { return KindAnchor }

// Name implements Entity.
func (a *Anchor) Name() string { return a.Mnemonic }

// Label implements Entity.
func (a *Anchor) Label() string { return a.Descriptor }

// Mappings implements Entity.
func (a *Anchor) Mappings() []Source { return a.Sources }

// Role is one anchor participation in a tie.
type Role struct {
	Type       string
	Role       string
	Identifier bool
}

// Tie is a relationship among two or more anchors.
type Tie struct {
	Roles      []Role
	Historized bool
	Sources    []Source
}

// Kind implements Entity.
func (t *Tie) Kind() Kind { return KindTie }

// Name implements Entity and returns the canonical tie name.
func (t *Tie) Name() string { return TieName(t.Roles) }

// Label implements Entity.
func (t *Tie) Label() string {
	types := make([]string, 0, len(t.Roles))
	for _, r := range t.Roles {
		types = append(types, r.Type)
	}
	return strings.Join(types, " - ")
}

// Mappings implements Entity.
func (t *Tie) Mappings() []Source { return t.Sources }

// RepeatedTypes reports the anchor types that occur in more than one role.
func (t *Tie) RepeatedTypes() map[string]bool {
	counts := make(map[string]int, len(t.Roles))
	for _, r := range t.Roles {
		counts[r.Type]++
	}
	out := make(map[string]bool)
	for typ, n := range counts {
		if n > 1 {
			out[typ] = true
		}
	}
	return out
}

// RoleKey returns the sources.yaml key used for role i: the anchor type alone,
// or type and role joined when the anchor type repeats within the tie.
func (t *Tie) RoleKey(i int) string {
	r := t.Roles[i]
	if t.RepeatedTypes()[r.Type] {
		return r.Type + "_" + r.Role
	}
	return r.Type
}

// Attribute is a property of one anchor.
type Attribute struct {
	Mnemonic         string
	Descriptor       string
	AnchorMnemonic   string
	AnchorDescriptor string
	Historized       bool
	// KnotRange names the knot the value is drawn from; empty for plain values.
	KnotRange string
	DataRange string
	Sources   []Source
}

// Kind implements Entity.
func (a *Attribute) Kind() Kind { return KindAttribute }

// Name implements Entity and returns {anchor}_{mnemonic}.
func (a *Attribute) Name() string { return a.AnchorMnemonic + "_" + a.Mnemonic }

// Label implements Entity.
func (a *Attribute) Label() string { return a.AnchorDescriptor + " - " + a.Descriptor }

// Mappings implements Entity.
func (a *Attribute) Mappings() []Source { return a.Sources }

// Knotted reports whether the attribute value is drawn from a knot.
func (a *Attribute) Knotted() bool { return a.KnotRange != "" }

// Knot is an enumerated value domain referenced by knotted attributes.
type Knot struct {
	Mnemonic   string
	Descriptor string
	DataRange  string
	Sources    []Source
}

// Kind implements Entity.
func (k *Knot) Kind() Kind { return KindKnot }

// Name implements Entity.
func (k *Knot) Name() string { return k.Mnemonic }

// Label implements Entity.
func (k *Knot) Label() string { return k.Descriptor }

// Mappings implements Entity.
func (k *Knot) Mappings() []Source { return k.Sources }

// Model is the combined structural model and source manifest. Slices keep
// declaration order from model.xml.
type Model struct {
	Anchors    []*Anchor
	Ties       []*Tie
	Attributes []*Attribute
	Knots      []*Knot
}

// Entities returns every entity in emission order: anchors, ties, attributes, knots.
func (m *Model) Entities() []Entity {
	out := make([]Entity, 0, len(m.Anchors)+len(m.Ties)+len(m.Attributes)+len(m.Knots))
	for _, a := range m.Anchors {
		out = append(out, a)
	}
	for _, t := range m.Ties {
		out = append(out, t)
	}
	for _, a := range m.Attributes {
		out = append(out, a)
	}
	for _, k := range m.Knots {
		out = append(out, k)
	}
	return out
}

// Anchor looks up an anchor by mnemonic.
func (m *Model) Anchor(mnemonic string) (*Anchor, bool) {
	for _, a := range m.Anchors {
		if a.Mnemonic == mnemonic {
			return a, true
		}
	}
	return nil, false
}

// Knot looks up a knot by mnemonic.
func (m *Model) Knot(mnemonic string) (*Knot, bool) {
	for _, k := range m.Knots {
		if k.Mnemonic == mnemonic {
			return k, true
		}
	}
	return nil, false
}

// AnchorDescriptors maps anchor mnemonics to their descriptors.
func (m *Model) AnchorDescriptors() map[string]string {
	out := make(map[string]string, len(m.Anchors))
	for _, a := range m.Anchors {
		out[a.Mnemonic] = a.Descriptor
	}
	return out
}
