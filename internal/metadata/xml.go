// Package metadata loads anchor models from Anchor Modeler XML and source
// mappings from sources.yaml.
package metadata

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"anchorgen/pkg/domain"
)

type xmlSchema struct {
	XMLName xml.Name    `xml:"schema"`
	Knots   []xmlKnot   `xml:"knot"`
	Anchors []xmlAnchor `xml:"anchor"`
	Ties    []xmlTie    `xml:"tie"`
}

type xmlKnot struct {
	Mnemonic    string          `xml:"mnemonic,attr"`
	Descriptor  string          `xml:"descriptor,attr"`
	DataRange   string          `xml:"dataRange,attr"`
	Description *xmlDescription `xml:"description"`
}

type xmlAnchor struct {
	Mnemonic    string          `xml:"mnemonic,attr"`
	Descriptor  string          `xml:"descriptor,attr"`
	Identity    string          `xml:"identity,attr"`
	Attributes  []xmlAttribute  `xml:"attribute"`
	Description *xmlDescription `xml:"description"`
}

type xmlAttribute struct {
	Mnemonic    string          `xml:"mnemonic,attr"`
	Descriptor  string          `xml:"descriptor,attr"`
	TimeRange   string          `xml:"timeRange,attr"`
	KnotRange   string          `xml:"knotRange,attr"`
	DataRange   string          `xml:"dataRange,attr"`
	Description *xmlDescription `xml:"description"`
}

type xmlTie struct {
	TimeRange   string          `xml:"timeRange,attr"`
	Roles       []xmlAnchorRole `xml:"anchorRole"`
	Description *xmlDescription `xml:"description"`
}

type xmlAnchorRole struct {
	Type       string `xml:"type,attr"`
	Role       string `xml:"role,attr"`
	Identifier bool   `xml:"identifier,attr"`
}

// xmlDescription holds source mappings embedded in an entity's <description>,
// which Anchor Modeler round-trips untouched.
type xmlDescription struct {
	Sources []xmlSource `xml:"source"`
}

type xmlSource struct {
	System    string       `xml:"system,attr"`
	Table     string       `xml:"table,attr"`
	KeyAttr   string       `xml:"key,attr"`
	Value     string       `xml:"value,attr"`
	Tenant    string       `xml:"tenant,attr"`
	ChangedAt string       `xml:"changed_at,attr"`
	Key       []xmlColumns `xml:"key"`
	Keys      *xmlRoleKeys `xml:"keys"`
}

type xmlColumns struct {
	Text string   `xml:",chardata"`
	Cols []string `xml:"col"`
}

func (c xmlColumns) columns() domain.Columns {
	if len(c.Cols) > 0 {
		return trimAll(c.Cols)
	}
	if t := strings.TrimSpace(c.Text); t != "" {
		return domain.Columns{t}
	}
	return nil
}

type xmlRoleKeys struct {
	Entries []xmlRoleKey `xml:",any"`
}

type xmlRoleKey struct {
	XMLName xml.Name
	xmlColumns
}

func (s xmlSource) source() domain.Source {
	out := domain.Source{
		System:    s.System,
		Table:     s.Table,
		Value:     s.Value,
		Tenant:    s.Tenant,
		ChangedAt: s.ChangedAt,
	}
	if s.KeyAttr != "" {
		out.Key = domain.Columns{s.KeyAttr}
	}
	for _, k := range s.Key {
		out.Key = append(out.Key, k.columns()...)
	}
	if s.Keys != nil {
		out.Keys = make(map[string]domain.Columns, len(s.Keys.Entries))
		for _, e := range s.Keys.Entries {
			out.Keys[e.XMLName.Local] = e.columns()
		}
	}
	return out
}

func (d *xmlDescription) sources() []domain.Source {
	if d == nil || len(d.Sources) == 0 {
		return nil
	}
	out := make([]domain.Source, len(d.Sources))
	for i, s := range d.Sources {
		out[i] = s.source()
	}
	return out
}

// ParseModel decodes an Anchor Modeler schema document. Attributes are
// flattened out of their anchors in document order. A timeRange marks an
// attribute or tie as historized.
func ParseModel(r io.Reader) (*domain.Model, error) {
	var doc xmlSchema
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode model xml: %w", err)
	}
	m := &domain.Model{}
	for _, k := range doc.Knots {
		m.Knots = append(m.Knots, &domain.Knot{
			Mnemonic:   k.Mnemonic,
			Descriptor: k.Descriptor,
			DataRange:  k.DataRange,
			Sources:    k.Description.sources(),
		})
	}
	for _, a := range doc.Anchors {
		if a.Mnemonic == "" {
			return nil, fmt.Errorf("decode model xml: anchor %q has no mnemonic", a.Descriptor)
		}
		m.Anchors = append(m.Anchors, &domain.Anchor{
			Mnemonic:   a.Mnemonic,
			Descriptor: a.Descriptor,
			Identity:   a.Identity,
			Sources:    a.Description.sources(),
		})
		for _, attr := range a.Attributes {
			m.Attributes = append(m.Attributes, &domain.Attribute{
				Mnemonic:         attr.Mnemonic,
				Descriptor:       attr.Descriptor,
				AnchorMnemonic:   a.Mnemonic,
				AnchorDescriptor: a.Descriptor,
				Historized:       attr.TimeRange != "",
				KnotRange:        attr.KnotRange,
				DataRange:        attr.DataRange,
				Sources:          attr.Description.sources(),
			})
		}
	}
	for _, t := range doc.Ties {
		tie := &domain.Tie{Historized: t.TimeRange != "", Sources: t.Description.sources()}
		for _, r := range t.Roles {
			tie.Roles = append(tie.Roles, domain.Role{Type: r.Type, Role: r.Role, Identifier: r.Identifier})
		}
		m.Ties = append(m.Ties, tie)
	}
	return m, nil
}

func trimAll(in []string) domain.Columns {
	out := make(domain.Columns, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
