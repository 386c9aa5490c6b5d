package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"anchorgen/pkg/domain"
)

// Manifest is the decoded sources.yaml: entity name to source list, per kind.
type Manifest struct {
	Anchors    map[string][]yamlSource `yaml:"anchors,omitempty"`
	Ties       map[string][]yamlSource `yaml:"ties,omitempty"`
	Attributes map[string][]yamlSource `yaml:"attributes,omitempty"`
	Knots      map[string][]yamlSource `yaml:"knots,omitempty"`
}

type yamlSource struct {
	System    string                `yaml:"system"`
	Table     string                `yaml:"table"`
	Key       columnList            `yaml:"key,omitempty"`
	Keys      map[string]columnList `yaml:"keys,omitempty"`
	Value     string                `yaml:"value,omitempty"`
	Tenant    string                `yaml:"tenant,omitempty"`
	ChangedAt string                `yaml:"changed_at,omitempty"`
}

// columnList accepts either a scalar column name or a sequence of names.
type columnList []string

func (c *columnList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			*c = nil
			return nil
		}
		*c = columnList{node.Value}
		return nil
	case yaml.SequenceNode:
		var cols []string
		if err := node.Decode(&cols); err != nil {
			return err
		}
		*c = cols
		return nil
	default:
		return fmt.Errorf("line %d: key must be a column name or a list of column names", node.Line)
	}
}

// MarshalYAML writes single columns as scalars.
func (c columnList) MarshalYAML() (any, error) {
	if len(c) == 1 {
		return c[0], nil
	}
	return []string(c), nil
}

func fromSource(s domain.Source) yamlSource {
	out := yamlSource{
		System:    s.System,
		Table:     s.Table,
		Key:       columnList(s.Key),
		Value:     s.Value,
		Tenant:    s.Tenant,
		ChangedAt: s.ChangedAt,
	}
	if len(s.Keys) > 0 {
		out.Keys = make(map[string]columnList, len(s.Keys))
		for role, cols := range s.Keys {
			out.Keys[role] = columnList(cols)
		}
	}
	return out
}

func (s yamlSource) source() domain.Source {
	out := domain.Source{
		System:    s.System,
		Table:     s.Table,
		Value:     s.Value,
		Tenant:    s.Tenant,
		ChangedAt: s.ChangedAt,
	}
	if len(s.Key) > 0 {
		out.Key = domain.Columns(s.Key)
	}
	if len(s.Keys) > 0 {
		out.Keys = make(map[string]domain.Columns, len(s.Keys))
		for role, cols := range s.Keys {
			out.Keys[role] = domain.Columns(cols)
		}
	}
	return out
}

// ParseManifest decodes sources.yaml. Unknown fields are rejected so that
// typos surface as errors instead of silently missing mappings. An empty
// document yields an empty manifest.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode sources yaml: %w", err)
	}
	return &m, nil
}

func (m *Manifest) section(kind domain.Kind) map[string][]yamlSource {
	switch kind {
	case domain.KindAnchor:
		return m.Anchors
	case domain.KindTie:
		return m.Ties
	case domain.KindAttribute:
		return m.Attributes
	case domain.KindKnot:
		return m.Knots
	default:
		return nil
	}
}

// Sources returns the mapped sources of one entity.
func (m *Manifest) Sources(kind domain.Kind, name string) ([]domain.Source, bool) {
	list, ok := m.section(kind)[name]
	if !ok {
		return nil, false
	}
	out := make([]domain.Source, len(list))
	for i, s := range list {
		out[i] = s.source()
	}
	return out, true
}

// Entries lists the entity names present in the manifest, sorted per kind.
func (m *Manifest) Entries() map[domain.Kind][]string {
	out := make(map[domain.Kind][]string)
	for _, kind := range domain.Kinds() {
		section := m.section(kind)
		if len(section) == 0 {
			continue
		}
		names := make([]string, 0, len(section))
		for name := range section {
			names = append(names, name)
		}
		sort.Strings(names)
		out[kind] = names
	}
	return out
}

// Apply attaches manifest sources to the model's entities. Entities listed in
// the manifest replace any sources embedded in the model XML.
func (m *Manifest) Apply(model *domain.Model) {
	for _, a := range model.Anchors {
		if src, ok := m.Sources(domain.KindAnchor, a.Name()); ok {
			a.Sources = src
		}
	}
	for _, t := range model.Ties {
		if src, ok := m.Sources(domain.KindTie, t.Name()); ok {
			t.Sources = src
		}
	}
	for _, a := range model.Attributes {
		if src, ok := m.Sources(domain.KindAttribute, a.Name()); ok {
			a.Sources = src
		}
	}
	for _, k := range model.Knots {
		if src, ok := m.Sources(domain.KindKnot, k.Name()); ok {
			k.Sources = src
		}
	}
}

// ManifestFromModel collects the sources currently attached to the model,
// typically the ones embedded in the model XML, into a manifest.
func ManifestFromModel(model *domain.Model) *Manifest {
	m := &Manifest{}
	for _, e := range model.Entities() {
		if len(e.Mappings()) == 0 {
			continue
		}
		list := make([]yamlSource, len(e.Mappings()))
		for i, s := range e.Mappings() {
			list[i] = fromSource(s)
		}
		section := m.section(e.Kind())
		if section == nil {
			section = make(map[string][]yamlSource)
			m.setSection(e.Kind(), section)
		}
		section[e.Name()] = list
	}
	return m
}

func (m *Manifest) setSection(kind domain.Kind, section map[string][]yamlSource) {
	switch kind {
	case domain.KindAnchor:
		m.Anchors = section
	case domain.KindTie:
		m.Ties = section
	case domain.KindAttribute:
		m.Attributes = section
	case domain.KindKnot:
		m.Knots = section
	}
}

// Encode renders the manifest back to YAML.
func (m *Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
