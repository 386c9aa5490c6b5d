// Package validation checks a loaded anchor model against its source manifest
// before any query is generated. All problems are collected in one pass and
// reported together with ready-to-paste sources.yaml stubs.
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"anchorgen/pkg/domain"
)

// ErrInvalidModel is matched by every *ModelError.
var ErrInvalidModel = errors.New("invalid model")

const (
	headerMissing   = "Missing or incomplete source mappings in sources.yaml"
	headerAdd       = "Add these entries to sources.yaml:"
	headerStructure = "Model structure problems:"
)

// Issue is one validation finding.
type Issue struct {
	Kind    domain.Kind
	Entity  string
	Message string
	// Mapping marks findings fixed in sources.yaml; others need a model change.
	Mapping bool
}

func (i Issue) String() string {
	return fmt.Sprintf("%s %s: %s", i.Kind, i.Entity, i.Message)
}

// ModelError aggregates every finding of a validation run.
type ModelError struct {
	issues []Issue
	stubs  map[domain.Kind][]string
}

// Issues returns a copy of the collected findings in discovery order.
func (e *ModelError) Issues() []Issue {
	return append([]Issue(nil), e.issues...)
}

// Stubs returns the sources.yaml fragments generated for one entity kind.
func (e *ModelError) Stubs(kind domain.Kind) []string {
	return append([]string(nil), e.stubs[kind]...)
}

// Is implements errors.Is support for ErrInvalidModel.
func (e *ModelError) Is(target error) bool { return target == ErrInvalidModel }

func (e *ModelError) Error() string {
	var sections []string
	var structural []string
	for _, issue := range e.issues {
		if !issue.Mapping {
			structural = append(structural, "  - "+issue.String())
		}
	}
	if len(structural) > 0 {
		sections = append(sections, headerStructure+"\n"+strings.Join(structural, "\n"))
	}
	if e.hasStubs() {
		sections = append(sections, headerMissing, headerAdd)
		for _, kind := range domain.Kinds() {
			stubs := e.stubs[kind]
			if len(stubs) == 0 {
				continue
			}
			sections = append(sections, sectionName(kind)+":\n"+strings.Join(stubs, "\n"))
		}
	}
	return strings.Join(sections, "\n\n")
}

func (e *ModelError) hasStubs() bool {
	for _, s := range e.stubs {
		if len(s) > 0 {
			return true
		}
	}
	return false
}

// Option tunes a validation run.
type Option func(*validator)

// WithManifestEntries reports manifest entries naming entities the model does
// not declare. Entries are grouped by kind as they appear in sources.yaml.
func WithManifestEntries(entries map[domain.Kind][]string) Option {
	return func(v *validator) { v.manifest = entries }
}

type validator struct {
	model    *domain.Model
	manifest map[domain.Kind][]string
	err      ModelError
}

// ValidateModel scans every entity and returns a *ModelError describing all
// missing or incomplete source mappings, or nil when the model is complete.
func ValidateModel(m *domain.Model, opts ...Option) error {
	if m == nil {
		return errors.New("validate: nil model")
	}
	v := &validator{model: m, err: ModelError{stubs: make(map[domain.Kind][]string)}}
	for _, opt := range opts {
		opt(v)
	}
	v.checkStructure()
	for _, e := range m.Entities() {
		v.checkSources(e)
	}
	v.checkManifest()
	if len(v.err.issues) == 0 {
		return nil
	}
	return &v.err
}

func (v *validator) structural(kind domain.Kind, entity, format string, args ...any) {
	v.err.issues = append(v.err.issues, Issue{Kind: kind, Entity: entity, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) stub(e domain.Entity, message, stub string) {
	v.err.issues = append(v.err.issues, Issue{Kind: e.Kind(), Entity: e.Name(), Message: message, Mapping: true})
	v.err.stubs[e.Kind()] = append(v.err.stubs[e.Kind()], stub)
}

func (v *validator) checkStructure() {
	seen := make(map[string]bool, len(v.model.Anchors))
	for _, a := range v.model.Anchors {
		if seen[a.Mnemonic] {
			v.structural(domain.KindAnchor, a.Mnemonic, "declared more than once")
		}
		seen[a.Mnemonic] = true
	}
	names := make(map[domain.Kind]map[string]bool)
	for _, e := range v.model.Entities() {
		if e.Kind() == domain.KindAnchor {
			continue
		}
		if names[e.Kind()] == nil {
			names[e.Kind()] = make(map[string]bool)
		}
		if names[e.Kind()][e.Name()] {
			v.structural(e.Kind(), e.Name(), "declared more than once")
		}
		names[e.Kind()][e.Name()] = true
	}
	for _, t := range v.model.Ties {
		if len(t.Roles) < 2 {
			v.structural(domain.KindTie, t.Name(), "needs at least two roles")
		}
		for _, r := range t.Roles {
			if !seen[r.Type] {
				v.structural(domain.KindTie, t.Name(), "role %s references unknown anchor %s", r.Role, r.Type)
			}
		}
	}
	for _, a := range v.model.Attributes {
		if !seen[a.AnchorMnemonic] {
			v.structural(domain.KindAttribute, a.Name(), "anchor %s is not declared", a.AnchorMnemonic)
		}
		if a.Knotted() {
			if _, ok := v.model.Knot(a.KnotRange); !ok {
				v.structural(domain.KindAttribute, a.Name(), "knot %s is not declared", a.KnotRange)
			}
		}
	}
}

func (v *validator) checkSources(e domain.Entity) {
	sources := e.Mappings()
	if len(sources) == 0 {
		v.stub(e, "no sources defined", stubFor(e))
		return
	}
	for i, src := range sources {
		if missing := src.MissingFields(e.Kind()); len(missing) > 0 {
			msg := fmt.Sprintf("source[%d] missing fields: [%s]", i, strings.Join(missing, ", "))
			v.stub(e, msg, "# "+title(e.Kind())+" "+e.Name()+" "+msg+"\n"+stubFor(e))
			continue
		}
		if tie, ok := e.(*domain.Tie); ok {
			for ri, r := range tie.Roles {
				if _, ok := src.KeysFor(r); !ok {
					msg := fmt.Sprintf("source[%d] has no key for role %s", i, tie.RoleKey(ri))
					v.stub(e, msg, "# Tie "+tie.Name()+" "+msg+"\n"+stubFor(e))
					break
				}
			}
		}
	}
}

func (v *validator) checkManifest() {
	if len(v.manifest) == 0 {
		return
	}
	declared := make(map[domain.Kind]map[string]bool)
	for _, e := range v.model.Entities() {
		if declared[e.Kind()] == nil {
			declared[e.Kind()] = make(map[string]bool)
		}
		declared[e.Kind()][e.Name()] = true
	}
	for _, kind := range domain.Kinds() {
		names := append([]string(nil), v.manifest[kind]...)
		sort.Strings(names)
		for _, name := range names {
			if !declared[kind][name] {
				v.structural(kind, name, "listed in sources.yaml but not declared in the model")
			}
		}
	}
}

func sectionName(kind domain.Kind) string { return string(kind) + "s" }

func title(kind domain.Kind) string {
	s := string(kind)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
