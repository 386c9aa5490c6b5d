package core

import (
	"errors"
	"fmt"
	"strings"

	"anchorgen/pkg/domain"
)

var (
	// ErrConfiguration marks problems in the model or source manifest that a
	// model author has to fix.
	ErrConfiguration = errors.New("configuration error")
	// ErrNoSources is returned when a builder is called with an empty source
	// list, which validation should have rejected first.
	ErrNoSources = errors.New("no sources defined")
	// ErrUnknownEntity is returned when a model name matches no blueprint.
	ErrUnknownEntity = errors.New("unknown entity")
)

// ConfigError describes a configuration problem for one entity.
type ConfigError struct {
	Kind   domain.Kind
	Entity string
	Fields []string
	Reason string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Kind, e.Entity)
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, ": missing fields %v", e.Fields)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// Is reports ConfigError values as ErrConfiguration.
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

func noSources(kind domain.Kind, name string) error {
	return fmt.Errorf("%w for %s %s", ErrNoSources, kind, name)
}
