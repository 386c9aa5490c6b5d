package validation

import (
	"strings"

	"anchorgen/pkg/domain"
)

func stubFor(e domain.Entity) string {
	switch n := e.(type) {
	case *domain.Anchor:
		return anchorStub(n)
	case *domain.Tie:
		return tieStub(n)
	case *domain.Attribute:
		return attributeStub(n)
	case *domain.Knot:
		return knotStub(n)
	default:
		return "  " + e.Name() + ":"
	}
}

func anchorStub(a *domain.Anchor) string {
	return "  " + a.Mnemonic + ":  # " + a.Descriptor + `
    - system: ???
      table: ???
      key: ???`
}

func tieStub(t *domain.Tie) string {
	var b strings.Builder
	b.WriteString("  " + t.Name() + `:
    - system: ???
      table: ???
      keys:`)
	for i := range t.Roles {
		b.WriteString("\n        " + t.RoleKey(i) + ": ???")
	}
	return b.String()
}

func attributeStub(a *domain.Attribute) string {
	return "  " + a.Name() + ":  # " + a.Label() + `
    - system: ???
      table: ???
      key: ???
      value: ???
      # Optional: changed_at: some_timestamp_column`
}

func knotStub(k *domain.Knot) string {
	return "  " + k.Mnemonic + ":  # " + k.Descriptor + `
    - system: ???
      table: ???
      key: ???
      value: ???`
}
