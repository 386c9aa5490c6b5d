package schema

import (
	"testing"

	"anchorgen/internal/validation"
	"anchorgen/pkg/domain"
)

func TestLoadNorthwindIsComplete(t *testing.T) {
	loaded, err := LoadNorthwind()
	if err != nil {
		t.Fatalf("load northwind: %v", err)
	}
	m := loaded.Model
	if len(m.Anchors) != 6 || len(m.Ties) != 5 || len(m.Attributes) != 10 || len(m.Knots) != 1 {
		t.Fatalf("unexpected model size: %d anchors, %d ties, %d attributes, %d knots",
			len(m.Anchors), len(m.Ties), len(m.Attributes), len(m.Knots))
	}
	if err := validation.ValidateModel(m, validation.WithManifestEntries(loaded.Manifest)); err != nil {
		t.Fatalf("embedded model must validate:\n%v", err)
	}
	if got := loaded.Manifest[domain.KindTie]; len(got) != 4 {
		t.Fatalf("expected the reports-to tie to come from the model xml, manifest ties = %v", got)
	}
}

func TestNorthwindFingerprintStable(t *testing.T) {
	a, err := NorthwindFingerprint()
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	loaded, err := LoadNorthwind()
	if err != nil {
		t.Fatalf("load northwind: %v", err)
	}
	if a == "" || a != loaded.Fingerprint {
		t.Fatalf("fingerprint mismatch: %q vs %q", a, loaded.Fingerprint)
	}
}
