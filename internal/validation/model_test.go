package validation

import (
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"anchorgen/pkg/domain"
)

func completeModel() *domain.Model {
	return &domain.Model{
		Anchors: []*domain.Anchor{
			{Mnemonic: "PR", Descriptor: "Product", Sources: []domain.Source{{System: "nw", Table: "products", Key: domain.Columns{"product_id"}}}},
			{Mnemonic: "OR", Descriptor: "Order", Sources: []domain.Source{{System: "nw", Table: "orders", Key: domain.Columns{"order_id"}}}},
		},
		Ties: []*domain.Tie{{
			Roles: []domain.Role{{Type: "OR", Role: "order"}, {Type: "PR", Role: "product"}},
			Sources: []domain.Source{{System: "nw", Table: "order_details", Keys: map[string]domain.Columns{
				"OR": {"order_id"}, "PR": {"product_id"},
			}}},
		}},
		Attributes: []*domain.Attribute{{
			Mnemonic: "NAM", Descriptor: "Name", AnchorMnemonic: "PR", AnchorDescriptor: "Product",
			Sources: []domain.Source{{System: "nw", Table: "products", Key: domain.Columns{"product_id"}, Value: "product_name"}},
		}},
	}
}

func TestValidateModelComplete(t *testing.T) {
	if err := ValidateModel(completeModel()); err != nil {
		t.Fatalf("expected valid model, got %v", err)
	}
}

func TestValidateModelAggregatesMissingSources(t *testing.T) {
	m := &domain.Model{
		Anchors: []*domain.Anchor{{Mnemonic: "PR", Descriptor: "Product"}, {Mnemonic: "PE", Descriptor: "Person"}},
		Ties:    []*domain.Tie{{Roles: []domain.Role{{Type: "PE", Role: "manager"}, {Type: "PE", Role: "employee"}}}},
	}
	err := ValidateModel(m)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, ErrInvalidModel) {
		t.Fatalf("expected ErrInvalidModel, got %v", err)
	}
	var me *ModelError
	if !errors.As(err, &me) {
		t.Fatalf("expected *ModelError, got %T", err)
	}
	if n := len(me.Issues()); n != 3 {
		t.Fatalf("expected 3 issues, got %d: %v", n, me.Issues())
	}
	text := err.Error()
	for _, want := range []string{
		"Missing or incomplete source mappings in sources.yaml",
		"Add these entries to sources.yaml:",
		"anchors:\n  PR:  # Product\n    - system: ???\n      table: ???\n      key: ???",
		"  PE:  # Person",
		"ties:\n  PE_manager_PE_employee:\n    - system: ???\n      table: ???\n      keys:\n        PE_manager: ???\n        PE_employee: ???",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in report:\n%s", want, text)
		}
	}

	fragment := text[strings.Index(text, "anchors:"):]
	var doc map[string]map[string][]map[string]any
	if err := yaml.Unmarshal([]byte(fragment), &doc); err != nil {
		t.Fatalf("stub fragment is not valid yaml: %v\n%s", err, fragment)
	}
	if len(doc["anchors"]) != 2 || len(doc["ties"]) != 1 {
		t.Fatalf("unexpected parsed stubs: %v", doc)
	}
	keys, ok := doc["ties"]["PE_manager_PE_employee"][0]["keys"].(map[string]any)
	if !ok || keys["PE_manager"] != "???" {
		t.Fatalf("unexpected tie keys stub: %v", doc["ties"])
	}
}

func TestValidateModelReportsMissingFields(t *testing.T) {
	m := completeModel()
	m.Anchors[0].Sources[0].Key = nil
	m.Attributes[0].Sources = append(m.Attributes[0].Sources, domain.Source{System: "erp"})
	err := ValidateModel(m)
	if err == nil {
		t.Fatal("expected validation error")
	}
	text := err.Error()
	for _, want := range []string{
		"# Anchor PR source[0] missing fields: [key]\n  PR:  # Product",
		"attributes:\n# Attribute PR_NAM source[1] missing fields: [key, table, value]\n  PR_NAM:  # Product - Name",
		"      # Optional: changed_at: some_timestamp_column",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in report:\n%s", want, text)
		}
	}
	if strings.Contains(text, "ties:") {
		t.Fatalf("complete tie must not be reported:\n%s", text)
	}
}

func TestValidateModelUnresolvedTieRole(t *testing.T) {
	m := completeModel()
	m.Ties[0].Sources[0].Keys = map[string]domain.Columns{"OR": {"order_id"}}
	var me *ModelError
	if err := ValidateModel(m); !errors.As(err, &me) {
		t.Fatalf("expected model error, got %v", err)
	}
	stubs := me.Stubs(domain.KindTie)
	if len(stubs) != 1 || !strings.HasPrefix(stubs[0], "# Tie OR_order_PR_product source[0] has no key for role PR") {
		t.Fatalf("unexpected tie stubs %v", stubs)
	}
}

func TestValidateModelStructure(t *testing.T) {
	m := completeModel()
	m.Ties[0].Roles[1].Type = "XX"
	m.Ties[0].Sources[0].Keys["XX"] = domain.Columns{"product_id"}
	m.Attributes[0].KnotRange = "CAT"
	m.Anchors = append(m.Anchors, &domain.Anchor{Mnemonic: "PR", Descriptor: "Dup", Sources: m.Anchors[0].Sources})
	err := ValidateModel(m, WithManifestEntries(map[domain.Kind][]string{
		domain.KindAnchor: {"PR", "ZZ"},
	}))
	if err == nil {
		t.Fatal("expected structural errors")
	}
	text := err.Error()
	for _, want := range []string{
		"Model structure problems:",
		"anchor PR: declared more than once",
		"role product references unknown anchor XX",
		"attribute PR_NAM: knot CAT is not declared",
		"anchor ZZ: listed in sources.yaml but not declared in the model",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in report:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Add these entries") {
		t.Fatalf("structural-only report must not ask for stubs:\n%s", text)
	}
}

func TestValidateModelDuplicateNames(t *testing.T) {
	m := completeModel()
	dupTie := *m.Ties[0]
	dupAttr := *m.Attributes[0]
	m.Ties = append(m.Ties, &dupTie)
	m.Attributes = append(m.Attributes, &dupAttr)
	gender := []domain.Source{{System: "nw", Table: "genders", Key: domain.Columns{"code"}, Value: "label"}}
	m.Knots = append(m.Knots,
		&domain.Knot{Mnemonic: "GEN", Descriptor: "Gender", Sources: gender},
		&domain.Knot{Mnemonic: "GEN", Descriptor: "Gender", Sources: gender},
	)
	err := ValidateModel(m)
	if err == nil {
		t.Fatal("expected duplicate errors")
	}
	text := err.Error()
	for _, want := range []string{
		"tie OR_order_PR_product: declared more than once",
		"attribute PR_NAM: declared more than once",
		"knot GEN: declared more than once",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in report:\n%s", want, text)
		}
	}
}

func TestValidateModelNil(t *testing.T) {
	if err := ValidateModel(nil); err == nil {
		t.Fatal("expected error for nil model")
	}
}
