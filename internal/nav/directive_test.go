package nav

import (
	"strings"
	"testing"
)

func TestParseWelcomeShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"bare", `welcome`},
		{"quoted", `"welcome"`},
		{"quoted padded", `" welcome "`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := ParseDirective([]byte(tc.raw))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if d.Section != WelcomeSection {
				t.Errorf("section = %q, want welcome", d.Section)
			}
			if len(d.Subsections) != 0 {
				t.Errorf("subsections = %d, want 0", len(d.Subsections))
			}
		})
	}
}

func TestParseObjectPayload(t *testing.T) {
	raw := `{"section":"products","subsections":[{"templateId":"pricing","props":{"title":"Plans"}},"legacy-block"]}`
	d, err := ParseDirective([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Section != "products" {
		t.Errorf("section = %q, want products", d.Section)
	}
	if len(d.Subsections) != 2 {
		t.Fatalf("subsections = %d, want 2", len(d.Subsections))
	}
	if !d.Subsections[0].Generative() || d.Subsections[0].TemplateID != "pricing" {
		t.Errorf("first subsection = %+v, want generative pricing", d.Subsections[0])
	}
	if d.Subsections[0].ID != "pricing" {
		t.Errorf("generative id = %q, want templateId fallback", d.Subsections[0].ID)
	}
	if d.Subsections[1].ID != "legacy-block" || d.Subsections[1].Generative() {
		t.Errorf("second subsection = %+v, want bare legacy-block", d.Subsections[1])
	}
}

func TestParseKeyAliases(t *testing.T) {
	raw := `{"sectionId":"docs","subSections":["intro"]}`
	d, err := ParseDirective([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Section != "docs" {
		t.Errorf("section = %q, want docs", d.Section)
	}
	if len(d.Subsections) != 1 || d.Subsections[0].ID != "intro" {
		t.Errorf("subsections = %+v, want [intro]", d.Subsections)
	}
}

func TestParseStringWrappedPayload(t *testing.T) {
	raw := `"{\"section\":\"docs\"}"`
	d, err := ParseDirective([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Section != "docs" {
		t.Errorf("section = %q, want docs", d.Section)
	}
}

func TestParseLegacyArrayForm(t *testing.T) {
	raw := `["products", [{"templateId":"faq"}, "overview"]]`
	d, err := ParseDirective([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Section != "products" {
		t.Errorf("section = %q, want products", d.Section)
	}
	if len(d.Subsections) != 2 {
		t.Fatalf("subsections = %d, want 2", len(d.Subsections))
	}
}

func TestParseDeduplicatesSubsections(t *testing.T) {
	raw := `{"section":"docs","subsections":["intro","guide","intro"]}`
	d, err := ParseDirective([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(d.Subsections) != 2 {
		t.Fatalf("subsections = %d, want 2 after dedup", len(d.Subsections))
	}
	if d.Subsections[0].ID != "intro" || d.Subsections[1].ID != "guide" {
		t.Errorf("order = %+v, want first occurrence preserved", d.Subsections)
	}
}

func TestParseRejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ``},
		{"not json", `navigate(welcome)`},
		{"no section", `{"subsections":["a"]}`},
		{"unknown field", `{"section":"docs","extra":1}`},
		{"unknown template", `{"section":"docs","subsections":[{"templateId":"carousel"}]}`},
		{"blank subsection id", `{"section":"docs","subsections":[""]}`},
		{"subsection without id", `{"section":"docs","subsections":[{"props":{}}]}`},
		{"legacy empty", `[]`},
		{"legacy bad section", `[42]`},
		{"trailing data", `{"section":"docs"} garbage`},
		{"number", `42`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseDirective([]byte(tc.raw)); err == nil {
				t.Errorf("payload %q accepted, want error", tc.raw)
			}
		})
	}
}

func TestCatalogIsSortedAndComplete(t *testing.T) {
	cat := Catalog()
	if len(cat) == 0 {
		t.Fatal("empty catalog")
	}
	for i := 1; i < len(cat); i++ {
		if strings.Compare(cat[i-1].ID, cat[i].ID) >= 0 {
			t.Errorf("catalog not sorted at %d: %q >= %q", i, cat[i-1].ID, cat[i].ID)
		}
	}
	for _, tpl := range cat {
		if !KnownTemplate(tpl.ID) {
			t.Errorf("catalog template %q not known", tpl.ID)
		}
		if tpl.Schema == nil {
			t.Errorf("template %q has no schema", tpl.ID)
		}
	}
}
