package nav

import "testing"

func TestRouterStartsAtWelcome(t *testing.T) {
	r := NewRouter()
	if v := r.View(); v.Section != WelcomeSection || len(v.Subsections) != 0 {
		t.Errorf("initial view = %+v, want bare welcome", v)
	}
}

func TestWelcomeClearsEverything(t *testing.T) {
	r := NewRouter()
	r.Apply(&Directive{Section: "products", Subsections: []Subsection{
		{ID: "pricing", TemplateID: "pricing", Props: map[string]any{"title": "Plans"}},
	}})

	changed, scrollTop := r.Apply(&Directive{Section: WelcomeSection})
	if !changed || !scrollTop {
		t.Errorf("welcome reset: changed=%v scrollTop=%v, want true true", changed, scrollTop)
	}
	if v := r.View(); v.Section != WelcomeSection || len(v.Subsections) != 0 {
		t.Errorf("view = %+v, want bare welcome", v)
	}

	// Welcome on an already-clear view is a no-op.
	changed, _ = r.Apply(&Directive{Section: WelcomeSection})
	if changed {
		t.Error("welcome on welcome reported a change")
	}
}

func TestStructuralChangeScrollsToTop(t *testing.T) {
	r := NewRouter()

	changed, scrollTop := r.Apply(&Directive{Section: "docs", Subsections: []Subsection{{ID: "intro"}}})
	if !changed || !scrollTop {
		t.Errorf("first directive: changed=%v scrollTop=%v, want true true", changed, scrollTop)
	}

	// Same structure, different props: update in place, no scroll.
	changed, scrollTop = r.Apply(&Directive{Section: "docs", Subsections: []Subsection{
		{ID: "intro", Props: map[string]any{"highlight": true}},
	}})
	if !changed || scrollTop {
		t.Errorf("props-only change: changed=%v scrollTop=%v, want true false", changed, scrollTop)
	}

	// New subsection list: structural, scroll.
	changed, scrollTop = r.Apply(&Directive{Section: "docs", Subsections: []Subsection{{ID: "guide"}}})
	if !changed || !scrollTop {
		t.Errorf("structural change: changed=%v scrollTop=%v, want true true", changed, scrollTop)
	}
}

func TestIdenticalDirectiveIsNoOp(t *testing.T) {
	r := NewRouter()
	d := &Directive{Section: "docs", Subsections: []Subsection{
		{ID: "quiz", TemplateID: "quiz", Props: map[string]any{"title": "Check"}},
	}}
	r.Apply(d)
	changed, scrollTop := r.Apply(d)
	if changed || scrollTop {
		t.Errorf("repeated directive: changed=%v scrollTop=%v, want false false", changed, scrollTop)
	}
}

func TestApplyRawMalformedLeavesStateUntouched(t *testing.T) {
	r := NewRouter()
	r.Apply(&Directive{Section: "docs", Subsections: []Subsection{{ID: "intro"}}})
	before := r.View()

	changed, scrollTop, err := r.ApplyRaw([]byte(`{"section":`))
	if err == nil {
		t.Fatal("malformed payload accepted")
	}
	if changed || scrollTop {
		t.Errorf("malformed payload: changed=%v scrollTop=%v, want false false", changed, scrollTop)
	}
	after := r.View()
	if after.Section != before.Section || len(after.Subsections) != len(before.Subsections) {
		t.Errorf("view mutated by malformed payload: %+v -> %+v", before, after)
	}
}

func TestApplyRawWelcome(t *testing.T) {
	r := NewRouter()
	r.Apply(&Directive{Section: "docs", Subsections: []Subsection{{ID: "intro"}}})

	changed, _, err := r.ApplyRaw([]byte(`welcome`))
	if err != nil {
		t.Fatalf("apply raw: %v", err)
	}
	if !changed {
		t.Error("welcome reset not reported as a change")
	}
	if v := r.View(); v.Section != WelcomeSection {
		t.Errorf("section = %q, want welcome", v.Section)
	}
}
