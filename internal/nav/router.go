package nav

import (
	"reflect"
	"sync"
)

// View is the router's current navigation state.
type View struct {
	Section     string       `json:"section"`
	Subsections []Subsection `json:"subsections,omitempty"`
}

// Router holds the active section/template state for one session and
// decides, per applied directive, whether the viewport should scroll to
// top (only on structural change: template ids or their order differ).
type Router struct {
	mu   sync.Mutex
	view View
}

// NewRouter creates a router showing the welcome section.
func NewRouter() *Router {
	return &Router{view: View{Section: WelcomeSection}}
}

// Apply installs a parsed directive. The welcome directive clears all
// dynamic state regardless of what was showing. Returns whether the view
// changed at all and whether the change was structural (scroll to top).
func (r *Router) Apply(d *Directive) (changed, scrollTop bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.Section == WelcomeSection {
		changed = r.view.Section != WelcomeSection || len(r.view.Subsections) > 0
		r.view = View{Section: WelcomeSection}
		return changed, changed
	}

	next := View{Section: d.Section, Subsections: d.Subsections}
	changed = !viewsEqual(r.view, next)
	scrollTop = structuralChange(r.view.Subsections, next.Subsections)
	r.view = next
	return changed, scrollTop
}

// ApplyRaw parses and applies a raw payload. A malformed payload leaves
// the view untouched and returns the parse error.
func (r *Router) ApplyRaw(raw []byte) (changed, scrollTop bool, err error) {
	d, err := ParseDirective(raw)
	if err != nil {
		return false, false, err
	}
	changed, scrollTop = r.Apply(d)
	return changed, scrollTop, nil
}

// View returns a copy of the current navigation state.
func (r *Router) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := View{Section: r.view.Section}
	out.Subsections = append(out.Subsections, r.view.Subsections...)
	return out
}

// structuralChange reports whether the template id sequence differs,
// by id and order. Prop-only updates re-render in place without scrolling.
func structuralChange(old, next []Subsection) bool {
	if len(old) != len(next) {
		return true
	}
	for i := range old {
		if old[i].ID != next[i].ID || old[i].TemplateID != next[i].TemplateID {
			return true
		}
	}
	return false
}

func viewsEqual(a, b View) bool {
	if a.Section != b.Section || len(a.Subsections) != len(b.Subsections) {
		return false
	}
	for i := range a.Subsections {
		if a.Subsections[i].ID != b.Subsections[i].ID ||
			a.Subsections[i].TemplateID != b.Subsections[i].TemplateID ||
			!reflect.DeepEqual(a.Subsections[i].Props, b.Subsections[i].Props) {
			return false
		}
	}
	return true
}
