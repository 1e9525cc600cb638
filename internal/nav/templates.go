package nav

import (
	"sort"

	"github.com/invopop/jsonschema"
)

// Template describes one entry of the presentational template catalog: the
// contract a generative subsection's props must satisfy. Rendering is the
// frontend's concern; the gateway only owns the contract.
type Template struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Schema *jsonschema.Schema `json:"schema"`
}

// QuizProps drives the multiple-choice quiz template.
type QuizProps struct {
	Title     string `json:"title"`
	Questions []struct {
		Prompt  string   `json:"prompt"`
		Options []string `json:"options"`
		Answer  int      `json:"answer"`
	} `json:"questions"`
}

// SurveyProps drives the free-form survey template.
type SurveyProps struct {
	Title     string `json:"title"`
	Questions []struct {
		Prompt   string   `json:"prompt"`
		Kind     string   `json:"kind"` // "text", "rating", "choice"
		Choices  []string `json:"choices,omitempty"`
		Required bool     `json:"required,omitempty"`
	} `json:"questions"`
}

// TutorialProps drives the step-by-step tutorial template.
type TutorialProps struct {
	Title string `json:"title"`
	Steps []struct {
		Heading string `json:"heading"`
		Body    string `json:"body"`
		Media   string `json:"media,omitempty"`
	} `json:"steps"`
}

// ScorecardProps drives the metric scorecard template.
type ScorecardProps struct {
	Title   string `json:"title"`
	Metrics []struct {
		Label string  `json:"label"`
		Value float64 `json:"value"`
		Max   float64 `json:"max,omitempty"`
		Unit  string  `json:"unit,omitempty"`
	} `json:"metrics"`
}

// OnboardingProps drives the onboarding checklist template.
type OnboardingProps struct {
	Title string `json:"title"`
	Items []struct {
		Label string `json:"label"`
		Done  bool   `json:"done"`
	} `json:"items"`
}

// ContractReviewProps drives the contract-review widget.
type ContractReviewProps struct {
	Title   string `json:"title"`
	Clauses []struct {
		Heading  string `json:"heading"`
		Text     string `json:"text"`
		Severity string `json:"severity,omitempty"` // "info", "warning", "critical"
	} `json:"clauses"`
}

// ComparisonProps drives the side-by-side comparison template.
type ComparisonProps struct {
	Title   string   `json:"title"`
	Columns []string `json:"columns"`
	Rows    []struct {
		Label  string   `json:"label"`
		Values []string `json:"values"`
	} `json:"rows"`
}

// TimelineProps drives the timeline template.
type TimelineProps struct {
	Title  string `json:"title"`
	Events []struct {
		Label string `json:"label"`
		Date  string `json:"date"`
		Body  string `json:"body,omitempty"`
	} `json:"events"`
}

// PricingProps drives the pricing-tier template.
type PricingProps struct {
	Title string `json:"title"`
	Tiers []struct {
		Name     string   `json:"name"`
		Price    string   `json:"price"`
		Features []string `json:"features"`
	} `json:"tiers"`
}

// FAQProps drives the FAQ accordion template.
type FAQProps struct {
	Title   string `json:"title"`
	Entries []struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	} `json:"entries"`
}

var catalog = map[string]Template{}

func register(id, name string, props any) {
	catalog[id] = Template{ID: id, Name: name, Schema: jsonschema.Reflect(props)}
}

func init() {
	register("quiz", "Quiz", &QuizProps{})
	register("survey", "Survey", &SurveyProps{})
	register("tutorial", "Tutorial", &TutorialProps{})
	register("scorecard", "Scorecard", &ScorecardProps{})
	register("onboarding", "Onboarding", &OnboardingProps{})
	register("contract-review", "Contract Review", &ContractReviewProps{})
	register("comparison", "Comparison", &ComparisonProps{})
	register("timeline", "Timeline", &TimelineProps{})
	register("pricing", "Pricing", &PricingProps{})
	register("faq", "FAQ", &FAQProps{})
}

// KnownTemplate reports whether a template id exists in the catalog.
func KnownTemplate(id string) bool {
	_, ok := catalog[id]
	return ok
}

// Catalog returns the template catalog sorted by id.
func Catalog() []Template {
	out := make([]Template, 0, len(catalog))
	for _, t := range catalog {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
