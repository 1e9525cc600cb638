// Package nav parses navigation directives pushed by the assistant runtime
// and tracks the resulting section/template view state. Payloads arrive in
// several historical shapes; everything is decoded strictly. A payload
// that is not one of the declared shapes is an error, never evaluated.
package nav

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// WelcomeSection is the reserved section id that resets all dynamic state.
const WelcomeSection = "welcome"

// Subsection is one entry of a section's content list. A subsection is
// "generative" when TemplateID is set (payload key "templateId"); otherwise
// it is a legacy bare id.
type Subsection struct {
	ID         string         `json:"id"`
	TemplateID string         `json:"templateId,omitempty"`
	Props      map[string]any `json:"props,omitempty"`
}

// Generative reports whether this subsection carries a template payload.
func (s Subsection) Generative() bool { return s.TemplateID != "" }

// Directive is a normalized navigation payload.
type Directive struct {
	Section     string       `json:"section"`
	Subsections []Subsection `json:"subsections,omitempty"`
}

// payload covers the wire shape and its legacy key aliases.
type payload struct {
	Section     string            `json:"section"`
	SectionID   string            `json:"sectionId"`
	Subsections []json.RawMessage `json:"subsections"`
	SubSections []json.RawMessage `json:"subSections"`
}

// ParseDirective decodes a navigation payload in any of its accepted
// shapes:
//
//   - the literal string "welcome" (bare or JSON-quoted)
//   - a JSON string wrapping one of the shapes below
//   - a payload object {"section": ..., "subsections": [...]}
//   - the legacy multi-argument array form [section, subsections]
//
// Subsection entries may be legacy bare-string ids or generative objects
// with a "templateId". Duplicate subsection ids are removed, first
// occurrence wins. Anything else is an error and the caller treats the
// navigation as a no-op.
func ParseDirective(raw []byte) (*Directive, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	// Bare literal, not valid JSON on its own.
	if string(raw) == WelcomeSection {
		return &Directive{Section: WelcomeSection}, nil
	}

	switch raw[0] {
	case '"':
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("parse payload string: %w", err)
		}
		if strings.TrimSpace(inner) == WelcomeSection {
			return &Directive{Section: WelcomeSection}, nil
		}
		return ParseDirective([]byte(inner))
	case '{':
		var p payload
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("parse payload object: %w", err)
		}
		return fromPayload(p)
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(raw, &parts); err != nil {
			return nil, fmt.Errorf("parse payload array: %w", err)
		}
		return fromLegacyArgs(parts)
	default:
		return nil, fmt.Errorf("unrecognized payload shape")
	}
}

func fromPayload(p payload) (*Directive, error) {
	section := p.Section
	if section == "" {
		section = p.SectionID
	}
	if section == "" {
		return nil, fmt.Errorf("payload has no section")
	}

	rawSubs := p.Subsections
	if rawSubs == nil {
		rawSubs = p.SubSections
	}
	subs, err := parseSubsections(rawSubs)
	if err != nil {
		return nil, err
	}
	return &Directive{Section: section, Subsections: subs}, nil
}

// fromLegacyArgs normalizes the legacy multi-argument calling convention
// [section, subsections] into the payload shape.
func fromLegacyArgs(parts []json.RawMessage) (*Directive, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty legacy payload")
	}
	var section string
	if err := json.Unmarshal(parts[0], &section); err != nil {
		return nil, fmt.Errorf("legacy payload: first argument is not a section id: %w", err)
	}
	if section == "" {
		return nil, fmt.Errorf("legacy payload has no section")
	}

	d := &Directive{Section: section}
	if len(parts) > 1 {
		var rawSubs []json.RawMessage
		if err := json.Unmarshal(parts[1], &rawSubs); err != nil {
			return nil, fmt.Errorf("legacy payload: second argument is not a subsection list: %w", err)
		}
		subs, err := parseSubsections(rawSubs)
		if err != nil {
			return nil, err
		}
		d.Subsections = subs
	}
	return d, nil
}

func parseSubsections(raws []json.RawMessage) ([]Subsection, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	subs := make([]Subsection, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	for i, raw := range raws {
		sub, err := parseSubsection(raw, i)
		if err != nil {
			return nil, err
		}
		// Dedup by id, preserving order.
		if seen[sub.ID] {
			continue
		}
		seen[sub.ID] = true
		subs = append(subs, sub)
	}
	return subs, nil
}

func parseSubsection(raw json.RawMessage, index int) (Subsection, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Subsection{}, fmt.Errorf("subsection %d: empty", index)
	}

	// Legacy bare string id.
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return Subsection{}, fmt.Errorf("subsection %d: %w", index, err)
		}
		if id == "" {
			return Subsection{}, fmt.Errorf("subsection %d: blank id", index)
		}
		return Subsection{ID: id}, nil
	}

	var sub Subsection
	if err := strictUnmarshal(raw, &sub); err != nil {
		return Subsection{}, fmt.Errorf("subsection %d: %w", index, err)
	}
	if sub.ID == "" {
		// Generative entries commonly omit an explicit id.
		sub.ID = sub.TemplateID
	}
	if sub.ID == "" {
		return Subsection{}, fmt.Errorf("subsection %d: neither id nor templateId", index)
	}
	if sub.Generative() && !KnownTemplate(sub.TemplateID) {
		return Subsection{}, fmt.Errorf("subsection %d: unknown template %q", index, sub.TemplateID)
	}
	return sub, nil
}

// strictUnmarshal decodes JSON rejecting unknown fields and trailing data.
func strictUnmarshal(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after payload")
	}
	return nil
}
