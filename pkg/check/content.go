package check

import (
	"fmt"
	"sort"
	"strings"
)

// EmptyLabelPlaceholder is what a label renders when every text field is
// disabled: a fixed-width blank placeholder of two characters.
const EmptyLabelPlaceholder = "  "

// DefaultSource is the object source shown for hand-drawn annotations.
const DefaultSource = "manual"

// LabelExpectation describes the text an object's label should contain.
type LabelExpectation struct {
	Name       string
	ID         int
	Source     string            // defaults to "manual"
	Attributes map[string]string // attribute name -> rendered value
}

// Identity returns the "<name> <id> (<source>)" header of the label.
func (e LabelExpectation) Identity() string {
	source := e.Source
	if source == "" {
		source = DefaultSource
	}
	return fmt.Sprintf("%s %d (%s)", e.Name, e.ID, source)
}

// CheckLabelContent verifies a manual-source label with a single attribute.
func CheckLabelContent(text, name string, id int, attrName, attrValue string) error {
	return LabelExpectation{
		Name:       name,
		ID:         id,
		Attributes: map[string]string{attrName: attrValue},
	}.Check(text)
}

// Check verifies that text contains the identity header and every attribute pair.
func (e LabelExpectation) Check(text string) error {
	identity := e.Identity()
	if !strings.Contains(text, identity) {
		return failf("content", fmt.Sprintf("%q", identity), fmt.Sprintf("%q", text),
			"label text is missing the name/id/source header")
	}

	names := make([]string, 0, len(e.Attributes))
	for name := range e.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pair := fmt.Sprintf("%s: %s", name, e.Attributes[name])
		if !strings.Contains(text, pair) {
			return failf("content", fmt.Sprintf("%q", pair), fmt.Sprintf("%q", text),
				"label text is missing attribute %q", name)
		}
	}
	return nil
}

// CheckTextFieldVisibility verifies a label's rendered text against the
// enabled fields. With no fields the label must be exactly the placeholder;
// with any of ID, Label or Source it must carry real content.
func CheckTextFieldVisibility(text string, cfg TextContentConfig) error {
	if cfg.None() {
		if text != EmptyLabelPlaceholder {
			return failf("visibility", fmt.Sprintf("%q", EmptyLabelPlaceholder), fmt.Sprintf("%q", text),
				"label must render only the blank placeholder when no text fields are enabled")
		}
		return nil
	}

	if (cfg.ID || cfg.Label || cfg.Source) && strings.TrimSpace(text) == "" {
		return failf("visibility", "non-blank text", fmt.Sprintf("%q", text),
			"label must render content when fields %s are enabled", cfg)
	}
	return nil
}

// ElementCounts are the observed numbers of per-field text elements.
type ElementCounts struct {
	Attributes   int
	Descriptions int
}

// CountExpectation describes the annotations behind the labels.
type CountExpectation struct {
	Shapes             int
	AttributesPerShape int
	Descriptions       int // shapes with an authored description
}

// CheckTextElementCounts verifies attribute and description element counts.
func CheckTextElementCounts(cfg TextContentConfig, observed ElementCounts, want CountExpectation) error {
	wantAttrs := 0
	if cfg.Attributes {
		wantAttrs = want.Shapes * want.AttributesPerShape
	}
	if observed.Attributes != wantAttrs {
		return failf("count", fmt.Sprintf("%d", wantAttrs), fmt.Sprintf("%d", observed.Attributes),
			"attribute text elements with fields %s", cfg)
	}

	wantDesc := 0
	if cfg.Description {
		wantDesc = want.Descriptions
	}
	if observed.Descriptions != wantDesc {
		return failf("count", fmt.Sprintf("%d", wantDesc), fmt.Sprintf("%d", observed.Descriptions),
			"description text elements with fields %s", cfg)
	}
	return nil
}
