package check

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// TextField is one of the fields the workspace can render in a canvas label.
type TextField string

// Text fields, named as in the workspace "text content" dropdown.
const (
	FieldID          TextField = "ID"
	FieldLabel       TextField = "Label"
	FieldAttributes  TextField = "Attributes"
	FieldSource      TextField = "Source"
	FieldDescription TextField = "Descriptions"
)

// AllTextFields lists every field in dropdown order.
var AllTextFields = []TextField{FieldID, FieldLabel, FieldAttributes, FieldSource, FieldDescription}

// ParseTextField accepts the dropdown title or a lower-case alias.
func ParseTextField(s string) (TextField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "id":
		return FieldID, nil
	case "label", "name":
		return FieldLabel, nil
	case "attributes", "attribute", "attrs":
		return FieldAttributes, nil
	case "source":
		return FieldSource, nil
	case "descriptions", "description":
		return FieldDescription, nil
	default:
		return "", fmt.Errorf("unknown text field %q", s)
	}
}

// TextContentConfig selects which fields a label renders.
type TextContentConfig struct {
	ID          bool
	Label       bool
	Attributes  bool
	Source      bool
	Description bool
}

// AllFields enables every field.
func AllFields() TextContentConfig {
	return TextContentConfig{ID: true, Label: true, Attributes: true, Source: true, Description: true}
}

// NewTextContentConfig builds a config from field names.
func NewTextContentConfig(names []string) (TextContentConfig, error) {
	var cfg TextContentConfig
	for _, name := range names {
		f, err := ParseTextField(name)
		if err != nil {
			return cfg, err
		}
		cfg.Set(f, true)
	}
	return cfg, nil
}

// Set toggles a single field.
func (c *TextContentConfig) Set(f TextField, on bool) {
	switch f {
	case FieldID:
		c.ID = on
	case FieldLabel:
		c.Label = on
	case FieldAttributes:
		c.Attributes = on
	case FieldSource:
		c.Source = on
	case FieldDescription:
		c.Description = on
	}
}

// Has reports whether a field is enabled.
func (c TextContentConfig) Has(f TextField) bool {
	switch f {
	case FieldID:
		return c.ID
	case FieldLabel:
		return c.Label
	case FieldAttributes:
		return c.Attributes
	case FieldSource:
		return c.Source
	case FieldDescription:
		return c.Description
	}
	return false
}

// Fields returns the enabled fields in dropdown order.
func (c TextContentConfig) Fields() []TextField {
	return lo.Filter(AllTextFields, func(f TextField, _ int) bool { return c.Has(f) })
}

// None reports whether every field is disabled.
func (c TextContentConfig) None() bool { return len(c.Fields()) == 0 }

// All reports whether every field is enabled.
func (c TextContentConfig) All() bool { return len(c.Fields()) == len(AllTextFields) }

// String lists enabled fields, or "none".
func (c TextContentConfig) String() string {
	fields := c.Fields()
	if len(fields) == 0 {
		return "none"
	}
	return strings.Join(lo.Map(fields, func(f TextField, _ int) string { return string(f) }), ",")
}
