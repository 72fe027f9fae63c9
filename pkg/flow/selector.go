package flow

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Selector identifies a rendered element on the page.
// Drivers resolve ID first, then CSS, then Text.
type Selector struct {
	CSS  string `yaml:"css"`  // CSS selector, e.g. .cvat_canvas_text
	ID   string `yaml:"id"`   // DOM id, e.g. cvat_canvas_shape_1
	Text string `yaml:"text"` // Visible text to match

	// Index picks one element when several match: "first", "last" or an
	// integer (negative counts from the end). String for variable support.
	Index string `yaml:"index"`

	Optional *bool `yaml:"optional"`
}

// UnmarshalYAML allows Selector to be unmarshaled from a CSS string or struct.
func (s *Selector) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.CSS = node.Value
		return nil
	}

	type raw Selector
	var r raw
	if err := node.Decode(&r); err != nil {
		return err
	}
	*s = Selector(r)
	return nil
}

// IsEmpty returns true if no selector properties are set.
func (s *Selector) IsEmpty() bool {
	return s.CSS == "" && s.ID == "" && s.Text == ""
}

// IsOptional reports whether a missing element is tolerated.
func (s *Selector) IsOptional() bool {
	return s.Optional != nil && *s.Optional
}

// Position resolves Index against the number of matched elements.
// An empty index selects the first element.
func (s *Selector) Position(count int) (int, error) {
	if count <= 0 {
		return 0, fmt.Errorf("no elements match %s", s.DescribeQuoted())
	}

	var pos int
	switch strings.ToLower(strings.TrimSpace(s.Index)) {
	case "", "first":
		pos = 0
	case "last":
		pos = count - 1
	default:
		n, err := strconv.Atoi(strings.TrimSpace(s.Index))
		if err != nil {
			return 0, fmt.Errorf("invalid index %q: %w", s.Index, err)
		}
		if n < 0 {
			n += count
		}
		pos = n
	}

	if pos < 0 || pos >= count {
		return 0, fmt.Errorf("index %s out of range: %d element(s) match %s", s.Index, count, s.DescribeQuoted())
	}
	return pos, nil
}

// Describe returns a human-readable description.
func (s *Selector) Describe() string {
	var d string
	switch {
	case s.ID != "":
		d = "#" + s.ID
	case s.CSS != "":
		d = s.CSS
	case s.Text != "":
		d = s.Text
	}
	if s.Index != "" {
		d += "[" + s.Index + "]"
	}
	return d
}

// DescribeQuoted returns a quoted description like css="value" or id="value".
func (s *Selector) DescribeQuoted() string {
	var d string
	switch {
	case s.ID != "":
		d = "id=\"" + s.ID + "\""
	case s.CSS != "":
		d = "css=\"" + s.CSS + "\""
	case s.Text != "":
		d = "text=\"" + s.Text + "\""
	}
	if s.Index != "" {
		d += " index=" + s.Index
	}
	return d
}
