package executor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/devicelab-dev/canvas-runner/pkg/check"
	"github.com/devicelab-dev/canvas-runner/pkg/core"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
)

// Default selectors for canvas labels when a step leaves them out.
const (
	DefaultTextCSS        = ".cvat_canvas_text"
	DefaultAttributeCSS   = ".cvat_canvas_text .cvat_canvas_text_attribute"
	DefaultDescriptionCSS = ".cvat_canvas_text .cvat_canvas_text_description"
)

var fontSizePattern = regexp.MustCompile(`font-size:\s*([\d.]+)px`)

// isCanvasAssertion reports whether step is evaluated by the executor
// against element snapshots rather than by the driver.
func isCanvasAssertion(step flow.Step) bool {
	switch step.(type) {
	case *flow.AssertCountStep, *flow.AssertTextStep, *flow.AssertFontSizeStep,
		*flow.AssertTextPositionStep, *flow.AssertLabelContentStep, *flow.AssertTextFieldsStep:
		return true
	}
	return false
}

// executeAssertion evaluates a canvas assertion through the driver's querier.
func (fr *FlowRunner) executeAssertion(step flow.Step) *core.CommandResult {
	q, ok := fr.driver.(core.ElementQuerier)
	if !ok {
		return core.Failure(core.ErrUnsupportedStep.WithMessage(
			fmt.Sprintf("driver cannot query elements for %s", step.Type())), "")
	}

	switch s := step.(type) {
	case *flow.AssertCountStep:
		return assertCount(q, s)
	case *flow.AssertTextStep:
		return assertText(q, s)
	case *flow.AssertFontSizeStep:
		return assertFontSize(q, s)
	case *flow.AssertTextPositionStep:
		return assertTextPosition(q, s, fr.config.OutsideTolerance)
	case *flow.AssertLabelContentStep:
		return assertLabelContent(q, s)
	case *flow.AssertTextFieldsStep:
		return assertTextFields(q, s)
	}
	return core.Failure(core.ErrUnsupportedStep.WithMessage(string(step.Type())), "")
}

func withDefault(sel flow.Selector, css string) flow.Selector {
	if sel.IsEmpty() {
		sel.CSS = css
	}
	return sel
}

// nth returns a copy of sel pinned to the i-th match.
func nth(sel flow.Selector, i int) flow.Selector {
	sel.Index = strconv.Itoa(i)
	return sel
}

func assertCount(q core.ElementQuerier, s *flow.AssertCountStep) *core.CommandResult {
	n, err := q.Count(s.Selector)
	if err != nil {
		return core.Failure(err, "")
	}
	if n != s.Count {
		return core.Failure(core.ErrCountMismatch.WithMessage(
			fmt.Sprintf("expected %d element(s) matching %s, found %d", s.Count, s.Selector.DescribeQuoted(), n)), "")
	}
	return core.Success(fmt.Sprintf("%d element(s) match %s", n, s.Selector.Describe()), nil)
}

func assertText(q core.ElementQuerier, s *flow.AssertTextStep) *core.CommandResult {
	text, err := q.Text(s.Selector)
	if err != nil {
		return core.Failure(err, "")
	}

	elem := &core.ElementInfo{Text: text, Visible: true}
	if s.Equals != nil && text != *s.Equals {
		return core.Failure(core.ErrTextMismatch.WithMessage(
			fmt.Sprintf("expected %q, got %q", *s.Equals, text)), "")
	}
	if s.Contains != "" && !strings.Contains(text, s.Contains) {
		return core.Failure(core.ErrTextMismatch.WithMessage(
			fmt.Sprintf("expected text containing %q, got %q", s.Contains, text)), "")
	}
	return core.Success(fmt.Sprintf("text of %s is %q", s.Selector.Describe(), text), elem)
}

// parseFontSize extracts the pixel font size from an inline style.
func parseFontSize(style string) (float64, bool) {
	m := fontSizePattern.FindStringSubmatch(style)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	return v, err == nil
}

func assertFontSize(q core.ElementQuerier, s *flow.AssertFontSizeStep) *core.CommandResult {
	sel := withDefault(s.Selector, DefaultTextCSS)
	n, err := q.Count(sel)
	if err != nil {
		return core.Failure(err, "")
	}
	if n == 0 {
		return core.Failure(core.ErrElementNotFound.WithMessage(
			fmt.Sprintf("no elements match %s", sel.DescribeQuoted())), "")
	}

	for i := 0; i < n; i++ {
		style, err := q.Attribute(nth(sel, i), "style")
		if err != nil {
			return core.Failure(err, "")
		}
		size, ok := parseFontSize(style)
		if !ok {
			return core.Failure(core.ErrAssertionFailed.WithMessage(
				fmt.Sprintf("element %d of %s has no inline font-size (style %q)", i, sel.Describe(), style)), "")
		}
		if size != float64(s.Size) {
			return core.Failure(core.ErrAssertionFailed.WithMessage(
				fmt.Sprintf("element %d of %s: expected font-size %dpx, got %gpx", i, sel.Describe(), s.Size, size)), "")
		}
	}
	return core.Success(fmt.Sprintf("%d element(s) have font-size %dpx", n, s.Size), nil)
}

func assertTextPosition(q core.ElementQuerier, s *flow.AssertTextPositionStep, defaultTolerance float64) *core.CommandResult {
	mode, err := check.ParseLayoutMode(s.Position)
	if err != nil {
		return core.Failure(core.ErrInvalidConfig.WithCause(err), "")
	}
	if s.Shape.IsEmpty() {
		return core.Failure(core.ErrMissingRequired.WithMessage("assertTextPosition requires a shape selector"), "")
	}

	shape, err := q.BoundingBox(s.Shape)
	if err != nil {
		return core.Failure(err, "")
	}
	textSel := withDefault(s.Text, DefaultTextCSS)
	label, err := q.BoundingBox(textSel)
	if err != nil {
		return core.Failure(err, "")
	}

	tolerance := s.Tolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	if err := check.NewPositionChecker(tolerance).Check(shape, label, mode); err != nil {
		res := core.Failure(core.AsAssertion(err), "")
		res.Data = map[string]string{"shape": shape.String(), "label": label.String()}
		return res
	}

	return core.Success(fmt.Sprintf("label %s is %s shape %s", label, mode, shape),
		&core.ElementInfo{Bounds: label, Visible: true})
}

func assertLabelContent(q core.ElementQuerier, s *flow.AssertLabelContentStep) *core.CommandResult {
	sel := withDefault(s.Text, DefaultTextCSS)
	text, err := q.Text(sel)
	if err != nil {
		return core.Failure(err, "")
	}

	want := check.LabelExpectation{
		Name:       s.LabelName,
		ID:         s.ObjectID,
		Source:     s.Source,
		Attributes: s.Attributes,
	}
	if err := want.Check(text); err != nil {
		res := core.Failure(core.AsAssertion(err), "")
		res.Data = text
		return res
	}
	return core.Success(fmt.Sprintf("label contains %q", want.Identity()), &core.ElementInfo{Text: text, Visible: true})
}

func assertTextFields(q core.ElementQuerier, s *flow.AssertTextFieldsStep) *core.CommandResult {
	cfg, err := check.NewTextContentConfig(s.Fields)
	if err != nil {
		return core.Failure(core.ErrInvalidConfig.WithCause(err), "")
	}

	sel := withDefault(s.Text, DefaultTextCSS)
	texts, err := q.Texts(sel)
	if err != nil {
		return core.Failure(err, "")
	}
	if len(texts) == 0 {
		return core.Failure(core.ErrElementNotFound.WithMessage(
			fmt.Sprintf("no labels match %s", sel.DescribeQuoted())), "")
	}
	if s.Shapes > 0 && len(texts) != s.Shapes {
		return core.Failure(core.ErrCountMismatch.WithMessage(
			fmt.Sprintf("expected %d label(s), found %d", s.Shapes, len(texts))), "")
	}

	for i, text := range texts {
		if err := check.CheckTextFieldVisibility(text, cfg); err != nil {
			return core.Failure(core.AsAssertion(fmt.Errorf("label %d: %w", i, err)), "")
		}
	}

	if s.Shapes > 0 {
		attrs, err := q.Count(withDefault(s.AttributeSelector, DefaultAttributeCSS))
		if err != nil {
			return core.Failure(err, "")
		}
		descs, err := q.Count(withDefault(s.DescriptionSelector, DefaultDescriptionCSS))
		if err != nil {
			return core.Failure(err, "")
		}
		observed := check.ElementCounts{Attributes: attrs, Descriptions: descs}
		want := check.CountExpectation{
			Shapes:             s.Shapes,
			AttributesPerShape: s.AttributesPerShape,
			Descriptions:       s.Descriptions,
		}
		if err := check.CheckTextElementCounts(cfg, observed, want); err != nil {
			return core.Failure(core.AsAssertion(err), "")
		}
	}

	return core.Success(fmt.Sprintf("%d label(s) render fields %s", len(texts), cfg), nil)
}
