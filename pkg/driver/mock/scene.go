package mock

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/devicelab-dev/canvas-runner/pkg/check"
)

// Default workspace values of a fresh annotation job.
const (
	DefaultTextSize = 14
	ViewportWidth   = 1300
	ViewportHeight  = 960
)

// Attribute is a rendered "name: value" pair of an object.
type Attribute struct {
	Name  string
	Value string
}

// Shape is an annotation object drawn on the canvas.
type Shape struct {
	ID          int
	Label       string
	Source      string // manual, auto, semi-auto
	Box         check.BoundingBox
	Attributes  []Attribute
	Description string
}

// ElementID returns the DOM id of the shape.
func (s Shape) ElementID() string {
	return "cvat_canvas_shape_" + strconv.Itoa(s.ID)
}

// Scene is the canvas workspace state the mock renders from.
type Scene struct {
	Shapes         []Shape
	Offset         check.BoundingBox // canvas origin inside the viewport (Left/Top)
	ShowTextAlways bool
	TextSize       int
	Position       check.LayoutMode
	Content        check.TextContentConfig
	SettingsOpen   bool
}

// DefaultScene reproduces a job with one rectangle and one polygon track,
// each carrying two attributes and no description.
func DefaultScene() *Scene {
	const label = "Base label"
	attrs := []Attribute{
		{Name: "Attr for Base label", Value: "Some default value for type Text"},
		{Name: "color", Value: "red"},
	}
	return &Scene{
		Shapes: []Shape{
			{
				ID:         1,
				Label:      label,
				Source:     check.DefaultSource,
				Box:        check.BoundingBox{Left: 100, Top: 100, Width: 400, Height: 200},
				Attributes: attrs,
			},
			{
				ID:         2,
				Label:      label,
				Source:     check.DefaultSource,
				Box:        check.BoundingBox{Left: 100, Top: 400, Width: 450, Height: 300},
				Attributes: attrs,
			},
		},
		Offset:   check.BoundingBox{Left: 40, Top: 60},
		TextSize: DefaultTextSize,
		Position: check.LayoutOutside,
		Content:  check.AllFields(),
	}
}

// header composes "<label> <id> (<source>)" from the enabled fields.
// With every field off it degrades to the two-space placeholder.
func (sc *Scene) header(s Shape) string {
	var name, id, source string
	if sc.Content.Label {
		name = s.Label
	}
	if sc.Content.ID {
		id = strconv.Itoa(s.ID)
	}
	if sc.Content.Source {
		src := s.Source
		if src == "" {
			src = check.DefaultSource
		}
		source = "(" + src + ")"
	}
	return name + " " + id + " " + source
}

func (sc *Scene) attributeLines(s Shape) []string {
	if !sc.Content.Attributes {
		return nil
	}
	return lo.Map(s.Attributes, func(a Attribute, _ int) string {
		return fmt.Sprintf("%s: %s", a.Name, a.Value)
	})
}

func (sc *Scene) descriptionLines(s Shape) []string {
	if !sc.Content.Description || s.Description == "" {
		return nil
	}
	return []string{s.Description}
}

// labelBox places the label for a shape in viewport coordinates.
func (sc *Scene) labelBox(shapeBox check.BoundingBox, lines []string) check.BoundingBox {
	size := float64(sc.TextSize)
	longest := lo.Max(lo.Map(lines, func(l string, _ int) int { return utf8.RuneCountInString(l) }))
	width := float64(longest) * size * 0.6
	height := float64(len(lines)) * size * 1.2

	if sc.Position == check.LayoutInside {
		return check.BoundingBox{
			Left:   shapeBox.CenterX() - width/2,
			Top:    shapeBox.CenterY() - height/2,
			Width:  width,
			Height: height,
		}
	}
	return check.BoundingBox{
		Left:   shapeBox.Right() + 8,
		Top:    shapeBox.Top + 4,
		Width:  width,
		Height: height,
	}
}

func (sc *Scene) toViewport(b check.BoundingBox) check.BoundingBox {
	b.Left += sc.Offset.Left
	b.Top += sc.Offset.Top
	return b
}

// render lists every element of the current frame in document order.
func (sc *Scene) render() []*element {
	var els []*element

	for _, s := range sc.Shapes {
		els = append(els, &element{
			tag:     "rect",
			id:      s.ElementID(),
			classes: []string{"cvat_canvas_shape"},
			box:     sc.toViewport(s.Box),
			attrs:   map[string]string{"data-label": s.Label},
		})
	}

	if sc.ShowTextAlways {
		fontStyle := fmt.Sprintf("font-size: %dpx;", sc.TextSize)
		for _, s := range sc.Shapes {
			header := sc.header(s)
			attrLines := sc.attributeLines(s)
			descLines := sc.descriptionLines(s)

			lines := append(append([]string{header}, attrLines...), descLines...)
			box := sc.labelBox(sc.toViewport(s.Box), lines)

			text := header
			for _, l := range attrLines {
				text += l
			}
			for _, l := range descLines {
				text += l
			}
			els = append(els, &element{
				tag:     "text",
				classes: []string{"cvat_canvas_text"},
				text:    text,
				box:     box,
				attrs:   map[string]string{"style": fontStyle},
			})

			lineHeight := float64(sc.TextSize) * 1.2
			for i, l := range attrLines {
				els = append(els, &element{
					tag:     "tspan",
					classes: []string{"cvat_canvas_text_attribute"},
					scope:   "cvat_canvas_text",
					text:    l,
					box:     check.BoundingBox{Left: box.Left, Top: box.Top + float64(i+1)*lineHeight, Width: box.Width, Height: lineHeight},
				})
			}
			for i, l := range descLines {
				els = append(els, &element{
					tag:     "tspan",
					classes: []string{"cvat_canvas_text_description"},
					scope:   "cvat_canvas_text",
					text:    l,
					box:     check.BoundingBox{Left: box.Left, Top: box.Top + float64(len(attrLines)+i+1)*lineHeight, Width: box.Width, Height: lineHeight},
				})
			}
		}
	}

	if sc.SettingsOpen {
		els = append(els, sc.renderSettings()...)
	}
	return els
}

// renderSettings lists the workspace tab widgets of the settings modal.
func (sc *Scene) renderSettings() []*element {
	modal := check.BoundingBox{Left: 350, Top: 120, Width: 600, Height: 640}
	row := func(i int) check.BoundingBox {
		return check.BoundingBox{Left: modal.Left + 24, Top: modal.Top + 80 + float64(i)*48, Width: 400, Height: 32}
	}

	els := []*element{
		{tag: "div", classes: []string{"cvat-settings-modal"}, box: modal},
		{tag: "div", classes: []string{"ant-tabs-tab"}, scope: "cvat-settings-modal", text: "Player", box: check.BoundingBox{Left: modal.Left + 24, Top: modal.Top + 40, Width: 60, Height: 24}},
		{tag: "div", classes: []string{"ant-tabs-tab"}, scope: "cvat-settings-modal", text: "Workspace", box: check.BoundingBox{Left: modal.Left + 100, Top: modal.Top + 40, Width: 80, Height: 24}},
		{
			tag:   "input",
			scope: "cvat-workspace-settings-show-text-always",
			box:   row(0),
			attrs: map[string]string{"type": "checkbox", "checked": strconv.FormatBool(sc.ShowTextAlways)},
		},
		{
			tag:   "input",
			scope: "cvat-workspace-settings-text-size",
			box:   row(1),
			attrs: map[string]string{"value": strconv.Itoa(sc.TextSize)},
		},
		{
			tag:     "span",
			classes: []string{"ant-select-selection-item"},
			scope:   "cvat-workspace-settings-text-position",
			text:    sc.Position.SettingTitle(),
			box:     row(2),
			attrs:   map[string]string{"title": sc.Position.SettingTitle()},
		},
	}

	for i, f := range sc.Content.Fields() {
		els = append(els, &element{
			tag:     "span",
			classes: []string{"ant-select-selection-item"},
			scope:   "cvat-workspace-settings-text-content",
			text:    string(f),
			box:     check.BoundingBox{Left: row(3).Left + float64(i)*90, Top: row(3).Top, Width: 84, Height: 24},
			attrs:   map[string]string{"title": string(f)},
		})
	}
	return els
}
