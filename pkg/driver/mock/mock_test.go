package mock

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/canvas-runner/pkg/check"
	"github.com/devicelab-dev/canvas-runner/pkg/core"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
)

var (
	textSel  = flow.Selector{CSS: ".cvat_canvas_text"}
	attrSel  = flow.Selector{CSS: ".cvat_canvas_text_attribute"}
	descSel  = flow.Selector{CSS: ".cvat_canvas_text_description"}
	shape1   = flow.Selector{ID: "cvat_canvas_shape_1"}
	shape2   = flow.Selector{ID: "cvat_canvas_shape_2"}
	modalSel = flow.Selector{CSS: ".cvat-settings-modal"}
)

func exec(t *testing.T, d *Driver, step flow.Step) *core.CommandResult {
	t.Helper()
	res := d.Execute(step)
	require.NotNil(t, res)
	return res
}

func mustPass(t *testing.T, d *Driver, steps ...flow.Step) {
	t.Helper()
	for _, s := range steps {
		res := exec(t, d, s)
		require.Truef(t, res.Success, "%s failed: %v", s.Describe(), res.Error)
	}
}

func openSettings() flow.Step  { return &flow.OpenSettingsStep{BaseStep: flow.BaseStep{StepType: flow.StepOpenSettings}} }
func closeSettings() flow.Step { return &flow.CloseSettingsStep{BaseStep: flow.BaseStep{StepType: flow.StepCloseSettings}} }
func showText(on bool) flow.Step {
	return &flow.SetShowTextAlwaysStep{BaseStep: flow.BaseStep{StepType: flow.StepSetShowTextAlways}, Enabled: on}
}

func newShowingText(t *testing.T) *Driver {
	d := New(Config{})
	mustPass(t, d, openSettings(), showText(true), closeSettings())
	return d
}

func TestNew_Defaults(t *testing.T) {
	d := New(Config{})
	info := d.GetPlatformInfo()
	assert.Equal(t, "mock", info.Browser)
	assert.Equal(t, "web", info.Platform)
	assert.Equal(t, ViewportWidth, info.ViewportWidth)
	assert.Len(t, d.Scene().Shapes, 2)
	assert.Equal(t, DefaultTextSize, d.Scene().TextSize)
}

func TestLabelsHiddenUntilShowTextAlways(t *testing.T) {
	d := New(Config{})

	n, err := d.Count(textSel)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = d.Count(shape1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	d = newShowingText(t)
	n, err = d.Count(textSel)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSettingsStepsRequireOpenModal(t *testing.T) {
	d := New(Config{})

	res := exec(t, d, &flow.SetTextSizeStep{BaseStep: flow.BaseStep{StepType: flow.StepSetTextSize}, Size: 10})
	assert.False(t, res.Success)
	assert.Equal(t, core.ErrCategoryApp, core.CategoryOf(res.Error))
	assert.Contains(t, res.Error.Error(), "setTextSize requires open workspace settings")
}

func TestTextSize(t *testing.T) {
	d := newShowingText(t)

	style, err := d.Attribute(textSel, "style")
	require.NoError(t, err)
	assert.Equal(t, "font-size: 14px;", style)

	mustPass(t, d, openSettings())
	value, err := d.Attribute(flow.Selector{CSS: ".cvat-workspace-settings-text-size input"}, "value")
	require.NoError(t, err)
	assert.Equal(t, "14", value)

	mustPass(t, d,
		&flow.SetTextSizeStep{BaseStep: flow.BaseStep{StepType: flow.StepSetTextSize}, Size: 10},
		closeSettings(),
	)

	style, err = d.Attribute(flow.Selector{CSS: ".cvat_canvas_text", Index: "last"}, "style")
	require.NoError(t, err)
	assert.Equal(t, "font-size: 10px;", style)
}

func TestInputTextIntoTextSize(t *testing.T) {
	d := newShowingText(t)
	mustPass(t, d, openSettings(), &flow.InputTextStep{
		BaseStep: flow.BaseStep{StepType: flow.StepInputText},
		Text:     "12",
		Selector: flow.Selector{CSS: ".cvat-workspace-settings-text-size input"},
	})
	assert.Equal(t, 12, d.Scene().TextSize)

	res := exec(t, d, &flow.InputTextStep{
		BaseStep: flow.BaseStep{StepType: flow.StepInputText},
		Text:     "big",
		Selector: flow.Selector{CSS: ".cvat-workspace-settings-text-size input"},
	})
	assert.False(t, res.Success)
}

func TestTapCheckboxTogglesShowText(t *testing.T) {
	d := New(Config{})
	mustPass(t, d, openSettings(), &flow.TapOnStep{
		BaseStep: flow.BaseStep{StepType: flow.StepTapOn},
		Selector: flow.Selector{CSS: `.cvat-workspace-settings-show-text-always [type="checkbox"]`},
	})
	assert.True(t, d.Scene().ShowTextAlways)

	checked, err := d.Attribute(flow.Selector{CSS: `.cvat-workspace-settings-show-text-always input`}, "checked")
	require.NoError(t, err)
	assert.Equal(t, "true", checked)
}

func TestTextPosition(t *testing.T) {
	d := newShowingText(t)
	checker := check.NewPositionChecker(0)

	for _, pair := range []struct {
		shape, text flow.Selector
	}{
		{shape1, flow.Selector{CSS: ".cvat_canvas_text", Index: "first"}},
		{shape2, flow.Selector{CSS: ".cvat_canvas_text", Index: "last"}},
	} {
		shapeBox, err := d.BoundingBox(pair.shape)
		require.NoError(t, err)
		labelBox, err := d.BoundingBox(pair.text)
		require.NoError(t, err)
		assert.NoError(t, checker.Check(shapeBox, labelBox, check.LayoutOutside))
		assert.Error(t, checker.Check(shapeBox, labelBox, check.LayoutInside))
	}

	mustPass(t, d,
		openSettings(),
		&flow.SetTextPositionStep{BaseStep: flow.BaseStep{StepType: flow.StepSetTextPosition}, Position: "center"},
		closeSettings(),
	)

	for _, pair := range []struct {
		shape, text flow.Selector
	}{
		{shape1, flow.Selector{CSS: ".cvat_canvas_text", Index: "first"}},
		{shape2, flow.Selector{CSS: ".cvat_canvas_text", Index: "-1"}},
	} {
		shapeBox, err := d.BoundingBox(pair.shape)
		require.NoError(t, err)
		labelBox, err := d.BoundingBox(pair.text)
		require.NoError(t, err)
		assert.NoError(t, checker.Check(shapeBox, labelBox, check.LayoutInside))
		assert.Error(t, checker.Check(shapeBox, labelBox, check.LayoutOutside))
	}
}

func TestTextContent(t *testing.T) {
	d := newShowingText(t)
	setContent := func(fields ...string) flow.Step {
		return &flow.SetTextContentStep{BaseStep: flow.BaseStep{StepType: flow.StepSetTextContent}, Fields: fields}
	}

	mustPass(t, d, openSettings(), setContent())

	texts, err := d.Texts(textSel)
	require.NoError(t, err)
	require.Len(t, texts, 2)
	for _, text := range texts {
		assert.Equal(t, check.EmptyLabelPlaceholder, text)
		assert.NoError(t, check.CheckTextFieldVisibility(text, check.TextContentConfig{}))
	}
	n, _ := d.Count(attrSel)
	assert.Equal(t, 0, n)
	n, _ = d.Count(descSel)
	assert.Equal(t, 0, n)

	mustPass(t, d, setContent("ID", "Label", "Attributes", "Source", "Descriptions"), closeSettings())

	first, err := d.Text(flow.Selector{CSS: ".cvat_canvas_text", Index: "first"})
	require.NoError(t, err)
	assert.NoError(t, check.CheckLabelContent(first, "Base label", 1, "Attr for Base label", "Some default value for type Text"))

	last, err := d.Text(flow.Selector{CSS: ".cvat_canvas_text", Index: "last"})
	require.NoError(t, err)
	assert.NoError(t, check.CheckLabelContent(last, "Base label", 2, "color", "red"))

	n, _ = d.Count(attrSel)
	assert.Equal(t, 4, n)
	n, _ = d.Count(descSel)
	assert.Equal(t, 0, n)

	scoped, _ := d.Count(flow.Selector{CSS: ".cvat_canvas_text .cvat_canvas_text_attribute"})
	assert.Equal(t, 4, scoped)
}

func TestDescriptionsRenderWhenAuthored(t *testing.T) {
	scene := DefaultScene()
	scene.Shapes[0].Description = "parked"
	d := New(Config{Scene: scene})
	mustPass(t, d, openSettings(), showText(true), closeSettings())

	texts, err := d.Texts(descSel)
	require.NoError(t, err)
	assert.Equal(t, []string{"parked"}, texts)
}

func TestSettingsWidgets(t *testing.T) {
	d := New(Config{})
	mustPass(t, d, openSettings())

	title, err := d.Attribute(flow.Selector{CSS: `.cvat-workspace-settings-text-position [title="Auto"]`}, "title")
	require.NoError(t, err)
	assert.Equal(t, "Auto", title)

	n, err := d.Count(flow.Selector{CSS: `.cvat-workspace-settings-text-content [title]`})
	require.NoError(t, err)
	assert.Equal(t, len(check.AllTextFields), n)

	res := exec(t, d, &flow.TapOnStep{BaseStep: flow.BaseStep{StepType: flow.StepTapOn}, Selector: flow.Selector{Text: "Workspace"}})
	assert.True(t, res.Success)

	mustPass(t, d, &flow.PressKeyStep{BaseStep: flow.BaseStep{StepType: flow.StepPressKey}, Key: "Escape"})
	assert.False(t, d.Scene().SettingsOpen)
}

func TestAssertVisibility(t *testing.T) {
	d := New(Config{})

	res := exec(t, d, &flow.AssertNotVisibleStep{BaseStep: flow.BaseStep{StepType: flow.StepAssertNotVisible}, Selector: modalSel})
	assert.True(t, res.Success)

	res = exec(t, d, &flow.AssertVisibleStep{BaseStep: flow.BaseStep{StepType: flow.StepAssertVisible}, Selector: modalSel})
	assert.False(t, res.Success)
	assert.Equal(t, core.ErrCategoryAssertion, core.CategoryOf(res.Error))

	mustPass(t, d, openSettings())
	res = exec(t, d, &flow.WaitUntilStep{BaseStep: flow.BaseStep{StepType: flow.StepWaitUntil}, Visible: &modalSel})
	assert.True(t, res.Success)
	require.NotNil(t, res.Element)
	assert.Equal(t, "cvat-settings-modal", res.Element.Class)

	res = exec(t, d, &flow.WaitUntilStep{BaseStep: flow.BaseStep{StepType: flow.StepWaitUntil}, NotVisible: &modalSel})
	assert.False(t, res.Success)
}

func TestTapOptional(t *testing.T) {
	d := New(Config{})
	optional := true

	res := exec(t, d, &flow.TapOnStep{BaseStep: flow.BaseStep{StepType: flow.StepTapOn}, Selector: flow.Selector{Text: "Nope", Optional: &optional}})
	assert.True(t, res.Success)

	res = exec(t, d, &flow.TapOnStep{BaseStep: flow.BaseStep{StepType: flow.StepTapOn}, Selector: flow.Selector{Text: "Nope"}})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error.Error(), `text="Nope"`)
}

func TestQueryErrors(t *testing.T) {
	d := newShowingText(t)

	_, err := d.BoundingBox(flow.Selector{CSS: ".cvat_canvas_text", Index: "5"})
	assert.ErrorContains(t, err, "out of range")

	_, err = d.Text(flow.Selector{CSS: ".missing"})
	assert.ErrorContains(t, err, "element not found")

	_, err = d.Attribute(flow.Selector{}, "style")
	assert.Error(t, err)

	id, err := d.Attribute(shape2, "id")
	require.NoError(t, err)
	assert.Equal(t, "cvat_canvas_shape_2", id)
}

func TestFailOnStep(t *testing.T) {
	d := New(Config{FailOnStep: 2})

	assert.True(t, d.Execute(openSettings()).Success)
	res := d.Execute(closeSettings())
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Simulated failure on step 2")
	assert.True(t, d.Execute(closeSettings()).Success)
}

func TestOpenLinkResolvesBaseURL(t *testing.T) {
	d := New(Config{BaseURL: "http://localhost:8080/"})
	mustPass(t, d, &flow.OpenLinkStep{BaseStep: flow.BaseStep{StepType: flow.StepOpenLink}, Link: "/tasks/1/jobs/1"})
	assert.Equal(t, "http://localhost:8080/tasks/1/jobs/1", d.URL())

	mustPass(t, d, &flow.OpenLinkStep{BaseStep: flow.BaseStep{StepType: flow.StepOpenLink}, Link: "https://app.cvat.ai"})
	assert.Equal(t, "https://app.cvat.ai", d.URL())
}

func TestTakeScreenshot(t *testing.T) {
	d := New(Config{})
	path := filepath.Join(t.TempDir(), "shots", "canvas")

	mustPass(t, d, &flow.TakeScreenshotStep{BaseStep: flow.BaseStep{StepType: flow.StepTakeScreenshot}, Path: path})

	data, err := os.ReadFile(path + ".png")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 0x50, 0x4E, 0x47}, data[:4])
}

func TestHierarchy(t *testing.T) {
	d := newShowingText(t)
	data, err := d.Hierarchy()
	require.NoError(t, err)

	page := string(data)
	assert.Contains(t, page, `id="cvat_canvas_shape_1"`)
	assert.Contains(t, page, `class="cvat_canvas_text"`)
	assert.Contains(t, page, `style="font-size: 14px;"`)
	assert.Equal(t, 2, strings.Count(page, `class="cvat_canvas_text"`))
}

func TestUnsupportedStep(t *testing.T) {
	d := New(Config{})
	res := d.Execute(&flow.UnsupportedStep{BaseStep: flow.BaseStep{StepType: "swipe"}, Reason: "no gestures"})
	assert.False(t, res.Success)
	assert.Equal(t, core.ErrCategoryConfig, core.CategoryOf(res.Error))
}

func TestMatchesCSS(t *testing.T) {
	el := &element{
		tag:     "input",
		classes: []string{"ant-input", "small"},
		scope:   "cvat-workspace-settings-text-size",
		attrs:   map[string]string{"value": "14", "type": "number"},
	}

	tests := []struct {
		css  string
		want bool
	}{
		{"input", true},
		{".ant-input", true},
		{"input.ant-input.small", true},
		{`[type="number"]`, true},
		{`[type=number]`, true},
		{"[value]", true},
		{`[type="checkbox"]`, false},
		{".cvat-workspace-settings-text-size input", true},
		{".cvat-workspace-settings-text-position input", false},
		{".other, input", true},
		{"div", false},
		{"a b c", false},
		{":not(.x)", false},
	}

	for _, tt := range tests {
		t.Run(tt.css, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesCSS(el, tt.css))
		})
	}
}
