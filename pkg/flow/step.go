package flow

import (
	"fmt"
	"sort"
	"strings"
)

// StepType represents the type of step.
type StepType string

// Step type constants.
const (
	// Navigation & Interaction
	StepOpenLink              StepType = "openLink"
	StepTapOn                 StepType = "tapOn"
	StepInputText             StepType = "inputText"
	StepPressKey              StepType = "pressKey"
	StepWaitForAnimationToEnd StepType = "waitForAnimationToEnd"
	StepWaitUntil             StepType = "extendedWaitUntil"
	StepTakeScreenshot        StepType = "takeScreenshot"

	// Workspace settings
	StepOpenSettings      StepType = "openSettings"
	StepCloseSettings     StepType = "closeSettings"
	StepSetShowTextAlways StepType = "setShowTextAlways"
	StepSetTextSize       StepType = "setTextSize"
	StepSetTextPosition   StepType = "setTextPosition"
	StepSetTextContent    StepType = "setTextContent"

	// Assertions
	StepAssertVisible      StepType = "assertVisible"
	StepAssertNotVisible   StepType = "assertNotVisible"
	StepAssertCount        StepType = "assertCount"
	StepAssertText         StepType = "assertText"
	StepAssertFontSize     StepType = "assertFontSize"
	StepAssertTextPosition StepType = "assertTextPosition"
	StepAssertLabelContent StepType = "assertLabelContent"
	StepAssertTextFields   StepType = "assertTextFields"

	// Flow Control
	StepRepeat  StepType = "repeat"
	StepRetry   StepType = "retry"
	StepRunFlow StepType = "runFlow"

	// Scripting
	StepEvalScript StepType = "evalScript"
	StepRunScript  StepType = "runScript"
	StepAssertTrue StepType = "assertTrue"
)

// Step is the interface for all flow steps.
type Step interface {
	Type() StepType
	IsOptional() bool
	Label() string
	Describe() string
}

// BaseStep contains common fields for all steps.
type BaseStep struct {
	StepType  StepType `yaml:"-"`
	Optional  bool     `yaml:"optional"`
	StepLabel string   `yaml:"label"`
	TimeoutMs int      `yaml:"timeout"`
}

// Type returns the step type.
func (b *BaseStep) Type() StepType { return b.StepType }

// IsOptional returns whether the step is optional.
func (b *BaseStep) IsOptional() bool { return b.Optional }

// Label returns the step label.
func (b *BaseStep) Label() string { return b.StepLabel }

// Describe returns a human-readable description.
func (b *BaseStep) Describe() string { return string(b.StepType) }

// Base exposes the embedded BaseStep.
func (b *BaseStep) Base() *BaseStep { return b }

// ============================================
// Navigation & Interaction Steps
// ============================================

// OpenLinkStep navigates the page to a URL.
type OpenLinkStep struct {
	BaseStep `yaml:",inline"`
	Link     string `yaml:"link"`
}

// TapOnStep clicks an element.
type TapOnStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
}

// InputTextStep replaces the value of an input.
type InputTextStep struct {
	BaseStep `yaml:",inline"`
	Text     string   `yaml:"text"`
	Selector Selector `yaml:",inline"`
}

// PressKeyStep presses a key.
type PressKeyStep struct {
	BaseStep `yaml:",inline"`
	Key      string `yaml:"key"`
}

// WaitForAnimationToEndStep waits for the page to settle.
type WaitForAnimationToEndStep struct {
	BaseStep `yaml:",inline"`
}

// WaitUntilStep waits for an element to appear or disappear.
type WaitUntilStep struct {
	BaseStep   `yaml:",inline"`
	Visible    *Selector `yaml:"visible"`
	NotVisible *Selector `yaml:"notVisible"`
}

// TakeScreenshotStep saves a screenshot.
type TakeScreenshotStep struct {
	BaseStep `yaml:",inline"`
	Path     string `yaml:"path"`
}

// ============================================
// Workspace Settings Steps
// ============================================

// OpenSettingsStep opens the settings modal on the workspace tab.
type OpenSettingsStep struct {
	BaseStep `yaml:",inline"`
}

// CloseSettingsStep closes the settings modal.
type CloseSettingsStep struct {
	BaseStep `yaml:",inline"`
}

// SetShowTextAlwaysStep toggles "always show object details".
type SetShowTextAlwaysStep struct {
	BaseStep `yaml:",inline"`
	Enabled  bool `yaml:"enabled"`
}

// SetTextSizeStep sets the canvas text font size in pixels.
type SetTextSizeStep struct {
	BaseStep `yaml:",inline"`
	Size     int `yaml:"size"`
}

// SetTextPositionStep selects the text position option (auto or center).
type SetTextPositionStep struct {
	BaseStep `yaml:",inline"`
	Position string `yaml:"position"`
}

// SetTextContentStep selects exactly the given text content fields.
type SetTextContentStep struct {
	BaseStep `yaml:",inline"`
	Fields   []string `yaml:"fields"`
}

// ============================================
// Assertion Steps
// ============================================

// AssertVisibleStep asserts element is visible.
type AssertVisibleStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
}

// AssertNotVisibleStep asserts element is not visible.
type AssertNotVisibleStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
}

// AssertCountStep asserts how many elements match.
type AssertCountStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
	Count    int      `yaml:"count"`
}

// AssertTextStep asserts an element's text content.
type AssertTextStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
	Equals   *string  `yaml:"equals"`
	Contains string   `yaml:"contains"`
}

// AssertFontSizeStep asserts the inline font size of every matching element.
type AssertFontSizeStep struct {
	BaseStep `yaml:",inline"`
	Selector Selector `yaml:",inline"`
	Size     int      `yaml:"size"`
}

// AssertTextPositionStep asserts where a label sits relative to its shape.
type AssertTextPositionStep struct {
	BaseStep  `yaml:",inline"`
	Shape     Selector `yaml:"shape"`
	Text      Selector `yaml:"text"`
	Position  string   `yaml:"position"`  // outside, inside
	Tolerance float64  `yaml:"tolerance"` // outside band in px (0 = default)
}

// AssertLabelContentStep asserts the composed text of a label.
type AssertLabelContentStep struct {
	BaseStep   `yaml:",inline"`
	Text       Selector          `yaml:"text"`
	LabelName  string            `yaml:"name"`
	ObjectID   int               `yaml:"id"`
	Source     string            `yaml:"source"`
	Attributes map[string]string `yaml:"attributes"`
}

// AssertTextFieldsStep asserts which text fields labels render.
type AssertTextFieldsStep struct {
	BaseStep            `yaml:",inline"`
	Text                Selector `yaml:"text"`
	Fields              []string `yaml:"fields"`
	Shapes              int      `yaml:"shapes"`
	AttributesPerShape  int      `yaml:"attributesPerShape"`
	Descriptions        int      `yaml:"descriptions"`
	AttributeSelector   Selector `yaml:"attributeSelector"`
	DescriptionSelector Selector `yaml:"descriptionSelector"`
}

// ============================================
// Flow Control Steps
// ============================================

// RepeatStep repeats steps.
type RepeatStep struct {
	BaseStep `yaml:",inline"`
	Times    string `yaml:"times"` // String for variable support
	Steps    []Step `yaml:"-"`
}

// RetryStep retries steps on failure.
type RetryStep struct {
	BaseStep   `yaml:",inline"`
	MaxRetries string            `yaml:"maxRetries"` // String for variable support
	Steps      []Step            `yaml:"-"`
	File       string            `yaml:"file"`
	Env        map[string]string `yaml:"env"`
}

// RunFlowStep runs another flow.
type RunFlowStep struct {
	BaseStep `yaml:",inline"`
	File     string            `yaml:"file"`
	Steps    []Step            `yaml:"-"` // Inline steps
	Env      map[string]string `yaml:"env"`
}

// ============================================
// Scripting Steps
// ============================================

// EvalScriptStep evaluates a JavaScript expression, usually for its
// assignments to output.
type EvalScriptStep struct {
	BaseStep `yaml:",inline"`
	Script   string `yaml:"script"`
}

// RunScriptStep runs a JavaScript file.
type RunScriptStep struct {
	BaseStep `yaml:",inline"`
	File     string            `yaml:"file"`
	Env      map[string]string `yaml:"env"`
}

// AssertTrueStep asserts a JavaScript condition is truthy.
type AssertTrueStep struct {
	BaseStep  `yaml:",inline"`
	Condition string `yaml:"condition"`
}

// UnsupportedStep represents an unsupported step.
type UnsupportedStep struct {
	BaseStep `yaml:",inline"`
	Reason   string
}

// Describe returns a description including the unsupported reason.
func (s *UnsupportedStep) Describe() string {
	return string(s.StepType) + " (unsupported: " + s.Reason + ")"
}

// ============================================
// Describe() implementations for detailed output
// ============================================

// Describe returns a human-readable description of the open link step.
func (s *OpenLinkStep) Describe() string {
	return "openLink: " + s.Link
}

// Describe returns a human-readable description of the tap step.
func (s *TapOnStep) Describe() string {
	return "tapOn: " + s.Selector.DescribeQuoted()
}

// Describe returns a human-readable description of the input text step.
func (s *InputTextStep) Describe() string {
	return "inputText: \"" + s.Text + "\""
}

// Describe returns a human-readable description of the press key step.
func (s *PressKeyStep) Describe() string {
	return "pressKey: " + s.Key
}

// Describe returns a human-readable description of the wait until step.
func (s *WaitUntilStep) Describe() string {
	if s.Visible != nil {
		return "extendedWaitUntil: visible " + s.Visible.DescribeQuoted()
	}
	if s.NotVisible != nil {
		return "extendedWaitUntil: notVisible " + s.NotVisible.DescribeQuoted()
	}
	return "extendedWaitUntil"
}

// Describe returns a human-readable description of the show text step.
func (s *SetShowTextAlwaysStep) Describe() string {
	return fmt.Sprintf("setShowTextAlways: %t", s.Enabled)
}

// Describe returns a human-readable description of the text size step.
func (s *SetTextSizeStep) Describe() string {
	return fmt.Sprintf("setTextSize: %d", s.Size)
}

// Describe returns a human-readable description of the text position step.
func (s *SetTextPositionStep) Describe() string {
	return "setTextPosition: " + s.Position
}

// Describe returns a human-readable description of the text content step.
func (s *SetTextContentStep) Describe() string {
	if len(s.Fields) == 0 {
		return "setTextContent: none"
	}
	return "setTextContent: " + strings.Join(s.Fields, ", ")
}

// Describe returns a human-readable description of the assert visible step.
func (s *AssertVisibleStep) Describe() string {
	return "assertVisible: " + s.Selector.DescribeQuoted()
}

// Describe returns a human-readable description of the assert not visible step.
func (s *AssertNotVisibleStep) Describe() string {
	return "assertNotVisible: " + s.Selector.DescribeQuoted()
}

// Describe returns a human-readable description of the count assertion.
func (s *AssertCountStep) Describe() string {
	return fmt.Sprintf("assertCount: %s == %d", s.Selector.DescribeQuoted(), s.Count)
}

// Describe returns a human-readable description of the text assertion.
func (s *AssertTextStep) Describe() string {
	if s.Equals != nil {
		return fmt.Sprintf("assertText: %s == %q", s.Selector.DescribeQuoted(), *s.Equals)
	}
	return fmt.Sprintf("assertText: %s contains %q", s.Selector.DescribeQuoted(), s.Contains)
}

// Describe returns a human-readable description of the font size assertion.
func (s *AssertFontSizeStep) Describe() string {
	return fmt.Sprintf("assertFontSize: %s %dpx", s.Selector.DescribeQuoted(), s.Size)
}

// Describe returns a human-readable description of the text position assertion.
func (s *AssertTextPositionStep) Describe() string {
	return fmt.Sprintf("assertTextPosition: %s %s %s", s.Text.Describe(), s.Position, s.Shape.Describe())
}

// Describe returns a human-readable description of the label content assertion.
func (s *AssertLabelContentStep) Describe() string {
	names := make([]string, 0, len(s.Attributes))
	for name := range s.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	desc := fmt.Sprintf("assertLabelContent: %s \"%s %d\"", s.Text.Describe(), s.LabelName, s.ObjectID)
	if len(names) > 0 {
		desc += " [" + strings.Join(names, ", ") + "]"
	}
	return desc
}

// Describe returns a human-readable description of the text fields assertion.
func (s *AssertTextFieldsStep) Describe() string {
	if len(s.Fields) == 0 {
		return "assertTextFields: none"
	}
	return "assertTextFields: " + strings.Join(s.Fields, ", ")
}

// Describe returns a human-readable description of the repeat step.
func (s *RepeatStep) Describe() string {
	if s.Times != "" {
		return "repeat: " + s.Times + " times"
	}
	return "repeat"
}

// Describe returns a human-readable description of the retry step.
func (s *RetryStep) Describe() string {
	if s.File != "" {
		return "retry: " + s.File
	}
	return "retry"
}

// Describe returns a human-readable description of the run flow step.
func (s *RunFlowStep) Describe() string {
	if s.File != "" {
		return "runFlow: " + s.File
	}
	return "runFlow"
}

// Describe returns a human-readable description of the eval script step.
func (s *EvalScriptStep) Describe() string {
	return "evalScript: " + s.Script
}

// Describe returns a human-readable description of the run script step.
func (s *RunScriptStep) Describe() string {
	return "runScript: " + s.File
}

// Describe returns a human-readable description of the assert true step.
func (s *AssertTrueStep) Describe() string {
	return "assertTrue: " + s.Condition
}
