package flow

import "testing"

func TestBaseStep_Accessors(t *testing.T) {
	b := BaseStep{StepType: StepSetTextSize, Optional: true, StepLabel: "shrink labels"}
	if got := b.Type(); got != StepSetTextSize {
		t.Errorf("Type()=%v, want %v", got, StepSetTextSize)
	}
	if !b.IsOptional() {
		t.Error("IsOptional()=false, want true")
	}
	if got := b.Label(); got != "shrink labels" {
		t.Errorf("Label()=%q, want %q", got, "shrink labels")
	}
	if got := b.Describe(); got != "setTextSize" {
		t.Errorf("Describe()=%q, want %q", got, "setTextSize")
	}
	if b.Base() != &b {
		t.Error("Base() should return the receiver")
	}
}

func TestStep_Describe(t *testing.T) {
	empty := "  "
	tests := []struct {
		name     string
		step     Step
		expected string
	}{
		{"openLink", &OpenLinkStep{Link: "/jobs/1"}, "openLink: /jobs/1"},
		{"tapOn", &TapOnStep{Selector: Selector{Text: "Workspace"}}, `tapOn: text="Workspace"`},
		{"inputText", &InputTextStep{Text: "10"}, `inputText: "10"`},
		{"pressKey", &PressKeyStep{Key: "Escape"}, "pressKey: Escape"},
		{"wait visible", &WaitUntilStep{Visible: &Selector{CSS: ".m"}}, `extendedWaitUntil: visible css=".m"`},
		{"wait not visible", &WaitUntilStep{NotVisible: &Selector{CSS: ".m"}}, `extendedWaitUntil: notVisible css=".m"`},
		{"wait bare", &WaitUntilStep{}, "extendedWaitUntil"},
		{"openSettings", &OpenSettingsStep{BaseStep: BaseStep{StepType: StepOpenSettings}}, "openSettings"},
		{"showTextAlways", &SetShowTextAlwaysStep{Enabled: true}, "setShowTextAlways: true"},
		{"textSize", &SetTextSizeStep{Size: 10}, "setTextSize: 10"},
		{"textPosition", &SetTextPositionStep{Position: "center"}, "setTextPosition: center"},
		{"textContent none", &SetTextContentStep{}, "setTextContent: none"},
		{"textContent", &SetTextContentStep{Fields: []string{"ID", "Label"}}, "setTextContent: ID, Label"},
		{"assertVisible", &AssertVisibleStep{Selector: Selector{CSS: ".t"}}, `assertVisible: css=".t"`},
		{"assertNotVisible", &AssertNotVisibleStep{Selector: Selector{CSS: ".t"}}, `assertNotVisible: css=".t"`},
		{"assertCount", &AssertCountStep{Selector: Selector{CSS: ".t"}, Count: 4}, `assertCount: css=".t" == 4`},
		{"assertText equals", &AssertTextStep{Selector: Selector{CSS: ".t"}, Equals: &empty}, `assertText: css=".t" == "  "`},
		{"assertText contains", &AssertTextStep{Selector: Selector{CSS: ".t"}, Contains: "car"}, `assertText: css=".t" contains "car"`},
		{"assertFontSize", &AssertFontSizeStep{Selector: Selector{CSS: ".t"}, Size: 10}, `assertFontSize: css=".t" 10px`},
		{
			"assertTextPosition",
			&AssertTextPositionStep{Shape: Selector{ID: "cvat_canvas_shape_1"}, Text: Selector{CSS: ".t", Index: "first"}, Position: "outside"},
			"assertTextPosition: .t[first] outside #cvat_canvas_shape_1",
		},
		{
			"assertLabelContent",
			&AssertLabelContentStep{Text: Selector{CSS: ".t"}, LabelName: "car", ObjectID: 1, Attributes: map[string]string{"model": "a", "color": "b"}},
			`assertLabelContent: .t "car 1" [color, model]`,
		},
		{"assertTextFields none", &AssertTextFieldsStep{}, "assertTextFields: none"},
		{"assertTextFields", &AssertTextFieldsStep{Fields: []string{"ID"}}, "assertTextFields: ID"},
		{"repeat", &RepeatStep{Times: "2"}, "repeat: 2 times"},
		{"repeat bare", &RepeatStep{}, "repeat"},
		{"retry file", &RetryStep{File: "a.yaml"}, "retry: a.yaml"},
		{"retry", &RetryStep{}, "retry"},
		{"runFlow file", &RunFlowStep{File: "a.yaml"}, "runFlow: a.yaml"},
		{"runFlow", &RunFlowStep{}, "runFlow"},
		{"evalScript", &EvalScriptStep{Script: "${output.n = 2}"}, "evalScript: ${output.n = 2}"},
		{"runScript", &RunScriptStep{File: "count.js"}, "runScript: count.js"},
		{"assertTrue", &AssertTrueStep{Condition: "${output.n > 1}"}, "assertTrue: ${output.n > 1}"},
		{"unsupported", &UnsupportedStep{BaseStep: BaseStep{StepType: "swipe"}, Reason: "no gestures"}, "swipe (unsupported: no gestures)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.step.Describe(); got != tt.expected {
				t.Errorf("Describe()=%q, want %q", got, tt.expected)
			}
		})
	}
}
