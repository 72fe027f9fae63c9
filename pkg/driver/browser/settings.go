package browser

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/devicelab-dev/canvas-runner/pkg/flow"
)

// Selectors locates the annotation workspace widgets the settings steps drive.
// Field names double as override keys in config.yaml (case-insensitive).
type Selectors struct {
	UserMenu       string // header dropdown that reveals the settings entry
	SettingsItem   string // "Settings" entry in the user menu
	Modal          string
	WorkspaceTab   string
	CloseButton    string
	ShowTextAlways string // checkbox input
	TextSize       string // number input
	TextPosition   string // select
	TextContent    string // multi-select
	ContentClear   string // per-tag remove icon inside TextContent
	Dropdown       string // the open ant-select dropdown
}

// DefaultSelectors returns the selectors of the stock annotation UI.
func DefaultSelectors() Selectors {
	return Selectors{
		UserMenu:       ".cvat-header-menu-user-dropdown",
		SettingsItem:   ".anticon-setting",
		Modal:          ".cvat-settings-modal",
		WorkspaceTab:   `.cvat-settings-modal .ant-tabs-tab:has-text("Workspace")`,
		CloseButton:    `.cvat-settings-modal button:has-text("Close")`,
		ShowTextAlways: `.cvat-workspace-settings-show-text-always [type="checkbox"]`,
		TextSize:       ".cvat-workspace-settings-text-size input",
		TextPosition:   ".cvat-workspace-settings-text-position",
		TextContent:    ".cvat-workspace-settings-text-content",
		ContentClear:   `.cvat-workspace-settings-text-content [aria-label="close"]`,
		Dropdown:       ".ant-select-dropdown:not(.ant-select-dropdown-hidden)",
	}
}

// WithOverrides returns a copy of s with the named selectors replaced.
// Unknown names are an error so typos in config.yaml surface early.
func (s Selectors) WithOverrides(overrides map[string]string) (Selectors, error) {
	if len(overrides) == 0 {
		return s, nil
	}

	v := reflect.ValueOf(&s).Elem()
	t := v.Type()

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		found := false
		for i := 0; i < t.NumField(); i++ {
			if strings.EqualFold(t.Field(i).Name, name) {
				v.Field(i).SetString(overrides[name])
				found = true
				break
			}
		}
		if !found {
			return s, fmt.Errorf("unknown selector %q", name)
		}
	}
	return s, nil
}

// cssFor converts a flow selector into a Playwright selector string.
// Index handling is left to the caller.
func cssFor(sel flow.Selector) string {
	var css string
	switch {
	case sel.ID != "":
		css = "#" + sel.ID
	case sel.CSS != "":
		css = sel.CSS
	}
	if sel.Text == "" {
		return css
	}
	if css == "" {
		return "text=" + quote(sel.Text)
	}
	return css + ":has-text(" + quote(sel.Text) + ")"
}

// optionSelector targets a dropdown option by its title attribute.
func (s Selectors) optionSelector(title string) string {
	return s.Dropdown + " [title=" + quote(title) + "]"
}

// checkedOptions matches the tick shown next to each selected option of an
// open multi-select.
func (s Selectors) checkedOptions() string {
	return s.Dropdown + ` [data-icon="check"]`
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
