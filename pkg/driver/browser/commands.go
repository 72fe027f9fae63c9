package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/playwright-community/playwright-go"

	"github.com/devicelab-dev/canvas-runner/pkg/check"
	"github.com/devicelab-dev/canvas-runner/pkg/core"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
)

func (d *Driver) waitOpts(step flow.Step, state *playwright.WaitForSelectorState) playwright.LocatorWaitForOptions {
	timeout := d.timeoutMs
	if b, ok := step.(interface{ Base() *flow.BaseStep }); ok && b.Base().TimeoutMs > 0 {
		timeout = b.Base().TimeoutMs
	}
	return playwright.LocatorWaitForOptions{State: state, Timeout: playwright.Float(float64(timeout))}
}

func (d *Driver) openLink(s *flow.OpenLinkStep) *core.CommandResult {
	if s.Link == "" {
		return core.Failure(core.ErrMissingRequired.WithMessage("openLink requires a link"), "")
	}
	if _, err := d.page.Goto(s.Link, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	}); err != nil {
		return core.Failure(classifyError(err, "navigation to "+s.Link), "")
	}
	return core.Success("opened "+d.page.URL(), nil)
}

func (d *Driver) tapOn(s *flow.TapOnStep) *core.CommandResult {
	loc, err := d.locate(s.Selector)
	if err != nil {
		if s.Selector.IsOptional() {
			return core.Success(fmt.Sprintf("optional element %s not found", s.Selector.Describe()), nil)
		}
		return core.Failure(err, "")
	}
	if err := loc.Click(); err != nil {
		return core.Failure(classifyError(err, "click on "+s.Selector.Describe()), "")
	}
	return core.Success("tapped "+s.Selector.Describe(), nil)
}

func (d *Driver) inputText(s *flow.InputTextStep) *core.CommandResult {
	if s.Selector.IsEmpty() {
		if err := d.page.Keyboard().Type(s.Text); err != nil {
			return core.Failure(classifyError(err, "typing"), "")
		}
		return core.Success("typed into focused element", nil)
	}
	loc, err := d.locate(s.Selector)
	if err != nil {
		return core.Failure(err, "")
	}
	if err := loc.Fill(s.Text); err != nil {
		return core.Failure(classifyError(err, "input into "+s.Selector.Describe()), "")
	}
	return core.Success("typed into "+s.Selector.Describe(), nil)
}

func (d *Driver) pressKey(s *flow.PressKeyStep) *core.CommandResult {
	if err := d.page.Keyboard().Press(s.Key); err != nil {
		return core.Failure(classifyError(err, "key "+s.Key), "")
	}
	return core.Success("pressed "+s.Key, nil)
}

func (d *Driver) waitForAnimationToEnd(_ *flow.WaitForAnimationToEndStep) *core.CommandResult {
	if err := d.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	}); err != nil {
		return core.Failure(classifyError(err, "page to settle"), "")
	}
	return core.Success("page settled", nil)
}

func (d *Driver) waitUntil(s *flow.WaitUntilStep) *core.CommandResult {
	switch {
	case s.Visible != nil:
		return d.waitVisible(s, *s.Visible)
	case s.NotVisible != nil:
		return d.waitHidden(s, *s.NotVisible)
	}
	return core.Failure(core.ErrMissingRequired.WithMessage("extendedWaitUntil requires visible or notVisible"), "")
}

func (d *Driver) waitVisible(step flow.Step, sel flow.Selector) *core.CommandResult {
	loc, err := d.all(sel)
	if err != nil {
		return core.Failure(err, "")
	}
	if err := loc.First().WaitFor(d.waitOpts(step, playwright.WaitForSelectorStateVisible)); err != nil {
		return core.Failure(core.ErrElementNotVisible.WithCause(classifyError(err, sel.Describe())), "")
	}
	return core.Success(sel.Describe()+" is visible", nil)
}

// waitHidden waits until no match of sel is visible.
func (d *Driver) waitHidden(step flow.Step, sel flow.Selector) *core.CommandResult {
	css := cssFor(sel)
	if css == "" {
		return core.Failure(core.ErrMissingRequired.WithMessage("empty selector"), "")
	}
	loc := d.page.Locator(css + " >> visible=true").First()
	if err := loc.WaitFor(d.waitOpts(step, playwright.WaitForSelectorStateDetached)); err != nil {
		return core.Failure(core.ErrAssertionFailed.WithMessage(sel.Describe()+" is still visible").WithCause(err), "")
	}
	return core.Success(sel.Describe()+" is not visible", nil)
}

func (d *Driver) assertVisible(s *flow.AssertVisibleStep) *core.CommandResult {
	return d.waitVisible(s, s.Selector)
}

func (d *Driver) assertNotVisible(s *flow.AssertNotVisibleStep) *core.CommandResult {
	return d.waitHidden(s, s.Selector)
}

func (d *Driver) takeScreenshot(s *flow.TakeScreenshotStep) *core.CommandResult {
	if s.Path == "" {
		if _, err := d.Screenshot(); err != nil {
			return core.Failure(classifyError(err, "screenshot"), "")
		}
		return core.Success("screenshot captured", nil)
	}

	path := s.Path
	if filepath.Ext(path) == "" {
		path += ".png"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return core.Failure(err, "")
	}
	if _, err := d.page.Screenshot(playwright.PageScreenshotOptions{Path: playwright.String(path)}); err != nil {
		return core.Failure(classifyError(err, "screenshot"), "")
	}
	return core.Success("screenshot saved to "+path, nil)
}

// ============================================
// Workspace settings
// ============================================

func (d *Driver) click(css, what string) error {
	if err := d.page.Locator(css).First().Click(); err != nil {
		return classifyError(err, what)
	}
	return nil
}

func (d *Driver) openSettings(_ *flow.OpenSettingsStep) *core.CommandResult {
	sel := d.opts.Selectors
	if err := d.page.Locator(sel.UserMenu).First().Hover(); err != nil {
		return core.Failure(classifyError(err, "user menu"), "")
	}
	if err := d.click(sel.SettingsItem, "settings menu item"); err != nil {
		return core.Failure(err, "")
	}
	if err := d.page.Locator(sel.Modal).WaitFor(playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateVisible,
	}); err != nil {
		return core.Failure(core.ErrSettingsUnavailable.WithCause(classifyError(err, "settings modal")), "")
	}
	if err := d.click(sel.WorkspaceTab, "workspace tab"); err != nil {
		return core.Failure(err, "")
	}
	return core.Success("settings opened", nil)
}

func (d *Driver) closeSettings(_ *flow.CloseSettingsStep) *core.CommandResult {
	sel := d.opts.Selectors
	if err := d.click(sel.CloseButton, "settings close button"); err != nil {
		return core.Failure(err, "")
	}
	if err := d.page.Locator(sel.Modal).WaitFor(playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateHidden,
	}); err != nil {
		return core.Failure(classifyError(err, "settings modal to close"), "")
	}
	return core.Success("settings closed", nil)
}

// requireSettings fails unless the settings modal is showing.
func (d *Driver) requireSettings(step flow.Step) *core.CommandResult {
	visible, err := d.page.Locator(d.opts.Selectors.Modal).IsVisible()
	if err != nil {
		return core.Failure(classifyError(err, "settings modal"), "")
	}
	if !visible {
		return core.Failure(core.ErrSettingsUnavailable.WithMessage(
			fmt.Sprintf("%s requires open workspace settings", step.Type())), "")
	}
	return nil
}

func (d *Driver) setShowTextAlways(s *flow.SetShowTextAlwaysStep) *core.CommandResult {
	if res := d.requireSettings(s); res != nil {
		return res
	}
	if err := d.page.Locator(d.opts.Selectors.ShowTextAlways).SetChecked(s.Enabled); err != nil {
		return core.Failure(classifyError(err, "show text always checkbox"), "")
	}
	return core.Success(fmt.Sprintf("show text always: %t", s.Enabled), nil)
}

func (d *Driver) setTextSize(s *flow.SetTextSizeStep) *core.CommandResult {
	if res := d.requireSettings(s); res != nil {
		return res
	}
	if s.Size <= 0 {
		return core.Failure(core.ErrInvalidConfig.WithMessage(fmt.Sprintf("invalid text size %d", s.Size)), "")
	}

	input := d.page.Locator(d.opts.Selectors.TextSize)
	want := strconv.Itoa(s.Size)
	if err := input.Fill(want); err != nil {
		return core.Failure(classifyError(err, "text size input"), "")
	}
	got, err := input.InputValue()
	if err != nil {
		return core.Failure(classifyError(err, "text size input"), "")
	}
	if got != want {
		return core.Failure(core.ErrAssertionFailed.WithMessage(
			fmt.Sprintf("text size input holds %q after typing %q", got, want)), "")
	}
	return core.Success("text size: "+want, nil)
}

func (d *Driver) setTextPosition(s *flow.SetTextPositionStep) *core.CommandResult {
	if res := d.requireSettings(s); res != nil {
		return res
	}
	mode, err := check.ParseLayoutMode(s.Position)
	if err != nil {
		return core.Failure(core.ErrInvalidConfig.WithCause(err), "")
	}

	sel := d.opts.Selectors
	if err := d.click(sel.TextPosition, "text position select"); err != nil {
		return core.Failure(err, "")
	}
	if err := d.click(sel.optionSelector(mode.SettingTitle()), "text position option"); err != nil {
		return core.Failure(err, "")
	}
	return core.Success("text position: "+mode.SettingTitle(), nil)
}

// setTextContent clears every selected field, then picks exactly the given ones.
func (d *Driver) setTextContent(s *flow.SetTextContentStep) *core.CommandResult {
	if res := d.requireSettings(s); res != nil {
		return res
	}
	cfg, err := check.NewTextContentConfig(s.Fields)
	if err != nil {
		return core.Failure(core.ErrInvalidConfig.WithCause(err), "")
	}

	sel := d.opts.Selectors
	remove := d.page.Locator(sel.ContentClear)
	if err := clearSelected(remove.Count, func() error { return remove.First().Click() }); err != nil {
		return core.Failure(err, "")
	}

	fields := cfg.Fields()
	if len(fields) == 0 {
		return core.Success("text content: none", nil)
	}

	if err := d.click(sel.TextContent, "text content select"); err != nil {
		return core.Failure(err, "")
	}
	for _, f := range fields {
		if err := d.click(sel.optionSelector(string(f)), "text content option "+string(f)); err != nil {
			return core.Failure(err, "")
		}
	}
	checked, err := d.page.Locator(sel.checkedOptions()).Count()
	if err != nil {
		return core.Failure(classifyError(err, "text content options"), "")
	}
	if err := verifySelected(checked, len(fields)); err != nil {
		return core.Failure(err, "")
	}
	// Toggle the dropdown closed again
	if err := d.click(sel.TextContent, "text content select"); err != nil {
		return core.Failure(err, "")
	}
	return core.Success("text content: "+cfg.String(), nil)
}

// clearSelected clicks remove icons until none are left. Each click drops
// one tag, so more rounds than the initial count plus one means the
// widget is not responding.
func clearSelected(count func() (int, error), removeFirst func() error) error {
	n, err := count()
	if err != nil {
		return classifyError(err, "text content tags")
	}
	for rounds := n + 1; n > 0; rounds-- {
		if rounds == 0 {
			return core.ErrAssertionFailed.WithMessage(
				fmt.Sprintf("%d text content tags still selected after clearing", n))
		}
		if err := removeFirst(); err != nil {
			return classifyError(err, "text content tag")
		}
		if n, err = count(); err != nil {
			return classifyError(err, "text content tags")
		}
	}
	return nil
}

func verifySelected(got, want int) error {
	if got != want {
		return core.ErrAssertionFailed.WithMessage(
			fmt.Sprintf("text content has %d options checked, want %d", got, want))
	}
	return nil
}
