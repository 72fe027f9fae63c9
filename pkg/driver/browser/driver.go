package browser

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/devicelab-dev/canvas-runner/pkg/core"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
)

// maxConsoleLog caps the captured console output per session.
const maxConsoleLog = 1 << 20

// Driver implements core.Driver and core.ElementQuerier on one Playwright page.
type Driver struct {
	bctx      playwright.BrowserContext
	page      playwright.Page
	opts      Options
	version   string
	timeoutMs int

	consoleMu sync.Mutex
	console   bytes.Buffer
}

func newDriver(bctx playwright.BrowserContext, page playwright.Page, opts Options, version string) *Driver {
	d := &Driver{
		bctx:      bctx,
		page:      page,
		opts:      opts,
		version:   version,
		timeoutMs: opts.TimeoutMs,
	}
	if d.timeoutMs <= 0 {
		d.timeoutMs = 10000
	}
	page.SetDefaultTimeout(float64(d.timeoutMs))
	page.OnConsole(d.recordConsole)
	return d
}

func (d *Driver) recordConsole(msg playwright.ConsoleMessage) {
	d.consoleMu.Lock()
	defer d.consoleMu.Unlock()
	if d.console.Len() >= maxConsoleLog {
		return
	}
	fmt.Fprintf(&d.console, "[%s] %s %s\n", time.Now().Format("15:04:05.000"), msg.Type(), msg.Text())
}

// ConsoleLog returns the browser console output captured so far.
func (d *Driver) ConsoleLog() []byte {
	d.consoleMu.Lock()
	defer d.consoleMu.Unlock()
	return append([]byte(nil), d.console.Bytes()...)
}

// SetDefaultTimeout changes the element wait used by later steps.
func (d *Driver) SetDefaultTimeout(ms int) {
	if ms <= 0 {
		return
	}
	d.timeoutMs = ms
	d.page.SetDefaultTimeout(float64(ms))
}

// Close closes the browser context and its page.
func (d *Driver) Close() error {
	return d.bctx.Close()
}

// Execute implements core.Driver.
func (d *Driver) Execute(step flow.Step) *core.CommandResult {
	start := time.Now()
	result := d.executeStep(step)
	result.Duration = time.Since(start)
	return result
}

func (d *Driver) executeStep(step flow.Step) *core.CommandResult {
	switch s := step.(type) {
	case *flow.OpenLinkStep:
		return d.openLink(s)
	case *flow.TapOnStep:
		return d.tapOn(s)
	case *flow.InputTextStep:
		return d.inputText(s)
	case *flow.PressKeyStep:
		return d.pressKey(s)
	case *flow.WaitForAnimationToEndStep:
		return d.waitForAnimationToEnd(s)
	case *flow.WaitUntilStep:
		return d.waitUntil(s)
	case *flow.TakeScreenshotStep:
		return d.takeScreenshot(s)

	// Workspace settings
	case *flow.OpenSettingsStep:
		return d.openSettings(s)
	case *flow.CloseSettingsStep:
		return d.closeSettings(s)
	case *flow.SetShowTextAlwaysStep:
		return d.setShowTextAlways(s)
	case *flow.SetTextSizeStep:
		return d.setTextSize(s)
	case *flow.SetTextPositionStep:
		return d.setTextPosition(s)
	case *flow.SetTextContentStep:
		return d.setTextContent(s)

	case *flow.AssertVisibleStep:
		return d.assertVisible(s)
	case *flow.AssertNotVisibleStep:
		return d.assertNotVisible(s)
	}

	return core.Failure(core.ErrUnsupportedStep.WithMessage(
		fmt.Sprintf("browser driver cannot execute %s", step.Type())), "")
}

// Screenshot implements core.Driver.
func (d *Driver) Screenshot() ([]byte, error) {
	return d.page.Screenshot(playwright.PageScreenshotOptions{Type: playwright.ScreenshotTypePng})
}

// Hierarchy implements core.Driver with the page's serialized DOM.
func (d *Driver) Hierarchy() ([]byte, error) {
	html, err := d.page.Content()
	if err != nil {
		return nil, err
	}
	return []byte(html), nil
}

// GetPlatformInfo implements core.Driver.
func (d *Driver) GetPlatformInfo() *core.PlatformInfo {
	return &core.PlatformInfo{
		Platform:       "web",
		Browser:        d.opts.Browser,
		BrowserVersion: d.version,
		Headless:       d.opts.Headless,
		ViewportWidth:  d.opts.ViewportWidth,
		ViewportHeight: d.opts.ViewportHeight,
		BaseURL:        d.opts.BaseURL,
	}
}
