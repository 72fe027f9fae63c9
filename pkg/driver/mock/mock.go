// Package mock provides an in-memory canvas driver for dry runs and tests.
package mock

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/canvas-runner/pkg/check"
	"github.com/devicelab-dev/canvas-runner/pkg/core"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
)

// Driver is a mock implementation of core.Driver and core.ElementQuerier.
// Settings steps mutate the scene; queries read the re-rendered frame.
type Driver struct {
	Config Config

	mu        sync.Mutex
	scene     *Scene
	url       string
	stepCount int
}

// Config configures mock driver behavior.
type Config struct {
	// FailOnStep makes step N fail (1-indexed). 0 = never fail.
	FailOnStep int
	// StepDelay adds artificial delay per step
	StepDelay time.Duration
	// Scene to render (DefaultScene when nil)
	Scene *Scene
	// BaseURL resolves relative openLink targets
	BaseURL string
}

// New creates a new mock driver.
func New(cfg Config) *Driver {
	scene := cfg.Scene
	if scene == nil {
		scene = DefaultScene()
	}
	return &Driver{Config: cfg, scene: scene}
}

// Scene returns the live scene.
func (d *Driver) Scene() *Scene {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scene
}

// URL returns the last opened URL.
func (d *Driver) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

// Execute simulates executing a step.
func (d *Driver) Execute(step flow.Step) *core.CommandResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stepCount++
	start := time.Now()

	if d.Config.StepDelay > 0 {
		time.Sleep(d.Config.StepDelay)
	}

	if d.Config.FailOnStep > 0 && d.stepCount == d.Config.FailOnStep {
		return &core.CommandResult{
			Success:  false,
			Duration: time.Since(start),
			Error:    fmt.Errorf("mock failure on step %d", d.stepCount),
			Message:  fmt.Sprintf("Simulated failure on step %d (%s)", d.stepCount, step.Type()),
		}
	}

	result := d.execute(step)
	result.Duration = time.Since(start)
	return result
}

func (d *Driver) execute(step flow.Step) *core.CommandResult {
	switch s := step.(type) {
	case *flow.OpenLinkStep:
		d.url = resolveURL(d.Config.BaseURL, s.Link)
		return core.Success("opened "+d.url, nil)

	case *flow.TapOnStep:
		return d.interact(s.Selector, "tapped")

	case *flow.InputTextStep:
		return d.input(s.Selector, s.Text)

	case *flow.PressKeyStep:
		if strings.EqualFold(s.Key, "Escape") {
			d.scene.SettingsOpen = false
		}
		return core.Success("pressed "+s.Key, nil)

	case *flow.WaitForAnimationToEndStep:
		return core.Success("frame settled", nil)

	case *flow.WaitUntilStep:
		if s.Visible != nil {
			return d.visible(*s.Visible)
		}
		if s.NotVisible != nil {
			return d.notVisible(*s.NotVisible)
		}
		return core.Failure(core.ErrMissingRequired.WithMessage("extendedWaitUntil requires visible or notVisible"), "")

	case *flow.TakeScreenshotStep:
		return d.takeScreenshot(s.Path)

	case *flow.OpenSettingsStep:
		d.scene.SettingsOpen = true
		return core.Success("settings opened", nil)

	case *flow.CloseSettingsStep:
		d.scene.SettingsOpen = false
		return core.Success("settings closed", nil)

	case *flow.SetShowTextAlwaysStep:
		if !d.scene.SettingsOpen {
			return settingsClosed(step)
		}
		d.scene.ShowTextAlways = s.Enabled
		return core.Success(fmt.Sprintf("show text always: %t", s.Enabled), nil)

	case *flow.SetTextSizeStep:
		if !d.scene.SettingsOpen {
			return settingsClosed(step)
		}
		if s.Size <= 0 {
			return core.Failure(core.ErrInvalidConfig.WithMessage(fmt.Sprintf("invalid text size %d", s.Size)), "")
		}
		d.scene.TextSize = s.Size
		return core.Success(fmt.Sprintf("text size: %d", s.Size), nil)

	case *flow.SetTextPositionStep:
		if !d.scene.SettingsOpen {
			return settingsClosed(step)
		}
		mode, err := check.ParseLayoutMode(s.Position)
		if err != nil {
			return core.Failure(core.ErrInvalidConfig.WithCause(err), "")
		}
		d.scene.Position = mode
		return core.Success("text position: "+mode.SettingTitle(), nil)

	case *flow.SetTextContentStep:
		if !d.scene.SettingsOpen {
			return settingsClosed(step)
		}
		cfg, err := check.NewTextContentConfig(s.Fields)
		if err != nil {
			return core.Failure(core.ErrInvalidConfig.WithCause(err), "")
		}
		d.scene.Content = cfg
		return core.Success("text content: "+cfg.String(), nil)

	case *flow.AssertVisibleStep:
		return d.visible(s.Selector)

	case *flow.AssertNotVisibleStep:
		return d.notVisible(s.Selector)
	}

	return core.Failure(core.ErrUnsupportedStep.WithMessage(
		fmt.Sprintf("mock driver cannot execute %s", step.Type())), "")
}

func settingsClosed(step flow.Step) *core.CommandResult {
	return core.Failure(core.ErrSettingsUnavailable.WithMessage(
		fmt.Sprintf("%s requires open workspace settings", step.Type())), "")
}

func (d *Driver) interact(sel flow.Selector, verb string) *core.CommandResult {
	el, err := d.find(sel)
	if err != nil {
		if sel.IsOptional() {
			return core.Success(fmt.Sprintf("optional element %s not found", sel.Describe()), nil)
		}
		return core.Failure(err, "")
	}
	d.applyTap(el)
	return core.Success(fmt.Sprintf("%s %s", verb, sel.Describe()), el.info())
}

func (d *Driver) input(sel flow.Selector, text string) *core.CommandResult {
	if sel.IsEmpty() {
		return core.Success("typed into focused element", nil)
	}
	el, err := d.find(sel)
	if err != nil {
		if sel.IsOptional() {
			return core.Success(fmt.Sprintf("optional element %s not found", sel.Describe()), nil)
		}
		return core.Failure(err, "")
	}
	if el.scope == "cvat-workspace-settings-text-size" {
		size, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil || size <= 0 {
			return core.Failure(core.ErrInvalidConfig.WithMessage(fmt.Sprintf("invalid text size %q", text)), "")
		}
		d.scene.TextSize = size
	}
	return core.Success("typed into "+sel.Describe(), el.info())
}

// applyTap toggles the widgets whose state the scene tracks.
func (d *Driver) applyTap(el *element) {
	if el.scope == "cvat-workspace-settings-show-text-always" && el.attrs["type"] == "checkbox" {
		d.scene.ShowTextAlways = !d.scene.ShowTextAlways
	}
}

func (d *Driver) visible(sel flow.Selector) *core.CommandResult {
	el, err := d.find(sel)
	if err != nil {
		return core.Failure(core.ErrElementNotVisible.WithCause(err), "")
	}
	return core.Success(sel.Describe()+" is visible", el.info())
}

func (d *Driver) notVisible(sel flow.Selector) *core.CommandResult {
	if n := len(d.matching(sel)); n > 0 {
		return core.Failure(core.ErrAssertionFailed.WithMessage(
			fmt.Sprintf("%s is visible (%d match)", sel.Describe(), n)), "")
	}
	return core.Success(sel.Describe()+" is not visible", nil)
}

func (d *Driver) takeScreenshot(path string) *core.CommandResult {
	if path == "" {
		return core.Success("screenshot captured", nil)
	}
	if filepath.Ext(path) == "" {
		path += ".png"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return core.Failure(err, "")
		}
	}
	png, _ := d.Screenshot()
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return core.Failure(err, "")
	}
	return core.Success("screenshot saved to "+path, nil)
}

// Screenshot returns a 1x1 PNG.
func (d *Driver) Screenshot() ([]byte, error) {
	return []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, // PNG signature
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52, // IHDR chunk
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
		0x42, 0x60, 0x82,
	}, nil
}

// Hierarchy renders the current frame as HTML.
func (d *Driver) Hierarchy() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteString("<html><body>\n")
	for _, e := range d.scene.render() {
		fmt.Fprintf(&buf, "<%s", e.tag)
		if e.id != "" {
			fmt.Fprintf(&buf, ` id="%s"`, html.EscapeString(e.id))
		}
		if len(e.classes) > 0 {
			fmt.Fprintf(&buf, ` class="%s"`, html.EscapeString(strings.Join(e.classes, " ")))
		}
		if e.scope != "" {
			fmt.Fprintf(&buf, ` data-scope="%s"`, html.EscapeString(e.scope))
		}
		for _, k := range sortedKeys(e.attrs) {
			fmt.Fprintf(&buf, ` %s="%s"`, k, html.EscapeString(e.attrs[k]))
		}
		fmt.Fprintf(&buf, ` data-bounds="%s">%s</%s>`+"\n", e.box, html.EscapeString(e.text), e.tag)
	}
	buf.WriteString("</body></html>\n")
	return buf.Bytes(), nil
}

// GetPlatformInfo returns mock platform info.
func (d *Driver) GetPlatformInfo() *core.PlatformInfo {
	return &core.PlatformInfo{
		Platform:       "web",
		Browser:        "mock",
		Headless:       true,
		ViewportWidth:  ViewportWidth,
		ViewportHeight: ViewportHeight,
		BaseURL:        d.Config.BaseURL,
	}
}

func resolveURL(base, link string) string {
	if base == "" || strings.Contains(link, "://") {
		return link
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(link, "/")
}
