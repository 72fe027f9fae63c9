// Package browser drives the annotation UI in a real browser through Playwright.
package browser

import (
	"fmt"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/devicelab-dev/canvas-runner/pkg/config"
	"github.com/devicelab-dev/canvas-runner/pkg/logger"
)

// Supported browser engines.
var Engines = []string{"chromium", "firefox", "webkit"}

// Options configures the launched browser and the sessions it hands out.
type Options struct {
	Browser        string // chromium, firefox, webkit
	Headless       bool
	SlowMo         float64 // ms between operations
	ViewportWidth  int
	ViewportHeight int
	BaseURL        string
	TimeoutMs      int // default element wait
	Selectors      Selectors
}

// OptionsFromConfig builds launch options from a workspace config.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	sel, err := DefaultSelectors().WithOverrides(cfg.Selectors)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Browser:        cfg.Browser,
		Headless:       cfg.Headless,
		SlowMo:         cfg.SlowMo,
		ViewportWidth:  cfg.Viewport.Width,
		ViewportHeight: cfg.Viewport.Height,
		BaseURL:        cfg.BaseURL,
		TimeoutMs:      cfg.Timeout(),
		Selectors:      sel,
	}, nil
}

func runOptions(engines ...string) *playwright.RunOptions {
	return &playwright.RunOptions{
		DriverDirectory: config.GetDriversDir("playwright"),
		Browsers:        engines,
		Verbose:         false,
	}
}

// Install downloads the Playwright driver and the given browser engines
// into the runner home.
func Install(engines ...string) error {
	if len(engines) == 0 {
		engines = []string{config.DefaultBrowser}
	}
	for _, e := range engines {
		if err := validateEngine(e); err != nil {
			return err
		}
	}
	logger.Info("Installing playwright driver and %s into %s", strings.Join(engines, ", "), config.GetDriversDir("playwright"))
	if err := playwright.Install(runOptions(engines...)); err != nil {
		return fmt.Errorf("install playwright: %w", err)
	}
	return nil
}

func validateEngine(name string) error {
	for _, e := range Engines {
		if e == name {
			return nil
		}
	}
	return fmt.Errorf("unsupported browser %q (want one of %s)", name, strings.Join(Engines, ", "))
}

// Launcher owns one Playwright process and one browser. Sessions are
// isolated browser contexts, so parallel workers share a Launcher.
type Launcher struct {
	opts    Options
	pw      *playwright.Playwright
	browser playwright.Browser

	mu       sync.Mutex
	sessions []*Driver
}

// Launch starts Playwright and the configured browser engine.
func Launch(opts Options) (*Launcher, error) {
	if opts.Browser == "" {
		opts.Browser = config.DefaultBrowser
	}
	if err := validateEngine(opts.Browser); err != nil {
		return nil, err
	}

	pw, err := playwright.Run(runOptions(opts.Browser))
	if err != nil {
		return nil, fmt.Errorf("start playwright (run 'canvas-runner install' first?): %w", err)
	}

	var engine playwright.BrowserType
	switch opts.Browser {
	case "firefox":
		engine = pw.Firefox
	case "webkit":
		engine = pw.WebKit
	default:
		engine = pw.Chromium
	}

	b, err := engine.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		SlowMo:   playwright.Float(opts.SlowMo),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch %s: %w", opts.Browser, err)
	}

	logger.Info("Launched %s %s (headless=%t)", opts.Browser, b.Version(), opts.Headless)
	return &Launcher{opts: opts, pw: pw, browser: b}, nil
}

// NewSession opens a fresh browser context and page.
func (l *Launcher) NewSession() (*Driver, error) {
	ctxOpts := playwright.BrowserNewContextOptions{}
	if l.opts.ViewportWidth > 0 && l.opts.ViewportHeight > 0 {
		ctxOpts.Viewport = &playwright.Size{Width: l.opts.ViewportWidth, Height: l.opts.ViewportHeight}
	}
	if l.opts.BaseURL != "" {
		ctxOpts.BaseURL = playwright.String(l.opts.BaseURL)
	}

	bctx, err := l.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	d := newDriver(bctx, page, l.opts, l.browser.Version())

	l.mu.Lock()
	l.sessions = append(l.sessions, d)
	l.mu.Unlock()
	return d, nil
}

// Close closes every session, the browser and Playwright.
func (l *Launcher) Close() error {
	l.mu.Lock()
	sessions := l.sessions
	l.sessions = nil
	l.mu.Unlock()

	for _, d := range sessions {
		if err := d.Close(); err != nil {
			logger.Warn("close session: %v", err)
		}
	}
	if err := l.browser.Close(); err != nil {
		logger.Warn("close browser: %v", err)
	}
	return l.pw.Stop()
}
