// Package core provides the execution model types for canvas-runner.
package core

import (
	"time"

	"github.com/devicelab-dev/canvas-runner/pkg/check"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
)

// Driver defines the interface for executing commands against a page.
// Implementations: Playwright browser, in-memory mock.
// The Runner handles flow logic; Driver just executes individual commands.
type Driver interface {
	// Execute runs a single step and returns the result
	Execute(step flow.Step) *CommandResult

	// Screenshot captures the current viewport as PNG
	Screenshot() ([]byte, error)

	// Hierarchy captures the current page markup
	Hierarchy() ([]byte, error)

	// GetPlatformInfo returns browser/platform information
	GetPlatformInfo() *PlatformInfo
}

// ElementQuerier reads rendered element state. Assertions on canvas labels
// consume these snapshots; every call resolves the selector afresh.
type ElementQuerier interface {
	// BoundingBox returns the viewport-relative box of the selected element
	BoundingBox(sel flow.Selector) (check.BoundingBox, error)

	// Text returns the text content of the selected element
	Text(sel flow.Selector) (string, error)

	// Texts returns the text content of every matching element, in document order
	Texts(sel flow.Selector) ([]string, error)

	// Count returns how many elements match, ignoring the selector index
	Count(sel flow.Selector) (int, error)

	// Attribute returns an attribute of the selected element ("" when absent)
	Attribute(sel flow.Selector, name string) (string, error)
}

// CommandResult represents the outcome of executing a single command
type CommandResult struct {
	// Core outcome
	Success  bool          `json:"success"`
	Error    error         `json:"-"`
	Duration time.Duration `json:"duration"`

	// Human-readable output
	Message string `json:"message,omitempty"`

	// Element information (for tap, assert, etc.)
	Element *ElementInfo `json:"element,omitempty"`

	// Generic data for command-specific results
	// Examples: observed label text, measured boxes
	Data interface{} `json:"data,omitempty"`

	// Debug information (internal details, not for reporting)
	Debug interface{} `json:"-"`
}

// ElementInfo represents information about a rendered element
type ElementInfo struct {
	ID         string            `json:"id,omitempty"`
	Text       string            `json:"text,omitempty"`
	Bounds     check.BoundingBox `json:"bounds"`
	Visible    bool              `json:"visible"`
	Enabled    bool              `json:"enabled"`
	Checked    bool              `json:"checked,omitempty"`
	Class      string            `json:"class,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// PlatformInfo contains browser and page details
type PlatformInfo struct {
	Platform       string `json:"platform"`                 // web
	Browser        string `json:"browser"`                  // chromium, firefox, webkit, mock
	BrowserVersion string `json:"browserVersion,omitempty"` // e.g., "120.0.6099.28"
	Headless       bool   `json:"headless"`
	ViewportWidth  int    `json:"viewportWidth,omitempty"`
	ViewportHeight int    `json:"viewportHeight,omitempty"`
	BaseURL        string `json:"baseUrl,omitempty"`
}

// Success builds a passing result.
func Success(msg string, elem *ElementInfo) *CommandResult {
	return &CommandResult{Success: true, Message: msg, Element: elem}
}

// Failure builds a failing result carrying err.
func Failure(err error, msg string) *CommandResult {
	if msg == "" && err != nil {
		msg = err.Error()
	}
	return &CommandResult{Success: false, Error: err, Message: msg}
}
