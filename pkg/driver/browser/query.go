package browser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/devicelab-dev/canvas-runner/pkg/check"
	"github.com/devicelab-dev/canvas-runner/pkg/core"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
)

// classifyError maps Playwright errors onto execution error categories.
func classifyError(err error, what string) error {
	if err == nil {
		return nil
	}
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) {
		return err
	}

	msg := err.Error()
	switch {
	case errors.Is(err, playwright.ErrTimeout):
		return core.ErrWaitTimeout.WithMessage("timed out waiting for " + what).WithCause(err)
	case errors.Is(err, playwright.ErrTargetClosed):
		return core.ErrBrowserClosed.WithCause(err)
	case strings.Contains(msg, "ERR_CONNECTION_REFUSED"),
		strings.Contains(msg, "NS_ERROR_CONNECTION_REFUSED"),
		strings.Contains(msg, "Could not connect"):
		return core.ErrServerUnreachable.WithCause(err)
	case strings.Contains(msg, "net::ERR_"), strings.Contains(msg, "NS_ERROR_"):
		return core.ErrNavigationFailed.WithCause(err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// all returns the locator matching every element of sel, ignoring its index.
func (d *Driver) all(sel flow.Selector) (playwright.Locator, error) {
	css := cssFor(sel)
	if css == "" {
		return nil, core.ErrMissingRequired.WithMessage("empty selector")
	}
	return d.page.Locator(css), nil
}

// locate waits for sel to attach and resolves its index to one element.
func (d *Driver) locate(sel flow.Selector) (playwright.Locator, error) {
	loc, err := d.all(sel)
	if err != nil {
		return nil, err
	}

	err = loc.First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(d.timeoutMs)),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return nil, core.ErrElementNotFound.WithMessage("element not found: " + sel.DescribeQuoted())
		}
		return nil, classifyError(err, sel.Describe())
	}

	n, err := loc.Count()
	if err != nil {
		return nil, classifyError(err, sel.Describe())
	}
	pos, err := sel.Position(n)
	if err != nil {
		return nil, core.ErrElementNotFound.WithCause(err)
	}
	return loc.Nth(pos), nil
}

// BoundingBox implements core.ElementQuerier.
func (d *Driver) BoundingBox(sel flow.Selector) (check.BoundingBox, error) {
	loc, err := d.locate(sel)
	if err != nil {
		return check.BoundingBox{}, err
	}
	rect, err := loc.BoundingBox()
	if err != nil {
		return check.BoundingBox{}, classifyError(err, sel.Describe())
	}
	if rect == nil {
		return check.BoundingBox{}, core.ErrElementNotVisible.WithMessage(sel.Describe() + " is not rendered")
	}
	return check.BoundingBox{Left: rect.X, Top: rect.Y, Width: rect.Width, Height: rect.Height}, nil
}

// Text implements core.ElementQuerier.
func (d *Driver) Text(sel flow.Selector) (string, error) {
	loc, err := d.locate(sel)
	if err != nil {
		return "", err
	}
	text, err := loc.TextContent()
	return text, classifyError(err, sel.Describe())
}

// Texts implements core.ElementQuerier.
func (d *Driver) Texts(sel flow.Selector) ([]string, error) {
	loc, err := d.all(sel)
	if err != nil {
		return nil, err
	}
	texts, err := loc.AllTextContents()
	return texts, classifyError(err, sel.Describe())
}

// Count implements core.ElementQuerier.
func (d *Driver) Count(sel flow.Selector) (int, error) {
	loc, err := d.all(sel)
	if err != nil {
		return 0, err
	}
	n, err := loc.Count()
	return n, classifyError(err, sel.Describe())
}

// Attribute implements core.ElementQuerier.
func (d *Driver) Attribute(sel flow.Selector, name string) (string, error) {
	loc, err := d.locate(sel)
	if err != nil {
		return "", err
	}
	v, err := loc.GetAttribute(name)
	return v, classifyError(err, sel.Describe())
}
