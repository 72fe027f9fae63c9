package executor

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/devicelab-dev/canvas-runner/pkg/core"
	"github.com/devicelab-dev/canvas-runner/pkg/report"
)

// commandResultToElement converts core.CommandResult to report.Element.
func commandResultToElement(r *core.CommandResult) *report.Element {
	if r == nil || r.Element == nil {
		return nil
	}

	el := r.Element
	element := &report.Element{
		Found: true,
		ID:    el.ID,
		Text:  el.Text,
		Class: el.Class,
	}

	if el.Bounds.Width > 0 || el.Bounds.Height > 0 {
		element.Bounds = &report.Bounds{
			X:      el.Bounds.Left,
			Y:      el.Bounds.Top,
			Width:  el.Bounds.Width,
			Height: el.Bounds.Height,
		}
	}

	return element
}

// commandResultToError converts core.CommandResult error to report.Error.
func commandResultToError(r *core.CommandResult) *report.Error {
	if r == nil || r.Success {
		return nil
	}

	message := r.Message
	if message == "" && r.Error != nil {
		message = r.Error.Error()
	}
	if message == "" {
		message = "step failed"
	}

	errType := "unknown"
	if cat := core.CategoryOf(r.Error); cat != core.ErrCategoryNone {
		errType = cat.String()
	}

	out := &report.Error{Type: errType, Message: message}

	var execErr *core.ExecutionError
	if errors.As(r.Error, &execErr) {
		out.Details = formatDetails(execErr.Details)
		out.Suggestion = suggestionFor(execErr)
	}
	return out
}

// formatDetails renders error details as sorted key=value pairs.
func formatDetails(details map[string]interface{}) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, details[k])
	}
	return strings.Join(parts, ", ")
}

func suggestionFor(err *core.ExecutionError) string {
	switch err.Code {
	case core.ErrSettingsUnavailable.Code:
		return "Add an openSettings step before changing text settings"
	case core.ErrElementNotFound.Code:
		return "Enable setShowTextAlways or check the selector against the saved page source"
	case core.ErrUnsupportedStep.Code:
		return "Run the flow with the playwright driver"
	case core.ErrScriptFailed.Code:
		return "Script console output is in canvas-runner.log"
	}

	switch err.Category {
	case core.ErrCategoryTimeout:
		return "Increase the step timeout or the config timeout"
	case core.ErrCategoryConnection:
		return "Check that the browser is running and the base URL is reachable"
	case core.ErrCategoryConfig:
		return "Run 'canvas-runner validate' on the flow"
	}
	return ""
}
