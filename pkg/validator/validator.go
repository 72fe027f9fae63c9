// Package validator validates flow files before execution.
// It parses all files upfront, resolves runFlow references, checks step
// parameters and detects errors.
package validator

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/devicelab-dev/canvas-runner/pkg/check"
	"github.com/devicelab-dev/canvas-runner/pkg/config"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
)

// Text size bounds accepted by the workspace settings input.
const (
	MinTextSize = 1
	MaxTextSize = 100
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Step    string // step description, empty for file-level errors
	Message string
}

func (e *ValidationError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Step, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// TestCases is the list of top-level flow file paths in execution order.
	TestCases []string
	// Dependencies are files reached only through runFlow or retry.
	Dependencies []string
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator validates flow files.
type Validator struct {
	includeTags []string
	excludeTags []string
	patterns    []string

	parsed map[string]*flow.Flow
	deps   map[string]bool
}

// New creates a new Validator.
func New(includeTags, excludeTags []string) *Validator {
	return &Validator{
		includeTags: includeTags,
		excludeTags: excludeTags,
	}
}

// WithPatterns selects flows by glob instead of the directory's config.yaml.
func (v *Validator) WithPatterns(patterns []string) *Validator {
	v.patterns = patterns
	return v
}

// Validate validates a file or directory.
// It parses all flows, resolves runFlow references, and returns validation results.
// For a directory, config.yaml in it supplies flow patterns and tag filters
// that were not given explicitly.
func (v *Validator) Validate(path string) *Result {
	result := &Result{}
	v.parsed = make(map[string]*flow.Flow)
	v.deps = make(map[string]bool)

	info, err := os.Stat(path)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    path,
			Message: fmt.Sprintf("cannot access: %v", err),
		})
		return result
	}

	include, exclude := v.includeTags, v.excludeTags
	var files []string
	if info.IsDir() {
		patterns := v.patterns
		ws, err := config.LoadFromDir(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("invalid config: %v", err),
			})
			return result
		}
		if len(patterns) == 0 {
			patterns = ws.Flows
		}
		if len(include) == 0 {
			include = ws.IncludeTags
		}
		if len(exclude) == 0 {
			exclude = ws.ExcludeTags
		}

		files, err = collectFlowFiles(path, patterns)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("failed to scan directory: %v", err),
			})
			return result
		}
	} else {
		files = []string{path}
	}

	for _, file := range files {
		v.validateTopLevel(file, include, exclude, result)
	}

	// A file listed at top level is never only a dependency
	result.Dependencies = lo.Filter(result.Dependencies, func(dep string, _ int) bool {
		return !lo.Contains(result.TestCases, dep)
	})
	return result
}

// collectFlowFiles lists flow files of dir. Without patterns only the
// top level is scanned. A pattern matching a directory selects every flow
// below it; "**" matches any depth.
func collectFlowFiles(dir string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		var files []string
		for _, e := range entries {
			if !e.IsDir() && flow.IsFlowFile(e.Name()) {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
		return files, nil
	}

	var files []string
	for _, pattern := range patterns {
		var matched []string
		var err error
		if strings.Contains(pattern, "**") {
			matched, err = matchRecursive(dir, pattern)
		} else {
			matched, err = matchGlob(dir, pattern)
		}
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		sort.Strings(matched)
		files = append(files, matched...)
	}
	return lo.Uniq(files), nil
}

func matchGlob(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	var files []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if info.IsDir() {
			nested, err := walkFlows(m, func(string) bool { return true })
			if err != nil {
				return nil, err
			}
			files = append(files, nested...)
		} else if flow.IsFlowFile(m) {
			files = append(files, m)
		}
	}
	return files, nil
}

// matchRecursive handles "prefix/**/name" patterns; a bare "**" takes every flow.
func matchRecursive(dir, pattern string) ([]string, error) {
	prefix, rest, _ := strings.Cut(pattern, "**")
	root := filepath.Join(dir, filepath.FromSlash(strings.TrimSuffix(prefix, "/")))
	name := strings.TrimPrefix(rest, "/")
	if name != "" {
		if _, err := filepath.Match(name, ""); err != nil {
			return nil, err
		}
	}
	return walkFlows(root, func(path string) bool {
		if name == "" {
			return true
		}
		ok, _ := filepath.Match(name, filepath.Base(path))
		return ok
	})
}

func walkFlows(root string, keep func(string) bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && flow.IsFlowFile(path) && keep(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// validateTopLevel validates a selected flow and records it as a test case
// unless its tags exclude it.
func (v *Validator) validateTopLevel(filePath string, include, exclude []string, result *Result) {
	f := v.validateFile(filePath, result, nil)
	if f == nil || !flow.ShouldIncludeFlow(f, include, exclude) {
		return
	}
	if !lo.Contains(result.TestCases, filePath) {
		result.TestCases = append(result.TestCases, filePath)
	}
}

// validateFile parses a file once and validates it with its runFlow
// dependencies. It returns nil when the file could not be parsed.
func (v *Validator) validateFile(filePath string, result *Result, chain []string) *flow.Flow {
	// Check for circular dependency
	for _, ancestor := range chain {
		if ancestor == filePath {
			cycle := append(append([]string(nil), chain...), filePath)
			result.Errors = append(result.Errors, &ValidationError{
				File:    filePath,
				Message: fmt.Sprintf("circular dependency detected: %s", strings.Join(cycle, " -> ")),
			})
			return nil
		}
	}

	if len(chain) > 0 && !v.deps[filePath] {
		v.deps[filePath] = true
		result.Dependencies = append(result.Dependencies, filePath)
	}

	// Skip if already validated
	if f, ok := v.parsed[filePath]; ok {
		return f
	}

	f, err := flow.ParseFile(filePath)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    filePath,
			Message: fmt.Sprintf("parse error: %v", err),
		})
		v.parsed[filePath] = nil
		return nil
	}
	v.parsed[filePath] = f

	if f.Config.Timeout < 0 {
		result.Errors = append(result.Errors, &ValidationError{File: filePath, Message: "timeout must not be negative"})
	}

	newChain := append(append([]string(nil), chain...), filePath)
	v.validateSteps(f.Config.OnFlowStart, filePath, result, newChain)
	v.validateSteps(f.Steps, filePath, result, newChain)
	v.validateSteps(f.Config.OnFlowComplete, filePath, result, newChain)
	return f
}

// validateSteps checks step parameters and follows runFlow references.
func (v *Validator) validateSteps(steps []flow.Step, parentFile string, result *Result, chain []string) {
	parentDir := filepath.Dir(parentFile)

	for _, step := range steps {
		for _, msg := range checkStep(step) {
			result.Errors = append(result.Errors, &ValidationError{
				File:    parentFile,
				Step:    step.Describe(),
				Message: msg,
			})
		}

		switch s := step.(type) {
		case *flow.RunFlowStep:
			if s.File != "" {
				v.validateFile(resolveFilePath(parentDir, s.File), result, chain)
			}
			v.validateSteps(s.Steps, parentFile, result, chain)

		case *flow.RepeatStep:
			v.validateSteps(s.Steps, parentFile, result, chain)

		case *flow.RetryStep:
			if s.File != "" {
				v.validateFile(resolveFilePath(parentDir, s.File), result, chain)
			}
			v.validateSteps(s.Steps, parentFile, result, chain)

		case *flow.RunScriptStep:
			if s.File != "" && !hasVar(s.File) {
				if _, err := os.Stat(resolveFilePath(parentDir, s.File)); err != nil {
					result.Errors = append(result.Errors, &ValidationError{
						File:    parentFile,
						Step:    step.Describe(),
						Message: fmt.Sprintf("script not found: %s", s.File),
					})
				}
			}
		}
	}
}

// checkStep returns the parameter problems of a single step.
// Values holding ${VAR} references are checked after expansion, at run time.
func checkStep(step flow.Step) []string {
	var errs []string
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}
	requireSelector := func(name string, sel flow.Selector) {
		if sel.IsEmpty() {
			add("%s selector is required", name)
		}
	}
	checkFields := func(fields []string) {
		for _, f := range fields {
			if hasVar(f) {
				continue
			}
			if _, err := check.ParseTextField(f); err != nil {
				add("%v", err)
			}
		}
	}

	switch s := step.(type) {
	case *flow.UnsupportedStep:
		add("unsupported step: %s", s.Reason)

	case *flow.OpenLinkStep:
		if s.Link == "" {
			add("link is required")
		}
	case *flow.TapOnStep:
		requireSelector("tapOn", s.Selector)
	case *flow.InputTextStep:
		if s.Text == "" {
			add("text is required")
		}
	case *flow.PressKeyStep:
		if s.Key == "" {
			add("key is required")
		}
	case *flow.WaitUntilStep:
		if s.Visible == nil && s.NotVisible == nil {
			add("visible or notVisible is required")
		}

	case *flow.SetTextSizeStep:
		if s.Size < MinTextSize || s.Size > MaxTextSize {
			add("text size %d out of range [%d, %d]", s.Size, MinTextSize, MaxTextSize)
		}
	case *flow.SetTextPositionStep:
		if !hasVar(s.Position) {
			if _, err := check.ParseLayoutMode(s.Position); err != nil {
				add("%v", err)
			}
		}
	case *flow.SetTextContentStep:
		checkFields(s.Fields)

	case *flow.AssertVisibleStep:
		requireSelector("assertVisible", s.Selector)
	case *flow.AssertNotVisibleStep:
		requireSelector("assertNotVisible", s.Selector)
	case *flow.AssertCountStep:
		requireSelector("assertCount", s.Selector)
		if s.Count < 0 {
			add("count must not be negative")
		}
	case *flow.AssertTextStep:
		requireSelector("assertText", s.Selector)
		if s.Equals == nil && s.Contains == "" {
			add("equals or contains is required")
		}
	case *flow.AssertFontSizeStep:
		if s.Size < MinTextSize || s.Size > MaxTextSize {
			add("font size %d out of range [%d, %d]", s.Size, MinTextSize, MaxTextSize)
		}
	case *flow.AssertTextPositionStep:
		requireSelector("shape", s.Shape)
		if !hasVar(s.Position) {
			if _, err := check.ParseLayoutMode(s.Position); err != nil {
				add("%v", err)
			}
		}
		if s.Tolerance < 0 {
			add("tolerance must not be negative")
		}
	case *flow.AssertLabelContentStep:
		if s.LabelName == "" {
			add("label name is required")
		}
		if s.ObjectID < 0 {
			add("id must not be negative")
		}
	case *flow.AssertTextFieldsStep:
		checkFields(s.Fields)
		if s.Shapes < 0 || s.AttributesPerShape < 0 || s.Descriptions < 0 {
			add("counts must not be negative")
		}

	case *flow.RepeatStep:
		if !hasVar(s.Times) && s.Times != "" {
			if n := parseInt(s.Times); n <= 0 {
				add("times must be a positive integer, got %q", s.Times)
			}
		}
		if len(s.Steps) == 0 {
			add("commands are required")
		}
	case *flow.RetryStep:
		if s.File == "" && len(s.Steps) == 0 {
			add("file or commands are required")
		}
	case *flow.RunFlowStep:
		if s.File == "" && len(s.Steps) == 0 {
			add("file or commands are required")
		}

	case *flow.EvalScriptStep:
		if strings.TrimSpace(s.Script) == "" {
			add("script is required")
		}
	case *flow.RunScriptStep:
		if s.File == "" {
			add("file is required")
		}
	case *flow.AssertTrueStep:
		if strings.TrimSpace(s.Condition) == "" {
			add("condition is required")
		}
	}
	return errs
}

func hasVar(s string) bool {
	return strings.Contains(s, "$")
}

// parseInt parses an integer in 10_000 format; invalid input yields 0.
func parseInt(s string) int {
	n, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	if err != nil {
		return 0
	}
	return n
}

// resolveFilePath resolves a file path relative to a base directory.
func resolveFilePath(baseDir, filePath string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	return filepath.Join(baseDir, filePath)
}
