package executor

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/devicelab-dev/canvas-runner/pkg/flow"
	"github.com/devicelab-dev/canvas-runner/pkg/jsengine"
)

var (
	// envVarPattern matches ALL_CAPS identifiers that look like env variables
	envVarPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{2,}$`)
	// bracedVarPattern matches ${NAME} references
	bracedVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
)

// Vars holds the variables visible to a flow and expands references to them.
// Lookups are layered by the caller: system env, run env, flow env, step env.
type Vars struct {
	values  map[string]string
	flowDir string // Directory of current flow (for resolving relative paths)
	script  *jsengine.Engine
}

// NewVars creates an empty variable set.
func NewVars() *Vars {
	return &Vars{values: make(map[string]string)}
}

// SetFlowDir sets the current flow directory for relative path resolution.
func (v *Vars) SetFlowDir(dir string) {
	v.flowDir = dir
}

// AttachScript evaluates ${expr} references that are not plain variables
// with engine.
func (v *Vars) AttachScript(engine *jsengine.Engine) {
	v.script = engine
}

// syncScript pushes the current variables into the attached engine.
func (v *Vars) syncScript() {
	if v.script != nil {
		v.script.SetVariables(v.values)
	}
}

// Set sets a variable.
func (v *Vars) Set(name, value string) {
	v.values[name] = value
}

// SetAll sets multiple variables.
func (v *Vars) SetAll(vars map[string]string) {
	for k, val := range vars {
		v.Set(k, val)
	}
}

// Get returns a variable value ("" when unset).
func (v *Vars) Get(name string) string {
	return v.values[name]
}

// ImportSystemEnv imports uppercase process environment variables (THING, MY_VAR).
func (v *Vars) ImportSystemEnv() {
	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if ok && envVarPattern.MatchString(name) {
			v.Set(name, value)
		}
	}
}

// Expand replaces ${NAME} and $NAME references with their values. With a
// script engine attached, remaining ${expr} references are evaluated as
// JavaScript. Unknown references are left untouched.
func (v *Vars) Expand(text string) string {
	if !strings.Contains(text, "$") {
		return text
	}

	text = bracedVarPattern.ReplaceAllStringFunc(text, func(ref string) string {
		name := ref[2 : len(ref)-1]
		if val, ok := v.values[name]; ok {
			return val
		}
		return ref
	})

	// Longest names first so $FOO_BAR wins over $FOO
	names := lo.Keys(v.values)
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		text = expandDollarVar(text, name, v.values[name])
	}

	if v.script != nil && strings.Contains(text, "${") {
		v.syncScript()
		text = v.script.Expand(text)
	}
	return text
}

// expandDollarVar replaces $VAR with value, checking word boundaries.
func expandDollarVar(text, name, value string) string {
	pattern := "$" + name
	idx := 0
	for {
		pos := strings.Index(text[idx:], pattern)
		if pos == -1 {
			break
		}
		pos += idx

		// Followed by an identifier character: a different variable
		endPos := pos + len(pattern)
		if endPos < len(text) && isIdentChar(text[endPos]) {
			idx = endPos
			continue
		}

		text = text[:pos] + value + text[endPos:]
		idx = pos + len(value)
	}
	return text
}

func isIdentChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

// With applies env on top of the current variables and returns a restore function.
func (v *Vars) With(env map[string]string) func() {
	type saved struct {
		value string
		ok    bool
	}
	old := make(map[string]saved, len(env))
	for k, val := range env {
		prev, ok := v.values[k]
		old[k] = saved{prev, ok}
		v.Set(k, v.Expand(val))
	}
	return func() {
		for k, s := range old {
			if s.ok {
				v.values[k] = s.value
			} else {
				delete(v.values, k)
			}
		}
	}
}

// ParseInt parses an integer after expansion, supporting the 10_000 format.
func (v *Vars) ParseInt(s string, defaultVal int) int {
	s = strings.ReplaceAll(strings.TrimSpace(v.Expand(s)), "_", "")
	if val, err := strconv.Atoi(s); err == nil {
		return val
	}
	return defaultVal
}

// ResolvePath resolves a relative path against the flow directory.
func (v *Vars) ResolvePath(path string) string {
	path = v.Expand(path)
	if filepath.IsAbs(path) || v.flowDir == "" {
		return path
	}
	return filepath.Join(v.flowDir, path)
}

// ExpandStep returns a copy of step with variables expanded in its string
// parameters. The parsed step is left untouched so repeats and retries
// expand it again. Compound steps are returned as is.
func (v *Vars) ExpandStep(step flow.Step) flow.Step {
	switch s := step.(type) {
	case *flow.OpenLinkStep:
		c := *s
		c.Link = v.Expand(c.Link)
		return &c
	case *flow.TapOnStep:
		c := *s
		v.expandSelector(&c.Selector)
		return &c
	case *flow.InputTextStep:
		c := *s
		c.Text = v.Expand(c.Text)
		v.expandSelector(&c.Selector)
		return &c
	case *flow.PressKeyStep:
		c := *s
		c.Key = v.Expand(c.Key)
		return &c
	case *flow.WaitUntilStep:
		c := *s
		c.Visible = v.expandSelectorCopy(c.Visible)
		c.NotVisible = v.expandSelectorCopy(c.NotVisible)
		return &c
	case *flow.TakeScreenshotStep:
		c := *s
		c.Path = v.Expand(c.Path)
		return &c
	case *flow.RunScriptStep:
		c := *s
		c.File = v.Expand(c.File)
		return &c
	case *flow.SetTextPositionStep:
		c := *s
		c.Position = v.Expand(c.Position)
		return &c
	case *flow.SetTextContentStep:
		c := *s
		c.Fields = v.expandAll(c.Fields)
		return &c
	case *flow.AssertVisibleStep:
		c := *s
		v.expandSelector(&c.Selector)
		return &c
	case *flow.AssertNotVisibleStep:
		c := *s
		v.expandSelector(&c.Selector)
		return &c
	case *flow.AssertCountStep:
		c := *s
		v.expandSelector(&c.Selector)
		return &c
	case *flow.AssertTextStep:
		c := *s
		v.expandSelector(&c.Selector)
		if c.Equals != nil {
			eq := v.Expand(*c.Equals)
			c.Equals = &eq
		}
		c.Contains = v.Expand(c.Contains)
		return &c
	case *flow.AssertFontSizeStep:
		c := *s
		v.expandSelector(&c.Selector)
		return &c
	case *flow.AssertTextPositionStep:
		c := *s
		v.expandSelector(&c.Shape)
		v.expandSelector(&c.Text)
		c.Position = v.Expand(c.Position)
		return &c
	case *flow.AssertLabelContentStep:
		c := *s
		v.expandSelector(&c.Text)
		c.LabelName = v.Expand(c.LabelName)
		c.Source = v.Expand(c.Source)
		if c.Attributes != nil {
			attrs := make(map[string]string, len(c.Attributes))
			for k, val := range c.Attributes {
				attrs[v.Expand(k)] = v.Expand(val)
			}
			c.Attributes = attrs
		}
		return &c
	case *flow.AssertTextFieldsStep:
		c := *s
		v.expandSelector(&c.Text)
		v.expandSelector(&c.AttributeSelector)
		v.expandSelector(&c.DescriptionSelector)
		c.Fields = v.expandAll(c.Fields)
		return &c
	}
	return step
}

func (v *Vars) expandAll(values []string) []string {
	if values == nil {
		return nil
	}
	return lo.Map(values, func(s string, _ int) string { return v.Expand(s) })
}

func (v *Vars) expandSelectorCopy(sel *flow.Selector) *flow.Selector {
	if sel == nil {
		return nil
	}
	c := *sel
	v.expandSelector(&c)
	return &c
}

// expandSelector expands variables in selector fields.
func (v *Vars) expandSelector(sel *flow.Selector) {
	if sel == nil {
		return
	}
	sel.CSS = v.Expand(sel.CSS)
	sel.ID = v.Expand(sel.ID)
	sel.Text = v.Expand(sel.Text)
	sel.Index = v.Expand(sel.Index)
}
