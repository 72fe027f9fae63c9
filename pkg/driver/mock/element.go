package mock

import (
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/devicelab-dev/canvas-runner/pkg/check"
	"github.com/devicelab-dev/canvas-runner/pkg/core"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
)

// element is one rendered node of the mock page.
type element struct {
	tag     string
	id      string
	classes []string
	scope   string // class of the nearest styled ancestor
	text    string
	box     check.BoundingBox
	attrs   map[string]string
}

func (e *element) info() *core.ElementInfo {
	return &core.ElementInfo{
		ID:         e.id,
		Text:       e.text,
		Bounds:     e.box,
		Visible:    true,
		Enabled:    true,
		Checked:    e.attrs["checked"] == "true",
		Class:      strings.Join(e.classes, " "),
		Attributes: e.attrs,
	}
}

var (
	compoundRe = regexp.MustCompile(`^([a-zA-Z][\w-]*)?((?:[#.][\w-]+|\[[^\]]+\])*)$`)
	partRe     = regexp.MustCompile(`[#.][\w-]+|\[[^\]]+\]`)
)

// compound is a single simple-selector sequence such as input[type="checkbox"].
type compound struct {
	tag     string
	id      string
	classes []string
	attrs   map[string]*string // nil value: presence only
}

func parseCompound(s string) (compound, bool) {
	m := compoundRe.FindStringSubmatch(s)
	if m == nil {
		return compound{}, false
	}
	c := compound{tag: strings.ToLower(m[1]), attrs: map[string]*string{}}
	for _, part := range partRe.FindAllString(m[2], -1) {
		switch part[0] {
		case '#':
			c.id = part[1:]
		case '.':
			c.classes = append(c.classes, part[1:])
		case '[':
			body := part[1 : len(part)-1]
			name, value, hasValue := strings.Cut(body, "=")
			name = strings.TrimSpace(name)
			if hasValue {
				v := strings.Trim(strings.TrimSpace(value), `"'`)
				c.attrs[name] = &v
			} else {
				c.attrs[name] = nil
			}
		}
	}
	return c, true
}

func (c compound) matches(e *element) bool {
	if c.tag != "" && c.tag != e.tag {
		return false
	}
	if c.id != "" && c.id != e.id {
		return false
	}
	if !lo.Every(e.classes, c.classes) {
		return false
	}
	for name, want := range c.attrs {
		got, ok := e.attrs[name]
		if !ok && name == "title" && e.text != "" {
			got, ok = e.text, true
		}
		if !ok || (want != nil && got != *want) {
			return false
		}
	}
	return true
}

// matchesCSS supports comma lists of "compound" or "ancestor compound",
// where the ancestor is matched against the element's scope class.
func matchesCSS(e *element, css string) bool {
	for _, alt := range strings.Split(css, ",") {
		parts := strings.Fields(alt)
		if len(parts) == 0 || len(parts) > 2 {
			continue
		}
		last, ok := parseCompound(parts[len(parts)-1])
		if !ok || !last.matches(e) {
			continue
		}
		if len(parts) == 1 {
			return true
		}
		if anc, ok := parseCompound(parts[0]); ok && anc.tag == "" && anc.id == "" &&
			len(anc.classes) == 1 && anc.classes[0] == e.scope {
			return true
		}
	}
	return false
}

// matchesSelector applies the driver resolution order: ID, then CSS, then Text.
func matchesSelector(e *element, sel flow.Selector) bool {
	switch {
	case sel.ID != "":
		return e.id == sel.ID
	case sel.CSS != "":
		return matchesCSS(e, sel.CSS)
	case sel.Text != "":
		return strings.TrimSpace(e.text) == strings.TrimSpace(sel.Text)
	}
	return false
}
