package mock

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/devicelab-dev/canvas-runner/pkg/check"
	"github.com/devicelab-dev/canvas-runner/pkg/core"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
)

// matching returns every element of the current frame matched by sel.
// Callers hold d.mu.
func (d *Driver) matching(sel flow.Selector) []*element {
	return lo.Filter(d.scene.render(), func(e *element, _ int) bool {
		return matchesSelector(e, sel)
	})
}

// find resolves sel (including its index) to a single element.
// Callers hold d.mu.
func (d *Driver) find(sel flow.Selector) (*element, error) {
	if sel.IsEmpty() {
		return nil, core.ErrMissingRequired.WithMessage("empty selector")
	}
	els := d.matching(sel)
	if len(els) == 0 {
		return nil, core.ErrElementNotFound.WithMessage(fmt.Sprintf("element not found: %s", sel.DescribeQuoted()))
	}
	pos, err := sel.Position(len(els))
	if err != nil {
		return nil, core.ErrElementNotFound.WithCause(err)
	}
	return els[pos], nil
}

// BoundingBox implements core.ElementQuerier.
func (d *Driver) BoundingBox(sel flow.Selector) (check.BoundingBox, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, err := d.find(sel)
	if err != nil {
		return check.BoundingBox{}, err
	}
	return el.box, nil
}

// Text implements core.ElementQuerier.
func (d *Driver) Text(sel flow.Selector) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, err := d.find(sel)
	if err != nil {
		return "", err
	}
	return el.text, nil
}

// Texts implements core.ElementQuerier.
func (d *Driver) Texts(sel flow.Selector) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return lo.Map(d.matching(sel), func(e *element, _ int) string { return e.text }), nil
}

// Count implements core.ElementQuerier.
func (d *Driver) Count(sel flow.Selector) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.matching(sel)), nil
}

// Attribute implements core.ElementQuerier.
func (d *Driver) Attribute(sel flow.Selector, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, err := d.find(sel)
	if err != nil {
		return "", err
	}
	if name == "id" {
		return el.id, nil
	}
	return el.attrs[name], nil
}

func sortedKeys(m map[string]string) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
