package check

import (
	"fmt"
	"strings"
)

// LayoutMode is the expected spatial relationship between a label and its shape.
type LayoutMode int

const (
	// LayoutOutside places the label to the right of the shape, near its top edge.
	LayoutOutside LayoutMode = iota
	// LayoutInside places the label toward the shape's centre.
	LayoutInside
)

// String returns the mode name used in flow files.
func (m LayoutMode) String() string {
	switch m {
	case LayoutOutside:
		return "outside"
	case LayoutInside:
		return "inside"
	default:
		return "unknown"
	}
}

// ParseLayoutMode accepts the flow names (outside, inside) and the settings
// dropdown titles that produce them (Auto, Center).
func ParseLayoutMode(s string) (LayoutMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "outside", "auto":
		return LayoutOutside, nil
	case "inside", "center", "centre":
		return LayoutInside, nil
	default:
		return 0, fmt.Errorf("unknown text position %q (want outside|auto or inside|center)", s)
	}
}

// SettingTitle returns the workspace dropdown option that selects this mode.
func (m LayoutMode) SettingTitle() string {
	if m == LayoutInside {
		return "Center"
	}
	return "Auto"
}
