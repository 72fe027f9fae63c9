package check

import "fmt"

// DefaultOutsideTolerance is how far below the shape's top edge an outside
// label may start. It is a visual tolerance, not a layout constant.
const DefaultOutsideTolerance = 15.0

// PositionChecker verifies label placement with a configurable tolerance.
type PositionChecker struct {
	OutsideTolerance float64
}

// NewPositionChecker returns a checker; tolerance <= 0 selects the default.
func NewPositionChecker(tolerance float64) PositionChecker {
	if tolerance <= 0 {
		tolerance = DefaultOutsideTolerance
	}
	return PositionChecker{OutsideTolerance: tolerance}
}

// CheckPosition verifies label placement using DefaultOutsideTolerance.
func CheckPosition(shape, label BoundingBox, mode LayoutMode) error {
	return NewPositionChecker(DefaultOutsideTolerance).Check(shape, label, mode)
}

// Check verifies that label is placed relative to shape as mode requires.
func (c PositionChecker) Check(shape, label BoundingBox, mode LayoutMode) error {
	if err := shape.Validate(); err != nil {
		return fmt.Errorf("shape: %w", err)
	}
	if err := label.Validate(); err != nil {
		return fmt.Errorf("label: %w", err)
	}

	switch mode {
	case LayoutOutside:
		return c.checkOutside(shape, label)
	case LayoutInside:
		return checkInside(shape, label)
	default:
		return fmt.Errorf("unsupported layout mode %d", mode)
	}
}

func (c PositionChecker) checkOutside(shape, label BoundingBox) error {
	tolerance := c.OutsideTolerance
	if tolerance <= 0 {
		tolerance = DefaultOutsideTolerance
	}

	if !(label.Left > shape.Right()) {
		return failf("position",
			fmt.Sprintf("left > %g", shape.Right()),
			fmt.Sprintf("left = %g", label.Left),
			"outside label must start right of the shape's right edge")
	}

	low, high := shape.Top, shape.Top+tolerance
	if !(label.Top >= low && label.Top <= high) {
		return failf("position",
			fmt.Sprintf("top within [%g, %g]", low, high),
			fmt.Sprintf("top = %g", label.Top),
			"outside label must start within %g px of the shape's top edge", tolerance)
	}
	return nil
}

func checkInside(shape, label BoundingBox) error {
	if !(label.Left < shape.CenterX()) {
		return failf("position",
			fmt.Sprintf("left < %g", shape.CenterX()),
			fmt.Sprintf("left = %g", label.Left),
			"inside label must start left of the shape's horizontal midpoint")
	}
	if !(label.Top < shape.CenterY()) {
		return failf("position",
			fmt.Sprintf("top < %g", shape.CenterY()),
			fmt.Sprintf("top = %g", label.Top),
			"inside label must start above the shape's vertical midpoint")
	}
	return nil
}
