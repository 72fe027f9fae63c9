// Package check implements the on-canvas label assertions: where a text label
// sits relative to its shape, and which fields the label text renders.
//
// All checks are pure functions over snapshots captured by a driver. They never
// query the page themselves and never retry.
package check

import (
	"fmt"
	"math"
)

// BoundingBox is an axis-aligned rectangle in CSS pixels, as reported by
// getBoundingClientRect for a rendered element.
type BoundingBox struct {
	Left   float64 `json:"left" yaml:"left"`
	Top    float64 `json:"top" yaml:"top"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Right returns the x coordinate of the right edge.
func (b BoundingBox) Right() float64 { return b.Left + b.Width }

// Bottom returns the y coordinate of the bottom edge.
func (b BoundingBox) Bottom() float64 { return b.Top + b.Height }

// CenterX returns the horizontal midpoint.
func (b BoundingBox) CenterX() float64 { return b.Left + b.Width/2 }

// CenterY returns the vertical midpoint.
func (b BoundingBox) CenterY() float64 { return b.Top + b.Height/2 }

// Validate rejects boxes with negative extent or non-finite coordinates.
// Zero-sized boxes are valid.
func (b BoundingBox) Validate() error {
	for _, v := range []float64{b.Left, b.Top, b.Width, b.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid bounding box %s: coordinates must be finite", b)
		}
	}
	if b.Width < 0 || b.Height < 0 {
		return fmt.Errorf("invalid bounding box %s: width and height must be non-negative", b)
	}
	return nil
}

// String formats the box as {left, top, width x height}.
func (b BoundingBox) String() string {
	return fmt.Sprintf("{%g, %g, %gx%g}", b.Left, b.Top, b.Width, b.Height)
}
