package check

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shapeBox = BoundingBox{Left: 100, Top: 100, Width: 400, Height: 200}

func TestCheckPosition_Outside(t *testing.T) {
	tests := []struct {
		name    string
		label   BoundingBox
		wantErr bool
	}{
		{"right of shape near top", BoundingBox{Left: 520, Top: 105}, false},
		{"top at shape top", BoundingBox{Left: 501, Top: 100}, false},
		{"top at tolerance edge", BoundingBox{Left: 520, Top: 115}, false},
		{"too far below top", BoundingBox{Left: 520, Top: 130}, true},
		{"above shape top", BoundingBox{Left: 520, Top: 99}, true},
		{"touching right edge", BoundingBox{Left: 500, Top: 105}, true},
		{"inside shape", BoundingBox{Left: 250, Top: 105}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPosition(shapeBox, tt.label, LayoutOutside)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsAssertionFailure(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCheckPosition_Inside(t *testing.T) {
	tests := []struct {
		name    string
		label   BoundingBox
		wantErr bool
	}{
		{"upper left quadrant", BoundingBox{Left: 250, Top: 150}, false},
		{"at shape origin", BoundingBox{Left: 100, Top: 100}, false},
		{"on horizontal midpoint", BoundingBox{Left: 300, Top: 150}, true},
		{"on vertical midpoint", BoundingBox{Left: 250, Top: 200}, true},
		{"outside to the right", BoundingBox{Left: 520, Top: 105}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPosition(shapeBox, tt.label, LayoutInside)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCheckPosition_FailureNamesCondition(t *testing.T) {
	err := CheckPosition(shapeBox, BoundingBox{Left: 520, Top: 130}, LayoutOutside)
	require.Error(t, err)

	var f *AssertionFailure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "position", f.Check)
	assert.Contains(t, f.Condition, "top edge")
	assert.Equal(t, "top within [100, 115]", f.Expected)
	assert.Equal(t, "top = 130", f.Actual)
}

func TestCheckPosition_DegenerateShape(t *testing.T) {
	point := BoundingBox{Left: 100, Top: 100}

	assert.NoError(t, CheckPosition(point, BoundingBox{Left: 101, Top: 100}, LayoutOutside))
	assert.Error(t, CheckPosition(point, BoundingBox{Left: 100, Top: 100}, LayoutInside))
}

func TestCheckPosition_NegativeExtent(t *testing.T) {
	err := CheckPosition(BoundingBox{Width: -1}, BoundingBox{}, LayoutOutside)
	require.Error(t, err)
	assert.False(t, IsAssertionFailure(err))
}

func TestCheckPosition_NonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		for _, mode := range []LayoutMode{LayoutOutside, LayoutInside} {
			err := CheckPosition(shapeBox, BoundingBox{Left: 520, Top: v}, mode)
			require.Error(t, err, "top %v %s", v, mode)
			assert.False(t, IsAssertionFailure(err))

			err = CheckPosition(BoundingBox{Left: v, Top: 100, Width: 400, Height: 200}, BoundingBox{Left: 520, Top: 105}, mode)
			assert.Error(t, err, "shape left %v %s", v, mode)
		}
	}

	// the band comparison itself fails closed on NaN
	err := NewPositionChecker(0).checkOutside(shapeBox, BoundingBox{Left: 520, Top: math.NaN()})
	require.Error(t, err)
	assert.True(t, IsAssertionFailure(err))
}

func TestPositionChecker_CustomTolerance(t *testing.T) {
	label := BoundingBox{Left: 520, Top: 130}

	assert.Error(t, NewPositionChecker(0).Check(shapeBox, label, LayoutOutside))
	assert.NoError(t, NewPositionChecker(30).Check(shapeBox, label, LayoutOutside))
	assert.Equal(t, DefaultOutsideTolerance, NewPositionChecker(-5).OutsideTolerance)
}

func TestParseLayoutMode(t *testing.T) {
	for in, want := range map[string]LayoutMode{
		"outside": LayoutOutside,
		"Auto":    LayoutOutside,
		"inside":  LayoutInside,
		"Center":  LayoutInside,
	} {
		got, err := ParseLayoutMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLayoutMode("below")
	assert.Error(t, err)
	assert.Equal(t, "Center", LayoutInside.SettingTitle())
	assert.Equal(t, "Auto", LayoutOutside.SettingTitle())
}
