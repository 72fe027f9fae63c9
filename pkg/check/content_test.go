package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLabelContent(t *testing.T) {
	text := "label 1 (manual) attrName: default_value"

	assert.NoError(t, CheckLabelContent(text, "label", 1, "attrName", "default_value"))
	// unchanged input yields the same result
	assert.NoError(t, CheckLabelContent(text, "label", 1, "attrName", "default_value"))

	err := CheckLabelContent(text, "label", 2, "attrName", "default_value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"label 2 (manual)"`)

	err = CheckLabelContent(text, "label", 1, "attrName", "other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attrName: other")
}

func TestLabelExpectation_Check(t *testing.T) {
	exp := LabelExpectation{
		Name:       "car",
		ID:         3,
		Source:     "auto",
		Attributes: map[string]string{"color": "red", "parked": "true"},
	}

	assert.Equal(t, "car 3 (auto)", exp.Identity())
	assert.NoError(t, exp.Check("car 3 (auto)\ncolor: red\nparked: true"))
	assert.Error(t, exp.Check("car 3 (manual)\ncolor: red\nparked: true"))
	assert.Error(t, exp.Check("car 3 (auto)\ncolor: red"))
}

func TestCheckTextFieldVisibility(t *testing.T) {
	none := TextContentConfig{}

	assert.NoError(t, CheckTextFieldVisibility("  ", none))
	assert.Error(t, CheckTextFieldVisibility("X", none))
	assert.Error(t, CheckTextFieldVisibility("", none))

	all := AllFields()
	assert.NoError(t, CheckTextFieldVisibility("label 1 (manual)", all))
	assert.Error(t, CheckTextFieldVisibility("  ", all))

	attrsOnly := TextContentConfig{Attributes: true}
	assert.NoError(t, CheckTextFieldVisibility("  ", attrsOnly))
}

func TestCheckTextElementCounts(t *testing.T) {
	want := CountExpectation{Shapes: 2, AttributesPerShape: 2}

	assert.NoError(t, CheckTextElementCounts(AllFields(), ElementCounts{Attributes: 4}, want))
	assert.Error(t, CheckTextElementCounts(AllFields(), ElementCounts{Attributes: 3}, want))
	assert.Error(t, CheckTextElementCounts(AllFields(), ElementCounts{Attributes: 4, Descriptions: 1}, want))

	assert.NoError(t, CheckTextElementCounts(TextContentConfig{}, ElementCounts{}, want))
	assert.Error(t, CheckTextElementCounts(TextContentConfig{}, ElementCounts{Attributes: 4}, want))

	withDesc := CountExpectation{Shapes: 2, AttributesPerShape: 2, Descriptions: 1}
	assert.NoError(t, CheckTextElementCounts(AllFields(), ElementCounts{Attributes: 4, Descriptions: 1}, withDesc))
}

func TestTextContentConfig(t *testing.T) {
	cfg, err := NewTextContentConfig([]string{"ID", "label", "Descriptions"})
	require.NoError(t, err)

	assert.Equal(t, []TextField{FieldID, FieldLabel, FieldDescription}, cfg.Fields())
	assert.Equal(t, "ID,Label,Descriptions", cfg.String())
	assert.False(t, cfg.None())
	assert.False(t, cfg.All())
	assert.True(t, AllFields().All())
	assert.Equal(t, "none", TextContentConfig{}.String())

	_, err = NewTextContentConfig([]string{"color"})
	assert.Error(t, err)
}
