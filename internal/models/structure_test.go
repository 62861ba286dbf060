package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStructure() Structure {
	return Structure{
		{
			ID:   "cat1",
			Name: "Finance",
			Subcategories: []Subcategory{
				{
					ID:   "sub1",
					Name: "Cash flow",
					Questions: []Question{
						{ID: 1, Text: "Do you forecast cash?", Answers: []Answer{{ID: 1, Text: "No", Value: 1}, {ID: 2, Text: "Yes", Value: 2}}},
						{ID: 2, Text: "Do you have reserves?"},
					},
				},
			},
		},
	}
}

func TestStructureScanRoundTrip(t *testing.T) {
	value, err := sampleStructure().Value()
	require.NoError(t, err)

	var got Structure
	require.NoError(t, got.Scan(value))
	assert.Equal(t, sampleStructure(), got)

	require.NoError(t, got.Scan(nil))
	assert.Nil(t, got)
	assert.Error(t, got.Scan(42))
}

func TestStructureNilValueIsEmptyArray(t *testing.T) {
	value, err := Structure(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", value)
}

func TestStructureCloneIsDeep(t *testing.T) {
	original := sampleStructure()
	clone := original.Clone()
	clone[0].Subcategories[0].Questions[0].Answers[0].Value = 9
	clone[0].Name = "changed"

	assert.Equal(t, 1, original[0].Subcategories[0].Questions[0].Answers[0].Value)
	assert.Equal(t, "Finance", original[0].Name)
}

func TestStructureStats(t *testing.T) {
	st := sampleStructure().Stats()
	assert.Equal(t, StructureStats{Categories: 1, Subcategories: 1, Questions: 2, Answers: 2}, st)
}

func TestVersionStatusValid(t *testing.T) {
	assert.True(t, StatusDraft.Valid())
	assert.True(t, StatusArchived.Valid())
	assert.False(t, VersionStatus("DELETED").Valid())
}
