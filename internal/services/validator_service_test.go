package services

import (
	"testing"

	"github.com/paulexconde/bizassess/internal/models"
	"github.com/paulexconde/bizassess/pkg/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func question(id int, values ...int) models.Question {
	q := models.Question{ID: id, Text: "Question"}
	for i, v := range values {
		q.Answers = append(q.Answers, models.Answer{ID: i + 1, Text: "Answer", Value: v})
	}
	return q
}

func subcategory(id string, questions ...models.Question) models.Subcategory {
	return models.Subcategory{ID: id, Name: "Sub " + id, Questions: questions}
}

func category(id string, subs ...models.Subcategory) models.Category {
	return models.Category{ID: id, Name: "Cat " + id, Subcategories: subs}
}

func validStructure() models.Structure {
	return models.Structure{
		category("cat1", subcategory("sub1", question(1, 1, 2))),
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		structure models.Structure
		message   string
	}{
		{
			name:      "nil structure",
			structure: nil,
			message:   "Structure must be an array of categories",
		},
		{
			name:      "empty structure",
			structure: models.Structure{},
			message:   "Structure must contain at least one category",
		},
		{
			name:      "category without name",
			structure: models.Structure{{ID: "cat1", Subcategories: []models.Subcategory{subcategory("sub1", question(1))}}},
			message:   "Category must have id and name fields",
		},
		{
			name: "duplicate category",
			structure: models.Structure{
				category("cat1", subcategory("sub1", question(1))),
				category("cat1", subcategory("sub2", question(2))),
			},
			message: "Duplicate category ID: cat1",
		},
		{
			name:      "category without subcategories",
			structure: models.Structure{category("cat1")},
			message:   "Category cat1 must contain at least one subcategory",
		},
		{
			name: "subcategory without id",
			structure: models.Structure{
				category("cat1", models.Subcategory{Name: "x", Questions: []models.Question{question(1)}}),
			},
			message: "Subcategory must have id and name fields",
		},
		{
			name: "duplicate subcategory across categories",
			structure: models.Structure{
				category("cat1", subcategory("sub1", question(1))),
				category("cat2", subcategory("sub1", question(2))),
			},
			message: "Duplicate subcategory ID: sub1",
		},
		{
			name:      "subcategory without questions",
			structure: models.Structure{category("cat1", subcategory("sub1"))},
			message:   "Subcategory sub1 must contain at least one question",
		},
		{
			name: "question without text",
			structure: models.Structure{
				category("cat1", subcategory("sub1", models.Question{ID: 1})),
			},
			message: "Question must have id and text fields",
		},
		{
			name: "duplicate question across categories",
			structure: models.Structure{
				category("cat1", subcategory("sub1", question(1))),
				category("cat2", subcategory("sub2", question(1))),
			},
			message: "Duplicate question ID: 1",
		},
		{
			name:      "answer below range",
			structure: models.Structure{category("cat1", subcategory("sub1", question(3, 0)))},
			message:   "Answer value must be between 1 and 10 (question 3)",
		},
		{
			name:      "answer above range",
			structure: models.Structure{category("cat1", subcategory("sub1", question(3, 11)))},
			message:   "Answer value must be between 1 and 10 (question 3)",
		},
	}

	validator := NewStructureValidator()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(tt.structure)
			require.Error(t, err)
			assert.ErrorIs(t, err, fault.ErrInvalidStructure)
			assert.Equal(t, tt.message, fault.MessageOf(err))
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	structure := models.Structure{
		category("cat1",
			subcategory("sub1", question(1, 1, 10), question(2)),
			subcategory("sub2", question(3, 5)),
		),
		category("cat2", subcategory("sub3", question(4, 1, 2, 3))),
	}

	assert.NoError(t, NewStructureValidator().Validate(structure))
	assert.Empty(t, NewStructureValidator().Violations(structure))
}

func TestViolationsReportsEverything(t *testing.T) {
	structure := models.Structure{
		category("cat1", subcategory("sub1", question(1, 0))),
		category("cat1", subcategory("sub1", question(1))),
		category("cat2"),
	}

	violations := NewStructureValidator().Violations(structure)

	assert.Equal(t, []Violation{
		{Level: LevelAnswer, ID: "1", Message: "Answer value must be between 1 and 10 (question 1)"},
		{Level: LevelCategory, ID: "cat1", Message: "Duplicate category ID: cat1"},
		{Level: LevelSubcategory, ID: "sub1", Message: "Duplicate subcategory ID: sub1"},
		{Level: LevelQuestion, ID: "1", Message: "Duplicate question ID: 1"},
		{Level: LevelCategory, ID: "cat2", Message: "Category cat2 must contain at least one subcategory"},
	}, violations)
}

func TestValidateSubjectNamesOffendingID(t *testing.T) {
	structure := models.Structure{
		category("cat1", subcategory("sub1", question(1))),
		category("cat1", subcategory("sub2", question(2))),
	}

	err := NewStructureValidator().Validate(structure)

	var f *fault.Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "cat1", f.Subject)
	assert.Equal(t, fault.KindInvalidStructure, f.Kind)
}

func TestParseStructure(t *testing.T) {
	structure, err := ParseStructure([]byte(`[{"id":"cat1","name":"Finance","subcategories":[{"id":"sub1","name":"Cash","questions":[{"id":1,"text":"Q","answers":[{"id":1,"text":"A","value":1}]}]}]}]`))
	require.NoError(t, err)
	require.Len(t, structure, 1)
	assert.Equal(t, 1, structure[0].Subcategories[0].Questions[0].Answers[0].Value)

	empty, err := ParseStructure([]byte(` [] `))
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Len(t, empty, 0)

	for _, raw := range []string{`{"id":"cat1"}`, `null`, ``, `"cats"`} {
		_, err := ParseStructure([]byte(raw))
		assert.ErrorIs(t, err, fault.ErrInvalidStructure, raw)
	}

	_, err = ParseStructure([]byte(`[{"id": 5}]`))
	assert.ErrorIs(t, err, fault.ErrInvalidStructure)
}
