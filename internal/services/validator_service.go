package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/paulexconde/bizassess/internal/models"
	"github.com/paulexconde/bizassess/pkg/fault"
)

// Level names the tree level a violation was found at.
type Level string

const (
	LevelStructure   Level = "structure"
	LevelCategory    Level = "category"
	LevelSubcategory Level = "subcategory"
	LevelQuestion    Level = "question"
	LevelAnswer      Level = "answer"
)

// Violation is one problem in a survey structure.
type Violation struct {
	Level   Level  `json:"level"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// Checks a survey structure before it is stored or published.
//
// Category ids are unique within the structure; subcategory and question ids are
// unique across the whole tree, since they are the keys answers and analytics
// refer to.
type StructureValidator interface {
	// Validate returns the first violation as an InvalidStructure fault.
	Validate(structure models.Structure) error
	// Violations returns every violation in traversal order.
	Violations(structure models.Structure) []Violation
}

type structureValidatorImpl struct{}

func NewStructureValidator() StructureValidator {
	return &structureValidatorImpl{}
}

func (v *structureValidatorImpl) Validate(structure models.Structure) error {
	var first *Violation
	walkStructure(structure, func(violation Violation) bool {
		first = &violation
		return false
	})
	if first == nil {
		return nil
	}
	return fault.InvalidStructure(first.ID, first.Message)
}

func (v *structureValidatorImpl) Violations(structure models.Structure) []Violation {
	var all []Violation
	walkStructure(structure, func(violation Violation) bool {
		all = append(all, violation)
		return true
	})
	return all
}

// idSets are shared by the whole traversal.
type idSets struct {
	categories    map[string]struct{}
	subcategories map[string]struct{}
	questions     map[int]struct{}
}

// walkStructure visits the tree depth first and hands each violation to report.
// It stops as soon as report returns false.
func walkStructure(structure models.Structure, report func(Violation) bool) {
	if structure == nil {
		report(Violation{Level: LevelStructure, Message: "Structure must be an array of categories"})
		return
	}
	if len(structure) == 0 {
		report(Violation{Level: LevelStructure, Message: "Structure must contain at least one category"})
		return
	}

	ids := idSets{
		categories:    map[string]struct{}{},
		subcategories: map[string]struct{}{},
		questions:     map[int]struct{}{},
	}

	for _, category := range structure {
		if !walkCategory(category, ids, report) {
			return
		}
	}
}

func walkCategory(category models.Category, ids idSets, report func(Violation) bool) bool {
	if category.ID == "" || category.Name == "" {
		if !report(Violation{Level: LevelCategory, ID: category.ID, Message: "Category must have id and name fields"}) {
			return false
		}
		if category.ID == "" {
			return true
		}
	}

	if _, seen := ids.categories[category.ID]; seen {
		if !report(Violation{Level: LevelCategory, ID: category.ID, Message: fmt.Sprintf("Duplicate category ID: %s", category.ID)}) {
			return false
		}
	}
	ids.categories[category.ID] = struct{}{}

	return walkSubcategories(category, ids, report)
}

func walkSubcategories(category models.Category, ids idSets, report func(Violation) bool) bool {
	if len(category.Subcategories) == 0 {
		return report(Violation{
			Level:   LevelCategory,
			ID:      category.ID,
			Message: fmt.Sprintf("Category %s must contain at least one subcategory", category.ID),
		})
	}

	for _, subcategory := range category.Subcategories {
		if !walkSubcategory(subcategory, ids, report) {
			return false
		}
	}
	return true
}

func walkSubcategory(subcategory models.Subcategory, ids idSets, report func(Violation) bool) bool {
	if subcategory.ID == "" || subcategory.Name == "" {
		if !report(Violation{Level: LevelSubcategory, ID: subcategory.ID, Message: "Subcategory must have id and name fields"}) {
			return false
		}
		if subcategory.ID == "" {
			return true
		}
	}

	if _, seen := ids.subcategories[subcategory.ID]; seen {
		if !report(Violation{Level: LevelSubcategory, ID: subcategory.ID, Message: fmt.Sprintf("Duplicate subcategory ID: %s", subcategory.ID)}) {
			return false
		}
	}
	ids.subcategories[subcategory.ID] = struct{}{}

	if len(subcategory.Questions) == 0 {
		return report(Violation{
			Level:   LevelSubcategory,
			ID:      subcategory.ID,
			Message: fmt.Sprintf("Subcategory %s must contain at least one question", subcategory.ID),
		})
	}

	for _, question := range subcategory.Questions {
		if !walkQuestion(question, ids, report) {
			return false
		}
	}
	return true
}

func walkQuestion(question models.Question, ids idSets, report func(Violation) bool) bool {
	questionID := strconv.Itoa(question.ID)

	if question.ID == 0 || question.Text == "" {
		if !report(Violation{Level: LevelQuestion, ID: questionID, Message: "Question must have id and text fields"}) {
			return false
		}
		if question.ID == 0 {
			return true
		}
	}

	if _, seen := ids.questions[question.ID]; seen {
		if !report(Violation{Level: LevelQuestion, ID: questionID, Message: fmt.Sprintf("Duplicate question ID: %d", question.ID)}) {
			return false
		}
	}
	ids.questions[question.ID] = struct{}{}

	for _, answer := range question.Answers {
		if answer.Value < 1 || answer.Value > 10 {
			if !report(Violation{
				Level:   LevelAnswer,
				ID:      questionID,
				Message: fmt.Sprintf("Answer value must be between 1 and 10 (question %d)", question.ID),
			}) {
				return false
			}
		}
	}
	return true
}

// ParseStructure decodes a JSON structure, rejecting anything that is not an array.
func ParseStructure(raw []byte) (models.Structure, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fault.InvalidStructure("", "Structure must be an array of categories")
	}

	var structure models.Structure
	if err := json.Unmarshal(trimmed, &structure); err != nil {
		return nil, fault.InvalidStructure("", fmt.Sprintf("Structure is not valid JSON: %v", err))
	}
	if structure == nil {
		structure = models.Structure{}
	}
	return structure, nil
}
