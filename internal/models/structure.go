package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Structure is the Category -> Subcategory -> Question -> Answer tree of a version.
// It is stored as jsonb.
type Structure []Category

type Category struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Subcategories []Subcategory `json:"subcategories"`
}

type Subcategory struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

type Question struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Answers []Answer `json:"answers,omitempty"`
}

type Answer struct {
	ID    int    `json:"id"`
	Text  string `json:"text"`
	Value int    `json:"value"`
	Color string `json:"color,omitempty"`
	Range string `json:"range,omitempty"`
}

func (s Structure) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (s *Structure) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("structure: unsupported scan type %T", src)
	}
	return json.Unmarshal(raw, s)
}

// Clone returns a deep copy so a stored structure never aliases caller memory.
func (s Structure) Clone() Structure {
	if s == nil {
		return nil
	}
	out := make(Structure, len(s))
	for i, c := range s {
		cc := Category{ID: c.ID, Name: c.Name}
		if c.Subcategories != nil {
			cc.Subcategories = make([]Subcategory, len(c.Subcategories))
		}
		for j, sub := range c.Subcategories {
			sc := Subcategory{ID: sub.ID, Name: sub.Name}
			if sub.Questions != nil {
				sc.Questions = make([]Question, len(sub.Questions))
			}
			for k, q := range sub.Questions {
				qc := Question{ID: q.ID, Text: q.Text}
				if q.Answers != nil {
					qc.Answers = append([]Answer(nil), q.Answers...)
				}
				sc.Questions[k] = qc
			}
			cc.Subcategories[j] = sc
		}
		out[i] = cc
	}
	return out
}

// StructureStats summarizes a structure; publish rules are evaluated against it.
type StructureStats struct {
	Name          string `expr:"name"`
	Type          string `expr:"surveyType"`
	Categories    int    `expr:"categories"`
	Subcategories int    `expr:"subcategories"`
	Questions     int    `expr:"questions"`
	Answers       int    `expr:"answers"`
}

func (s Structure) Stats() StructureStats {
	var st StructureStats
	st.Categories = len(s)
	for _, c := range s {
		st.Subcategories += len(c.Subcategories)
		for _, sub := range c.Subcategories {
			st.Questions += len(sub.Questions)
			for _, q := range sub.Questions {
				st.Answers += len(q.Answers)
			}
		}
	}
	return st
}
