package model

import (
	"strings"

	"github.com/google/uuid"
)

// AnswerValue holds one student answer. The meaningful field depends on the
// question type: Text for text questions, ChoiceID for one_choice/boolean,
// ChoiceIDs for multiple. A multiple answer is always a set, even when empty.
type AnswerValue struct {
	Text      string      `json:"text,omitempty"`
	ChoiceID  *uuid.UUID  `json:"choice_id,omitempty"`
	ChoiceIDs []uuid.UUID `json:"choice_ids,omitempty"`
}

// TextAnswer builds a free-text answer value.
func TextAnswer(text string) AnswerValue {
	return AnswerValue{Text: text}
}

// ChoiceAnswer builds a single-selection answer value.
func ChoiceAnswer(id uuid.UUID) AnswerValue {
	return AnswerValue{ChoiceID: &id}
}

// MultiChoiceAnswer builds a set-selection answer value. A nil slice is
// normalized to an empty set so the value always marshals as one.
func MultiChoiceAnswer(ids []uuid.UUID) AnswerValue {
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return AnswerValue{ChoiceIDs: ids}
}

// MatchesType reports whether the value's shape is valid for the question type.
func (v AnswerValue) MatchesType(t QuestionType) bool {
	switch t {
	case QuestionTypeText:
		return v.ChoiceID == nil && v.ChoiceIDs == nil
	case QuestionTypeOneChoice, QuestionTypeBoolean:
		return v.Text == "" && v.ChoiceIDs == nil
	case QuestionTypeMultiple:
		return v.Text == "" && v.ChoiceID == nil && v.ChoiceIDs != nil
	}
	return false
}

// IsBlank reports whether the value counts as "no response" for the given
// question type. A text answer that is empty after trimming is blank; an
// absent answer and an explicit empty answer grade identically.
func (v AnswerValue) IsBlank(t QuestionType) bool {
	switch t {
	case QuestionTypeText:
		return strings.TrimSpace(v.Text) == ""
	case QuestionTypeOneChoice, QuestionTypeBoolean:
		return v.ChoiceID == nil
	case QuestionTypeMultiple:
		return len(v.ChoiceIDs) == 0
	}
	return true
}

// AnswerMap is the full set of a student's answers keyed by question id.
type AnswerMap map[uuid.UUID]AnswerValue

// Clone returns an independent copy of the map. Choice-id slices are copied
// too so a snapshot cannot be mutated by later edits.
func (m AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(m))
	for k, v := range m {
		if v.ChoiceIDs != nil {
			ids := make([]uuid.UUID, len(v.ChoiceIDs))
			copy(ids, v.ChoiceIDs)
			v.ChoiceIDs = ids
		}
		out[k] = v
	}
	return out
}
