package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeMultiple  QuestionType = "multiple"   // several correct choices, exact set required
	QuestionTypeOneChoice QuestionType = "one_choice" // exactly one correct choice
	QuestionTypeBoolean   QuestionType = "boolean"    // true/false, modeled as two choices
	QuestionTypeText      QuestionType = "text"       // free text, graded manually
)

// IsChoiceBased reports whether the question type is auto-gradable from choices.
func (t QuestionType) IsChoiceBased() bool {
	switch t {
	case QuestionTypeMultiple, QuestionTypeOneChoice, QuestionTypeBoolean:
		return true
	}
	return false
}

// Choice is one selectable option of a choice-based question.
// IsCorrect is ground truth and is stripped from student-facing payloads.
type Choice struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	Content    string    `json:"content"`
	IsCorrect  bool      `json:"is_correct"`
	Position   int       `json:"position"`
}

// Question is a single exam question with its ordered choices.
// Choices is empty for text questions.
type Question struct {
	ID       uuid.UUID    `json:"id"`
	ExamID   uuid.UUID    `json:"exam_id"`
	Type     QuestionType `json:"type"`
	Content  string       `json:"content"`
	Points   float64      `json:"points"`
	Position int          `json:"position"`
	Choices  []Choice     `json:"choices,omitempty"`
}

// CorrectChoiceIDs returns the ids of all ground-truth correct choices.
func (q *Question) CorrectChoiceIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, c := range q.Choices {
		if c.IsCorrect {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// ChoiceByID returns the choice with the given id, or nil.
func (q *Question) ChoiceByID(id uuid.UUID) *Choice {
	for i := range q.Choices {
		if q.Choices[i].ID == id {
			return &q.Choices[i]
		}
	}
	return nil
}

// AddChoiceRequest is one choice inside a question authoring payload.
type AddChoiceRequest struct {
	Content   string `json:"content" binding:"required,min=1,max=1000"`
	IsCorrect bool   `json:"is_correct"`
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	Type     string             `json:"type" binding:"required,oneof=multiple one_choice boolean text"`
	Content  string             `json:"content" binding:"required,min=1,max=5000"`
	Points   float64            `json:"points" binding:"required,gt=0"`
	Position int                `json:"position" binding:"min=0"`
	Choices  []AddChoiceRequest `json:"choices" binding:"omitempty,dive"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing an exam's questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"required,dive"`
}
