package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the authoring lifecycle of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam represents an exam entity.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	AuthorID        int        `json:"author_id"`
	DurationMinutes int        `json:"duration_minutes"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end,omitempty"`
	Active          bool       `json:"active"`
	Status          ExamStatus `json:"status"`
	QuestionCount   int        `json:"question_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AvailableAt reports whether the exam's activation window contains t.
// A nil bound is open-ended.
func (e *Exam) AvailableAt(t time.Time) bool {
	if !e.Active {
		return false
	}
	if e.ScheduledStart != nil && t.Before(*e.ScheduledStart) {
		return false
	}
	if e.ScheduledEnd != nil && t.After(*e.ScheduledEnd) {
		return false
	}
	return true
}

// HasTextQuestion reports whether any of the given questions requires
// manual grading. Used to decide the pending-review transition on submit.
func HasTextQuestion(questions []Question) bool {
	for i := range questions {
		if questions[i].Type == QuestionTypeText {
			return true
		}
	}
	return false
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string     `json:"title" binding:"required,min=3,max=255"`
	Description     string     `json:"description" binding:"omitempty,max=5000"`
	DurationMinutes int        `json:"duration_minutes" binding:"required,min=1,max=480"`
	ScheduledStart  *time.Time `json:"scheduled_start" binding:"omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end" binding:"omitempty,gtfield=ScheduledStart"`
}

// UpdateExamRequest is the payload for updating an existing exam.
type UpdateExamRequest struct {
	Title           string     `json:"title" binding:"omitempty,min=3,max=255"`
	Description     *string    `json:"description" binding:"omitempty,max=5000"`
	DurationMinutes int        `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	ScheduledStart  *time.Time `json:"scheduled_start" binding:"omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end" binding:"omitempty,gtfield=ScheduledStart"`
	Active          *bool      `json:"active" binding:"omitempty"`
}

// ChoiceForStudent is a choice without the ground-truth flag.
type ChoiceForStudent struct {
	ID       uuid.UUID `json:"id"`
	Content  string    `json:"content"`
	Position int       `json:"position"`
}

// QuestionForStudent is a question as sent to the student during an attempt.
type QuestionForStudent struct {
	ID       uuid.UUID          `json:"id"`
	Type     QuestionType       `json:"type"`
	Content  string             `json:"content"`
	Points   float64            `json:"points"`
	Position int                `json:"position"`
	Choices  []ChoiceForStudent `json:"choices,omitempty"`
}

// ExamPayload is the Redis-cached paper sent to students (no correct answers).
type ExamPayload struct {
	ExamID    uuid.UUID            `json:"exam_id"`
	Title     string               `json:"title"`
	Duration  int                  `json:"duration_minutes"`
	Questions []QuestionForStudent `json:"questions"`
}

// StripCorrectness converts full questions into the student-facing shape.
func StripCorrectness(questions []Question) []QuestionForStudent {
	out := make([]QuestionForStudent, 0, len(questions))
	for _, q := range questions {
		sq := QuestionForStudent{
			ID:       q.ID,
			Type:     q.Type,
			Content:  q.Content,
			Points:   q.Points,
			Position: q.Position,
		}
		for _, c := range q.Choices {
			sq.Choices = append(sq.Choices, ChoiceForStudent{
				ID:       c.ID,
				Content:  c.Content,
				Position: c.Position,
			})
		}
		out = append(out, sq)
	}
	return out
}
