package model

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentStatus enumerates the forward-only states of an exam assignment.
type AssignmentStatus string

const (
	AssignmentStatusAssigned      AssignmentStatus = "assigned"
	AssignmentStatusStarted       AssignmentStatus = "started"
	AssignmentStatusSubmitted     AssignmentStatus = "submitted"
	AssignmentStatusPendingReview AssignmentStatus = "pending_review"
	AssignmentStatusGraded        AssignmentStatus = "graded"
)

// statusRank orders statuses for the forward-only invariant.
var statusRank = map[AssignmentStatus]int{
	AssignmentStatusAssigned:      0,
	AssignmentStatusStarted:       1,
	AssignmentStatusSubmitted:     2,
	AssignmentStatusPendingReview: 3,
	AssignmentStatusGraded:        4,
}

// CanTransition reports whether moving from one status to another is legal.
// Transitions only move forward, and pending_review is reachable only from
// submitted. The grading and violation workers deliberately collapse the
// submit step into one guarded UPDATE (started → submitted/pending_review in
// a single statement); their SQL status predicates must stay equivalent to
// chaining this rule through submitted.
func (s AssignmentStatus) CanTransition(to AssignmentStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	target, ok := statusRank[to]
	if !ok || target <= from {
		return false
	}
	if to == AssignmentStatusPendingReview && s != AssignmentStatusSubmitted {
		return false
	}
	return true
}

// IsTerminalForStudent reports whether the student can no longer interact
// with the attempt.
func (s AssignmentStatus) IsTerminalForStudent() bool {
	return s != AssignmentStatusAssigned && s != AssignmentStatusStarted
}

// Assignment binds one student to one exam attempt.
type Assignment struct {
	ID               uuid.UUID        `json:"id"`
	ExamID           uuid.UUID        `json:"exam_id"`
	StudentID        int              `json:"student_id"`
	Status           AssignmentStatus `json:"status"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	SubmittedAt      *time.Time       `json:"submitted_at,omitempty"`
	AutoScore        *float64         `json:"auto_score,omitempty"`
	FinalScore       *float64         `json:"final_score,omitempty"`
	ViolationType    *string          `json:"violation_type,omitempty"`
	ViolationDetails *string          `json:"violation_details,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// LobbyEntry is one row of the student's lobby: an assignment overlayed with
// its exam.
type LobbyEntry struct {
	AssignmentID uuid.UUID        `json:"assignment_id"`
	Status       AssignmentStatus `json:"status"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	SubmittedAt  *time.Time       `json:"submitted_at,omitempty"`
	FinalScore   *float64         `json:"final_score,omitempty"`
	Exam         Exam             `json:"exam"`
}

// AssignExamRequest is the payload for assigning an exam to students.
type AssignExamRequest struct {
	StudentIDs []int `json:"student_ids" binding:"required,min=1,dive,min=1"`
}

// QuestionScore is one teacher-entered per-question score.
type QuestionScore struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Score      float64   `json:"score"`
}

// SaveScoresRequest is the payload for persisting teacher corrections.
type SaveScoresRequest struct {
	Scores []QuestionScore `json:"scores" binding:"required,min=1,dive"`
}
