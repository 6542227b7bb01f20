package model

import (
	"testing"

	"github.com/google/uuid"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to AssignmentStatus
		want     bool
	}{
		{AssignmentStatusAssigned, AssignmentStatusStarted, true},
		{AssignmentStatusStarted, AssignmentStatusSubmitted, true},
		{AssignmentStatusSubmitted, AssignmentStatusPendingReview, true},
		{AssignmentStatusSubmitted, AssignmentStatusGraded, true},
		{AssignmentStatusPendingReview, AssignmentStatusGraded, true},

		// no going back
		{AssignmentStatusStarted, AssignmentStatusAssigned, false},
		{AssignmentStatusSubmitted, AssignmentStatusStarted, false},
		{AssignmentStatusGraded, AssignmentStatusSubmitted, false},
		{AssignmentStatusGraded, AssignmentStatusGraded, false},

		// pending_review only from submitted
		{AssignmentStatusAssigned, AssignmentStatusPendingReview, false},
		{AssignmentStatusStarted, AssignmentStatusPendingReview, false},

		{AssignmentStatus("bogus"), AssignmentStatusStarted, false},
		{AssignmentStatusAssigned, AssignmentStatus("bogus"), false},
	}

	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIsTerminalForStudent(t *testing.T) {
	terminal := []AssignmentStatus{
		AssignmentStatusSubmitted, AssignmentStatusPendingReview, AssignmentStatusGraded,
	}
	for _, s := range terminal {
		if !s.IsTerminalForStudent() {
			t.Errorf("expected %s to be terminal for student", s)
		}
	}
	for _, s := range []AssignmentStatus{AssignmentStatusAssigned, AssignmentStatusStarted} {
		if s.IsTerminalForStudent() {
			t.Errorf("expected %s to be open for student", s)
		}
	}
}

func TestAnswerValueMatchesType(t *testing.T) {
	id := uuid.New()

	if !TextAnswer("hello").MatchesType(QuestionTypeText) {
		t.Error("text answer should match text question")
	}
	if TextAnswer("hello").MatchesType(QuestionTypeOneChoice) {
		t.Error("text answer must not match one_choice question")
	}
	if !ChoiceAnswer(id).MatchesType(QuestionTypeBoolean) {
		t.Error("choice answer should match boolean question")
	}
	if ChoiceAnswer(id).MatchesType(QuestionTypeMultiple) {
		t.Error("single choice answer must not match multiple question")
	}
	if !MultiChoiceAnswer(nil).MatchesType(QuestionTypeMultiple) {
		t.Error("empty set should still be a valid multiple answer shape")
	}
	if MultiChoiceAnswer([]uuid.UUID{id}).MatchesType(QuestionTypeText) {
		t.Error("set answer must not match text question")
	}
}

func TestAnswerValueIsBlank(t *testing.T) {
	id := uuid.New()

	if !TextAnswer("   ").IsBlank(QuestionTypeText) {
		t.Error("whitespace-only text should be blank")
	}
	if TextAnswer("x").IsBlank(QuestionTypeText) {
		t.Error("non-empty text should not be blank")
	}
	if !MultiChoiceAnswer(nil).IsBlank(QuestionTypeMultiple) {
		t.Error("empty selection set should be blank")
	}
	if ChoiceAnswer(id).IsBlank(QuestionTypeOneChoice) {
		t.Error("selected choice should not be blank")
	}
}

func TestAnswerMapClone(t *testing.T) {
	qid := uuid.New()
	a, b := uuid.New(), uuid.New()
	original := AnswerMap{qid: MultiChoiceAnswer([]uuid.UUID{a})}

	clone := original.Clone()
	clone[qid].ChoiceIDs[0] = b

	if original[qid].ChoiceIDs[0] != a {
		t.Error("mutating a clone must not affect the original selection set")
	}
}
