package scoring

import (
	"testing"

	"github.com/google/uuid"

	"github.com/Soule73/examena-sub000/internal/model"
)

func newChoiceQuestion(t model.QuestionType, points float64, correct ...bool) model.Question {
	q := model.Question{ID: uuid.New(), Type: t, Points: points}
	for i, c := range correct {
		q.Choices = append(q.Choices, model.Choice{
			ID:         uuid.New(),
			QuestionID: q.ID,
			IsCorrect:  c,
			Position:   i,
		})
	}
	return q
}

func TestEvaluate_OneChoice(t *testing.T) {
	q := newChoiceQuestion(model.QuestionTypeOneChoice, 5, false, true, false)
	correctID := q.Choices[1].ID
	wrongID := q.Choices[0].ID

	tests := []struct {
		name      string
		answer    model.AnswerValue
		hasAnswer bool
		isCorrect *bool
		answered  bool
	}{
		{name: "correct selection", answer: model.ChoiceAnswer(correctID), hasAnswer: true, isCorrect: boolPtr(true), answered: true},
		{name: "wrong selection", answer: model.ChoiceAnswer(wrongID), hasAnswer: true, isCorrect: boolPtr(false), answered: true},
		{name: "no answer recorded", hasAnswer: false, isCorrect: boolPtr(false), answered: false},
		{name: "unknown choice id", answer: model.ChoiceAnswer(uuid.New()), hasAnswer: true, isCorrect: boolPtr(false), answered: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(QuestionResultInput{Question: q, Answer: tc.answer, HasAnswer: tc.hasAnswer})
			assertCorrectness(t, got.IsCorrect, tc.isCorrect)
			if got.Answered != tc.answered {
				t.Fatalf("expected answered=%v, got=%v", tc.answered, got.Answered)
			}
		})
	}
}

func TestEvaluate_MultipleSetEquality(t *testing.T) {
	q := newChoiceQuestion(model.QuestionTypeMultiple, 4, true, false, true, false)
	a, b := q.Choices[0].ID, q.Choices[2].ID // ground truth
	wrong := q.Choices[1].ID

	tests := []struct {
		name      string
		selected  []uuid.UUID
		isCorrect bool
	}{
		{name: "exact set in order", selected: []uuid.UUID{a, b}, isCorrect: true},
		{name: "exact set reversed", selected: []uuid.UUID{b, a}, isCorrect: true},
		{name: "exact set with duplicate", selected: []uuid.UUID{a, b, a}, isCorrect: true},
		{name: "subset", selected: []uuid.UUID{a}, isCorrect: false},
		{name: "superset", selected: []uuid.UUID{a, b, wrong}, isCorrect: false},
		{name: "disjoint", selected: []uuid.UUID{wrong}, isCorrect: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(QuestionResultInput{
				Question:  q,
				Answer:    model.MultiChoiceAnswer(tc.selected),
				HasAnswer: true,
			})
			assertCorrectness(t, got.IsCorrect, &tc.isCorrect)
		})
	}
}

func TestEvaluate_MultipleEmptySetIsNoResponse(t *testing.T) {
	q := newChoiceQuestion(model.QuestionTypeMultiple, 4, true, false)
	got := Evaluate(QuestionResultInput{Question: q, Answer: model.MultiChoiceAnswer(nil), HasAnswer: true})
	if got.Answered {
		t.Fatal("empty selection must count as no response")
	}
	assertCorrectness(t, got.IsCorrect, boolPtr(false))
}

func TestEvaluate_Text(t *testing.T) {
	q := model.Question{ID: uuid.New(), Type: model.QuestionTypeText, Points: 10}

	t.Run("correctness is undefined", func(t *testing.T) {
		got := Evaluate(QuestionResultInput{Question: q, Answer: model.TextAnswer("réponse"), HasAnswer: true})
		if got.IsCorrect != nil {
			t.Fatalf("expected nil correctness for text, got %v", *got.IsCorrect)
		}
		if !got.Answered || got.Text != "réponse" {
			t.Fatalf("expected answered text result, got %+v", got)
		}
	})

	t.Run("blank after trim is no response", func(t *testing.T) {
		got := Evaluate(QuestionResultInput{Question: q, Answer: model.TextAnswer("   \n"), HasAnswer: true})
		if got.Answered {
			t.Fatal("whitespace-only text must count as no response")
		}
	})

	t.Run("manual score carried through", func(t *testing.T) {
		ms := 7.5
		got := Evaluate(QuestionResultInput{Question: q, Answer: model.TextAnswer("ok"), HasAnswer: true, ManualScore: &ms})
		if got.ManualScore == nil || *got.ManualScore != 7.5 {
			t.Fatalf("expected manual score 7.5, got %+v", got.ManualScore)
		}
	})
}

func TestScore_AllOrNothing(t *testing.T) {
	q := newChoiceQuestion(model.QuestionTypeBoolean, 3, true, false)

	correct := Score(QuestionResultInput{Question: q, Answer: model.ChoiceAnswer(q.Choices[0].ID), HasAnswer: true})
	if correct != 3 {
		t.Fatalf("expected full points 3, got %v", correct)
	}

	wrong := Score(QuestionResultInput{Question: q, Answer: model.ChoiceAnswer(q.Choices[1].ID), HasAnswer: true})
	if wrong != 0 {
		t.Fatalf("expected 0 for wrong answer, got %v", wrong)
	}

	missing := Score(QuestionResultInput{Question: q, HasAnswer: false})
	if missing != 0 {
		t.Fatalf("expected 0 for missing answer, got %v", missing)
	}
}

func TestScore_TextManual(t *testing.T) {
	q := model.Question{ID: uuid.New(), Type: model.QuestionTypeText, Points: 10}

	if got := Score(QuestionResultInput{Question: q, Answer: model.TextAnswer("x"), HasAnswer: true}); got != 0 {
		t.Fatalf("ungraded text must score 0, got %v", got)
	}

	ms := 6.0
	if got := Score(QuestionResultInput{Question: q, Answer: model.TextAnswer("x"), HasAnswer: true, ManualScore: &ms}); got != 6 {
		t.Fatalf("expected manual score 6, got %v", got)
	}

	over := 25.0
	if got := Score(QuestionResultInput{Question: q, HasAnswer: true, ManualScore: &over}); got != 10 {
		t.Fatalf("manual score must clamp to question points, got %v", got)
	}
}

func TestSummarize(t *testing.T) {
	qChoice := newChoiceQuestion(model.QuestionTypeOneChoice, 5, true, false)
	qText := model.Question{ID: uuid.New(), Type: model.QuestionTypeText, Points: 5}

	answers := model.AnswerMap{
		qChoice.ID: model.ChoiceAnswer(qChoice.Choices[0].ID),
		qText.ID:   model.TextAnswer("dissertation"),
	}

	s := Summarize([]model.Question{qChoice, qText}, answers, nil, true)
	if s.Score != 5 || s.TotalPoints != 10 {
		t.Fatalf("expected score 5/10, got %v/%v", s.Score, s.TotalPoints)
	}
	if s.Percentage != 50 {
		t.Fatalf("expected 50%%, got %d", s.Percentage)
	}
	if !s.PendingReview {
		t.Fatal("expected pending review")
	}
	if len(s.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(s.Results))
	}
}

func TestPercentage_ZeroTotal(t *testing.T) {
	if got := Percentage(0, 0); got != 0 {
		t.Fatalf("expected 0 for zero total, got %d", got)
	}
	if got := Summarize(nil, nil, nil, false).Percentage; got != 0 {
		t.Fatalf("expected 0 for empty exam, got %d", got)
	}
}

func TestScoreMap_Clamping(t *testing.T) {
	q := model.Question{ID: uuid.New(), Type: model.QuestionTypeText, Points: 10}
	m := NewScoreMap([]model.Question{q}, nil, nil)

	m.Set(q.ID, -5)
	if got := m.Get(q.ID); got != 0 {
		t.Fatalf("negative input must clamp to 0, got %v", got)
	}

	m.Set(q.ID, 110)
	if got := m.Get(q.ID); got != 10 {
		t.Fatalf("overshoot must clamp to max, got %v", got)
	}

	m.Set(uuid.New(), 3) // unknown question, ignored
	if got := m.Total(); got != 10 {
		t.Fatalf("expected total 10, got %v", got)
	}
}

func TestScoreMap_SeedAndSerialize(t *testing.T) {
	qChoice := newChoiceQuestion(model.QuestionTypeOneChoice, 4, true, false)
	qText := model.Question{ID: uuid.New(), Type: model.QuestionTypeText, Points: 6}

	answers := model.AnswerMap{
		qChoice.ID: model.ChoiceAnswer(qChoice.Choices[0].ID),
	}
	persisted := map[uuid.UUID]float64{qText.ID: 4.5}

	m := NewScoreMap([]model.Question{qChoice, qText}, answers, persisted)

	if got := m.Get(qChoice.ID); got != 4 {
		t.Fatalf("auto seed: expected 4, got %v", got)
	}
	if got := m.Get(qText.ID); got != 4.5 {
		t.Fatalf("persisted seed must win, got %v", got)
	}
	if got := m.Percentage(); got != 85 {
		t.Fatalf("expected 85%% (8.5/10), got %d", got)
	}

	pairs := m.Serialize()
	if len(pairs) != 2 || pairs[0].QuestionID != qChoice.ID || pairs[1].Score != 4.5 {
		t.Fatalf("unexpected serialization: %+v", pairs)
	}
}

func assertCorrectness(t *testing.T, got, want *bool) {
	t.Helper()
	if want == nil {
		if got != nil {
			t.Fatalf("expected is_correct=nil, got=%v", *got)
		}
		return
	}
	if got == nil {
		t.Fatalf("expected is_correct=%v, got=nil", *want)
	}
	if *got != *want {
		t.Fatalf("expected is_correct=%v, got=%v", *want, *got)
	}
}

func boolPtr(v bool) *bool { return &v }
