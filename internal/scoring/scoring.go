// Package scoring computes per-question correctness and scores from an exam's
// questions and a student's recorded answers. It is the single grading source
// of truth, shared by live submission grading and read-only result display.
package scoring

import (
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/Soule73/examena-sub000/internal/model"
)

// QuestionResult is the outcome of evaluating a single question against a
// recorded answer.
type QuestionResult struct {
	QuestionID uuid.UUID `json:"question_id"`
	// IsCorrect is nil for text questions (human judgment required) and for
	// unanswered choice questions it is false, never an error.
	IsCorrect *bool `json:"is_correct,omitempty"`
	Answered  bool  `json:"answered"`
	// SelectedChoices holds the selected choice objects for rendering,
	// resolved against the question's choice list.
	SelectedChoices []model.Choice `json:"selected_choices,omitempty"`
	// Text is the trimmed user text for text questions.
	Text string `json:"text,omitempty"`
	// ManualScore is a previously recorded teacher score for text questions.
	ManualScore *float64 `json:"manual_score,omitempty"`
}

// QuestionResultInput pairs a question with what was recorded for it.
type QuestionResultInput struct {
	Question    model.Question
	Answer      model.AnswerValue
	HasAnswer   bool
	ManualScore *float64
}

// Evaluate computes the result for one question. A missing or blank answer is
// "no response": zero score, IsCorrect false for choice types, nil for text.
func Evaluate(in QuestionResultInput) QuestionResult {
	q := in.Question
	res := QuestionResult{QuestionID: q.ID}

	if q.Type == model.QuestionTypeText {
		res.ManualScore = in.ManualScore
		if !in.HasAnswer {
			return res
		}
		res.Text = strings.TrimSpace(in.Answer.Text)
		res.Answered = res.Text != ""
		return res
	}

	if !in.HasAnswer || in.Answer.IsBlank(q.Type) {
		f := false
		res.IsCorrect = &f
		return res
	}

	res.Answered = true

	switch q.Type {
	case model.QuestionTypeOneChoice, model.QuestionTypeBoolean:
		correct := false
		if in.Answer.ChoiceID != nil {
			if c := q.ChoiceByID(*in.Answer.ChoiceID); c != nil {
				res.SelectedChoices = []model.Choice{*c}
				correct = c.IsCorrect
			}
		}
		res.IsCorrect = &correct

	case model.QuestionTypeMultiple:
		for _, id := range in.Answer.ChoiceIDs {
			if c := q.ChoiceByID(id); c != nil {
				res.SelectedChoices = append(res.SelectedChoices, *c)
			}
		}
		correct := equalIDSet(in.Answer.ChoiceIDs, q.CorrectChoiceIDs())
		res.IsCorrect = &correct
	}

	return res
}

// Score returns the points earned for one question. Text questions earn the
// manual score (0 when none yet); choice questions earn the full point value
// if correct, else 0 — all-or-nothing, no partial credit.
func Score(in QuestionResultInput) float64 {
	if in.Question.Type == model.QuestionTypeText {
		if in.ManualScore == nil {
			return 0
		}
		return clamp(*in.ManualScore, 0, in.Question.Points)
	}
	res := Evaluate(in)
	if res.IsCorrect != nil && *res.IsCorrect {
		return in.Question.Points
	}
	return 0
}

// Summary aggregates per-question scores for one attempt.
type Summary struct {
	Score         float64          `json:"score"`
	TotalPoints   float64          `json:"total_points"`
	Percentage    int              `json:"percentage"`
	PendingReview bool             `json:"pending_review"`
	Results       []QuestionResult `json:"results,omitempty"`
}

// Summarize evaluates every question against the answer map and aggregates.
// manualScores may be nil when no grading has happened yet; pendingReview
// reflects the assignment status decided upstream.
func Summarize(questions []model.Question, answers model.AnswerMap, manualScores map[uuid.UUID]float64, pendingReview bool) Summary {
	s := Summary{PendingReview: pendingReview}
	for _, q := range questions {
		ans, ok := answers[q.ID]
		in := QuestionResultInput{Question: q, Answer: ans, HasAnswer: ok}
		if manualScores != nil {
			if ms, ok := manualScores[q.ID]; ok {
				v := ms
				in.ManualScore = &v
			}
		}
		s.Results = append(s.Results, Evaluate(in))
		s.Score += Score(in)
		s.TotalPoints += q.Points
	}
	s.Percentage = Percentage(s.Score, s.TotalPoints)
	return s
}

// Percentage computes round(score/total*100), defined as 0 when total is 0.
func Percentage(score, total float64) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(score / total * 100))
}

// equalIDSet reports symmetric set equality regardless of order or duplicates.
func equalIDSet(a, b []uuid.UUID) bool {
	as := make(map[uuid.UUID]struct{}, len(a))
	for _, id := range a {
		as[id] = struct{}{}
	}
	bs := make(map[uuid.UUID]struct{}, len(b))
	for _, id := range b {
		bs[id] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for id := range as {
		if _, ok := bs[id]; !ok {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
