package scoring

import (
	"github.com/google/uuid"

	"github.com/Soule73/examena-sub000/internal/model"
)

// ScoreMap holds per-question teacher scores during grading review. It is
// seeded from auto-computed scores (persisted scores take precedence) and
// every write is clamped to [0, question.points] — out-of-range input is
// corrected silently, never rejected.
type ScoreMap struct {
	scores map[uuid.UUID]float64
	max    map[uuid.UUID]float64
	order  []uuid.UUID
}

// NewScoreMap seeds a score map for the given questions. persisted contains
// any previously saved per-question scores and wins over the auto score.
func NewScoreMap(questions []model.Question, answers model.AnswerMap, persisted map[uuid.UUID]float64) *ScoreMap {
	m := &ScoreMap{
		scores: make(map[uuid.UUID]float64, len(questions)),
		max:    make(map[uuid.UUID]float64, len(questions)),
	}
	for _, q := range questions {
		m.max[q.ID] = q.Points
		m.order = append(m.order, q.ID)

		if v, ok := persisted[q.ID]; ok {
			m.scores[q.ID] = clamp(v, 0, q.Points)
			continue
		}

		ans, ok := answers[q.ID]
		m.scores[q.ID] = Score(QuestionResultInput{Question: q, Answer: ans, HasAnswer: ok})
	}
	return m
}

// Set records a teacher-entered score for a question, clamped to the valid
// range. Unknown question ids are ignored.
func (m *ScoreMap) Set(questionID uuid.UUID, score float64) {
	max, ok := m.max[questionID]
	if !ok {
		return
	}
	m.scores[questionID] = clamp(score, 0, max)
}

// Get returns the current score for a question.
func (m *ScoreMap) Get(questionID uuid.UUID) float64 {
	return m.scores[questionID]
}

// Total returns the current sum of all per-question scores.
func (m *ScoreMap) Total() float64 {
	var total float64
	for _, v := range m.scores {
		total += v
	}
	return total
}

// TotalPoints returns the sum of all question point values.
func (m *ScoreMap) TotalPoints() float64 {
	var total float64
	for _, v := range m.max {
		total += v
	}
	return total
}

// Percentage returns the current rounded percentage, 0 when no points exist.
func (m *ScoreMap) Percentage() int {
	return Percentage(m.Total(), m.TotalPoints())
}

// Serialize flattens the map to {question_id, score} pairs in question order.
func (m *ScoreMap) Serialize() []model.QuestionScore {
	out := make([]model.QuestionScore, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, model.QuestionScore{QuestionID: id, Score: m.scores[id]})
	}
	return out
}
