package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Soule73/examena-sub000/internal/model"
)

// AnswerStore holds the in-memory answer map for one attempt. It is seeded
// once from previously persisted answers and mutated only through Set.
type AnswerStore struct {
	mu      sync.Mutex
	answers model.AnswerMap
	seeded  bool
}

// NewAnswerStore creates an empty store.
func NewAnswerStore() *AnswerStore {
	return &AnswerStore{answers: make(model.AnswerMap)}
}

// Seed loads persisted answers. Only the first call has any effect — the
// defining data may arrive again on reconnect and must not clobber local
// edits.
func (s *AnswerStore) Seed(saved model.AnswerMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded {
		return
	}
	s.seeded = true
	for k, v := range saved.Clone() {
		s.answers[k] = v
	}
}

// Set overwrites the answer for one question.
func (s *AnswerStore) Set(questionID uuid.UUID, value model.AnswerValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[questionID] = value
}

// Get returns the answer for one question, if present.
func (s *AnswerStore) Get(questionID uuid.UUID) (model.AnswerValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.answers[questionID]
	return v, ok
}

// Snapshot returns an independent copy of the full current map.
func (s *AnswerStore) Snapshot() model.AnswerMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Clone()
}

// Len returns the number of answered questions.
func (s *AnswerStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}
