package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Soule73/examena-sub000/internal/model"
)

// ViolationRecord is one persisted security violation.
type ViolationRecord struct {
	ID           int64     `json:"id"`
	AssignmentID uuid.UUID `json:"assignment_id"`
	Type         string    `json:"type"`
	Details      string    `json:"details"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// AnswerRepository handles persisted answers, per-question scores and
// violation records for an attempt.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// GetMap retrieves the attempt's persisted answer map.
func (r *AnswerRepository) GetMap(ctx context.Context, assignmentID uuid.UUID) (model.AnswerMap, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, value FROM answers WHERE assignment_id = $1`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(model.AnswerMap)
	for rows.Next() {
		var qid uuid.UUID
		var raw []byte
		if err := rows.Scan(&qid, &raw); err != nil {
			return nil, err
		}
		var value model.AnswerValue
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, err
		}
		answers[qid] = value
	}
	return answers, rows.Err()
}

// GetScores retrieves the per-question score map for an attempt.
func (r *AnswerRepository) GetScores(ctx context.Context, assignmentID uuid.UUID) (map[uuid.UUID]float64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, score FROM question_scores WHERE assignment_id = $1`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := make(map[uuid.UUID]float64)
	for rows.Next() {
		var qid uuid.UUID
		var score float64
		if err := rows.Scan(&qid, &score); err != nil {
			return nil, err
		}
		scores[qid] = score
	}
	return scores, rows.Err()
}

// ListViolations retrieves the attempt's violation records oldest first.
func (r *AnswerRepository) ListViolations(ctx context.Context, assignmentID uuid.UUID) ([]ViolationRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, assignment_id, type, details, recorded_at
		 FROM violations WHERE assignment_id = $1
		 ORDER BY recorded_at`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ViolationRecord
	for rows.Next() {
		var v ViolationRecord
		if err := rows.Scan(&v.ID, &v.AssignmentID, &v.Type, &v.Details, &v.RecordedAt); err != nil {
			return nil, err
		}
		records = append(records, v)
	}
	return records, rows.Err()
}
