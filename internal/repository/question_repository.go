package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Soule73/examena-sub000/internal/model"
)

// QuestionRepository handles question and choice data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves all questions for a given exam with their choices,
// ordered by position.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, type, content, points, position
		 FROM questions WHERE exam_id = $1
		 ORDER BY position`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	byID := make(map[uuid.UUID]int)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Type, &q.Content, &q.Points, &q.Position); err != nil {
			return nil, err
		}
		byID[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return questions, nil
	}

	choiceRows, err := r.pool.Query(ctx,
		`SELECT c.id, c.question_id, c.content, c.is_correct, c.position
		 FROM choices c
		 JOIN questions q ON c.question_id = q.id
		 WHERE q.exam_id = $1
		 ORDER BY c.question_id, c.position`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer choiceRows.Close()

	for choiceRows.Next() {
		var c model.Choice
		if err := choiceRows.Scan(&c.ID, &c.QuestionID, &c.Content, &c.IsCorrect, &c.Position); err != nil {
			return nil, err
		}
		if i, ok := byID[c.QuestionID]; ok {
			questions[i].Choices = append(questions[i].Choices, c)
		}
	}
	return questions, choiceRows.Err()
}

// ReplaceForExam deletes the exam's questions and inserts the given set in a
// single transaction. Choices cascade on delete.
func (r *QuestionRepository) ReplaceForExam(ctx context.Context, examID uuid.UUID, questions []model.Question) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE exam_id = $1`, examID); err != nil {
			return err
		}
		for i := range questions {
			q := &questions[i]
			if err := tx.QueryRow(ctx,
				`INSERT INTO questions (exam_id, type, content, points, position)
				 VALUES ($1, $2, $3, $4, $5)
				 RETURNING id`,
				examID, q.Type, q.Content, q.Points, q.Position,
			).Scan(&q.ID); err != nil {
				return err
			}
			for j := range q.Choices {
				c := &q.Choices[j]
				c.QuestionID = q.ID
				if err := tx.QueryRow(ctx,
					`INSERT INTO choices (question_id, content, is_correct, position)
					 VALUES ($1, $2, $3, $4)
					 RETURNING id`,
					q.ID, c.Content, c.IsCorrect, c.Position,
				).Scan(&c.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
