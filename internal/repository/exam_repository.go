package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Soule73/examena-sub000/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, title, description, author_id, duration_minutes,
	scheduled_start, scheduled_end, active, status, created_at, updated_at`

func scanExam(row interface{ Scan(dest ...any) error }, e *model.Exam) error {
	return row.Scan(&e.ID, &e.Title, &e.Description, &e.AuthorID, &e.DurationMinutes,
		&e.ScheduledStart, &e.ScheduledEnd, &e.Active, &e.Status, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id)
	if err := scanExam(row, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ListByAuthorPaginated retrieves a teacher's exams with pagination, newest
// first. The question count is included for the authoring list view.
func (r *ExamRepository) ListByAuthorPaginated(ctx context.Context, authorID, limit, offset int) ([]model.Exam, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exams WHERE author_id = $1`, authorID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.title, e.description, e.author_id, e.duration_minutes,
		        e.scheduled_start, e.scheduled_end, e.active, e.status,
		        e.created_at, e.updated_at,
		        (SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id) AS question_count
		 FROM exams e
		 WHERE e.author_id = $1
		 ORDER BY e.created_at DESC
		 LIMIT $2 OFFSET $3`,
		authorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.AuthorID, &e.DurationMinutes,
			&e.ScheduledStart, &e.ScheduledEnd, &e.Active, &e.Status,
			&e.CreatedAt, &e.UpdatedAt, &e.QuestionCount); err != nil {
			return nil, 0, err
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, description, author_id, duration_minutes,
		                    scheduled_start, scheduled_end, active, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Description, e.AuthorID, e.DurationMinutes,
		e.ScheduledStart, e.ScheduledEnd, e.Active, e.Status,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update persists editable exam fields.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET title = $1, description = $2, duration_minutes = $3,
		     scheduled_start = $4, scheduled_end = $5, active = $6,
		     updated_at = NOW()
		 WHERE id = $7`,
		e.Title, e.Description, e.DurationMinutes,
		e.ScheduledStart, e.ScheduledEnd, e.Active, e.ID)
	return err
}

// UpdateStatus updates an exam's authoring status.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	return err
}

// ListPublished returns all exams with PUBLISHED status.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE status = $1
		 ORDER BY created_at DESC`, model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}
