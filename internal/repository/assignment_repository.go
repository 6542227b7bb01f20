package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Soule73/examena-sub000/internal/model"
)

// AssignmentResult combines student identity with attempt outcome for the
// teacher's results listing.
type AssignmentResult struct {
	AssignmentID uuid.UUID              `json:"assignment_id"`
	StudentID    int                    `json:"student_id"`
	Name         string                 `json:"name"`
	Username     string                 `json:"username"`
	Status       model.AssignmentStatus `json:"status"`
	AutoScore    *float64               `json:"auto_score"`
	FinalScore   *float64               `json:"final_score"`
	StartedAt    *time.Time             `json:"started_at"`
	SubmittedAt  *time.Time             `json:"submitted_at"`
	Violation    *string                `json:"violation_type"`
}

// AssignmentRepository handles exam assignment data access.
type AssignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(pool *pgxpool.Pool) *AssignmentRepository {
	return &AssignmentRepository{pool: pool}
}

const assignmentColumns = `id, exam_id, student_id, status, started_at, submitted_at,
	auto_score, final_score, violation_type, violation_details, created_at, updated_at`

func scanAssignment(row interface{ Scan(dest ...any) error }, a *model.Assignment) error {
	return row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Status, &a.StartedAt, &a.SubmittedAt,
		&a.AutoScore, &a.FinalScore, &a.ViolationType, &a.ViolationDetails, &a.CreatedAt, &a.UpdatedAt)
}

// GetByID retrieves an assignment by its UUID.
func (r *AssignmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Assignment, error) {
	a := &model.Assignment{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id)
	if err := scanAssignment(row, a); err != nil {
		return nil, err
	}
	return a, nil
}

// GetByExamAndStudent retrieves the assignment for one exam-student pair.
func (r *AssignmentRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.Assignment, error) {
	a := &model.Assignment{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM assignments
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID)
	if err := scanAssignment(row, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Assign creates assignments for the given students. Existing pairs are left
// untouched; returns the number of newly created rows.
func (r *AssignmentRepository) Assign(ctx context.Context, examID uuid.UUID, studentIDs []int) (int, error) {
	created := 0
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, sid := range studentIDs {
			tag, err := tx.Exec(ctx,
				`INSERT INTO assignments (exam_id, student_id, status)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (exam_id, student_id) DO NOTHING`,
				examID, sid, model.AssignmentStatusAssigned)
			if err != nil {
				return err
			}
			created += int(tag.RowsAffected())
		}
		return nil
	})
	return created, err
}

// Start transitions an assignment to started and stamps the start time.
// Returns the stamped time; a second call is a no-op that returns the
// original timestamp, so reconnects never reset the clock.
func (r *AssignmentRepository) Start(ctx context.Context, id uuid.UUID) (time.Time, error) {
	var startedAt time.Time
	err := r.pool.QueryRow(ctx,
		`UPDATE assignments
		 SET status = $1, started_at = COALESCE(started_at, NOW()), updated_at = NOW()
		 WHERE id = $2 AND status IN ($3, $1)
		 RETURNING started_at`,
		model.AssignmentStatusStarted, id, model.AssignmentStatusAssigned,
	).Scan(&startedAt)
	return startedAt, err
}

// ListByStudent retrieves the student's lobby: every assignment joined with
// its exam, newest first.
func (r *AssignmentRepository) ListByStudent(ctx context.Context, studentID int) ([]model.LobbyEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.status, a.started_at, a.submitted_at, a.final_score,
		        e.id, e.title, e.description, e.duration_minutes,
		        e.scheduled_start, e.scheduled_end, e.active, e.status
		 FROM assignments a
		 JOIN exams e ON a.exam_id = e.id
		 WHERE a.student_id = $1 AND e.status = $2
		 ORDER BY a.created_at DESC`, studentID, model.ExamStatusPublished,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LobbyEntry
	for rows.Next() {
		var le model.LobbyEntry
		if err := rows.Scan(&le.AssignmentID, &le.Status, &le.StartedAt, &le.SubmittedAt, &le.FinalScore,
			&le.Exam.ID, &le.Exam.Title, &le.Exam.Description, &le.Exam.DurationMinutes,
			&le.Exam.ScheduledStart, &le.Exam.ScheduledEnd, &le.Exam.Active, &le.Exam.Status); err != nil {
			return nil, err
		}
		entries = append(entries, le)
	}
	return entries, rows.Err()
}

// ListByExam retrieves all student results for one exam with pagination.
func (r *AssignmentRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]AssignmentResult, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM assignments WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT a.id, s.id, s.name, s.username,
		        a.status, a.auto_score, a.final_score,
		        a.started_at, a.submitted_at, a.violation_type
		 FROM assignments a
		 JOIN students s ON a.student_id = s.id
		 WHERE a.exam_id = $1
		 ORDER BY s.name ASC
		 LIMIT $2 OFFSET $3`, examID, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []AssignmentResult
	for rows.Next() {
		var res AssignmentResult
		if err := rows.Scan(
			&res.AssignmentID, &res.StudentID, &res.Name, &res.Username,
			&res.Status, &res.AutoScore, &res.FinalScore,
			&res.StartedAt, &res.SubmittedAt, &res.Violation,
		); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}
