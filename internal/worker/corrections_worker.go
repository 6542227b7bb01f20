package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/Soule73/examena-sub000/internal/config"
	"github.com/Soule73/examena-sub000/internal/model"
)

const correctionsPollTimeout = 1 * time.Second

// CorrectionsWorker drains persist_corrections_queue: it lands teacher-entered
// per-question scores and closes grading by moving the assignment to graded
// with its final score. Score rows and the status flip commit atomically so a
// partially corrected attempt can never surface as graded.
type CorrectionsWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewCorrectionsWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *CorrectionsWorker {
	return &CorrectionsWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "corrections_worker").Logger(),
	}
}

type correctionsPayload struct {
	AssignmentID string                `json:"assignment_id"`
	Scores       []model.QuestionScore `json:"scores"`
	FinalScore   float64               `json:"final_score"`
}

func (w *CorrectionsWorker) Start(ctx context.Context) {
	w.log.Info().Msg("CorrectionsWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return

		default:
			item, err := w.rdb.BLPop(ctx, correctionsPollTimeout, config.WorkerKey.PersistCorrectionsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p correctionsPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Str("data", item[1]).Msg("Discarding malformed JSON")
				continue
			}

			if err := w.persist(ctx, &p); err != nil {
				w.log.Error().Err(err).
					Str("assignment_id", p.AssignmentID).
					Msg("Persist error, requeueing and sleeping 3s")
				w.rdb.RPush(ctx, config.WorkerKey.PersistCorrectionsQueue, item[1])
				time.Sleep(3 * time.Second)
			}
		}
	}
}

func (w *CorrectionsWorker) persist(ctx context.Context, p *correctionsPayload) error {
	assignmentID, err := uuid.Parse(p.AssignmentID)
	if err != nil {
		// Unparseable id can never succeed; drop instead of requeue.
		w.log.Error().Str("assignment_id", p.AssignmentID).Msg("Dropping corrections with invalid UUID")
		return nil
	}

	return pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		for _, s := range p.Scores {
			if _, err := tx.Exec(ctx,
				`INSERT INTO question_scores (assignment_id, question_id, score)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (assignment_id, question_id) DO UPDATE
				 SET score = EXCLUDED.score, updated_at = NOW()`,
				assignmentID, s.QuestionID, s.Score); err != nil {
				return err
			}
		}

		_, err := tx.Exec(ctx,
			`UPDATE assignments
			 SET status = 'graded', final_score = $1, updated_at = NOW()
			 WHERE id = $2`,
			p.FinalScore, assignmentID)
		return err
	})
}
