package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/Soule73/examena-sub000/internal/config"
)

const (
	GradeBatchSize    = 50
	GradeBatchTimeout = 2 * time.Second
	GradePollTimeout  = 1 * time.Second
)

// GradingWorker drains persist_scores_queue and lands submission outcomes:
// the auto score, and the submitted or pending_review status depending on
// whether the exam carries manually graded questions. Fully auto-graded
// attempts get their final score here; mixed exams wait for corrections.
type GradingWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewGradingWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *GradingWorker {
	return &GradingWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "grading_worker").Logger(),
	}
}

type submissionPayload struct {
	AssignmentID  string  `json:"assignment_id"`
	AutoScore     float64 `json:"auto_score"`
	PendingReview bool    `json:"pending_review"`
}

func (w *GradingWorker) Start(ctx context.Context) {
	w.log.Info().Msg("GradingWorker started")

	batch := make([]*submissionPayload, 0, GradeBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= GradeBatchSize || time.Since(lastFlush) >= GradeBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, GradePollTimeout, config.WorkerKey.PersistScoresQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p submissionPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *GradingWorker) flushSafe(ctx context.Context, batch []*submissionPayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkUpdate(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk submission update failed, using fallback")

		for _, p := range batch {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Msg("persistSingle failed, requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistScoresQueue, raw)
			}
		}
		return
	}

	// After successful updates, the live Redis attempt state is obsolete.
	w.bulkClearAttemptState(ctx, batch)
}

// bulkUpdate closes a batch of attempts in one UNNEST statement, collapsing
// the submit and review steps: started → submitted, or started →
// pending_review as shorthand for started → submitted → pending_review (see
// AssignmentStatus.CanTransition). The status guard keeps replays and
// violation-terminated rows from regressing.
func (w *GradingWorker) bulkUpdate(ctx context.Context, batch []*submissionPayload) error {
	n := len(batch)

	ids := make([]uuid.UUID, 0, n)
	scores := make([]float64, 0, n)
	pendings := make([]bool, 0, n)

	for _, p := range batch {
		aID, err := uuid.Parse(p.AssignmentID)
		if err != nil {
			return err
		}
		ids = append(ids, aID)
		scores = append(scores, p.AutoScore)
		pendings = append(pendings, p.PendingReview)
	}

	query := `
		UPDATE assignments AS a
		SET status = CASE WHEN t.pending THEN 'pending_review' ELSE 'submitted' END,
		    auto_score = t.score,
		    final_score = CASE WHEN t.pending THEN a.final_score ELSE t.score END,
		    submitted_at = COALESCE(a.submitted_at, NOW()),
		    updated_at = NOW()
		FROM (
			SELECT u.id, u.score, u.pending
			FROM UNNEST(
				$1::uuid[],
				$2::float8[],
				$3::bool[]
			) AS u (id, score, pending)
		) AS t
		WHERE a.id = t.id
		  AND a.status IN ('started', 'submitted')
	`

	_, err := w.pool.Exec(ctx, query, ids, scores, pendings)
	return err
}

// bulkClearAttemptState drops the Redis answer blob and start-time key for
// each closed attempt.
func (w *GradingWorker) bulkClearAttemptState(ctx context.Context, batch []*submissionPayload) {
	pipe := w.rdb.Pipeline()

	for _, p := range batch {
		aID, err := uuid.Parse(p.AssignmentID)
		if err != nil {
			continue
		}
		pipe.Del(ctx, config.CacheKey.AttemptAnswersKey(aID))
		pipe.Del(ctx, config.CacheKey.AttemptStartKey(aID))
	}

	_, _ = pipe.Exec(ctx)
}

func (w *GradingWorker) persistSingle(ctx context.Context, p *submissionPayload) error {
	aID, err := uuid.Parse(p.AssignmentID)
	if err != nil {
		return err
	}

	status := "submitted"
	if p.PendingReview {
		status = "pending_review"
	}

	_, err = w.pool.Exec(ctx,
		`UPDATE assignments
		 SET status = $1,
		     auto_score = $2,
		     final_score = CASE WHEN $3 THEN final_score ELSE $2 END,
		     submitted_at = COALESCE(submitted_at, NOW()),
		     updated_at = NOW()
		 WHERE id = $4 AND status IN ('started', 'submitted')`,
		status, p.AutoScore, p.PendingReview, aID,
	)
	return err
}
