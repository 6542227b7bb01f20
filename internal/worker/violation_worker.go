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
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationWorker drains persist_violations_queue: it records violation rows
// and terminates the matching attempts. Terminated attempts close as
// submitted with the violation metadata on the assignment, so they flow into
// grading like any other submission.
type ViolationWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewViolationWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "violation_worker").Logger(),
	}
}

type violationPayload struct {
	AssignmentID string `json:"assignment_id"`
	Type         string `json:"type"`
	Details      string `json:"details"`
	Timestamp    int64  `json:"timestamp"`
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]*violationPayload, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check flush conditions (time or size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0] // Clear buffer, keep capacity
				lastFlushTime = time.Now()
			}
		}

		// 2. Check context (graceful shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis. BLPop blocks for 1 second; returns
		// immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Timeout (queue empty), loop back to check flush timer
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var payload violationPayload
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &payload)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []*violationPayload) {
	if err := w.bulkPersist(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk persist failed, attempting row-by-row recovery")
		w.fallbackPersist(ctx, batch)
	}
}

func (w *ViolationWorker) bulkPersist(ctx context.Context, batch []*violationPayload) error {
	n := len(batch)

	rows := make([][]interface{}, 0, n)
	assignmentIDs := make([]uuid.UUID, 0, n)
	types := make([]string, 0, n)
	details := make([]string, 0, n)

	for _, p := range batch {
		aID, err := uuid.Parse(p.AssignmentID)
		if err != nil {
			// Trigger fallback, which drops the bad UUID individually.
			return err
		}
		rows = append(rows, []interface{}{
			aID, p.Type, p.Details, time.Unix(p.Timestamp, 0),
		})
		assignmentIDs = append(assignmentIDs, aID)
		types = append(types, p.Type)
		details = append(details, p.Details)
	}

	if _, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"violations"},
		[]string{"assignment_id", "type", "details", "recorded_at"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return err
	}

	// Terminate the matching attempts in one statement: started → submitted
	// with the violation metadata, the single forward move
	// AssignmentStatus.CanTransition allows from started. Only started
	// attempts move; a suppress-only violation on an already-submitted
	// attempt leaves the assignment untouched.
	_, err := w.pool.Exec(ctx, `
		UPDATE assignments AS a
		SET status = 'submitted',
		    violation_type = t.vtype,
		    violation_details = t.vdetails,
		    submitted_at = COALESCE(a.submitted_at, NOW()),
		    updated_at = NOW()
		FROM (
			SELECT u.id, u.vtype, u.vdetails
			FROM UNNEST($1::uuid[], $2::text[], $3::text[]) AS u (id, vtype, vdetails)
		) AS t
		WHERE a.id = t.id
		  AND a.status = 'started'
	`, assignmentIDs, types, details)
	return err
}

func (w *ViolationWorker) fallbackPersist(ctx context.Context, batch []*violationPayload) {
	requeueList := make([]*violationPayload, 0)

	for _, p := range batch {
		aID, err := uuid.Parse(p.AssignmentID)
		if err != nil {
			w.log.Error().Str("assignment_id", p.AssignmentID).Msg("Dropping violation with invalid UUID")
			continue
		}

		err = pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx,
				`INSERT INTO violations (assignment_id, type, details, recorded_at)
				 VALUES ($1, $2, $3, $4)`,
				aID, p.Type, p.Details, time.Unix(p.Timestamp, 0)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`UPDATE assignments
				 SET status = 'submitted', violation_type = $1, violation_details = $2,
				     submitted_at = COALESCE(submitted_at, NOW()), updated_at = NOW()
				 WHERE id = $3 AND status = 'started'`,
				p.Type, p.Details, aID)
			return err
		})
		if err != nil {
			w.log.Error().Err(err).Str("assignment_id", p.AssignmentID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, p)
		}
	}

	// If we have items to requeue (DB was down), push them back to Redis.
	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, items []*violationPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
	} else {
		w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
		// Sleep a bit to avoid thrashing if the DB is down hard.
		time.Sleep(2 * time.Second)
	}
}

func (w *ViolationWorker) shutdown(buffer []*violationPayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
