package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/acadex/examtrack-backend/internal/config"
)

// AnswerRetryWorker consumes the retry queue of progress saves whose
// direct database write failed and replays them against answer_slots.
type AnswerRetryWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAnswerRetryWorker creates a new AnswerRetryWorker.
func NewAnswerRetryWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AnswerRetryWorker {
	return &AnswerRetryWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "answer_retry_worker").Logger(),
	}
}

type retryPayload struct {
	AttemptID      string `json:"attempt_id"`
	QuestionID     string `json:"question_id"`
	SelectedOption string `json:"selected_option"`
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AnswerRetryWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AnswerRetryWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.AnswerRetryQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	// Entries that cannot be decoded are dropped, never requeued: a
	// malformed payload would otherwise poison the queue and spin the
	// retry loop forever.
	update, err := decodeRetryPayload([]byte(result[1]))
	if err != nil {
		w.log.Error().Err(err).Str("payload", result[1]).Msg("Malformed entry dropped")
		return
	}

	if err := w.persistAnswer(ctx, update); err != nil {
		w.log.Error().Err(err).
			Str("attempt_id", update.attemptID.String()).
			Str("question_id", update.questionID.String()).
			Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.AnswerRetryQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

// slotUpdate is one decoded retry entry.
type slotUpdate struct {
	attemptID  uuid.UUID
	questionID uuid.UUID
	selected   string
}

func decodeRetryPayload(raw []byte) (*slotUpdate, error) {
	var payload retryPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}

	attemptID, err := uuid.Parse(payload.AttemptID)
	if err != nil {
		return nil, err
	}
	questionID, err := uuid.Parse(payload.QuestionID)
	if err != nil {
		return nil, err
	}

	return &slotUpdate{
		attemptID:  attemptID,
		questionID: questionID,
		selected:   payload.SelectedOption,
	}, nil
}

// persistAnswer replays one save. Last write wins; a slot belonging to
// an attempt that finished in the meantime is simply not updated for
// scoring, matching the best-effort contract of the save path.
func (w *AnswerRetryWorker) persistAnswer(ctx context.Context, u *slotUpdate) error {
	_, err := w.pool.Exec(ctx,
		`UPDATE answer_slots SET selected_option = $1, updated_at = NOW()
		 WHERE attempt_id = $2 AND question_id = $3`,
		u.selected, u.attemptID, u.questionID,
	)
	return err
}

// drain processes all remaining items in the queue before shutdown.
func (w *AnswerRetryWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.AnswerRetryQueue).Result()
		if err != nil {
			break
		}

		update, err := decodeRetryPayload([]byte(result))
		if err != nil {
			w.log.Error().Err(err).Msg("Drain decode error, entry dropped")
			continue
		}

		if err := w.persistAnswer(ctx, update); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.AnswerRetryQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
