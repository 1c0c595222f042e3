package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/akademos/exam-backend/internal/config"
	"github.com/akademos/exam-backend/internal/logger"
	"github.com/akademos/exam-backend/internal/service"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AnswerStore persists buffered answer batches onto attempt rows.
type AnswerStore interface {
	MergeAnswers(ctx context.Context, examID, studentID uuid.UUID, answers map[string]string, at time.Time) error
}

// AutosaveWorker drains the persistence queue fed by autosave requests and
// merges each batch into its attempt row. The Redis hash remains the
// authoritative copy until the attempt concludes; this loop only narrows the
// window a crash could lose.
type AutosaveWorker struct {
	store AnswerStore
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(store AnswerStore, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		store: store,
		rdb:   rdb,
		log:   logger.Component(log, "autosave_worker"),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopping")
			// Fresh context: the parent is already canceled and the queue
			// must still empty.
			w.drain(context.Background())
			w.log.Info().Msg("worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AutosaveWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item arrives or the 1s timeout lapses, which
	// keeps the ctx.Done check responsive.
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("queue pop failed")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	if err := w.persistBatch(ctx, []byte(result[1])); err != nil {
		w.log.Error().Err(err).Msg("persist failed, retrying in 5s")
		// Push back to the queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *AutosaveWorker) persistBatch(ctx context.Context, raw []byte) error {
	var job service.PersistAnswersJob
	if err := json.Unmarshal(raw, &job); err != nil {
		// A malformed job would fail forever; log and drop it.
		w.log.Error().Err(err).Str("payload", string(raw)).Msg("malformed job dropped")
		return nil
	}

	// Empty batches are heartbeats; the merge still bumps last_activity.
	return w.store.MergeAnswers(ctx, job.ExamID, job.StudentID, job.Answers, job.SavedAt)
}

// drain processes everything left in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}

		if err := w.persistBatch(ctx, []byte(result)); err != nil {
			w.log.Error().Err(err).Msg("drain persist failed")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("drained remaining items")
	}
}
