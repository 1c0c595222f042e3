package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/akademos/exam-backend/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// answerBufferTTL reaps abandoned buffers. Must exceed the longest
// configurable attempt window so a live attempt never loses its buffer.
const answerBufferTTL = 24 * time.Hour

// AnswerBuffer is the write-behind store for in-progress answers. Saves land
// here first and are persisted to the attempt row asynchronously; reads merge
// the buffer over the stored map so a resume never misses a fresh answer.
type AnswerBuffer interface {
	Stage(ctx context.Context, examID, studentID uuid.UUID, answers map[string]string) error
	Peek(ctx context.Context, examID, studentID uuid.UUID) (map[string]string, error)
	Clear(ctx context.Context, examID, studentID uuid.UUID) error
}

// PersistAnswersJob is the queue payload linking a buffered save batch to its
// attempt row.
type PersistAnswersJob struct {
	ExamID    uuid.UUID         `json:"exam_id"`
	StudentID uuid.UUID         `json:"student_id"`
	Answers   map[string]string `json:"answers"`
	SavedAt   time.Time         `json:"saved_at"`
}

// RedisAnswerBuffer buffers answers in a Redis hash and feeds the
// persistence queue consumed by the autosave workers.
type RedisAnswerBuffer struct {
	rdb *redis.Client
}

// NewRedisAnswerBuffer creates a new RedisAnswerBuffer.
func NewRedisAnswerBuffer(rdb *redis.Client) *RedisAnswerBuffer {
	return &RedisAnswerBuffer{rdb: rdb}
}

// Stage writes the batch into the buffer hash and enqueues a persistence job.
// The hash write makes the answers visible to resume immediately; the queue
// entry carries them to the attempt row even if the hash is lost.
func (b *RedisAnswerBuffer) Stage(ctx context.Context, examID, studentID uuid.UUID, answers map[string]string) error {
	key := config.CacheKey.AttemptAnswersKey(examID, studentID)

	if len(answers) > 0 {
		fields := make(map[string]interface{}, len(answers))
		for k, v := range answers {
			fields[k] = v
		}
		pipe := b.rdb.Pipeline()
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, answerBufferTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("buffer answers: %w", err)
		}
	}

	job, err := json.Marshal(PersistAnswersJob{
		ExamID:    examID,
		StudentID: studentID,
		Answers:   answers,
		SavedAt:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal persist job: %w", err)
	}
	if err := b.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, job).Err(); err != nil {
		return fmt.Errorf("enqueue persist job: %w", err)
	}
	return nil
}

// Peek returns the buffered answers without consuming them. An absent buffer
// is an empty map, not an error.
func (b *RedisAnswerBuffer) Peek(ctx context.Context, examID, studentID uuid.UUID) (map[string]string, error) {
	key := config.CacheKey.AttemptAnswersKey(examID, studentID)
	fields, err := b.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read answer buffer: %w", err)
	}
	return fields, nil
}

// Clear drops the buffer after its attempt concluded.
func (b *RedisAnswerBuffer) Clear(ctx context.Context, examID, studentID uuid.UUID) error {
	key := config.CacheKey.AttemptAnswersKey(examID, studentID)
	return b.rdb.Del(ctx, key).Err()
}

var _ AnswerBuffer = (*RedisAnswerBuffer)(nil)
