package worker

import (
	"context"
	"time"

	"github.com/akademos/exam-backend/internal/logger"
	"github.com/rs/zerolog"
)

// AttemptExpirer flips overdue in-progress attempts to expired.
type AttemptExpirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// ExpirySweeper periodically reconciles stored attempt state with the clock.
// Every read already treats an overdue attempt as dead, so the sweep only
// bounds how long an abandoned attempt stays visibly in progress and frees
// its slot for a new attempt.
type ExpirySweeper struct {
	attempts AttemptExpirer
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewExpirySweeper creates a new ExpirySweeper.
func NewExpirySweeper(attempts AttemptExpirer, interval time.Duration, log zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		attempts: attempts,
		interval: interval,
		now:      time.Now,
		log:      logger.Component(log, "expiry_sweeper"),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *ExpirySweeper) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("sweeper started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpirySweeper) sweep(ctx context.Context) {
	expired, err := w.attempts.ExpireOverdue(ctx, w.now())
	if err != nil {
		w.log.Error().Err(err).Msg("sweep failed")
		return
	}
	if expired > 0 {
		w.log.Info().Int64("count", expired).Msg("expired overdue attempts")
	}
}
