package main

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/anthem-ai/internal/anthem"
	"github.com/suPer8Hu/anthem-ai/internal/store/rabbitmq"
)

type executor interface {
	Execute(ctx context.Context, runID string) error
}

type retrier interface {
	Retry(ctx context.Context, runID string, attempt int, delay time.Duration) error
}

type worker struct {
	svc        executor
	retry      retrier
	runTimeout time.Duration
	maxRetries int
	retryDelay time.Duration
	logger     zerolog.Logger
}

// handle runs one delivery and settles it: ack on success, nack (to the DLQ)
// on a recorded run failure or a bad message. Infrastructure errors go
// through the retry queue until maxRetries is spent.
func (w *worker) handle(ctx context.Context, workerID int, d amqp.Delivery) {
	log := w.logger.With().Int("worker", workerID).Logger()

	m, err := rabbitmq.DecodeRunMessage(d.Body)
	if err != nil {
		log.Error().Err(err).Msg("worker: bad message")
		_ = d.Nack(false, false)
		return
	}
	log = log.With().Str("run_id", m.RunID).Logger()

	runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	start := time.Now()
	err = w.svc.Execute(runCtx, m.RunID)
	switch {
	case err == nil:
		if err := d.Ack(false); err != nil {
			log.Error().Err(err).Msg("worker: ack failed")
		}

	case anthem.IsRunFailure(err):
		log.Error().Err(err).Dur("cost", time.Since(start)).Msg("worker: run failed")
		_ = d.Nack(false, false)

	default:
		attempt := rabbitmq.Attempt(d.Headers)
		if attempt >= w.maxRetries || ctx.Err() != nil {
			log.Error().Err(err).Int("attempt", attempt).Msg("worker: giving up")
			_ = d.Nack(false, false)
			return
		}
		delay := w.retryDelay * time.Duration(attempt+1)
		if rerr := w.retry.Retry(ctx, m.RunID, attempt+1, delay); rerr != nil {
			log.Error().Err(rerr).Msg("worker: retry publish failed")
			_ = d.Nack(false, false)
			return
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("worker: run retried")
		_ = d.Ack(false)
	}
}
