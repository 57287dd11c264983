package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Mailer is the external email collaborator. Implementations render and send
// the message for a given topic; the worker only guarantees delivery intent.
type Mailer interface {
	Send(ctx context.Context, topic string, payload map[string]any) error
}

// LogMailer is a development stand-in writing notifications to the log.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, topic string, payload map[string]any) error {
	log.Printf("[notify] topic=%s payload=%v", topic, payload)
	return nil
}

// Worker drains the outbox table and hands messages to the mailer. Failed
// deliveries are retried until the attempts cap, then dead-lettered.
type Worker struct {
	pool        *pgxpool.Pool
	mailer      Mailer
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

func NewWorker(pool *pgxpool.Pool, mailer Mailer) *Worker {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Worker{
		pool:        pool,
		mailer:      mailer,
		interval:    2 * time.Second,
		batchSize:   32,
		maxAttempts: 5,
	}
}

func (w *Worker) WithInterval(d time.Duration) *Worker {
	w.interval = d
	return w
}

// Run drains the outbox until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.DrainOnce(ctx); err != nil {
				log.Printf("[notify] drain error: %v", err)
			}
		}
	}
}

// DrainOnce claims one batch of pending messages and dispatches it.
func (w *Worker) DrainOnce(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	msgs, err := claimPending(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}

	for _, m := range msgs {
		var payload map[string]any
		if err := json.Unmarshal(m.Payload, &payload); err != nil {
			// Malformed payloads can never deliver; dead-letter immediately.
			if err := markFailed(ctx, tx, m.ID, 1); err != nil {
				return err
			}
			continue
		}

		if err := w.mailer.Send(ctx, m.Topic, payload); err != nil {
			log.Printf("[notify] send failed topic=%s id=%s attempts=%d: %v", m.Topic, m.ID, m.Attempts+1, err)
			if err := markFailed(ctx, tx, m.ID, w.maxAttempts); err != nil {
				return err
			}
			continue
		}

		if err := markProcessed(ctx, tx, m.ID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
