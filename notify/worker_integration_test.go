package notify

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type recordingMailer struct {
	mu     sync.Mutex
	topics []string
	fail   bool
}

func (m *recordingMailer) Send(ctx context.Context, topic string, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp down")
	}
	m.topics = append(m.topics, topic)
	return nil
}

func TestDrainOnceDeliversAndRetries(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'outbox')`).Scan(&exists); err != nil || !exists {
		t.Skip("outbox table does not exist; ensure migrations are applied")
	}

	topic := "test.delivery." + time.Now().Format("150405.000000000")

	outbox := NewOutbox()
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := outbox.Enqueue(ctx, tx, topic, map[string]any{"n": 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM outbox WHERE topic = $1`, topic)
	})

	// First drain fails delivery; the message stays pending with one attempt.
	mailer := &recordingMailer{fail: true}
	worker := NewWorker(pool, mailer)
	if err := worker.DrainOnce(ctx); err != nil {
		t.Fatalf("drain with failing mailer: %v", err)
	}

	var status string
	var attempts int
	if err := pool.QueryRow(ctx, `SELECT status, attempts FROM outbox WHERE topic = $1`, topic).Scan(&status, &attempts); err != nil {
		t.Fatalf("inspect outbox: %v", err)
	}
	if status != "pending" || attempts != 1 {
		t.Fatalf("expected pending message with one attempt, got status=%s attempts=%d", status, attempts)
	}

	// Second drain succeeds and marks the message processed.
	mailer.fail = false
	if err := worker.DrainOnce(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	if err := pool.QueryRow(ctx, `SELECT status FROM outbox WHERE topic = $1`, topic).Scan(&status); err != nil {
		t.Fatalf("inspect outbox: %v", err)
	}
	if status != "processed" {
		t.Fatalf("expected processed message, got %s", status)
	}

	mailer.mu.Lock()
	delivered := len(mailer.topics)
	mailer.mu.Unlock()
	if delivered != 1 {
		t.Fatalf("expected one delivery, got %d", delivered)
	}
}
