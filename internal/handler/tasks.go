package handler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const taskTimeout = 30 * time.Second

// Tasks runs best-effort side effects (sheet sync, notice email) after the
// response has been decided. Failures are logged and never reach the client.
type Tasks struct {
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewTasks(logger *slog.Logger) *Tasks {
	return &Tasks{logger: logger}
}

// Go runs fn in the background with its own timeout. The request context is
// not used since the task outlives the request.
func (t *Tasks) Go(name string, fn func(ctx context.Context) error) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			t.logger.Error("background task failed", "task", name, "error", err)
		}
	}()
}

// Wait blocks until every started task has finished or ctx is done.
func (t *Tasks) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
