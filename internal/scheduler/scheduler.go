// Package scheduler runs the bot's periodic loops: fixed-delay tasks such as
// pending-trade checks and boundary-aligned tasks such as period rollover.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is a named action repeated on a fixed interval.
type Task struct {
	Name     string
	Interval time.Duration
	// RunAtStart runs the action once before the first wait.
	RunAtStart bool
	Run        func(ctx context.Context) error
}

// Every runs task until ctx is done. The next run is scheduled Interval after
// the previous one completes, so a slow run delays later runs instead of
// overlapping them. Errors are logged and never stop the loop.
func Every(ctx context.Context, task Task, logger *slog.Logger) error {
	if task.Interval <= 0 {
		task.Interval = time.Second
	}
	log := logger.With(slog.String("task", task.Name))

	if task.RunAtStart {
		runOnce(ctx, task, log)
	}
	timer := time.NewTimer(task.Interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			runOnce(ctx, task, log)
			timer.Reset(task.Interval)
		}
	}
}

func runOnce(ctx context.Context, task Task, log *slog.Logger) {
	if err := task.Run(ctx); err != nil && ctx.Err() == nil {
		log.WarnContext(ctx, "periodic task failed", slog.String("error", err.Error()))
	}
}

// Run starts every task in its own goroutine and blocks until ctx is done.
func Run(ctx context.Context, logger *slog.Logger, tasks ...Task) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error { return Every(ctx, t, logger) })
	}
	return g.Wait()
}

// Aligned calls fn at every boundary returned by next, for example the start
// of each market period. fn receives the boundary it was scheduled for.
func Aligned(ctx context.Context, next func(now time.Time) time.Time, fn func(ctx context.Context, boundary time.Time)) error {
	for {
		boundary := next(time.Now())
		wait := time.Until(boundary)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		fn(ctx, boundary)
	}
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
