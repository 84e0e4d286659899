package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestEveryKeepsRunningAfterErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Every(ctx, Task{
			Name:     "flaky",
			Interval: 5 * time.Millisecond,
			Run: func(context.Context) error {
				if calls.Add(1) >= 3 {
					cancel()
				}
				return errors.New("boom")
			},
		}, discard())
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got=%v want=%v", err, context.Canceled)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task loop did not stop")
	}
	if got := calls.Load(); got < 3 {
		t.Fatalf("calls got=%d want>=3", got)
	}
}

func TestEveryDoesNotOverlap(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var running, overlaps atomic.Int32
	_ = Every(ctx, Task{
		Name:       "slow",
		Interval:   time.Millisecond,
		RunAtStart: true,
		Run: func(context.Context) error {
			if running.Add(1) > 1 {
				overlaps.Add(1)
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil
		},
	}, discard())

	if overlaps.Load() != 0 {
		t.Fatalf("overlapping runs: %d", overlaps.Load())
	}
}

func TestAlignedPassesBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target := time.Now().Add(10 * time.Millisecond)
	var got time.Time
	err := Aligned(ctx, func(time.Time) time.Time { return target }, func(_ context.Context, b time.Time) {
		got = b
		cancel()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got=%v want=%v", err, context.Canceled)
	}
	if !got.Equal(target) {
		t.Fatalf("boundary got=%v want=%v", got, target)
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("got=%v", err)
	}
}
