package bot

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()

	s, err := NewScheduler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewScheduler returned error: %v", err)
	}
	return s
}

func TestSchedulerStopCancelsJobContext(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t)
	if err := s.AddCronJob("refresh", "0 4 * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("AddCronJob returned error: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	ctx := s.jobContext()
	select {
	case <-ctx.Done():
		t.Fatal("job context cancelled before Stop")
	default:
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("job context not cancelled by Stop")
	}
}

func TestSchedulerParentCancellationPropagates(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t)
	parent, cancel := context.WithCancel(context.Background())
	if err := s.Start(parent); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })

	ctx := s.jobContext()
	cancel()
	select {
	case <-ctx.Done():
	default:
		t.Fatal("job context not cancelled with its parent")
	}
}

func TestSchedulerDoubleStart(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("second Start expected error, got nil")
	}
}

func TestSchedulerRejectsEmptySchedule(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t)
	if err := s.AddCronJob("refresh", "", func(context.Context) error { return nil }); err == nil {
		t.Fatal("AddCronJob expected error for empty schedule, got nil")
	}
}
