package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// JobFunc is a scheduled maintenance job.
type JobFunc func(ctx context.Context) error

// Scheduler manages scheduled maintenance jobs using the gocron library.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	mu        sync.Mutex // protects start/stop and the run context
	running   bool
	runCtx    context.Context
	cancel    context.CancelFunc
}

// NewScheduler creates a new scheduler instance using gocron.
func NewScheduler(logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "scheduler")

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		logger:    log,
	}, nil
}

// AddCronJob registers a named job on a cron schedule. Jobs may be added
// before or after Start.
func (s *Scheduler) AddCronJob(name, schedule string, job JobFunc) error {
	if schedule == "" {
		return fmt.Errorf("job %q has empty schedule", name)
	}

	_, err := s.scheduler.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(
			// Wrap the job to add logging around each run. Each run uses the
			// context given to Start, so shutdown cancels in-flight jobs.
			func(jobName string) {
				ctx := s.jobContext()
				s.logger.Info("Running scheduled job", "job_name", jobName)
				startTime := time.Now()
				if jobErr := job(ctx); jobErr != nil {
					s.logger.Error("Scheduled job failed", "job_name", jobName, "error", jobErr)
				}
				s.logger.Info("Finished scheduled job", "job_name", jobName, "duration", time.Since(startTime))
			},
			name,
		),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", name, err)
	}

	s.logger.Info("Scheduled job", "job_name", name, "schedule", schedule)
	return nil
}

// jobContext returns the context scheduled jobs run under. Before Start it
// falls back to the background context.
func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}

// Start starts the scheduler's internal ticking. Jobs run under a context
// derived from ctx and are cancelled when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.scheduler.Start()
	s.running = true
	s.logger.Info("Scheduler started", "jobs", len(s.scheduler.Jobs()))
	return nil
}

// Stop gracefully stops the scheduler, waiting for running jobs to complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Info("Scheduler is not running, nothing to stop.")
		return nil
	}

	s.cancel()
	err := s.scheduler.Shutdown()
	if err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
	} else {
		s.logger.Info("Scheduler stopped gracefully.")
	}

	s.running = false
	return err
}
