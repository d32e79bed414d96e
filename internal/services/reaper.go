package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nextmind-ai/app-verification/internal/logging"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const reapTimeout = 2 * time.Minute

// ExpiredChallengeReaper removes challenges past their deadline
type ExpiredChallengeReaper interface {
	ReapExpired(ctx context.Context) (int64, error)
}

// ReaperTask is extra housekeeping run on every reaper tick
type ReaperTask func(ctx context.Context) error

// Reaper runs ReapExpired on a cron schedule
type Reaper struct {
	target   ExpiredChallengeReaper
	schedule string
	cron     *cron.Cron
	logger   *logging.SafeLogger

	mu    sync.Mutex
	tasks map[string]ReaperTask
	last  ReapRun
}

// ReapRun summarizes one sweep
type ReapRun struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Deleted   int64         `json:"deleted"`
	Error     string        `json:"error,omitempty"`
}

// NewReaper creates a reaper for target. schedule accepts standard cron
// expressions and descriptors such as "@every 5m".
func NewReaper(target ExpiredChallengeReaper, schedule string, logger *logging.SafeLogger) (*Reaper, error) {
	r := &Reaper{
		target:   target,
		schedule: schedule,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		logger:   logger.Named("reaper"),
		tasks:    make(map[string]ReaperTask),
	}

	if _, err := r.cron.AddFunc(schedule, r.tick); err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", schedule, err)
	}
	return r, nil
}

// AddTask registers housekeeping that runs after each sweep
func (r *Reaper) AddTask(name string, task ReaperTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = task
}

func (r *Reaper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), reapTimeout)
	defer cancel()

	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("scheduled reap failed", zap.Error(err))
	}

	r.mu.Lock()
	tasks := make(map[string]ReaperTask, len(r.tasks))
	for name, task := range r.tasks {
		tasks[name] = task
	}
	r.mu.Unlock()

	for name, task := range tasks {
		if err := task(ctx); err != nil {
			r.logger.Warn("reaper task failed", zap.String("task", name), zap.Error(err))
		}
	}
}

// RunOnce performs a single sweep
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	deleted, err := r.target.ReapExpired(ctx)

	run := ReapRun{StartedAt: start, Duration: time.Since(start), Deleted: deleted}
	if err != nil {
		run.Error = err.Error()
	}

	r.mu.Lock()
	r.last = run
	r.mu.Unlock()

	return deleted, err
}

// LastRun returns the summary of the most recent sweep
func (r *Reaper) LastRun() ReapRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Start begins the schedule in its own goroutine
func (r *Reaper) Start() {
	r.logger.Info("reaper started", zap.String("schedule", r.schedule))
	r.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish
func (r *Reaper) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		r.logger.Info("reaper stopped")
	case <-ctx.Done():
		r.logger.Warn("reaper stop timed out")
	}
}
