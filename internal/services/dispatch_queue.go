package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nextmind-ai/app-verification/internal/logging"
	"github.com/nextmind-ai/app-verification/internal/observability"
	"go.uber.org/zap"
)

// Kinds of mail jobs
const (
	MailKindVerification = "verification"
	MailKindWelcome      = "welcome"
)

const dispatchTimeout = 30 * time.Second

// ErrDispatchQueueFull is returned when a job cannot be buffered
var ErrDispatchQueueFull = errors.New("dispatch queue is full")

// ErrDispatchQueueStopped is returned after Stop
var ErrDispatchQueueStopped = errors.New("dispatch queue is stopped")

// MailJob is one email to deliver
type MailJob struct {
	Kind       string
	Message    VerificationMessage
	RequestID  string
	EnqueuedAt time.Time
}

// DispatchStats tracks queue activity
type DispatchStats struct {
	JobsEnqueued    int64         `json:"jobs_enqueued"`
	JobsProcessed   int64         `json:"jobs_processed"`
	JobsFailed      int64         `json:"jobs_failed"`
	JobsDropped     int64         `json:"jobs_dropped"`
	AverageWaitTime time.Duration `json:"average_wait_time"`
	QueueSize       int           `json:"queue_size"`
	ActiveWorkers   int           `json:"active_workers"`
}

// DispatchQueue sends emails on a pool of workers so that requests never wait
// on the mail provider
type DispatchQueue struct {
	mailer  VerificationMailer
	queue   chan MailJob
	workers int
	wg      sync.WaitGroup
	logger  *logging.SafeLogger

	mu      sync.RWMutex
	stats   DispatchStats
	stopped bool
}

// NewDispatchQueue creates a queue and starts its workers
func NewDispatchQueue(mailer VerificationMailer, workers, queueSize int, logger *logging.SafeLogger) *DispatchQueue {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	dq := &DispatchQueue{
		mailer:  mailer,
		queue:   make(chan MailJob, queueSize),
		workers: workers,
		logger:  logger.Named("dispatch_queue"),
	}

	for i := 0; i < workers; i++ {
		dq.wg.Add(1)
		go dq.worker(i)
	}
	return dq
}

func (dq *DispatchQueue) worker(id int) {
	defer dq.wg.Done()

	for job := range dq.queue {
		dq.processJob(job, id)
	}
}

func (dq *DispatchQueue) processJob(job MailJob, workerID int) {
	wait := time.Since(job.EnqueuedAt)

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	var err error
	switch job.Kind {
	case MailKindVerification:
		err = dq.mailer.SendVerification(ctx, job.Message)
	case MailKindWelcome:
		err = dq.mailer.SendWelcome(ctx, job.Message.Email, job.Message.DisplayName)
	default:
		err = fmt.Errorf("unknown mail kind %q", job.Kind)
	}

	status := "sent"
	if err != nil {
		status = "failed"
		dq.logger.Error("mail dispatch failed",
			zap.Int("worker_id", workerID),
			zap.String("kind", job.Kind),
			zap.String("email", observability.MaskEmail(job.Message.Email)),
			zap.String("request_id", job.RequestID),
			zap.Error(err))
	}
	observability.MailDispatch.WithLabelValues(job.Kind, status).Inc()

	dq.mu.Lock()
	dq.stats.JobsProcessed++
	if err != nil {
		dq.stats.JobsFailed++
	}
	if dq.stats.AverageWaitTime == 0 {
		dq.stats.AverageWaitTime = wait
	} else {
		dq.stats.AverageWaitTime = (dq.stats.AverageWaitTime + wait) / 2
	}
	dq.mu.Unlock()
}

// Enqueue buffers a job without blocking
func (dq *DispatchQueue) Enqueue(job MailJob) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	dq.mu.Lock()
	defer dq.mu.Unlock()

	if dq.stopped {
		return ErrDispatchQueueStopped
	}

	select {
	case dq.queue <- job:
		dq.stats.JobsEnqueued++
		return nil
	default:
		dq.stats.JobsDropped++
		observability.MailDispatch.WithLabelValues(job.Kind, "dropped").Inc()
		return ErrDispatchQueueFull
	}
}

// EnqueueVerification queues the verification email of msg
func (dq *DispatchQueue) EnqueueVerification(msg VerificationMessage, requestID string) error {
	return dq.Enqueue(MailJob{Kind: MailKindVerification, Message: msg, RequestID: requestID})
}

// EnqueueWelcome queues the welcome email sent after verification
func (dq *DispatchQueue) EnqueueWelcome(email, name, requestID string) error {
	return dq.Enqueue(MailJob{
		Kind:      MailKindWelcome,
		Message:   VerificationMessage{Email: email, DisplayName: name},
		RequestID: requestID,
	})
}

// GetStats returns the current queue statistics
func (dq *DispatchQueue) GetStats() DispatchStats {
	dq.mu.RLock()
	defer dq.mu.RUnlock()

	stats := dq.stats
	stats.QueueSize = len(dq.queue)
	stats.ActiveWorkers = dq.workers
	return stats
}

// Stop refuses new jobs, drains the buffered ones and waits for the workers
func (dq *DispatchQueue) Stop() {
	dq.mu.Lock()
	if dq.stopped {
		dq.mu.Unlock()
		return
	}
	dq.stopped = true
	close(dq.queue)
	dq.mu.Unlock()

	dq.wg.Wait()
	dq.logger.Info("dispatch queue stopped", zap.Int64("processed", dq.GetStats().JobsProcessed))
}

// IsHealthy reports whether the queue is accepting and draining jobs
func (dq *DispatchQueue) IsHealthy() bool {
	dq.mu.RLock()
	stopped := dq.stopped
	dq.mu.RUnlock()
	if stopped {
		return false
	}
	return len(dq.queue) < cap(dq.queue)
}
