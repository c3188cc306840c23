// Package queue runs background jobs from the durable jobs table.
//
// Jobs survive process restarts because enqueue writes a row before any
// worker sees it. Workers claim jobs one at a time, run the registered
// handler, and either complete, retry with backoff, or fail the job after
// its attempt budget is spent. A notifier (in-process or Redis) wakes idle
// workers so enqueue-to-pickup latency stays low without a hot poll loop.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brunobiangulo/logsight/metrics"
	"github.com/brunobiangulo/logsight/store"
)

// HandlerFunc processes one job payload.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Config holds worker pool configuration.
type Config struct {
	Workers      int           // concurrent workers
	PollInterval time.Duration // idle poll cadence, also the notifier wait timeout
	MaxAttempts  int           // claims per job before it is failed
	RetryBackoff time.Duration // base retry delay, doubled per attempt
}

// Worker owns a pool of goroutines consuming the jobs table.
type Worker struct {
	store    *store.Store
	notifier Notifier
	cfg      Config

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// New creates a worker pool. Zero config fields get working defaults.
func New(st *store.Store, notifier Notifier, cfg Config) *Worker {
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 5 * time.Second
	}
	return &Worker{
		store:    st,
		notifier: notifier,
		cfg:      cfg,
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers the handler for a job kind. Registering after Run has
// started is not supported.
func (w *Worker) Handle(kind string, fn HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[kind] = fn
}

// Enqueue persists a job and wakes a worker. The job row is durable before
// the notification fires, so a failed notification only delays pickup.
func (w *Worker) Enqueue(ctx context.Context, kind string, payload interface{}) (store.Job, error) {
	job, err := w.store.EnqueueJob(ctx, kind, payload, time.Now())
	if err != nil {
		return store.Job{}, fmt.Errorf("enqueueing %s: %w", kind, err)
	}
	if err := w.notifier.Notify(ctx); err != nil {
		slog.Warn("queue: notify failed, job will be picked up by polling",
			"kind", kind, "job_id", job.ID, "error", err)
	}
	slog.Debug("queue: job enqueued", "kind", kind, "job_id", job.ID)
	return job, nil
}

// Run starts the worker pool and blocks until ctx is cancelled and all
// in-flight jobs have finished.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("queue: starting workers",
		"workers", w.cfg.Workers,
		"poll_interval", w.cfg.PollInterval,
		"max_attempts", w.cfg.MaxAttempts)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()
	slog.Info("queue: workers stopped")
}

func (w *Worker) loop(ctx context.Context, id int) {
	for ctx.Err() == nil {
		job, err := w.store.ClaimJob(ctx, time.Now())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("queue: claiming job", "worker", id, "error", err)
			w.sleep(ctx)
			continue
		}
		if job == nil {
			// Nothing runnable; wait for a notification or the next poll.
			if err := w.notifier.Wait(ctx, w.cfg.PollInterval); err != nil && ctx.Err() == nil {
				slog.Warn("queue: notifier wait failed", "worker", id, "error", err)
				w.sleep(ctx)
			}
			continue
		}
		w.runJob(ctx, job)
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-time.After(w.cfg.PollInterval):
	case <-ctx.Done():
	}
}

// runJob executes one claimed job and settles its row.
func (w *Worker) runJob(ctx context.Context, job *store.Job) {
	w.mu.RLock()
	handler, ok := w.handlers[job.Kind]
	w.mu.RUnlock()
	if !ok {
		slog.Error("queue: no handler for job kind", "kind", job.Kind, "job_id", job.ID)
		if err := w.store.FailJob(ctx, job.ID, "no handler registered for kind "+job.Kind); err != nil {
			slog.Error("queue: failing job", "job_id", job.ID, "error", err)
		}
		metrics.JobsProcessed.WithLabelValues(job.Kind, "failed").Inc()
		return
	}

	start := time.Now()
	err := w.invoke(ctx, handler, job)
	metrics.JobDuration.WithLabelValues(job.Kind).Observe(time.Since(start).Seconds())

	if err == nil {
		if err := w.store.CompleteJob(ctx, job.ID); err != nil {
			slog.Error("queue: completing job", "job_id", job.ID, "error", err)
		}
		metrics.JobsProcessed.WithLabelValues(job.Kind, "done").Inc()
		slog.Info("queue: job done",
			"kind", job.Kind,
			"job_id", job.ID,
			"attempt", job.Attempts,
			"elapsed", time.Since(start).Round(time.Millisecond))
		return
	}

	if job.Attempts >= w.cfg.MaxAttempts {
		slog.Error("queue: job failed permanently",
			"kind", job.Kind, "job_id", job.ID, "attempts", job.Attempts, "error", err)
		if ferr := w.store.FailJob(ctx, job.ID, err.Error()); ferr != nil {
			slog.Error("queue: failing job", "job_id", job.ID, "error", ferr)
		}
		metrics.JobsProcessed.WithLabelValues(job.Kind, "failed").Inc()
		return
	}

	delay := w.cfg.RetryBackoff * time.Duration(1<<(job.Attempts-1))
	slog.Warn("queue: job failed, retrying",
		"kind", job.Kind, "job_id", job.ID, "attempt", job.Attempts, "delay", delay, "error", err)
	if rerr := w.store.RetryJob(ctx, job.ID, err.Error(), time.Now().Add(delay)); rerr != nil {
		slog.Error("queue: scheduling retry", "job_id", job.ID, "error", rerr)
	}
	metrics.JobsProcessed.WithLabelValues(job.Kind, "retried").Inc()
}

// invoke runs the handler, converting panics into errors so one bad job
// cannot take down the pool.
func (w *Worker) invoke(ctx context.Context, handler HandlerFunc, job *store.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return handler(ctx, job.Payload)
}
