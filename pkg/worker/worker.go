// Package worker implements the loop that drains jobs from the queue,
// hands each to the executor, and delivers the result via webhook.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lattice-run/coderunner/pkg/executor"
	"github.com/lattice-run/coderunner/pkg/log"
	"github.com/lattice-run/coderunner/pkg/metrics"
	"github.com/lattice-run/coderunner/pkg/queue"
	"github.com/lattice-run/coderunner/pkg/types"
)

// popBackoff is how long the worker sleeps before retrying after a
// queue pop error, per spec.md §4.2 step 1.
const popBackoff = time.Second

// popTimeout bounds each blocking pop so the loop periodically rechecks
// the running flag instead of blocking forever against a closed queue.
const popTimeout = 2 * time.Second

// Executor is the narrow surface worker needs from pkg/executor, kept
// as an interface so tests can fake job execution.
type Executor interface {
	Execute(ctx context.Context, job *types.Job) *types.Result
}

// Delivery is the narrow surface worker needs to deliver a result,
// satisfied by Webhook in production and a fake in tests.
type Delivery interface {
	Deliver(ctx context.Context, callbackURL string, result *types.Result) error
}

// Worker drains q one job at a time and reports each result through
// delivery. Concurrency is per-process: one worker handles one job at
// a time, and horizontal scale-out is the parallelism model (spec.md §5).
type Worker struct {
	ID       string
	queue    queue.Queue
	executor Executor
	delivery Delivery

	mu      sync.Mutex
	running bool
}

// New builds a Worker with a fresh uuid v4 worker_id, a real Executor,
// and a Webhook delivery client.
func New(q queue.Queue) *Worker {
	id := uuid.NewString()
	return &Worker{
		ID:       id,
		queue:    q,
		executor: executor.New(),
		delivery: NewWebhook(id),
	}
}

// Run loops until ctx is canceled, draining and processing one job per
// iteration. The in-flight job (if any) is completed before Run
// returns — it is checked only between iterations, not mid-execute.
func (w *Worker) Run(ctx context.Context) {
	logger := log.WithWorkerID(w.ID)
	logger.Info().Msg("worker starting")

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	for w.isRunning() && ctx.Err() == nil {
		job, err := w.queue.BlockingPop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error().Err(err).Msg("queue pop failed, backing off")
			time.Sleep(popBackoff)
			continue
		}
		if job == nil {
			// Timed out with nothing queued; loop and recheck running/ctx.
			continue
		}

		w.process(ctx, job)
	}

	logger.Info().Msg("worker stopped")
}

// Stop signals Run to exit after its current iteration.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = false
}

func (w *Worker) isRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) process(ctx context.Context, job *types.Job) {
	logger := log.WithWorkerJob(w.ID, job)
	logger.Info().Msg("processing job")

	result := w.executor.Execute(ctx, job)
	metrics.JobsCompletedTotal.WithLabelValues(string(result.Status)).Inc()

	if job.CallbackURL == "" {
		logger.Info().Str("status", string(result.Status)).Msg("job completed, no callback_url set")
		metrics.WebhookDeliveryTotal.WithLabelValues("skipped").Inc()
		return
	}

	if err := w.delivery.Deliver(ctx, job.CallbackURL, result); err != nil {
		logger.Warn().Err(err).Msg("webhook delivery failed, result dropped")
		metrics.WebhookDeliveryTotal.WithLabelValues("failed").Inc()
		return
	}

	metrics.WebhookDeliveryTotal.WithLabelValues("delivered").Inc()
}
