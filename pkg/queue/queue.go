// Package queue provides the FIFO job queue the orchestrator pushes to
// and workers block-pop from. Queue is the narrow interface spec.md §9
// asks callers to depend on instead of a concrete client, so tests can
// swap in an in-memory fake.
package queue

import (
	"context"
	"time"

	"github.com/lattice-run/coderunner/pkg/types"
)

// Key is the well-known queue name both orchestrator and workers use.
const Key = "code-execution-queue"

// Queue is the minimal FIFO contract spec.md §4 relies on: the
// orchestrator pushes jobs on submission, workers block-pop them one at
// a time.
type Queue interface {
	// Push appends a job to the tail of the queue.
	Push(ctx context.Context, job *types.Job) error

	// BlockingPop removes and returns the job at the head of the queue,
	// blocking up to timeout. A zero timeout blocks indefinitely. It
	// returns (nil, nil) on timeout with nothing to pop.
	BlockingPop(ctx context.Context, timeout time.Duration) (*types.Job, error)

	// Length reports the current queue depth.
	Length(ctx context.Context) (int64, error)

	// Close releases any underlying connection.
	Close() error
}
