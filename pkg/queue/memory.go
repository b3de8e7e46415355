package queue

import (
	"context"
	"sync"
	"time"

	"github.com/lattice-run/coderunner/pkg/types"
)

// pollInterval is how often BlockingPop re-checks for a pushed item or
// an elapsed deadline.
const pollInterval = 10 * time.Millisecond

// MemoryQueue is an in-process FIFO used by tests in place of
// RedisQueue, per spec.md §9's note that collaborators should be narrow
// enough to fake rather than mock.
type MemoryQueue struct {
	mu     sync.Mutex
	items  []*types.Job
	closed bool
}

// NewMemoryQueue returns an empty, open MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Push appends job to the tail.
func (q *MemoryQueue) Push(ctx context.Context, job *types.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, job)
	return nil
}

// BlockingPop polls for an item every pollInterval until one arrives,
// ctx is canceled, or timeout elapses. A zero timeout waits until ctx
// is canceled.
func (q *MemoryQueue) BlockingPop(ctx context.Context, timeout time.Duration) (*types.Job, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if job, ok := q.tryPop(); ok {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, nil
		case <-ticker.C:
		}
	}
}

func (q *MemoryQueue) tryPop() (*types.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	job := q.items[0]
	q.items = q.items[1:]
	return job, true
}

// Length returns the current number of queued items.
func (q *MemoryQueue) Length(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

// Close marks the queue closed. BlockingPop callers are expected to
// pass a cancelable context to unblock promptly; Close does not itself
// interrupt in-flight polls.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
