package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-run/coderunner/pkg/types"
)

func TestMemoryQueue_PushIncreasesLength(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)

	require.NoError(t, q.Push(ctx, types.NewJob("tok-1", types.JobInput{SourceCode: "x", ProblemID: "p", LanguageID: 71})))
	require.NoError(t, q.Push(ctx, types.NewJob("tok-2", types.JobInput{SourceCode: "y", ProblemID: "p", LanguageID: 71})))

	length, err = q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}

func TestMemoryQueue_FIFOOrder(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, types.NewJob("first", types.JobInput{SourceCode: "x", ProblemID: "p", LanguageID: 71})))
	require.NoError(t, q.Push(ctx, types.NewJob("second", types.JobInput{SourceCode: "y", ProblemID: "p", LanguageID: 71})))

	job, err := q.BlockingPop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "first", job.Token)

	job, err = q.BlockingPop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "second", job.Token)
}

func TestMemoryQueue_BlockingPopTimesOutWhenEmpty(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	start := time.Now()
	job, err := q.BlockingPop(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestMemoryQueue_BlockingPopUnblocksOnPush(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	done := make(chan *types.Job, 1)
	go func() {
		job, err := q.BlockingPop(ctx, 2*time.Second)
		require.NoError(t, err)
		done <- job
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(ctx, types.NewJob("late", types.JobInput{SourceCode: "x", ProblemID: "p", LanguageID: 71})))

	select {
	case job := <-done:
		require.NotNil(t, job)
		assert.Equal(t, "late", job.Token)
	case <-time.After(2 * time.Second):
		t.Fatal("BlockingPop did not unblock after push")
	}
}

func TestMemoryQueue_BlockingPopRespectsContextCancellation(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	job, err := q.BlockingPop(ctx, 5*time.Second)
	assert.Error(t, err)
	assert.Nil(t, job)
}
