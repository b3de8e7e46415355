package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-run/coderunner/pkg/cluster"
	"github.com/lattice-run/coderunner/pkg/queue"
	"github.com/lattice-run/coderunner/pkg/types"
)

func testConfig() types.ScalingConfig {
	return types.ScalingConfig{
		MinPods:          1,
		MaxPods:          10,
		JobsPerPod:       5,
		CPUHighWatermark: 0.8,
		DeploymentName:   "coderunner-worker",
		PodSelector:      "app=coderunner-worker",
	}
}

func TestSubmitBatch_ReturnsFreshDistinctTokens(t *testing.T) {
	o := New(queue.NewMemoryQueue(), cluster.NewFakeCluster(), testConfig())

	tokens, err := o.SubmitBatch(context.Background(), []types.JobInput{
		{SourceCode: "a", LanguageID: 71, ProblemID: "p1"},
		{SourceCode: "b", LanguageID: 71, ProblemID: "p2"},
	})

	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.NotEqual(t, tokens[0], tokens[1])
	assert.NotEmpty(t, tokens[0])
	assert.NotEmpty(t, tokens[1])
}

func TestSubmitBatch_GrowsQueueLengthByN(t *testing.T) {
	q := queue.NewMemoryQueue()
	o := New(q, cluster.NewFakeCluster(), testConfig())
	ctx := context.Background()

	_, err := o.SubmitBatch(ctx, []types.JobInput{
		{SourceCode: "a", LanguageID: 71, ProblemID: "p1"},
		{SourceCode: "b", LanguageID: 71, ProblemID: "p2"},
		{SourceCode: "c", LanguageID: 71, ProblemID: "p3"},
	})
	require.NoError(t, err)

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), length)
}

func TestSubmitBatch_WholeBatchRejectedOnInvalidElement(t *testing.T) {
	q := queue.NewMemoryQueue()
	o := New(q, cluster.NewFakeCluster(), testConfig())
	ctx := context.Background()

	_, err := o.SubmitBatch(ctx, []types.JobInput{
		{SourceCode: "a", LanguageID: 71, ProblemID: "p1"},
		{SourceCode: "", LanguageID: 71, ProblemID: "p2"}, // missing source_code
	})

	require.Error(t, err)
	length, lerr := q.Length(ctx)
	require.NoError(t, lerr)
	assert.Equal(t, int64(0), length, "no tokens should be enqueued when the batch is rejected")
}

func TestSubmitBatch_EmptyListRejected(t *testing.T) {
	o := New(queue.NewMemoryQueue(), cluster.NewFakeCluster(), testConfig())
	_, err := o.SubmitBatch(context.Background(), nil)
	assert.Error(t, err)
}

func TestQueueStatus_ReadsLengthAndWorkerCount(t *testing.T) {
	q := queue.NewMemoryQueue()
	fc := cluster.NewFakeCluster()
	fc.Pods = 3
	o := New(q, fc, testConfig())
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, types.NewJob("t1", types.JobInput{SourceCode: "x", LanguageID: 71, ProblemID: "p"})))

	status, err := o.QueueStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Queued)
	assert.Equal(t, 3, status.WorkerCount)
}

func TestReconcile_BaselineWithoutCPUSignal(t *testing.T) {
	config := testConfig()

	tests := []struct {
		name        string
		queueLength int
		want        int
	}{
		{"empty queue stays at min", 0, 1},
		{"typical backlog", 37, 8},
		{"backlog exceeding max clamps", 1000, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.queueLength, 1, nil, config)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReconcile_CPUPressureAddsOneReplica(t *testing.T) {
	config := testConfig()

	// baseline for 37/5 = ceil(7.4) = 8
	lowCPU := []types.PodCPU{{Name: "a", CPU: "300m"}}  // 0.3 cores
	highCPU := []types.PodCPU{{Name: "a", CPU: "900m"}} // 0.9 cores

	assert.Equal(t, 8, Reconcile(37, 1, lowCPU, config))
	assert.Equal(t, 9, Reconcile(37, 1, highCPU, config))
}

func TestReconcile_AvgCPUDividesByPodCountNotSampleLength(t *testing.T) {
	config := testConfig()

	// P=4 pods, only 2 report usage: avg must be sum/4 = 0.45, not
	// sum/2 = 0.9, so no scale-up bump should fire.
	partial := []types.PodCPU{{Name: "a", CPU: "900m"}, {Name: "b", CPU: "900m"}}

	assert.Equal(t, 8, Reconcile(37, 4, partial, config))
}

func TestReconcile_CPUBiasNeverExceedsMaxPods(t *testing.T) {
	config := testConfig()
	highCPU := []types.PodCPU{{Name: "a", CPU: "950m"}}

	got := Reconcile(50, 1, highCPU, config) // baseline already clamped to 10
	assert.Equal(t, 10, got)
}

func TestReconcile_NeverBelowMinPods(t *testing.T) {
	config := testConfig()
	assert.GreaterOrEqual(t, Reconcile(0, 1, nil, config), config.MinPods)
}

func TestParseCPU_SuffixHandling(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"500000000n", 0.5},
		{"500000u", 0.5},
		{"500m", 0.5},
		{"2", 2},
		{"", 0},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, parseCPU(tt.in), 0.0001, tt.in)
	}
}

func TestReconcileOnce_NoOpWhenDesiredEqualsCurrent(t *testing.T) {
	q := queue.NewMemoryQueue()
	fc := cluster.NewFakeCluster()
	fc.Pods = 1 // min_pods, desired also 1 for empty queue
	o := New(q, fc, testConfig())

	o.reconcileOnce(context.Background())

	assert.Equal(t, 0, fc.PatchCallCount, "reconcile must not patch when desired == current pod count")
}

func TestReconcileOnce_PatchesWhenDesiredDiffers(t *testing.T) {
	q := queue.NewMemoryQueue()
	fc := cluster.NewFakeCluster()
	fc.Pods = 2
	o := New(q, fc, testConfig())
	ctx := context.Background()

	for i := 0; i < 37; i++ {
		require.NoError(t, q.Push(ctx, types.NewJob("t", types.JobInput{SourceCode: "x", LanguageID: 71, ProblemID: "p"})))
	}

	o.reconcileOnce(ctx)

	assert.Equal(t, 1, fc.PatchCallCount)
	assert.Equal(t, int32(8), fc.Replicas["coderunner-worker"])
}
