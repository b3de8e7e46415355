// Package orchestrator accepts job submissions, exposes backlog and
// worker visibility, and drives the worker deployment's replica count
// against queue depth and observed CPU pressure.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lattice-run/coderunner/pkg/cluster"
	"github.com/lattice-run/coderunner/pkg/log"
	"github.com/lattice-run/coderunner/pkg/metrics"
	"github.com/lattice-run/coderunner/pkg/queue"
	"github.com/lattice-run/coderunner/pkg/types"
)

// Orchestrator owns the queue as a producer and the scaling control
// loop. Submission and scaling are independent activities that may run
// concurrently (spec.md §5): submissions never wait on the scaler.
type Orchestrator struct {
	queue   queue.Queue
	cluster cluster.Cluster
	config  types.ScalingConfig

	mu          sync.Mutex
	cancelTimer context.CancelFunc
	lastCPU     []types.PodCPU
	lastSample  time.Time
}

// New builds an Orchestrator over q and c with the given scaling
// config. Prefer explicit construction over ambient globals (spec.md §9).
func New(q queue.Queue, c cluster.Cluster, config types.ScalingConfig) *Orchestrator {
	return &Orchestrator{
		queue:   q,
		cluster: c,
		config:  config,
	}
}

// SubmitBatch validates and enqueues every input, assigning each a
// fresh token. Validation covers the whole batch before anything is
// enqueued: on the first invalid element, the whole batch is rejected
// and no tokens are enqueued or returned (spec.md §6). Enqueueing is one
// Push per element and is not atomic: if a Push fails, the elements
// already pushed stay in the queue and no tokens are returned.
func (o *Orchestrator) SubmitBatch(ctx context.Context, inputs []types.JobInput) ([]string, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("submissions must be a non-empty list")
	}

	for i := range inputs {
		if err := inputs[i].Validate(); err != nil {
			return nil, fmt.Errorf("submission %d: %w", i, err)
		}
	}

	tokens := make([]string, len(inputs))
	for i, input := range inputs {
		token := uuid.NewString()
		job := types.NewJob(token, input)

		if err := o.queue.Push(ctx, job); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrQueueUnavailable, err)
		}

		tokens[i] = token
		metrics.JobsSubmittedTotal.Inc()
	}

	return tokens, nil
}

// QueueStatus reads queue length and live worker count matching the
// configured pod selector. Values may be stale; no locking is held
// across the two reads (spec.md §4.1).
func (o *Orchestrator) QueueStatus(ctx context.Context) (types.QueueStatus, error) {
	queued, err := o.queue.Length(ctx)
	if err != nil {
		return types.QueueStatus{}, fmt.Errorf("%w: %v", types.ErrQueueUnavailable, err)
	}

	workerCount, err := o.cluster.PodCount(ctx, o.config.PodSelector)
	if err != nil {
		return types.QueueStatus{}, fmt.Errorf("reading worker count: %w", err)
	}

	status := types.QueueStatus{
		Queued:      int(queued),
		WorkerCount: workerCount,
		AvgCPU:      o.lastAvgCPU(workerCount),
		SampledAt:   time.Now(),
	}

	metrics.QueueDepth.Set(float64(queued))
	metrics.WorkerPoolSize.Set(float64(workerCount))

	return status, nil
}

func (o *Orchestrator) lastAvgCPU(podCount int) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return avgCPU(o.lastCPU, podCount)
}

// StartScalingLoop installs a periodic timer driving Reconcile at
// config.CheckInterval. Idempotent: calling it while a loop is already
// running stops the old timer first.
func (o *Orchestrator) StartScalingLoop(ctx context.Context) {
	o.mu.Lock()
	if o.cancelTimer != nil {
		o.cancelTimer()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	o.cancelTimer = cancel
	o.mu.Unlock()

	interval := o.config.CheckInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				o.reconcileOnce(loopCtx)
			}
		}
	}()
}

// StopScalingLoop cancels the scaling timer. Safe to call when no loop
// is running.
func (o *Orchestrator) StopScalingLoop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelTimer != nil {
		o.cancelTimer()
		o.cancelTimer = nil
	}
}

// Shutdown stops the scaling loop and closes the queue connection.
// Safe to call once; subsequent calls are no-ops beyond a second Close.
func (o *Orchestrator) Shutdown() error {
	o.StopScalingLoop()
	return o.queue.Close()
}

// reconcileOnce runs one scaling tick per spec.md §4.1's algorithm.
// Any failure is logged and swallowed — the loop continues on the next
// tick regardless.
func (o *Orchestrator) reconcileOnce(ctx context.Context) {
	logger := log.WithComponent("orchestrator")
	timer := metrics.NewTimer()
	defer func() {
		metrics.ReconcileDuration.Observe(timer.Duration().Seconds())
		metrics.ReconcileCyclesTotal.Inc()
	}()

	queued, err := o.queue.Length(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("reconcile: reading queue length failed")
		return
	}

	podCount, err := o.cluster.PodCount(ctx, o.config.PodSelector)
	if err != nil {
		logger.Warn().Err(err).Msg("reconcile: reading pod count failed")
		return
	}

	cpuUsage, err := o.cluster.PodCPUUsage(ctx, o.config.PodSelector)
	if err != nil {
		logger.Warn().Err(err).Msg("reconcile: reading pod CPU usage failed")
		return
	}

	o.mu.Lock()
	o.lastCPU = cpuUsage
	o.lastSample = time.Now()
	o.mu.Unlock()

	desired := Reconcile(int(queued), podCount, cpuUsage, o.config)
	metrics.ScaleReplicaTarget.Set(float64(desired))

	if desired == podCount {
		return
	}

	if err := o.cluster.PatchReplicas(ctx, o.config.DeploymentName, int32(desired)); err != nil {
		logger.Warn().Err(err).Int("desired", desired).Msg("reconcile: patching replicas failed")
		return
	}

	logger.Info().Int("queued", int(queued)).Int("pod_count", podCount).Int("desired", desired).Msg("reconciled replica count")
}

// Reconcile computes the desired replica count for one tick, per
// spec.md §4.1 steps 2-3. It is a pure function of inputs so the
// scaling properties in spec.md §8 are directly testable. podCount is
// the pod count read in step 1 (P); avg_cpu divides by P, not by the
// length of the cpuUsage sample, since metrics-server may report usage
// for fewer pods than are actually live.
func Reconcile(queueLength, podCount int, cpuUsage []types.PodCPU, config types.ScalingConfig) int {
	baseline := clamp(int(math.Ceil(float64(queueLength)/float64(config.JobsPerPod))), config.MinPods, config.MaxPods)

	if len(cpuUsage) == 0 {
		return baseline
	}

	avg := avgCPU(cpuUsage, podCount)
	if avg > config.CPUHighWatermark {
		return minInt(config.MaxPods, baseline+1)
	}

	return baseline
}

// avgCPU sums the reported per-pod usage and divides by podCount (P),
// per spec.md §4.1 step 3 — not by len(usage), which may undercount
// live pods during a partial-metrics window.
func avgCPU(usage []types.PodCPU, podCount int) float64 {
	if podCount <= 0 {
		return 0
	}

	var sum float64
	for _, u := range usage {
		sum += parseCPU(u.CPU)
	}
	return sum / float64(podCount)
}

// parseCPU converts a cgroup-style CPU usage string into cores:
// suffix "n" divides by 1e9, "u" by 1e6, "m" by 1e3, no suffix is
// already in cores (spec.md §4.1 step 3).
func parseCPU(s string) float64 {
	if s == "" {
		return 0
	}

	var divisor float64 = 1
	numeric := s

	switch {
	case strings.HasSuffix(s, "n"):
		divisor = 1e9
		numeric = strings.TrimSuffix(s, "n")
	case strings.HasSuffix(s, "u"):
		divisor = 1e6
		numeric = strings.TrimSuffix(s, "u")
	case strings.HasSuffix(s, "m"):
		divisor = 1e3
		numeric = strings.TrimSuffix(s, "m")
	}

	value, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return 0
	}

	return value / divisor
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
