package cluster

import (
	"context"
	"sync"

	"github.com/lattice-run/coderunner/pkg/types"
)

// FakeCluster is an in-memory Cluster used by orchestrator tests, per
// spec.md §9's note that the cluster collaborator should be narrow
// enough to fake rather than mock.
type FakeCluster struct {
	mu sync.Mutex

	Pods           int
	CPUUsage       []types.PodCPU
	Replicas       map[string]int32
	PatchCallCount int
	PatchErr       error
}

// NewFakeCluster returns a FakeCluster with an empty replica map.
func NewFakeCluster() *FakeCluster {
	return &FakeCluster{Replicas: map[string]int32{}}
}

func (f *FakeCluster) PodCount(ctx context.Context, selector string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Pods, nil
}

func (f *FakeCluster) PodCPUUsage(ctx context.Context, selector string) ([]types.PodCPU, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CPUUsage, nil
}

func (f *FakeCluster) PatchReplicas(ctx context.Context, deploymentName string, replicas int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PatchCallCount++
	if f.PatchErr != nil {
		return f.PatchErr
	}
	f.Replicas[deploymentName] = replicas
	return nil
}

func (f *FakeCluster) DeploymentReplicas(ctx context.Context, deploymentName string) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Replicas[deploymentName], nil
}

func (f *FakeCluster) Close() error {
	return nil
}
