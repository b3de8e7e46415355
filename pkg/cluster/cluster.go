// Package cluster defines the narrow surface the orchestrator needs
// from the cluster, and a client-go-backed implementation of it. The
// interface is deliberately small (spec.md §9): the scaling loop is
// testable against a fake without pulling in a Kubernetes API server.
package cluster

import (
	"context"

	"github.com/lattice-run/coderunner/pkg/types"
)

// Cluster is the five-operation surface the orchestrator's scaling
// loop and status endpoint depend on.
type Cluster interface {
	// PodCount returns the number of live pods matching selector.
	PodCount(ctx context.Context, selector string) (int, error)

	// PodCPUUsage returns the per-pod CPU usage for pods matching
	// selector, as raw cgroup-style strings (suffix n/u/m, or none).
	PodCPUUsage(ctx context.Context, selector string) ([]types.PodCPU, error)

	// PatchReplicas sets deploymentName's replica count to replicas.
	PatchReplicas(ctx context.Context, deploymentName string, replicas int32) error

	// DeploymentReplicas reads back the deployment's current replica
	// count, for observability.
	DeploymentReplicas(ctx context.Context, deploymentName string) (int32, error)

	// Close releases any underlying client resources.
	Close() error
}
