package cluster

import (
	"context"
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/runtime/serializer"
	k8stypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"

	"github.com/lattice-run/coderunner/pkg/log"
	"github.com/lattice-run/coderunner/pkg/types"
)

// metricsGroupVersion is the metrics-server API this cluster reads pod
// CPU from; it ships as a raw REST client rather than a generated
// typed client, since the examples this module draws from don't carry
// a metrics-server client package.
var metricsGroupVersion = schema.GroupVersion{Group: "metrics.k8s.io", Version: "v1beta1"}

// K8sCluster implements Cluster against a real API server via
// client-go, adapted from the declarative Deployment-patch pattern a
// controller-runtime reconciler uses into an imperative poll/patch
// cycle driven by the orchestrator's own ticker.
type K8sCluster struct {
	clientset     *kubernetes.Clientset
	metricsClient *rest.RESTClient
	namespace     string
}

// NewK8sCluster builds a Cluster from in-cluster config when running
// inside a pod, falling back to kubeconfigPath otherwise.
func NewK8sCluster(kubeconfigPath, namespace string) (*K8sCluster, error) {
	cfg, err := loadConfig(kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("cluster: loading kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("cluster: building clientset: %w", err)
	}

	metricsCfg := *cfg
	metricsCfg.GroupVersion = &metricsGroupVersion
	metricsCfg.APIPath = "/apis"
	metricsCfg.NegotiatedSerializer = serializer.NewCodecFactory(scheme.Scheme).WithoutConversion()

	metricsClient, err := rest.RESTClientFor(&metricsCfg)
	if err != nil {
		return nil, fmt.Errorf("cluster: building metrics client: %w", err)
	}

	return &K8sCluster{
		clientset:     clientset,
		metricsClient: metricsClient,
		namespace:     namespace,
	}, nil
}

// PodCount lists pods matching selector and returns the count.
func (c *K8sCluster) PodCount(ctx context.Context, selector string) (int, error) {
	pods, err := c.clientset.CoreV1().Pods(c.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		return 0, fmt.Errorf("cluster: listing pods for selector %q: %w", selector, err)
	}
	return len(pods.Items), nil
}

// podMetricsList mirrors the subset of the metrics.k8s.io PodMetricsList
// shape this reads; kept local since the module carries no
// metrics-server typed client.
type podMetricsList struct {
	Items []struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Containers []struct {
			Usage struct {
				CPU string `json:"cpu"`
			} `json:"usage"`
		} `json:"containers"`
	} `json:"items"`
}

// PodCPUUsage queries the metrics-server API for per-pod CPU usage.
// Each pod's value is the usage of its first listed container only;
// further containers are not added in, and pods reporting no
// containers are omitted.
func (c *K8sCluster) PodCPUUsage(ctx context.Context, selector string) ([]types.PodCPU, error) {
	raw, err := c.metricsClient.Get().
		Namespace(c.namespace).
		Resource("pods").
		Param("labelSelector", selector).
		DoRaw(ctx)
	if err != nil {
		return nil, fmt.Errorf("cluster: reading pod metrics for selector %q: %w", selector, err)
	}

	var list podMetricsList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("cluster: unmarshaling pod metrics: %w", err)
	}

	usage := make([]types.PodCPU, 0, len(list.Items))
	for _, item := range list.Items {
		if len(item.Containers) == 0 {
			continue
		}
		usage = append(usage, types.PodCPU{
			Name: item.Metadata.Name,
			CPU:  item.Containers[0].Usage.CPU,
		})
	}

	return usage, nil
}

// PatchReplicas sets deploymentName's Spec.Replicas via a strategic
// merge patch, the same primitive a controller-runtime reconciler's
// Update call resolves to under the hood.
func (c *K8sCluster) PatchReplicas(ctx context.Context, deploymentName string, replicas int32) error {
	patchBytes, err := json.Marshal(map[string]interface{}{
		"spec": map[string]interface{}{"replicas": replicas},
	})
	if err != nil {
		return fmt.Errorf("cluster: marshaling replica patch: %w", err)
	}

	_, err = c.clientset.AppsV1().Deployments(c.namespace).Patch(
		ctx, deploymentName, k8stypes.StrategicMergePatchType, patchBytes, metav1.PatchOptions{},
	)
	if err != nil {
		return fmt.Errorf("cluster: patching %s to %d replicas: %w", deploymentName, replicas, err)
	}

	log.WithComponent("cluster").Info().Str("deployment", deploymentName).Int32("replicas", replicas).Msg("patched deployment replicas")

	return nil
}

// DeploymentReplicas reads back the deployment's current replica count.
func (c *K8sCluster) DeploymentReplicas(ctx context.Context, deploymentName string) (int32, error) {
	deployment, err := c.clientset.AppsV1().Deployments(c.namespace).Get(ctx, deploymentName, metav1.GetOptions{})
	if err != nil {
		return 0, fmt.Errorf("cluster: reading deployment %s: %w", deploymentName, err)
	}
	if deployment.Spec.Replicas == nil {
		return 0, nil
	}
	return *deployment.Spec.Replicas, nil
}

// Close is a no-op: client-go clientsets hold no closable connection.
func (c *K8sCluster) Close() error {
	return nil
}
