package cluster

import (
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// loadConfig prefers in-cluster config (the orchestrator normally runs
// as a pod itself) and falls back to a kubeconfig file for local runs
// against a dev cluster.
func loadConfig(kubeconfigPath string) (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
}
