package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lattice-run/coderunner/pkg/cluster"
	"github.com/lattice-run/coderunner/pkg/log"
	"github.com/lattice-run/coderunner/pkg/orchestrator"
	"github.com/lattice-run/coderunner/pkg/queue"
	"github.com/lattice-run/coderunner/pkg/types"
	"github.com/lattice-run/coderunner/pkg/worker"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "coderunner",
	Short:   "coderunner - cloud-native code-execution control plane",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("coderunner version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(orchestratorCmd)
	rootCmd.AddCommand(workerCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var orchestratorCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Run orchestrator subcommands",
}

var orchestratorServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the submission API and drive worker autoscaling",
	RunE:  runOrchestratorServe,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run worker subcommands",
}

var workerRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Drain the job queue and execute submissions",
	RunE:  runWorkerRun,
}

func init() {
	orchestratorServeCmd.Flags().String("redis-host", envOr("REDIS_HOST", "localhost"), "Redis host")
	orchestratorServeCmd.Flags().String("redis-port", envOr("REDIS_PORT", "6379"), "Redis port")
	orchestratorServeCmd.Flags().String("listen-addr", ":8080", "HTTP listen address")
	orchestratorServeCmd.Flags().String("deployment-name", "coderunner-worker", "Worker Deployment name")
	orchestratorServeCmd.Flags().String("pod-selector", "app=coderunner-worker", "Worker pod label selector")
	orchestratorServeCmd.Flags().String("namespace", "default", "Kubernetes namespace")
	orchestratorServeCmd.Flags().String("kubeconfig", "", "Path to kubeconfig (used only when in-cluster config is unavailable)")
	orchestratorServeCmd.Flags().Int("min-pods", 1, "Minimum worker pods")
	orchestratorServeCmd.Flags().Int("max-pods", 10, "Maximum worker pods")
	orchestratorServeCmd.Flags().Int("jobs-per-pod", 5, "Target backlog-to-pod ratio")
	orchestratorServeCmd.Flags().Duration("check-interval", 15*time.Second, "Scaling reconcile interval")
	orchestratorServeCmd.Flags().Float64("cpu-high-watermark", 0.8, "CPU pressure watermark in cores/pod")
	orchestratorCmd.AddCommand(orchestratorServeCmd)

	workerRunCmd.Flags().String("redis-host", envOr("REDIS_HOST", "localhost"), "Redis host")
	workerRunCmd.Flags().String("redis-port", envOr("REDIS_PORT", "6379"), "Redis port")
	workerCmd.AddCommand(workerRunCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runOrchestratorServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisHost, _ := cmd.Flags().GetString("redis-host")
	redisPort, _ := cmd.Flags().GetString("redis-port")
	listenAddr, _ := cmd.Flags().GetString("listen-addr")
	namespace, _ := cmd.Flags().GetString("namespace")
	kubeconfig, _ := cmd.Flags().GetString("kubeconfig")
	minPods, _ := cmd.Flags().GetInt("min-pods")
	maxPods, _ := cmd.Flags().GetInt("max-pods")
	jobsPerPod, _ := cmd.Flags().GetInt("jobs-per-pod")
	checkInterval, _ := cmd.Flags().GetDuration("check-interval")
	cpuHighWatermark, _ := cmd.Flags().GetFloat64("cpu-high-watermark")
	deploymentName, _ := cmd.Flags().GetString("deployment-name")
	podSelector, _ := cmd.Flags().GetString("pod-selector")

	q, err := queue.NewRedisQueue(ctx, queue.RedisConfig{Addr: redisHost + ":" + redisPort})
	if err != nil {
		return fmt.Errorf("connecting to queue: %w", err)
	}

	k8sCluster, err := cluster.NewK8sCluster(kubeconfig, namespace)
	if err != nil {
		return fmt.Errorf("connecting to cluster: %w", err)
	}

	config := types.ScalingConfig{
		MinPods:          minPods,
		MaxPods:          maxPods,
		JobsPerPod:       jobsPerPod,
		CheckInterval:    checkInterval,
		CPUHighWatermark: cpuHighWatermark,
		DeploymentName:   deploymentName,
		PodSelector:      podSelector,
	}

	o := orchestrator.New(q, k8sCluster, config)
	o.StartScalingLoop(ctx)

	server := orchestrator.NewServer(o)
	httpServer := &http.Server{Addr: listenAddr, Handler: server}

	go func() {
		<-ctx.Done()
		log.Info("shutting down orchestrator")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		_ = o.Shutdown()
	}()

	log.WithComponent("orchestrator").Info().Str("addr", listenAddr).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}

	return nil
}

func runWorkerRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisHost, _ := cmd.Flags().GetString("redis-host")
	redisPort, _ := cmd.Flags().GetString("redis-port")

	q, err := queue.NewRedisQueue(ctx, queue.RedisConfig{Addr: redisHost + ":" + redisPort})
	if err != nil {
		return fmt.Errorf("connecting to queue: %w", err)
	}
	defer q.Close()

	w := worker.New(q)
	w.Run(ctx)

	return nil
}
