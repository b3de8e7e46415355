// Package types holds the data model shared by the queue, executor,
// worker, and orchestrator: job and result descriptors, language
// recipes, and scaling configuration.
package types

import (
	"errors"
	"time"
)

// Sentinel errors compared against by orchestrator and executor callers.
var (
	// ErrQueueUnavailable is returned by the orchestrator when the queue
	// connection is not healthy at submission time.
	ErrQueueUnavailable = errors.New("queue unavailable")

	// ErrUnknownLanguage is returned by recipes.Lookup when a job's
	// language_id has no entry in the recipe registry; the executor
	// turns it into a Result with status "error".
	ErrUnknownLanguage = errors.New("unknown language_id")
)

// Status is the fixed result taxonomy a Result is classified into.
type Status string

const (
	StatusCompleted          Status = "completed"
	StatusCompilationError   Status = "compilation_error"
	StatusRuntimeError       Status = "runtime_error"
	StatusTimeout            Status = "timeout"
	StatusMemoryLimitExceeded Status = "memory_limit_exceeded"
	StatusError              Status = "error"
)

// Process exit codes the executor maps into the status taxonomy.
const (
	ExitTimeout = 124
	ExitOOM     = 137
)

// Default resource bounds applied when a job doesn't set them.
const (
	DefaultMemoryLimitMB = 512
	CompileTimeout       = 30 * time.Second
)

// JobInput is what a submitter posts; SubmitBatch turns each element
// into a Job by assigning a token.
type JobInput struct {
	SourceCode     string `json:"source_code"`
	LanguageID     int    `json:"language_id"`
	ProblemID      string `json:"problem_id"`
	CallbackURL    string `json:"callback_url,omitempty"`
	TimeoutMS      int    `json:"timeout_ms,omitempty"`
	MemoryLimitMB  int    `json:"memory_limit_mb,omitempty"`
	ExpectedOutput string `json:"expected_output,omitempty"`
}

// Validate checks the fields required by spec.md §3: language_id,
// source_code, and problem_id are mandatory; everything else is
// optional and defaulted by the executor.
func (j *JobInput) Validate() error {
	if j.SourceCode == "" {
		return errors.New("source_code is required")
	}
	if j.ProblemID == "" {
		return errors.New("problem_id is required")
	}
	if j.LanguageID == 0 {
		return errors.New("language_id is required")
	}
	return nil
}

// Job is the serialized value pushed onto the queue. Token is the
// correlation key for the eventual webhook callback.
type Job struct {
	Token          string `json:"token"`
	SourceCode     string `json:"source_code"`
	LanguageID     int    `json:"language_id"`
	ProblemID      string `json:"problem_id"`
	CallbackURL    string `json:"callback_url,omitempty"`
	TimeoutMS      int    `json:"timeout_ms,omitempty"`
	MemoryLimitMB  int    `json:"memory_limit_mb,omitempty"`
	ExpectedOutput string `json:"expected_output,omitempty"`
}

// NewJob merges a fresh token into a validated JobInput.
func NewJob(token string, in JobInput) *Job {
	return &Job{
		Token:          token,
		SourceCode:     in.SourceCode,
		LanguageID:     in.LanguageID,
		ProblemID:      in.ProblemID,
		CallbackURL:    in.CallbackURL,
		TimeoutMS:      in.TimeoutMS,
		MemoryLimitMB:  in.MemoryLimitMB,
		ExpectedOutput: in.ExpectedOutput,
	}
}

// Result is the terminal descriptor for a job. The webhook body is
// built from it by pkg/worker, which renames execution_time_ms to
// execution_time.
type Result struct {
	Token           string  `json:"token"`
	Status          Status  `json:"status"`
	Stdout          string  `json:"stdout"`
	Stderr          string  `json:"stderr"`
	ExecutionTimeMS float64 `json:"execution_time_ms,omitempty"`
	ExitCode        int     `json:"exit_code"`
}

// RecipeKind distinguishes interpreted languages (no compile phase)
// from compiled ones, per spec.md §9's tagged-variant design note.
type RecipeKind string

const (
	RecipeInterpreted RecipeKind = "interpreted"
	RecipeCompiled    RecipeKind = "compiled"
)

// Recipe is the static, per-language_id tuple the executor looks up.
// CompileCmd and RunCmd are templates over a source file path rooted at
// the job's private workspace directory; RunCmd is invoked from that
// same directory so compiled recipes can reference a relative binary.
type Recipe struct {
	Kind           RecipeKind
	Name           string
	Extension      string
	CompileCmd     func(dir, sourcePath string) []string
	RunCmd         func(dir string) []string
	DefaultTimeout time.Duration
}

// ScalingConfig holds the orchestrator's autoscaling knobs (spec.md §3).
type ScalingConfig struct {
	MinPods          int
	MaxPods          int
	JobsPerPod       int
	CheckInterval    time.Duration
	CPUHighWatermark float64
	DeploymentName   string
	PodSelector      string
}

// DefaultScalingConfig mirrors the values spec.md's worked example uses.
func DefaultScalingConfig() ScalingConfig {
	return ScalingConfig{
		MinPods:          1,
		MaxPods:          10,
		JobsPerPod:       5,
		CheckInterval:    15 * time.Second,
		CPUHighWatermark: 0.8,
		DeploymentName:   "coderunner-worker",
		PodSelector:      "app=coderunner-worker",
	}
}

// PodCPU is one pod's observed CPU usage, as read from the cluster
// collaborator's metrics surface.
type PodCPU struct {
	Name string
	CPU  string // raw cgroup-style string: suffix n/u/m or none
}

// QueueStatus is the orchestrator's queue_status() response.
type QueueStatus struct {
	Queued      int       `json:"queued"`
	WorkerCount int       `json:"worker_count"`
	AvgCPU      float64   `json:"avg_cpu,omitempty"`
	SampledAt   time.Time `json:"sampled_at"`
}
