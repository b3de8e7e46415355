// Package executor turns one job descriptor into one result descriptor:
// it owns a private temp workspace, runs the recipe's optional compile
// step and bounded execute step, classifies the outcome into the fixed
// result taxonomy, and always cleans up — whether or not the job
// succeeded.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/lattice-run/coderunner/pkg/log"
	"github.com/lattice-run/coderunner/pkg/metrics"
	"github.com/lattice-run/coderunner/pkg/recipes"
	"github.com/lattice-run/coderunner/pkg/types"
)

// memoryPollInterval is how often the execute phase samples the child's
// RSS against the job's memory_limit_mb.
const memoryPollInterval = 25 * time.Millisecond

// Executor runs jobs to completion against the local filesystem and
// process table. It is stateless; one instance can serve many jobs
// concurrently, each in its own temp directory.
type Executor struct {
	// WorkDir is the parent directory temp workspaces are created
	// under. Empty uses os.TempDir().
	WorkDir string
}

// New returns an Executor rooted at the default temp directory.
func New() *Executor {
	return &Executor{}
}

// Execute runs job per spec.md §4.3's state machine and always returns
// a Result; it has no error return. Every failure, including internal
// ones such as a temp workspace that cannot be created, is encoded in
// the Result's status.
func (e *Executor) Execute(ctx context.Context, job *types.Job) *types.Result {
	logger := log.WithJob(job)

	recipe, err := recipes.Lookup(job.LanguageID)
	if err != nil {
		logger.Warn().Msg("unsupported language_id")
		return &types.Result{
			Token:    job.Token,
			Status:   types.StatusError,
			Stderr:   fmt.Sprintf("Unsupported language_id: %d", job.LanguageID),
			ExitCode: 1,
		}
	}

	dir, err := os.MkdirTemp(e.WorkDir, "coderunner-job-*")
	if err != nil {
		logger.Error().Err(err).Msg("creating temp workspace failed")
		return &types.Result{
			Token:    job.Token,
			Status:   types.StatusError,
			Stderr:   fmt.Sprintf("internal error: %v", err),
			ExitCode: 1,
		}
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn().Err(rmErr).Str("dir", dir).Msg("temp workspace cleanup failed")
		}
	}()

	sourcePath := filepath.Join(dir, recipes.SourceFileName(recipe))
	if err := os.WriteFile(sourcePath, []byte(job.SourceCode), 0o644); err != nil {
		logger.Error().Err(err).Msg("writing source file failed")
		return &types.Result{
			Token:    job.Token,
			Status:   types.StatusError,
			Stderr:   fmt.Sprintf("internal error: %v", err),
			ExitCode: 1,
		}
	}

	if recipe.Kind == types.RecipeCompiled {
		if result := e.compile(ctx, job, recipe, dir, sourcePath); result != nil {
			return result
		}
	}

	return e.run(ctx, job, recipe, dir)
}

// compile runs the recipe's compile command under a fixed 30s cap. It
// returns a non-nil Result only on failure (compilation_error); nil
// means the caller should proceed to the execute phase.
func (e *Executor) compile(ctx context.Context, job *types.Job, recipe types.Recipe, dir, sourcePath string) *types.Result {
	logger := log.WithJob(job)

	compileCtx, cancel := context.WithTimeout(ctx, types.CompileTimeout)
	defer cancel()

	args := recipe.CompileCmd(dir, sourcePath)
	cmd := exec.CommandContext(compileCtx, args[0], args[1:]...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	timer := metrics.NewTimer()
	_ = cmd.Run()
	elapsed := timer.Duration()
	metrics.CompileDuration.Observe(elapsed.Seconds())

	// stderr non-empty is treated as failure even on exit 0 — compilers
	// routinely emit warnings on a clean exit, and §9's open question
	// preserves this observable behavior rather than keying on exit code.
	if stderr.Len() > 0 {
		logger.Info().Str("stage", "compile").Msg("compilation produced stderr, treated as failure")
		return &types.Result{
			Token:           job.Token,
			Status:          types.StatusCompilationError,
			Stderr:          stderr.String(),
			ExecutionTimeMS: roundMS(elapsed),
			ExitCode:        1,
		}
	}

	return nil
}

// run executes the recipe's run command under the job's timeout and
// memory bounds and classifies the outcome.
func (e *Executor) run(ctx context.Context, job *types.Job, recipe types.Recipe, dir string) *types.Result {
	logger := log.WithJob(job)

	timeoutMS := job.TimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = int(recipe.DefaultTimeout / time.Millisecond)
	}

	memoryLimitMB := job.MemoryLimitMB
	if memoryLimitMB <= 0 {
		memoryLimitMB = types.DefaultMemoryLimitMB
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
	defer cancel()

	args := recipe.RunCmd(dir)
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	timer := metrics.NewTimer()

	if err := cmd.Start(); err != nil {
		logger.Error().Err(err).Msg("starting job process failed")
		return &types.Result{
			Token:    job.Token,
			Status:   types.StatusError,
			Stderr:   fmt.Sprintf("internal error: %v", err),
			ExitCode: 1,
		}
	}

	oomKilled := watchMemory(cmd, memoryLimitMB)

	waitErr := cmd.Wait()
	elapsed := timer.Duration()
	metrics.ExecuteDuration.Observe(elapsed.Seconds())

	switch {
	case oomKilled():
		logger.Info().Msg("job killed for exceeding memory_limit_mb")
		return &types.Result{
			Token:           job.Token,
			Status:          types.StatusMemoryLimitExceeded,
			Stdout:          stdout.String(),
			Stderr:          stderr.String(),
			ExecutionTimeMS: roundMS(elapsed),
			ExitCode:        types.ExitOOM,
		}

	case runCtx.Err() == context.DeadlineExceeded:
		logger.Info().Msg("job killed for exceeding timeout_ms")
		return &types.Result{
			Token:           job.Token,
			Status:          types.StatusTimeout,
			Stderr:          "Execution timed out",
			ExecutionTimeMS: float64(timeoutMS),
			ExitCode:        types.ExitTimeout,
		}

	case waitErr == nil:
		return &types.Result{
			Token:           job.Token,
			Status:          types.StatusCompleted,
			Stdout:          stdout.String(),
			Stderr:          stderr.String(),
			ExecutionTimeMS: roundMS(elapsed),
			ExitCode:        0,
		}

	default:
		exitCode := 1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return &types.Result{
			Token:           job.Token,
			Status:          types.StatusRuntimeError,
			Stdout:          stdout.String(),
			Stderr:          stderr.String(),
			ExecutionTimeMS: roundMS(elapsed),
			ExitCode:        exitCode,
		}
	}
}

// watchMemory polls the running command's resident set size and kills
// it if it exceeds limitMB. It returns a function reporting whether
// that kill happened, safe to call after cmd.Wait() returns.
func watchMemory(cmd *exec.Cmd, limitMB int) func() bool {
	done := make(chan struct{})
	killed := make(chan struct{})

	go func() {
		ticker := time.NewTicker(memoryPollInterval)
		defer ticker.Stop()

		limitKB := int64(limitMB) * 1024

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if cmd.Process == nil {
					continue
				}
				rssKB, err := residentSetKB(cmd.Process.Pid)
				if err != nil {
					continue
				}
				if rssKB > limitKB {
					_ = cmd.Process.Kill()
					close(killed)
					return
				}
			}
		}
	}()

	var reported bool
	return func() bool {
		select {
		case <-done:
		default:
			close(done)
		}
		select {
		case <-killed:
			reported = true
		default:
		}
		return reported
	}
}

func roundMS(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*100) / 100
}
