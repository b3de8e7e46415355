package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-run/coderunner/pkg/types"
)

func TestExecute_PythonPrint(t *testing.T) {
	skipIfMissing(t, "python3")

	exec := New()
	job := types.NewJob(uuid.NewString(), types.JobInput{
		SourceCode: "print('Hello, World!')",
		LanguageID: 71,
		ProblemID:  "p1",
	})

	result := exec.Execute(context.Background(), job)

	require.NotNil(t, result)
	assert.Equal(t, job.Token, result.Token)
	assert.Equal(t, types.StatusCompleted, result.Status)
	assert.Equal(t, "Hello, World!\n", result.Stdout)
	assert.Empty(t, result.Stderr)
	assert.Equal(t, 0, result.ExitCode)
}

func TestExecute_PythonTimeout(t *testing.T) {
	skipIfMissing(t, "python3")

	exec := New()
	job := types.NewJob(uuid.NewString(), types.JobInput{
		SourceCode: "while True: pass",
		LanguageID: 71,
		ProblemID:  "p2",
		TimeoutMS:  300,
	})

	result := exec.Execute(context.Background(), job)

	require.NotNil(t, result)
	assert.Equal(t, types.StatusTimeout, result.Status)
	assert.Equal(t, types.ExitTimeout, result.ExitCode)
}

func TestExecute_CCompileFailure(t *testing.T) {
	skipIfMissing(t, "gcc")

	exec := New()
	job := types.NewJob(uuid.NewString(), types.JobInput{
		SourceCode: "int main(){return}",
		LanguageID: 50,
		ProblemID:  "p3",
	})

	result := exec.Execute(context.Background(), job)

	require.NotNil(t, result)
	assert.Equal(t, types.StatusCompilationError, result.Status)
	assert.NotEmpty(t, result.Stderr)
	assert.Equal(t, 1, result.ExitCode)
}

func TestExecute_UnknownLanguageCreatesNoTempDir(t *testing.T) {
	exec := New()
	tmp := t.TempDir()
	exec.WorkDir = tmp

	job := types.NewJob(uuid.NewString(), types.JobInput{
		SourceCode: "x",
		LanguageID: 9999,
		ProblemID:  "p5",
	})

	result := exec.Execute(context.Background(), job)

	require.NotNil(t, result)
	assert.Equal(t, types.StatusError, result.Status)
	assert.Contains(t, result.Stderr, "Unsupported language_id: 9999")
	assert.Equal(t, 1, result.ExitCode)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp workspace should be created for an unknown language")
}

func TestExecute_CleansUpTempDirOnSuccess(t *testing.T) {
	skipIfMissing(t, "python3")

	exec := New()
	tmp := t.TempDir()
	exec.WorkDir = tmp

	job := types.NewJob(uuid.NewString(), types.JobInput{
		SourceCode: "print('ok')",
		LanguageID: 71,
		ProblemID:  "p1",
	})

	result := exec.Execute(context.Background(), job)
	require.NotNil(t, result)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "the workspace directory must not survive past Execute")
}

func TestExecute_MemoryLimitExceeded(t *testing.T) {
	skipIfMissing(t, "python3")

	exec := New()
	job := types.NewJob(uuid.NewString(), types.JobInput{
		SourceCode: "chunks = []\nwhile True:\n    chunks.append(bytearray(10 * 1024 * 1024))\n",
		LanguageID: 71,
		ProblemID:  "p7",
		TimeoutMS:  5000,
		// Well above a bare python3 interpreter's baseline RSS but far
		// below what the allocation loop reaches within a few polls.
		MemoryLimitMB: 40,
	})

	result := exec.Execute(context.Background(), job)

	require.NotNil(t, result)
	assert.Equal(t, types.StatusMemoryLimitExceeded, result.Status)
	assert.Equal(t, types.ExitOOM, result.ExitCode)
}

func TestExecute_RuntimeError(t *testing.T) {
	skipIfMissing(t, "python3")

	exec := New()
	job := types.NewJob(uuid.NewString(), types.JobInput{
		SourceCode: "import sys\nsys.exit(3)",
		LanguageID: 71,
		ProblemID:  "p6",
	})

	result := exec.Execute(context.Background(), job)

	require.NotNil(t, result)
	assert.Equal(t, types.StatusRuntimeError, result.Status)
	assert.Equal(t, 3, result.ExitCode)
}

func skipIfMissing(t *testing.T, bin string) {
	t.Helper()
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if _, err := os.Stat(filepath.Join(dir, bin)); err == nil {
			return
		}
	}
	t.Skipf("%s not available on PATH", bin)
}
