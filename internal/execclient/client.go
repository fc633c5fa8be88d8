// Package execclient defines the consumed Executor.run capability: running
// a code artifact against a dataset/context under a deadline and returning
// stdout/stderr. A real sandbox is out of scope here; this package only
// defines the interface and a local, unsandboxed reference implementation
// suitable for tests and demonstrations, modeled on
// pkg/executor/executor.go's Executor.Execute(ctx, config, input)
// contract.
package execclient

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/smilemakc/mbflow-inference/internal/domain"
)

// Result is what one Executor.run call returns.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Executor is the capability the Control Loop invokes to run a CodeArtifact.
type Executor interface {
	Run(ctx context.Context, code string, timeout time.Duration) (Result, error)
}

// LocalPythonExecutor runs artifacts with the system `python3` interpreter
// and no sandboxing. It exists so the rest of the module has a concrete,
// runnable Executor to exercise in tests and examples; a production
// deployment is expected to substitute a real sandboxed implementation
// behind the same interface.
type LocalPythonExecutor struct {
	Interpreter string // defaults to "python3"
}

// NewLocalPythonExecutor returns a LocalPythonExecutor using python3.
func NewLocalPythonExecutor() *LocalPythonExecutor {
	return &LocalPythonExecutor{Interpreter: "python3"}
}

// Run executes code as a script under the given timeout.
func (e *LocalPythonExecutor) Run(ctx context.Context, code string, timeout time.Duration) (Result, error) {
	interpreter := e.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, interpreter, "-c", code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return result, domain.ErrExecutorTimeout
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, domain.ErrExecutorFailed
		}
		return result, domain.ErrExecutorFailed
	}
	return result, nil
}
