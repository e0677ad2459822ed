package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// Step is the interface for all step kinds. A step is a single opaque
// external action inside a job: it either succeeds or fails, and the
// engine consumes nothing from it beyond that status and its output.
type Step interface {
	StepID() string
	StepType() string
	Condition() Condition
	Execute(ctx context.Context, ec *ExecContext) *StepResult
}

// StepResult represents the outcome of executing a step.
type StepResult struct {
	Status Result
	Output string // captured command output, if any
	Error  error
}

// Command is a shell command to be executed by a CommandRunner.
type Command struct {
	Script  string        // passed to sh -c (or the container entrypoint shell)
	Dir     string        // host working directory
	Env     []string      // full environment in KEY=VALUE form
	Image   string        // container image; empty means run on the host
	Timeout time.Duration // zero means the runner's default
}

// CommandResult holds the exit status and combined output of a command.
type CommandResult struct {
	ExitCode int
	Output   string
}

// CommandRunner executes commands on behalf of run/checkout steps.
// Implemented by the executor package (local shell and Docker).
type CommandRunner interface {
	RunCommand(ctx context.Context, cmd Command) (*CommandResult, error)
}

// ExecContext is the job-scoped state a step sees at execution time.
// Env is shared across the steps of one job: setenv steps mutate it and
// later steps observe the change. It is never shared across jobs.
type ExecContext struct {
	Workdir       string            // per-run workspace directory on the host
	Image         string            // container image for run steps, if the job declares one
	Env           map[string]string // job-scoped environment
	PriorFailure  bool              // whether an earlier step in this job failed
	Runner        CommandRunner
	HTTPClient    *http.Client // used by upload steps
	UploadRetries int
}

// Environ renders the job-scoped environment as KEY=VALUE pairs in a
// stable order.
func (ec *ExecContext) Environ() []string {
	keys := make([]string, 0, len(ec.Env))
	for k := range ec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, ec.Env[k]))
	}
	return env
}

func success(output string) *StepResult {
	return &StepResult{Status: ResultSuccess, Output: output}
}

func failure(output string, err error) *StepResult {
	return &StepResult{Status: ResultFailure, Output: output, Error: err}
}
