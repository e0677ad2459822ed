package pipeline

import (
	"context"
	"fmt"
	"time"
)

// RunStep executes a shell command through the job's command runner.
// A non-zero exit code marks the step (and therefore the job) as failed.
type RunStep struct {
	ID             string    `json:"id"`
	Run            string    `json:"run"`
	If             Condition `json:"if,omitempty"`
	TimeoutSeconds int       `json:"timeoutSeconds,omitempty"`
}

func (s *RunStep) StepID() string   { return s.ID }
func (s *RunStep) StepType() string { return "run" }

func (s *RunStep) Condition() Condition {
	if s.If == "" {
		return OnSuccess
	}
	return s.If
}

// Execute runs the command and maps its exit status to a step result.
func (s *RunStep) Execute(ctx context.Context, ec *ExecContext) *StepResult {
	if ec.Runner == nil {
		return failure("", fmt.Errorf("no command runner configured"))
	}

	res, err := ec.Runner.RunCommand(ctx, Command{
		Script:  s.Run,
		Dir:     ec.Workdir,
		Env:     ec.Environ(),
		Image:   ec.Image,
		Timeout: time.Duration(s.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return failure("", fmt.Errorf("command failed to start: %w", err))
	}
	if res.ExitCode != 0 {
		return failure(res.Output, fmt.Errorf("command exited with code %d", res.ExitCode))
	}
	return success(res.Output)
}
