// Package executor runs pipeline step commands, either directly on the
// host or inside Docker containers.
package executor

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"pipeliner/internal/pipeline"
)

// Executor is a command backend with lifecycle and readiness hooks.
type Executor interface {
	pipeline.CommandRunner
	Ready(ctx context.Context) error
	Close() error
}

// DefaultCommandTimeout bounds a command when the step declares none.
const DefaultCommandTimeout = 15 * time.Minute

// Local runs commands through the host shell.
type Local struct {
	defaultTimeout time.Duration
}

// NewLocal creates a host shell executor. A non-positive timeout falls
// back to DefaultCommandTimeout.
func NewLocal(defaultTimeout time.Duration) *Local {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultCommandTimeout
	}
	return &Local{defaultTimeout: defaultTimeout}
}

// RunCommand executes the script with sh -c and returns its exit code
// and combined output. A timeout or kill surfaces as exit code -1.
func (l *Local) RunCommand(ctx context.Context, cmd pipeline.Command) (*pipeline.CommandResult, error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = l.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(runCtx, "sh", "-c", cmd.Script)
	c.Dir = cmd.Dir
	c.Env = cmd.Env

	output, err := c.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &pipeline.CommandResult{ExitCode: exitErr.ExitCode(), Output: string(output)}, nil
		}
		if runCtx.Err() != nil {
			return &pipeline.CommandResult{ExitCode: -1, Output: string(output)}, nil
		}
		return nil, err
	}

	return &pipeline.CommandResult{ExitCode: 0, Output: string(output)}, nil
}

// Ready always succeeds for the host shell.
func (l *Local) Ready(ctx context.Context) error { return nil }

// Close is a no-op for the host shell.
func (l *Local) Close() error { return nil }

// Selector routes commands to the container backend when the command
// names an image, and to the host backend otherwise.
type Selector struct {
	Host      Executor
	Container Executor // nil when Docker is disabled
}

// RunCommand dispatches to the matching backend.
func (s *Selector) RunCommand(ctx context.Context, cmd pipeline.Command) (*pipeline.CommandResult, error) {
	if cmd.Image != "" && s.Container != nil {
		return s.Container.RunCommand(ctx, cmd)
	}
	return s.Host.RunCommand(ctx, cmd)
}

// Ready checks every configured backend.
func (s *Selector) Ready(ctx context.Context) error {
	if err := s.Host.Ready(ctx); err != nil {
		return err
	}
	if s.Container != nil {
		return s.Container.Ready(ctx)
	}
	return nil
}

// Close closes every configured backend.
func (s *Selector) Close() error {
	err := s.Host.Close()
	if s.Container != nil {
		if cerr := s.Container.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
