package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"pipeliner/internal/pipeline"
)

func TestLocalRunCommand(t *testing.T) {
	t.Parallel()

	l := NewLocal(0)
	res, err := l.RunCommand(context.Background(), pipeline.Command{
		Script: "echo hello",
		Dir:    t.TempDir(),
	})
	if err != nil {
		t.Fatalf("RunCommand failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Errorf("expected output to contain hello, got %q", res.Output)
	}
}

func TestLocalRunCommand_ExitCode(t *testing.T) {
	t.Parallel()

	l := NewLocal(0)
	res, err := l.RunCommand(context.Background(), pipeline.Command{Script: "exit 3"})
	if err != nil {
		t.Fatalf("RunCommand failed: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("expected exit 3, got %d", res.ExitCode)
	}
}

func TestLocalRunCommand_Env(t *testing.T) {
	t.Parallel()

	l := NewLocal(0)
	res, err := l.RunCommand(context.Background(), pipeline.Command{
		Script: "echo $GREETING",
		Env:    []string{"PATH=/usr/bin:/bin", "GREETING=hi"},
	})
	if err != nil {
		t.Fatalf("RunCommand failed: %v", err)
	}
	if !strings.Contains(res.Output, "hi") {
		t.Errorf("expected output to contain hi, got %q", res.Output)
	}
}

func TestLocalRunCommand_Timeout(t *testing.T) {
	t.Parallel()

	l := NewLocal(0)
	start := time.Now()
	res, err := l.RunCommand(context.Background(), pipeline.Command{
		Script:  "sleep 10",
		Timeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("RunCommand failed: %v", err)
	}
	if res.ExitCode == 0 {
		t.Error("expected non-zero exit for timed out command")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

type stubExecutor struct {
	name string
	last *pipeline.Command
}

func (s *stubExecutor) RunCommand(_ context.Context, cmd pipeline.Command) (*pipeline.CommandResult, error) {
	s.last = &cmd
	return &pipeline.CommandResult{ExitCode: 0, Output: s.name}, nil
}
func (s *stubExecutor) Ready(context.Context) error { return nil }
func (s *stubExecutor) Close() error                { return nil }

func TestSelector(t *testing.T) {
	t.Parallel()

	host := &stubExecutor{name: "host"}
	docker := &stubExecutor{name: "docker"}
	sel := &Selector{Host: host, Container: docker}

	res, err := sel.RunCommand(context.Background(), pipeline.Command{Script: "true"})
	if err != nil {
		t.Fatalf("RunCommand failed: %v", err)
	}
	if res.Output != "host" {
		t.Errorf("expected host backend, got %q", res.Output)
	}

	res, err = sel.RunCommand(context.Background(), pipeline.Command{Script: "true", Image: "alpine"})
	if err != nil {
		t.Fatalf("RunCommand failed: %v", err)
	}
	if res.Output != "docker" {
		t.Errorf("expected docker backend, got %q", res.Output)
	}
}

func TestSelector_NoContainerBackend(t *testing.T) {
	t.Parallel()

	host := &stubExecutor{name: "host"}
	sel := &Selector{Host: host}

	res, err := sel.RunCommand(context.Background(), pipeline.Command{Script: "true", Image: "alpine"})
	if err != nil {
		t.Fatalf("RunCommand failed: %v", err)
	}
	if res.Output != "host" {
		t.Errorf("expected fallthrough to host backend, got %q", res.Output)
	}
}
