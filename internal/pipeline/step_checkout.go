package pipeline

import (
	"context"
	"fmt"
	"time"
)

// checkoutTimeout bounds a single clone/fetch.
const checkoutTimeout = 10 * time.Minute

// CheckoutStep clones a git repository into the run workspace.
// Like any other step it is an opaque external call: git's exit
// status decides success or failure.
type CheckoutStep struct {
	ID   string    `json:"id"`
	Repo string    `json:"repo"`
	Ref  string    `json:"ref,omitempty"`  // branch, tag or commit; empty uses the remote default
	Path string    `json:"path,omitempty"` // target directory relative to the workspace, default "."
	If   Condition `json:"if,omitempty"`
}

func (s *CheckoutStep) StepID() string   { return s.ID }
func (s *CheckoutStep) StepType() string { return "checkout" }

func (s *CheckoutStep) Condition() Condition {
	if s.If == "" {
		return OnSuccess
	}
	return s.If
}

// Execute clones the repository. Checkouts always run on the host so the
// sources land in the shared workspace even for containerized jobs.
func (s *CheckoutStep) Execute(ctx context.Context, ec *ExecContext) *StepResult {
	if ec.Runner == nil {
		return failure("", fmt.Errorf("no command runner configured"))
	}

	dest := s.Path
	if dest == "" {
		dest = "."
	}

	script := fmt.Sprintf("git clone %q %q", s.Repo, dest)
	if s.Ref != "" {
		script = fmt.Sprintf("%s && git -C %q checkout --detach %q", script, dest, s.Ref)
	}

	res, err := ec.Runner.RunCommand(ctx, Command{
		Script:  script,
		Dir:     ec.Workdir,
		Env:     ec.Environ(),
		Timeout: checkoutTimeout,
	})
	if err != nil {
		return failure("", fmt.Errorf("checkout failed to start: %w", err))
	}
	if res.ExitCode != 0 {
		return failure(res.Output, fmt.Errorf("checkout of %s exited with code %d", s.Repo, res.ExitCode))
	}
	return success(res.Output)
}
