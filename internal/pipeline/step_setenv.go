package pipeline

import (
	"context"
	"os"
)

// SetenvStep assigns a job-scoped environment variable. The assignment is
// visible to subsequent steps of the same job only; jobs never share
// environment. $VAR references in the value are expanded against the
// job's current environment, so prepending to PATH works as expected.
type SetenvStep struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Value string    `json:"value"`
	If    Condition `json:"if,omitempty"`
}

func (s *SetenvStep) StepID() string   { return s.ID }
func (s *SetenvStep) StepType() string { return "setenv" }

func (s *SetenvStep) Condition() Condition {
	if s.If == "" {
		return OnSuccess
	}
	return s.If
}

// Execute mutates the job-scoped environment. It cannot fail.
func (s *SetenvStep) Execute(ctx context.Context, ec *ExecContext) *StepResult {
	if ec.Env == nil {
		ec.Env = make(map[string]string)
	}
	ec.Env[s.Name] = os.Expand(s.Value, func(key string) string {
		return ec.Env[key]
	})
	return success("")
}
