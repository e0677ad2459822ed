package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeliner/internal/apperrors"
)

func validPipeline() *Pipeline {
	return &Pipeline{
		Name: "deploy",
		Jobs: []*Job{
			{
				ID: "build",
				Steps: []Step{
					&RunStep{ID: "compile", Run: "make build"},
				},
			},
			{
				ID:    "release",
				Needs: []string{"build"},
				Steps: []Step{
					&RunStep{ID: "push", Run: "make release"},
					&UploadStep{ID: "logs", Path: "release.log", URL: "https://artifacts.example.com/r.log", If: OnFailure},
				},
			},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, Validate(validPipeline()))
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(p *Pipeline)
		contains string
	}{
		{
			name:     "missing name",
			mutate:   func(p *Pipeline) { p.Name = "" },
			contains: "name is required",
		},
		{
			name:     "bad name",
			mutate:   func(p *Pipeline) { p.Name = "deploy pipeline!" },
			contains: "invalid pipeline name",
		},
		{
			name:     "no jobs",
			mutate:   func(p *Pipeline) { p.Jobs = nil },
			contains: "at least one job",
		},
		{
			name:     "duplicate job id",
			mutate:   func(p *Pipeline) { p.Jobs[1].ID = "build"; p.Jobs[1].Needs = nil },
			contains: "duplicate id",
		},
		{
			name:     "unknown dependency",
			mutate:   func(p *Pipeline) { p.Jobs[1].Needs = []string{"test"} },
			contains: "unknown dependency",
		},
		{
			name:     "self dependency",
			mutate:   func(p *Pipeline) { p.Jobs[0].Needs = []string{"build"} },
			contains: "cannot depend on itself",
		},
		{
			name:     "bad job condition",
			mutate:   func(p *Pipeline) { p.Jobs[1].If = "whenever" },
			contains: "unknown condition",
		},
		{
			name:     "job without steps",
			mutate:   func(p *Pipeline) { p.Jobs[0].Steps = nil },
			contains: "at least one step",
		},
		{
			name:     "step without id",
			mutate:   func(p *Pipeline) { p.Jobs[0].Steps[0].(*RunStep).ID = "" },
			contains: "id is required",
		},
		{
			name:     "run step without script",
			mutate:   func(p *Pipeline) { p.Jobs[0].Steps[0].(*RunStep).Run = "" },
			contains: "run script is required",
		},
		{
			name:     "negative timeout",
			mutate:   func(p *Pipeline) { p.Jobs[0].Steps[0].(*RunStep).TimeoutSeconds = -1 },
			contains: "timeout must not be negative",
		},
		{
			name:     "upload absolute path",
			mutate:   func(p *Pipeline) { p.Jobs[1].Steps[1].(*UploadStep).Path = "/etc/passwd" },
			contains: "must be relative",
		},
		{
			name:     "upload path traversal",
			mutate:   func(p *Pipeline) { p.Jobs[1].Steps[1].(*UploadStep).Path = "../secrets" },
			contains: "path traversal",
		},
		{
			name:     "upload bad scheme",
			mutate:   func(p *Pipeline) { p.Jobs[1].Steps[1].(*UploadStep).URL = "ftp://host/x" },
			contains: "scheme must be http or https",
		},
		{
			name:     "bad schedule",
			mutate:   func(p *Pipeline) { p.On.Schedule = "every 5 minutes" },
			contains: "invalid cron expression",
		},
		{
			name:     "notify without url",
			mutate:   func(p *Pipeline) { p.Notify = &Notify{} },
			contains: "notify url is required",
		},
		{
			name:     "notify unknown event",
			mutate:   func(p *Pipeline) { p.Notify = &Notify{URL: "https://h.example.com", Events: []string{"run.step"}} },
			contains: "unknown event type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := validPipeline()
			tt.mutate(p)

			err := Validate(p)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.True(t, errors.Is(err, apperrors.ErrValidation))
		})
	}
}

func TestValidate_ValidCheckoutAndSetenv(t *testing.T) {
	t.Parallel()

	p := &Pipeline{
		Name: "ci",
		On:   Triggers{Schedule: "*/15 * * * *"},
		Jobs: []*Job{
			{
				ID: "prep",
				Steps: []Step{
					&CheckoutStep{ID: "clone", Repo: "https://git.example.com/app.git", Path: "src"},
					&SetenvStep{ID: "mode", Name: "MODE", Value: "ci"},
				},
			},
		},
	}
	require.NoError(t, Validate(p))
}
