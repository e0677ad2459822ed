package pipeline

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"

	"pipeliner/internal/apperrors"
)

const (
	maxJobs         = 100
	maxStepsPerJob  = 100
	maxScriptLength = 64 * 1024
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Validate checks a pipeline definition for structural errors. Dependency
// cycles are detected separately when the job graph is built.
func Validate(p *Pipeline) error {
	if p.Name == "" {
		return apperrors.Validation("name", "pipeline name is required")
	}
	if !idPattern.MatchString(p.Name) {
		return apperrors.Validation("name", fmt.Sprintf("invalid pipeline name %q", p.Name))
	}

	if p.On.Schedule != "" {
		if _, err := cron.ParseStandard(p.On.Schedule); err != nil {
			return apperrors.Validation("on.schedule", fmt.Sprintf("invalid cron expression: %v", err))
		}
	}

	if p.Notify != nil {
		if err := validateNotify(p.Notify); err != nil {
			return err
		}
	}

	if len(p.Jobs) == 0 {
		return apperrors.Validation("jobs", "at least one job is required")
	}
	if len(p.Jobs) > maxJobs {
		return apperrors.Validation("jobs", fmt.Sprintf("too many jobs (max %d)", maxJobs))
	}

	seen := make(map[string]bool, len(p.Jobs))
	for i, job := range p.Jobs {
		field := fmt.Sprintf("jobs[%d]", i)

		if job.ID == "" {
			return apperrors.Validation(field+".id", fmt.Sprintf("job[%d]: id is required", i))
		}
		if !idPattern.MatchString(job.ID) {
			return apperrors.Validation(field+".id", fmt.Sprintf("job[%d]: invalid id %q", i, job.ID))
		}
		if seen[job.ID] {
			return apperrors.Validation(field+".id", fmt.Sprintf("job[%d]: duplicate id %q", i, job.ID))
		}
		seen[job.ID] = true

		if job.If != "" {
			if _, err := ParseCondition(string(job.If)); err != nil {
				return apperrors.Validation(field+".if", fmt.Sprintf("job %q: %v", job.ID, err))
			}
		}

		if len(job.Steps) == 0 {
			return apperrors.Validation(field+".steps", fmt.Sprintf("job %q: at least one step is required", job.ID))
		}
		if len(job.Steps) > maxStepsPerJob {
			return apperrors.Validation(field+".steps", fmt.Sprintf("job %q: too many steps (max %d)", job.ID, maxStepsPerJob))
		}

		for j, step := range job.Steps {
			if err := validateStep(job.ID, j, step); err != nil {
				return err
			}
		}
	}

	// Needs may only reference jobs declared in the same pipeline.
	for i, job := range p.Jobs {
		for _, need := range job.Needs {
			if need == job.ID {
				return apperrors.Validation(fmt.Sprintf("jobs[%d].needs", i),
					fmt.Sprintf("job %q: cannot depend on itself", job.ID))
			}
			if !seen[need] {
				return apperrors.Validation(fmt.Sprintf("jobs[%d].needs", i),
					fmt.Sprintf("job %q: unknown dependency %q", job.ID, need))
			}
		}
	}

	return nil
}

func validateStep(jobID string, i int, s Step) error {
	field := fmt.Sprintf("jobs.%s.steps[%d]", jobID, i)

	if s.StepID() == "" {
		return apperrors.Validation(field+".id", fmt.Sprintf("job %q step[%d]: id is required", jobID, i))
	}
	if !idPattern.MatchString(s.StepID()) {
		return apperrors.Validation(field+".id", fmt.Sprintf("job %q step[%d]: invalid id %q", jobID, i, s.StepID()))
	}
	if s.Condition() != "" {
		if _, err := ParseCondition(string(s.Condition())); err != nil {
			return apperrors.Validation(field+".if", fmt.Sprintf("job %q step %q: %v", jobID, s.StepID(), err))
		}
	}

	switch step := s.(type) {
	case *RunStep:
		if step.Run == "" {
			return apperrors.Validation(field+".run", fmt.Sprintf("job %q step %q: run script is required", jobID, s.StepID()))
		}
		if len(step.Run) > maxScriptLength {
			return apperrors.Validation(field+".run", fmt.Sprintf("job %q step %q: script too long (max %d bytes)", jobID, s.StepID(), maxScriptLength))
		}
		if step.TimeoutSeconds < 0 {
			return apperrors.Validation(field+".timeout", fmt.Sprintf("job %q step %q: timeout must not be negative", jobID, s.StepID()))
		}

	case *CheckoutStep:
		if step.Repo == "" {
			return apperrors.Validation(field+".repo", fmt.Sprintf("job %q step %q: repo is required", jobID, s.StepID()))
		}
		if step.Path != "" {
			if err := validatePath(step.Path); err != nil {
				return apperrors.Validation(field+".path", fmt.Sprintf("job %q step %q: invalid path: %v", jobID, s.StepID(), err))
			}
		}

	case *SetenvStep:
		if step.Name == "" {
			return apperrors.Validation(field+".name", fmt.Sprintf("job %q step %q: name is required", jobID, s.StepID()))
		}

	case *UploadStep:
		if step.Path == "" {
			return apperrors.Validation(field+".path", fmt.Sprintf("job %q step %q: path is required", jobID, s.StepID()))
		}
		if err := validatePath(step.Path); err != nil {
			return apperrors.Validation(field+".path", fmt.Sprintf("job %q step %q: invalid path: %v", jobID, s.StepID(), err))
		}
		if step.URL == "" {
			return apperrors.Validation(field+".url", fmt.Sprintf("job %q step %q: url is required", jobID, s.StepID()))
		}
		if err := validateURL(step.URL); err != nil {
			return apperrors.Validation(field+".url", fmt.Sprintf("job %q step %q: invalid url: %v", jobID, s.StepID(), err))
		}
	}

	return nil
}

func validateNotify(n *Notify) error {
	if n.URL == "" {
		return apperrors.Validation("notify.url", "notify url is required")
	}
	if err := validateURL(n.URL); err != nil {
		return apperrors.Validation("notify.url", fmt.Sprintf("invalid notify url: %v", err))
	}
	for _, e := range n.Events {
		switch e {
		case "run.start", "run.job", "run.finish":
		default:
			return apperrors.Validation("notify.events", fmt.Sprintf("unknown event type %q", e))
		}
	}
	return nil
}

func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

func validatePath(path string) error {
	if filepath.IsAbs(path) {
		return fmt.Errorf("path must be relative, not absolute")
	}

	cleaned := filepath.Clean(path)
	if strings.HasPrefix(cleaned, "..") {
		return fmt.Errorf("path traversal not allowed")
	}

	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return fmt.Errorf("path traversal not allowed")
		}
	}

	return nil
}
