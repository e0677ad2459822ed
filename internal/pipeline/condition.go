package pipeline

import "fmt"

// Condition controls whether a job or step runs.
//
// For a job it is evaluated against the results of its upstream jobs.
// For a step it is evaluated against the failure state of its own job
// at the point the step is reached.
type Condition string

const (
	// OnSuccess runs only if nothing upstream has failed. This is the default.
	OnSuccess Condition = "success"
	// OnFailure runs only after a failure has been observed.
	OnFailure Condition = "failure"
	// Always runs regardless of prior outcomes.
	Always Condition = "always"
)

// ParseCondition parses a condition string. Empty input yields OnSuccess.
func ParseCondition(s string) (Condition, error) {
	switch s {
	case "":
		return OnSuccess, nil
	case string(OnSuccess), string(OnFailure), string(Always):
		return Condition(s), nil
	default:
		return "", fmt.Errorf("unknown condition %q (want success, failure or always)", s)
	}
}

// Met reports whether a step with this condition should run, given whether
// a prior step in the same job has already failed.
func (c Condition) Met(priorFailure bool) bool {
	switch c {
	case Always:
		return true
	case OnFailure:
		return priorFailure
	default:
		return !priorFailure
	}
}

// MetUpstream reports whether a job with this condition should run, given
// the terminal results of all its upstream jobs. With no upstreams,
// OnSuccess is trivially met and OnFailure never is.
func (c Condition) MetUpstream(results []Result) bool {
	switch c {
	case Always:
		return true
	case OnFailure:
		for _, r := range results {
			if r == ResultFailure {
				return true
			}
		}
		return false
	default:
		for _, r := range results {
			if r != ResultSuccess {
				return false
			}
		}
		return true
	}
}

// Result is the terminal outcome of a job or step.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultSkipped Result = "skipped"
)

// Terminal reports whether r is a terminal result.
func (r Result) Terminal() bool {
	return r == ResultSuccess || r == ResultFailure || r == ResultSkipped
}
