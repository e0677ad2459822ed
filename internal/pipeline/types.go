// Package pipeline defines the pipeline model: jobs, steps, conditions
// and the codecs that read definitions from YAML and JSON.
package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Pipeline is a named collection of jobs with trigger and notification
// settings. Job order in the slice is the declaration order and is used
// as the tiebreaker when scheduling.
type Pipeline struct {
	Name   string   `json:"name"`
	On     Triggers `json:"on"`
	Notify *Notify  `json:"notify,omitempty"`
	Jobs   []*Job   `json:"jobs"`
}

// Job is an ordered sequence of steps, optionally gated on the results
// of the jobs named in Needs.
type Job struct {
	ID    string            `json:"id"`
	Needs []string          `json:"needs,omitempty"`
	If    Condition         `json:"if,omitempty"`
	Image string            `json:"image,omitempty"`
	Env   map[string]string `json:"env,omitempty"`
	Steps []Step            `json:"steps"`
}

// RunCondition returns the job's gating condition, defaulting to OnSuccess.
func (j *Job) RunCondition() Condition {
	if j.If == "" {
		return OnSuccess
	}
	return j.If
}

// Triggers declares how a pipeline may be started. A nil Manual means
// manual triggering is allowed.
type Triggers struct {
	Manual   *bool        `json:"manual,omitempty"`
	Push     *PushTrigger `json:"push,omitempty"`
	Schedule string       `json:"schedule,omitempty"`
}

// ManualAllowed reports whether the pipeline accepts manual runs.
func (t Triggers) ManualAllowed() bool {
	return t.Manual == nil || *t.Manual
}

// PushTrigger starts the pipeline on a push notification. An empty
// Branches list matches every branch; patterns use path.Match syntax.
type PushTrigger struct {
	Branches []string `json:"branches,omitempty"`
}

// Notify configures CloudEvent delivery for run lifecycle events.
type Notify struct {
	URL    string   `json:"url"`
	Events []string `json:"events,omitempty"` // subset of run.start, run.job, run.finish; empty means all
	Key    string   `json:"key,omitempty"`    // HMAC signing key
}

// Wants reports whether the given event type should be delivered.
func (n *Notify) Wants(eventType string) bool {
	if len(n.Events) == 0 {
		return true
	}
	// Definitions name events in the short form ("run.finish"); the wire
	// type carries the "runner." prefix.
	short := strings.TrimPrefix(eventType, "runner.")
	for _, e := range n.Events {
		if e == eventType || e == short {
			return true
		}
	}
	return false
}

// Job returns the job with the given ID, or nil.
func (p *Pipeline) Job(id string) *Job {
	for _, j := range p.Jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// jobAlias avoids recursion in the custom JSON methods below. Steps are
// handled separately because Step is an interface.
type jobAlias struct {
	ID    string            `json:"id"`
	Needs []string          `json:"needs,omitempty"`
	If    Condition         `json:"if,omitempty"`
	Image string            `json:"image,omitempty"`
	Env   map[string]string `json:"env,omitempty"`
	Steps json.RawMessage   `json:"steps"`
}

// MarshalJSON encodes the job with each step wrapped in its type envelope.
func (j *Job) MarshalJSON() ([]byte, error) {
	steps, err := MarshalSteps(j.Steps)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", j.ID, err)
	}
	return json.Marshal(jobAlias{
		ID:    j.ID,
		Needs: j.Needs,
		If:    j.If,
		Image: j.Image,
		Env:   j.Env,
		Steps: steps,
	})
}

// UnmarshalJSON decodes the job, dispatching steps by their type field.
func (j *Job) UnmarshalJSON(data []byte) error {
	var alias jobAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	j.ID = alias.ID
	j.Needs = alias.Needs
	j.If = alias.If
	j.Image = alias.Image
	j.Env = alias.Env

	if len(alias.Steps) > 0 {
		steps, err := UnmarshalSteps(alias.Steps)
		if err != nil {
			return fmt.Errorf("job %q: %w", alias.ID, err)
		}
		j.Steps = steps
	}
	return nil
}
