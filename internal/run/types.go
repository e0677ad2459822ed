// Package run executes pipeline runs and tracks their state.
package run

import (
	"sync"
	"time"

	"pipeliner/internal/pipeline"
)

// Status of a run as a whole.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the run has finished.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// TriggerKind identifies how a run was started.
type TriggerKind string

const (
	TriggerManual   TriggerKind = "manual"
	TriggerPush     TriggerKind = "push"
	TriggerSchedule TriggerKind = "schedule"
)

// Request asks for a new run of a registered pipeline, or of an inline
// definition supplied with the request.
type Request struct {
	Pipeline   string             `json:"pipeline,omitempty"`
	Definition *pipeline.Pipeline `json:"definition,omitempty"` // one-off pipeline, not registered
	Trigger    TriggerKind        `json:"trigger,omitempty"`    // default: manual
	Branch     string             `json:"branch,omitempty"`     // set for push triggers
	Env        map[string]string  `json:"env,omitempty"`        // extra environment for every job
}

// Response is returned when a run is accepted.
type Response struct {
	ID       string `json:"id"`
	Pipeline string `json:"pipeline"`
	Status   Status `json:"status"`
}

// StepStatus is the recorded outcome of one step.
type StepStatus struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Result pipeline.Result `json:"result"`
	Output string          `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// JobStatus is the recorded outcome of one job. Result is empty until
// the job reaches a terminal result.
type JobStatus struct {
	ID         string          `json:"id"`
	Result     pipeline.Result `json:"result,omitempty"`
	Steps      []StepStatus    `json:"steps,omitempty"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// Snapshot is a point-in-time copy of a run, safe to serialize.
type Snapshot struct {
	ID         string      `json:"id"`
	Pipeline   string      `json:"pipeline"`
	Trigger    TriggerKind `json:"trigger"`
	Branch     string      `json:"branch,omitempty"`
	Status     Status      `json:"status"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
	Jobs       []JobStatus `json:"jobs"`
}

// ListResponse is the response for listing runs.
type ListResponse struct {
	Runs []Snapshot `json:"runs"`
}

// Run is the mutable record of a pipeline run. The engine updates it
// while executing; readers take a Snapshot.
type Run struct {
	mu sync.Mutex

	id        string
	pipeline  string
	trigger   TriggerKind
	branch    string
	status    Status
	startedAt time.Time
	finished  *time.Time
	jobs      []*JobStatus
	jobIndex  map[string]*JobStatus
}

// newRun creates a running record with a pending entry per job, in
// declaration order.
func newRun(id string, p *pipeline.Pipeline, trigger TriggerKind, branch string) *Run {
	r := &Run{
		id:        id,
		pipeline:  p.Name,
		trigger:   trigger,
		branch:    branch,
		status:    StatusRunning,
		startedAt: time.Now().UTC(),
		jobIndex:  make(map[string]*JobStatus, len(p.Jobs)),
	}
	for _, job := range p.Jobs {
		js := &JobStatus{ID: job.ID}
		r.jobs = append(r.jobs, js)
		r.jobIndex[job.ID] = js
	}
	return r
}

// ID returns the run's identifier.
func (r *Run) ID() string { return r.id }

// Snapshot returns a consistent copy of the run.
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		ID:        r.id,
		Pipeline:  r.pipeline,
		Trigger:   r.trigger,
		Branch:    r.branch,
		Status:    r.status,
		StartedAt: r.startedAt,
		Jobs:      make([]JobStatus, 0, len(r.jobs)),
	}
	if r.finished != nil {
		t := *r.finished
		snap.FinishedAt = &t
	}
	for _, js := range r.jobs {
		copied := *js
		copied.Steps = append([]StepStatus(nil), js.Steps...)
		snap.Jobs = append(snap.Jobs, copied)
	}
	return snap
}

func (r *Run) jobStarted(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if js := r.jobIndex[jobID]; js != nil {
		now := time.Now().UTC()
		js.StartedAt = &now
	}
}

func (r *Run) recordStep(jobID string, step StepStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if js := r.jobIndex[jobID]; js != nil {
		js.Steps = append(js.Steps, step)
	}
}

func (r *Run) jobFinished(jobID string, result pipeline.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if js := r.jobIndex[jobID]; js != nil {
		now := time.Now().UTC()
		js.Result = result
		js.FinishedAt = &now
	}
}

func (r *Run) finish(status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return
	}
	now := time.Now().UTC()
	r.status = status
	r.finished = &now
}

// currentStatus returns the run status under the lock.
func (r *Run) currentStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// results collects terminal job results keyed by job ID.
func (r *Run) results() map[string]pipeline.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]pipeline.Result, len(r.jobs))
	for _, js := range r.jobs {
		if js.Result != "" {
			out[js.ID] = js.Result
		}
	}
	return out
}
