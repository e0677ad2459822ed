package run

import (
	"fmt"
	"time"

	"pipeliner/internal/pipeline"
	"pipeliner/pkg/cloudevent"
)

// Event types for run lifecycle notifications
const (
	EventTypeStart  = "runner.run.start"
	EventTypeJob    = "runner.run.job"
	EventTypeFinish = "runner.run.finish"
)

// EventBuilder builds CloudEvents for run lifecycle events.
type EventBuilder struct {
	source   string
	subject  string
	pipeline string
}

// NewEventBuilder creates a new EventBuilder.
func NewEventBuilder(runID, source, pipelineName string) *EventBuilder {
	return &EventBuilder{
		source:   source,
		subject:  runID,
		pipeline: pipelineName,
	}
}

// Build creates a new CloudEvent with the given type and data.
func (b *EventBuilder) Build(eventType string, data map[string]any) *cloudevent.CloudEvent {
	eventID := fmt.Sprintf("%s-%d", b.subject, time.Now().UnixNano())
	return cloudevent.New(eventType, b.source, b.subject, eventID, data)
}

// BuildStartEvent creates a run start event.
func (b *EventBuilder) BuildStartEvent(trigger TriggerKind, branch string) *cloudevent.CloudEvent {
	data := map[string]any{
		"runId":    b.subject,
		"pipeline": b.pipeline,
		"trigger":  string(trigger),
	}
	if branch != "" {
		data["branch"] = branch
	}
	return b.Build(EventTypeStart, data)
}

// BuildJobEvent creates a job completion event.
func (b *EventBuilder) BuildJobEvent(jobID string, result pipeline.Result) *cloudevent.CloudEvent {
	data := map[string]any{
		"runId":    b.subject,
		"pipeline": b.pipeline,
		"job":      jobID,
		"result":   string(result),
	}
	return b.Build(EventTypeJob, data)
}

// BuildFinishEvent creates a run finish event with per-job results.
func (b *EventBuilder) BuildFinishEvent(status Status, results map[string]pipeline.Result) *cloudevent.CloudEvent {
	jobs := make(map[string]string, len(results))
	for id, r := range results {
		jobs[id] = string(r)
	}
	data := map[string]any{
		"runId":    b.subject,
		"pipeline": b.pipeline,
		"status":   string(status),
		"jobs":     jobs,
	}
	return b.Build(EventTypeFinish, data)
}
