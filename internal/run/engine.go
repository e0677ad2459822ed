package run

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"pipeliner/internal/dispatcher"
	"pipeliner/internal/observability"
	"pipeliner/internal/pipeline"
	"pipeliner/pkg/cloudevent"
)

const eventSource = "pipeliner/engine"

// maxStepOutput caps the step output kept in the run record.
const maxStepOutput = 16 * 1024

// Engine executes pipeline runs. Jobs whose dependencies have all
// reached a terminal result run concurrently, bounded by MaxConcurrent.
type Engine struct {
	runner        pipeline.CommandRunner
	dispatcher    dispatcher.Dispatcher
	metrics       *observability.Metrics
	workspaceRoot string
	httpClient    *http.Client
	maxConcurrent int
}

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Runner        pipeline.CommandRunner // required
	Dispatcher    dispatcher.Dispatcher  // optional, for run notifications
	Metrics       *observability.Metrics // optional
	WorkspaceRoot string                 // per-run workspace parent directory
	MaxConcurrent int                    // concurrent jobs per run (default 4)
}

// NewEngine creates a run engine.
func NewEngine(cfg EngineConfig) *Engine {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Engine{
		runner:        cfg.Runner,
		dispatcher:    cfg.Dispatcher,
		metrics:       cfg.Metrics,
		workspaceRoot: cfg.WorkspaceRoot,
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		maxConcurrent: maxConcurrent,
	}
}

// Execute runs the pipeline to completion and returns the final status.
// Cancelling ctx stops scheduling: jobs and steps that have not started
// are marked skipped, while commands already in flight run out to their
// own timeout.
func (e *Engine) Execute(ctx context.Context, r *Run, p *pipeline.Pipeline, extraEnv map[string]string) Status {
	logger := slog.With("runId", r.ID(), "pipeline", p.Name)
	start := time.Now()

	builder := NewEventBuilder(r.ID(), eventSource, p.Name)
	e.notify(p, builder.BuildStartEvent(r.trigger, r.branch))

	workdir, err := e.makeWorkspace(r.ID())
	if err != nil {
		logger.Error("Failed to create run workspace", "error", err)
		e.failAllPending(r)
		r.finish(StatusFailed)
		e.finishRun(p, r, builder, start, logger)
		return StatusFailed
	}
	defer func() {
		if err := os.RemoveAll(workdir); err != nil {
			logger.Warn("Failed to remove run workspace", "error", err, "workdir", workdir)
		}
	}()

	graph, err := pipeline.BuildGraph(p)
	if err != nil {
		logger.Error("Failed to build job graph", "error", err)
		e.failAllPending(r)
		r.finish(StatusFailed)
		e.finishRun(p, r, builder, start, logger)
		return StatusFailed
	}

	cancelled := e.executeRounds(ctx, logger, r, p, graph, workdir, extraEnv, builder)

	status := StatusSucceeded
	switch {
	case cancelled:
		status = StatusCancelled
	default:
		for _, result := range r.results() {
			if result == pipeline.ResultFailure {
				status = StatusFailed
				break
			}
		}
	}
	r.finish(status)
	e.finishRun(p, r, builder, start, logger)
	return status
}

// executeRounds schedules ready jobs in rounds until every job has a
// terminal result or the context is cancelled. Returns true on cancel.
func (e *Engine) executeRounds(ctx context.Context, logger *slog.Logger, r *Run, p *pipeline.Pipeline, graph *pipeline.JobGraph, workdir string, extraEnv map[string]string, builder *EventBuilder) bool {
	for {
		if ctx.Err() != nil {
			e.skipPending(r, graph, builder, p)
			return true
		}

		results := r.results()
		ready := graph.Ready(results)
		if len(ready) == 0 {
			return false
		}

		g := new(errgroup.Group)
		g.SetLimit(e.maxConcurrent)
		for _, job := range ready {
			g.Go(func() error {
				e.executeJob(ctx, logger, r, p, job, graph.UpstreamResults(job.ID, results), workdir, extraEnv, builder)
				return nil
			})
		}
		_ = g.Wait()
	}
}

// executeJob evaluates the job's condition against its upstream results
// and, if met, runs its steps in order.
func (e *Engine) executeJob(ctx context.Context, logger *slog.Logger, r *Run, p *pipeline.Pipeline, job *pipeline.Job, upstream []pipeline.Result, workdir string, extraEnv map[string]string, builder *EventBuilder) {
	jobLogger := logger.With("job", job.ID)
	jobStart := time.Now()

	if !job.RunCondition().MetUpstream(upstream) {
		jobLogger.Info("Job skipped", "condition", job.RunCondition())
		e.completeJob(r, p, job.ID, pipeline.ResultSkipped, jobStart, builder)
		return
	}

	r.jobStarted(job.ID)

	env := make(map[string]string, len(extraEnv)+len(job.Env)+1)
	maps.Copy(env, extraEnv)
	maps.Copy(env, job.Env)
	if env["PATH"] == "" {
		env["PATH"] = os.Getenv("PATH")
	}

	ec := &pipeline.ExecContext{
		Workdir:       workdir,
		Image:         job.Image,
		Env:           env,
		Runner:        e.runner,
		HTTPClient:    e.httpClient,
		UploadRetries: 3,
	}

	// Cancellation stops scheduling between steps; a command already in
	// flight runs out to its own timeout.
	stepCtx := context.WithoutCancel(ctx)

	for _, step := range job.Steps {
		if ctx.Err() != nil {
			r.recordStep(job.ID, StepStatus{ID: step.StepID(), Type: step.StepType(), Result: pipeline.ResultSkipped})
			continue
		}

		if !step.Condition().Met(ec.PriorFailure) {
			r.recordStep(job.ID, StepStatus{ID: step.StepID(), Type: step.StepType(), Result: pipeline.ResultSkipped})
			continue
		}

		stepStart := time.Now()
		res := step.Execute(stepCtx, ec)

		status := StepStatus{
			ID:     step.StepID(),
			Type:   step.StepType(),
			Result: res.Status,
			Output: truncate(res.Output, maxStepOutput),
		}
		if res.Error != nil {
			status.Error = res.Error.Error()
		}
		r.recordStep(job.ID, status)

		if e.metrics != nil {
			e.metrics.RecordStepFinished(context.Background(), p.Name, step.StepType(), string(res.Status), time.Since(stepStart).Seconds())
		}

		if res.Status == pipeline.ResultFailure {
			ec.PriorFailure = true
			jobLogger.Warn("Step failed", "step", step.StepID(), "error", res.Error)
		}
	}

	result := pipeline.ResultSuccess
	if ec.PriorFailure {
		result = pipeline.ResultFailure
	}
	jobLogger.Info("Job finished", "result", result, "duration", time.Since(jobStart))
	e.completeJob(r, p, job.ID, result, jobStart, builder)
}

// completeJob records the terminal result and emits the job event.
func (e *Engine) completeJob(r *Run, p *pipeline.Pipeline, jobID string, result pipeline.Result, started time.Time, builder *EventBuilder) {
	r.jobFinished(jobID, result)
	e.notify(p, builder.BuildJobEvent(jobID, result))
	if e.metrics != nil {
		e.metrics.RecordJobFinished(context.Background(), p.Name, jobID, string(result), time.Since(started).Seconds())
	}
}

// skipPending marks every job without a terminal result as skipped.
func (e *Engine) skipPending(r *Run, graph *pipeline.JobGraph, builder *EventBuilder, p *pipeline.Pipeline) {
	results := r.results()
	for _, id := range graph.Order() {
		if _, done := results[id]; done {
			continue
		}
		r.jobFinished(id, pipeline.ResultSkipped)
		e.notify(p, builder.BuildJobEvent(id, pipeline.ResultSkipped))
	}
}

// failAllPending marks every unfinished job as failed. Used when the run
// cannot start at all.
func (e *Engine) failAllPending(r *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, js := range r.jobs {
		if js.Result == "" {
			js.Result = pipeline.ResultFailure
			js.FinishedAt = &now
		}
	}
}

func (e *Engine) finishRun(p *pipeline.Pipeline, r *Run, builder *EventBuilder, started time.Time, logger *slog.Logger) {
	status := r.currentStatus()
	e.notify(p, builder.BuildFinishEvent(status, r.results()))
	if e.metrics != nil {
		e.metrics.RecordRunFinished(context.Background(), p.Name, status == StatusSucceeded, time.Since(started).Seconds())
	}
	logger.Info("Run finished", "status", status, "duration", time.Since(started))
}

// notify dispatches a run event to the pipeline's notification endpoint,
// honoring its event filter.
func (e *Engine) notify(p *pipeline.Pipeline, event *cloudevent.CloudEvent) {
	if e.dispatcher == nil || p.Notify == nil || p.Notify.URL == "" {
		return
	}
	if !p.Notify.Wants(event.Type) {
		return
	}
	if err := e.dispatcher.Dispatch(&dispatcher.Event{
		Payload:     event,
		Destination: p.Notify.URL,
		SigningKey:  p.Notify.Key,
	}); err != nil {
		slog.Warn("Failed to dispatch run event", "type", event.Type, "error", err)
	}
}

func (e *Engine) makeWorkspace(runID string) (string, error) {
	dir := filepath.Join(e.workspaceRoot, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace %s: %w", dir, err)
	}
	return dir, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
