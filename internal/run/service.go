package run

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pipeliner/internal/apperrors"
	"pipeliner/internal/observability"
	"pipeliner/internal/pipeline"
)

// Service starts runs and answers queries about them. Completed runs
// are kept in memory for the retention period, then discarded.
type Service struct {
	registry  *pipeline.Registry
	engine    *Engine
	metrics   *observability.Metrics
	state     *stateRepo
	retention time.Duration

	cancelMaintenance context.CancelFunc
	wg                sync.WaitGroup
}

// ServiceConfig holds run service configuration.
type ServiceConfig struct {
	Registry            *pipeline.Registry
	Engine              *Engine
	Metrics             *observability.Metrics
	Retention           time.Duration // how long to keep finished runs (default 1h)
	MaintenanceInterval time.Duration // how often to sweep (default 1m)
}

// NewService creates the run service and starts its maintenance loop.
func NewService(cfg ServiceConfig) *Service {
	retention := cfg.Retention
	if retention <= 0 {
		retention = time.Hour
	}
	interval := cfg.MaintenanceInterval
	if interval <= 0 {
		interval = time.Minute
	}

	s := &Service{
		registry:  cfg.Registry,
		engine:    cfg.Engine,
		metrics:   cfg.Metrics,
		state:     newStateRepo(),
		retention: retention,
	}

	maintenanceCtx, cancel := context.WithCancel(context.Background())
	s.cancelMaintenance = cancel
	go s.runMaintenance(maintenanceCtx, interval)

	return s
}

// Trigger validates the request and starts a run in the background.
func (s *Service) Trigger(ctx context.Context, req *Request) (*Response, error) {
	if req.Trigger == "" {
		req.Trigger = TriggerManual
	}

	p, err := s.resolvePipeline(req)
	if err != nil {
		return nil, err
	}
	if req.Trigger == TriggerManual && !p.On.ManualAllowed() {
		return nil, apperrors.Validation("trigger", "pipeline does not allow manual runs")
	}

	runID := uuid.New().String()
	if err := s.state.reserve(runID); err != nil {
		return nil, err
	}

	r := newRun(runID, p, req.Trigger, req.Branch)
	runCtx, cancel := context.WithCancel(context.Background())
	s.state.commit(runID, &runState{run: r, cancel: cancel})

	if s.metrics != nil {
		s.metrics.RecordRunStarted(ctx, p.Name, string(req.Trigger))
	}
	slog.Info("Run started", "runId", runID, "pipeline", p.Name, "trigger", req.Trigger)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.engine.Execute(runCtx, r, p, req.Env)
	}()

	return &Response{ID: runID, Pipeline: p.Name, Status: StatusRunning}, nil
}

// resolvePipeline picks the registered pipeline the request names, or
// validates the inline definition it carries.
func (s *Service) resolvePipeline(req *Request) (*pipeline.Pipeline, error) {
	if req.Definition != nil {
		if req.Pipeline != "" && req.Pipeline != req.Definition.Name {
			return nil, apperrors.Validation("pipeline", "pipeline name does not match inline definition")
		}
		if err := pipeline.Validate(req.Definition); err != nil {
			return nil, err
		}
		return req.Definition, nil
	}
	if req.Pipeline == "" {
		return nil, apperrors.Validation("pipeline", "pipeline name is required")
	}
	return s.registry.Get(req.Pipeline)
}

// Get returns a snapshot of a run.
func (s *Service) Get(ctx context.Context, runID string) (*Snapshot, error) {
	rs, exists := s.state.get(runID)
	if !exists || rs == nil {
		return nil, apperrors.NotFound("run", runID)
	}
	snap := rs.run.Snapshot()
	return &snap, nil
}

// List returns snapshots of all known runs, newest first.
func (s *Service) List(ctx context.Context) (*ListResponse, error) {
	states := s.state.list()
	runs := make([]Snapshot, 0, len(states))
	for _, rs := range states {
		runs = append(runs, rs.run.Snapshot())
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return &ListResponse{Runs: runs}, nil
}

// Cancel stops a running run. In-flight commands finish on their own
// timeouts; jobs not yet scheduled are skipped.
func (s *Service) Cancel(ctx context.Context, runID string) error {
	rs, exists := s.state.get(runID)
	if !exists || rs == nil {
		return apperrors.NotFound("run", runID)
	}
	if rs.run.Snapshot().Status.Terminal() {
		return apperrors.Conflict("run", runID, "run already finished")
	}

	rs.cancel()
	slog.Info("Run cancelled", "runId", runID)
	return nil
}

// Close stops the maintenance loop and waits for in-flight runs.
func (s *Service) Close(ctx context.Context) error {
	if s.cancelMaintenance != nil {
		s.cancelMaintenance()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		slog.Warn("Shutdown timed out with runs still in flight")
		return ctx.Err()
	}
}

// runMaintenance periodically discards finished runs past retention.
func (s *Service) runMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanupExpiredRuns()
		}
	}
}

// cleanupExpiredRuns removes runs that finished more than retention ago.
func (s *Service) cleanupExpiredRuns() {
	now := time.Now().UTC()
	var cleaned int

	for _, rs := range s.state.list() {
		snap := rs.run.Snapshot()
		if snap.FinishedAt == nil {
			continue
		}
		if now.Sub(*snap.FinishedAt) > s.retention {
			s.state.release(snap.ID)
			cleaned++
		}
	}

	if cleaned > 0 {
		slog.Debug("Cleaned up expired runs", "count", cleaned)
	}
}
