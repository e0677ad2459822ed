package trigger

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"pipeliner/internal/pipeline"
	"pipeliner/internal/run"
)

// Scheduler runs pipelines that declare a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	runs   RunStarter
	logger *slog.Logger
}

// NewScheduler creates a scheduler and registers every pipeline in the
// registry that declares a schedule. Start must be called to begin firing.
func NewScheduler(registry *pipeline.Registry, runs RunStarter) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		runs:   runs,
		logger: slog.With("component", "scheduler"),
	}

	for _, p := range registry.List() {
		if p.On.Schedule == "" {
			continue
		}
		name := p.Name
		_, err := s.cron.AddFunc(p.On.Schedule, func() {
			s.fire(name)
		})
		if err != nil {
			return nil, err
		}
		s.logger.Info("Pipeline scheduled", "pipeline", name, "schedule", p.On.Schedule)
	}

	return s, nil
}

// Start begins firing scheduled pipelines in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling new runs and waits for in-flight trigger calls.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) fire(name string) {
	resp, err := s.runs.Trigger(context.Background(), &run.Request{
		Pipeline: name,
		Trigger:  run.TriggerSchedule,
	})
	if err != nil {
		s.logger.Error("Failed to start scheduled run", "pipeline", name, "error", err)
		return
	}
	s.logger.Info("Scheduled run started", "pipeline", name, "runId", resp.ID)
}
