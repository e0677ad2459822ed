package run

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeliner/internal/apperrors"
	"pipeliner/internal/executor"
	"pipeliner/internal/pipeline"
	"pipeliner/internal/testutil"
)

func newTestService(t *testing.T, pipelines ...*pipeline.Pipeline) *Service {
	t.Helper()

	registry := pipeline.NewRegistry()
	for _, p := range pipelines {
		require.NoError(t, pipeline.Validate(p))
		registry.Add(p)
	}

	s := NewService(ServiceConfig{
		Registry: registry,
		Engine: NewEngine(EngineConfig{
			Runner:        executor.NewLocal(0),
			WorkspaceRoot: t.TempDir(),
		}),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func simplePipeline(name, script string) *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Name: name,
		Jobs: []*pipeline.Job{
			{ID: "only", Steps: []pipeline.Step{&pipeline.RunStep{ID: "s", Run: script}}},
		},
	}
}

func waitForTerminal(t *testing.T, s *Service, runID string) Snapshot {
	t.Helper()
	var snap *Snapshot
	testutil.MustWaitFor(t, func() bool {
		got, err := s.Get(context.Background(), runID)
		if err != nil {
			return false
		}
		snap = got
		return got.Status.Terminal()
	}, testutil.WithTimeout(10*time.Second))
	return *snap
}

func TestService_TriggerAndGet(t *testing.T) {
	t.Parallel()

	s := newTestService(t, simplePipeline("ok", "true"))

	resp, err := s.Trigger(context.Background(), &Request{Pipeline: "ok"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "ok", resp.Pipeline)
	assert.Equal(t, StatusRunning, resp.Status)

	snap := waitForTerminal(t, s, resp.ID)
	assert.Equal(t, StatusSucceeded, snap.Status)
	assert.Equal(t, TriggerManual, snap.Trigger)
	require.NotNil(t, snap.FinishedAt)
}

func TestService_TriggerFailedRun(t *testing.T) {
	t.Parallel()

	s := newTestService(t, simplePipeline("broken", "exit 1"))

	resp, err := s.Trigger(context.Background(), &Request{Pipeline: "broken"})
	require.NoError(t, err)

	snap := waitForTerminal(t, s, resp.ID)
	assert.Equal(t, StatusFailed, snap.Status)
}

func TestService_InlineDefinition(t *testing.T) {
	t.Parallel()

	s := newTestService(t)

	resp, err := s.Trigger(context.Background(), &Request{Definition: simplePipeline("one-off", "true")})
	require.NoError(t, err)
	assert.Equal(t, "one-off", resp.Pipeline)

	snap := waitForTerminal(t, s, resp.ID)
	assert.Equal(t, StatusSucceeded, snap.Status)

	// Invalid inline definitions are rejected up front.
	_, err = s.Trigger(context.Background(), &Request{Definition: &pipeline.Pipeline{Name: "empty"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	// Name mismatch between request and definition is rejected.
	_, err = s.Trigger(context.Background(), &Request{Pipeline: "other", Definition: simplePipeline("one-off", "true")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestService_TriggerUnknownPipeline(t *testing.T) {
	t.Parallel()

	s := newTestService(t)

	_, err := s.Trigger(context.Background(), &Request{Pipeline: "ghost"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestService_ManualDisabled(t *testing.T) {
	t.Parallel()

	disabled := false
	p := simplePipeline("nightly", "true")
	p.On = pipeline.Triggers{Manual: &disabled, Schedule: "0 2 * * *"}

	s := newTestService(t, p)

	_, err := s.Trigger(context.Background(), &Request{Pipeline: "nightly"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	// Non-manual triggers still work.
	resp, err := s.Trigger(context.Background(), &Request{Pipeline: "nightly", Trigger: TriggerSchedule})
	require.NoError(t, err)
	waitForTerminal(t, s, resp.ID)
}

func TestService_List(t *testing.T) {
	t.Parallel()

	s := newTestService(t, simplePipeline("ok", "true"))

	first, err := s.Trigger(context.Background(), &Request{Pipeline: "ok"})
	require.NoError(t, err)
	waitForTerminal(t, s, first.ID)

	second, err := s.Trigger(context.Background(), &Request{Pipeline: "ok"})
	require.NoError(t, err)
	waitForTerminal(t, s, second.ID)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list.Runs, 2)
}

func TestService_Cancel(t *testing.T) {
	t.Parallel()

	p := &pipeline.Pipeline{
		Name: "slow",
		Jobs: []*pipeline.Job{
			{ID: "nap", Steps: []pipeline.Step{&pipeline.RunStep{ID: "s", Run: "sleep 1"}}},
			{ID: "after", Needs: []string{"nap"}, Steps: []pipeline.Step{&pipeline.RunStep{ID: "s", Run: "true"}}},
		},
	}
	s := newTestService(t, p)

	resp, err := s.Trigger(context.Background(), &Request{Pipeline: "slow"})
	require.NoError(t, err)

	require.NoError(t, s.Cancel(context.Background(), resp.ID))

	snap := waitForTerminal(t, s, resp.ID)
	assert.Equal(t, StatusCancelled, snap.Status)

	// Cancelling a finished run conflicts.
	err = s.Cancel(context.Background(), resp.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestService_CancelUnknown(t *testing.T) {
	t.Parallel()

	s := newTestService(t)
	err := s.Cancel(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestService_RetentionCleanup(t *testing.T) {
	t.Parallel()

	registry := pipeline.NewRegistry()
	p := simplePipeline("ok", "true")
	require.NoError(t, pipeline.Validate(p))
	registry.Add(p)

	s := NewService(ServiceConfig{
		Registry: registry,
		Engine: NewEngine(EngineConfig{
			Runner:        executor.NewLocal(0),
			WorkspaceRoot: t.TempDir(),
		}),
		Retention:           50 * time.Millisecond,
		MaintenanceInterval: 20 * time.Millisecond,
	})
	defer s.Close(context.Background())

	resp, err := s.Trigger(context.Background(), &Request{Pipeline: "ok"})
	require.NoError(t, err)
	waitForTerminal(t, s, resp.ID)

	testutil.MustWaitFor(t, func() bool {
		_, err := s.Get(context.Background(), resp.ID)
		return errors.Is(err, apperrors.ErrNotFound)
	}, testutil.WithTimeout(5*time.Second))
}
