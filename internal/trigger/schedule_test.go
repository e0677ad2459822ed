package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeliner/internal/pipeline"
	"pipeliner/internal/run"
	"pipeliner/internal/testutil"
)

func scheduledPipeline(name, schedule string) *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Name: name,
		On:   pipeline.Triggers{Schedule: schedule},
		Jobs: []*pipeline.Job{
			{ID: "only", Steps: []pipeline.Step{&pipeline.RunStep{ID: "s", Run: "true"}}},
		},
	}
}

func TestScheduler_FiresRegisteredPipelines(t *testing.T) {
	t.Parallel()

	registry := pipeline.NewRegistry()
	registry.Add(scheduledPipeline("nightly", "@every 50ms"))
	registry.Add(&pipeline.Pipeline{Name: "unscheduled"})

	starter := &fakeStarter{}
	s, err := NewScheduler(registry, starter)
	require.NoError(t, err)

	s.Start()
	defer s.Stop(context.Background())

	testutil.MustWaitFor(t, func() bool {
		return len(starter.triggered()) >= 2
	}, testutil.WithTimeout(5*time.Second), testutil.WithInterval(10*time.Millisecond))

	for _, req := range starter.triggered() {
		assert.Equal(t, "nightly", req.Pipeline)
		assert.Equal(t, run.TriggerSchedule, req.Trigger)
	}
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	t.Parallel()

	registry := pipeline.NewRegistry()
	registry.Add(scheduledPipeline("broken", "not a cron expression"))

	_, err := NewScheduler(registry, &fakeStarter{})
	assert.Error(t, err)
}

func TestScheduler_StopWaits(t *testing.T) {
	t.Parallel()

	registry := pipeline.NewRegistry()
	registry.Add(scheduledPipeline("nightly", "@every 1h"))

	s, err := NewScheduler(registry, &fakeStarter{})
	require.NoError(t, err)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
