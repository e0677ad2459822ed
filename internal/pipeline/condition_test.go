package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCondition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Condition
		wantErr bool
	}{
		{"", OnSuccess, false},
		{"success", OnSuccess, false},
		{"failure", OnFailure, false},
		{"always", Always, false},
		{"on_success", "", true},
		{"Success", "", true},
		{"never", "", true},
	}

	for _, tt := range tests {
		t.Run("input="+tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseCondition(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionMet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		cond         Condition
		priorFailure bool
		want         bool
	}{
		{"success clean", OnSuccess, false, true},
		{"success after failure", OnSuccess, true, false},
		{"failure clean", OnFailure, false, false},
		{"failure after failure", OnFailure, true, true},
		{"always clean", Always, false, true},
		{"always after failure", Always, true, true},
		{"empty defaults to success", Condition(""), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.cond.Met(tt.priorFailure))
		})
	}
}

func TestConditionMetUpstream(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cond    Condition
		results []Result
		want    bool
	}{
		{"success no upstreams", OnSuccess, nil, true},
		{"success all succeeded", OnSuccess, []Result{ResultSuccess, ResultSuccess}, true},
		{"success one failed", OnSuccess, []Result{ResultSuccess, ResultFailure}, false},
		{"success one skipped", OnSuccess, []Result{ResultSuccess, ResultSkipped}, false},
		{"failure no upstreams", OnFailure, nil, false},
		{"failure none failed", OnFailure, []Result{ResultSuccess, ResultSkipped}, false},
		{"failure one failed", OnFailure, []Result{ResultSuccess, ResultFailure}, true},
		{"always after failure", Always, []Result{ResultFailure}, true},
		{"always after skip", Always, []Result{ResultSkipped}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.cond.MetUpstream(tt.results))
		})
	}
}

func TestResultTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, ResultSuccess.Terminal())
	assert.True(t, ResultFailure.Terminal())
	assert.True(t, ResultSkipped.Terminal())
	assert.False(t, Result("running").Terminal())
	assert.False(t, Result("").Terminal())
}
