package run

import (
	"context"
	"sync"

	"pipeliner/internal/apperrors"
)

// runState holds the runtime state for a single run.
type runState struct {
	run    *Run
	cancel context.CancelFunc
}

// stateRepo manages run state with thread-safe access.
type stateRepo struct {
	mu   sync.RWMutex
	runs map[string]*runState
}

// newStateRepo creates a new state repository.
func newStateRepo() *stateRepo {
	return &stateRepo{
		runs: make(map[string]*runState),
	}
}

// reserve attempts to reserve a run ID slot. Returns error if already exists.
// The slot is reserved with nil until commit is called.
func (r *stateRepo) reserve(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[runID]; exists {
		return apperrors.Conflict("run", runID, "run already exists")
	}
	r.runs[runID] = nil
	return nil
}

// commit fills in a reserved slot with the actual run state.
func (r *stateRepo) commit(runID string, rs *runState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[runID] = rs
}

// release removes a run from the repository. Returns the state if it existed.
func (r *stateRepo) release(runID string) (*runState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, exists := r.runs[runID]
	if exists {
		delete(r.runs, runID)
	}
	return rs, exists
}

// get retrieves a run's state. Returns (nil, true) if reserved but not yet committed.
func (r *stateRepo) get(runID string) (*runState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rs, exists := r.runs[runID]
	return rs, exists
}

// list returns all run states.
func (r *stateRepo) list() []*runState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*runState, 0, len(r.runs))
	for _, rs := range r.runs {
		if rs != nil {
			out = append(out, rs)
		}
	}
	return out
}
