package pipeline

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dominikbraun/graph"

	"pipeliner/internal/apperrors"
)

// JobGraph is the dependency DAG of a pipeline's jobs. Edges point from
// a dependency to its dependents.
type JobGraph struct {
	g     graph.Graph[string, string]
	order []string // topological order, declaration order breaks ties
	jobs  map[string]*Job
}

// BuildGraph constructs the job graph and rejects dependency cycles.
// Validate must have passed first so that every needs reference resolves.
func BuildGraph(p *Pipeline) (*JobGraph, error) {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())

	declIndex := make(map[string]int, len(p.Jobs))
	jobs := make(map[string]*Job, len(p.Jobs))
	for i, job := range p.Jobs {
		if err := g.AddVertex(job.ID); err != nil {
			return nil, apperrors.Internal("graph.addVertex", err)
		}
		declIndex[job.ID] = i
		jobs[job.ID] = job
	}

	for _, job := range p.Jobs {
		for _, need := range job.Needs {
			if err := g.AddEdge(need, job.ID); err != nil {
				if errors.Is(err, graph.ErrEdgeCreatesCycle) {
					return nil, apperrors.Validation("jobs",
						fmt.Sprintf("dependency cycle involving jobs %q and %q", need, job.ID))
				}
				if errors.Is(err, graph.ErrEdgeAlreadyExists) {
					continue
				}
				return nil, apperrors.Internal("graph.addEdge", err)
			}
		}
	}

	order, err := graph.StableTopologicalSort(g, func(a, b string) bool {
		return declIndex[a] < declIndex[b]
	})
	if err != nil {
		return nil, apperrors.Internal("graph.topologicalSort", err)
	}

	return &JobGraph{g: g, order: order, jobs: jobs}, nil
}

// Order returns every job ID in topological order.
func (jg *JobGraph) Order() []string {
	return slices.Clone(jg.order)
}

// Ready returns the jobs whose dependencies have all reached a terminal
// result and that do not yet have a result themselves, in scheduling order.
func (jg *JobGraph) Ready(results map[string]Result) []*Job {
	var ready []*Job
	for _, id := range jg.order {
		if _, done := results[id]; done {
			continue
		}
		job := jg.jobs[id]
		blocked := false
		for _, need := range job.Needs {
			if r, done := results[need]; !done || !r.Terminal() {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, job)
		}
	}
	return ready
}

// UpstreamResults collects the results of a job's direct dependencies.
func (jg *JobGraph) UpstreamResults(jobID string, results map[string]Result) []Result {
	job := jg.jobs[jobID]
	if job == nil {
		return nil
	}
	upstream := make([]Result, 0, len(job.Needs))
	for _, need := range job.Needs {
		if r, ok := results[need]; ok {
			upstream = append(upstream, r)
		}
	}
	return upstream
}
