package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"pipeliner/internal/apperrors"
)

// Registry holds the validated pipeline definitions loaded from disk.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]*Pipeline
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{pipelines: make(map[string]*Pipeline)}
}

// LoadDir parses and validates every *.yml and *.yaml file in dir and
// replaces the registry contents. A file that fails to parse or validate
// aborts the whole load.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return apperrors.Internal("registry.loadDir", fmt.Errorf("failed to read pipelines dir: %w", err))
	}

	loaded := make(map[string]*Pipeline)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return apperrors.Internal("registry.loadDir", fmt.Errorf("failed to read %s: %w", entry.Name(), err))
		}

		p, err := ParseYAML(data)
		if err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}
		if err := Validate(p); err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}
		if _, err := BuildGraph(p); err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}

		if existing, ok := loaded[p.Name]; ok && existing != nil {
			return apperrors.Conflict("pipeline", p.Name, fmt.Sprintf("defined more than once (also in %s)", entry.Name()))
		}
		loaded[p.Name] = p
		slog.Debug("Loaded pipeline definition", "pipeline", p.Name, "file", entry.Name(), "jobs", len(p.Jobs))
	}

	r.mu.Lock()
	r.pipelines = loaded
	r.mu.Unlock()

	slog.Info("Pipeline registry loaded", "count", len(loaded), "dir", dir)
	return nil
}

// Get returns the named pipeline.
func (r *Registry) Get(name string) (*Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pipelines[name]
	if !ok {
		return nil, apperrors.NotFound("pipeline", name)
	}
	return p, nil
}

// List returns every pipeline sorted by name.
func (r *Registry) List() []*Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Pipeline, 0, len(r.pipelines))
	for _, p := range r.pipelines {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Add registers a pipeline directly. Used by tests and the one-shot runner.
func (r *Registry) Add(p *Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines[p.Name] = p
}
