package manager

import (
	"sort"
	"sync"

	"github.com/batchline/batchline/internal/apperror"
	"github.com/batchline/batchline/internal/batch"
)

// Registry holds named, reusable processor configurations. A config is
// immutable once registered; re-registering a name is rejected.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]batch.Config
}

func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]batch.Config)}
}

func (r *Registry) Register(name string, cfg batch.Config) error {
	if name == "" {
		return apperror.New(apperror.BadRequest, "processor name cannot be empty")
	}
	if err := cfg.Validate(); err != nil {
		return apperror.New(apperror.BadRequest, err.Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.configs[name]; exists {
		return apperror.New(apperror.Conflict, "processor already registered: "+name)
	}
	r.configs[name] = cfg
	return nil
}

func (r *Registry) Get(name string) (batch.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	if !ok {
		return batch.Config{}, apperror.New(apperror.NotFound, "processor not found: "+name)
	}
	return cfg, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
