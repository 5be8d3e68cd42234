package registry

import (
	"fmt"
	"sync"

	"github.com/longregen/cogexec/internal/domain"
	"github.com/longregen/cogexec/internal/domain/models"
)

// Registry is the single source of truth for what the Sandbox Executor may
// invoke, populated once at startup and treated as read-only thereafter.
// The RWMutex guard is defensive: nothing in the pipeline registers tools
// after startup, but a read-mostly map is cheap to protect anyway.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*models.ToolSpec
}

func New() *Registry {
	return &Registry{specs: make(map[string]*models.ToolSpec)}
}

func (r *Registry) Register(spec *models.ToolSpec) error {
	if spec == nil || spec.Name == "" {
		return domain.NewDomainError(domain.ErrInvalidSchema, "tool spec must have a name")
	}
	if spec.ArgSchema.Properties == nil {
		spec.ArgSchema.Properties = make(map[string]models.ArgConstraint)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[spec.Name]; exists {
		return domain.NewDomainError(domain.ErrDuplicateTool, fmt.Sprintf("tool %q already registered", spec.Name))
	}
	r.specs[spec.Name] = spec
	return nil
}

func (r *Registry) Lookup(name string) (*models.ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

func (r *Registry) List(predicate func(*models.ToolSpec) bool) []*models.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.ToolSpec, 0, len(r.specs))
	for _, spec := range r.specs {
		if predicate == nil || predicate(spec) {
			out = append(out, spec)
		}
	}
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}
