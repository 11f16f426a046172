package node

import (
	"sync"

	"github.com/flowcore/flowcore/internal/errs"
)

// Registry maps node names to implementations, mirroring mbflow's
// internal/node.Registry uniqueness check. Re-registering the identical
// *Implementation pointer under its name is a no-op; any other
// *Implementation under an already-used name is rejected, even one whose
// node has the same Go type.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Implementation
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Implementation)}
}

// Register adds impl under its name. Re-registering the identical pointer
// is allowed; registering a different implementation under an existing
// name returns a Configuration error.
func (r *Registry) Register(impl *Implementation) error {
	if impl == nil {
		return errs.Configuration("node implementation is nil")
	}
	name := impl.Name()
	if name == "" {
		return errs.Configuration("node name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[name]; ok {
		if existing == impl {
			return nil
		}
		return errs.Configuration("node name already registered with a different implementation: " + name)
	}
	r.byID[name] = impl
	return nil
}

// Get looks up a node by name.
func (r *Registry) Get(name string) (*Implementation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.byID[name]
	return impl, ok
}

// MustGet looks up a node by name, returning a Configuration error if
// absent so engine execution fails fast on an unregistered node.
func (r *Registry) MustGet(name string) (*Implementation, error) {
	impl, ok := r.Get(name)
	if !ok {
		return nil, errs.Configuration("no node registered under name: " + name)
	}
	return impl, nil
}

// ListAll returns every registered implementation.
func (r *Registry) ListAll() []*Implementation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Implementation, 0, len(r.byID))
	for _, impl := range r.byID {
		out = append(out, impl)
	}
	return out
}
