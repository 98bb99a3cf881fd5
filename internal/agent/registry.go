package agent

import (
	"fmt"
	"sync"

	"github.com/chris/taskbot/internal/domain"
)

// Registry holds the tools the router can dispatch to, in registration order.
// It is filled at startup and only read afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools []domain.ToolDescriptor
	index map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a tool. Names must be unique and handlers non-nil.
func (r *Registry) Register(t domain.ToolDescriptor) error {
	if t.Name == "" {
		return domain.NewError("registry.register", domain.ErrInvalidInput, "tool name is empty")
	}
	if t.Handler == nil {
		return domain.NewError("registry.register", domain.ErrInvalidInput, fmt.Sprintf("tool %s has no handler", t.Name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[t.Name]; ok {
		return domain.NewError("registry.register", domain.ErrDuplicateName, t.Name)
	}
	r.index[t.Name] = len(r.tools)
	r.tools = append(r.tools, t)
	return nil
}

// MustRegister registers every tool and panics on the first failure.
func (r *Registry) MustRegister(tools ...domain.ToolDescriptor) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// List returns the tools in registration order.
func (r *Registry) List() []domain.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ToolDescriptor, len(r.tools))
	copy(out, r.tools)
	return out
}

func (r *Registry) Get(name string) (domain.ToolDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[name]
	if !ok {
		return domain.ToolDescriptor{}, domain.NewError("registry.get", domain.ErrNotFound, name)
	}
	return r.tools[i], nil
}

// Index returns the registration position of name, or -1.
func (r *Registry) Index(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i, ok := r.index[name]; ok {
		return i
	}
	return -1
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
