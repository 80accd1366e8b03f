// Package registry maps task function names to their Go implementations.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/flowtask/taskqueue-go/internal/logger"
)

// ErrNotFound is returned when a function name has no registered handler.
var ErrNotFound = errors.New("registry: function not found")

// HandlerFunc is the shape every registered task function must satisfy.
// args and kwargs are passed through exactly as submitted.
type HandlerFunc func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error)

// Registry is a process-wide name→callable map. It is read-mostly in
// steady state; registration normally happens once at startup, but the
// map is guarded so late registration from tests or plugins is safe.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds name to fn, overwriting and logging a warning if name is
// already bound.
func (r *Registry) Register(name string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		logger.Get().Warn().Str("func_name", name).Msg("task already registered, overwriting")
	}
	r.handlers[name] = fn
	logger.Get().Info().Str("func_name", name).Msg("registered task")
}

// Get returns the handler bound to name, or ErrNotFound.
func (r *Registry) Get(name string) (HandlerFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.handlers[name]
	if !ok {
		return nil, ErrNotFound
	}
	return fn, nil
}

// List returns all registered names, sorted for deterministic output.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes name, reporting whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[name]; !ok {
		return false
	}
	delete(r.handlers, name)
	logger.Get().Info().Str("func_name", name).Msg("unregistered task")
	return true
}
