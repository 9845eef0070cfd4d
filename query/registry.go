// Package query implements the inbound query-request -> application query
// bus -> query-response path shared by every transport (spec.md §4.3.3).
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Handler executes one named query against the application's query bus and
// returns its result as opaque JSON. Per spec.md §9 ("Dynamic query
// names"), handlers are registered by name at startup; there is no
// runtime class synthesis.
type Handler func(ctx context.Context, dto json.RawMessage) (json.RawMessage, error)

// Bus is the minimal surface of the application-level query bus the core
// consumes; it is an external collaborator per spec.md §1.
type Bus interface {
	Dispatch(ctx context.Context, name string, dto json.RawMessage) (json.RawMessage, error)
}

// Registry is a Bus built from handlers registered by name, implementing
// the "registry built at startup" design named in spec.md §9.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register associates name with handler. Registering the same name twice
// replaces the previous handler, matching a typical DI-container startup
// sequence where later registrations win.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
}

// Dispatch implements Bus.
func (r *Registry) Dispatch(ctx context.Context, name string, dto json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("query: no handler registered for %q", name)
	}
	return h(ctx, dto)
}
