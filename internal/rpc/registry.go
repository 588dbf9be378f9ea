// Package rpc is the JSON-RPC 2.0 surface: the method registry, the
// envelope dispatcher with error-code mapping, the bounded async adapter,
// and the stdio, HTTP, and WebSocket transports that feed it.
package rpc

import (
	"context"
	"fmt"
)

// Handler is one registered method: named params in, result object out,
// typed error on failure.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// Registry maps method names to handlers. It is built once at startup and
// read-only afterwards, so lookups take no lock.
type Registry struct {
	handlers map[string]Handler
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a method name to a handler. Rebinding a name is a
// programmer error and panics at startup rather than shadowing silently.
func (r *Registry) Register(name string, h Handler) {
	if name == "" {
		panic("rpc: method name must not be empty")
	}
	if h == nil {
		panic(fmt.Sprintf("rpc: nil handler for method %q", name))
	}
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("rpc: method %q registered twice", name))
	}
	r.handlers[name] = h
	r.order = append(r.order, name)
}

// Get returns the handler for a method name.
func (r *Registry) Get(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// List returns the method names in registration order.
func (r *Registry) List() []string {
	return append([]string{}, r.order...)
}

// Len reports how many methods are registered.
func (r *Registry) Len() int {
	return len(r.order)
}
