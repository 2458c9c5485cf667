package engine

import (
	"context"
	"fmt"
	"sync"

	"worklog/internal/entity"
	"worklog/internal/transport"
)

// Handler applies the outcome of one request kind to the store. OnSuccess
// receives the decoded response and the request's store info; OnError
// receives the terminal error. Returning an error from OnError marks the
// failure as unconsumed and it propagates to the drain's caller.
type Handler interface {
	OnSuccess(ctx context.Context, resp *transport.Response, info entity.StoreInfo) error
	OnError(ctx context.Context, cause error, info entity.StoreInfo) error
}

// HandlerFuncs adapts plain functions to the Handler interface. A nil
// function is a no-op.
type HandlerFuncs struct {
	Success func(ctx context.Context, resp *transport.Response, info entity.StoreInfo) error
	Error   func(ctx context.Context, cause error, info entity.StoreInfo) error
}

func (h HandlerFuncs) OnSuccess(ctx context.Context, resp *transport.Response, info entity.StoreInfo) error {
	if h.Success == nil {
		return nil
	}
	return h.Success(ctx, resp, info)
}

func (h HandlerFuncs) OnError(ctx context.Context, cause error, info entity.StoreInfo) error {
	if h.Error == nil {
		return cause
	}
	return h.Error(ctx, cause, info)
}

// Registry maps request handler names to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[entity.HandlerName]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[entity.HandlerName]Handler)}
}

// Register binds a handler to a name. Registering a name twice is a
// programming error.
func (r *Registry) Register(name entity.HandlerName, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("handler %q registered twice", name))
	}
	r.handlers[name] = h
}

// Lookup returns the handler for name.
func (r *Registry) Lookup(name entity.HandlerName) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}
