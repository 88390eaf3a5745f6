package llm

import (
	"context"
	"fmt"
	"sync"
)

// Router dispatches chat requests to the provider that serves the
// requested model. It lets the planner, sub-agents and synthesizer mix
// models from different vendors behind a single Provider.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider // model ID -> provider
}

func NewRouter() *Router {
	return &Router{providers: make(map[string]Provider)}
}

// Register routes requests for the given model ID to the provider.
func (r *Router) Register(modelID string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[modelID] = provider
}

func (r *Router) lookup(modelID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[modelID]
	if !ok {
		return nil, fmt.Errorf("no provider registered for model '%s'", modelID)
	}
	return p, nil
}

func (r *Router) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	p, err := r.lookup(req.Model)
	if err != nil {
		return nil, err
	}
	return p.Chat(ctx, req)
}

func (r *Router) ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	p, err := r.lookup(req.Model)
	if err != nil {
		return nil, err
	}
	return p.ChatStream(ctx, req)
}
