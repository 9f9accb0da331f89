package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/nfrm/cary-services/internal/metrics"
)

// Router manages multiple LLM providers and routes requests. A route is a
// caller name such as "agent" or "conversation".
type Router struct {
	providers map[string]Provider
	bindings  map[string]string   // route -> providerID
	fallbacks map[string][]string // route -> fallback provider chain
	defaults  string              // default provider ID
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates a new provider router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		bindings:  make(map[string]string),
		fallbacks: make(map[string][]string),
		logger:    logger,
	}
}

// Register adds a provider to the router.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaults == "" {
		r.defaults = p.ID()
	}
	r.logger.Info("registered provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetDefault sets the default provider.
func (r *Router) SetDefault(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = providerID
}

// DefaultID returns the current default provider ID.
func (r *Router) DefaultID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// Bind associates a route with a specific provider.
func (r *Router) Bind(route, providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[route] = providerID
}

// SetFallbacks configures fallback providers for a route.
func (r *Router) SetFallbacks(route string, providerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[route] = providerIDs
}

// Route sends a chat request through the provider bound to route, then
// through its fallbacks in order.
func (r *Router) Route(ctx context.Context, route string, req *ChatRequest) (*ChatResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	primary := r.getProvider(route)
	if primary == nil {
		return nil, fmt.Errorf("%w for route %s", ErrNoProvider, route)
	}

	resp, err := r.chat(ctx, primary, req)
	if err == nil {
		return resp, nil
	}
	r.logger.Warn("primary provider failed, trying fallbacks",
		zap.String("route", route), zap.String("provider", primary.ID()), zap.Error(err))

	for _, fbID := range r.fallbacks[route] {
		fb, ok := r.providers[fbID]
		if !ok || fb == primary {
			continue
		}
		resp, err = r.chat(ctx, fb, req)
		if err == nil {
			return resp, nil
		}
		r.logger.Warn("fallback provider failed", zap.String("provider", fbID), zap.Error(err))
	}

	return nil, fmt.Errorf("all providers failed for route %s: %w", route, err)
}

func (r *Router) chat(ctx context.Context, p Provider, req *ChatRequest) (*ChatResponse, error) {
	resp, err := p.Chat(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.LLMRequests.WithLabelValues(p.ID(), outcome).Inc()
	return resp, err
}

func (r *Router) getProvider(route string) Provider {
	if pid, ok := r.bindings[route]; ok {
		if p, ok := r.providers[pid]; ok {
			return p
		}
	}
	if p, ok := r.providers[r.defaults]; ok {
		return p
	}
	return nil
}

// GetProvider returns a provider by ID.
func (r *Router) GetProvider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// ListProviders returns all registered providers sorted by ID.
func (r *Router) ListProviders() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}

// ListModels collects the models of every provider. Providers that fail are
// logged and skipped.
func (r *Router) ListModels(ctx context.Context) []Model {
	var models []Model
	for _, p := range r.ListProviders() {
		ms, err := p.ListModels(ctx)
		if err != nil {
			r.logger.Warn("list models failed", zap.String("provider", p.ID()), zap.Error(err))
			continue
		}
		models = append(models, ms...)
	}
	return models
}
