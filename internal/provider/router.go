package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Router manages multiple LLM providers and routes requests by provider ID.
type Router struct {
	providers map[string]Provider
	defaults  string // default provider ID
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates a new provider router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
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

// SetDefault sets the provider used when a request names an unknown one.
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

// resolve returns the named provider, or the default one when the name is
// empty or not registered.
func (r *Router) resolve(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.providers[providerID]; ok {
		return p, nil
	}
	if p, ok := r.providers[r.defaults]; ok {
		if providerID != "" {
			r.logger.Warn("provider not registered, using default",
				zap.String("requested", providerID), zap.String("default", r.defaults))
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, providerID)
}

// Route sends a chat request through the named provider.
func (r *Router) Route(ctx context.Context, providerID string, req *ChatRequest) (*ChatResponse, error) {
	p, err := r.resolve(providerID)
	if err != nil {
		return nil, err
	}
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s chat: %w", p.ID(), err)
	}
	return resp, nil
}

// GenerateImage sends an image request to the named provider.
func (r *Router) GenerateImage(ctx context.Context, providerID string, req *ImageRequest) (*ImageResponse, error) {
	p, err := r.resolve(providerID)
	if err != nil {
		return nil, err
	}
	gen, ok := p.(ImageGenerator)
	if !ok {
		return nil, fmt.Errorf("%s: %w", p.ID(), ErrImageUnsupported)
	}
	resp, err := gen.GenerateImage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s image: %w", p.ID(), err)
	}
	return resp, nil
}

// GetProvider returns a provider by ID.
func (r *Router) GetProvider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// ListProviders returns all registered providers ordered by ID.
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
