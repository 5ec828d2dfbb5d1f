package provider

import (
	"context"

	"achievement-sync/internal/library"
)

// Provider is a pluggable achievement data source (Steam, Xbox, GOG, Epic,
// RetroAchievements). Implementations own their protocol details; the refresh
// core only depends on this surface.
type Provider interface {
	// Key is the stable identifier used in settings and cache records.
	Key() string
	// Name is the human-readable display name.
	Name() string
	// IsAuthenticated reports whether the provider currently holds usable
	// credentials. Cheap; called as a pre-flight gate.
	IsAuthenticated() bool
	// IsCapable reports whether this provider can service the given game.
	// May return an error; callers treat errors as "not capable".
	IsCapable(g library.Game) (bool, error)
	// FetchAchievements retrieves achievement data for one game.
	FetchAchievements(ctx context.Context, g library.Game) (*GameAchievementData, error)
	// IsAuthError classifies a FetchAchievements failure as lost authentication.
	IsAuthError(err error) bool
	// IsTransientError classifies a failure as retryable.
	IsTransientError(err error) bool
}

// Registry holds providers in registration order. Grouping games per provider
// depends on this order staying stable (first capable provider wins).
type Registry struct {
	providers []Provider
	byKey     map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Provider)}
}

// Register appends a provider. Re-registering a key replaces the provider but
// keeps its original position.
func (r *Registry) Register(p Provider) {
	if p == nil {
		return
	}
	if _, exists := r.byKey[p.Key()]; exists {
		for i, existing := range r.providers {
			if existing.Key() == p.Key() {
				r.providers[i] = p
				break
			}
		}
	} else {
		r.providers = append(r.providers, p)
	}
	r.byKey[p.Key()] = p
}

// All returns providers in registration order.
func (r *Registry) All() []Provider {
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Get returns the provider registered under key.
func (r *Registry) Get(key string) (Provider, bool) {
	p, ok := r.byKey[key]
	return p, ok
}
