package connector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tbourn/go-engage-backend/internal/domain"
)

// Factory builds a connector bound to one account's credentials.
type Factory func(account domain.SocialAccount) (Connector, error)

// ErrUnknownPlatform is returned when no factory is registered for an
// account's platform.
type ErrUnknownPlatform struct{ Platform string }

func (e ErrUnknownPlatform) Error() string {
	return fmt.Sprintf("no connector registered for platform %q", e.Platform)
}

// Registry maps platform keys to connector factories. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs f for platform, replacing any previous factory.
func (r *Registry) Register(platform string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[platform] = f
}

// For builds the connector for account.
func (r *Registry) For(account domain.SocialAccount) (Connector, error) {
	r.mu.RLock()
	f, ok := r.factories[account.Platform]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownPlatform{Platform: account.Platform}
	}
	return f(account)
}

// Platforms lists the registered platform keys in sorted order.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
