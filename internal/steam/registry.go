// Package steam holds the registry of Steam client backends.
// Backends live outside this module and register a factory by name.
package steam

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mmcdole/depotdump/internal/config"
	"github.com/mmcdole/depotdump/internal/domain"
)

// Factory builds a logged-in client from the configuration record
type Factory func(cfg *config.Config, logger *slog.Logger) (domain.SteamClient, error)

// Registry maps backend names to factories.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry is where backends register from their init functions
var DefaultRegistry = NewRegistry()

// Register adds a backend factory.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return fmt.Errorf("backend name is empty")
	}
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("backend '%s' already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Names returns registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewClient builds a client from the named backend. An empty name selects the
// only registered backend when there is exactly one.
func (r *Registry) NewClient(name string, cfg *config.Config, logger *slog.Logger) (domain.SteamClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if !cfg.HasCredentials() {
		return nil, fmt.Errorf("no credentials configured (set a username and password or enable QR login)")
	}

	r.mu.RLock()
	f, ok := r.factories[name]
	if name == "" && len(r.factories) == 1 {
		for _, only := range r.factories {
			f, ok = only, true
		}
	}
	r.mu.RUnlock()

	if !ok {
		names := r.Names()
		if len(names) == 0 {
			return nil, fmt.Errorf("%w: none is linked into this binary; build with a package that calls steam.DefaultRegistry.Register", domain.ErrNoBackend)
		}
		return nil, fmt.Errorf("%w: %q (available: %v)", domain.ErrNoBackend, name, names)
	}
	return f(cfg, logger)
}
