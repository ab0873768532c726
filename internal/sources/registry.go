package sources

import (
	"fmt"
	"sort"
	"sync"

	"openprotect-lab/pkg/logger"
)

// Registry manages the available tick sources
type Registry struct {
	sources map[string]Source
	mu      sync.RWMutex
	logger  *logger.Logger
}

// NewRegistry creates a new source registry
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		sources: make(map[string]Source),
		logger:  log.WithComponent("source-registry"),
	}
}

// Register registers a source
func (r *Registry) Register(src Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slug := src.Slug()
	if _, exists := r.sources[slug]; exists {
		return fmt.Errorf("source already registered: %s", slug)
	}

	r.sources[slug] = src
	r.logger.Info().
		Str("slug", slug).
		Str("name", src.Name()).
		Msg("registered source")

	return nil
}

// Get returns a source by slug
func (r *Registry) Get(slug string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[slug]
	return src, ok
}

// Select returns the source registered under slug or an error naming the
// registered alternatives
func (r *Registry) Select(slug string) (Source, error) {
	if src, ok := r.Get(slug); ok {
		return src, nil
	}
	return nil, fmt.Errorf("source not found: %s (registered: %v)", slug, r.Slugs())
}

// Slugs returns the registered slugs in sorted order
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slugs := make([]string, 0, len(r.sources))
	for slug := range r.sources {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Count returns the number of registered sources
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}
