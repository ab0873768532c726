package sources

import (
	"context"

	"openprotect-lab/internal/domain/models"
)

// Source supplies the raw input of each simulation tick. It satisfies
// services.TickSource.
type Source interface {
	// Slug returns the unique identifier for this source
	Slug() string

	// Name returns the human-readable name of this source
	Name() string

	// Next returns the input for the next tick. A nil input or an empty one
	// is a quiet tick.
	Next(ctx context.Context) (*models.TickInput, error)
}

// BaseSource provides the identity shared by every source
type BaseSource struct {
	slug string
	name string
}

// NewBaseSource creates a new base source
func NewBaseSource(slug, name string) *BaseSource {
	return &BaseSource{slug: slug, name: name}
}

// Slug returns the unique identifier for this source
func (s *BaseSource) Slug() string {
	return s.slug
}

// Name returns the human-readable name of this source
func (s *BaseSource) Name() string {
	return s.name
}
