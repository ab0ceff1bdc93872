package transcript

import (
	"context"

	"podforge/internal/blob"
	"podforge/internal/services"
)

// Resolver turns a blob reference into a readable local path.
type Resolver interface {
	Resolve(ctx context.Context, ref blob.Ref) blob.Result
}

// Store loads transcripts by reference. Transcripts are produced externally
// and never written here.
type Store struct {
	resolver Resolver
}

// NewStore builds a Store backed by resolver.
func NewStore(resolver Resolver) *Store {
	return &Store{resolver: resolver}
}

// Load resolves ref and decodes the transcript it points at.
func (s *Store) Load(ctx context.Context, ref blob.Ref) (*Transcript, error) {
	if ref.IsZero() {
		return nil, services.Wrap(services.ErrValidation, "transcript", "load", "transcript reference is required", nil)
	}
	result := s.resolver.Resolve(ctx, ref)
	if err := result.Error(); err != nil {
		return nil, err
	}
	return LoadFile(result.Path)
}
