package cache

import (
	"context"

	"github.com/shruggr/headerchain/headerstore"
	"github.com/shruggr/headerchain/models"
)

// HeaderCache provides fast access to recently read headers by store position
// This avoids repeated store reads while validating retarget and median-time windows
type HeaderCache interface {
	// Get retrieves a cached header
	// Returns false if not cached
	Get(index uint64) (*models.Header, bool)

	// Put stores a header at a position
	Put(index uint64, header *models.Header)

	// PurgeFrom removes every cached header at or after position index
	PurgeFrom(index uint64)

	// Clear removes all cached entries
	Clear()
}

// Store layers a HeaderCache over a headerstore.Store
type Store struct {
	headerstore.Store
	cache HeaderCache
}

// NewStore wraps store with cache
func NewStore(store headerstore.Store, cache HeaderCache) *Store {
	return &Store{Store: store, cache: cache}
}

// Unwrap returns the underlying store
func (s *Store) Unwrap() headerstore.Store {
	return s.Store
}

// Get serves from cache, falling back to the underlying store
func (s *Store) Get(ctx context.Context, index uint64) (*models.Header, error) {
	if h, ok := s.cache.Get(index); ok {
		return h, nil
	}

	h, err := s.Store.Get(ctx, index)
	if err != nil || h == nil {
		return h, err
	}

	s.cache.Put(index, h)
	return h, nil
}

// Truncate drops headers from the underlying store and the cache
func (s *Store) Truncate(ctx context.Context, length uint64) error {
	s.cache.PurgeFrom(length)
	return s.Store.Truncate(ctx, length)
}

// Replace purges replaced positions and forwards to the underlying store
func (s *Store) Replace(ctx context.Context, length uint64, headers []*models.Header) error {
	s.cache.PurgeFrom(length)
	return headerstore.Replace(ctx, s.Store, length, headers)
}
