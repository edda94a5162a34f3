package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shruggr/headerchain/models"
)

// Store is an in-memory implementation of headerstore.Store
// It is the tracker's default backend. Headers are copied in and out.
type Store struct {
	mu      sync.RWMutex
	headers []*models.Header
}

// New creates a new in-memory store seeded with headers
func New(headers ...*models.Header) *Store {
	return &Store{headers: clone(headers)}
}

// Get retrieves the header at a position
func (s *Store) Get(ctx context.Context, index uint64) (*models.Header, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index >= uint64(len(s.headers)) {
		return nil, nil
	}
	h := *s.headers[index]
	return &h, nil
}

// Len returns the number of stored headers
func (s *Store) Len(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.headers)), nil
}

// Append adds headers after the last position
func (s *Store) Append(ctx context.Context, headers ...*models.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.headers = append(s.headers, clone(headers)...)
	return nil
}

// Truncate drops every header at or after position length
func (s *Store) Truncate(ctx context.Context, length uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.truncate(length)
}

// Replace truncates and appends under a single lock
func (s *Store) Replace(ctx context.Context, length uint64, headers []*models.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.truncate(length); err != nil {
		return err
	}
	s.headers = append(s.headers, clone(headers)...)
	return nil
}

func clone(headers []*models.Header) []*models.Header {
	out := make([]*models.Header, len(headers))
	for i, h := range headers {
		c := *h
		out[i] = &c
	}
	return out
}

func (s *Store) truncate(length uint64) error {
	if length > uint64(len(s.headers)) {
		return fmt.Errorf("truncate length %d exceeds store length %d", length, len(s.headers))
	}
	clear(s.headers[length:])
	s.headers = s.headers[:length]
	return nil
}

// Close releases any resources
func (s *Store) Close() error {
	return nil
}
