package headerstore

import (
	"context"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/shruggr/headerchain/models"
)

// Store is an ordered, position-indexed collection of headers.
// Position 0 holds the chain's starting header and each following position
// holds the next height; the chain tracker is the only writer.
type Store interface {
	// Get retrieves the header at a position
	// Returns nil if the position is past the end
	Get(ctx context.Context, index uint64) (*models.Header, error)

	// Len returns the number of stored headers
	Len(ctx context.Context) (uint64, error)

	// Append adds headers after the last position
	Append(ctx context.Context, headers ...*models.Header) error

	// Truncate drops every header at or after position length
	Truncate(ctx context.Context, length uint64) error

	// Close releases any resources
	Close() error
}

// Replacer is implemented by stores that can truncate and append in one
// atomic step. The tracker prefers it for reorgs.
type Replacer interface {
	Replace(ctx context.Context, length uint64, headers []*models.Header) error
}

// HashLookup is implemented by stores that keep their own hash index
type HashLookup interface {
	// GetByHash returns nil if no stored header has the hash
	GetByHash(ctx context.Context, hash chainhash.Hash) (*models.Header, error)
}

// Wrapper is implemented by stores layered over another store
type Wrapper interface {
	Unwrap() Store
}

// Replace truncates s to length and appends headers, atomically when s
// implements Replacer.
func Replace(ctx context.Context, s Store, length uint64, headers []*models.Header) error {
	if r, ok := s.(Replacer); ok {
		return r.Replace(ctx, length, headers)
	}
	if err := s.Truncate(ctx, length); err != nil {
		return err
	}
	return s.Append(ctx, headers...)
}

// AsHashLookup finds a HashLookup in s or any store it wraps
func AsHashLookup(s Store) (HashLookup, bool) {
	for s != nil {
		if hl, ok := s.(HashLookup); ok {
			return hl, true
		}
		w, ok := s.(Wrapper)
		if !ok {
			return nil, false
		}
		s = w.Unwrap()
	}
	return nil, false
}
