package chain

import (
	"context"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/shruggr/headerchain/headerstore"
	"github.com/shruggr/headerchain/models"
)

// loadIndex uses the store's own hash index when it has one, otherwise it
// builds an in-memory index from the first n stored headers.
func (t *Tracker) loadIndex(ctx context.Context, n uint64) error {
	if hl, ok := headerstore.AsHashLookup(t.store); ok {
		t.hashes = hl
		return nil
	}

	index := make(map[chainhash.Hash]*models.Header, n)
	for i := uint64(0); i < n; i++ {
		h, err := t.store.Get(ctx, i)
		if err != nil {
			return storageError(err)
		}
		if h == nil {
			return storageError(fmt.Errorf("missing header at position %d", i))
		}
		index[h.Hash()] = h
	}
	t.index = index
	return nil
}

func (t *Tracker) indexAdd(h *models.Header) {
	if t.index != nil {
		t.index[h.Hash()] = h
	}
}

func (t *Tracker) indexRemove(h *models.Header) {
	if t.index != nil {
		delete(t.index, h.Hash())
	}
}

// GetByHash returns a copy of the committed header with the given hash.
// It requires the Tracker to be created with Indexed set.
func (t *Tracker) GetByHash(ctx context.Context, hash chainhash.Hash) (*models.Header, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.indexed {
		return nil, newError(KindLookup, ErrIndexingDisabled)
	}

	var h *models.Header
	if t.hashes != nil {
		var err error
		if h, err = t.hashes.GetByHash(ctx, hash); err != nil {
			return nil, storageError(err)
		}
	} else {
		h = t.index[hash]
	}

	if h == nil {
		return nil, &Error{Kind: KindLookup, Hash: &hash, Err: ErrHeaderNotFound}
	}
	return cloneHeader(h), nil
}

// GetByHashHex looks up a hash given in display order hex, the byte-reversed
// form block explorers show (genesis is 000000000019d668...). Hex of the
// internal byte order will not be found.
func (t *Tracker) GetByHashHex(ctx context.Context, s string) (*models.Header, error) {
	if !t.isIndexed() {
		return nil, newError(KindLookup, ErrIndexingDisabled)
	}

	hash, err := chainhash.NewHashFromHex(s)
	if err != nil {
		return nil, newError(KindArgument, fmt.Errorf("%w: %v", ErrInvalidHash, err))
	}
	return t.GetByHash(ctx, *hash)
}

// GetByHashBytes looks up a hash given as raw bytes in internal order, the
// order produced by double SHA-256 and stored in PrevHash.
func (t *Tracker) GetByHashBytes(ctx context.Context, b []byte) (*models.Header, error) {
	if !t.isIndexed() {
		return nil, newError(KindLookup, ErrIndexingDisabled)
	}

	hash, err := chainhash.NewHash(b)
	if err != nil {
		return nil, newError(KindArgument, fmt.Errorf("%w: %v", ErrInvalidHash, err))
	}
	return t.GetByHash(ctx, *hash)
}

func (t *Tracker) isIndexed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.indexed
}
