package chain

import (
	"context"
	"errors"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/bsv-blockchain/go-sdk/transaction/chaintracker"
)

var _ chaintracker.ChainTracker = (*Tracker)(nil)

// IsValidRootForHeight implements the ChainTracker interface
// Validates that the given merkle root matches the header at the specified height
func (t *Tracker) IsValidRootForHeight(ctx context.Context, root *chainhash.Hash, height uint32) (bool, error) {
	header, err := t.GetByHeight(ctx, uint64(height))
	if errors.Is(err, ErrHeaderNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return header.MerkleRoot.IsEqual(root), nil
}

// CurrentHeight implements the ChainTracker interface
func (t *Tracker) CurrentHeight(ctx context.Context) (uint32, error) {
	return uint32(t.Height()), nil
}
