package chain

import (
	"context"

	"github.com/shruggr/headerchain/models"
)

// GetByHeight returns a copy of the committed header at height
func (t *Tracker) GetByHeight(ctx context.Context, height uint64) (*models.Header, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, err := t.committed(ctx, height)
	if err != nil {
		return nil, err
	}
	return cloneHeader(h), nil
}

// GetByHeightWithExtra resolves height against extra spliced onto the
// committed chain and returns a copy. Heights below extra come from the
// committed chain, heights within it from extra, and heights above it are
// never found, even when the committed chain holds a header there on
// another branch.
func (t *Tracker) GetByHeightWithExtra(ctx context.Context, height uint64, extra []*models.Header) (*models.Header, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, err := t.getByHeight(ctx, height, extra)
	if err != nil {
		return nil, err
	}
	return cloneHeader(h), nil
}

func (t *Tracker) getByHeight(ctx context.Context, height uint64, extra []*models.Header) (*models.Header, error) {
	if len(extra) == 0 {
		return t.committed(ctx, height)
	}

	start := extra[0].Height
	if height < start {
		return t.committed(ctx, height)
	}
	if i := height - start; i < uint64(len(extra)) {
		return extra[i], nil
	}
	return nil, &Error{Kind: KindLookup, Height: height, Err: ErrHeaderNotFound}
}

func (t *Tracker) committed(ctx context.Context, height uint64) (*models.Header, error) {
	if height < t.base || height > t.tip.Height {
		return nil, &Error{Kind: KindLookup, Height: height, Err: ErrHeaderNotFound}
	}

	h, err := t.store.Get(ctx, height-t.base)
	if err != nil {
		return nil, storageError(err)
	}
	if h == nil {
		return nil, &Error{Kind: KindLookup, Height: height, Err: ErrHeaderNotFound}
	}
	return h, nil
}
