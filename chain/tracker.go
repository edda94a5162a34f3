// Package chain tracks a headers-only proof-of-work chain. It validates
// incoming header batches, chooses between competing branches by height and
// commits extensions and reorgs atomically.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/shruggr/headerchain/consensus"
	"github.com/shruggr/headerchain/headerstore"
	"github.com/shruggr/headerchain/headerstore/memory"
	"github.com/shruggr/headerchain/models"
)

// Reorg describes a committed branch switch. Its headers are copies and may
// be modified freely.
type Reorg struct {
	// Remove holds the replaced headers, tip first
	Remove []*models.Header

	// Add holds the new branch, fork point first
	Add []*models.Header
}

// ForkHeight returns the height of the last header shared by both branches
func (r *Reorg) ForkHeight() uint64 {
	return r.Add[0].Height - 1
}

// Tracker validates and stores a chain of headers.
// Add calls are serialized; reads may run concurrently with each other.
type Tracker struct {
	mu        sync.RWMutex
	store     headerstore.Store
	params    consensus.Params
	base      uint64
	tip       *models.Header
	indexed   bool
	index     map[chainhash.Hash]*models.Header
	hashes    headerstore.HashLookup
	observers []func(*Reorg)
	logger    *slog.Logger
}

// New creates a Tracker from a starting header or a non-empty store
func New(ctx context.Context, cfg *Config) (*Tracker, error) {
	if cfg == nil {
		return nil, newError(KindConfiguration, ErrMissingStart)
	}

	store := cfg.Store
	if store == nil {
		store = memory.New()
	}

	n, err := store.Len(ctx)
	if err != nil {
		return nil, storageError(err)
	}

	switch {
	case n == 0 && cfg.Start == nil:
		return nil, newError(KindConfiguration, ErrMissingStart)
	case n > 0 && cfg.Start != nil:
		return nil, newError(KindConfiguration, fmt.Errorf("%w: start conflicts with a non-empty store", ErrMissingStart))
	case n == 0:
		start := *cfg.Start
		if err := store.Append(ctx, &start); err != nil {
			return nil, storageError(err)
		}
		n = 1
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		store: store,
		params: consensus.Params{
			MaxTarget:         cfg.MaxTarget,
			MaxTimestampDrift: cfg.MaxTimestampDrift,
		},
		indexed:   cfg.Indexed,
		observers: slices.Clone(cfg.OnReorg),
		logger:    logger.With("component", "chain"),
	}

	first, err := store.Get(ctx, 0)
	if err != nil {
		return nil, storageError(err)
	}
	if t.tip, err = store.Get(ctx, n-1); err != nil {
		return nil, storageError(err)
	}
	if first == nil || t.tip == nil {
		return nil, storageError(fmt.Errorf("store reported %d headers but returned none", n))
	}
	t.base = first.Height

	if t.indexed {
		if err := t.loadIndex(ctx, n); err != nil {
			return nil, err
		}
	}

	t.logger.Debug("tracker ready", "base", t.base, "height", t.tip.Height, "indexed", t.indexed)
	return t, nil
}

// OnReorg registers an observer that runs after each reorg commit.
// Observers must not call Add on the same Tracker.
func (t *Tracker) OnReorg(fn func(*Reorg)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.observers = append(t.observers, fn)
}

// Height returns the tip height
func (t *Tracker) Height() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.tip.Height
}

// Tip returns a copy of the header at the tip
func (t *Tracker) Tip() *models.Header {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return cloneHeader(t.tip)
}

func cloneHeader(h *models.Header) *models.Header {
	if h == nil {
		return nil
	}
	c := *h
	return &c
}

func cloneHeaders(headers []*models.Header) []*models.Header {
	out := make([]*models.Header, len(headers))
	for i, h := range headers {
		out[i] = cloneHeader(h)
	}
	return out
}

// GetHash returns the block hash of h
func GetHash(h *models.Header) chainhash.Hash {
	return h.Hash()
}

// Add validates headers and commits them if they extend the chain or form a
// taller branch. Nothing is mutated when an error is returned. The returned
// Reorg is nil for a plain extension.
func (t *Tracker) Add(ctx context.Context, headers []*models.Header) (*Reorg, error) {
	if len(headers) == 0 {
		return nil, newError(KindArgument, ErrInvalidArgument)
	}

	for i, h := range headers {
		if h == nil {
			return nil, newError(KindStructural, fmt.Errorf("%w at index %d", ErrMissingHeader, i))
		}
	}
	batch := cloneHeaders(headers)

	t.mu.Lock()
	reorg, err := t.add(ctx, batch)
	observers := t.observers
	t.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if reorg != nil {
		for _, fn := range observers {
			fn(reorg)
		}
	}
	return reorg, nil
}

func (t *Tracker) add(ctx context.Context, headers []*models.Header) (*Reorg, error) {
	fork, err := t.connect(ctx, headers)
	if err != nil {
		return nil, err
	}

	lookup := t.overlay(ctx, headers)
	for _, h := range headers {
		if err := t.params.CheckHeader(h, lookup); err != nil {
			return nil, consensusError(h, err)
		}
	}

	if err := t.chooseFork(ctx, fork, headers); err != nil {
		return nil, err
	}

	if fork == t.tip.Height {
		return nil, t.extend(ctx, headers)
	}
	return t.reorg(ctx, fork, headers)
}

// connect checks that the batch attaches to a committed header within
// MaxReorgDepth of the tip and links internally. It returns the fork height.
func (t *Tracker) connect(ctx context.Context, headers []*models.Header) (uint64, error) {
	first := headers[0]
	if first.Height == 0 || first.Height-1 < t.base {
		return 0, headerError(KindStructural, first, ErrNotConnected)
	}

	fork := first.Height - 1
	if fork > t.tip.Height {
		return 0, headerError(KindStructural, first, ErrAheadOfTip)
	}
	if t.tip.Height-fork > consensus.MaxReorgDepth {
		return 0, headerError(KindForkChoice, first, ErrReorgTooDeep)
	}

	parent, err := t.committed(ctx, fork)
	if err != nil {
		return 0, err
	}
	if first.PrevHash != parent.Hash() {
		return 0, headerError(KindStructural, first, ErrNotConnected)
	}

	for i := 1; i < len(headers); i++ {
		prev, h := headers[i-1], headers[i]
		if h.Height != prev.Height+1 {
			return 0, headerError(KindStructural, h, ErrHeightNotSequential)
		}
		if h.PrevHash != prev.Hash() {
			return 0, headerError(KindStructural, h, ErrNotConnected)
		}
	}
	return fork, nil
}

// chooseFork accepts only branches taller than the current chain. Fork choice
// is by height, not accumulated work.
func (t *Tracker) chooseFork(ctx context.Context, fork uint64, headers []*models.Header) error {
	newTip := fork + uint64(len(headers))
	if newTip <= t.tip.Height {
		return headerError(KindForkChoice, headers[len(headers)-1], ErrNotHigher)
	}

	if fork == t.tip.Height {
		return nil
	}
	existing, err := t.committed(ctx, fork+1)
	if err != nil {
		return err
	}
	if existing.Hash() == headers[0].Hash() {
		return headerError(KindForkChoice, headers[0], ErrAlreadyInChain)
	}
	return nil
}

func (t *Tracker) extend(ctx context.Context, headers []*models.Header) error {
	if err := t.store.Append(ctx, headers...); err != nil {
		return t.resync(ctx, err)
	}

	for _, h := range headers {
		t.indexAdd(h)
	}
	t.tip = headers[len(headers)-1]

	t.logger.Debug("chain extended",
		"height", t.tip.Height,
		"hash", t.tip.Hash().String(),
		"count", len(headers))
	return nil
}

func (t *Tracker) reorg(ctx context.Context, fork uint64, headers []*models.Header) (*Reorg, error) {
	remove := make([]*models.Header, 0, t.tip.Height-fork)
	for height := t.tip.Height; height > fork; height-- {
		h, err := t.committed(ctx, height)
		if err != nil {
			return nil, err
		}
		remove = append(remove, h)
	}

	if err := headerstore.Replace(ctx, t.store, fork+1-t.base, headers); err != nil {
		return nil, t.resync(ctx, err)
	}

	for _, h := range remove {
		t.indexRemove(h)
	}
	for _, h := range headers {
		t.indexAdd(h)
	}
	oldTip := t.tip
	t.tip = headers[len(headers)-1]

	t.logger.Info("chain reorganized",
		"fork", fork,
		"depth", len(remove),
		"oldTip", oldTip.Hash().String(),
		"height", t.tip.Height,
		"hash", t.tip.Hash().String())

	return &Reorg{
		Remove: cloneHeaders(remove),
		Add:    cloneHeaders(headers),
	}, nil
}

// resync reloads the cached tip and index from the store after a failed
// write. Stores without an atomic Replace may have been left part way.
func (t *Tracker) resync(ctx context.Context, cause error) error {
	t.logger.Error("store write failed", "error", cause)

	n, err := t.store.Len(ctx)
	if err == nil && n > 0 {
		var tip *models.Header
		if tip, err = t.store.Get(ctx, n-1); err == nil && tip != nil {
			t.tip = tip
			if t.indexed && t.hashes == nil {
				err = t.loadIndex(ctx, n)
			}
		}
	}
	if err != nil {
		t.logger.Error("failed to resync with store", "error", err)
	}
	return storageError(cause)
}

// overlay returns a consensus lookup over the committed chain with extra
// spliced on top.
func (t *Tracker) overlay(ctx context.Context, extra []*models.Header) consensus.HeaderLookup {
	return func(height uint64) (*models.Header, error) {
		h, err := t.getByHeight(ctx, height, extra)
		if errors.Is(err, ErrHeaderNotFound) {
			return nil, fmt.Errorf("%w: height %d", consensus.ErrHeaderUnavailable, height)
		}
		return h, err
	}
}

// ExpectedBits returns the bits a header at height must carry on the chain
// formed by the committed headers below extra and extra itself.
func (t *Tracker) ExpectedBits(ctx context.Context, height uint64, extra []*models.Header) (uint32, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	bits, err := t.params.ExpectedBits(height, t.overlay(ctx, extra))
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return 0, err
		}
		return 0, &Error{Kind: KindLookup, Height: height, Err: err}
	}
	return bits, nil
}
