package chain_test

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/shruggr/headerchain/chain"
	"github.com/shruggr/headerchain/headerstore/memory"
	"github.com/shruggr/headerchain/miner"
	"github.com/shruggr/headerchain/models"
)

func bitcoinGenesis() *models.Header {
	merkleRoot, _ := chainhash.NewHashFromHex("4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b")
	return &models.Header{
		Height:     0,
		Version:    1,
		MerkleRoot: *merkleRoot,
		Timestamp:  1231006505,
		Bits:       0x1d00ffff,
		Nonce:      2083236893,
	}
}

const bitcoinGenesisHash = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"

func newTracker(t *testing.T, cfg *chain.Config) (*chain.Tracker, *miner.Miner) {
	t.Helper()
	if cfg.Start == nil && cfg.Store == nil {
		cfg.Start = miner.Genesis()
	}
	tr, err := chain.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create tracker: %v", err)
	}
	return tr, miner.New(tr)
}

func mine(t *testing.T, m *miner.Miner, n int, commit bool) []*models.Header {
	t.Helper()
	headers, err := m.Mine(context.Background(), n, commit)
	if err != nil {
		t.Fatalf("Failed to mine %d headers: %v", n, err)
	}
	return headers
}

func extend(t *testing.T, m *miner.Miner, branch []*models.Header, n int, opts ...miner.Option) []*models.Header {
	t.Helper()
	out, err := m.Extend(context.Background(), branch, n, opts...)
	if err != nil {
		t.Fatalf("Failed to extend branch: %v", err)
	}
	return out
}

func expectError(t *testing.T, err error, kind chain.Kind, target error) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %v, got nil", target)
	}
	if !errors.Is(err, target) {
		t.Fatalf("Expected %v, got %v", target, err)
	}
	if got := chain.KindOf(err); got != kind {
		t.Errorf("Expected kind %s, got %s (%v)", kind, got, err)
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("with no args", func(t *testing.T) {
		_, err := chain.New(ctx, &chain.Config{})
		expectError(t, err, chain.KindConfiguration, chain.ErrMissingStart)

		_, err = chain.New(ctx, nil)
		expectError(t, err, chain.KindConfiguration, chain.ErrMissingStart)
	})

	t.Run("with non-empty store", func(t *testing.T) {
		tr, err := chain.New(ctx, &chain.Config{Store: memory.New(bitcoinGenesis())})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		h, err := tr.GetByHeight(ctx, 0)
		if err != nil {
			t.Fatalf("GetByHeight failed: %v", err)
		}
		if *h != *bitcoinGenesis() {
			t.Errorf("Expected bitcoin genesis, got %+v", h)
		}
	})

	t.Run("with starting header", func(t *testing.T) {
		tr, err := chain.New(ctx, &chain.Config{Start: bitcoinGenesis()})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		h, _ := tr.GetByHeight(ctx, 0)
		if *h != *bitcoinGenesis() {
			t.Errorf("Expected bitcoin genesis, got %+v", h)
		}
		if tr.Height() != 0 {
			t.Errorf("Expected height 0, got %d", tr.Height())
		}
	})

	t.Run("with start and non-empty store", func(t *testing.T) {
		_, err := chain.New(ctx, &chain.Config{
			Start: bitcoinGenesis(),
			Store: memory.New(bitcoinGenesis()),
		})
		expectError(t, err, chain.KindConfiguration, chain.ErrMissingStart)
	})

	t.Run("with start and empty store", func(t *testing.T) {
		store := memory.New()
		if _, err := chain.New(ctx, &chain.Config{Start: bitcoinGenesis(), Store: store}); err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if n, _ := store.Len(ctx); n != 1 {
			t.Errorf("Expected start header in store, got length %d", n)
		}
	})
}

func TestGetByHeight(t *testing.T) {
	ctx := context.Background()

	t.Run("out of range", func(t *testing.T) {
		tr, _ := newTracker(t, &chain.Config{Start: bitcoinGenesis()})
		_, err := tr.GetByHeight(ctx, 1)
		expectError(t, err, chain.KindLookup, chain.ErrHeaderNotFound)
	})

	t.Run("in range", func(t *testing.T) {
		tr, m := newTracker(t, &chain.Config{})
		mine(t, m, 10, true)

		h, err := tr.GetByHeight(ctx, 0)
		if err != nil {
			t.Fatalf("GetByHeight failed: %v", err)
		}
		if *h != *miner.Genesis() {
			t.Errorf("Expected genesis, got %+v", h)
		}
		if h, _ := tr.GetByHeight(ctx, 10); h.Height != 10 {
			t.Errorf("Expected height 10, got %d", h.Height)
		}
	})

	t.Run("with extra", func(t *testing.T) {
		tr, m := newTracker(t, &chain.Config{})
		mine(t, m, 10, true)
		extra := mine(t, m, 10, false)

		if h, _ := tr.GetByHeightWithExtra(ctx, 0, extra); *h != *miner.Genesis() {
			t.Errorf("Expected genesis, got %+v", h)
		}
		if h, _ := tr.GetByHeightWithExtra(ctx, 10, extra); h.Height != 10 {
			t.Errorf("Expected height 10, got %d", h.Height)
		}
		if h, _ := tr.GetByHeightWithExtra(ctx, 11, extra); *h != *extra[0] {
			t.Error("Expected first extra header at height 11")
		}
		if h, _ := tr.GetByHeightWithExtra(ctx, 20, extra); *h != *extra[9] {
			t.Error("Expected last extra header at height 20")
		}
	})

	t.Run("with forked extra", func(t *testing.T) {
		tr, m := newTracker(t, &chain.Config{})
		mine(t, m, 10, true)
		extra := mine(t, m, 10, false)
		mine(t, m, 20, true)

		committed10, _ := tr.GetByHeight(ctx, 10)
		if h, _ := tr.GetByHeightWithExtra(ctx, 10, extra); *h != *committed10 {
			t.Error("Expected committed header below extra")
		}
		if h, _ := tr.GetByHeightWithExtra(ctx, 11, extra); *h != *extra[0] {
			t.Error("Expected first extra header at height 11")
		}
		if h, _ := tr.GetByHeightWithExtra(ctx, 20, extra); *h != *extra[9] {
			t.Error("Expected last extra header at height 20")
		}

		_, err := tr.GetByHeightWithExtra(ctx, 21, extra)
		expectError(t, err, chain.KindLookup, chain.ErrHeaderNotFound)

		h, err := tr.GetByHeight(ctx, 21)
		if err != nil || h.Height != 21 {
			t.Fatalf("Expected committed header at 21, got %+v, %v", h, err)
		}
		if h20, _ := tr.GetByHeight(ctx, 20); h20.Hash() == extra[9].Hash() {
			t.Error("Committed header at 20 should differ from the forked extra")
		}
	})
}

func TestGetByHash(t *testing.T) {
	ctx := context.Background()

	t.Run("errors when not indexing", func(t *testing.T) {
		tr, _ := newTracker(t, &chain.Config{Start: bitcoinGenesis()})
		_, err := tr.GetByHashHex(ctx, bitcoinGenesisHash)
		expectError(t, err, chain.KindLookup, chain.ErrIndexingDisabled)

		_, err = tr.GetByHash(ctx, bitcoinGenesis().Hash())
		expectError(t, err, chain.KindLookup, chain.ErrIndexingDisabled)
	})

	t.Run("with hex string", func(t *testing.T) {
		tr, _ := newTracker(t, &chain.Config{Start: bitcoinGenesis(), Indexed: true})
		h, err := tr.GetByHashHex(ctx, bitcoinGenesisHash)
		if err != nil {
			t.Fatalf("GetByHashHex failed: %v", err)
		}
		if *h != *bitcoinGenesis() {
			t.Errorf("Expected bitcoin genesis, got %+v", h)
		}
	})

	t.Run("with bytes", func(t *testing.T) {
		tr, _ := newTracker(t, &chain.Config{Start: bitcoinGenesis(), Indexed: true})
		hash := bitcoinGenesis().Hash()
		h, err := tr.GetByHashBytes(ctx, hash[:])
		if err != nil {
			t.Fatalf("GetByHashBytes failed: %v", err)
		}
		if *h != *bitcoinGenesis() {
			t.Errorf("Expected bitcoin genesis, got %+v", h)
		}
	})

	t.Run("with internal order hex", func(t *testing.T) {
		tr, _ := newTracker(t, &chain.Config{Start: bitcoinGenesis(), Indexed: true})
		hash := bitcoinGenesis().Hash()
		_, err := tr.GetByHashHex(ctx, hex.EncodeToString(hash[:]))
		expectError(t, err, chain.KindLookup, chain.ErrHeaderNotFound)
	})

	t.Run("for missing header", func(t *testing.T) {
		tr, _ := newTracker(t, &chain.Config{Start: bitcoinGenesis(), Indexed: true})
		_, err := tr.GetByHashHex(ctx, "1234")
		expectError(t, err, chain.KindLookup, chain.ErrHeaderNotFound)
	})

	t.Run("with malformed hash", func(t *testing.T) {
		tr, _ := newTracker(t, &chain.Config{Start: bitcoinGenesis(), Indexed: true})
		_, err := tr.GetByHashHex(ctx, "not hex")
		expectError(t, err, chain.KindArgument, chain.ErrInvalidHash)

		_, err = tr.GetByHashBytes(ctx, []byte{1, 2, 3})
		expectError(t, err, chain.KindArgument, chain.ErrInvalidHash)
	})
}

func TestGetHash(t *testing.T) {
	hash := chain.GetHash(bitcoinGenesis())
	if hash.String() != bitcoinGenesisHash {
		t.Errorf("Expected %s, got %s", bitcoinGenesisHash, hash)
	}
}

func TestChainTracker(t *testing.T) {
	ctx := context.Background()
	tr, m := newTracker(t, &chain.Config{})
	headers := mine(t, m, 5, true)

	ok, err := tr.IsValidRootForHeight(ctx, &headers[2].MerkleRoot, 3)
	if err != nil || !ok {
		t.Errorf("Expected valid root at height 3, got %v, %v", ok, err)
	}

	ok, err = tr.IsValidRootForHeight(ctx, &headers[2].MerkleRoot, 4)
	if err != nil || ok {
		t.Errorf("Expected invalid root at height 4, got %v, %v", ok, err)
	}

	ok, err = tr.IsValidRootForHeight(ctx, &headers[2].MerkleRoot, 50)
	if err != nil || ok {
		t.Errorf("Expected invalid root past the tip, got %v, %v", ok, err)
	}

	height, err := tr.CurrentHeight(ctx)
	if err != nil || height != 5 {
		t.Errorf("Expected current height 5, got %d, %v", height, err)
	}
}
