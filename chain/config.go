package chain

import (
	"log/slog"
	"math/big"

	"github.com/shruggr/headerchain/headerstore"
	"github.com/shruggr/headerchain/models"
)

// Config holds configuration for a Tracker
type Config struct {
	// Start seeds an empty store. It is exclusive with a non-empty Store.
	Start *models.Header

	// Store backs the chain. Nil means a new in-memory store.
	Store headerstore.Store

	// Indexed enables lookups by hash. Stores implementing
	// headerstore.HashLookup serve them directly; otherwise the tracker
	// keeps an in-memory index.
	Indexed bool

	// MaxTarget caps acceptable proof-of-work targets
	MaxTarget *big.Int

	// MaxTimestampDrift is how many seconds a timestamp may run ahead of its
	// parent's. Zero means consensus.DefaultMaxTimestampDrift.
	MaxTimestampDrift uint32

	Logger *slog.Logger

	// OnReorg observers run synchronously after each reorg commit
	OnReorg []func(*Reorg)
}
