// Package consensus implements the header-level consensus rules: proof-of-work,
// difficulty retargeting and timestamp checks.
package consensus

import (
	"errors"
	"math/big"

	"github.com/shruggr/headerchain/models"
)

const (
	// RetargetInterval is the number of blocks between difficulty adjustments
	RetargetInterval = 2016

	// TargetSpacing is the desired number of seconds between blocks
	TargetSpacing = 600

	// TargetTimespan is the desired duration of one retarget period in seconds
	TargetTimespan = RetargetInterval * TargetSpacing

	// MedianTimeSpan is the number of previous timestamps used for median-time-past
	MedianTimeSpan = 11

	// MaxReorgDepth is the deepest fork point, counted back from the tip, a new branch may attach to
	MaxReorgDepth = 2016

	// DefaultMaxTimestampDrift is how far, in seconds, a timestamp may run ahead of its parent's
	DefaultMaxTimestampDrift = 2 * 60 * 60
)

// MainnetPowLimit is the easiest target allowed on mainnet (2^224 - 1)
var MainnetPowLimit = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 224), big.NewInt(1))

// ErrHeaderUnavailable is returned by a HeaderLookup for heights outside the known chain
var ErrHeaderUnavailable = errors.New("header unavailable")

// HeaderLookup returns the header at height on the chain being validated.
// It must fail with ErrHeaderUnavailable (possibly wrapped) for unknown heights.
type HeaderLookup func(height uint64) (*models.Header, error)

// Params holds the tunable parts of header validation
type Params struct {
	// MaxTarget caps acceptable targets. Nil means MainnetPowLimit for retargeting
	// and no ceiling for decoded header targets.
	MaxTarget *big.Int

	// MaxTimestampDrift defaults to DefaultMaxTimestampDrift when zero
	MaxTimestampDrift uint32
}

func (p Params) retargetLimit() *big.Int {
	if p.MaxTarget != nil {
		return p.MaxTarget
	}
	return MainnetPowLimit
}

func (p Params) maxDrift() uint32 {
	if p.MaxTimestampDrift == 0 {
		return DefaultMaxTimestampDrift
	}
	return p.MaxTimestampDrift
}

// CheckHeader runs proof-of-work, difficulty and timestamp rules, in that order,
// against a header whose parent is available through lookup.
func (p Params) CheckHeader(h *models.Header, lookup HeaderLookup) error {
	if err := CheckProofOfWork(h, p.MaxTarget); err != nil {
		return err
	}
	if err := CheckDifficulty(h, lookup, p.retargetLimit()); err != nil {
		return err
	}
	return CheckTimestamp(h, lookup, p.maxDrift())
}

// ExpectedBits returns the bits a header at height must carry
func (p Params) ExpectedBits(height uint64, lookup HeaderLookup) (uint32, error) {
	return ExpectedBits(height, lookup, p.retargetLimit())
}
