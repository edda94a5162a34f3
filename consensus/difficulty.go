package consensus

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shruggr/headerchain/models"
)

var (
	ErrIncorrectDifficulty = errors.New("incorrect difficulty")
	ErrInsufficientHistory = errors.New("insufficient history for retarget")
)

var targetTimespanBig = big.NewInt(TargetTimespan)

// IsRetargetHeight reports whether height starts a new difficulty period
func IsRetargetHeight(height uint64) bool {
	return height != 0 && height%RetargetInterval == 0
}

// Retarget scales the previous period's target by how long the period took.
// The timespan is clamped to a factor of four either way and the result is
// capped at limit.
func Retarget(prevBits uint32, firstTimestamp, lastTimestamp uint32, limit *big.Int) uint32 {
	actual := int64(lastTimestamp) - int64(firstTimestamp)
	if actual < TargetTimespan/4 {
		actual = TargetTimespan / 4
	}
	if actual > TargetTimespan*4 {
		actual = TargetTimespan * 4
	}

	newTarget := CompactToBig(prevBits)
	newTarget.Mul(newTarget, big.NewInt(actual))
	newTarget.Quo(newTarget, targetTimespanBig)

	if limit != nil && newTarget.Cmp(limit) > 0 {
		newTarget.Set(limit)
	}
	return BigToCompact(newTarget)
}

// ExpectedBits computes the bits required at height. Off a retarget boundary
// that is the parent's bits; on one it is derived from the previous
// RetargetInterval headers.
func ExpectedBits(height uint64, lookup HeaderLookup, limit *big.Int) (uint32, error) {
	if height == 0 {
		return 0, fmt.Errorf("%w: genesis has no parent", ErrHeaderUnavailable)
	}
	prev, err := lookup(height - 1)
	if err != nil {
		return 0, err
	}
	if !IsRetargetHeight(height) {
		return prev.Bits, nil
	}

	first, err := lookup(height - RetargetInterval)
	if errors.Is(err, ErrHeaderUnavailable) {
		return 0, fmt.Errorf("%w: need header %d", ErrInsufficientHistory, height-RetargetInterval)
	}
	if err != nil {
		return 0, err
	}
	return Retarget(prev.Bits, first.Timestamp, prev.Timestamp, limit), nil
}

// CheckDifficulty requires the header's bits to match ExpectedBits exactly
func CheckDifficulty(h *models.Header, lookup HeaderLookup, limit *big.Int) error {
	expected, err := ExpectedBits(h.Height, lookup, limit)
	if err != nil {
		return err
	}
	if h.Bits != expected {
		return fmt.Errorf("%w: expected %08x, got %08x", ErrIncorrectDifficulty, expected, h.Bits)
	}
	return nil
}
