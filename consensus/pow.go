package consensus

import (
	"errors"
	"math/big"

	"github.com/shruggr/headerchain/models"
)

var (
	ErrHashAboveTarget = errors.New("hash is above target")
	ErrTargetAboveMax  = errors.New("target is above maximum target")
	ErrInvalidTarget   = errors.New("target is not positive")
)

// CheckProofOfWork verifies the header hash does not exceed the target encoded
// in its bits. A non-nil maxTarget also bounds the decoded target itself.
func CheckProofOfWork(h *models.Header, maxTarget *big.Int) error {
	target := CompactToBig(h.Bits)
	if target.Sign() <= 0 {
		return ErrInvalidTarget
	}
	if maxTarget != nil && target.Cmp(maxTarget) > 0 {
		return ErrTargetAboveMax
	}

	hash := h.Hash()
	if HashToBig(&hash).Cmp(target) > 0 {
		return ErrHashAboveTarget
	}
	return nil
}
