package chain

import (
	"errors"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/shruggr/headerchain/consensus"
	"github.com/shruggr/headerchain/models"
)

// Kind classifies tracker errors
type Kind int

const (
	KindConfiguration Kind = iota + 1
	KindArgument
	KindStructural
	KindConsensus
	KindForkChoice
	KindLookup
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindArgument:
		return "argument"
	case KindStructural:
		return "structural"
	case KindConsensus:
		return "consensus"
	case KindForkChoice:
		return "fork choice"
	case KindLookup:
		return "lookup"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

var (
	ErrMissingStart        = errors.New("must specify starting header")
	ErrInvalidArgument     = errors.New("argument must be a non-empty sequence of block headers")
	ErrMissingHeader       = errors.New("header is missing")
	ErrNotConnected        = errors.New("header not connected to previous")
	ErrHeightNotSequential = errors.New("expected height to be one higher than previous")
	ErrAheadOfTip          = errors.New("start of headers is ahead of chain tip")
	ErrReorgTooDeep        = fmt.Errorf("reorg deeper than %d blocks", consensus.MaxReorgDepth)
	ErrNotHigher           = errors.New("new tip is not higher than current tip")
	ErrAlreadyInChain      = errors.New("headers already in chain")
	ErrHeaderNotFound      = errors.New("header not found")
	ErrIndexingDisabled    = errors.New("indexing disabled, try instantiating with Indexed: true")
	ErrInvalidHash         = errors.New("invalid block hash")
)

// Error is returned by every Tracker operation. Height and Hash identify the
// offending header when there is one.
type Error struct {
	Kind   Kind
	Height uint64
	Hash   *chainhash.Hash
	Err    error
}

func (e *Error) Error() string {
	if e.Hash != nil {
		return fmt.Sprintf("%s: %v (height %d, hash %s)", e.Kind, e.Err, e.Height, e.Hash)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or zero if err is not a tracker error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func headerError(kind Kind, h *models.Header, err error) *Error {
	hash := h.Hash()
	return &Error{Kind: kind, Height: h.Height, Hash: &hash, Err: err}
}

// consensusError keeps tracker errors raised by lookups (storage failures)
// and classifies everything else as a rule violation.
func consensusError(h *models.Header, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return headerError(KindConsensus, h, err)
}

func storageError(err error) *Error {
	return newError(KindStorage, err)
}
