// Package miner fabricates headers for tests and demos. It searches nonce
// space for headers that meet, or deliberately miss, their target.
package miner

import (
	"context"
	"crypto/rand"
	"errors"
	"math"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/shruggr/headerchain/chain"
	"github.com/shruggr/headerchain/consensus"
	"github.com/shruggr/headerchain/models"
)

// ErrNonceExhausted is returned when no nonce gives the wanted result
var ErrNonceExhausted = errors.New("nonce space exhausted")

// RegtestBits is the easiest regtest target, met by about half of all hashes
const RegtestBits = 0x207fffff

// RegtestMaxTarget is the target encoded by RegtestBits
var RegtestMaxTarget = consensus.CompactToBig(RegtestBits)

// Genesis returns the regtest genesis header
func Genesis() *models.Header {
	merkleRoot, _ := chainhash.NewHashFromHex("4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b")
	return &models.Header{
		Height:     0,
		Version:    1,
		MerkleRoot: *merkleRoot,
		Timestamp:  1296688602,
		Bits:       RegtestBits,
		Nonce:      2,
	}
}

type options struct {
	bits            *uint32
	timestamp       *uint32
	timestampOffset int64
	spacing         uint32
	invalid         bool
}

// Option adjusts a fabricated header
type Option func(*options)

// WithBits overrides the header's bits
func WithBits(bits uint32) Option {
	return func(o *options) { o.bits = &bits }
}

// WithTimestamp sets an absolute timestamp
func WithTimestamp(ts uint32) Option {
	return func(o *options) { o.timestamp = &ts }
}

// WithTimestampOffset shifts the default timestamp by delta seconds
func WithTimestampOffset(delta int64) Option {
	return func(o *options) { o.timestampOffset = delta }
}

// WithSpacing sets the default gap to the parent's timestamp
func WithSpacing(seconds uint32) Option {
	return func(o *options) { o.spacing = seconds }
}

// WithInvalidProof makes the header's hash exceed its target
func WithInvalidProof() Option {
	return func(o *options) { o.invalid = true }
}

func buildOptions(opts []Option) *options {
	o := &options{spacing: consensus.TargetSpacing}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateHeader builds a header on top of prev carrying bits, unless
// overridden, and searches for a nonce.
func CreateHeader(prev *models.Header, bits uint32, opts ...Option) (*models.Header, error) {
	o := buildOptions(opts)

	h := &models.Header{
		Height:    prev.Height + 1,
		Version:   prev.Version,
		PrevHash:  prev.Hash(),
		Timestamp: uint32(int64(prev.Timestamp) + int64(o.spacing) + o.timestampOffset),
		Bits:      bits,
	}
	if o.timestamp != nil {
		h.Timestamp = *o.timestamp
	}
	if o.bits != nil {
		h.Bits = *o.bits
	}
	if _, err := rand.Read(h.MerkleRoot[:]); err != nil {
		return nil, err
	}

	return h, solve(h, !o.invalid)
}

// solve searches for a nonce whose hash is within target when valid is set,
// or above it otherwise.
func solve(h *models.Header, valid bool) error {
	target := consensus.CompactToBig(h.Bits)
	for nonce := uint32(0); ; nonce++ {
		h.Nonce = nonce
		hash := h.Hash()
		if (consensus.HashToBig(&hash).Cmp(target) <= 0) == valid {
			return nil
		}
		if nonce == math.MaxUint32 {
			return ErrNonceExhausted
		}
	}
}

// Miner fabricates headers that follow a Tracker's difficulty rules
type Miner struct {
	tracker *chain.Tracker
}

// New creates a Miner for tracker
func New(tracker *chain.Tracker) *Miner {
	return &Miner{tracker: tracker}
}

// Next builds one header on top of branch, or on the tip when branch is
// empty, with the bits the tracker expects there.
func (m *Miner) Next(ctx context.Context, branch []*models.Header, opts ...Option) (*models.Header, error) {
	prev := m.tracker.Tip()
	if len(branch) > 0 {
		prev = branch[len(branch)-1]
	}

	bits, err := m.tracker.ExpectedBits(ctx, prev.Height+1, branch)
	if err != nil {
		return nil, err
	}
	return CreateHeader(prev, bits, opts...)
}

// Extend appends n headers to branch. Options apply to every new header.
func (m *Miner) Extend(ctx context.Context, branch []*models.Header, n int, opts ...Option) ([]*models.Header, error) {
	out := append([]*models.Header(nil), branch...)
	for range n {
		h, err := m.Next(ctx, out, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Mine builds n headers on the tip and adds them when commit is set
func (m *Miner) Mine(ctx context.Context, n int, commit bool) ([]*models.Header, error) {
	headers, err := m.Extend(ctx, nil, n)
	if err != nil {
		return nil, err
	}
	if commit {
		if _, err := m.tracker.Add(ctx, headers); err != nil {
			return nil, err
		}
	}
	return headers, nil
}
