package multihash

import (
	"bytes"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	mh "github.com/multiformats/go-multihash"
	"lukechampine.com/blake3"
)

// ChecksumSize is the encoded length of a Checksum
const ChecksumSize = 34

// Checksum wraps a BLAKE3 multihash used to detect corrupted store records
// Format: <0x1e><0x20><32 bytes> = 34 bytes total
type Checksum []byte

// NewChecksum creates a BLAKE3 multihash from data
func NewChecksum(data []byte) (Checksum, error) {
	digest := blake3.Sum256(data)
	h, err := mh.Encode(digest[:], mh.BLAKE3)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hash: %w", err)
	}
	return Checksum(h), nil
}

// Verify checks that the checksum matches the provided data
func (c Checksum) Verify(data []byte) error {
	decoded, err := mh.Decode(mh.Multihash(c))
	if err != nil {
		return fmt.Errorf("invalid multihash: %w", err)
	}

	if decoded.Code != mh.BLAKE3 || decoded.Length != 32 {
		return fmt.Errorf("expected 32-byte BLAKE3 hash, got 0x%x/%d", decoded.Code, decoded.Length)
	}

	computed, err := NewChecksum(data)
	if err != nil {
		return fmt.Errorf("hash computation failed: %w", err)
	}

	if !bytes.Equal(computed, c) {
		return fmt.Errorf("checksum verification failed")
	}

	return nil
}

// Seal prefixes data with its checksum
func Seal(data []byte) ([]byte, error) {
	sum, err := NewChecksum(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(sum)+len(data))
	out = append(out, sum...)
	return append(out, data...), nil
}

// Open verifies and strips the checksum added by Seal
func Open(sealed []byte) ([]byte, error) {
	if len(sealed) < ChecksumSize {
		return nil, fmt.Errorf("sealed record too short: %d bytes", len(sealed))
	}
	data := sealed[ChecksumSize:]
	if err := Checksum(sealed[:ChecksumSize]).Verify(data); err != nil {
		return nil, err
	}
	return data, nil
}

// HeaderHash wraps a block hash as a dbl-sha2-256 multihash
// Format: <0x56><0x20><32 bytes> = 34 bytes total
type HeaderHash []byte

// WrapChainHash wraps a chainhash.Hash as a multihash
func WrapChainHash(hash chainhash.Hash) (HeaderHash, error) {
	h, err := mh.Encode(hash[:], mh.DBL_SHA2_256)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hash: %w", err)
	}
	return HeaderHash(h), nil
}

// Raw extracts the 32-byte hash from the multihash
func (h HeaderHash) Raw() (chainhash.Hash, error) {
	decoded, err := mh.Decode(mh.Multihash(h))
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("invalid multihash: %w", err)
	}

	if len(decoded.Digest) != chainhash.HashSize {
		return chainhash.Hash{}, fmt.Errorf("expected 32-byte digest, got %d bytes", len(decoded.Digest))
	}

	var raw chainhash.Hash
	copy(raw[:], decoded.Digest)
	return raw, nil
}

// Bytes returns the raw multihash bytes
func (h HeaderHash) Bytes() []byte {
	return []byte(h)
}
