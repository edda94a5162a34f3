package models

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
)

// HeaderSize is the length of a serialized block header
const HeaderSize = 80

// ErrMissingField is returned when a JSON header omits a required field
var ErrMissingField = errors.New("header is missing a required field")

// Header is a Bitcoin block header together with its height in the chain.
// Height is not part of the serialized form and does not affect the hash.
type Header struct {
	Height     uint64
	Version    int32
	PrevHash   chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  uint32
	Bits       uint32
	Nonce      uint32
}

// Bytes serializes the header into its 80-byte wire form
//
// Block header structure:
// 0-4:   version (int32)
// 4-36:  prev block hash (32 bytes)
// 36-68: merkle root (32 bytes)
// 68-72: timestamp (uint32)
// 72-76: bits (uint32)
// 76-80: nonce (uint32)
func (h *Header) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Version))
	copy(buf[4:36], h.PrevHash[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[72:76], h.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
	return buf
}

// Hash returns the double-SHA256 of the serialized header
func (h *Header) Hash() chainhash.Hash {
	return chainhash.DoubleHashH(h.Bytes())
}

// ParseHeader decodes an 80-byte header and assigns it the given height
func ParseHeader(raw []byte, height uint64) (*Header, error) {
	if len(raw) != HeaderSize {
		return nil, fmt.Errorf("invalid block header length: got %d, expected %d", len(raw), HeaderSize)
	}

	h := &Header{
		Height:    height,
		Version:   int32(binary.LittleEndian.Uint32(raw[0:4])),
		Timestamp: binary.LittleEndian.Uint32(raw[68:72]),
		Bits:      binary.LittleEndian.Uint32(raw[72:76]),
		Nonce:     binary.LittleEndian.Uint32(raw[76:80]),
	}
	copy(h.PrevHash[:], raw[4:36])
	copy(h.MerkleRoot[:], raw[36:68])
	return h, nil
}

// headerJSON uses pointers so absent fields can be told apart from zero values.
// Hashes are in display (byte-reversed) hex.
type headerJSON struct {
	Height     *uint64 `json:"height"`
	Version    *int32  `json:"version"`
	PrevHash   *string `json:"prevHash"`
	MerkleRoot *string `json:"merkleRoot"`
	Timestamp  *uint32 `json:"timestamp"`
	Bits       *uint32 `json:"bits"`
	Nonce      *uint32 `json:"nonce"`
}

// MarshalJSON encodes the header with display-order hex hashes
func (h Header) MarshalJSON() ([]byte, error) {
	prev := h.PrevHash.String()
	root := h.MerkleRoot.String()
	return json.Marshal(headerJSON{
		Height:     &h.Height,
		Version:    &h.Version,
		PrevHash:   &prev,
		MerkleRoot: &root,
		Timestamp:  &h.Timestamp,
		Bits:       &h.Bits,
		Nonce:      &h.Nonce,
	})
}

// UnmarshalJSON decodes a header, failing with ErrMissingField if any field is absent
func (h *Header) UnmarshalJSON(data []byte) error {
	var raw headerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	missing := func(name string) error {
		return fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	switch {
	case raw.Height == nil:
		return missing("height")
	case raw.Version == nil:
		return missing("version")
	case raw.PrevHash == nil:
		return missing("prevHash")
	case raw.MerkleRoot == nil:
		return missing("merkleRoot")
	case raw.Timestamp == nil:
		return missing("timestamp")
	case raw.Bits == nil:
		return missing("bits")
	case raw.Nonce == nil:
		return missing("nonce")
	}

	prev, err := chainhash.NewHashFromHex(*raw.PrevHash)
	if err != nil {
		return fmt.Errorf("failed to parse prevHash: %w", err)
	}
	root, err := chainhash.NewHashFromHex(*raw.MerkleRoot)
	if err != nil {
		return fmt.Errorf("failed to parse merkleRoot: %w", err)
	}

	*h = Header{
		Height:     *raw.Height,
		Version:    *raw.Version,
		PrevHash:   *prev,
		MerkleRoot: *root,
		Timestamp:  *raw.Timestamp,
		Bits:       *raw.Bits,
		Nonce:      *raw.Nonce,
	}
	return nil
}
