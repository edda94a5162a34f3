package consensus

import (
	"math/big"

	"github.com/bsv-blockchain/go-sdk/chainhash"
)

// CompactToBig decodes the compact "bits" representation of a target.
//
// The compact form is a 1-byte exponent followed by a 3-byte mantissa whose
// top bit is a sign flag: N = (-1^sign) * mantissa * 256^(exponent-3)
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}
	return bn
}

// BigToCompact encodes a target into compact form, truncating to the three
// most significant bytes.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	var mantissa uint32
	exponent := uint(len(n.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Abs(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	// keep the sign bit clear by moving a byte into the exponent
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

// HashToBig interprets a little-endian block hash as an unsigned integer
func HashToBig(hash *chainhash.Hash) *big.Int {
	buf := *hash
	for i := 0; i < chainhash.HashSize/2; i++ {
		buf[i], buf[chainhash.HashSize-1-i] = buf[chainhash.HashSize-1-i], buf[i]
	}
	return new(big.Int).SetBytes(buf[:])
}
