// Package orderbook implements the two-sided, two-tree (fixed and
// oracle-pegged) price-time-priority order book: a fixed-capacity critbit
// tree per tree, with free-list-backed arenas and best-first interleaved
// iteration across the fixed/pegged pair.
package orderbook

import (
	"math/bits"

	"fenrir/internal/common"
)

// Key is the 128-bit comparand used to order book entries: the high 64
// bits carry the encoded price (price_data), the low 64 bits carry a
// sequence-number tie-breaker. Ordinary unsigned comparison of (Hi, Lo)
// gives price-time priority directly.
type Key struct {
	Hi uint64 // price_data
	Lo uint64 // tie_breaker
}

// NewKey builds the key for a new order: for bids the sequence number is
// bit-complemented so that older (lower seq_num) bids compare as larger,
// giving time priority within a price level without a second comparison.
func NewKey(side common.Side, priceData, seqNum uint64) Key {
	tie := seqNum
	if side == common.Bid {
		tie = ^seqNum
	}
	return Key{Hi: priceData, Lo: tie}
}

// Less reports whether k sorts before o under plain unsigned 128-bit order.
func (k Key) Less(o Key) bool {
	if k.Hi != o.Hi {
		return k.Hi < o.Hi
	}
	return k.Lo < o.Lo
}

func (k Key) Equal(o Key) bool {
	return k.Hi == o.Hi && k.Lo == o.Lo
}

// Bit returns the bit at position pos (0 = most significant bit of Hi, 127
// = least significant bit of Lo).
func (k Key) Bit(pos uint32) uint8 {
	if pos < 64 {
		return uint8((k.Hi >> (63 - pos)) & 1)
	}
	p := pos - 64
	return uint8((k.Lo >> (63 - p)) & 1)
}

// MismatchBit returns the position (0 = MSB of Hi) of the highest-order bit
// at which a and b differ, and ok=false if they are identical.
func MismatchBit(a, b Key) (pos uint32, ok bool) {
	if a.Hi != b.Hi {
		x := a.Hi ^ b.Hi
		return uint32(bits.LeadingZeros64(x)), true
	}
	if a.Lo != b.Lo {
		x := a.Lo ^ b.Lo
		return 64 + uint32(bits.LeadingZeros64(x)), true
	}
	return 0, false
}

// FixedPriceData encodes an absolute lot price. Requires priceLots >= 1.
func FixedPriceData(priceLots int64) (uint64, error) {
	if priceLots < 1 {
		return 0, common.ErrInvalidPriceLots
	}
	return uint64(priceLots), nil
}

// OraclePeggedPriceData encodes a signed offset-from-oracle as an unsigned
// price_data comparable against fixed prices after rewriting (see
// KeyForFixedPrice): offset is mapped into unsigned space by flipping its
// sign bit, preserving order.
func OraclePeggedPriceData(offset int64) uint64 {
	return uint64(offset) + (uint64(1) << 63)
}

// OraclePeggedPriceOffset inverts OraclePeggedPriceData.
func OraclePeggedPriceOffset(priceData uint64) int64 {
	return int64(priceData - (uint64(1) << 63))
}

// KeyForFixedPrice rewrites a pegged leaf's key, replacing its price_data
// with the fixed-tree-equivalent encoding of priceLots while preserving the
// tie-breaker bits, so it can be compared directly against a fixed-tree key.
func KeyForFixedPrice(key Key, priceLots int64) Key {
	return Key{Hi: uint64(priceLots), Lo: key.Lo}
}
