package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/common"
)

func TestFixedPriceData_RejectsNonPositivePrice(t *testing.T) {
	_, err := FixedPriceData(0)
	assert.ErrorIs(t, err, common.ErrInvalidPriceLots)

	_, err = FixedPriceData(-5)
	assert.ErrorIs(t, err, common.ErrInvalidPriceLots)

	v, err := FixedPriceData(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
}

func TestOraclePeggedPriceData_RoundTrips(t *testing.T) {
	for _, offset := range []int64{0, 1, -1, 12345, -12345} {
		data := OraclePeggedPriceData(offset)
		assert.Equal(t, offset, OraclePeggedPriceOffset(data))
	}
}

func TestOraclePeggedPriceData_PreservesOrder(t *testing.T) {
	lo := OraclePeggedPriceData(-100)
	hi := OraclePeggedPriceData(100)
	assert.Less(t, lo, hi)
}

func TestKeyForFixedPrice_PreservesTieBreaker(t *testing.T) {
	original := Key{Hi: OraclePeggedPriceData(-10), Lo: 42}
	rewritten := KeyForFixedPrice(original, 990)
	assert.Equal(t, uint64(990), rewritten.Hi)
	assert.Equal(t, uint64(42), rewritten.Lo)
}

func TestNewKey_BidTieBreakerIsComplemented(t *testing.T) {
	bidKey := NewKey(common.Bid, 1000, 5)
	askKey := NewKey(common.Ask, 1000, 5)
	assert.Equal(t, ^uint64(5), bidKey.Lo)
	assert.Equal(t, uint64(5), askKey.Lo)
}

func TestNewKey_OlderBidSortsLarger(t *testing.T) {
	older := NewKey(common.Bid, 1000, 1)
	newer := NewKey(common.Bid, 1000, 2)
	assert.True(t, newer.Less(older), "a higher seq_num (newer) bid key must sort smaller, so the older bid wins ties")
}

func TestKey_LessOrdersByHiThenLo(t *testing.T) {
	a := Key{Hi: 1, Lo: 100}
	b := Key{Hi: 2, Lo: 0}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))

	c := Key{Hi: 1, Lo: 50}
	assert.True(t, c.Less(a))
}

func TestKey_MismatchBit(t *testing.T) {
	a := Key{Hi: 0b1010, Lo: 0}
	b := Key{Hi: 0b1011, Lo: 0}
	pos, ok := MismatchBit(a, b)
	require.True(t, ok)
	assert.Equal(t, uint32(63), pos) // differ only in the least significant bit of Hi

	_, ok = MismatchBit(a, a)
	assert.False(t, ok)

	c := Key{Hi: 1, Lo: 1}
	d := Key{Hi: 1, Lo: 0}
	pos, ok = MismatchBit(c, d)
	require.True(t, ok)
	assert.Equal(t, uint32(127), pos)
}

func TestKey_Bit(t *testing.T) {
	k := Key{Hi: 1, Lo: 0} // only the least significant bit of Hi set
	assert.Equal(t, uint8(1), k.Bit(63))
	assert.Equal(t, uint8(0), k.Bit(0))

	k2 := Key{Hi: 0, Lo: 1}
	assert.Equal(t, uint8(1), k2.Bit(127))
}
