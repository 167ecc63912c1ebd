package market

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fenrir/internal/common"
	"fenrir/internal/orderbook"
)

func TestPosition_AddOrderThenCancelOrder_RestoresFreeBalances(t *testing.T) {
	pos := NewPosition("owner")
	pos.QuoteFreeNative = 1_000_000
	pos.BaseFreeNative = 500

	beforeQuote := pos.QuoteFreeNative
	beforeBase := pos.BaseFreeNative

	key := orderbook.Key{Hi: 1000, Lo: 1}
	sideTree := common.NewSideAndOrderTree(common.Bid, common.TreeFixed)
	pos.AddOrder(0, sideTree, key, 7, 1000, 5, 20)

	assert.False(t, pos.Orders[0].IsFree)
	assert.Equal(t, int64(5), pos.BidsBaseLots)
	assert.Equal(t, beforeQuote-20, pos.QuoteFreeNative)

	pos.CancelOrder(0, 5, 100, 10)

	assert.True(t, pos.Orders[0].IsFree)
	assert.Equal(t, int64(0), pos.BidsBaseLots)
	assert.Equal(t, beforeQuote, pos.QuoteFreeNative)
	assert.Equal(t, beforeBase, pos.BaseFreeNative)
	assert.Equal(t, int64(0), pos.LockedMakerFees)
}

func TestPosition_NextFreeSlot_FullTable(t *testing.T) {
	pos := NewPosition("owner")
	for i := 0; i < NumSlots; i++ {
		pos.Orders[i].IsFree = false
	}
	_, err := pos.NextFreeSlot()
	assert.ErrorIs(t, err, common.ErrOpenOrdersFull)
}

func TestPosition_ReleaseLockedFee_ProRataThenFullOnOut(t *testing.T) {
	pos := NewPosition("owner")
	key := orderbook.Key{Hi: 1000, Lo: 1}
	sideTree := common.NewSideAndOrderTree(common.Bid, common.TreeFixed)
	pos.AddOrder(0, sideTree, key, 0, 1000, 10, 100)

	released := pos.ReleaseLockedFee(0, 4, false)
	assert.Equal(t, int64(40), released)
	assert.Equal(t, int64(60), pos.Orders[0].LockedFee)

	released = pos.ReleaseLockedFee(0, 6, true)
	assert.Equal(t, int64(60), released)
	assert.Equal(t, int64(0), pos.Orders[0].LockedFee)
}

func TestPositionBook_GetOrCreateIsIdempotent(t *testing.T) {
	pb := NewPositionBook()
	a := pb.GetOrCreate("alice")
	b := pb.GetOrCreate("alice")
	assert.Same(t, a, b)
	assert.Equal(t, 1, pb.Len())

	_, ok := pb.Get("bob")
	assert.False(t, ok)
}

func TestPositionBook_Delete(t *testing.T) {
	pb := NewPositionBook()
	pb.GetOrCreate("alice")
	pb.Delete("alice")
	_, ok := pb.Get("alice")
	assert.False(t, ok)
}
