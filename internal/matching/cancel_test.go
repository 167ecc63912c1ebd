package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/common"
	"fenrir/internal/market"
)

func TestCancelByID_RestoresFreeBalances(t *testing.T) {
	mkt := testMarket(t)
	book := NewBook(64, 16)
	eq := market.NewEventQueue(16)
	positions := market.NewPositionBook()

	owner := positions.GetOrCreate("owner")
	before := owner.QuoteFreeNative
	beforeBase := owner.BaseFreeNative

	res := restOrder(t, book, mkt, eq, owner, "owner", common.Ask, 1000, 3, 0)
	require.NotNil(t, res.OrderID)

	cancelRes, err := CancelByID(book, mkt, owner, *res.OrderID, "owner")
	require.NoError(t, err)
	assert.Equal(t, 1, cancelRes.Cancelled)

	assert.Equal(t, before, owner.QuoteFreeNative)
	assert.Equal(t, beforeBase, owner.BaseFreeNative)
	assert.False(t, owner.HasOpenOrders())

	_, ok := book.Asks.BestPrice(0, 0, false)
	assert.False(t, ok)
}

func TestCancelByID_WrongOwnerRejected(t *testing.T) {
	mkt := testMarket(t)
	book := NewBook(64, 16)
	eq := market.NewEventQueue(16)
	positions := market.NewPositionBook()

	owner := positions.GetOrCreate("owner")
	res := restOrder(t, book, mkt, eq, owner, "owner", common.Ask, 1000, 3, 0)

	intruder := positions.GetOrCreate("intruder")
	intruder.AddOrder(0, common.NewSideAndOrderTree(common.Ask, common.TreeFixed), res.OrderID.Key, 0, 1000, 3, 0)

	_, err := CancelByID(book, mkt, intruder, *res.OrderID, "intruder")
	assert.ErrorIs(t, err, common.ErrInvalidOwner)
}

func TestCancelByID_NotFound(t *testing.T) {
	mkt := testMarket(t)
	book := NewBook(64, 16)
	positions := market.NewPositionBook()
	owner := positions.GetOrCreate("owner")

	_, err := CancelByID(book, mkt, owner, OrderID{}, "owner")
	assert.ErrorIs(t, err, common.ErrOrderIDNotFound)
}

func TestCancelByClientOrderID_CancelsAllMatches(t *testing.T) {
	mkt := testMarket(t)
	book := NewBook(64, 16)
	eq := market.NewEventQueue(16)
	positions := market.NewPositionBook()

	owner := positions.GetOrCreate("owner")
	order1 := fixedOrder(common.Ask, 1000, 1, 1_000_000)
	order1.ClientOrderID = 42
	order2 := fixedOrder(common.Ask, 1001, 1, 1_000_000)
	order2.ClientOrderID = 42

	_, err := NewOrder(book, mkt, eq, order1, 0, false, owner, "owner", 0, 8)
	require.NoError(t, err)
	_, err = NewOrder(book, mkt, eq, order2, 0, false, owner, "owner", 0, 8)
	require.NoError(t, err)

	res, err := CancelByClientOrderID(book, mkt, owner, "owner", 42)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Cancelled)
	assert.False(t, owner.HasOpenOrders())
}

func TestCancelAll_RespectsSideFilterAndLimit(t *testing.T) {
	mkt := testMarket(t)
	book := NewBook(64, 16)
	eq := market.NewEventQueue(16)
	positions := market.NewPositionBook()

	owner := positions.GetOrCreate("owner")
	_, err := NewOrder(book, mkt, eq, fixedOrder(common.Ask, 1000, 1, 1_000_000), 0, false, owner, "owner", 0, 8)
	require.NoError(t, err)
	_, err = NewOrder(book, mkt, eq, fixedOrder(common.Ask, 1001, 1, 1_000_000), 0, false, owner, "owner", 0, 8)
	require.NoError(t, err)
	_, err = NewOrder(book, mkt, eq, fixedOrder(common.Bid, 900, 1, 1_000_000), 0, false, owner, "owner", 0, 8)
	require.NoError(t, err)

	askSide := common.Ask
	res, err := CancelAll(book, mkt, owner, "owner", &askSide, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Cancelled)

	// The resting bid should be untouched.
	bestBid, ok := book.Bids.BestPrice(0, 0, false)
	require.True(t, ok)
	assert.Equal(t, int64(900), bestBid)
}
