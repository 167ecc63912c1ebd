package matching

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/common"
	"fenrir/internal/market"
)

const (
	testBaseLotSize  = int64(100)
	testQuoteLotSize = int64(10)
)

func testMarket(t *testing.T) *market.Market {
	makerFee, err := decimal.NewFromString("-0.0002")
	require.NoError(t, err)
	takerFee, err := decimal.NewFromString("0.0004")
	require.NoError(t, err)
	return market.NewMarket("TEST-MARKET", testBaseLotSize, testQuoteLotSize, makerFee, takerFee)
}

func fixedOrder(side common.Side, priceLots, baseLots, quoteLots int64) Order {
	return Order{
		Side:                      side,
		MaxBaseLots:               baseLots,
		MaxQuoteLotsIncludingFees: quoteLots,
		SelfTradeBehavior:         common.DecrementTake,
		Params: common.OrderParams{
			Kind:      common.ParamsFixed,
			PriceLots: priceLots,
			OrderType: common.PostLimit,
		},
	}
}

// restOrder places a resting order with no opposing liquidity so it's
// guaranteed to post in full; used to seed a book for later scenarios.
func restOrder(t *testing.T, book *Book, mkt *market.Market, eq *market.EventQueue, pos *market.Position, owner string, side common.Side, priceLots, qty int64, now uint64) OrderResult {
	res, err := NewOrder(book, mkt, eq, fixedOrder(side, priceLots, qty, priceLots*qty*testQuoteLotSize*2), 0, false, pos, owner, now, 8)
	require.NoError(t, err)
	require.NotNil(t, res.OrderID)
	return res
}

func TestNewOrder_CrossAndRestBid(t *testing.T) {
	mkt := testMarket(t)
	book := NewBook(64, 16)
	eq := market.NewEventQueue(16)
	positions := market.NewPositionBook()

	maker := positions.GetOrCreate("maker")
	restOrder(t, book, mkt, eq, maker, "maker", common.Ask, 1000, 5, 0)

	taker := positions.GetOrCreate("taker")
	res, err := NewOrder(book, mkt, eq, fixedOrder(common.Bid, 1000, 3, 1_000_000), 0, false, taker, "taker", 0, 8)
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.TotalBaseLotsTaken)
	assert.Equal(t, int64(3*1000), res.TotalQuoteLotsTaken)
	// quote notional = 3*1000*10 = 30000, taker fee = ceil(30000*0.0004) = 12
	assert.Equal(t, int64(12), res.TakerFeesNative)
	// The bid fully matched (3 of 3), so nothing remains to post.
	assert.Nil(t, res.OrderID)
	assert.Equal(t, int64(0), res.PostedBaseNative)

	// Book now has ask price=1000 qty=2 remaining, keyed in the Fixed tree.
	remaining, ok := book.Asks.BestPrice(0, 0, false)
	require.True(t, ok)
	assert.Equal(t, int64(1000), remaining)

	// One Fill event should be queued for the maker.
	assert.Equal(t, 1, eq.Len())
}

func TestNewOrder_PostOnlyRejection(t *testing.T) {
	mkt := testMarket(t)
	book := NewBook(64, 16)
	eq := market.NewEventQueue(16)
	positions := market.NewPositionBook()

	bidder := positions.GetOrCreate("bidder")
	restOrder(t, book, mkt, eq, bidder, "bidder", common.Bid, 1000, 1, 0)

	asker := positions.GetOrCreate("asker")
	order := Order{
		Side:                      common.Ask,
		MaxBaseLots:               1,
		MaxQuoteLotsIncludingFees: 1_000_000,
		SelfTradeBehavior:         common.DecrementTake,
		Params: common.OrderParams{
			Kind:      common.ParamsFixed,
			PriceLots: 1000,
			OrderType: common.PostOnly,
		},
	}
	res, err := NewOrder(book, mkt, eq, order, 0, false, asker, "asker", 1, 8)
	require.NoError(t, err)

	assert.Nil(t, res.OrderID)
	assert.Equal(t, int64(0), res.TotalBaseLotsTaken)
	assert.Equal(t, int64(0), res.PostedBaseNative)

	// Book unchanged: the resting bid is still there, nothing posted on asks.
	bestBid, ok := book.Bids.BestPrice(1, 0, false)
	require.True(t, ok)
	assert.Equal(t, int64(1000), bestBid)
	_, asksHaveOrders := book.Asks.BestPrice(1, 0, false)
	assert.False(t, asksHaveOrders)
	assert.Equal(t, 0, eq.Len())
}

func TestNewOrder_PostOnlySlide(t *testing.T) {
	mkt := testMarket(t)
	book := NewBook(64, 16)
	eq := market.NewEventQueue(16)
	positions := market.NewPositionBook()

	bidder := positions.GetOrCreate("bidder")
	restOrder(t, book, mkt, eq, bidder, "bidder", common.Bid, 1000, 1, 0)

	asker := positions.GetOrCreate("asker")
	order := Order{
		Side:                      common.Ask,
		MaxBaseLots:               1,
		MaxQuoteLotsIncludingFees: 1_000_000,
		SelfTradeBehavior:         common.DecrementTake,
		Params: common.OrderParams{
			Kind:      common.ParamsFixed,
			PriceLots: 1000,
			OrderType: common.PostOnlySlide,
		},
	}
	res, err := NewOrder(book, mkt, eq, order, 0, false, asker, "asker", 1, 8)
	require.NoError(t, err)
	require.NotNil(t, res.OrderID)

	bestAsk, ok := book.Asks.BestPrice(1, 0, false)
	require.True(t, ok)
	assert.Equal(t, int64(1001), bestAsk)
}

func TestNewOrder_PostOnlySlide_NoOpposing(t *testing.T) {
	mkt := testMarket(t)
	book := NewBook(64, 16)
	eq := market.NewEventQueue(16)
	positions := market.NewPositionBook()

	asker := positions.GetOrCreate("asker")
	order := Order{
		Side:                      common.Ask,
		MaxBaseLots:               1,
		MaxQuoteLotsIncludingFees: 1_000_000,
		SelfTradeBehavior:         common.DecrementTake,
		Params: common.OrderParams{
			Kind:      common.ParamsFixed,
			PriceLots: 1000,
			OrderType: common.PostOnlySlide,
		},
	}
	res, err := NewOrder(book, mkt, eq, order, 0, false, asker, "asker", 1, 8)
	require.NoError(t, err)
	require.NotNil(t, res.OrderID)

	bestAsk, ok := book.Asks.BestPrice(1, 0, false)
	require.True(t, ok)
	assert.Equal(t, int64(1000), bestAsk)
}

func TestNewOrder_SelfTradeDecrementTake(t *testing.T) {
	mkt := testMarket(t)
	book := NewBook(64, 16)
	eq := market.NewEventQueue(16)
	positions := market.NewPositionBook()

	ownerA := positions.GetOrCreate("A")
	restOrder(t, book, mkt, eq, ownerA, "A", common.Bid, 1000, 2, 0)

	order := Order{
		Side:                      common.Ask,
		MaxBaseLots:               1,
		MaxQuoteLotsIncludingFees: 1_000_000,
		SelfTradeBehavior:         common.DecrementTake,
		Params: common.OrderParams{
			Kind:      common.ParamsFixed,
			PriceLots: 1000,
			OrderType: common.PostLimit,
		},
	}
	res, err := NewOrder(book, mkt, eq, order, 0, false, ownerA, "A", 1, 8)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.TotalBaseLotsTaken)
	assert.Equal(t, 1, eq.Len())

	remaining, ok := book.Bids.BestPrice(1, 0, false)
	require.True(t, ok)
	assert.Equal(t, int64(1000), remaining)
}

func TestNewOrder_SelfTradeAbort(t *testing.T) {
	mkt := testMarket(t)
	book := NewBook(64, 16)
	eq := market.NewEventQueue(16)
	positions := market.NewPositionBook()

	ownerA := positions.GetOrCreate("A")
	restOrder(t, book, mkt, eq, ownerA, "A", common.Bid, 1000, 2, 0)

	order := Order{
		Side:                      common.Ask,
		MaxBaseLots:               1,
		MaxQuoteLotsIncludingFees: 1_000_000,
		SelfTradeBehavior:         common.AbortTransaction,
		Params: common.OrderParams{
			Kind:      common.ParamsFixed,
			PriceLots: 1000,
			OrderType: common.PostLimit,
		},
	}
	_, err := NewOrder(book, mkt, eq, order, 0, false, ownerA, "A", 1, 8)
	assert.ErrorIs(t, err, common.ErrWouldSelfTrade)

	// No mutation at all: bid is still qty 2, no events queued.
	remaining, ok := book.Bids.BestPrice(1, 0, false)
	require.True(t, ok)
	assert.Equal(t, int64(1000), remaining)
	assert.Equal(t, 0, eq.Len())
}

func TestNewOrder_FillOrKillUnderLiquidity(t *testing.T) {
	mkt := testMarket(t)
	book := NewBook(64, 16)
	eq := market.NewEventQueue(16)
	positions := market.NewPositionBook()

	maker := positions.GetOrCreate("maker")
	restOrder(t, book, mkt, eq, maker, "maker", common.Ask, 1000, 2, 0)

	order := Order{
		Side:                      common.Bid,
		MaxBaseLots:               3,
		MaxQuoteLotsIncludingFees: 1_000_000,
		SelfTradeBehavior:         common.DecrementTake,
		Params: common.OrderParams{
			Kind:      common.ParamsFillOrKill,
			PriceLots: 1000,
		},
	}
	_, err := NewOrder(book, mkt, eq, order, 0, false, nil, "taker", 1, 8)
	assert.ErrorIs(t, err, common.ErrWouldExecutePartially)

	remaining, ok := book.Asks.BestPrice(1, 0, false)
	require.True(t, ok)
	assert.Equal(t, int64(1000), remaining)
	assert.Equal(t, 0, eq.Len())
}

func TestNewOrder_ExpiredOrderEvictedDuringMatch(t *testing.T) {
	mkt := testMarket(t)
	book := NewBook(64, 16)
	eq := market.NewEventQueue(16)
	positions := market.NewPositionBook()

	resting999 := positions.GetOrCreate("resting999")
	restOrder(t, book, mkt, eq, resting999, "resting999", common.Ask, 999, 1, 0)

	// restOrder doesn't set TimeInForce; insert a short-lived order directly
	// via NewOrder with a nonzero time_in_force, then advance now past it.
	shortLived := Order{
		Side:                      common.Ask,
		MaxBaseLots:               1,
		MaxQuoteLotsIncludingFees: 1_000_000,
		TimeInForce:               1,
		SelfTradeBehavior:         common.DecrementTake,
		Params: common.OrderParams{
			Kind:      common.ParamsFixed,
			PriceLots: 998,
			OrderType: common.PostLimit,
		},
	}
	expiredOwner := positions.GetOrCreate("expired")
	_, err := NewOrder(book, mkt, eq, shortLived, 0, false, expiredOwner, "expired", 0, 8)
	require.NoError(t, err)

	maker := positions.GetOrCreate("maker")
	restOrder(t, book, mkt, eq, maker, "maker", common.Ask, 1000, 5, 0)

	taker := positions.GetOrCreate("taker")
	// now=2: the price-998 ask's deadline (0+1=1) has passed, the price-999
	// one has none, so only the expired one is evicted while matching.
	res, err := NewOrder(book, mkt, eq, fixedOrder(common.Bid, 1000, 1, 1_000_000), 0, false, taker, "taker", 2, 8)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.TotalBaseLotsTaken)
	assert.Equal(t, int64(999), res.TotalQuoteLotsTaken) // matched the next-best valid ask at 999

	// Two events: one Out for the evicted expired leaf, one Fill for the match.
	assert.Equal(t, 2, eq.Len())
}
