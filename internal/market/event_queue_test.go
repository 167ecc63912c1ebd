package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/common"
)

func newTestMarketForEvents(t *testing.T) *Market {
	makerFee, err := decimal.NewFromString("-0.0002")
	require.NoError(t, err)
	takerFee, err := decimal.NewFromString("0.0004")
	require.NoError(t, err)
	return NewMarket("TEST", 100, 10, makerFee, takerFee)
}

func TestEventQueue_PushBackFailsWhenFull(t *testing.T) {
	q := NewEventQueue(1)
	assert.NoError(t, q.PushBack(Event{Type: EventOut, Out: OutEvent{Owner: "a"}}))
	assert.ErrorIs(t, q.PushBack(Event{Type: EventOut, Out: OutEvent{Owner: "b"}}), common.ErrEventQueueFull)
}

func TestEventQueue_ConsumeEvents_SkipsUnknownOwners(t *testing.T) {
	mkt := newTestMarketForEvents(t)
	q := NewEventQueue(8)

	known := NewPosition("known")
	known.Orders[0] = OpenOrder{IsFree: false, SideTree: common.NewSideAndOrderTree(common.Ask, common.TreeFixed), OriginalQuantity: 5}
	known.AsksBaseLots = 5

	require.NoError(t, q.PushBack(Event{Type: EventOut, Out: OutEvent{Owner: "unknown", OwnerSlot: 0, Side: common.Ask, Quantity: 1}}))
	require.NoError(t, q.PushBack(Event{Type: EventOut, Out: OutEvent{Owner: "known", OwnerSlot: 0, Side: common.Ask, Quantity: 5}}))

	lookup := func(owner string) (*Position, bool) {
		if owner == "known" {
			return known, true
		}
		return nil, false
	}

	applied, err := q.ConsumeEvents(mkt, lookup, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, q.Len()) // the "unknown" owner's event is retried later, not dropped
	assert.True(t, known.Orders[0].IsFree)
}

func TestEventQueue_ConsumeEvents_RespectsLimit(t *testing.T) {
	mkt := newTestMarketForEvents(t)
	q := NewEventQueue(8)

	pos := NewPosition("owner")
	for i := 0; i < 3; i++ {
		require.NoError(t, q.PushBack(Event{Type: EventOut, Out: OutEvent{Owner: "owner", OwnerSlot: uint8(i), Side: common.Ask, Quantity: 1}}))
	}
	lookup := func(owner string) (*Position, bool) { return pos, true }

	applied, err := q.ConsumeEvents(mkt, lookup, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.Equal(t, 1, q.Len())
}

func TestEventQueue_ConsumeEvents_FillCreditsMaker(t *testing.T) {
	mkt := newTestMarketForEvents(t)
	q := NewEventQueue(8)

	maker := NewPosition("maker")
	maker.Orders[0] = OpenOrder{
		IsFree:           false,
		SideTree:         common.NewSideAndOrderTree(common.Ask, common.TreeFixed),
		OriginalQuantity: 5,
	}
	maker.AsksBaseLots = 5

	require.NoError(t, q.PushBack(Event{
		Type: EventFill,
		Fill: FillEvent{
			TakerSide:  common.Bid,
			MakerOwner: "maker",
			MakerSlot:  0,
			PriceLots:  1000,
			Quantity:   3,
			MakerOut:   false,
		},
	}))

	lookup := func(owner string) (*Position, bool) { return maker, true }
	applied, err := q.ConsumeEvents(mkt, lookup, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	// quoteNative = 1000*3*10 = 30000; maker credit floor at -0.02% = 29994;
	// the remaining 6 rolls into fees_accrued, so credit + fees == notional.
	assert.Equal(t, int64(29994), maker.QuoteFreeNative)
	assert.Equal(t, int64(6), mkt.FeesAccrued)
	assert.Equal(t, int64(2), maker.AsksBaseLots)
	assert.False(t, maker.Orders[0].IsFree)
}
