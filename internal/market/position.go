package market

import (
	"fenrir/internal/common"
	"fenrir/internal/orderbook"
)

// NumSlots is the fixed number of resting orders a single owner may have on
// one market at once.
const NumSlots = 24

// OpenOrder is one slot in a Position's order table.
type OpenOrder struct {
	ID            orderbook.Key
	ClientOrderID uint64
	LockedPrice   int64 // worst price reserved funds must cover
	SideTree      common.SideAndOrderTree
	IsFree        bool

	// LockedFee and OriginalQuantity only apply to bid postings under a
	// non-negative maker fee: the fee on the full notional is withheld
	// from QuoteFreeNative at posting time (the quote leg isn't visible
	// again until fill, unlike the implicit base-lot reservation), and
	// released pro-rata into fees_accrued as fills consume the order.
	LockedFee        int64
	OriginalQuantity int64
}

// Position is one owner's resting-order table and free-balance counters on
// one market.
type Position struct {
	Owner string

	BidsBaseLots int64
	AsksBaseLots int64

	BaseFreeNative  int64
	QuoteFreeNative int64

	LockedMakerFees        int64
	ReferrerRebatesAccrued int64

	MakerVolume int64
	TakerVolume int64

	Orders [NumSlots]OpenOrder
}

func NewPosition(owner string) *Position {
	p := &Position{Owner: owner}
	for i := range p.Orders {
		p.Orders[i].IsFree = true
	}
	return p
}

func (p *Position) HasOpenOrders() bool {
	for _, o := range p.Orders {
		if !o.IsFree {
			return true
		}
	}
	return false
}

// NextFreeSlot scans for the first unused order slot.
func (p *Position) NextFreeSlot() (int, error) {
	for i, o := range p.Orders {
		if o.IsFree {
			return i, nil
		}
	}
	return 0, common.ErrOpenOrdersFull
}

// AddOrder records a newly-posted resting order in the given slot and
// reserves its base/asks lots in the aggregate counters. lockedFee is the
// maker fee withheld up front for bid postings under a non-negative maker
// fee (zero otherwise; see OpenOrder.LockedFee).
func (p *Position) AddOrder(slot int, sideTree common.SideAndOrderTree, key orderbook.Key, clientOrderID uint64, lockedPrice, quantity, lockedFee int64) {
	p.Orders[slot] = OpenOrder{
		ID:               key,
		ClientOrderID:    clientOrderID,
		LockedPrice:      lockedPrice,
		SideTree:         sideTree,
		IsFree:           false,
		LockedFee:        lockedFee,
		OriginalQuantity: quantity,
	}
	p.QuoteFreeNative -= lockedFee
	p.LockedMakerFees += lockedFee
	if sideTree.Side() == common.Bid {
		p.BidsBaseLots += quantity
	} else {
		p.AsksBaseLots += quantity
	}
}

// CancelOrder releases a resting order's reserved funds back to the free
// balance counters and frees its slot.
func (p *Position) CancelOrder(slot int, quantity int64, baseLotSize, quoteLotSize int64) {
	o := p.Orders[slot]
	if o.SideTree.Side() == common.Bid {
		p.QuoteFreeNative += quantity * o.LockedPrice * quoteLotSize
		p.BidsBaseLots -= quantity
	} else {
		p.BaseFreeNative += quantity * baseLotSize
		p.AsksBaseLots -= quantity
	}
	p.QuoteFreeNative += o.LockedFee
	p.LockedMakerFees -= o.LockedFee
	p.Orders[slot] = OpenOrder{IsFree: true}
}

// ReleaseLockedFee realizes the portion of a bid posting's withheld maker
// fee corresponding to baseLotsFilled, returning the amount to credit to
// fees_accrued. On the fill that empties the order (makerOut) any
// remaining dust from integer rounding is released in full.
func (p *Position) ReleaseLockedFee(slot int, baseLotsFilled int64, makerOut bool) int64 {
	o := &p.Orders[slot]
	if o.OriginalQuantity == 0 || o.LockedFee == 0 {
		return 0
	}
	released := o.LockedFee * baseLotsFilled / o.OriginalQuantity
	if makerOut {
		released = o.LockedFee
	}
	o.LockedFee -= released
	p.LockedMakerFees -= released
	return released
}

// ExecuteMaker applies a Fill event naming this position as the maker:
// credits the resting side's native proceeds net of the maker fee, debits
// the matched lots from the resting-quantity counter, and frees the slot
// if the resting order was fully consumed.
func (p *Position) ExecuteMaker(restingSide common.Side, baseLotsFilled int64, baseNativeCredit, quoteNativeCredit int64, makerOut bool, slot int) {
	if restingSide == common.Bid {
		p.BidsBaseLots -= baseLotsFilled
		p.BaseFreeNative += baseNativeCredit
		p.QuoteFreeNative += quoteNativeCredit
	} else {
		p.AsksBaseLots -= baseLotsFilled
		p.QuoteFreeNative += quoteNativeCredit
	}
	p.MakerVolume += quoteNativeCredit
	if makerOut {
		p.Orders[slot] = OpenOrder{IsFree: true}
	}
}

// ExecuteTaker credits a position for a Fill in which it was named as
// taker. The matching engine calls it synchronously at match time for a
// taker that has a position; only maker credits are deferred through the
// event queue.
func (p *Position) ExecuteTaker(takerSide common.Side, baseLotsFilled int64, baseNativeCredit, quoteNativeCredit int64) {
	if takerSide == common.Bid {
		p.BaseFreeNative += baseNativeCredit
	} else {
		p.QuoteFreeNative += quoteNativeCredit
	}
	p.TakerVolume += quoteNativeCredit
}

// ApplyOut releases a resting order evicted by expiry, peg-limit breach, or
// displacement, freeing its slot and restoring reserved funds.
func (p *Position) ApplyOut(side common.Side, slot int, quantity int64, baseLotSize, quoteLotSize int64) {
	p.CancelOrder(slot, quantity, baseLotSize, quoteLotSize)
	_ = side // side is implied by the slot's recorded SideAndOrderTree
}

func (p *Position) FindOrderWithClientOrderID(cid uint64) (int, bool) {
	for i, o := range p.Orders {
		if !o.IsFree && o.ClientOrderID == cid {
			return i, true
		}
	}
	return 0, false
}

func (p *Position) FindOrdersWithClientOrderID(cid uint64) []int {
	var out []int
	for i, o := range p.Orders {
		if !o.IsFree && o.ClientOrderID == cid {
			out = append(out, i)
		}
	}
	return out
}
