package market

import (
	"fenrir/internal/common"
	"fenrir/internal/lot"
)

// EventQueue is a bounded FIFO of Fill and Out events awaiting application
// to the participants' positions. The matching engine only ever appends;
// a cranker drains it by calling ConsumeEvents.
type EventQueue struct {
	capacity int
	events   []Event
	seqNum   uint64
}

// NewEventQueue allocates a queue that holds up to capacity outstanding
// events.
func NewEventQueue(capacity int) *EventQueue {
	return &EventQueue{capacity: capacity, events: make([]Event, 0, capacity)}
}

func (q *EventQueue) Len() int      { return len(q.events) }
func (q *EventQueue) IsEmpty() bool { return len(q.events) == 0 }
func (q *EventQueue) IsFull() bool  { return len(q.events) >= q.capacity }

// PushBack appends an event, failing EventQueueFull if there is no room.
// The matching engine treats this as fatal: it must never match more
// orders in one call than fit as events.
func (q *EventQueue) PushBack(e Event) error {
	if q.IsFull() {
		return common.ErrEventQueueFull
	}
	q.seqNum++
	e.SeqNum = q.seqNum
	q.events = append(q.events, e)
	return nil
}

// OwnerLookup resolves the Position for a named owner if it was supplied to
// this particular ConsumeEvents call.
type OwnerLookup func(owner string) (*Position, bool)

// ConsumeEvents applies up to limit events, in queue order, skipping (but
// not removing) any whose named owner was not supplied via lookup so later
// events are unaffected. preferredSlots, if non-nil, names queue positions
// (by current index) to prioritize before falling back to natural FIFO
// order; duplicates between the two are processed once. baseLotSize,
// quoteLotSize and makerFee come from the owning Market, since the queue
// itself carries no market-specific conversion state.
func (q *EventQueue) ConsumeEvents(mkt *Market, lookup OwnerLookup, limit int, preferredSlots []int) (applied int, err error) {
	n := len(q.events)
	seen := make(map[int]bool, n)
	order := make([]int, 0, n)
	for _, s := range preferredSlots {
		if s >= 0 && s < n && !seen[s] {
			seen[s] = true
			order = append(order, s)
		}
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			seen[i] = true
			order = append(order, i)
		}
	}

	toDelete := make([]bool, n)
	visited := 0
	for _, idx := range order {
		if visited >= limit {
			break
		}
		e := q.events[idx]
		pos, ok := lookup(e.ownerName())
		visited++
		if !ok {
			continue
		}
		applyEvent(mkt, pos, e)
		toDelete[idx] = true
		applied++
	}

	kept := make([]Event, 0, n-applied)
	for i, e := range q.events {
		if !toDelete[i] {
			kept = append(kept, e)
		}
	}
	q.events = kept
	return applied, nil
}

// applyEvent settles one Fill or Out event against the named maker's
// position. Maker fee handling is asymmetric by side (see DESIGN.md):
// an ask maker's quote only arrives at fill time, so it is credited the
// fill's notional times (1 + maker fee), floored, and the difference from
// the notional moves into fees_accrued; a bid maker's quote was reserved
// up front, so a positive fee was already withheld into LockedMakerFees
// at posting time and is merely released here pro-rata, while a negative
// maker fee is paid to a bid maker out of fees_accrued as a bonus credit.
func applyEvent(mkt *Market, pos *Position, e Event) {
	switch e.Type {
	case EventFill:
		f := e.Fill
		restingSide := f.TakerSide.InvertSide()
		baseNative := f.Quantity * mkt.BaseLotSize
		quoteNative := f.PriceLots * f.Quantity * mkt.QuoteLotSize
		slot := int(f.MakerSlot)

		var baseCredit, quoteCredit int64
		if restingSide == common.Bid {
			baseCredit = baseNative
			if mkt.MakerFee.IsNegative() {
				rebate := -lot.MakerFeeCeil(quoteNative, mkt.MakerFee)
				mkt.FeesAccrued -= rebate
				quoteCredit += rebate
			} else {
				released := pos.ReleaseLockedFee(slot, f.Quantity, f.MakerOut)
				mkt.FeesAccrued += released
			}
		} else {
			quoteCredit = lot.MakerCreditFloor(quoteNative, mkt.MakerFee)
			feeDelta := lot.MakerFeeCeil(quoteNative, mkt.MakerFee)
			mkt.FeesAccrued -= feeDelta
		}
		pos.ExecuteMaker(restingSide, f.Quantity, baseCredit, quoteCredit, f.MakerOut, slot)
	case EventOut:
		o := e.Out
		pos.ApplyOut(o.Side, int(o.OwnerSlot), o.Quantity, mkt.BaseLotSize, mkt.QuoteLotSize)
	}
}
