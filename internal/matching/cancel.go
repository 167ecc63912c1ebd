package matching

import (
	"fenrir/internal/common"
	"fenrir/internal/market"
	"fenrir/internal/orderbook"
)

// CancelResult reports what a cancel operation released back to the owner.
type CancelResult struct {
	ReleasedBaseNative  int64
	ReleasedQuoteNative int64
	Cancelled           int
}

// CancelByID removes one resting order identified by its book key and
// releases its reserved funds: fails OrderIdNotFound if the id is no longer
// on the book (already filled or expired is an expected, not exceptional,
// outcome), and InvalidOwner if the caller does not own the slot recorded
// for it.
func CancelByID(book *Book, mkt *market.Market, pos *market.Position, id OrderID, owner string) (CancelResult, error) {
	slot, ok := findSlotByKey(pos, id.Key)
	if !ok {
		return CancelResult{}, common.ErrOrderIDNotFound
	}
	o := pos.Orders[slot]
	side := o.SideTree.Side()
	tree := o.SideTree.Tree()
	comp := treeComponent(book.Side(side), tree)

	handle, found := comp.Find(id.Key)
	if !found {
		return CancelResult{}, common.ErrOrderIDNotFound
	}
	if comp.Leaf(handle).Owner != owner {
		return CancelResult{}, common.ErrInvalidOwner
	}

	leaf, ok := comp.RemoveByKey(id.Key)
	if !ok {
		return CancelResult{}, common.ErrOrderIDNotFound
	}

	before := pos.QuoteFreeNative
	beforeBase := pos.BaseFreeNative
	pos.CancelOrder(slot, leaf.Quantity, mkt.BaseLotSize, mkt.QuoteLotSize)
	return CancelResult{
		ReleasedBaseNative:  pos.BaseFreeNative - beforeBase,
		ReleasedQuoteNative: pos.QuoteFreeNative - before,
		Cancelled:           1,
	}, nil
}

// CancelByClientOrderID cancels every resting order tagged with cid: a
// client-assigned id may match more than one order.
func CancelByClientOrderID(book *Book, mkt *market.Market, pos *market.Position, owner string, cid uint64) (CancelResult, error) {
	slots := pos.FindOrdersWithClientOrderID(cid)
	var total CancelResult
	for _, slot := range slots {
		o := pos.Orders[slot]
		res, err := CancelByID(book, mkt, pos, OrderID{Key: o.ID, Tree: o.SideTree.Tree()}, owner)
		if err != nil {
			return total, err
		}
		total.ReleasedBaseNative += res.ReleasedBaseNative
		total.ReleasedQuoteNative += res.ReleasedQuoteNative
		total.Cancelled += res.Cancelled
	}
	return total, nil
}

// CancelAll cancels up to limit of owner's resting orders, optionally
// restricted to one side.
func CancelAll(book *Book, mkt *market.Market, pos *market.Position, owner string, sideFilter *common.Side, limit int) (CancelResult, error) {
	var total CancelResult
	for slot := range pos.Orders {
		if total.Cancelled >= limit {
			break
		}
		o := pos.Orders[slot]
		if o.IsFree {
			continue
		}
		if sideFilter != nil && o.SideTree.Side() != *sideFilter {
			continue
		}
		res, err := CancelByID(book, mkt, pos, OrderID{Key: o.ID, Tree: o.SideTree.Tree()}, owner)
		if err != nil {
			if err == common.ErrOrderIDNotFound {
				continue
			}
			return total, err
		}
		total.ReleasedBaseNative += res.ReleasedBaseNative
		total.ReleasedQuoteNative += res.ReleasedQuoteNative
		total.Cancelled += res.Cancelled
	}
	return total, nil
}

func findSlotByKey(pos *market.Position, key orderbook.Key) (int, bool) {
	for i, o := range pos.Orders {
		if !o.IsFree && o.ID.Equal(key) {
			return i, true
		}
	}
	return 0, false
}

func treeComponent(bs *orderbook.BookSide, tree common.BookSideOrderTree) *orderbook.Component {
	if tree == common.TreeFixed {
		return bs.Fixed
	}
	return bs.Pegged
}
