package matching

import (
	"fenrir/internal/common"
	"fenrir/internal/lot"
	"fenrir/internal/market"
	"fenrir/internal/orderbook"
)

// plannedFill is one resting order consumed during the read-only simulation
// pass of NewOrder.
type plannedFill struct {
	tree        common.BookSideOrderTree
	handle      orderbook.NodeHandle
	leaf        orderbook.LeafNode
	priceLots   int64
	matchQty    int64
	removeAfter bool
}

// plannedEvict is an invalid (expired/peg-limit-breached) or self-traded
// resting order removed opportunistically while walking the opposing book.
type plannedEvict struct {
	tree common.BookSideOrderTree
	leaf orderbook.LeafNode
}

// matchPlan is the outcome of simulating a match against the opposing book
// without mutating it, so self-trade aborts and fill-or-kill failures can be
// reported with zero observable state change.
type matchPlan struct {
	fills              []plannedFill
	evicts             []plannedEvict
	remainingBase      int64
	remainingQuoteLots int64
	totalBaseLots      int64
	totalQuoteLots     int64
	selfTradeAbort     bool
	postOnlyAbort      bool
}

func minInt64(a, b, c int64) int64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// simulate walks the opposing bookside best-first, building a plan of
// evictions and fills without mutating the tree, keeping the distinction
// between an eviction (doesn't consume limit) and a match (does).
func simulate(opposing *orderbook.BookSide, order Order, effectivePrice int64, oraclePriceLots int64, hasOracle bool, owner string, now uint64, limit int) matchPlan {
	plan := matchPlan{
		remainingBase:      order.MaxBaseLots,
		remainingQuoteLots: order.MaxQuoteLotsIncludingFees,
	}
	postOnly := order.Params.IsPostOnly()
	evictionBudget := DropExpiredOrderLimit
	next := opposing.IterAll(now, oraclePriceLots, hasOracle)

	for plan.remainingBase > 0 && plan.remainingQuoteLots > 0 && limit > 0 {
		item, ok := next()
		if !ok {
			break
		}
		if !item.IsValid() {
			if evictionBudget > 0 {
				plan.evicts = append(plan.evicts, plannedEvict{item.Tree, item.Leaf})
				evictionBudget--
			}
			continue
		}
		if !order.Side.IsPriceWithinLimit(item.PriceLots, effectivePrice) {
			break
		}
		if postOnly {
			plan.postOnlyAbort = true
			break
		}
		leaf := item.Leaf
		if leaf.Owner == owner {
			switch order.SelfTradeBehavior {
			case common.AbortTransaction:
				plan.selfTradeAbort = true
				return plan
			case common.CancelProvide:
				if evictionBudget > 0 {
					plan.evicts = append(plan.evicts, plannedEvict{item.Tree, leaf})
					evictionBudget--
				}
				continue
			}
			// DecrementTake falls through to the normal match below.
		}

		m := minInt64(plan.remainingBase, leaf.Quantity, plan.remainingQuoteLots/item.PriceLots)
		if m == 0 {
			break
		}
		plan.fills = append(plan.fills, plannedFill{
			tree:        item.Tree,
			handle:      item.Handle,
			leaf:        leaf,
			priceLots:   item.PriceLots,
			matchQty:    m,
			removeAfter: m == leaf.Quantity,
		})
		plan.remainingBase -= m
		plan.remainingQuoteLots -= m * item.PriceLots
		plan.totalBaseLots += m
		plan.totalQuoteLots += m * item.PriceLots
		limit--
	}
	return plan
}

func componentForTree(bs *orderbook.BookSide, tree common.BookSideOrderTree) *orderbook.Component {
	if tree == common.TreeFixed {
		return bs.Fixed
	}
	return bs.Pegged
}

// mustPushEvent enforces the invariant every caller must uphold: limit must
// never be chosen larger than the event queue's free capacity, so a full
// queue here means that invariant was violated upstream.
func mustPushEvent(eq *market.EventQueue, e market.Event) {
	if err := eq.PushBack(e); err != nil {
		panic("matching: event queue full mid-commit, caller chose limit > free capacity: " + err.Error())
	}
}

// postPlan is the outcome of the read-only posting-feasibility check run
// before any commit, so OpenOrdersFull/OutOfSpace can still be reported with
// zero mutation.
type postPlan struct {
	quantity      int64
	lockedFee     int64
	slot          int
	displace      bool
	displacedLeaf orderbook.LeafNode
	displacedTree common.BookSideOrderTree
}

// planPost determines whether remainingBase/remainingQuoteLots worth of
// remainder can be posted to tree, without mutating anything: capacity
// displacement is decided here (a full tree makes room only for a strictly
// better order), and reserves a free owner slot by number only (NextFreeSlot
// does not mutate the Position).
func planPost(bs *orderbook.BookSide, tree common.BookSideOrderTree, side common.Side, newPriceData uint64, ownerPosition *market.Position, remainingBase, remainingQuoteLots, effectivePrice, lockedFee int64) (*postPlan, error) {
	quantity := remainingBase
	if byQuote := remainingQuoteLots / effectivePrice; byQuote < quantity {
		quantity = byQuote
	}
	if quantity <= 0 {
		return nil, nil
	}
	plan := &postPlan{quantity: quantity, lockedFee: lockedFee}

	comp := componentForTree(bs, tree)
	if comp.IsFull() {
		var h orderbook.NodeHandle
		var ok bool
		if side == common.Ask {
			h, ok = comp.Max()
		} else {
			h, ok = comp.Min()
		}
		if !ok {
			return nil, common.ErrOutOfSpace
		}
		worst := comp.Leaf(h)
		if !side.IsPriceDataBetter(newPriceData, worst.PriceData()) {
			return nil, common.ErrOutOfSpace
		}
		plan.displace = true
		plan.displacedLeaf = worst
		plan.displacedTree = tree
	}

	slot, err := ownerPosition.NextFreeSlot()
	if err != nil {
		return nil, err
	}
	plan.slot = slot
	return plan, nil
}

// commitEvict applies one planned eviction: removes the leaf from its tree
// and enqueues the Out event that notifies the owner's position.
func commitEvict(bs *orderbook.BookSide, eq *market.EventQueue, side common.Side, ev plannedEvict) {
	componentForTree(bs, ev.tree).RemoveByKey(ev.leaf.Key)
	mustPushEvent(eq, market.Event{
		Type: market.EventOut,
		Out: market.OutEvent{
			Owner:     ev.leaf.Owner,
			OwnerSlot: ev.leaf.OwnerSlot,
			Side:      side,
			Quantity:  ev.leaf.Quantity,
		},
	})
}

// commitFill applies one planned match: mutates the resting leaf (removes
// it or decrements its quantity in place) and enqueues the Fill event that
// later credits the maker's position via consume_events.
func commitFill(bs *orderbook.BookSide, eq *market.EventQueue, order Order, takerOwner string, f plannedFill) {
	comp := componentForTree(bs, f.tree)
	if f.removeAfter {
		comp.RemoveByKey(f.leaf.Key)
	} else {
		comp.DecrementQuantity(f.handle, f.matchQty)
	}
	mustPushEvent(eq, market.Event{
		Type: market.EventFill,
		Fill: market.FillEvent{
			TakerSide:          order.Side,
			MakerOwner:         f.leaf.Owner,
			MakerSlot:          f.leaf.OwnerSlot,
			MakerClientOrderID: f.leaf.ClientOrderID,
			MakerTimestamp:     f.leaf.Timestamp,
			TakerOwner:         takerOwner,
			TakerClientOrderID: order.ClientOrderID,
			PriceLots:          f.priceLots,
			Quantity:           f.matchQty,
			MakerOut:           f.removeAfter,
		},
	})
}

// commitPost applies a feasible postPlan: displaces the worst resting order
// if required, opportunistically evicts one expired leaf from the target
// tree, inserts the new leaf, and records it on the owner's position.
func commitPost(bs *orderbook.BookSide, eq *market.EventQueue, pos *market.Position, order Order, owner string, tree common.BookSideOrderTree, key orderbook.Key, lockedPrice, effectivePrice int64, now uint64, p *postPlan) {
	if p.displace {
		componentForTree(bs, p.displacedTree).RemoveByKey(p.displacedLeaf.Key)
		mustPushEvent(eq, market.Event{
			Type: market.EventOut,
			Out: market.OutEvent{
				Owner:     p.displacedLeaf.Owner,
				OwnerSlot: p.displacedLeaf.OwnerSlot,
				Side:      order.Side,
				Quantity:  p.displacedLeaf.Quantity,
			},
		})
	}
	if leaf, evicted := componentForTree(bs, tree).RemoveOneExpired(now); evicted {
		mustPushEvent(eq, market.Event{
			Type: market.EventOut,
			Out: market.OutEvent{
				Owner:     leaf.Owner,
				OwnerSlot: leaf.OwnerSlot,
				Side:      order.Side,
				Quantity:  leaf.Quantity,
			},
		})
	}

	leaf := orderbook.LeafNode{
		Owner:         owner,
		OwnerSlot:     uint8(p.slot),
		TimeInForce:   order.TimeInForce,
		Key:           key,
		Quantity:      p.quantity,
		Timestamp:     now,
		PegLimit:      order.Params.PegLimitOrDefault(),
		ClientOrderID: order.ClientOrderID,
	}
	bs.InsertLeaf(tree, leaf)
	sideTree := common.NewSideAndOrderTree(order.Side, tree)
	pos.AddOrder(p.slot, sideTree, key, order.ClientOrderID, lockedPrice, p.quantity, p.lockedFee)
	_ = effectivePrice
}

// NewOrder is the matching engine's single public entry point: validate,
// compute the effective price, simulate a match against the opposing book
// (read-only), and only then commit evictions, fills and posting together —
// so WouldSelfTrade and WouldExecutePartially leave no observable mutation.
// ownerPosition is nil for a pure taker (place_take_order); owner is the
// taker's reference used for self-trade comparison and as the Fill event's
// taker reference.
func NewOrder(book *Book, mkt *market.Market, eq *market.EventQueue, order Order, oraclePriceLots int64, hasOracle bool, ownerPosition *market.Position, owner string, now uint64, limit int) (OrderResult, error) {
	if err := validate(order); err != nil {
		return OrderResult{}, err
	}
	effPrice, err := effectivePrice(order, oraclePriceLots, hasOracle)
	if err != nil {
		return OrderResult{}, err
	}

	postTree, canPost := order.Params.PostTarget()
	pegOffset := order.Params.PriceOffsetLots
	if canPost && order.Params.OrderType == common.PostOnlySlide {
		if best, ok := book.Opposing(order.Side).BestPrice(now, oraclePriceLots, hasOracle); ok {
			effPrice = PostOnlySlideLimit(order.Side, effPrice, best, true)
			if order.Params.Kind == common.ParamsOraclePegged {
				pegOffset = effPrice - oraclePriceLots
			}
		}
	}

	var priceData uint64
	if order.Params.Kind == common.ParamsOraclePegged {
		priceData = orderbook.OraclePeggedPriceData(pegOffset)
	} else {
		priceData, err = orderbook.FixedPriceData(effPrice)
		if err != nil {
			return OrderResult{}, err
		}
	}

	// Reserve fee headroom up front for bids so the per-match decrement
	// (which only subtracts notional) can never let total spend including
	// the taker fee exceed max_quote_lots_including_fees.
	simOrder := order
	if order.Side == common.Bid {
		simOrder.MaxQuoteLotsIncludingFees = lot.SubtractTakerFeesFloor(order.MaxQuoteLotsIncludingFees, mkt.TakerFee)
	}

	opposing := book.Opposing(order.Side)
	plan := simulate(opposing, simOrder, effPrice, oraclePriceLots, hasOracle, owner, now, limit)

	if plan.selfTradeAbort {
		return OrderResult{}, common.ErrWouldSelfTrade
	}
	if order.Params.IsFillOrKill() && plan.remainingBase > 0 {
		return OrderResult{}, common.ErrWouldExecutePartially
	}

	var pPlan *postPlan
	if !plan.postOnlyAbort && canPost && plan.remainingBase > 0 && ownerPosition != nil {
		pPlan, err = planPost(book.Side(order.Side), postTree, order.Side, priceData, ownerPosition, plan.remainingBase, plan.remainingQuoteLots, effPrice, 0)
		if err != nil {
			return OrderResult{}, err
		}
		if pPlan != nil && order.Side == common.Bid && !mkt.MakerFee.IsNegative() {
			notional := pPlan.quantity * effPrice * mkt.QuoteLotSize
			pPlan.lockedFee = lot.MakerFeeCeil(notional, mkt.MakerFee)
		}
	}

	// Commit: from here on every step is infallible given the checks above.
	orderKey := mkt.GenOrderID(order.Side, priceData)
	for _, ev := range plan.evicts {
		commitEvict(opposing, eq, order.Side.InvertSide(), ev)
	}

	var result OrderResult
	if !plan.postOnlyAbort {
		for _, f := range plan.fills {
			commitFill(opposing, eq, order, owner, f)
		}
		result.TotalBaseLotsTaken = plan.totalBaseLots
		result.TotalQuoteLotsTaken = plan.totalQuoteLots
		applyTakerEconomics(mkt, order.Side, ownerPosition, plan.totalBaseLots, plan.totalQuoteLots, &result)
	}

	if pPlan != nil && pPlan.quantity > 0 {
		lockedPrice := int64(1)
		if order.Side == common.Bid {
			lockedPrice = effPrice
			if order.Params.Kind == common.ParamsOraclePegged {
				lockedPrice = order.Params.PegLimitOrDefault()
				if lockedPrice < 0 {
					lockedPrice = effPrice
				}
			}
		}
		commitPost(book.Side(order.Side), eq, ownerPosition, order, owner, postTree, orderKey, lockedPrice, effPrice, now, pPlan)
		result.OrderID = &OrderID{Key: orderKey, Tree: postTree}
		result.PostedBaseNative = pPlan.quantity * mkt.BaseLotSize
		result.PostedQuoteNative = pPlan.quantity * effPrice * mkt.QuoteLotSize
		result.MakerFeesLockedNative = pPlan.lockedFee
	}

	return result, nil
}

// applyTakerEconomics settles the taker's own leg synchronously (unlike
// the maker side, which waits for
// consume_events), fee-adjusted, with part of the taker fee split toward
// the referrer rebate pool on either side. ownerPosition is nil for place_take_order, which settles
// purely through the amounts returned in OrderResult.
func applyTakerEconomics(mkt *market.Market, side common.Side, ownerPosition *market.Position, totalBaseLots, totalQuoteLots int64, result *OrderResult) {
	if totalBaseLots == 0 {
		return
	}
	quoteNotional := totalQuoteLots * mkt.QuoteLotSize
	baseNative := totalBaseLots * mkt.BaseLotSize

	var takerFee, netQuoteNative int64
	if side == common.Bid {
		takerFee = lot.TakerFeeCeil(quoteNotional, mkt.TakerFee)
		netQuoteNative = quoteNotional + takerFee
	} else {
		netQuoteNative = lot.TakerCreditFloor(quoteNotional, mkt.TakerFee)
		takerFee = quoteNotional - netQuoteNative
	}
	mkt.FeesAccrued += takerFee
	referrerAmt := lot.ReferrerRebateCeil(takerFee, mkt.TakerFee, mkt.MakerFee)
	mkt.FeesAccrued -= referrerAmt
	mkt.ReferrerRebatesAccrued += referrerAmt

	result.TakerFeesNative = takerFee
	result.ReferrerAmountNative = referrerAmt

	if ownerPosition != nil {
		if side == common.Bid {
			ownerPosition.ExecuteTaker(side, totalBaseLots, baseNative, 0)
		} else {
			ownerPosition.ExecuteTaker(side, totalBaseLots, 0, netQuoteNative)
		}
	}
}
