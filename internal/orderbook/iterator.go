package orderbook

import (
	"math"

	"fenrir/internal/common"
)

// OrderState tags a yielded entry as tradable, structurally invalid (expired
// or peg-limit breached, evict on sight), or merely skipped this round
// (an oracle-pegged order whose effective price is out of range, left
// untouched on the book until the oracle moves).
type OrderState uint8

const (
	StateValid OrderState = iota
	StateInvalid
	StateSkipped
)

// IterItem is one entry produced by a BookSideIter.
type IterItem struct {
	Tree      common.BookSideOrderTree
	Handle    NodeHandle
	PriceLots int64
	State     OrderState
	Leaf      LeafNode
}

func (i IterItem) IsValid() bool { return i.State == StateValid }

func saturatingAddInt64(a, b int64) int64 {
	sum := a + b
	if b > 0 && sum < a {
		return math.MaxInt64
	}
	if b < 0 && sum > a {
		return math.MinInt64
	}
	return sum
}

// peggedPriceAndState computes the effective price of an oracle-pegged leaf
// and whether it is currently valid, invalid (peg-limit breach or expiry is
// handled by the caller), or skipped (out of representable range).
func peggedPriceAndState(side common.Side, oraclePriceLots int64, hasOracle bool, leaf LeafNode) (int64, OrderState) {
	if !hasOracle {
		return 1, StateSkipped
	}
	offset := OraclePeggedPriceOffset(leaf.PriceData())
	price := saturatingAddInt64(oraclePriceLots, offset)
	if price < 1 {
		return 1, StateSkipped
	}
	if price == math.MaxInt64 {
		return price, StateSkipped
	}
	if leaf.PegLimit >= 0 && !side.IsPriceWithinLimit(price, leaf.PegLimit) {
		return price, StateInvalid
	}
	return price, StateValid
}

// isKeyBetter reports whether a is a better resting order than b for this
// side: higher price (and older, via the tie-breaker encoding) wins for
// bids, lower price wins for asks. Because NewKey already folds the
// tie-breaker direction into the key, a single comparison suffices.
func isKeyBetter(side common.Side, a, b Key) bool {
	if side == common.Ask {
		return a.Less(b)
	}
	return b.Less(a)
}

// compIter walks one Component's leaves in best-first order for the given
// side without materializing the full sorted sequence: ascending key order
// is best-first for asks, descending for bids.
type compIter struct {
	c         *Component
	ascending bool
	stack     []NodeHandle
	cached    NodeHandle
	hasCached bool
}

func newCompIter(c *Component, ascending bool) *compIter {
	it := &compIter{c: c, ascending: ascending}
	if c.root != nullHandle {
		it.stack = []NodeHandle{c.root}
	}
	return it
}

func (it *compIter) Leaf(h NodeHandle) LeafNode { return it.c.Leaf(h) }

func (it *compIter) advance() (NodeHandle, bool) {
	for len(it.stack) > 0 {
		h := it.stack[len(it.stack)-1]
		it.stack = it.stack[:len(it.stack)-1]
		n := &it.c.nodes[h]
		if n.tag == TagLeaf {
			return h, true
		}
		near, far := uint8(0), uint8(1)
		if !it.ascending {
			near, far = 1, 0
		}
		it.stack = append(it.stack, n.inner.Children[far], n.inner.Children[near])
	}
	return 0, false
}

func (it *compIter) Peek() (NodeHandle, bool) {
	if !it.hasCached {
		h, ok := it.advance()
		it.cached, it.hasCached = h, ok
	}
	if !it.hasCached {
		return 0, false
	}
	return it.cached, true
}

func (it *compIter) Pop() (NodeHandle, bool) {
	if it.hasCached {
		it.hasCached = false
		return it.cached, true
	}
	return it.advance()
}

// BookSideIter merges the fixed and oracle-pegged trees into a single
// best-first stream, the "interleaved iteration" at the heart of the order
// book: for a pegged leaf, effective price is computed against the current
// oracle price and its key is rewritten onto the fixed tree's comparand
// before the merge decision, so one bitwise compare orders both streams.
type BookSideIter struct {
	side            common.Side
	now             uint64
	oraclePriceLots int64
	hasOracle       bool
	fixed           *compIter
	pegged          *compIter
}

func newBookSideIter(b *BookSide, now uint64, oraclePriceLots int64, hasOracle bool) *BookSideIter {
	ascending := b.Side == common.Ask
	return &BookSideIter{
		side:            b.Side,
		now:             now,
		oraclePriceLots: oraclePriceLots,
		hasOracle:       hasOracle,
		fixed:           newCompIter(b.Fixed, ascending),
		pegged:          newCompIter(b.Pegged, ascending),
	}
}

func (it *BookSideIter) makeItem(tree common.BookSideOrderTree, h NodeHandle, leaf LeafNode, priceLots int64, state OrderState) *IterItem {
	if state == StateValid && leaf.IsExpired(it.now) {
		state = StateInvalid
	}
	return &IterItem{Tree: tree, Handle: h, PriceLots: priceLots, State: state, Leaf: leaf}
}

// Next returns the next entry in best-first order across both trees, or
// ok=false once both are exhausted. Oracle-pegged entries whose effective
// price is currently out of range are silently dropped from the stream
// (they remain on the book) before the merge decision is made.
func (it *BookSideIter) Next() (*IterItem, bool) {
	for {
		ph, ok := it.pegged.Peek()
		if !ok {
			break
		}
		leaf := it.pegged.Leaf(ph)
		_, state := peggedPriceAndState(it.side, it.oraclePriceLots, it.hasOracle, leaf)
		if state != StateSkipped {
			break
		}
		it.pegged.Pop()
	}

	fh, fok := it.fixed.Peek()
	ph, pok := it.pegged.Peek()

	var fixedLeaf, peggedLeaf LeafNode
	var peggedPrice int64
	var peggedState OrderState
	if fok {
		fixedLeaf = it.fixed.Leaf(fh)
	}
	if pok {
		peggedLeaf = it.pegged.Leaf(ph)
		peggedPrice, peggedState = peggedPriceAndState(it.side, it.oraclePriceLots, it.hasOracle, peggedLeaf)
	}

	switch {
	case !fok && !pok:
		return nil, false
	case fok && !pok:
		it.fixed.Pop()
		return it.makeItem(common.TreeFixed, fh, fixedLeaf, int64(fixedLeaf.PriceData()), StateValid), true
	case !fok && pok:
		it.pegged.Pop()
		return it.makeItem(common.TreeOraclePegged, ph, peggedLeaf, peggedPrice, peggedState), true
	default:
		peggedKey := KeyForFixedPrice(peggedLeaf.Key, peggedPrice)
		if isKeyBetter(it.side, fixedLeaf.Key, peggedKey) {
			it.fixed.Pop()
			return it.makeItem(common.TreeFixed, fh, fixedLeaf, int64(fixedLeaf.PriceData()), StateValid), true
		}
		it.pegged.Pop()
		return it.makeItem(common.TreeOraclePegged, ph, peggedLeaf, peggedPrice, peggedState), true
	}
}
