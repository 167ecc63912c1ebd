package orderbook

import "fenrir/internal/common"

// BookSide owns the fixed and oracle-pegged trees for one side (bid or
// ask) of a market.
type BookSide struct {
	Side   common.Side
	Fixed  *Component
	Pegged *Component
}

// NewBookSide allocates a side with independent capacity bounds for its
// fixed and oracle-pegged trees.
func NewBookSide(side common.Side, fixedCapacity, peggedCapacity int) *BookSide {
	return &BookSide{
		Side:   side,
		Fixed:  NewComponent(fixedCapacity),
		Pegged: NewComponent(peggedCapacity),
	}
}

func (b *BookSide) component(tree common.BookSideOrderTree) *Component {
	if tree == common.TreeFixed {
		return b.Fixed
	}
	return b.Pegged
}

func otherTree(tree common.BookSideOrderTree) common.BookSideOrderTree {
	if tree == common.TreeFixed {
		return common.TreeOraclePegged
	}
	return common.TreeFixed
}

// InsertLeaf places a leaf into the named tree.
func (b *BookSide) InsertLeaf(tree common.BookSideOrderTree, leaf LeafNode) (NodeHandle, error) {
	return b.component(tree).Insert(leaf)
}

// RemoveByKey removes and returns the leaf with the given key from the
// named tree.
func (b *BookSide) RemoveByKey(tree common.BookSideOrderTree, key Key) (LeafNode, bool) {
	return b.component(tree).RemoveByKey(key)
}

// IsFull reports whether the named tree has no room for a new leaf.
func (b *BookSide) IsFull(tree common.BookSideOrderTree) bool {
	return b.component(tree).IsFull()
}

// RemoveOneExpired opportunistically evicts one expired leaf, preferring
// the given tree and falling back to the other if the preferred one has
// nothing expired.
func (b *BookSide) RemoveOneExpired(preferred common.BookSideOrderTree, now uint64) (LeafNode, common.BookSideOrderTree, bool) {
	if leaf, ok := b.component(preferred).RemoveOneExpired(now); ok {
		return leaf, preferred, true
	}
	other := otherTree(preferred)
	if leaf, ok := b.component(other).RemoveOneExpired(now); ok {
		return leaf, other, true
	}
	return LeafNode{}, 0, false
}

func worstHandle(c *Component, side common.Side) (NodeHandle, bool) {
	if side == common.Ask {
		return c.Max()
	}
	return c.Min()
}

// RemoveWorst removes and returns the order that would match last across
// both trees — the furthest-from-the-spread entry — used to make room for
// a strictly-better incoming order when a tree is full.
func (b *BookSide) RemoveWorst(oraclePriceLots int64, hasOracle bool) (LeafNode, common.BookSideOrderTree, bool) {
	fh, fok := worstHandle(b.Fixed, b.Side)
	ph, pok := worstHandle(b.Pegged, b.Side)

	var fixedLeaf, peggedLeaf LeafNode
	if fok {
		fixedLeaf = b.Fixed.Leaf(fh)
	}
	var peggedPrice int64
	if pok {
		peggedLeaf = b.Pegged.Leaf(ph)
		peggedPrice, _ = peggedPriceAndState(b.Side, oraclePriceLots, hasOracle, peggedLeaf)
	}

	switch {
	case !fok && !pok:
		return LeafNode{}, 0, false
	case fok && !pok:
		leaf, _ := b.Fixed.RemoveByKey(fixedLeaf.Key)
		return leaf, common.TreeFixed, true
	case !fok && pok:
		leaf, _ := b.Pegged.RemoveByKey(peggedLeaf.Key)
		return leaf, common.TreeOraclePegged, true
	default:
		peggedKey := KeyForFixedPrice(peggedLeaf.Key, peggedPrice)
		// returnWorse=true: pick whichever is NOT the better of the two.
		if !isKeyBetter(b.Side, fixedLeaf.Key, peggedKey) {
			leaf, _ := b.Fixed.RemoveByKey(fixedLeaf.Key)
			return leaf, common.TreeFixed, true
		}
		leaf, _ := b.Pegged.RemoveByKey(peggedLeaf.Key)
		return leaf, common.TreeOraclePegged, true
	}
}

// IterValid yields only currently-tradable entries, best first.
func (b *BookSide) IterValid(now uint64, oraclePriceLots int64, hasOracle bool) func() (*IterItem, bool) {
	it := newBookSideIter(b, now, oraclePriceLots, hasOracle)
	return func() (*IterItem, bool) {
		for {
			item, ok := it.Next()
			if !ok {
				return nil, false
			}
			if item.IsValid() {
				return item, true
			}
		}
	}
}

// IterAll yields every entry best first, tagging each with its validity so
// the matching engine can opportunistically evict invalid ones it crosses.
func (b *BookSide) IterAll(now uint64, oraclePriceLots int64, hasOracle bool) func() (*IterItem, bool) {
	it := newBookSideIter(b, now, oraclePriceLots, hasOracle)
	return it.Next
}

// BestPrice returns the price of the best currently-valid order, if any.
func (b *BookSide) BestPrice(now uint64, oraclePriceLots int64, hasOracle bool) (int64, bool) {
	next := b.IterValid(now, oraclePriceLots, hasOracle)
	item, ok := next()
	if !ok {
		return 0, false
	}
	return item.PriceLots, true
}

// QuantityAtPrice sums the resting base lots at an exact fixed price.
func (b *BookSide) QuantityAtPrice(now uint64, priceLots int64) int64 {
	var total int64
	b.Fixed.Walk(func(l LeafNode) {
		if int64(l.PriceData()) == priceLots && !l.IsExpired(now) {
			total += l.Quantity
		}
	})
	return total
}

// ImpactPrice returns the price at which cumulative resting quantity from
// the best order reaches at least the requested size — a read-only query
// useful to a risk or pricing wrapper, not exercised by matching itself.
func (b *BookSide) ImpactPrice(now uint64, oraclePriceLots int64, hasOracle bool, quantity int64) (int64, bool) {
	next := b.IterValid(now, oraclePriceLots, hasOracle)
	var acc int64
	for {
		item, ok := next()
		if !ok {
			return 0, false
		}
		acc += item.Leaf.Quantity
		if acc >= quantity {
			return item.PriceLots, true
		}
	}
}
