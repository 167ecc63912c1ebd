package orderbook

import "math"

// NodeHandle is an arena index. The zero value never refers to a live node;
// arena slot 0 is reserved as the null handle.
type NodeHandle uint32

const nullHandle NodeHandle = 0

// NodeTag discriminates the three node shapes stored in a Component's
// arena.
type NodeTag uint8

const (
	TagUninitialized NodeTag = iota
	TagInner
	TagLeaf
	TagFree
)

// InnerNode routes a search key to one of two children based on the bit at
// PrefixLen, and aggregates the earliest expiry under each child so an
// expired leaf anywhere in the tree can be found in O(log n).
type InnerNode struct {
	PrefixLen           uint32
	Key                 Key // only the top PrefixLen bits are meaningful
	Children            [2]NodeHandle
	ChildEarliestExpiry [2]uint64
}

// WalkDown returns which child a search key routes to at this node.
func (n *InnerNode) WalkDown(searchKey Key) uint8 {
	return searchKey.Bit(n.PrefixLen)
}

func (n *InnerNode) EarliestExpiry() uint64 {
	if n.ChildEarliestExpiry[0] < n.ChildEarliestExpiry[1] {
		return n.ChildEarliestExpiry[0]
	}
	return n.ChildEarliestExpiry[1]
}

// LeafNode is one resting order.
type LeafNode struct {
	Owner         string
	OwnerSlot     uint8
	TimeInForce   uint16 // seconds, 0 = never expires
	Key           Key
	Quantity      int64 // base lots remaining, >= 1
	Timestamp     uint64
	PegLimit      int64 // -1 = none; meaningful only for pegged orders
	ClientOrderID uint64
}

// PriceData returns the price-encoding half of the leaf's key.
func (l *LeafNode) PriceData() uint64 { return l.Key.Hi }

// Expiry returns the timestamp at which this leaf becomes invalid, or
// math.MaxUint64 if it never expires.
func (l *LeafNode) Expiry() uint64 {
	if l.TimeInForce == 0 {
		return math.MaxUint64
	}
	return l.Timestamp + uint64(l.TimeInForce)
}

// IsExpired reports whether this leaf's time-in-force has lapsed as of now.
func (l *LeafNode) IsExpired(now uint64) bool {
	if l.TimeInForce == 0 {
		return false
	}
	return now >= l.Expiry()
}

type node struct {
	tag   NodeTag
	inner InnerNode
	leaf  LeafNode
	next  NodeHandle // valid when tag == TagFree: next free slot
}
