package orderbook

import (
	"fmt"

	"fenrir/internal/common"
)

type pathStep struct {
	handle   NodeHandle
	childIdx uint8
}

// Component is a single capacity-bounded critbit tree: either the fixed or
// the oracle-pegged tree of one BookSide. Free nodes form an intrusive free
// list inside the same backing array, so the tree never grows past the
// capacity fixed at construction.
type Component struct {
	nodes        []node
	freeListHead NodeHandle
	freeListLen  int
	root         NodeHandle
	leafCount    int
}

// NewComponent allocates an arena with room for capacity leaves (plus the
// inner nodes needed to route between them).
func NewComponent(capacity int) *Component {
	size := capacity*2 + 1
	c := &Component{nodes: make([]node, size+1)} // +1: index 0 is the null handle
	for i := size; i >= 1; i-- {
		c.nodes[i] = node{tag: TagFree, next: c.freeListHead}
		c.freeListHead = NodeHandle(i)
		c.freeListLen++
	}
	return c
}

func (c *Component) allocate() (NodeHandle, error) {
	if c.freeListHead == nullHandle {
		return 0, common.ErrOutOfSpace
	}
	h := c.freeListHead
	c.freeListHead = c.nodes[h].next
	c.freeListLen--
	return h, nil
}

func (c *Component) free(h NodeHandle) {
	c.nodes[h] = node{tag: TagFree, next: c.freeListHead}
	c.freeListHead = h
	c.freeListLen++
}

func (c *Component) earliestExpiry(h NodeHandle) uint64 {
	n := &c.nodes[h]
	if n.tag == TagLeaf {
		return n.leaf.Expiry()
	}
	return n.inner.EarliestExpiry()
}

// IsFull reports whether the arena has no free slots left for a new
// leaf+inner-node pair.
func (c *Component) IsFull() bool { return c.freeListLen < 2 }

func (c *Component) IsEmpty() bool { return c.root == nullHandle }

func (c *Component) LeafCount() int { return c.leafCount }

// Leaf dereferences a handle previously returned by Insert, Min, Max or
// Find.
func (c *Component) Leaf(h NodeHandle) LeafNode { return c.nodes[h].leaf }

// Insert places a new leaf into the tree, returning its handle.
func (c *Component) Insert(leaf LeafNode) (NodeHandle, error) {
	if c.root == nullHandle {
		h, err := c.allocate()
		if err != nil {
			return 0, err
		}
		c.nodes[h] = node{tag: TagLeaf, leaf: leaf}
		c.root = h
		c.leafCount++
		return h, nil
	}

	cur := c.root
	for c.nodes[cur].tag == TagInner {
		idx := c.nodes[cur].inner.WalkDown(leaf.Key)
		cur = c.nodes[cur].inner.Children[idx]
	}
	closest := c.nodes[cur].leaf

	critBit, ok := MismatchBit(closest.Key, leaf.Key)
	if !ok {
		return 0, fmt.Errorf("orderbook: duplicate key %+v", leaf.Key)
	}

	leafHandle, err := c.allocate()
	if err != nil {
		return 0, err
	}
	innerHandle, err := c.allocate()
	if err != nil {
		c.free(leafHandle)
		return 0, err
	}
	c.nodes[leafHandle] = node{tag: TagLeaf, leaf: leaf}

	var path []pathStep
	cur = c.root
	for c.nodes[cur].tag == TagInner && c.nodes[cur].inner.PrefixLen < critBit {
		idx := c.nodes[cur].inner.WalkDown(leaf.Key)
		path = append(path, pathStep{cur, idx})
		cur = c.nodes[cur].inner.Children[idx]
	}

	newBit := leaf.Key.Bit(critBit)
	var inner InnerNode
	inner.PrefixLen = critBit
	inner.Key = leaf.Key
	inner.Children[newBit] = leafHandle
	inner.Children[1-newBit] = cur
	inner.ChildEarliestExpiry[newBit] = leaf.Expiry()
	inner.ChildEarliestExpiry[1-newBit] = c.earliestExpiry(cur)
	c.nodes[innerHandle] = node{tag: TagInner, inner: inner}

	if len(path) == 0 {
		c.root = innerHandle
	} else {
		last := path[len(path)-1]
		c.nodes[last.handle].inner.Children[last.childIdx] = innerHandle
	}

	for i := len(path) - 1; i >= 0; i-- {
		s := path[i]
		child := c.nodes[s.handle].inner.Children[s.childIdx]
		c.nodes[s.handle].inner.ChildEarliestExpiry[s.childIdx] = c.earliestExpiry(child)
	}

	c.leafCount++
	return leafHandle, nil
}

// Find looks up a leaf by its exact key without removing it.
func (c *Component) Find(key Key) (NodeHandle, bool) {
	if c.root == nullHandle {
		return 0, false
	}
	cur := c.root
	for c.nodes[cur].tag == TagInner {
		idx := c.nodes[cur].inner.WalkDown(key)
		cur = c.nodes[cur].inner.Children[idx]
	}
	if !c.nodes[cur].leaf.Key.Equal(key) {
		return 0, false
	}
	return cur, true
}

// RemoveByKey removes and returns the leaf with the given key.
func (c *Component) RemoveByKey(key Key) (LeafNode, bool) {
	if c.root == nullHandle {
		return LeafNode{}, false
	}
	var path []pathStep
	cur := c.root
	for c.nodes[cur].tag == TagInner {
		idx := c.nodes[cur].inner.WalkDown(key)
		path = append(path, pathStep{cur, idx})
		cur = c.nodes[cur].inner.Children[idx]
	}
	if !c.nodes[cur].leaf.Key.Equal(key) {
		return LeafNode{}, false
	}
	removed := c.nodes[cur].leaf
	c.removeLeafAtPath(path, cur)
	return removed, true
}

// Min returns the handle of the lowest-keyed leaf (best ask / worst bid).
func (c *Component) Min() (NodeHandle, bool) {
	if c.root == nullHandle {
		return 0, false
	}
	cur := c.root
	for c.nodes[cur].tag == TagInner {
		cur = c.nodes[cur].inner.Children[0]
	}
	return cur, true
}

// Max returns the handle of the highest-keyed leaf (best bid / worst ask).
func (c *Component) Max() (NodeHandle, bool) {
	if c.root == nullHandle {
		return 0, false
	}
	cur := c.root
	for c.nodes[cur].tag == TagInner {
		cur = c.nodes[cur].inner.Children[1]
	}
	return cur, true
}

// RemoveOneExpired finds and removes a single leaf whose time-in-force has
// lapsed as of now, using the child_earliest_expiry aggregate to locate it
// in O(log n) rather than scanning.
func (c *Component) RemoveOneExpired(now uint64) (LeafNode, bool) {
	if c.root == nullHandle || c.earliestExpiry(c.root) > now {
		return LeafNode{}, false
	}
	var path []pathStep
	cur := c.root
	for c.nodes[cur].tag == TagInner {
		inner := &c.nodes[cur].inner
		idx := uint8(0)
		if inner.ChildEarliestExpiry[0] > now {
			idx = 1
		}
		if inner.ChildEarliestExpiry[idx] > now {
			return LeafNode{}, false
		}
		path = append(path, pathStep{cur, idx})
		cur = inner.Children[idx]
	}
	leaf := c.nodes[cur].leaf
	if !leaf.IsExpired(now) {
		return LeafNode{}, false
	}
	c.removeLeafAtPath(path, cur)
	return leaf, true
}

func (c *Component) removeLeafAtPath(path []pathStep, leafHandle NodeHandle) {
	if len(path) == 0 {
		c.root = nullHandle
	} else {
		last := path[len(path)-1]
		siblingIdx := uint8(1) - last.childIdx
		sibling := c.nodes[last.handle].inner.Children[siblingIdx]
		if len(path) == 1 {
			c.root = sibling
		} else {
			gp := path[len(path)-2]
			c.nodes[gp.handle].inner.Children[gp.childIdx] = sibling
		}
		c.free(last.handle)
		for i := len(path) - 2; i >= 0; i-- {
			s := path[i]
			child := c.nodes[s.handle].inner.Children[s.childIdx]
			c.nodes[s.handle].inner.ChildEarliestExpiry[s.childIdx] = c.earliestExpiry(child)
		}
	}
	c.free(leafHandle)
	c.leafCount--
}

// DecrementQuantity reduces a live leaf's resting quantity in place for a
// partial fill; the caller is responsible for removing the leaf instead
// when the match consumes it entirely.
func (c *Component) DecrementQuantity(h NodeHandle, amount int64) {
	c.nodes[h].leaf.Quantity -= amount
}

// Walk calls visit for every leaf in ascending key order. Intended for
// tests and diagnostics, not the hot matching path.
func (c *Component) Walk(visit func(LeafNode)) {
	if c.root == nullHandle {
		return
	}
	var rec func(h NodeHandle)
	rec = func(h NodeHandle) {
		n := &c.nodes[h]
		if n.tag == TagLeaf {
			visit(n.leaf)
			return
		}
		rec(n.inner.Children[0])
		rec(n.inner.Children[1])
	}
	rec(c.root)
}
