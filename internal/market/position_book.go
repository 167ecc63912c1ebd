package market

import "github.com/tidwall/btree"

// PositionBook indexes every Position on a market by owner address in
// deterministic order using a btree.BTreeG, so admin/crank tooling can
// enumerate owners without a separate sort step.
type PositionBook struct {
	byOwner *btree.BTreeG[*Position]
}

func NewPositionBook() *PositionBook {
	return &PositionBook{
		byOwner: btree.NewBTreeG(func(a, b *Position) bool {
			return a.Owner < b.Owner
		}),
	}
}

// GetOrCreate returns the existing Position for owner, creating and
// indexing a fresh one if this is its first appearance on the market.
func (pb *PositionBook) GetOrCreate(owner string) *Position {
	if p, ok := pb.byOwner.Get(&Position{Owner: owner}); ok {
		return p
	}
	p := NewPosition(owner)
	pb.byOwner.Set(p)
	return p
}

// Get looks up a Position without creating one.
func (pb *PositionBook) Get(owner string) (*Position, bool) {
	return pb.byOwner.Get(&Position{Owner: owner})
}

// Delete removes an owner's Position, used once it holds no open orders
// and no free balance worth tracking.
func (pb *PositionBook) Delete(owner string) {
	pb.byOwner.Delete(&Position{Owner: owner})
}

// Len reports how many positions are indexed.
func (pb *PositionBook) Len() int { return pb.byOwner.Len() }

// Walk visits every indexed position in owner order; intended for crank
// and admin tooling, not the matching hot path.
func (pb *PositionBook) Walk(visit func(*Position) bool) {
	pb.byOwner.Scan(visit)
}
