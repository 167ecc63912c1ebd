package matching

import (
	"fenrir/internal/common"
	"fenrir/internal/orderbook"
)

// Book is the two-sided order book one Market matches against: a Bid
// BookSide and an Ask BookSide, each owning its own fixed and
// oracle-pegged trees.
type Book struct {
	Bids *orderbook.BookSide
	Asks *orderbook.BookSide
}

// NewBook allocates a book with independent fixed/pegged capacity bounds
// shared by both sides.
func NewBook(fixedCapacity, peggedCapacity int) *Book {
	return &Book{
		Bids: orderbook.NewBookSide(common.Bid, fixedCapacity, peggedCapacity),
		Asks: orderbook.NewBookSide(common.Ask, fixedCapacity, peggedCapacity),
	}
}

// Side returns the BookSide an order of the given side posts its
// remainder to.
func (b *Book) Side(side common.Side) *orderbook.BookSide {
	if side == common.Bid {
		return b.Bids
	}
	return b.Asks
}

// Opposing returns the BookSide an order of the given side matches
// against.
func (b *Book) Opposing(side common.Side) *orderbook.BookSide {
	return b.Side(side.InvertSide())
}
