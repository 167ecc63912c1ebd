// Package engine is the thin multi-market facade: it owns one
// Market/Book/EventQueue/PositionBook tuple per market name and exposes
// place_order,
// place_take_order, cancel_order_by_id, cancel_order_by_client_order_id,
// cancel_all and consume_events as plain method calls. It performs no I/O
// and does no logging of its own — wire decoding and structured logging
// belong to cmd/gateway and cmd/cranker, one layer out.
package engine

import (
	"errors"

	"github.com/shopspring/decimal"

	"fenrir/internal/common"
	"fenrir/internal/market"
	"fenrir/internal/matching"
)

var ErrUnknownMarket = errors.New("engine: unknown market")

// MarketConfig bundles the capacity choices a market is created with.
type MarketConfig struct {
	Name               string
	BaseLotSize        int64
	QuoteLotSize       int64
	MakerFee           string // decimal literal, e.g. "-0.0002"
	TakerFee           string
	FixedCapacity      int
	PeggedCapacity     int
	EventQueueCapacity int
}

type marketState struct {
	mkt       *market.Market
	book      *matching.Book
	events    *market.EventQueue
	positions *market.PositionBook
}

// Engine owns every market this process serves.
type Engine struct {
	markets map[string]*marketState
}

func New() *Engine {
	return &Engine{markets: make(map[string]*marketState)}
}

// RegisterMarket creates a fresh market under cfg.Name, fails if one already
// exists under that name.
func (e *Engine) RegisterMarket(cfg MarketConfig, now uint64) error {
	if _, exists := e.markets[cfg.Name]; exists {
		return errors.New("engine: market already registered: " + cfg.Name)
	}
	makerFee, err := decimal.NewFromString(cfg.MakerFee)
	if err != nil {
		return err
	}
	takerFee, err := decimal.NewFromString(cfg.TakerFee)
	if err != nil {
		return err
	}
	mkt := market.NewMarket(cfg.Name, cfg.BaseLotSize, cfg.QuoteLotSize, makerFee, takerFee)
	mkt.RegistrationTime = now
	e.markets[cfg.Name] = &marketState{
		mkt:       mkt,
		book:      matching.NewBook(cfg.FixedCapacity, cfg.PeggedCapacity),
		events:    market.NewEventQueue(cfg.EventQueueCapacity),
		positions: market.NewPositionBook(),
	}
	return nil
}

// OraclePrice is the single scalar the core accepts for oracle-pegged
// orders; Valid=false makes every OraclePegged order in that call fail
// OraclePegInvalidOracleState.
type OraclePrice struct {
	PriceLots int64
	Valid     bool
}

func (e *Engine) market(name string) (*marketState, error) {
	ms, ok := e.markets[name]
	if !ok {
		return nil, ErrUnknownMarket
	}
	return ms, nil
}

// PlaceOrder runs the matching engine for a live, position-tracked owner:
// taker effects settle synchronously, maker effects defer to the event
// queue, and any remainder posts to the book.
func (e *Engine) PlaceOrder(marketName, owner string, order matching.Order, oracle OraclePrice, now uint64, limit int) (matching.OrderResult, error) {
	ms, err := e.market(marketName)
	if err != nil {
		return matching.OrderResult{}, err
	}
	if ms.mkt.IsExpired(now) {
		return matching.OrderResult{}, common.ErrMarketHasExpired
	}
	pos := ms.positions.GetOrCreate(owner)
	return matching.NewOrder(ms.book, ms.mkt, ms.events, order, oracle.PriceLots, oracle.Valid, pos, owner, now, limit)
}

// PlaceTakeOrder runs the matching engine as a pure taker: produces fills
// and enqueues Out/Fill events, never
// posts, and never touches an owner's Position — the wrapper settles both
// legs immediately from the returned amounts.
func (e *Engine) PlaceTakeOrder(marketName, owner string, order matching.Order, oracle OraclePrice, now uint64, limit int) (matching.OrderResult, error) {
	ms, err := e.market(marketName)
	if err != nil {
		return matching.OrderResult{}, err
	}
	if ms.mkt.IsExpired(now) {
		return matching.OrderResult{}, common.ErrMarketHasExpired
	}
	return matching.NewOrder(ms.book, ms.mkt, ms.events, order, oracle.PriceLots, oracle.Valid, nil, owner, now, limit)
}

// CancelOrderByID removes one resting order and releases its reserved
// funds.
func (e *Engine) CancelOrderByID(marketName, owner string, id matching.OrderID) (matching.CancelResult, error) {
	ms, err := e.market(marketName)
	if err != nil {
		return matching.CancelResult{}, err
	}
	pos, ok := ms.positions.Get(owner)
	if !ok {
		return matching.CancelResult{}, common.ErrOrderIDNotFound
	}
	return matching.CancelByID(ms.book, ms.mkt, pos, id, owner)
}

// CancelOrderByClientOrderID cancels every resting order tagged cid.
func (e *Engine) CancelOrderByClientOrderID(marketName, owner string, cid uint64) (matching.CancelResult, error) {
	ms, err := e.market(marketName)
	if err != nil {
		return matching.CancelResult{}, err
	}
	pos, ok := ms.positions.Get(owner)
	if !ok {
		return matching.CancelResult{}, common.ErrOrderIDNotFound
	}
	return matching.CancelByClientOrderID(ms.book, ms.mkt, pos, owner, cid)
}

// CancelAll cancels up to limit of owner's resting orders, optionally
// restricted to one side.
func (e *Engine) CancelAll(marketName, owner string, sideFilter *common.Side, limit int) (matching.CancelResult, error) {
	ms, err := e.market(marketName)
	if err != nil {
		return matching.CancelResult{}, err
	}
	pos, ok := ms.positions.Get(owner)
	if !ok {
		return matching.CancelResult{}, nil
	}
	return matching.CancelAll(ms.book, ms.mkt, pos, owner, sideFilter, limit)
}

// ConsumeEvents applies up to limit events from marketName's queue against
// the positions in this Engine's PositionBook — required for fills to
// become visible to makers. The caller cannot restrict it to a chosen set
// of owners: every owner with a position here is settled, and an event
// naming an owner with no position stays queued. preferredSlots names
// queue indices to process first.
func (e *Engine) ConsumeEvents(marketName string, limit int, preferredSlots []int) (int, error) {
	ms, err := e.market(marketName)
	if err != nil {
		return 0, err
	}
	lookup := func(owner string) (*market.Position, bool) {
		return ms.positions.Get(owner)
	}
	return ms.events.ConsumeEvents(ms.mkt, lookup, limit, preferredSlots)
}

// Positions exposes the PositionBook for read-only admin/crank enumeration.
func (e *Engine) Positions(marketName string) (*market.PositionBook, error) {
	ms, err := e.market(marketName)
	if err != nil {
		return nil, err
	}
	return ms.positions, nil
}

// Market exposes the Market record for read-only inspection (fee schedule,
// accrued totals, expiry).
func (e *Engine) Market(marketName string) (*market.Market, error) {
	ms, err := e.market(marketName)
	if err != nil {
		return nil, err
	}
	return ms.mkt, nil
}

// MarketNames lists every market this Engine currently serves, for a
// cranker to iterate over.
func (e *Engine) MarketNames() []string {
	names := make([]string, 0, len(e.markets))
	for name := range e.markets {
		names = append(names, name)
	}
	return names
}
