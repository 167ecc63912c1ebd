// Package market owns the long-lived Market record, per-owner Position
// slot tables, and the bounded EventQueue that decouples taker settlement
// from maker settlement.
package market

import (
	"github.com/shopspring/decimal"

	"fenrir/internal/common"
	"fenrir/internal/orderbook"
)

// Market is the long-lived record shared by every order placed against one
// base/quote pair.
type Market struct {
	Name         string
	BaseLotSize  int64
	QuoteLotSize int64
	SeqNum       uint64

	MakerFee decimal.Decimal // may be negative
	TakerFee decimal.Decimal // must be >= 0

	FeesAccrued            int64
	FeesSettled            int64
	FeesToReferrers        int64
	ReferrerRebatesAccrued int64

	BaseDepositTotal  int64
	QuoteDepositTotal int64

	RegistrationTime uint64
	ExpiryTime       uint64 // 0 = never expires
}

// NewMarket constructs a market. takerFee must be >= 0; if makerFee < 0 its
// magnitude must not exceed takerFee (enforced by the caller at market
// creation, outside this package's scope per the core's Non-goals).
func NewMarket(name string, baseLotSize, quoteLotSize int64, makerFee, takerFee decimal.Decimal) *Market {
	return &Market{
		Name:         name,
		BaseLotSize:  baseLotSize,
		QuoteLotSize: quoteLotSize,
		MakerFee:     makerFee,
		TakerFee:     takerFee,
	}
}

// IsExpired reports whether the market's registered expiry has passed.
func (m *Market) IsExpired(now uint64) bool {
	return m.ExpiryTime != 0 && now >= m.ExpiryTime
}

// GenOrderID increments the market's monotonic sequence number and encodes
// a fresh book key for an order at the given side/price_data.
func (m *Market) GenOrderID(side common.Side, priceData uint64) orderbook.Key {
	m.SeqNum++
	return orderbook.NewKey(side, priceData, m.SeqNum)
}
