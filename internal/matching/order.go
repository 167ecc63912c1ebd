// Package matching implements the order-type taxonomy and the NewOrder
// matching algorithm: price crossing, self-trade handling, bounded-compute
// fills, fill-or-kill atomicity, and remainder posting across the two-tree,
// bounded-limit, event-driven order book.
package matching

import (
	"math"

	"fenrir/internal/common"
	"fenrir/internal/orderbook"
)

const (
	// MaxTimeInForce is the largest expiry offset, in seconds, a resting
	// order may carry; longer requests are clamped rather than rejected.
	MaxTimeInForce = math.MaxUint16

	// DropExpiredOrderLimit bounds how many expired/invalid opposing
	// orders a single NewOrder call will opportunistically evict, so an
	// adversarial book full of stale orders can't make one call unbounded.
	DropExpiredOrderLimit = 5
)

// Order is one incoming order submission, taker-side parameters plus the
// order-type-specific payload in Params.
type Order struct {
	Side                      common.Side
	MaxBaseLots               int64
	MaxQuoteLotsIncludingFees int64
	ClientOrderID             uint64
	TimeInForce               uint16 // seconds, 0 = never expires
	SelfTradeBehavior         common.SelfTradeBehavior
	Params                    common.OrderParams
}

// OrderResult is everything the matching engine produces for the caller to
// derive token transfer obligations: the posted order's id (if any) plus
// the taken/posted amounts and fee splits realized for this single call.
type OrderResult struct {
	OrderID              *OrderID
	TotalBaseLotsTaken   int64
	TotalQuoteLotsTaken  int64
	TakerFeesNative      int64
	MakerFeesLockedNative int64
	ReferrerAmountNative int64
	PostedBaseNative     int64
	PostedQuoteNative    int64
}

// OrderID identifies a resting order for later cancellation: the book key
// plus which tree it lives in.
type OrderID struct {
	Key  orderbook.Key
	Tree common.BookSideOrderTree
}

// TimeInForceFromExpiry converts an absolute expiry timestamp supplied by a
// client into a relative time_in_force, rejecting an expiry already in the
// past and clamping one too far in the future to MaxTimeInForce.
func TimeInForceFromExpiry(now, expiryTimestamp uint64) (uint16, error) {
	if expiryTimestamp == 0 {
		return 0, nil
	}
	if expiryTimestamp <= now {
		return 0, common.ErrInvalidInputOrderType
	}
	tif := expiryTimestamp - now
	if tif > MaxTimeInForce {
		return MaxTimeInForce, nil
	}
	return uint16(tif), nil
}

// MarketOrderLimitForSide returns the implicit price bound a Market order
// uses in place of a literal "no limit" sentinel: bids will pay up to the
// largest representable price, asks will accept down to the lowest legal
// price.
func MarketOrderLimitForSide(side common.Side) int64 {
	if side == common.Bid {
		return math.MaxInt64
	}
	return 1
}

// PostOnlySlideLimit computes the clamped post price for a PostOnlySlide
// order given the best currently-valid opposing price, if any: a bid
// slides to bestOpposing-1, an ask to bestOpposing+1, taking whichever of
// the input price and the slide price is tighter (never loosening the
// order past what the caller asked for).
func PostOnlySlideLimit(side common.Side, inputPrice int64, bestOpposing int64, hasOpposing bool) int64 {
	if !hasOpposing {
		return inputPrice
	}
	if side == common.Bid {
		slide := bestOpposing - 1
		if slide < inputPrice {
			return slide
		}
		return inputPrice
	}
	slide := bestOpposing + 1
	if slide > inputPrice {
		return slide
	}
	return inputPrice
}

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

// effectivePrice computes the price an order crosses the book at: Market
// uses the implicit bound, ImmediateOrCancel/
// FillOrKill/Fixed use the literal price, OraclePegged adds the offset to
// the oracle price (failing if the oracle is unavailable or the result is
// non-positive).
func effectivePrice(order Order, oraclePriceLots int64, hasOracle bool) (int64, error) {
	switch order.Params.Kind {
	case common.ParamsMarket:
		return MarketOrderLimitForSide(order.Side), nil
	case common.ParamsImmediateOrCancel, common.ParamsFillOrKill, common.ParamsFixed:
		if order.Params.PriceLots < 1 {
			return 0, common.ErrInvalidInputPriceLots
		}
		return order.Params.PriceLots, nil
	case common.ParamsOraclePegged:
		if !hasOracle {
			return 0, common.ErrOraclePegInvalidOracleState
		}
		price := saturatingAddInt64(oraclePriceLots, order.Params.PriceOffsetLots)
		if price < 1 {
			return 0, common.ErrOraclePegInvalidOracleState
		}
		return price, nil
	default:
		return 0, common.ErrInvalidInputOrderType
	}
}

// validate performs the synchronous, no-mutation input checks required
// before any matching is attempted.
func validate(order Order) error {
	if order.MaxBaseLots <= 0 {
		return common.ErrInvalidInputLots
	}
	if order.MaxQuoteLotsIncludingFees <= 0 {
		return common.ErrInvalidInputLots
	}
	switch order.Params.Kind {
	case common.ParamsFixed:
		if order.Params.PriceLots < 1 {
			return common.ErrInvalidInputPriceLots
		}
	case common.ParamsImmediateOrCancel, common.ParamsFillOrKill:
		if order.Params.PriceLots < 1 {
			return common.ErrInvalidInputPriceLots
		}
	case common.ParamsOraclePegged:
		if order.Params.PegLimit != -1 && order.Params.PegLimit < 1 {
			return common.ErrInvalidInputPegLimit
		}
	case common.ParamsMarket:
	default:
		return common.ErrInvalidInputOrderType
	}
	return nil
}
