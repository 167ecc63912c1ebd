// Package lot converts between lot-denominated book quantities and native
// token amounts, and applies the maker/taker fee schedule with the
// rounding direction guarantees the core promises: trader-facing credits
// round down, market- and referrer-facing credits round up.
package lot

import "github.com/shopspring/decimal"

func floorToInt(d decimal.Decimal) int64 { return d.Floor().IntPart() }
func ceilToInt(d decimal.Decimal) int64  { return d.Ceil().IntPart() }

// NativeQuote converts a matched quantity at a price into native quote
// units: price_lots * quantity_lots * quote_lot_size.
func NativeQuote(priceLots, quantityLots, quoteLotSize int64) int64 {
	return priceLots * quantityLots * quoteLotSize
}

// NativeBase converts a lot quantity into native base units.
func NativeBase(quantityLots, baseLotSize int64) int64 {
	return quantityLots * baseLotSize
}

// LotToNativePrice converts a lot price into a native-per-native price.
func LotToNativePrice(priceLots, quoteLotSize, baseLotSize int64) decimal.Decimal {
	return decimal.NewFromInt(priceLots).
		Mul(decimal.NewFromInt(quoteLotSize)).
		Div(decimal.NewFromInt(baseLotSize))
}

// NativePriceToLot is the inverse of LotToNativePrice, floored to the
// nearest whole lot price.
func NativePriceToLot(price decimal.Decimal, baseLotSize, quoteLotSize int64) int64 {
	return floorToInt(price.
		Mul(decimal.NewFromInt(baseLotSize)).
		Div(decimal.NewFromInt(quoteLotSize)))
}

// SubtractTakerFeesFloor computes the quote lots a bid can spend on base
// once taker fees are reserved out of its quote budget.
func SubtractTakerFeesFloor(quoteNative int64, takerFee decimal.Decimal) int64 {
	return floorToInt(decimal.NewFromInt(quoteNative).
		Div(decimal.NewFromInt(1).Add(takerFee)))
}

// TakerFeeCeil is the fee amount a bid taker owes on top of the notional,
// rounded up in the market's favor.
func TakerFeeCeil(quoteNative int64, takerFee decimal.Decimal) int64 {
	return ceilToInt(decimal.NewFromInt(quoteNative).Mul(takerFee))
}

// TakerCreditFloor is what an ask taker receives net of taker fees,
// rounded down.
func TakerCreditFloor(quoteNative int64, takerFee decimal.Decimal) int64 {
	return floorToInt(decimal.NewFromInt(quoteNative).
		Mul(decimal.NewFromInt(1).Sub(takerFee)))
}

// MakerCreditFloor is quoteNative * (1 + makerFee), rounded down: the quote
// an ask maker is credited on a fill. With a negative makerFee the credit
// is below the notional; no rebate is added to it here.
func MakerCreditFloor(quoteNative int64, makerFee decimal.Decimal) int64 {
	return floorToInt(decimal.NewFromInt(quoteNative).
		Mul(decimal.NewFromInt(1).Add(makerFee)))
}

// MakerFeeCeil is the counterpart locked/accrued amount withheld from the
// maker's credit, rounded up in the market's favor.
func MakerFeeCeil(quoteNative int64, makerFee decimal.Decimal) int64 {
	return ceilToInt(decimal.NewFromInt(quoteNative).Mul(makerFee))
}

// ReferrerRebateCeil is the referrer's share of an already-collected taker
// fee amount: when the maker fee is negative, only the portion of the
// taker fee rate not already funding the maker's own rebate (released
// separately via MakerFeeCeil at consume_events time); otherwise the
// entire taker fee rolls to the referrer.
func ReferrerRebateCeil(takerFeeAmount int64, takerFee, makerFee decimal.Decimal) int64 {
	if takerFeeAmount <= 0 {
		return 0
	}
	if !makerFee.IsNegative() {
		return takerFeeAmount
	}
	ratio := takerFee.Sub(makerFee.Abs()).Div(takerFee)
	return ceilToInt(decimal.NewFromInt(takerFeeAmount).Mul(ratio))
}
