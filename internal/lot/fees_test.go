package lot

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	assert.NoError(t, err)
	return d
}

func TestNativeQuoteAndBase(t *testing.T) {
	assert.Equal(t, int64(100*10*5), NativeQuote(100, 10, 5))
	assert.Equal(t, int64(10*100), NativeBase(10, 100))
}

func TestLotToNativePriceRoundTrip(t *testing.T) {
	baseLotSize, quoteLotSize := int64(100), int64(10)
	priceLots := int64(5000)

	native := LotToNativePrice(priceLots, quoteLotSize, baseLotSize)
	back := NativePriceToLot(native, baseLotSize, quoteLotSize)
	assert.Equal(t, priceLots, back)
}

func TestSubtractTakerFeesFloor(t *testing.T) {
	takerFee := mustDecimal(t, "0.0004")
	// 1_000_000 / 1.0004 = 999600.16..., floored.
	got := SubtractTakerFeesFloor(1_000_000, takerFee)
	assert.Equal(t, int64(999600), got)
}

func TestTakerFeeCeilAndCredit(t *testing.T) {
	takerFee := mustDecimal(t, "0.0004")
	quoteNative := int64(999600)

	fee := TakerFeeCeil(quoteNative, takerFee)
	assert.Equal(t, int64(400), fee) // 999600*0.0004 = 399.84, ceil -> 400

	credit := TakerCreditFloor(quoteNative, takerFee)
	assert.Equal(t, int64(999200), credit) // 999600*(1-0.0004) = 999200.16, floor
}

func TestMakerCreditAndFeeNegative(t *testing.T) {
	makerFee := mustDecimal(t, "-0.0002")
	quoteNative := int64(1_000_000)

	credit := MakerCreditFloor(quoteNative, makerFee)
	assert.Equal(t, int64(999800), credit) // 1_000_000*(1-0.0002) = 999800

	fee := MakerFeeCeil(quoteNative, makerFee)
	assert.Equal(t, int64(-200), fee)
}

func TestReferrerRebateCeil_NonNegativeMakerFee(t *testing.T) {
	takerFee := mustDecimal(t, "0.0004")
	makerFee := mustDecimal(t, "0.0001")
	takerFeeAmount := int64(400)

	got := ReferrerRebateCeil(takerFeeAmount, takerFee, makerFee)
	assert.Equal(t, takerFeeAmount, got)
}

func TestReferrerRebateCeil_NegativeMakerFee(t *testing.T) {
	takerFee := mustDecimal(t, "0.0004")
	makerFee := mustDecimal(t, "-0.0002")
	takerFeeAmount := int64(400)

	// ratio = (0.0004 - 0.0002) / 0.0004 = 0.5
	got := ReferrerRebateCeil(takerFeeAmount, takerFee, makerFee)
	assert.Equal(t, int64(200), got)
}

func TestReferrerRebateCeil_NeverExceedsTakerFee(t *testing.T) {
	takerFee := mustDecimal(t, "0.0004")
	makerFee := mustDecimal(t, "-0.0004") // maker fully rebated, equal magnitude to taker fee
	takerFeeAmount := int64(1000)

	got := ReferrerRebateCeil(takerFeeAmount, takerFee, makerFee)
	assert.LessOrEqual(t, got, takerFeeAmount)
	assert.Equal(t, int64(0), got)
}

func TestReferrerRebateCeil_ZeroAmount(t *testing.T) {
	takerFee := mustDecimal(t, "0.0004")
	makerFee := mustDecimal(t, "-0.0002")
	assert.Equal(t, int64(0), ReferrerRebateCeil(0, takerFee, makerFee))
}
