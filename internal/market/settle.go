package market

// SettleReferrerRebate resolves the taker-fee referrer split computed by a
// NewOrder call at the point an operation's wrapper settles it: if the
// caller supplies a referrer position, the accrued amount becomes a
// withdrawable quote credit on that position; otherwise it rolls into the
// market's own fee pool. The referrer-present-or-not decision is made here,
// at settlement, rather than at match time.
func SettleReferrerRebate(mkt *Market, referrer *Position, amount int64) {
	if amount <= 0 {
		return
	}
	if amount > mkt.ReferrerRebatesAccrued {
		amount = mkt.ReferrerRebatesAccrued
	}
	mkt.ReferrerRebatesAccrued -= amount
	if referrer != nil {
		referrer.QuoteFreeNative += amount
		referrer.ReferrerRebatesAccrued += amount
		return
	}
	mkt.FeesAccrued += amount
}
