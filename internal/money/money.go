// Package money holds the currency and coin arithmetic shared by checkout,
// wallet and refunds. Amounts travel as int64 minor units (paise); coins
// are whole currency units (1 coin = 1 rupee). Intermediate math runs on
// decimals so proportional splits do not accumulate float error.
package money

import "github.com/shopspring/decimal"

const (
	// MinorUnitsPerCoin converts coins to paise.
	MinorUnitsPerCoin = 100

	// coinDiscountRate caps coin spend at 10% of the order total.
	coinDiscountRate = "0.10"

	// cashbackRate accrues 1% of the order total as coins.
	cashbackRate = "0.01"
)

// QuoteCoins returns the coins auto-applied against a total: the lesser of
// the wallet balance and 10% of the total. Callers may spend less, never
// more.
func QuoteCoins(totalMinor, balance int64) int64 {
	if totalMinor <= 0 || balance <= 0 {
		return 0
	}
	cap := decimal.NewFromInt(totalMinor).
		Mul(decimal.RequireFromString(coinDiscountRate)).
		Div(decimal.NewFromInt(MinorUnitsPerCoin)).
		Floor().IntPart()
	if balance < cap {
		return balance
	}
	return cap
}

// ClampCoins bounds a caller-chosen coin spend to [0, QuoteCoins(...)].
func ClampCoins(requested, totalMinor, balance int64) int64 {
	if requested < 0 {
		return 0
	}
	if q := QuoteCoins(totalMinor, balance); requested > q {
		return q
	}
	return requested
}

// CashbackCoins returns floor(total * 1%) in coins.
func CashbackCoins(totalMinor int64) int64 {
	if totalMinor <= 0 {
		return 0
	}
	return decimal.NewFromInt(totalMinor).
		Mul(decimal.RequireFromString(cashbackRate)).
		Div(decimal.NewFromInt(MinorUnitsPerCoin)).
		Floor().IntPart()
}

// CoinsToMinor converts a coin count to minor currency units.
func CoinsToMinor(coins int64) int64 {
	return coins * MinorUnitsPerCoin
}

// RefundShare prorates the payable amount by lineMinor/totalMinor, rounded
// to the nearest minor unit. A zero total yields zero.
func RefundShare(payableMinor, lineMinor, totalMinor int64) int64 {
	if totalMinor <= 0 || lineMinor <= 0 || payableMinor <= 0 {
		return 0
	}
	return decimal.NewFromInt(payableMinor).
		Mul(decimal.NewFromInt(lineMinor)).
		Div(decimal.NewFromInt(totalMinor)).
		Round(0).IntPart()
}

// RefundCoins rounds a minor-unit refund to whole coins for a wallet
// credit.
func RefundCoins(refundMinor int64) int64 {
	if refundMinor <= 0 {
		return 0
	}
	return decimal.NewFromInt(refundMinor).
		Div(decimal.NewFromInt(MinorUnitsPerCoin)).
		Round(0).IntPart()
}

// ProrateCoins splits the coins spent on an order by the same proportion
// as a line refund, rounded to the nearest coin. Recorded on the return
// request for audit.
func ProrateCoins(coinsUsed, lineMinor, totalMinor int64) int64 {
	if totalMinor <= 0 || coinsUsed <= 0 || lineMinor <= 0 {
		return 0
	}
	return decimal.NewFromInt(coinsUsed).
		Mul(decimal.NewFromInt(lineMinor)).
		Div(decimal.NewFromInt(totalMinor)).
		Round(0).IntPart()
}
