package utils

import (
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the presentation precision for every amount.
const MoneyPlaces = 2

var decimalOneHundred = decimal.NewFromInt(100)

// RoundMoney rounds half-to-even at 2 places. Only call it when presenting
// a figure; sums stay unrounded.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(MoneyPlaces)
}

func MaxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// PercentOf returns amount * percent / 100 without intermediate rounding.
func PercentOf(amount decimal.Decimal, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(decimalOneHundred)
}

// CalculateDiscountAmount supports percent ("P") and absolute ("A") discounts.
func CalculateDiscountAmount(subTotal decimal.Decimal, discount decimal.Decimal, discountType string) decimal.Decimal {
	if !discount.IsPositive() {
		return decimal.Zero
	}
	if discountType == "P" {
		return PercentOf(subTotal, discount)
	}
	return discount
}
