package models

import (
	"time"

	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/shopspring/decimal"
)

// Totals are unrounded; call Rounded before presenting them.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Grand    decimal.Decimal `json:"grand"`
}

func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal: utils.RoundMoney(t.Subtotal),
		Discount: utils.RoundMoney(t.Discount),
		Shipping: utils.RoundMoney(t.Shipping),
		Tax:      utils.RoundMoney(t.Tax),
		Grand:    utils.RoundMoney(t.Grand),
	}
}

func LineItemsSubtotal(items []LineItem) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Total())
	}
	return subtotal
}

// QuoteTotals: grand = subtotal - discount + shipping, floored at 0.
func QuoteTotals(q *Quotation) Totals {
	subtotal := LineItemsSubtotal(q.Items)
	discount := decimal.Zero
	if q.DiscountPercent != nil {
		discount = utils.CalculateDiscountAmount(subtotal, *q.DiscountPercent, "P")
	}
	shipping := decimal.Zero
	if q.ShippingAmount != nil {
		shipping = *q.ShippingAmount
	}
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Tax:      decimal.Zero,
		Grand:    utils.MaxZero(subtotal.Sub(discount).Add(shipping)),
	}
}

// InvoiceTotals has no invoice-level discount, shipping or tax: grand = subtotal.
func InvoiceTotals(inv *Invoice) Totals {
	subtotal := LineItemsSubtotal(inv.Items)
	return Totals{
		Subtotal: subtotal,
		Discount: decimal.Zero,
		Shipping: decimal.Zero,
		Tax:      decimal.Zero,
		Grand:    subtotal,
	}
}

func SumPayments(payments []*Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

// SumCreditsAppliedTo adds every applied line that targets invoiceId.
func SumCreditsAppliedTo(invoiceId string, credits []*CreditNote) decimal.Decimal {
	total := decimal.Zero
	for _, c := range credits {
		total = total.Add(c.AppliedTo(invoiceId))
	}
	return total
}

// Outstanding is max(0, grand - paid - credited).
func Outstanding(grand decimal.Decimal, paid decimal.Decimal, credited decimal.Decimal) decimal.Decimal {
	return utils.MaxZero(grand.Sub(paid).Sub(credited))
}

type Balance struct {
	Totals
	Paid        decimal.Decimal `json:"paid"`
	Credited    decimal.Decimal `json:"credited"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

func (b Balance) Rounded() Balance {
	return Balance{
		Totals:      b.Totals.Rounded(),
		Paid:        utils.RoundMoney(b.Paid),
		Credited:    utils.RoundMoney(b.Credited),
		Outstanding: utils.RoundMoney(b.Outstanding),
	}
}

// QuotationBalance counts deposits recorded against the quotation.
func QuotationBalance(q *Quotation, payments []*Payment) Balance {
	totals := QuoteTotals(q)
	paid := SumPayments(payments)
	return Balance{
		Totals:      totals,
		Paid:        paid,
		Credited:    decimal.Zero,
		Outstanding: Outstanding(totals.Grand, paid, decimal.Zero),
	}
}

func InvoiceBalance(inv *Invoice, payments []*Payment, credits []*CreditNote) Balance {
	totals := InvoiceTotals(inv)
	paid := SumPayments(payments)
	credited := SumCreditsAppliedTo(inv.ID, credits)
	return Balance{
		Totals:      totals,
		Paid:        paid,
		Credited:    credited,
		Outstanding: Outstanding(totals.Grand, paid, credited),
	}
}

// DeriveInvoiceStatus computes paid/overdue for display. Nothing persists it.
func DeriveInvoiceStatus(inv *Invoice, balance Balance, now time.Time) InvoiceStatus {
	if inv.Status == InvoiceStatusDraft {
		return InvoiceStatusDraft
	}
	if balance.Grand.IsPositive() && balance.Outstanding.IsZero() {
		return InvoiceStatusPaid
	}
	if inv.DueDate != nil && now.After(*inv.DueDate) && balance.Outstanding.IsPositive() {
		return InvoiceStatusOverdue
	}
	return inv.Status
}
