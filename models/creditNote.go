package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreditApplication struct {
	InvoiceId string          `json:"invoice_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
}

type CreditNote struct {
	ID           string              `json:"id"`
	Number       string              `json:"number"`
	Date         time.Time           `json:"date" validate:"required"`
	CustomerId   string              `json:"customer_id" validate:"required"`
	Amount       decimal.Decimal     `json:"amount" validate:"gte=0"`
	AppliedLines []CreditApplication `json:"applied_lines" validate:"dive"`
	Reason       string              `json:"reason,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Version      int64               `json:"-"`
}

type NewCreditNote struct {
	CustomerId   string              `json:"customer_id" validate:"required"`
	Date         time.Time           `json:"date" validate:"required"`
	Amount       decimal.Decimal     `json:"amount" validate:"gte=0"`
	AppliedLines []CreditApplication `json:"applied_lines" validate:"dive"`
	Reason       string              `json:"reason"`
}

func (c *CreditNote) GetId() string { return c.ID }
func (c *CreditNote) GetVersion() int64 { return c.Version }
func (c *CreditNote) SetVersion(v int64) { c.Version = v }

func (c *CreditNote) AppliedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.AppliedLines {
		total = total.Add(line.Amount)
	}
	return total
}

func (c *CreditNote) AppliedTo(invoiceId string) decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.AppliedLines {
		if line.InvoiceId == invoiceId {
			total = total.Add(line.Amount)
		}
	}
	return total
}

// Remaining is the unapplied part of the credit, never negative.
func (c *CreditNote) Remaining() decimal.Decimal {
	r := c.Amount.Sub(c.AppliedTotal())
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}
