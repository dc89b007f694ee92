package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is money received. At most one of InvoiceId/QuoteId is set; with
// neither set the payment is an unapplied customer credit.
type Payment struct {
	ID         string          `json:"id"`
	CustomerId string          `json:"customer_id" validate:"required"`
	InvoiceId  *string         `json:"invoice_id,omitempty"`
	QuoteId    *string         `json:"quote_id,omitempty"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	Date       time.Time       `json:"date" validate:"required"`
	Method     PaymentMethod   `json:"method" validate:"required"`
	Reference  *string         `json:"reference,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Version    int64           `json:"-"`
}

type NewPayment struct {
	CustomerId string          `json:"customer_id" validate:"required"`
	InvoiceId  *string         `json:"invoice_id"`
	QuoteId    *string         `json:"quote_id"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	Date       time.Time       `json:"date" validate:"required"`
	Method     PaymentMethod   `json:"method" validate:"required"`
	Reference  *string         `json:"reference"`
}

func (p *Payment) GetId() string { return p.ID }
func (p *Payment) GetVersion() int64 { return p.Version }
func (p *Payment) SetVersion(v int64) { p.Version = v }

func (p *Payment) IsUnapplied() bool {
	return p.InvoiceId == nil && p.QuoteId == nil
}

// Retarget moves a deposit from its quotation to an invoice.
func (p *Payment) Retarget(invoiceId string, now time.Time) {
	id := invoiceId
	p.InvoiceId = &id
	p.QuoteId = nil
	p.UpdatedAt = now
}
