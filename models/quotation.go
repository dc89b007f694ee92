package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Quotation struct {
	ID              string           `json:"id"`
	Number          string           `json:"number"`
	Customer        CustomerRef      `json:"customer"`
	Items           []LineItem       `json:"items" validate:"required,min=1,dive"`
	Status          QuotationStatus  `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	ShippingAmount  *decimal.Decimal `json:"shipping_amount,omitempty" validate:"omitempty,gte=0"`
	ExpiryDate      *time.Time       `json:"expiry_date,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	SentAt          *time.Time       `json:"sent_at,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Version         int64            `json:"-"`
}

type NewQuotation struct {
	Customer        CustomerRef      `json:"customer"`
	Items           []LineItem       `json:"items" validate:"required,min=1,dive"`
	DiscountPercent *decimal.Decimal `json:"discount_percent" validate:"omitempty,gte=0,lte=100"`
	ShippingAmount  *decimal.Decimal `json:"shipping_amount" validate:"omitempty,gte=0"`
	ExpiryDate      *time.Time       `json:"expiry_date"`
	Notes           string           `json:"notes"`
}

func (q *Quotation) GetId() string { return q.ID }
func (q *Quotation) GetVersion() int64 { return q.Version }
func (q *Quotation) SetVersion(v int64) { q.Version = v }

// IsEditable is false once the quotation was accepted or declined.
func (q *Quotation) IsEditable() bool {
	return q.Status == QuotationStatusDraft || q.Status == QuotationStatusSent
}

// ToInvoice builds the draft invoice a conversion produces.
func (q *Quotation) ToInvoice(id string, number string, now time.Time) *Invoice {
	sourceId := q.ID
	return &Invoice{
		ID:            id,
		Number:        number,
		Customer:      q.Customer,
		Items:         CopyLineItems(q.Items),
		Status:        InvoiceStatusDraft,
		CreatedAt:     now,
		SourceQuoteId: &sourceId,
		Notes:         q.Notes,
		UpdatedAt:     now,
	}
}
