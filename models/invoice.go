package models

import (
	"time"
)

type Invoice struct {
	ID                  string        `json:"id"`
	Number              string        `json:"number"`
	Customer            CustomerRef   `json:"customer"`
	Items               []LineItem    `json:"items" validate:"required,min=1,dive"`
	Status              InvoiceStatus `json:"status"`
	CreatedAt           time.Time     `json:"created_at"`
	SourceQuoteId       *string       `json:"source_quote_id,omitempty"`
	RecurringTemplateId *string       `json:"recurring_template_id,omitempty"`
	Occurrence          *time.Time    `json:"occurrence,omitempty"`
	DueDate             *time.Time    `json:"due_date,omitempty"`
	SentAt              *time.Time    `json:"sent_at,omitempty"`
	Notes               string        `json:"notes,omitempty"`
	UpdatedAt           time.Time     `json:"updated_at"`
	Version             int64         `json:"-"`
}

type NewInvoice struct {
	Customer CustomerRef `json:"customer"`
	Items    []LineItem  `json:"items" validate:"required,min=1,dive"`
	DueDate  *time.Time  `json:"due_date"`
	Notes    string      `json:"notes"`
}

func (inv *Invoice) GetId() string { return inv.ID }
func (inv *Invoice) GetVersion() int64 { return inv.Version }
func (inv *Invoice) SetVersion(v int64) { inv.Version = v }
