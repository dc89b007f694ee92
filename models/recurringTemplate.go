package models

import (
	"time"
)

type IntervalRule struct {
	Terms     RecurringTerms `json:"terms" validate:"required,oneof=D W M Y"`
	Every     int            `json:"every" validate:"gte=1"`
	AnchorDay int            `json:"anchor_day,omitempty" validate:"gte=0,lte=31"`
	EndDate   *time.Time     `json:"end_date,omitempty"`
}

// RecurringTemplate is an invoice blueprint. NextRunAt, NextNumber, LastRunAt
// and LastFiredRunAt are the only fields the scheduler mutates.
type RecurringTemplate struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Customer       CustomerRef  `json:"customer"`
	Items          []LineItem   `json:"items" validate:"required,min=1,dive"`
	Active         bool         `json:"active"`
	SeqPrefix      string       `json:"seq_prefix"`
	NextNumber     int64        `json:"next_number" validate:"gte=1"`
	NextRunAt      *time.Time   `json:"next_run_at,omitempty"`
	LastRunAt      *time.Time   `json:"last_run_at,omitempty"`
	LastFiredRunAt *time.Time   `json:"last_fired_run_at,omitempty"`
	AutoSend       bool         `json:"auto_send"`
	IntervalRule   IntervalRule `json:"interval_rule"`
	DueInDays      int          `json:"due_in_days,omitempty" validate:"gte=0"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Version        int64        `json:"-"`
}

type NewRecurringTemplate struct {
	Name         string       `json:"name"`
	Customer     CustomerRef  `json:"customer"`
	Items        []LineItem   `json:"items" validate:"required,min=1,dive"`
	SeqPrefix    string       `json:"seq_prefix"`
	NextNumber   int64        `json:"next_number" validate:"gte=0"`
	NextRunAt    time.Time    `json:"next_run_at" validate:"required"`
	AutoSend     bool         `json:"auto_send"`
	IntervalRule IntervalRule `json:"interval_rule"`
	DueInDays    int          `json:"due_in_days" validate:"gte=0"`
}

type UpdateRecurringTemplate struct {
	Name      string      `json:"name"`
	Customer  CustomerRef `json:"customer"`
	Items     []LineItem  `json:"items" validate:"required,min=1,dive"`
	AutoSend  bool        `json:"auto_send"`
	DueInDays int         `json:"due_in_days" validate:"gte=0"`
}

type RescheduleRecurringTemplate struct {
	NextRunAt    time.Time    `json:"next_run_at" validate:"required"`
	IntervalRule IntervalRule `json:"interval_rule"`
}

func (t *RecurringTemplate) GetId() string { return t.ID }
func (t *RecurringTemplate) GetVersion() int64 { return t.Version }
func (t *RecurringTemplate) SetVersion(v int64) { t.Version = v }

// HasFired reports whether the current NextRunAt was already claimed.
func (t *RecurringTemplate) HasFired() bool {
	return t.NextRunAt != nil && t.LastFiredRunAt != nil && t.LastFiredRunAt.Equal(*t.NextRunAt)
}

// BuildInvoice generates the sent invoice for one occurrence.
func (t *RecurringTemplate) BuildInvoice(id string, number string, occurrence time.Time, now time.Time) *Invoice {
	templateId := t.ID
	occ := occurrence
	sentAt := now
	inv := &Invoice{
		ID:                  id,
		Number:              number,
		Customer:            t.Customer,
		Items:               CopyLineItems(t.Items),
		Status:              InvoiceStatusSent,
		CreatedAt:           now,
		RecurringTemplateId: &templateId,
		Occurrence:          &occ,
		SentAt:              &sentAt,
		UpdatedAt:           now,
	}
	if t.DueInDays > 0 {
		due := now.AddDate(0, 0, t.DueInDays)
		inv.DueDate = &due
	}
	return inv
}
