package models

import (
	"errors"
)

type QuotationStatus string

const (
	QuotationStatusDraft    QuotationStatus = "draft"
	QuotationStatusSent     QuotationStatus = "sent"
	QuotationStatusAccepted QuotationStatus = "accepted"
	QuotationStatusDeclined QuotationStatus = "declined"
)

// convert input to enum type
func (s *QuotationStatus) UnmarshalText(b []byte) error {
	statuses := map[string]QuotationStatus{
		"draft":    QuotationStatusDraft,
		"sent":     QuotationStatusSent,
		"accepted": QuotationStatusAccepted,
		"declined": QuotationStatusDeclined,
	}
	v, ok := statuses[string(b)]
	if !ok {
		return errors.New("invalid quotation status")
	}
	*s = v
	return nil
}

type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusSent    InvoiceStatus = "sent"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

func (s *InvoiceStatus) UnmarshalText(b []byte) error {
	statuses := map[string]InvoiceStatus{
		"draft":   InvoiceStatusDraft,
		"sent":    InvoiceStatusSent,
		"paid":    InvoiceStatusPaid,
		"overdue": InvoiceStatusOverdue,
	}
	v, ok := statuses[string(b)]
	if !ok {
		return errors.New("invalid invoice status")
	}
	*s = v
	return nil
}

type RecurringTerms string

const (
	RecurringTermsDay   RecurringTerms = "D"
	RecurringTermsWeek  RecurringTerms = "W"
	RecurringTermsMonth RecurringTerms = "M"
	RecurringTermsYear  RecurringTerms = "Y"
)

func (p *RecurringTerms) UnmarshalText(b []byte) error {
	recurringTerms := map[string]RecurringTerms{
		"D": RecurringTermsDay,
		"W": RecurringTermsWeek,
		"M": RecurringTermsMonth,
		"Y": RecurringTermsYear,
	}
	v, ok := recurringTerms[string(b)]
	if !ok {
		return errors.New("invalid recurringTerms")
	}
	*p = v
	return nil
}

func (p RecurringTerms) IsValid() bool {
	switch p {
	case RecurringTermsDay, RecurringTermsWeek, RecurringTermsMonth, RecurringTermsYear:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodCheque       PaymentMethod = "cheque"
	PaymentMethodMobileWallet PaymentMethod = "mobile_wallet"
	PaymentMethodOther        PaymentMethod = "other"
)

func (m *PaymentMethod) UnmarshalText(b []byte) error {
	methods := map[string]PaymentMethod{
		"cash":          PaymentMethodCash,
		"bank_transfer": PaymentMethodBankTransfer,
		"card":          PaymentMethodCard,
		"cheque":        PaymentMethodCheque,
		"mobile_wallet": PaymentMethodMobileWallet,
		"other":         PaymentMethodOther,
	}
	v, ok := methods[string(b)]
	if !ok {
		return errors.New("invalid payment method")
	}
	*m = v
	return nil
}
