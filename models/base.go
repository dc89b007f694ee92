package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Versioned is implemented by every persisted document. The version is owned
// by the repository and is not part of the stored body.
type Versioned interface {
	GetId() string
	GetVersion() int64
	SetVersion(int64)
}

type CustomerRef struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty"`
}

type LineItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
	Description *string         `json:"description,omitempty"`
}

// Total is quantity x unit price, unrounded.
func (l LineItem) Total() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

func CopyLineItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	out := make([]LineItem, len(items))
	for i, item := range items {
		out[i] = item
		if item.Description != nil {
			d := *item.Description
			out[i].Description = &d
		}
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
