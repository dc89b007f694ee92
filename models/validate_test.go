package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validNewQuotation() models.NewQuotation {
	return models.NewQuotation{
		Customer: models.CustomerRef{ID: "c-1", Name: "Acme", Email: "billing@acme.test"},
		Items:    []models.LineItem{{Name: "Widget", Quantity: dec("2"), UnitPrice: dec("5")}},
	}
}

func TestValidateStructAcceptsValidInput(t *testing.T) {
	in := validNewQuotation()
	in.DiscountPercent = decPtr("100")
	in.ShippingAmount = decPtr("0")
	require.NoError(t, models.ValidateStruct(in))
}

func TestValidateStructReportsFieldAndReason(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*models.NewQuotation)
		field    string
		sentinel error
	}{
		{"discount above 100", func(q *models.NewQuotation) { q.DiscountPercent = decPtr("100.01") }, "discount_percent", utils.ErrInvalidDiscount},
		{"negative discount", func(q *models.NewQuotation) { q.DiscountPercent = decPtr("-1") }, "discount_percent", utils.ErrInvalidDiscount},
		{"negative shipping", func(q *models.NewQuotation) { q.ShippingAmount = decPtr("-0.01") }, "shipping_amount", utils.ErrInvalidAmount},
		{"zero quantity", func(q *models.NewQuotation) { q.Items[0].Quantity = dec("0") }, "items[0].quantity", utils.ErrInvalidAmount},
		{"negative price", func(q *models.NewQuotation) { q.Items[0].UnitPrice = dec("-3") }, "items[0].unit_price", utils.ErrInvalidAmount},
		{"missing item name", func(q *models.NewQuotation) { q.Items[0].Name = "" }, "items[0].name", utils.ErrMissingField},
		{"no items", func(q *models.NewQuotation) { q.Items = nil }, "items", utils.ErrMissingField},
		{"missing customer", func(q *models.NewQuotation) { q.Customer.ID = "" }, "customer.id", utils.ErrMissingField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validNewQuotation()
			tc.mutate(&in)

			err := models.ValidateStruct(in)
			require.Error(t, err)

			var ve *utils.ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %T", err)
			assert.Equal(t, tc.field, ve.Field)
			assert.NotEmpty(t, ve.Reason)
			assert.ErrorIs(t, err, tc.sentinel)
		})
	}
}

func TestValidatePaymentAmount(t *testing.T) {
	p := models.NewPayment{
		CustomerId: "c-1",
		Amount:     dec("0"),
		Date:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Method:     models.PaymentMethodCash,
	}
	err := models.ValidateStruct(p)
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrInvalidAmount)

	p.Amount = dec("0.01")
	assert.NoError(t, models.ValidateStruct(p))
}

func TestValidateIntervalRule(t *testing.T) {
	in := models.NewRecurringTemplate{
		Customer:     models.CustomerRef{ID: "c-1"},
		Items:        []models.LineItem{{Name: "Hosting", Quantity: dec("1"), UnitPrice: dec("20")}},
		NextRunAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		IntervalRule: models.IntervalRule{Terms: "Q", Every: 1},
	}
	err := models.ValidateStruct(in)
	require.Error(t, err)
	var ve *utils.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "interval_rule.terms", ve.Field)

	in.IntervalRule.Terms = models.RecurringTermsMonth
	in.IntervalRule.Every = 0
	err = models.ValidateStruct(in)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "interval_rule.every", ve.Field)

	in.IntervalRule.Every = 1
	assert.NoError(t, models.ValidateStruct(in))
}
