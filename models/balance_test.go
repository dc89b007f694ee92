package models_test

import (
	"testing"
	"time"

	"github.com/mmdatafocus/billing_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func strPtr(s string) *string { return &s }

func scenarioQuotation() *models.Quotation {
	return &models.Quotation{
		ID:       "q-1",
		Customer: models.CustomerRef{ID: "c-1", Name: "Acme"},
		Items: []models.LineItem{
			{ID: "l-1", Name: "Widget", Quantity: dec("3"), UnitPrice: dec("10.00")},
			{ID: "l-2", Name: "Setup", Quantity: dec("1"), UnitPrice: dec("50.00")},
		},
		Status:          models.QuotationStatusDraft,
		DiscountPercent: decPtr("10"),
		ShippingAmount:  decPtr("5.00"),
	}
}

func TestQuoteTotalsScenario(t *testing.T) {
	totals := models.QuoteTotals(scenarioQuotation()).Rounded()

	assert.Equal(t, "80", totals.Subtotal.String())
	assert.Equal(t, "8", totals.Discount.String())
	assert.Equal(t, "5", totals.Shipping.String())
	assert.True(t, totals.Grand.Equal(dec("77.00")), "grand=%s", totals.Grand)
}

func TestQuoteTotalsWithoutDiscountOrShipping(t *testing.T) {
	q := scenarioQuotation()
	q.DiscountPercent = nil
	q.ShippingAmount = nil

	totals := models.QuoteTotals(q)
	assert.True(t, totals.Discount.IsZero())
	assert.True(t, totals.Shipping.IsZero())
	assert.True(t, totals.Grand.Equal(dec("80")))
}

func TestQuoteTotalsGrandNeverNegative(t *testing.T) {
	q := &models.Quotation{
		Items: []models.LineItem{{Name: "Free sample", Quantity: dec("1"), UnitPrice: dec("0")}},
		// out of range on purpose: the calculator must still clamp
		DiscountPercent: decPtr("250"),
	}
	totals := models.QuoteTotals(q)
	assert.True(t, totals.Grand.IsZero())

	q.Items[0].UnitPrice = dec("10")
	totals = models.QuoteTotals(q)
	assert.True(t, totals.Discount.Equal(dec("25")))
	assert.False(t, totals.Grand.IsNegative())
	assert.True(t, totals.Grand.IsZero())
}

// Invoices carry no discount or shipping, so the same lines give a
// different grand total than the quotation they came from.
func TestInvoiceTotalsIgnoreQuoteAdjustments(t *testing.T) {
	q := scenarioQuotation()
	inv := q.ToInvoice("inv-1", "INV-000001", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	invTotals := models.InvoiceTotals(inv)
	quoteTotals := models.QuoteTotals(q)

	assert.True(t, invTotals.Grand.Equal(invTotals.Subtotal))
	assert.True(t, invTotals.Tax.IsZero())
	assert.True(t, invTotals.Grand.Equal(dec("80")))
	assert.False(t, invTotals.Grand.Equal(quoteTotals.Grand))
}

func TestOutstandingNeverNegative(t *testing.T) {
	cases := []struct {
		name     string
		grand    string
		paid     string
		credited string
		want     string
	}{
		{"unpaid", "100", "0", "0", "100"},
		{"partial", "100", "30", "20", "50"},
		{"exact", "100", "60", "40", "0"},
		{"overpaid", "100", "90", "40", "0"},
		{"zero grand", "0", "10", "0", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := models.Outstanding(dec(tc.grand), dec(tc.paid), dec(tc.credited))
			assert.True(t, got.Equal(dec(tc.want)), "got %s want %s", got, tc.want)
			assert.False(t, got.IsNegative())
		})
	}
}

func TestInvoiceBalanceCountsOnlyCreditsForThatInvoice(t *testing.T) {
	inv := &models.Invoice{
		ID:     "inv-1",
		Status: models.InvoiceStatusSent,
		Items:  []models.LineItem{{Name: "Hours", Quantity: dec("10"), UnitPrice: dec("12.5")}},
	}
	payments := []*models.Payment{
		{ID: "p-1", Amount: dec("25")},
		{ID: "p-2", Amount: dec("0.333")},
	}
	credits := []*models.CreditNote{
		{ID: "cn-1", Amount: dec("50"), AppliedLines: []models.CreditApplication{
			{InvoiceId: "inv-1", Amount: dec("10")},
			{InvoiceId: "inv-2", Amount: dec("40")},
		}},
	}

	b := models.InvoiceBalance(inv, payments, credits)
	assert.True(t, b.Grand.Equal(dec("125")))
	assert.True(t, b.Paid.Equal(dec("25.333")), "internal sums stay unrounded")
	assert.True(t, b.Credited.Equal(dec("10")))
	assert.True(t, b.Outstanding.Equal(dec("89.667")))
	assert.True(t, b.Rounded().Outstanding.Equal(dec("89.67")))
}

func TestRoundedUsesBankersRounding(t *testing.T) {
	totals := models.Totals{Subtotal: dec("2.345"), Grand: dec("2.355")}.Rounded()
	assert.Equal(t, "2.34", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "2.36", totals.Grand.StringFixed(2))
}

func TestDeriveInvoiceStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	inv := &models.Invoice{
		ID:     "inv-1",
		Status: models.InvoiceStatusSent,
		Items:  []models.LineItem{{Name: "x", Quantity: dec("1"), UnitPrice: dec("100")}},
	}

	b := models.InvoiceBalance(inv, nil, nil)
	assert.Equal(t, models.InvoiceStatusSent, models.DeriveInvoiceStatus(inv, b, now))

	inv.DueDate = &past
	assert.Equal(t, models.InvoiceStatusOverdue, models.DeriveInvoiceStatus(inv, b, now))

	inv.DueDate = &future
	assert.Equal(t, models.InvoiceStatusSent, models.DeriveInvoiceStatus(inv, b, now))

	paid := models.InvoiceBalance(inv, []*models.Payment{{Amount: dec("100")}}, nil)
	inv.DueDate = &past
	assert.Equal(t, models.InvoiceStatusPaid, models.DeriveInvoiceStatus(inv, paid, now))

	inv.Status = models.InvoiceStatusDraft
	assert.Equal(t, models.InvoiceStatusDraft, models.DeriveInvoiceStatus(inv, paid, now))
}

func TestCreditNoteRemaining(t *testing.T) {
	c := &models.CreditNote{Amount: dec("30"), AppliedLines: []models.CreditApplication{
		{InvoiceId: "a", Amount: dec("10")},
		{InvoiceId: "a", Amount: dec("5")},
	}}
	assert.True(t, c.AppliedTotal().Equal(dec("15")))
	assert.True(t, c.AppliedTo("a").Equal(dec("15")))
	assert.True(t, c.AppliedTo("b").IsZero())
	assert.True(t, c.Remaining().Equal(dec("15")))
}

func TestToInvoiceCopiesItems(t *testing.T) {
	q := scenarioQuotation()
	q.Items[0].Description = strPtr("blue")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	inv := q.ToInvoice("inv-9", "INV-000009", now)
	require.NotNil(t, inv.SourceQuoteId)
	assert.Equal(t, "q-1", *inv.SourceQuoteId)
	assert.Equal(t, models.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, q.Items, inv.Items)
	assert.Equal(t, q.Customer, inv.Customer)

	*inv.Items[0].Description = "red"
	assert.Equal(t, "blue", *q.Items[0].Description)
}

func TestBuildInvoiceFromTemplate(t *testing.T) {
	occ := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	now := occ.Add(10 * time.Second)
	tpl := &models.RecurringTemplate{
		ID:        "tpl-1",
		Customer:  models.CustomerRef{ID: "c-1"},
		Items:     []models.LineItem{{ID: "l-1", Name: "Hosting", Quantity: dec("1"), UnitPrice: dec("20")}},
		DueInDays: 14,
	}
	inv := tpl.BuildInvoice("inv-1", "INV-0001", occ, now)

	assert.Equal(t, models.InvoiceStatusSent, inv.Status)
	assert.Equal(t, now, inv.CreatedAt)
	require.NotNil(t, inv.Occurrence)
	assert.True(t, inv.Occurrence.Equal(occ))
	require.NotNil(t, inv.DueDate)
	assert.True(t, inv.DueDate.Equal(now.AddDate(0, 0, 14)))
	require.NotNil(t, inv.RecurringTemplateId)
	assert.Equal(t, "tpl-1", *inv.RecurringTemplateId)
}
