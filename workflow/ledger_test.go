package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) sentInvoice(t *testing.T, customer models.CustomerRef, price string) *models.Invoice {
	t.Helper()
	ctx := context.Background()
	inv, err := e.svc.Documents.CreateInvoice(ctx, &models.NewInvoice{
		Customer: customer,
		Items:    []models.LineItem{{Name: "Service", Quantity: dec("1"), UnitPrice: dec(price)}},
	})
	require.NoError(t, err)
	inv, err = e.svc.Documents.MarkInvoiceSent(ctx, inv.ID)
	require.NoError(t, err)
	return inv
}

func TestRecordPayment_Validation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	inv := env.sentInvoice(t, acme, "100")
	q, err := env.svc.Documents.CreateQuotation(ctx, scenarioQuoteInput())
	require.NoError(t, err)

	base := func() *models.NewPayment {
		return &models.NewPayment{
			CustomerId: acme.ID,
			Amount:     dec("10"),
			Date:       testNow,
			Method:     models.PaymentMethodCash,
		}
	}

	cases := []struct {
		name   string
		mutate func(p *models.NewPayment)
		opts   RecordOptions
		want   error
	}{
		{"zero amount", func(p *models.NewPayment) { p.Amount = dec("0") }, RecordOptions{}, utils.ErrInvalidAmount},
		{"negative amount", func(p *models.NewPayment) { p.Amount = dec("-5") }, RecordOptions{}, utils.ErrInvalidAmount},
		{"two targets", func(p *models.NewPayment) { p.InvoiceId = strPtr(inv.ID); p.QuoteId = strPtr(q.ID) }, RecordOptions{}, utils.ErrInvalidTarget},
		{"target required", func(p *models.NewPayment) {}, RecordOptions{RequireTarget: true}, utils.ErrInvalidTarget},
		{"missing customer", func(p *models.NewPayment) { p.CustomerId = "" }, RecordOptions{}, utils.ErrMissingField},
		{"other customer", func(p *models.NewPayment) { p.CustomerId = "cust-other"; p.InvoiceId = strPtr(inv.ID) }, RecordOptions{}, utils.ErrCustomerMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base()
			tc.mutate(in)
			_, err := env.svc.Payments.Record(ctx, in, tc.opts)
			require.Error(t, err)
			assert.True(t, utils.IsValidation(err))
			assert.ErrorIs(t, err, tc.want)
		})
	}

	in := base()
	in.InvoiceId = strPtr("no-such-invoice")
	_, err = env.svc.Payments.Record(ctx, in, RecordOptions{})
	assert.True(t, utils.IsNotFound(err))

	all, err := env.svc.Payments.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRecordPayment_UnappliedIsValid(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	p, err := env.svc.Payments.Record(ctx, &models.NewPayment{
		CustomerId: acme.ID,
		InvoiceId:  strPtr(""),
		Amount:     dec("15.5"),
		Date:       testNow,
		Method:     models.PaymentMethodMobileWallet,
	}, RecordOptions{})
	require.NoError(t, err)
	assert.True(t, p.IsUnapplied())

	byCustomer, err := env.svc.Payments.ByCustomer(ctx, acme.ID)
	require.NoError(t, err)
	require.Len(t, byCustomer, 1)
	assert.Equal(t, "15.50", env.svc.Payments.Sum(byCustomer).StringFixed(2))
}

func TestPaymentUpdateAndRemove(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	inv := env.sentInvoice(t, acme, "100")

	p, err := env.svc.Payments.Record(ctx, &models.NewPayment{
		CustomerId: acme.ID,
		InvoiceId:  strPtr(inv.ID),
		Amount:     dec("40"),
		Date:       testNow,
		Method:     models.PaymentMethodCard,
	}, RecordOptions{RequireTarget: true})
	require.NoError(t, err)

	updated, err := env.svc.Payments.Update(ctx, p.ID, &models.NewPayment{
		CustomerId: acme.ID,
		InvoiceId:  strPtr(inv.ID),
		Amount:     dec("45"),
		Date:       testNow,
		Method:     models.PaymentMethodCard,
		Reference:  strPtr("receipt 88"),
	}, RecordOptions{})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(dec("45")))
	assert.Equal(t, p.ID, updated.ID)

	b, err := env.svc.Balances.InvoiceBalance(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "55.00", b.Outstanding.StringFixed(2))

	require.NoError(t, env.svc.Payments.Remove(ctx, p.ID))
	b, err = env.svc.Balances.InvoiceBalance(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", b.Outstanding.StringFixed(2))

	assert.True(t, utils.IsNotFound(env.svc.Payments.Remove(ctx, p.ID)))
}

func TestCreditNotes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	inv := env.sentInvoice(t, acme, "100")
	other := env.sentInvoice(t, acme, "30")

	_, err := env.svc.Credits.Issue(ctx, &models.NewCreditNote{
		CustomerId:   acme.ID,
		Date:         testNow,
		Amount:       dec("20"),
		AppliedLines: []models.CreditApplication{{InvoiceId: inv.ID, Amount: dec("25")}},
	})
	assert.ErrorIs(t, err, utils.ErrCreditExceeded)

	_, err = env.svc.Credits.Issue(ctx, &models.NewCreditNote{
		CustomerId:   "cust-other",
		Date:         testNow,
		Amount:       dec("20"),
		AppliedLines: []models.CreditApplication{{InvoiceId: inv.ID, Amount: dec("5")}},
	})
	assert.ErrorIs(t, err, utils.ErrCustomerMismatch)

	cn, err := env.svc.Credits.Issue(ctx, &models.NewCreditNote{
		CustomerId:   acme.ID,
		Date:         testNow,
		Amount:       dec("20"),
		AppliedLines: []models.CreditApplication{{InvoiceId: inv.ID, Amount: dec("12.5")}},
		Reason:       "damaged goods",
	})
	require.NoError(t, err)
	assert.Equal(t, "CN-000001", cn.Number)

	remaining, err := env.svc.Credits.Remaining(ctx, cn.ID)
	require.NoError(t, err)
	assert.Equal(t, "7.50", remaining.StringFixed(2))

	_, err = env.svc.Credits.Apply(ctx, cn.ID, other.ID, dec("8"))
	assert.ErrorIs(t, err, utils.ErrCreditExceeded)
	_, err = env.svc.Credits.Apply(ctx, cn.ID, other.ID, dec("0"))
	assert.ErrorIs(t, err, utils.ErrInvalidAmount)

	cn, err = env.svc.Credits.Apply(ctx, cn.ID, other.ID, dec("7.5"))
	require.NoError(t, err)
	assert.True(t, cn.Remaining().IsZero())

	applied, err := env.svc.Credits.SumAppliedToInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.50", applied.StringFixed(2))

	byOther, err := env.svc.Credits.ByInvoice(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, byOther, 1)

	b, err := env.svc.Balances.InvoiceBalance(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.50", b.Credited.StringFixed(2))
	assert.Equal(t, "87.50", b.Outstanding.StringFixed(2))

	require.NoError(t, env.svc.Credits.Remove(ctx, cn.ID))
	applied, err = env.svc.Credits.SumAppliedToInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, applied.IsZero())
}

func TestInvoiceBalance_DerivedStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	due := testNow.AddDate(0, 0, 7)
	inv, err := env.svc.Documents.CreateInvoice(ctx, &models.NewInvoice{
		Customer: acme,
		Items:    []models.LineItem{{Name: "Retainer", Quantity: dec("1"), UnitPrice: dec("60")}},
		DueDate:  &due,
	})
	require.NoError(t, err)
	_, err = env.svc.Documents.MarkInvoiceSent(ctx, inv.ID)
	require.NoError(t, err)

	b, err := env.svc.Balances.InvoiceBalance(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSent, b.Status)

	env.clock.Advance(8 * 24 * time.Hour)
	b, err = env.svc.Balances.InvoiceBalance(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusOverdue, b.Status)

	_, err = env.svc.Payments.Record(ctx, &models.NewPayment{
		CustomerId: acme.ID,
		InvoiceId:  strPtr(inv.ID),
		Amount:     dec("60"),
		Date:       testNow,
		Method:     models.PaymentMethodCheque,
	}, RecordOptions{})
	require.NoError(t, err)
	b, err = env.svc.Balances.InvoiceBalance(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, b.Status)

	// derived, never written back
	stored, err := env.svc.Documents.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSent, stored.Status)
}

func TestCustomerBalance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	inv := env.sentInvoice(t, acme, "100")
	env.sentInvoice(t, models.CustomerRef{ID: "cust-other", Name: "Other"}, "999")

	q, err := env.svc.Documents.CreateQuotation(ctx, scenarioQuoteInput())
	require.NoError(t, err)
	env.deposit(t, q.ID, "5")

	_, err = env.svc.Payments.Record(ctx, &models.NewPayment{
		CustomerId: acme.ID, InvoiceId: strPtr(inv.ID), Amount: dec("30"), Date: testNow, Method: models.PaymentMethodCash,
	}, RecordOptions{})
	require.NoError(t, err)
	_, err = env.svc.Payments.Record(ctx, &models.NewPayment{
		CustomerId: acme.ID, Amount: dec("12"), Date: testNow, Method: models.PaymentMethodCash,
	}, RecordOptions{})
	require.NoError(t, err)
	_, err = env.svc.Credits.Issue(ctx, &models.NewCreditNote{
		CustomerId:   acme.ID,
		Date:         testNow,
		Amount:       dec("10"),
		AppliedLines: []models.CreditApplication{{InvoiceId: inv.ID, Amount: dec("4")}},
	})
	require.NoError(t, err)

	view, err := env.svc.Balances.CustomerBalance(ctx, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, "66.00", view.Outstanding.StringFixed(2))
	assert.Equal(t, "12.00", view.UnappliedPayments.StringFixed(2))
	assert.Equal(t, "5.00", view.Deposits.StringFixed(2))
	assert.Equal(t, "6.00", view.UnappliedCredit.StringFixed(2))
	require.Len(t, view.Invoices, 1)
	assert.Equal(t, inv.ID, view.Invoices[0].InvoiceId)
}
