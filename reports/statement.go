package reports

import (
	"context"
	"sort"
	"time"

	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/repository"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/mmdatafocus/billing_backend/workflow"
	"github.com/shopspring/decimal"
)

type StatementInvoice struct {
	workflow.InvoiceBalanceView
	Date    time.Time  `json:"date"`
	DueDate *time.Time `json:"due_date,omitempty"`
}

// Statement is everything on record for one customer at GeneratedAt.
type Statement struct {
	CustomerId        string               `json:"customer_id"`
	CustomerName      string               `json:"customer_name"`
	GeneratedAt       time.Time            `json:"generated_at"`
	Outstanding       decimal.Decimal      `json:"outstanding"`
	UnappliedPayments decimal.Decimal      `json:"unapplied_payments"`
	Deposits          decimal.Decimal      `json:"deposits"`
	UnappliedCredit   decimal.Decimal      `json:"unapplied_credit"`
	Invoices          []StatementInvoice   `json:"invoices"`
	Payments          []*models.Payment    `json:"payments"`
	CreditNotes       []*models.CreditNote `json:"credit_notes"`
}

type StatementBuilder struct {
	repo     *repository.Repository
	services *workflow.Services
	clock    utils.Clock
}

func NewStatementBuilder(repo *repository.Repository, services *workflow.Services, clock utils.Clock) *StatementBuilder {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &StatementBuilder{repo: repo, services: services, clock: clock}
}

// CustomerStatement gathers the customer's invoices with their balances,
// payments and credit notes. Draft invoices are listed but not counted in
// Outstanding.
func (b *StatementBuilder) CustomerStatement(ctx context.Context, customerId string) (*Statement, error) {
	balance, err := b.services.Balances.CustomerBalance(ctx, customerId)
	if err != nil {
		return nil, err
	}
	invoices, err := b.repo.ListInvoices(ctx)
	if err != nil {
		return nil, err
	}
	payments, err := b.services.Payments.ByCustomer(ctx, customerId)
	if err != nil {
		return nil, err
	}
	credits, err := b.services.Credits.ByCustomer(ctx, customerId)
	if err != nil {
		return nil, err
	}
	if len(balance.Invoices) == 0 && len(payments) == 0 && len(credits) == 0 {
		return nil, &utils.NotFoundError{Kind: "customer", ID: customerId}
	}

	views := make(map[string]workflow.InvoiceBalanceView, len(balance.Invoices))
	for _, v := range balance.Invoices {
		views[v.InvoiceId] = v
	}

	st := &Statement{
		CustomerId:        customerId,
		GeneratedAt:       b.clock.Now().UTC(),
		Outstanding:       balance.Outstanding,
		UnappliedPayments: balance.UnappliedPayments,
		Deposits:          balance.Deposits,
		UnappliedCredit:   balance.UnappliedCredit,
		Invoices:          []StatementInvoice{},
		Payments:          payments,
		CreditNotes:       credits,
	}
	for _, inv := range invoices {
		view, ok := views[inv.ID]
		if !ok {
			continue
		}
		if st.CustomerName == "" {
			st.CustomerName = inv.Customer.Name
		}
		st.Invoices = append(st.Invoices, StatementInvoice{
			InvoiceBalanceView: view,
			Date:               inv.CreatedAt,
			DueDate:            inv.DueDate,
		})
	}

	sort.SliceStable(st.Invoices, func(i, j int) bool {
		if st.Invoices[i].Date.Equal(st.Invoices[j].Date) {
			return st.Invoices[i].Number < st.Invoices[j].Number
		}
		return st.Invoices[i].Date.Before(st.Invoices[j].Date)
	})
	sort.SliceStable(st.Payments, func(i, j int) bool {
		return st.Payments[i].Date.Before(st.Payments[j].Date)
	})
	sort.SliceStable(st.CreditNotes, func(i, j int) bool {
		return st.CreditNotes[i].Date.Before(st.CreditNotes[j].Date)
	})
	return st, nil
}
