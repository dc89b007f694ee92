package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/shopspring/decimal"
)

type QuotationBalanceView struct {
	QuoteId string                 `json:"quote_id"`
	Number  string                 `json:"number"`
	Status  models.QuotationStatus `json:"status"`
	models.Balance
}

// InvoiceBalanceView reports two figures for a converted invoice.
// Outstanding always uses the invoice formula (no discount, no shipping), so
// the deposit scenario shows 80 - 27 = 53. QuotedOutstanding measures the
// same payments against the quotation as printed (77 - 27 = 50) and is what
// the customer was quoted. Callers pick one; the two are never reconciled.
type InvoiceBalanceView struct {
	InvoiceId string               `json:"invoice_id"`
	Number    string               `json:"number"`
	Status    models.InvoiceStatus `json:"status"`
	models.Balance
	// Set for converted invoices: the same payments and credits measured
	// against the source quotation's grand total.
	QuotedGrand       *decimal.Decimal `json:"quoted_grand,omitempty"`
	QuotedOutstanding *decimal.Decimal `json:"quoted_outstanding,omitempty"`
}

type CustomerBalanceView struct {
	CustomerId string `json:"customer_id"`
	// Outstanding sums the outstanding balance of every non-draft invoice.
	Outstanding decimal.Decimal `json:"outstanding"`
	// UnappliedPayments are payments that target no document.
	UnappliedPayments decimal.Decimal `json:"unapplied_payments"`
	// Deposits are payments still sitting on quotations.
	Deposits        decimal.Decimal      `json:"deposits"`
	UnappliedCredit decimal.Decimal      `json:"unapplied_credit"`
	Invoices        []InvoiceBalanceView `json:"invoices"`
}

// BalanceService reads the ledgers and feeds the pure calculator. Results are
// rounded to two places; sums underneath are not.
type BalanceService struct {
	*Core
	Payments *PaymentLedger
	Credits  *CreditLedger
}

func NewBalanceService(core *Core, payments *PaymentLedger, credits *CreditLedger) *BalanceService {
	return &BalanceService{Core: core, Payments: payments, Credits: credits}
}

func (s *BalanceService) QuotationBalance(ctx context.Context, id string) (*QuotationBalanceView, error) {
	q, err := read(s.Core, ctx, func(ctx context.Context) (*models.Quotation, error) {
		return s.Repo.GetQuotation(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	deposits, err := s.Payments.ByQuote(ctx, id)
	if err != nil {
		return nil, err
	}
	return &QuotationBalanceView{
		QuoteId: q.ID,
		Number:  q.Number,
		Status:  q.Status,
		Balance: models.QuotationBalance(q, deposits).Rounded(),
	}, nil
}

func (s *BalanceService) InvoiceBalance(ctx context.Context, id string) (*InvoiceBalanceView, error) {
	inv, err := read(s.Core, ctx, func(ctx context.Context) (*models.Invoice, error) {
		return s.Repo.GetInvoice(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	payments, err := s.Payments.ByInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	credits, err := s.Credits.ByInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	view := invoiceView(inv, payments, credits, s.now())
	if inv.SourceQuoteId != nil {
		q, err := read(s.Core, ctx, func(ctx context.Context) (*models.Quotation, error) {
			return s.Repo.GetQuotation(ctx, *inv.SourceQuoteId)
		})
		switch {
		case err == nil:
			raw := models.InvoiceBalance(inv, payments, credits)
			grand := models.QuoteTotals(q).Grand
			outstanding := models.Outstanding(grand, raw.Paid, raw.Credited)
			grand, outstanding = utils.RoundMoney(grand), utils.RoundMoney(outstanding)
			view.QuotedGrand = &grand
			view.QuotedOutstanding = &outstanding
		case !utils.IsNotFound(err):
			return nil, err
		}
	}
	return &view, nil
}

func invoiceView(inv *models.Invoice, payments []*models.Payment, credits []*models.CreditNote, now time.Time) InvoiceBalanceView {
	balance := models.InvoiceBalance(inv, payments, credits)
	return InvoiceBalanceView{
		InvoiceId: inv.ID,
		Number:    inv.Number,
		Status:    models.DeriveInvoiceStatus(inv, balance, now),
		Balance:   balance.Rounded(),
	}
}

func (s *BalanceService) CustomerBalance(ctx context.Context, customerId string) (*CustomerBalanceView, error) {
	invoices, err := read(s.Core, ctx, s.Repo.ListInvoices)
	if err != nil {
		return nil, err
	}
	payments, err := s.Payments.ByCustomer(ctx, customerId)
	if err != nil {
		return nil, err
	}
	credits, err := s.Credits.ByCustomer(ctx, customerId)
	if err != nil {
		return nil, err
	}

	now := s.now()
	view := &CustomerBalanceView{CustomerId: customerId, Invoices: []InvoiceBalanceView{}}
	outstanding := decimal.Zero
	unapplied := decimal.Zero
	deposits := decimal.Zero
	for _, p := range payments {
		switch {
		case p.IsUnapplied():
			unapplied = unapplied.Add(p.Amount)
		case p.QuoteId != nil:
			deposits = deposits.Add(p.Amount)
		}
	}
	remaining := decimal.Zero
	for _, cn := range credits {
		remaining = remaining.Add(cn.Remaining())
	}
	for _, inv := range invoices {
		if inv.Customer.ID != customerId {
			continue
		}
		var applied []*models.Payment
		for _, p := range payments {
			if p.InvoiceId != nil && *p.InvoiceId == inv.ID {
				applied = append(applied, p)
			}
		}
		balance := models.InvoiceBalance(inv, applied, credits)
		if inv.Status != models.InvoiceStatusDraft {
			outstanding = outstanding.Add(balance.Outstanding)
		}
		view.Invoices = append(view.Invoices, invoiceView(inv, applied, credits, now))
	}
	view.Outstanding = utils.RoundMoney(outstanding)
	view.UnappliedPayments = utils.RoundMoney(unapplied)
	view.Deposits = utils.RoundMoney(deposits)
	view.UnappliedCredit = utils.RoundMoney(remaining)
	return view, nil
}
