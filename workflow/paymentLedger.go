package workflow

import (
	"context"

	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/repository"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/shopspring/decimal"
)

type RecordOptions struct {
	// RequireTarget rejects payments that name neither an invoice nor a
	// quotation. Unapplied payments are valid otherwise.
	RequireTarget bool
}

// PaymentLedger records money received. Update and Remove exist for
// corrections; balances are always recomputed from the ledger, never cached.
type PaymentLedger struct {
	*Core
}

func NewPaymentLedger(core *Core) *PaymentLedger {
	return &PaymentLedger{Core: core}
}

func (l *PaymentLedger) Record(ctx context.Context, input *models.NewPayment, opts RecordOptions) (*models.Payment, error) {
	if err := l.checkInput(input, opts); err != nil {
		return nil, err
	}
	var result *models.Payment
	err := l.transact(ctx, func(tx *repository.Repository) error {
		if err := checkPaymentTarget(ctx, tx, input.CustomerId, input.InvoiceId, input.QuoteId); err != nil {
			return err
		}
		now := l.now()
		p := &models.Payment{
			ID:         newId(),
			CustomerId: input.CustomerId,
			InvoiceId:  input.InvoiceId,
			QuoteId:    input.QuoteId,
			Amount:     input.Amount,
			Date:       input.Date,
			Method:     input.Method,
			Reference:  input.Reference,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.SavePayment(ctx, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		l.logFailure("Record", "Tx", input, err)
		return nil, err
	}
	return result, nil
}

// Update replaces a payment's fields after the same checks Record runs.
func (l *PaymentLedger) Update(ctx context.Context, id string, input *models.NewPayment, opts RecordOptions) (*models.Payment, error) {
	if err := l.checkInput(input, opts); err != nil {
		return nil, err
	}
	var result *models.Payment
	err := l.transact(ctx, func(tx *repository.Repository) error {
		p, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if err := checkPaymentTarget(ctx, tx, input.CustomerId, input.InvoiceId, input.QuoteId); err != nil {
			return err
		}
		p.CustomerId = input.CustomerId
		p.InvoiceId = input.InvoiceId
		p.QuoteId = input.QuoteId
		p.Amount = input.Amount
		p.Date = input.Date
		p.Method = input.Method
		p.Reference = input.Reference
		p.UpdatedAt = l.now()
		if err := tx.SavePayment(ctx, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		l.logFailure("Update", "Tx", id, err)
		return nil, err
	}
	return result, nil
}

func (l *PaymentLedger) Remove(ctx context.Context, id string) error {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	err := l.Repo.DeletePayment(ctx, id)
	l.logFailure("Remove", "DeletePayment", id, err)
	return err
}

func (l *PaymentLedger) Get(ctx context.Context, id string) (*models.Payment, error) {
	return read(l.Core, ctx, func(ctx context.Context) (*models.Payment, error) {
		return l.Repo.GetPayment(ctx, id)
	})
}

func (l *PaymentLedger) checkInput(input *models.NewPayment, opts RecordOptions) error {
	input.InvoiceId = normalizeRef(input.InvoiceId)
	input.QuoteId = normalizeRef(input.QuoteId)
	if !input.Amount.IsPositive() {
		return utils.NewValidationError("amount", utils.ErrInvalidAmount, "must be greater than 0")
	}
	if err := models.ValidateStruct(input); err != nil {
		return err
	}
	if input.InvoiceId != nil && input.QuoteId != nil {
		return utils.NewValidationError("invoice_id", utils.ErrInvalidTarget, "only one of invoice_id and quote_id may be set")
	}
	if opts.RequireTarget && input.InvoiceId == nil && input.QuoteId == nil {
		return utils.NewValidationError("invoice_id", utils.ErrInvalidTarget, "a target invoice or quotation is required")
	}
	return nil
}

// checkPaymentTarget requires the target to belong to the paying customer and
// re-saves it in the same transaction. The version bump makes a concurrent conversion, customer
// change or delete of the target lose its commit and re-read the payments.
func checkPaymentTarget(ctx context.Context, tx *repository.Repository, customerId string, invoiceId *string, quoteId *string) error {
	var owner string
	switch {
	case invoiceId != nil:
		inv, err := tx.GetInvoice(ctx, *invoiceId)
		if err != nil {
			return err
		}
		owner = inv.Customer.ID
		if owner == customerId {
			return tx.SaveInvoice(ctx, inv)
		}
	case quoteId != nil:
		q, err := tx.GetQuotation(ctx, *quoteId)
		if err != nil {
			return err
		}
		// Deposits on an accepted quotation would miss the conversion that
		// already moved the others; declined quotations take no money.
		if !q.IsEditable() {
			return immutable("quote_id", "quotation is "+string(q.Status))
		}
		owner = q.Customer.ID
		if owner == customerId {
			return tx.SaveQuotation(ctx, q)
		}
	default:
		return nil
	}
	return utils.NewValidationError("customer_id", utils.ErrCustomerMismatch, "does not match the target document's customer")
}

func (l *PaymentLedger) filter(ctx context.Context, keep func(p *models.Payment) bool) ([]*models.Payment, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	all, err := l.Repo.ListPayments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Payment, 0, len(all))
	for _, p := range all {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (l *PaymentLedger) ByInvoice(ctx context.Context, invoiceId string) ([]*models.Payment, error) {
	return l.filter(ctx, func(p *models.Payment) bool {
		return p.InvoiceId != nil && *p.InvoiceId == invoiceId
	})
}

func (l *PaymentLedger) ByQuote(ctx context.Context, quoteId string) ([]*models.Payment, error) {
	return l.filter(ctx, func(p *models.Payment) bool {
		return p.QuoteId != nil && *p.QuoteId == quoteId
	})
}

func (l *PaymentLedger) ByCustomer(ctx context.Context, customerId string) ([]*models.Payment, error) {
	return l.filter(ctx, func(p *models.Payment) bool {
		return p.CustomerId == customerId
	})
}

func (l *PaymentLedger) List(ctx context.Context) ([]*models.Payment, error) {
	return l.filter(ctx, func(*models.Payment) bool { return true })
}

// Sum adds the amounts unrounded.
func (l *PaymentLedger) Sum(payments []*models.Payment) decimal.Decimal {
	return models.SumPayments(payments)
}
