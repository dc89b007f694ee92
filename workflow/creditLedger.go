package workflow

import (
	"context"

	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/repository"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/shopspring/decimal"
)

// CreditLedger records credit notes and their applications to invoices.
// Credits apply to invoices only.
type CreditLedger struct {
	*Core
}

func NewCreditLedger(core *Core) *CreditLedger {
	return &CreditLedger{Core: core}
}

func (l *CreditLedger) Issue(ctx context.Context, input *models.NewCreditNote) (*models.CreditNote, error) {
	if err := checkCreditInput(input); err != nil {
		return nil, err
	}
	var result *models.CreditNote
	err := l.transact(ctx, func(tx *repository.Repository) error {
		if err := checkCreditLines(ctx, tx, input.CustomerId, input.AppliedLines); err != nil {
			return err
		}
		number, err := l.nextNumber(ctx, tx, SeriesCreditNote, CreditNotePrefix)
		if err != nil {
			return err
		}
		now := l.now()
		cn := &models.CreditNote{
			ID:           newId(),
			Number:       number,
			Date:         input.Date,
			CustomerId:   input.CustomerId,
			Amount:       input.Amount,
			AppliedLines: append([]models.CreditApplication(nil), input.AppliedLines...),
			Reason:       input.Reason,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.SaveCreditNote(ctx, cn); err != nil {
			return err
		}
		result = cn
		return nil
	})
	if err != nil {
		l.logFailure("Issue", "Tx", input, err)
		return nil, err
	}
	return result, nil
}

// Apply adds one application of the credit to an invoice, bounded by what is
// left of the credit.
func (l *CreditLedger) Apply(ctx context.Context, creditId string, invoiceId string, amount decimal.Decimal) (*models.CreditNote, error) {
	if !amount.IsPositive() {
		return nil, utils.NewValidationError("amount", utils.ErrInvalidAmount, "must be greater than 0")
	}
	if invoiceId == "" {
		return nil, utils.NewValidationError("invoice_id", utils.ErrMissingField, "is required")
	}
	var result *models.CreditNote
	err := l.transact(ctx, func(tx *repository.Repository) error {
		cn, err := tx.GetCreditNote(ctx, creditId)
		if err != nil {
			return err
		}
		line := models.CreditApplication{InvoiceId: invoiceId, Amount: amount}
		if err := checkCreditLines(ctx, tx, cn.CustomerId, []models.CreditApplication{line}); err != nil {
			return err
		}
		if amount.GreaterThan(cn.Remaining()) {
			return utils.NewValidationError("amount", utils.ErrCreditExceeded, "exceeds the remaining credit of "+utils.RoundMoney(cn.Remaining()).StringFixed(2))
		}
		cn.AppliedLines = append(cn.AppliedLines, line)
		cn.UpdatedAt = l.now()
		if err := tx.SaveCreditNote(ctx, cn); err != nil {
			return err
		}
		result = cn
		return nil
	})
	if err != nil {
		l.logFailure("Apply", "Tx", creditId, err)
		return nil, err
	}
	return result, nil
}

func (l *CreditLedger) Update(ctx context.Context, id string, input *models.NewCreditNote) (*models.CreditNote, error) {
	if err := checkCreditInput(input); err != nil {
		return nil, err
	}
	var result *models.CreditNote
	err := l.transact(ctx, func(tx *repository.Repository) error {
		cn, err := tx.GetCreditNote(ctx, id)
		if err != nil {
			return err
		}
		if err := checkCreditLines(ctx, tx, input.CustomerId, input.AppliedLines); err != nil {
			return err
		}
		cn.Date = input.Date
		cn.CustomerId = input.CustomerId
		cn.Amount = input.Amount
		cn.AppliedLines = append([]models.CreditApplication(nil), input.AppliedLines...)
		cn.Reason = input.Reason
		cn.UpdatedAt = l.now()
		if err := tx.SaveCreditNote(ctx, cn); err != nil {
			return err
		}
		result = cn
		return nil
	})
	if err != nil {
		l.logFailure("Update", "Tx", id, err)
		return nil, err
	}
	return result, nil
}

func (l *CreditLedger) Remove(ctx context.Context, id string) error {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	err := l.Repo.DeleteCreditNote(ctx, id)
	l.logFailure("Remove", "DeleteCreditNote", id, err)
	return err
}

func (l *CreditLedger) Get(ctx context.Context, id string) (*models.CreditNote, error) {
	return read(l.Core, ctx, func(ctx context.Context) (*models.CreditNote, error) {
		return l.Repo.GetCreditNote(ctx, id)
	})
}

func checkCreditInput(input *models.NewCreditNote) error {
	if input.Amount.IsNegative() {
		return utils.NewValidationError("amount", utils.ErrInvalidAmount, "must be at least 0")
	}
	if err := models.ValidateStruct(input); err != nil {
		return err
	}
	applied := decimal.Zero
	for _, line := range input.AppliedLines {
		applied = applied.Add(line.Amount)
	}
	if applied.GreaterThan(input.Amount) {
		return utils.NewValidationError("applied_lines", utils.ErrCreditExceeded, "applied total exceeds the credit amount")
	}
	return nil
}

func checkCreditLines(ctx context.Context, tx *repository.Repository, customerId string, lines []models.CreditApplication) error {
	for _, line := range lines {
		inv, err := tx.GetInvoice(ctx, line.InvoiceId)
		if err != nil {
			return err
		}
		if inv.Customer.ID != customerId {
			return utils.NewValidationError("customer_id", utils.ErrCustomerMismatch, "does not match invoice "+inv.Number)
		}
		// Version bump: a concurrent customer change or delete must re-check.
		if err := tx.SaveInvoice(ctx, inv); err != nil {
			return err
		}
	}
	return nil
}

func (l *CreditLedger) filter(ctx context.Context, keep func(cn *models.CreditNote) bool) ([]*models.CreditNote, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	all, err := l.Repo.ListCreditNotes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.CreditNote, 0, len(all))
	for _, cn := range all {
		if keep(cn) {
			out = append(out, cn)
		}
	}
	return out, nil
}

// ByInvoice returns credit notes with at least one line applied to the invoice.
func (l *CreditLedger) ByInvoice(ctx context.Context, invoiceId string) ([]*models.CreditNote, error) {
	return l.filter(ctx, func(cn *models.CreditNote) bool {
		for _, line := range cn.AppliedLines {
			if line.InvoiceId == invoiceId {
				return true
			}
		}
		return false
	})
}

func (l *CreditLedger) ByCustomer(ctx context.Context, customerId string) ([]*models.CreditNote, error) {
	return l.filter(ctx, func(cn *models.CreditNote) bool {
		return cn.CustomerId == customerId
	})
}

func (l *CreditLedger) List(ctx context.Context) ([]*models.CreditNote, error) {
	return l.filter(ctx, func(*models.CreditNote) bool { return true })
}

func (l *CreditLedger) SumAppliedToInvoice(ctx context.Context, invoiceId string) (decimal.Decimal, error) {
	credits, err := l.ByInvoice(ctx, invoiceId)
	if err != nil {
		return decimal.Zero, err
	}
	return models.SumCreditsAppliedTo(invoiceId, credits), nil
}

func (l *CreditLedger) Remaining(ctx context.Context, id string) (decimal.Decimal, error) {
	cn, err := l.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return cn.Remaining(), nil
}
