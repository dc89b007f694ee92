package workflow

import (
	"context"

	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/repository"
	"github.com/mmdatafocus/billing_backend/utils"
)

// DocumentService owns the quotation and invoice lifecycles outside of
// conversion.
type DocumentService struct {
	*Core
}

func NewDocumentService(core *Core) *DocumentService {
	return &DocumentService{Core: core}
}

func (s *DocumentService) CreateQuotation(ctx context.Context, input *models.NewQuotation) (*models.Quotation, error) {
	if err := models.ValidateStruct(input); err != nil {
		return nil, err
	}
	var result *models.Quotation
	err := s.transact(ctx, func(tx *repository.Repository) error {
		number, err := s.nextNumber(ctx, tx, SeriesQuotation, QuotationPrefix)
		if err != nil {
			return err
		}
		now := s.now()
		q := &models.Quotation{
			ID:              newId(),
			Number:          number,
			Customer:        input.Customer,
			Items:           prepareLineItems(input.Items),
			Status:          models.QuotationStatusDraft,
			CreatedAt:       now,
			DiscountPercent: input.DiscountPercent,
			ShippingAmount:  input.ShippingAmount,
			ExpiryDate:      input.ExpiryDate,
			Notes:           input.Notes,
			UpdatedAt:       now,
		}
		if err := tx.SaveQuotation(ctx, q); err != nil {
			return err
		}
		result = q
		return nil
	})
	if err != nil {
		s.logFailure("CreateQuotation", "Tx", input, err)
		return nil, err
	}
	return result, nil
}

func (s *DocumentService) UpdateQuotation(ctx context.Context, id string, input *models.NewQuotation) (*models.Quotation, error) {
	if err := models.ValidateStruct(input); err != nil {
		return nil, err
	}
	return s.mutateQuotation(ctx, "UpdateQuotation", id, func(tx *repository.Repository, q *models.Quotation) error {
		if !q.IsEditable() {
			return immutable("status", "quotation is "+string(q.Status))
		}
		if input.Customer.ID != q.Customer.ID {
			held, err := quotationHasDeposits(ctx, tx, id)
			if err != nil {
				return err
			}
			if held {
				return utils.NewValidationError("customer.id", utils.ErrCustomerMismatch, "cannot change the customer of a quotation holding deposits")
			}
		}
		q.Customer = input.Customer
		q.Items = prepareLineItems(input.Items)
		q.DiscountPercent = input.DiscountPercent
		q.ShippingAmount = input.ShippingAmount
		q.ExpiryDate = input.ExpiryDate
		q.Notes = input.Notes
		return nil
	})
}

func (s *DocumentService) MarkQuotationSent(ctx context.Context, id string) (*models.Quotation, error) {
	return s.mutateQuotation(ctx, "MarkQuotationSent", id, func(_ *repository.Repository, q *models.Quotation) error {
		if !q.IsEditable() {
			return immutable("status", "quotation is "+string(q.Status))
		}
		if q.Status == models.QuotationStatusDraft {
			now := s.now()
			q.Status = models.QuotationStatusSent
			q.SentAt = &now
		}
		return nil
	})
}

// DeclineQuotation is terminal.
func (s *DocumentService) DeclineQuotation(ctx context.Context, id string) (*models.Quotation, error) {
	return s.mutateQuotation(ctx, "DeclineQuotation", id, func(_ *repository.Repository, q *models.Quotation) error {
		if !q.IsEditable() {
			return immutable("status", "quotation is "+string(q.Status))
		}
		q.Status = models.QuotationStatusDeclined
		return nil
	})
}

func (s *DocumentService) mutateQuotation(ctx context.Context, funcName string, id string, apply func(tx *repository.Repository, q *models.Quotation) error) (*models.Quotation, error) {
	var result *models.Quotation
	err := s.transact(ctx, func(tx *repository.Repository) error {
		q, err := tx.GetQuotation(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(tx, q); err != nil {
			return err
		}
		q.UpdatedAt = s.now()
		if err := tx.SaveQuotation(ctx, q); err != nil {
			return err
		}
		result = q
		return nil
	})
	if err != nil {
		s.logFailure(funcName, "Tx", id, err)
		return nil, err
	}
	return result, nil
}

func (s *DocumentService) GetQuotation(ctx context.Context, id string) (*models.Quotation, error) {
	return read(s.Core, ctx, func(ctx context.Context) (*models.Quotation, error) {
		return s.Repo.GetQuotation(ctx, id)
	})
}

func (s *DocumentService) ListQuotations(ctx context.Context) ([]*models.Quotation, error) {
	return read(s.Core, ctx, s.Repo.ListQuotations)
}

// DeleteQuotation refuses accepted quotations and quotations holding deposits.
func (s *DocumentService) DeleteQuotation(ctx context.Context, id string) error {
	err := s.transact(ctx, func(tx *repository.Repository) error {
		q, err := tx.GetQuotation(ctx, id)
		if err != nil {
			return err
		}
		if q.Status == models.QuotationStatusAccepted {
			return immutable("status", "quotation is accepted")
		}
		held, err := quotationHasDeposits(ctx, tx, id)
		if err != nil {
			return err
		}
		if held {
			return immutable("payments", "quotation has deposits recorded")
		}
		return tx.DeleteQuotation(ctx, id)
	})
	s.logFailure("DeleteQuotation", "Tx", id, err)
	return err
}

func (s *DocumentService) CreateInvoice(ctx context.Context, input *models.NewInvoice) (*models.Invoice, error) {
	if err := models.ValidateStruct(input); err != nil {
		return nil, err
	}
	var result *models.Invoice
	err := s.transact(ctx, func(tx *repository.Repository) error {
		number, err := s.nextNumber(ctx, tx, SeriesInvoice, InvoicePrefix)
		if err != nil {
			return err
		}
		now := s.now()
		inv := &models.Invoice{
			ID:        newId(),
			Number:    number,
			Customer:  input.Customer,
			Items:     prepareLineItems(input.Items),
			Status:    models.InvoiceStatusDraft,
			CreatedAt: now,
			DueDate:   input.DueDate,
			Notes:     input.Notes,
			UpdatedAt: now,
		}
		if err := tx.SaveInvoice(ctx, inv); err != nil {
			return err
		}
		result = inv
		return nil
	})
	if err != nil {
		s.logFailure("CreateInvoice", "Tx", input, err)
		return nil, err
	}
	return result, nil
}

// UpdateInvoice edits draft invoices only.
func (s *DocumentService) UpdateInvoice(ctx context.Context, id string, input *models.NewInvoice) (*models.Invoice, error) {
	if err := models.ValidateStruct(input); err != nil {
		return nil, err
	}
	return s.mutateInvoice(ctx, "UpdateInvoice", id, func(tx *repository.Repository, inv *models.Invoice) error {
		if inv.Status != models.InvoiceStatusDraft {
			return immutable("status", "invoice is "+string(inv.Status))
		}
		if input.Customer.ID != inv.Customer.ID {
			applied, err := invoiceApplications(ctx, tx, id)
			if err != nil {
				return err
			}
			if applied != "" {
				return utils.NewValidationError("customer.id", utils.ErrCustomerMismatch, "cannot change the customer of an invoice with "+applied+" applied")
			}
		}
		inv.Customer = input.Customer
		inv.Items = prepareLineItems(input.Items)
		inv.DueDate = input.DueDate
		inv.Notes = input.Notes
		return nil
	})
}

func (s *DocumentService) MarkInvoiceSent(ctx context.Context, id string) (*models.Invoice, error) {
	return s.mutateInvoice(ctx, "MarkInvoiceSent", id, func(_ *repository.Repository, inv *models.Invoice) error {
		if inv.Status == models.InvoiceStatusDraft {
			now := s.now()
			inv.Status = models.InvoiceStatusSent
			inv.SentAt = &now
		}
		return nil
	})
}

func (s *DocumentService) mutateInvoice(ctx context.Context, funcName string, id string, apply func(tx *repository.Repository, inv *models.Invoice) error) (*models.Invoice, error) {
	var result *models.Invoice
	err := s.transact(ctx, func(tx *repository.Repository) error {
		inv, err := tx.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(tx, inv); err != nil {
			return err
		}
		inv.UpdatedAt = s.now()
		if err := tx.SaveInvoice(ctx, inv); err != nil {
			return err
		}
		result = inv
		return nil
	})
	if err != nil {
		s.logFailure(funcName, "Tx", id, err)
		return nil, err
	}
	return result, nil
}

func (s *DocumentService) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	return read(s.Core, ctx, func(ctx context.Context) (*models.Invoice, error) {
		return s.Repo.GetInvoice(ctx, id)
	})
}

func (s *DocumentService) ListInvoices(ctx context.Context) ([]*models.Invoice, error) {
	return read(s.Core, ctx, s.Repo.ListInvoices)
}

// DeleteInvoice removes a draft invoice nothing was applied to.
func (s *DocumentService) DeleteInvoice(ctx context.Context, id string) error {
	err := s.transact(ctx, func(tx *repository.Repository) error {
		inv, err := tx.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != models.InvoiceStatusDraft {
			return immutable("status", "invoice is "+string(inv.Status))
		}
		applied, err := invoiceApplications(ctx, tx, id)
		if err != nil {
			return err
		}
		if applied != "" {
			return immutable(applied, "invoice has "+applied+" applied")
		}
		return tx.DeleteInvoice(ctx, id)
	})
	s.logFailure("DeleteInvoice", "Tx", id, err)
	return err
}

func quotationHasDeposits(ctx context.Context, tx *repository.Repository, quoteId string) (bool, error) {
	payments, err := tx.ListPayments(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range payments {
		if p.QuoteId != nil && *p.QuoteId == quoteId {
			return true, nil
		}
	}
	return false, nil
}

// invoiceApplications names what is applied to the invoice ("payments" or
// "credit_notes"), or returns "" when nothing is.
func invoiceApplications(ctx context.Context, tx *repository.Repository, invoiceId string) (string, error) {
	payments, err := tx.ListPayments(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range payments {
		if p.InvoiceId != nil && *p.InvoiceId == invoiceId {
			return "payments", nil
		}
	}
	credits, err := tx.ListCreditNotes(ctx)
	if err != nil {
		return "", err
	}
	for _, cn := range credits {
		if cn.AppliedTo(invoiceId).IsPositive() {
			return "credit_notes", nil
		}
	}
	return "", nil
}
