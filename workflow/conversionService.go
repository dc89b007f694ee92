package workflow

import (
	"context"

	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ConversionService turns a quotation into a new draft invoice and moves the
// quotation's deposits onto it.
type ConversionService struct {
	*Core
}

func NewConversionService(core *Core) *ConversionService {
	return &ConversionService{Core: core}
}

// ConvertQuotation creates the invoice, accepts the quotation and re-targets
// its deposits in one transaction. Either all of it commits or none of it.
// Converting the same quotation again creates another independent invoice and
// the deposits follow the newest one.
func (s *ConversionService) ConvertQuotation(ctx context.Context, quoteId string) (*models.Invoice, error) {
	ctx, span := tracer.Start(ctx, "ConvertQuotation")
	defer span.End()
	span.SetAttributes(attribute.String("quote_id", quoteId))

	var result *models.Invoice
	var moved int
	err := s.transact(ctx, func(tx *repository.Repository) error {
		moved = 0
		q, err := tx.GetQuotation(ctx, quoteId)
		if err != nil {
			return err
		}
		if q.Status == models.QuotationStatusDeclined {
			return immutable("status", "declined quotations cannot be converted")
		}

		number, err := s.nextNumber(ctx, tx, SeriesInvoice, InvoicePrefix)
		if err != nil {
			return err
		}
		now := s.now()
		inv := q.ToInvoice(newId(), number, now)
		if err := tx.SaveInvoice(ctx, inv); err != nil {
			return err
		}

		q.Status = models.QuotationStatusAccepted
		q.UpdatedAt = now
		if err := tx.SaveQuotation(ctx, q); err != nil {
			return err
		}

		payments, err := tx.ListPayments(ctx)
		if err != nil {
			return err
		}
		for _, p := range payments {
			if p.QuoteId == nil || *p.QuoteId != quoteId {
				continue
			}
			p.Retarget(inv.ID, now)
			if err := tx.SavePayment(ctx, p); err != nil {
				return err
			}
			moved++
		}
		result = inv
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logFailure("ConvertQuotation", "Tx", quoteId, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("invoice_id", result.ID),
		attribute.Int("payments_moved", moved),
	)
	return result, nil
}
