package repository

import (
	"context"

	"github.com/mmdatafocus/billing_backend/models"
)

func (r *Repository) GetQuotation(ctx context.Context, id string) (*models.Quotation, error) {
	return getDoc[models.Quotation](ctx, r.store, KindQuote, id)
}

func (r *Repository) ListQuotations(ctx context.Context) ([]*models.Quotation, error) {
	return listDocs[models.Quotation](ctx, r.store, KindQuote)
}

func (r *Repository) SaveQuotation(ctx context.Context, q *models.Quotation) error {
	return r.save(ctx, KindQuote, q)
}

func (r *Repository) DeleteQuotation(ctx context.Context, id string) error {
	return r.delete(ctx, KindQuote, id)
}

func (r *Repository) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	return getDoc[models.Invoice](ctx, r.store, KindInvoice, id)
}

func (r *Repository) ListInvoices(ctx context.Context) ([]*models.Invoice, error) {
	return listDocs[models.Invoice](ctx, r.store, KindInvoice)
}

func (r *Repository) SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	return r.save(ctx, KindInvoice, inv)
}

func (r *Repository) DeleteInvoice(ctx context.Context, id string) error {
	return r.delete(ctx, KindInvoice, id)
}

func (r *Repository) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	return getDoc[models.Payment](ctx, r.store, KindPayment, id)
}

func (r *Repository) ListPayments(ctx context.Context) ([]*models.Payment, error) {
	return listDocs[models.Payment](ctx, r.store, KindPayment)
}

func (r *Repository) SavePayment(ctx context.Context, p *models.Payment) error {
	return r.save(ctx, KindPayment, p)
}

func (r *Repository) DeletePayment(ctx context.Context, id string) error {
	return r.delete(ctx, KindPayment, id)
}

func (r *Repository) GetCreditNote(ctx context.Context, id string) (*models.CreditNote, error) {
	return getDoc[models.CreditNote](ctx, r.store, KindCreditNote, id)
}

func (r *Repository) ListCreditNotes(ctx context.Context) ([]*models.CreditNote, error) {
	return listDocs[models.CreditNote](ctx, r.store, KindCreditNote)
}

func (r *Repository) SaveCreditNote(ctx context.Context, cn *models.CreditNote) error {
	return r.save(ctx, KindCreditNote, cn)
}

func (r *Repository) DeleteCreditNote(ctx context.Context, id string) error {
	return r.delete(ctx, KindCreditNote, id)
}

func (r *Repository) GetRecurringTemplate(ctx context.Context, id string) (*models.RecurringTemplate, error) {
	return getDoc[models.RecurringTemplate](ctx, r.store, KindRecurringTemplate, id)
}

func (r *Repository) ListRecurringTemplates(ctx context.Context) ([]*models.RecurringTemplate, error) {
	return listDocs[models.RecurringTemplate](ctx, r.store, KindRecurringTemplate)
}

func (r *Repository) SaveRecurringTemplate(ctx context.Context, t *models.RecurringTemplate) error {
	return r.save(ctx, KindRecurringTemplate, t)
}

func (r *Repository) DeleteRecurringTemplate(ctx context.Context, id string) error {
	return r.delete(ctx, KindRecurringTemplate, id)
}
