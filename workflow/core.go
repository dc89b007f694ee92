package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/billing_backend/config"
	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/repository"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("billing-backend")

const (
	SeriesQuotation  = "quotation"
	SeriesInvoice    = "invoice"
	SeriesCreditNote = "creditNote"

	QuotationPrefix  = "QT-"
	InvoicePrefix    = "INV-"
	CreditNotePrefix = "CN-"

	documentNumberWidth = 6

	defaultPersistTimeout = 10 * time.Second
	defaultTxAttempts     = 3
)

// Core carries what every service needs. Services never reach for globals.
type Core struct {
	Repo           *repository.Repository
	Clock          utils.Clock
	Logger         *logrus.Logger
	PersistTimeout time.Duration
	TxAttempts     int
}

func NewCore(repo *repository.Repository, clock utils.Clock, logger *logrus.Logger, persistTimeout time.Duration) *Core {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}
	return &Core{
		Repo:           repo,
		Clock:          clock,
		Logger:         logger,
		PersistTimeout: persistTimeout,
		TxAttempts:     defaultTxAttempts,
	}
}

func (c *Core) now() time.Time {
	return c.Clock.Now().UTC()
}

func (c *Core) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.PersistTimeout)
}

// transact runs fn in one repository transaction bounded by PersistTimeout.
// fn must re-read what it modifies: it is re-run when the commit loses a
// compare-and-swap.
func (c *Core) transact(ctx context.Context, fn func(tx *repository.Repository) error) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	attempts := c.TxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = c.Repo.Tx(ctx, fn)
		if err == nil || !utils.IsConflict(err) {
			return err
		}
	}
	return err
}

// read runs a read-only call bounded by PersistTimeout.
func read[T any](c *Core, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return fn(ctx)
}

// logFailure logs errors that are not the caller's fault.
func (c *Core) logFailure(funcName string, step string, data any, err error) {
	if err == nil || utils.IsValidation(err) || utils.IsNotFound(err) {
		return
	}
	config.LogError(c.Logger, "workflow", funcName, step, data, err)
}

func (c *Core) nextNumber(ctx context.Context, tx *repository.Repository, series string, prefix string) (string, error) {
	n, err := tx.NextNumber(ctx, series)
	if err != nil {
		return "", err
	}
	return utils.FormatDocumentNumber(prefix, n, documentNumberWidth), nil
}

func newId() string {
	return uuid.NewString()
}

func prepareLineItems(items []models.LineItem) []models.LineItem {
	out := models.CopyLineItems(items)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = newId()
		}
	}
	return out
}

func immutable(field string, reason string) error {
	return utils.NewValidationError(field, utils.ErrImmutableDocument, reason)
}

func normalizeRef(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	v := *id
	return &v
}

// Services groups every workflow service over one Core.
type Services struct {
	Documents  *DocumentService
	Conversion *ConversionService
	Payments   *PaymentLedger
	Credits    *CreditLedger
	Balances   *BalanceService
	Recurring  *RecurringTemplateService
}

func NewServices(core *Core) *Services {
	payments := NewPaymentLedger(core)
	credits := NewCreditLedger(core)
	return &Services{
		Documents:  NewDocumentService(core),
		Conversion: NewConversionService(core),
		Payments:   payments,
		Credits:    credits,
		Balances:   NewBalanceService(core, payments, credits),
		Recurring:  NewRecurringTemplateService(core),
	}
}
