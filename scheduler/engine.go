package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/billing_backend/config"
	"github.com/mmdatafocus/billing_backend/events"
	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/notify"
	"github.com/mmdatafocus/billing_backend/repository"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("billing-backend")

const (
	generatedNumberWidth = 4

	// events carrying this prefix come from the engine itself
	correlationPrefix = "scheduler-"
)

var errCompletedElsewhere = errors.New("occurrence completed by another run")

type Options struct {
	TickInterval    time.Duration
	WindowTolerance time.Duration
	CatchUpMissed   bool
	AutoSend        bool
	DispatchTimeout time.Duration
	PersistTimeout  time.Duration
	PhoneRegion     string

	// Locker is consulted after the in-process lock; nil means single process.
	Locker Locker
	// Bus, when set, triggers an evaluation on recurring template changes.
	Bus *events.Bus
}

// RunReport summarizes one Tick.
type RunReport struct {
	Evaluated int      `json:"evaluated"`
	Fired     int      `json:"fired"`
	Skipped   int      `json:"skipped"`
	Conflicts int      `json:"conflicts"`
	Failed    int      `json:"failed"`
	Invoices  []string `json:"invoices,omitempty"`
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeFired
	outcomeConflict
	outcomeFailed
)

// Engine generates invoices from recurring templates.
type Engine struct {
	repo       *repository.Repository
	dispatcher notify.Dispatcher
	clock      utils.Clock
	logger     *logrus.Logger
	opts       Options

	local   *localLocks
	trigger chan struct{}
	sends   sync.WaitGroup
}

func NewEngine(repo *repository.Repository, dispatcher notify.Dispatcher, clock utils.Clock, logger *logrus.Logger, opts Options) *Engine {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Minute
	}
	if opts.WindowTolerance < 0 {
		opts.WindowTolerance = 0
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 30 * time.Second
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}
	if opts.PhoneRegion == "" {
		opts.PhoneRegion = utils.CountryCode
	}
	return &Engine{
		repo:       repo,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger,
		opts:       opts,
		local:      newLocalLocks(),
		trigger:    make(chan struct{}, 1),
	}
}

// Trigger requests an evaluation from the Run loop. It never blocks.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Wait blocks until in-flight auto-sends have finished.
func (e *Engine) Wait() {
	e.sends.Wait()
}

// Run evaluates templates every TickInterval, on Trigger and on template
// change events, until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	var changes <-chan events.DocumentChanged
	if e.opts.Bus != nil {
		ch, cancel := e.opts.Bus.Subscribe(16, string(repository.KindRecurringTemplate))
		defer cancel()
		changes = ch
	}

	e.runTick(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.opts.TickInterval):
			e.runTick(ctx, "interval")
		case <-e.trigger:
			e.runTick(ctx, "trigger")
		case evt, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if strings.HasPrefix(evt.CorrelationId, correlationPrefix) {
				continue
			}
			e.runTick(ctx, "data-changed")
		}
	}
}

func (e *Engine) runTick(ctx context.Context, source string) {
	ctx = utils.SetTriggerSourceInContext(ctx, source)
	report, err := e.Tick(ctx)
	if err != nil {
		if ctx.Err() == nil {
			config.LogError(e.logger, "scheduler", "Run", source, nil, err)
		}
		return
	}
	if e.logger != nil && (report.Fired > 0 || report.Failed > 0 || report.Conflicts > 0) {
		e.logger.WithFields(logrus.Fields{
			"field":     "Scheduler",
			"source":    source,
			"evaluated": report.Evaluated,
			"fired":     report.Fired,
			"skipped":   report.Skipped,
			"conflicts": report.Conflicts,
			"failed":    report.Failed,
		}).Info("recurring run finished")
	}
}

// Tick evaluates every template once. A failing template is counted and
// logged; the others still run. The error is only for listing failures.
func (e *Engine) Tick(ctx context.Context) (RunReport, error) {
	ctx = schedulerContext(ctx)
	ctx, span := tracer.Start(ctx, "scheduler.Tick")
	defer span.End()

	var report RunReport
	listCtx, cancel := context.WithTimeout(ctx, e.opts.PersistTimeout)
	templates, err := e.repo.ListRecurringTemplates(listCtx)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	now := e.clock.Now().UTC()
	for _, tpl := range templates {
		if ctx.Err() != nil {
			break
		}
		report.Evaluated++
		result, invoiceId := e.evaluateTemplate(ctx, tpl.ID, now)
		switch result {
		case outcomeFired:
			report.Fired++
			report.Invoices = append(report.Invoices, invoiceId)
		case outcomeConflict:
			report.Conflicts++
		case outcomeFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}
	span.SetAttributes(
		attribute.Int("evaluated", report.Evaluated),
		attribute.Int("fired", report.Fired),
		attribute.Int("failed", report.Failed),
	)
	return report, nil
}

func schedulerContext(ctx context.Context) context.Context {
	cid, ok := utils.GetCorrelationIdFromContext(ctx)
	if ok && strings.HasPrefix(cid, correlationPrefix) {
		return ctx
	}
	if !ok || cid == "" {
		cid = uuid.NewString()
	}
	return utils.SetCorrelationIdInContext(ctx, correlationPrefix+cid)
}

func (e *Engine) templateLogger(ctx context.Context, templateId string) *logrus.Entry {
	if e.logger == nil {
		return nil
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	return e.logger.WithFields(logrus.Fields{
		"field":          "Scheduler",
		"template_id":    templateId,
		"correlation_id": cid,
	})
}

func (e *Engine) evaluateTemplate(ctx context.Context, templateId string, now time.Time) (outcome, string) {
	ctx, span := tracer.Start(ctx, "scheduler.evaluate", trace.WithAttributes(attribute.String("template_id", templateId)))
	defer span.End()

	release, ok, err := e.lock(ctx, templateId)
	if err != nil {
		config.LogError(e.logger, "scheduler", "evaluateTemplate", "lock", templateId, err)
		span.RecordError(err)
		return outcomeFailed, ""
	}
	if !ok {
		span.SetAttributes(attribute.Bool("locked_elsewhere", true))
		return outcomeSkipped, ""
	}
	defer release()

	result, invoiceId, err := e.fire(ctx, templateId, now)
	switch {
	case err == nil:
	case utils.IsConflict(err), errors.Is(err, errCompletedElsewhere):
		return outcomeConflict, ""
	default:
		config.LogError(e.logger, "scheduler", "evaluateTemplate", "fire", templateId, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcomeFailed, ""
	}
	if invoiceId != "" {
		span.SetAttributes(attribute.String("invoice_id", invoiceId))
	}
	return result, invoiceId
}

func (e *Engine) lock(ctx context.Context, templateId string) (func(), bool, error) {
	releaseLocal, ok, err := e.local.TryLock(ctx, templateId)
	if err != nil || !ok {
		return nil, ok, err
	}
	if e.opts.Locker == nil {
		return releaseLocal, true, nil
	}
	releaseRemote, ok, err := e.opts.Locker.TryLock(ctx, templateId)
	if err != nil || !ok {
		releaseLocal()
		return nil, ok, err
	}
	return func() {
		releaseRemote()
		releaseLocal()
	}, true, nil
}

func (e *Engine) tx(ctx context.Context, fn func(tx *repository.Repository) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.PersistTimeout)
	defer cancel()
	return e.repo.Tx(ctx, fn)
}

// fire claims the due occurrence, then generates its invoice and advances the
// template. The claim commits on its own: when the second step does not
// complete, the template is left Fired and a later run finishes it.
func (e *Engine) fire(ctx context.Context, templateId string, now time.Time) (outcome, string, error) {
	var occurrence *time.Time
	err := e.tx(ctx, func(tx *repository.Repository) error {
		tpl, err := tx.GetRecurringTemplate(ctx, templateId)
		if err != nil {
			return err
		}
		switch Evaluate(tpl, now, e.opts.WindowTolerance) {
		case StateFired:
			occ := *tpl.LastFiredRunAt
			occurrence = &occ
			if log := e.templateLogger(ctx, templateId); log != nil {
				log.WithField("occurrence", occ).Warn("completing previously claimed occurrence")
			}
			return nil
		case StateMissed:
			if !e.opts.CatchUpMissed {
				return e.skipMissed(ctx, tx, tpl, now)
			}
			if log := e.templateLogger(ctx, templateId); log != nil {
				log.WithField("occurrence", *tpl.NextRunAt).Warn("missed occurrence, firing late")
			}
		case StateDue:
		default:
			return nil
		}
		occ := *tpl.NextRunAt
		tpl.LastFiredRunAt = &occ
		tpl.UpdatedAt = now
		if err := tx.SaveRecurringTemplate(ctx, tpl); err != nil {
			return err
		}
		occurrence = &occ
		return nil
	})
	if err != nil || occurrence == nil {
		return outcomeSkipped, "", err
	}
	return e.complete(ctx, templateId, *occurrence, now)
}

func (e *Engine) skipMissed(ctx context.Context, tx *repository.Repository, tpl *models.RecurringTemplate, now time.Time) error {
	missed := *tpl.NextRunAt
	tpl.NextRunAt = advanceRunAt(tpl.IntervalRule, missed, now, e.opts.WindowTolerance, false)
	tpl.UpdatedAt = now
	if err := tx.SaveRecurringTemplate(ctx, tpl); err != nil {
		return err
	}
	if log := e.templateLogger(ctx, tpl.ID); log != nil {
		log.WithFields(logrus.Fields{
			"occurrence":  missed,
			"next_run_at": tpl.NextRunAt,
		}).Warn("occurrence missed, skipped without generating")
	}
	return nil
}

func (e *Engine) complete(ctx context.Context, templateId string, occurrence time.Time, now time.Time) (outcome, string, error) {
	invoiceId := OccurrenceInvoiceId(templateId, occurrence)
	var (
		generated *models.Invoice
		autoSend  bool
	)
	err := e.tx(ctx, func(tx *repository.Repository) error {
		generated = nil
		tpl, err := tx.GetRecurringTemplate(ctx, templateId)
		if err != nil {
			return err
		}
		if !tpl.HasFired() || !tpl.LastFiredRunAt.Equal(occurrence) {
			return errCompletedElsewhere
		}

		_, err = tx.GetInvoice(ctx, invoiceId)
		switch {
		case err == nil:
			// The invoice exists only if an earlier complete committed, and
			// that commit also advanced the template. Skipping NextNumber here
			// relies on the invoice write and the template advance sharing
			// this one transaction; split them and numbers would repeat.
		case utils.IsNotFound(err):
			number := utils.FormatDocumentNumber(tpl.SeqPrefix, tpl.NextNumber, generatedNumberWidth)
			inv := tpl.BuildInvoice(invoiceId, number, occurrence, now)
			for i := range inv.Items {
				if inv.Items[i].ID == "" {
					inv.Items[i].ID = uuid.NewString()
				}
			}
			if err := tx.SaveInvoice(ctx, inv); err != nil {
				return err
			}
			tpl.NextNumber++
			generated = inv
		default:
			return err
		}

		tpl.NextRunAt = advanceRunAt(tpl.IntervalRule, occurrence, now, e.opts.WindowTolerance, e.opts.CatchUpMissed)
		lastRun := now
		tpl.LastRunAt = &lastRun
		tpl.UpdatedAt = now
		autoSend = tpl.AutoSend
		return tx.SaveRecurringTemplate(ctx, tpl)
	})
	if err != nil {
		return outcomeFailed, "", err
	}

	if log := e.templateLogger(ctx, templateId); log != nil {
		log.WithFields(logrus.Fields{
			"occurrence": occurrence,
			"invoice_id": invoiceId,
			"created":    generated != nil,
		}).Info("recurring occurrence fired")
	}
	if generated != nil && autoSend && e.opts.AutoSend {
		e.send(ctx, generated)
	}
	return outcomeFired, invoiceId, nil
}

// send hands the invoice to the dispatcher in the background. Delivery
// failures are logged and never touch the generated invoice.
func (e *Engine) send(ctx context.Context, inv *models.Invoice) {
	if e.dispatcher == nil {
		return
	}
	channel, address, ok := notify.ResolveDeliveryAddress(inv.Customer, e.opts.PhoneRegion)
	if !ok {
		if log := e.templateLogger(ctx, utils.DereferencePtr(inv.RecurringTemplateId)); log != nil {
			log.WithField("invoice_id", inv.ID).Info("customer has no delivery address, auto-send skipped")
		}
		return
	}
	msg, err := notify.BuildInvoiceMessage(inv, channel, address)
	if err != nil {
		config.LogError(e.logger, "scheduler", "send", "render summary", inv.ID, err)
		return
	}

	e.sends.Add(1)
	go func() {
		defer e.sends.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.DispatchTimeout)
		defer cancel()
		if err := e.dispatcher.Send(sendCtx, msg); err != nil {
			var dispatchErr *utils.DispatchError
			if !errors.As(err, &dispatchErr) {
				err = &utils.DispatchError{To: msg.To, Err: err}
			}
			config.LogError(e.logger, "scheduler", "send", "dispatch", inv.ID, err)
		}
	}()
}
