package notify

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/sirupsen/logrus"
)

// CompositeSender sends through every dispatcher and joins the failures.
type CompositeSender struct {
	dispatchers []Dispatcher
}

func NewCompositeSender(dispatchers ...Dispatcher) *CompositeSender {
	return &CompositeSender{dispatchers: dispatchers}
}

func (c *CompositeSender) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, d := range c.dispatchers {
		if err := d.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &utils.DispatchError{To: msg.To, Err: errors.Join(errs...)}
}

// RetryDispatcher retries a failing dispatcher a bounded number of times
// with doubling delays.
type RetryDispatcher struct {
	Next         Dispatcher
	MaxAttempts  int
	InitialDelay time.Duration
	Logger       *logrus.Logger
}

func NewRetryDispatcher(next Dispatcher, maxAttempts int, logger *logrus.Logger) *RetryDispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryDispatcher{
		Next:         next,
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Second,
		Logger:       logger,
	}
}

func (r *RetryDispatcher) Send(ctx context.Context, msg Message) error {
	delay := r.InitialDelay
	var err error
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		err = r.Next.Send(ctx, msg)
		if err == nil {
			return nil
		}
		if attempt == r.MaxAttempts {
			break
		}
		if r.Logger != nil {
			r.Logger.WithFields(logrus.Fields{
				"field":      "RetryDispatcher",
				"attempt":    attempt,
				"invoice_id": msg.InvoiceId,
			}).Warn("dispatch failed, retrying: " + err.Error())
		}
		select {
		case <-ctx.Done():
			return &utils.DispatchError{To: msg.To, Err: errors.Join(err, ctx.Err())}
		case <-time.After(delay):
		}
		delay *= 2
	}
	var dispatchErr *utils.DispatchError
	if errors.As(err, &dispatchErr) {
		return err
	}
	return &utils.DispatchError{To: msg.To, Err: err}
}
