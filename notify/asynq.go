package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	TypeInvoiceDelivery = "billing:invoice:deliver"
	deliveryQueue       = "notifications"
)

// TaskEnqueuer is the part of *asynq.Client the dispatcher uses.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqDispatcher hands messages to a durable queue; a delivery worker sends
// them with bounded retries.
type AsynqDispatcher struct {
	client   TaskEnqueuer
	maxRetry int
	timeout  time.Duration
	logger   *logrus.Logger
}

func NewAsynqDispatcher(client TaskEnqueuer, maxRetry int, timeout time.Duration, logger *logrus.Logger) *AsynqDispatcher {
	if maxRetry < 0 {
		maxRetry = 0
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AsynqDispatcher{client: client, maxRetry: maxRetry, timeout: timeout, logger: logger}
}

func NewDeliveryTask(msg Message) (*asynq.Task, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeInvoiceDelivery, payload), nil
}

func (d *AsynqDispatcher) Send(ctx context.Context, msg Message) error {
	task, err := NewDeliveryTask(msg)
	if err != nil {
		return &utils.DispatchError{To: msg.To, Err: err}
	}
	opts := []asynq.Option{
		asynq.Queue(deliveryQueue),
		asynq.MaxRetry(d.maxRetry),
		asynq.Timeout(d.timeout),
	}
	if msg.InvoiceId != "" {
		// one delivery task per invoice while it is pending
		opts = append(opts, asynq.TaskID("deliver:"+msg.InvoiceId))
	}
	info, err := d.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return &utils.DispatchError{To: msg.To, Err: fmt.Errorf("enqueue delivery: %w", err)}
	}
	if d.logger != nil {
		d.logger.WithFields(logrus.Fields{
			"field":      "AsynqDispatcher",
			"task_id":    info.ID,
			"queue":      info.Queue,
			"invoice_id": msg.InvoiceId,
		}).Info("delivery enqueued")
	}
	return nil
}

// DeliveryProcessor is the worker side: it decodes the task and sends it
// through a concrete dispatcher. Undecodable payloads are not retried.
type DeliveryProcessor struct {
	sender Dispatcher
	logger *logrus.Logger
}

func NewDeliveryProcessor(sender Dispatcher, logger *logrus.Logger) *DeliveryProcessor {
	return &DeliveryProcessor{sender: sender, logger: logger}
}

func (p *DeliveryProcessor) HandleInvoiceDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var msg Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("failed to unmarshal delivery payload: %v: %w", err, asynq.SkipRetry)
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("delivery payload has no recipients: %w", asynq.SkipRetry)
	}
	if err := p.sender.Send(ctx, msg); err != nil {
		if p.logger != nil {
			p.logger.WithFields(logrus.Fields{
				"field":      "DeliveryProcessor",
				"invoice_id": msg.InvoiceId,
				"to":         msg.To,
			}).Warn("delivery failed: " + err.Error())
		}
		return err
	}
	return nil
}

func (p *DeliveryProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeInvoiceDelivery, p.HandleInvoiceDeliveryTask)
}

// NewDeliveryServer builds the asynq server the delivery worker runs.
func NewDeliveryServer(redisOpt asynq.RedisClientOpt, concurrency int, logger *logrus.Logger) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 5
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			deliveryQueue: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"field":     "DeliveryServer",
					"task_type": task.Type(),
				}).Error(err.Error())
			}
		}),
	})
}
