package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// DocumentChanged is emitted once per committed mutation of an aggregate.
type DocumentChanged struct {
	Kind          string    `json:"kind"`
	ID            string    `json:"id"`
	Action        Action    `json:"action"`
	CorrelationId string    `json:"correlation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, evt DocumentChanged) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, DocumentChanged) error { return nil }

// MultiPublisher fans out to every publisher. Failures are logged and the
// first one is returned after all publishers ran.
type MultiPublisher struct {
	Publishers []Publisher
	Logger     *logrus.Logger
}

func NewMultiPublisher(logger *logrus.Logger, publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{Publishers: publishers, Logger: logger}
}

func (m *MultiPublisher) Add(p Publisher) {
	if p != nil {
		m.Publishers = append(m.Publishers, p)
	}
}

func (m *MultiPublisher) Publish(ctx context.Context, evt DocumentChanged) error {
	var first error
	for _, p := range m.Publishers {
		if err := p.Publish(ctx, evt); err != nil {
			if m.Logger != nil {
				m.Logger.WithFields(logrus.Fields{
					"field": "MultiPublisher",
					"kind":  evt.Kind,
					"id":    evt.ID,
				}).Warn("publish document changed failed: " + err.Error())
			}
			if first == nil {
				first = err
			}
		}
	}
	return first
}
