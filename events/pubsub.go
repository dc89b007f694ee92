package events

import (
	"context"
	"encoding/json"
	"errors"

	"cloud.google.com/go/pubsub"
)

// PubSubPublisher publishes DocumentChanged messages to a Google Pub/Sub topic.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

func NewPubSubPublisher(topic *pubsub.Topic) *PubSubPublisher {
	return &PubSubPublisher{topic: topic}
}

func (p *PubSubPublisher) Publish(ctx context.Context, evt DocumentChanged) error {
	if p.topic == nil {
		return errors.New("pubsub topic is nil")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":   evt.Kind,
			"action": string(evt.Action),
		},
	})
	_, err = result.Get(ctx)
	return err
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}
