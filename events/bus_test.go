package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/billing_backend/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToMatchingSubscribers(t *testing.T) {
	bus := events.NewBus()
	all, cancelAll := bus.Subscribe(4)
	defer cancelAll()
	templates, cancelTemplates := bus.Subscribe(4, "recurringTemplate")
	defer cancelTemplates()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, events.DocumentChanged{Kind: "invoice", ID: "inv-1", Action: events.ActionCreated}))
	require.NoError(t, bus.Publish(ctx, events.DocumentChanged{Kind: "recurringTemplate", ID: "tpl-1", Action: events.ActionUpdated}))

	assert.Equal(t, "inv-1", (<-all).ID)
	assert.Equal(t, "tpl-1", (<-all).ID)

	select {
	case evt := <-templates:
		assert.Equal(t, "tpl-1", evt.ID)
	case <-time.After(time.Second):
		t.Fatal("template subscriber got nothing")
	}
	select {
	case evt := <-templates:
		t.Fatalf("unexpected event %+v", evt)
	default:
	}
}

func TestBusNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := events.NewBus()
	_, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = bus.Publish(context.Background(), events.DocumentChanged{Kind: "invoice"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
	assert.Equal(t, int64(9), bus.Dropped())
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.NoError(t, bus.Publish(context.Background(), events.DocumentChanged{Kind: "invoice"}))
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, events.DocumentChanged) error {
	f.calls++
	return errors.New("boom")
}

func TestMultiPublisherRunsEveryPublisher(t *testing.T) {
	bad := &failingPublisher{}
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	multi := events.NewMultiPublisher(nil, bad, bus)
	err := multi.Publish(context.Background(), events.DocumentChanged{Kind: "payment", ID: "p-1"})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, "p-1", (<-ch).ID)
}
