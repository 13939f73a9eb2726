package outbox

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	msgs []kafka.Message
	err  error
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func TestDispatch(t *testing.T) {
	p := &fakeProducer{}
	d := NewDispatcher(slog.New(slog.DiscardHandler), p, "order.events")

	ev := Event{
		ID:          1,
		AggregateID: "42",
		Type:        "OrderApproved",
		Payload:     []byte(`{"OrderID":42}`),
		Traceparent: "00-abc-def-01",
	}
	require.NoError(t, d.Dispatch(context.Background(), ev))

	require.Len(t, p.msgs, 1)
	msg := p.msgs[0]
	assert.Equal(t, "order.events", msg.Topic)
	assert.Equal(t, []byte("42"), msg.Key)
	assert.Equal(t, ev.Payload, msg.Value)
	assert.Equal(t, []kafka.Header{
		{Key: "event_type", Value: []byte("OrderApproved")},
		{Key: "traceparent", Value: []byte("00-abc-def-01")},
	}, msg.Headers)
}

func TestDispatchOmitsEmptyTraceparent(t *testing.T) {
	p := &fakeProducer{}
	d := NewDispatcher(slog.New(slog.DiscardHandler), p, "order.events")

	require.NoError(t, d.Dispatch(context.Background(), Event{ID: 1, AggregateID: "1", Type: "OrderCreated"}))
	require.Len(t, p.msgs, 1)
	assert.Equal(t, []kafka.Header{{Key: "event_type", Value: []byte("OrderCreated")}}, p.msgs[0].Headers)
}

func TestDispatchPropagatesError(t *testing.T) {
	boom := errors.New("broker down")
	d := NewDispatcher(slog.New(slog.DiscardHandler), &fakeProducer{err: boom}, "order.events")

	assert.ErrorIs(t, d.Dispatch(context.Background(), Event{ID: 1}), boom)
}
