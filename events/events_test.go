package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

type fakeSNS struct {
	topic string
	body  []byte
	err   error
}

func (f *fakeSNS) Publish(_ context.Context, topicArn string, message []byte) error {
	f.topic = topicArn
	f.body = message
	return f.err
}

func sampleEvent() OrderPlaced {
	return OrderPlaced{
		Type:        OrderPlacedType,
		OrderID:     "7b0c7a9e-1111-4a8f-9c55-000000000001",
		OrderNumber: "ORD-20260101-0001",
		UserID:      "u-1",
		TotalAmount: decimal.RequireFromString("19.98"),
		Items:       []OrderLine{{ProductID: 3, Quantity: 2, UnitPrice: decimal.RequireFromString("9.99")}},
		Timestamp:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisherKeysByOrderID(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "order.placed", logger: zap.NewNop()}

	require.NoError(t, p.PublishOrderPlaced(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, sampleEvent().OrderID, string(w.msgs[0].Key))

	var decoded OrderPlaced
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "ORD-20260101-0001", decoded.OrderNumber)
	assert.True(t, decoded.TotalAmount.Equal(decimal.RequireFromString("19.98")))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherWrapsError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &KafkaPublisher{writer: w, topic: "order.placed", logger: zap.NewNop()}
	assert.ErrorContains(t, p.PublishOrderPlaced(context.Background(), sampleEvent()), "broker down")
}

func TestMultiPublishesToAllAndJoinsErrors(t *testing.T) {
	sns := &fakeSNS{err: errors.New("throttled")}
	w := &fakeWriter{}
	m := Multi{
		&KafkaPublisher{writer: w, topic: "t", logger: zap.NewNop()},
		NewSNSPublisher(sns, "arn:orders", zap.NewNop()),
		Nop{},
	}

	err := m.PublishOrderPlaced(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "throttled")
	assert.Len(t, w.msgs, 1)
	assert.Equal(t, "arn:orders", sns.topic)
	assert.Contains(t, string(sns.body), `"type":"order.placed"`)
	assert.NoError(t, m.Close())
}
