package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace-checkout/internal/orders"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	key     []byte
	value   []byte
	headers []kafka.Header
}

func (c *capturePublisher) Publish(key, value []byte, headers ...kafka.Header) error {
	c.key, c.value, c.headers = key, value, headers
	return nil
}

func TestOrderEvents_Emit(t *testing.T) {
	pub := &capturePublisher{}
	payload, _ := json.Marshal(orders.OrderStatusChangedPayload{OrderID: "o-1", From: orders.StatusPending, To: orders.StatusPaid})
	env := orders.Envelope{
		EventID:       "e-1",
		EventType:     orders.EventOrderStatusChanged,
		EventVersion:  1,
		OccurredAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Producer:      "test",
		CorrelationID: "o-1",
		Payload:       payload,
	}

	require.NoError(t, OrderEvents{P: pub}.Emit(context.Background(), env))

	assert.Equal(t, []byte("o-1"), pub.key)
	require.Len(t, pub.headers, 2)
	assert.Equal(t, "x-event-type", pub.headers[0].Key)
	assert.Equal(t, orders.EventOrderStatusChanged, string(pub.headers[0].Value))
	assert.Equal(t, "1", string(pub.headers[1].Value))

	got, err := UnmarshalEnvelope(pub.value)
	require.NoError(t, err)
	assert.Equal(t, "e-1", got.EventID)

	p, err := UnwrapPayload[orders.OrderStatusChangedPayload](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, p.To)
}

func TestUnmarshalEnvelope_Invalid(t *testing.T) {
	_, err := UnmarshalEnvelope([]byte("{"))
	assert.Error(t, err)
}

func TestProducer_PublishFailsWhenBufferFull(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "t", 1, nil)

	require.NoError(t, p.Publish([]byte("k"), []byte("v")))
	assert.ErrorIs(t, p.Publish([]byte("k"), []byte("v")), ErrProducerFull)
}

func TestProducer_PublishAfterCloseFails(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "t", 4, nil)
	p.Close()
	p.Close()

	assert.ErrorIs(t, p.Publish([]byte("k"), []byte("v")), ErrProducerClosed)
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.pending) > 0 {
		m := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error { return nil }

func (f *fakeReader) offsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, 0, len(f.committed))
	for _, m := range f.committed {
		out = append(out, m.Offset)
	}
	return out
}

func TestConsumer_RetriesFailedMessageBeforeCommittingLaterOffsets(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{
		{Partition: 0, Offset: 10},
		{Partition: 0, Offset: 11},
		{Partition: 0, Offset: 12},
	}}
	c := newConsumer(r, 4, nil)
	c.retryBase = time.Millisecond

	var (
		mu    sync.Mutex
		calls []int64
	)
	failed := false
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, m.Offset)
		if m.Offset == 10 && !failed {
			failed = true
			return errors.New("connection reset")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	require.Eventually(t, func() bool { return len(r.offsets()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{10, 11, 12}, r.offsets())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{10, 10, 11, 12}, calls)
}

func TestConsumer_StopsRetryingWhenContextEnds(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{{Partition: 1, Offset: 3}}}
	c := newConsumer(r, 1, nil)
	c.retryBase = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	attempts := make(chan struct{}, 100)
	h := func(context.Context, kafka.Message) error {
		select {
		case attempts <- struct{}{}:
		default:
		}
		return errors.New("db down")
	}
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	<-attempts
	<-attempts
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, r.offsets())
}
