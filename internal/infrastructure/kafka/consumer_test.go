package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
	pkgerrors "github.com/MarufurRahmanRahat/ticket-bari-server/pkg/errors"
	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	events []models.PaymentEvent
	err    error
	// errs is consumed one per call before err applies.
	errs []error
}

func (h *recordingHandler) HandlePaymentEvent(_ context.Context, event models.PaymentEvent) error {
	h.events = append(h.events, event)
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		return err
	}
	return h.err
}

// memReader serves queued messages and records commits; it blocks on an
// empty queue until ctx ends.
type memReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	commitErr error
}

func (r *memReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *memReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commitErr != nil {
		return r.commitErr
	}
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *memReader) Close() error { return nil }

func (r *memReader) commits() []kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kafka.Message(nil), r.committed...)
}

func newTestConsumer(reader *memReader, h PaymentEventHandler) *Consumer {
	return &Consumer{
		reader:     reader,
		topic:      TopicPaymentEvents,
		handler:    h,
		newBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
}

func paymentMessage(offset int64) kafka.Message {
	return kafka.Message{
		Topic:  TopicPaymentEvents,
		Offset: offset,
		Value:  []byte(`{"event_id":"evt_1","booking_id":7,"buyer_id":20,"intent_id":"pi_1"}`),
	}
}

func TestConsumer_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("TransientErrorIsRetried", func(t *testing.T) {
		reader := &memReader{}
		h := &recordingHandler{errs: []error{pkgerrors.ErrPaymentGateway, errors.New("connection reset")}}
		c := newTestConsumer(reader, h)

		require.NoError(t, c.process(ctx, paymentMessage(4)))
		assert.Len(t, h.events, 3)
		require.Len(t, reader.commits(), 1)
		assert.Equal(t, int64(4), reader.commits()[0].Offset)
	})

	t.Run("PermanentErrorIsCommitted", func(t *testing.T) {
		reader := &memReader{}
		h := &recordingHandler{err: pkgerrors.ErrBookingNotFound}
		c := newTestConsumer(reader, h)

		require.NoError(t, c.process(ctx, paymentMessage(5)))
		assert.Len(t, h.events, 1)
		assert.Len(t, reader.commits(), 1)
	})

	t.Run("MalformedIsCommitted", func(t *testing.T) {
		reader := &memReader{}
		h := &recordingHandler{}
		c := newTestConsumer(reader, h)

		require.NoError(t, c.process(ctx, kafka.Message{Topic: TopicPaymentEvents, Offset: 6, Value: []byte(`{`)}))
		assert.Empty(t, h.events)
		assert.Len(t, reader.commits(), 1)
	})

	t.Run("CancelledBeforeSuccessIsNotCommitted", func(t *testing.T) {
		reader := &memReader{}
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		h := &recordingHandler{err: pkgerrors.ErrPaymentGateway}
		c := newTestConsumer(reader, h)

		assert.ErrorIs(t, c.process(cctx, paymentMessage(7)), context.Canceled)
		assert.Empty(t, reader.commits())
	})
}

func TestConsumer_Consume(t *testing.T) {
	reader := &memReader{queue: []kafka.Message{paymentMessage(1), paymentMessage(2)}}
	h := &recordingHandler{errs: []error{pkgerrors.ErrPaymentGateway}}
	c := newTestConsumer(reader, h)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Consume(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, int64(1), reader.commits()[0].Offset)
	assert.Equal(t, int64(2), reader.commits()[1].Offset)
}

func TestConsumer_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("PaymentEvent", func(t *testing.T) {
		h := &recordingHandler{}
		c := &Consumer{handler: h}

		err := c.handle(ctx, kafka.Message{
			Topic: TopicPaymentEvents,
			Key:   []byte("7"),
			Value: []byte(`{"event_id":"evt_1","booking_id":7,"buyer_id":20,"intent_id":"pi_1"}`),
		})
		require.NoError(t, err)
		require.Len(t, h.events, 1)
		assert.Equal(t, int64(7), h.events[0].BookingID)
		assert.Equal(t, "pi_1", h.events[0].IntentID)
	})

	t.Run("HandlerError", func(t *testing.T) {
		h := &recordingHandler{err: errors.New("boom")}
		c := &Consumer{handler: h}

		err := c.handle(ctx, kafka.Message{
			Topic: TopicPaymentEvents,
			Value: []byte(`{"booking_id":7,"buyer_id":20,"intent_id":"pi_1"}`),
		})
		assert.EqualError(t, err, "boom")
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		h := &recordingHandler{}
		c := &Consumer{handler: h}

		err := c.handle(ctx, kafka.Message{Topic: TopicPaymentEvents, Value: []byte(`{`)})
		assert.Error(t, err)
		assert.Empty(t, h.events)
	})

	t.Run("MissingFields", func(t *testing.T) {
		h := &recordingHandler{}
		c := &Consumer{handler: h}

		err := c.handle(ctx, kafka.Message{Topic: TopicPaymentEvents, Value: []byte(`{"booking_id":7}`)})
		assert.Error(t, err)
		assert.Empty(t, h.events)
	})

	t.Run("UnknownTopic", func(t *testing.T) {
		h := &recordingHandler{}
		c := &Consumer{handler: h}

		err := c.handle(ctx, kafka.Message{Topic: TopicBookings, Value: []byte(`{}`)})
		assert.Error(t, err)
		assert.Empty(t, h.events)
	})
}
