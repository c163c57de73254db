package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
	pkgerrors "github.com/MarufurRahmanRahat/ticket-bari-server/pkg/errors"
	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

var errMalformed = errors.New("malformed message")

// PaymentEventHandler finalizes captures announced on the payment-events topic.
type PaymentEventHandler interface {
	HandlePaymentEvent(ctx context.Context, event models.PaymentEvent) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader     messageReader
	topic      string
	handler    PaymentEventHandler
	newBackOff func() backoff.BackOff
}

func NewConsumer(brokers []string, topic, groupID string, handler PaymentEventHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		topic:   topic,
		handler: handler,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Consume runs until ctx is cancelled. An offset is committed only once its
// message is applied or known to be unprocessable, so a capture that failed
// on a transient error is retried and never skipped.
func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Kafka consumer stopped", "topic", c.topic)
				return
			}
			slog.Error("failed to fetch Kafka message", "topic", c.topic, "error", err)
			continue
		}

		slog.Info("Kafka message received", "topic", msg.Topic, "key", string(msg.Key), "offset", msg.Offset)
		if err := c.process(ctx, msg); err != nil {
			slog.Info("Kafka consumer stopped before commit", "topic", msg.Topic, "offset", msg.Offset, "error", err)
			return
		}
	}
}

// process retries transient failures until the message is handled, then
// commits it. It returns an error only when ctx ends first.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	op := func() error {
		err := c.handle(ctx, msg)
		if err != nil && permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("retrying Kafka message", "topic", msg.Topic, "offset", msg.Offset, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("skipping unprocessable Kafka message", "topic", msg.Topic, "key", string(msg.Key), "offset", msg.Offset, "error", err)
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("failed to commit Kafka message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
	}
	return nil
}

// permanent reports errors that redelivery cannot fix.
func permanent(err error) bool {
	for _, target := range []error{
		errMalformed,
		pkgerrors.ErrNotFound,
		pkgerrors.ErrForbidden,
		pkgerrors.ErrInvalidTransition,
		pkgerrors.ErrExpired,
		pkgerrors.ErrInsufficientInventory,
		pkgerrors.ErrPaymentMismatch,
		pkgerrors.ErrPaymentNotCompleted,
		pkgerrors.ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	switch msg.Topic {
	case TopicPaymentEvents:
		var event models.PaymentEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("%w: failed to unmarshal payment event: %v", errMalformed, err)
		}
		if event.BookingID == 0 || event.BuyerID == 0 || event.IntentID == "" {
			return fmt.Errorf("%w: missing booking_id, buyer_id or intent_id", errMalformed)
		}
		return c.handler.HandlePaymentEvent(ctx, event)
	default:
		return fmt.Errorf("%w: unknown topic %q", errMalformed, msg.Topic)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
