package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/kafka"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
	pkgerrors "github.com/MarufurRahmanRahat/ticket-bari-server/pkg/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const publishTimeout = 3 * time.Second

// Clock is injected so expiry decisions can be tested against a fixed instant.
type Clock func() time.Time

func failSpan(span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}

// outcome turns an operation result into a low-cardinality metric label.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case stderrors.Is(err, pkgerrors.ErrNotFound):
		return "not_found"
	case stderrors.Is(err, pkgerrors.ErrForbidden):
		return "forbidden"
	case stderrors.Is(err, pkgerrors.ErrInvalidTransition):
		return "invalid_transition"
	case stderrors.Is(err, pkgerrors.ErrExpired):
		return "expired"
	case stderrors.Is(err, pkgerrors.ErrInsufficientInventory):
		return "insufficient_inventory"
	case stderrors.Is(err, pkgerrors.ErrAlreadyPaid):
		return "already_paid"
	case stderrors.Is(err, pkgerrors.ErrPaymentNotCompleted):
		return "payment_not_completed"
	case stderrors.Is(err, pkgerrors.ErrPaymentMismatch):
		return "payment_mismatch"
	case stderrors.Is(err, pkgerrors.ErrInvalidInput), stderrors.Is(err, pkgerrors.ErrNotApproved):
		return "rejected"
	default:
		return "error"
	}
}

// publishBookingEvent is best effort: a failed publish is logged and never
// fails the operation that produced it.
func publishBookingEvent(ctx context.Context, producer kafka.KafkaProducer, eventType models.BookingEventType, booking *models.Booking, at time.Time) {
	if producer == nil || booking == nil {
		return
	}
	event := models.BookingEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		BookingID:  booking.ID,
		TicketID:   booking.TicketID,
		BuyerID:    booking.BuyerID,
		VendorID:   booking.VendorID,
		Status:     booking.Status,
		Quantity:   booking.Quantity,
		TotalPrice: booking.TotalPrice,
		OccurredAt: at.UTC(),
	}
	if eventType == models.EventBookingCancelled {
		event.Status = models.BookingDeleted
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal booking event", "booking_id", booking.ID, "event_type", eventType, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := producer.Send(ctx, kafka.TopicBookings, strconv.FormatInt(booking.ID, 10), eventBytes); err != nil {
		slog.Error("failed to send booking event", "booking_id", booking.ID, "event_type", eventType, "error", err)
		return
	}
	slog.Info("booking event sent", "booking_id", booking.ID, "event_type", eventType, "event_id", event.EventID)
}
