package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/auth"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/kafka"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/observability"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/repository"
	pkgerrors "github.com/MarufurRahmanRahat/ticket-bari-server/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type BookingService interface {
	Create(ctx context.Context, buyerID, ticketID int64, quantity int32) (*models.Booking, error)
	Accept(ctx context.Context, vendorID, bookingID int64) (*models.Booking, error)
	Reject(ctx context.Context, vendorID, bookingID int64) (*models.Booking, error)
	Cancel(ctx context.Context, buyerID, bookingID int64) error
	Get(ctx context.Context, caller auth.Identity, bookingID int64) (*models.Booking, error)
	List(ctx context.Context, caller auth.Identity) ([]models.Booking, error)
}

type bookingService struct {
	bookings repository.BookingRepository
	ledger   *InventoryLedger
	producer kafka.KafkaProducer
	loc      *time.Location
	now      Clock
}

func NewBookingService(
	bookings repository.BookingRepository,
	ledger *InventoryLedger,
	producer kafka.KafkaProducer,
	loc *time.Location,
) *bookingService {
	if loc == nil {
		loc = time.UTC
	}
	return &bookingService{
		bookings: bookings,
		ledger:   ledger,
		producer: producer,
		loc:      loc,
		now:      time.Now,
	}
}

// Create prices a pending booking and freezes the ticket terms into it.
// Ticket quantity is not touched; availability is consumed only at capture.
func (s *bookingService) Create(ctx context.Context, buyerID, ticketID int64, quantity int32) (booking *models.Booking, err error) {
	tracer := otel.Tracer("booking-service")
	ctx, span := tracer.Start(ctx, "CreateBooking")
	span.SetAttributes(attribute.Int64("buyer_id", buyerID), attribute.Int64("ticket_id", ticketID))
	defer span.End()
	defer func() { observability.BookingTransitions.WithLabelValues("create", outcome(err)).Inc() }()

	if quantity < 1 {
		err = pkgerrors.Invalid("quantity must be at least 1")
		failSpan(span, err, "invalid quantity")
		return nil, err
	}

	ticket, err := s.ledger.ReserveCheck(ctx, ticketID, quantity)
	if err != nil {
		failSpan(span, err, "ticket not bookable")
		slog.Warn("booking rejected", "buyer_id", buyerID, "ticket_id", ticketID, "quantity", quantity, "error", err)
		return nil, err
	}

	booking = models.NewBooking(buyerID, ticket, quantity)
	if err = s.bookings.Create(ctx, booking); err != nil {
		failSpan(span, err, "booking creation failed")
		slog.Error("failed to create booking", "buyer_id", buyerID, "ticket_id", ticketID, "error", err)
		return nil, err
	}

	publishBookingEvent(ctx, s.producer, models.EventBookingCreated, booking, s.now())
	slog.Info("booking created",
		"booking_id", booking.ID,
		"buyer_id", buyerID,
		"ticket_id", ticketID,
		"quantity", quantity,
		"total_price", booking.TotalPrice)
	return booking, nil
}

func (s *bookingService) Accept(ctx context.Context, vendorID, bookingID int64) (*models.Booking, error) {
	return s.decide(ctx, vendorID, bookingID, models.ActionAccept)
}

// Reject is terminal for the booking.
func (s *bookingService) Reject(ctx context.Context, vendorID, bookingID int64) (*models.Booking, error) {
	return s.decide(ctx, vendorID, bookingID, models.ActionReject)
}

func (s *bookingService) decide(ctx context.Context, vendorID, bookingID int64, action models.BookingAction) (booking *models.Booking, err error) {
	tracer := otel.Tracer("booking-service")
	ctx, span := tracer.Start(ctx, "DecideBooking")
	span.SetAttributes(
		attribute.Int64("vendor_id", vendorID),
		attribute.Int64("booking_id", bookingID),
		attribute.String("action", string(action)))
	defer span.End()
	defer func() { observability.BookingTransitions.WithLabelValues(string(action), outcome(err)).Inc() }()

	current, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		failSpan(span, err, "booking lookup failed")
		return nil, err
	}
	if current.VendorID != vendorID {
		err = pkgerrors.ErrForbidden
		failSpan(span, err, "vendor does not own ticket")
		slog.Warn("booking decision by non-owner", "booking_id", bookingID, "vendor_id", vendorID, "action", action)
		return nil, err
	}
	if _, err = current.Status.Next(action); err != nil {
		failSpan(span, err, "invalid transition")
		slog.Warn("invalid booking transition", "booking_id", bookingID, "status", current.Status, "action", action)
		return nil, err
	}
	if action == models.ActionAccept && current.Snapshot.Expired(s.now(), s.loc) {
		err = pkgerrors.ErrExpired
		failSpan(span, err, "departure passed")
		slog.Warn("cannot accept expired booking", "booking_id", bookingID, "departure_date", current.Snapshot.DepartureDate)
		return nil, err
	}
	if action == models.ActionAccept {
		// A deleted ticket can never be captured against.
		if _, err = s.ledger.GetTicket(ctx, current.TicketID); err != nil {
			failSpan(span, err, "ticket lookup failed")
			slog.Warn("cannot accept booking", "booking_id", bookingID, "ticket_id", current.TicketID, "error", err)
			return nil, err
		}
	}

	booking, err = s.bookings.Transition(ctx, bookingID, current.Status, action)
	if err != nil {
		failSpan(span, err, "transition failed")
		slog.Error("failed to transition booking", "booking_id", bookingID, "action", action, "error", err)
		return nil, err
	}

	eventType := models.EventBookingAccepted
	if action == models.ActionReject {
		eventType = models.EventBookingRejected
	}
	publishBookingEvent(ctx, s.producer, eventType, booking, s.now())
	slog.Info("booking decided", "booking_id", bookingID, "vendor_id", vendorID, "status", booking.Status)
	return booking, nil
}

// Cancel deletes a booking its buyer still has pending. Once the vendor has
// acted the buyer can no longer withdraw it.
func (s *bookingService) Cancel(ctx context.Context, buyerID, bookingID int64) (err error) {
	tracer := otel.Tracer("booking-service")
	ctx, span := tracer.Start(ctx, "CancelBooking")
	span.SetAttributes(attribute.Int64("buyer_id", buyerID), attribute.Int64("booking_id", bookingID))
	defer span.End()
	defer func() {
		observability.BookingTransitions.WithLabelValues(string(models.ActionCancel), outcome(err)).Inc()
	}()

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		failSpan(span, err, "booking lookup failed")
		return err
	}
	if booking.BuyerID != buyerID {
		err = pkgerrors.ErrForbidden
		failSpan(span, err, "buyer does not own booking")
		return err
	}
	if _, err = booking.Status.Next(models.ActionCancel); err != nil {
		failSpan(span, err, "invalid transition")
		slog.Warn("invalid booking transition", "booking_id", bookingID, "status", booking.Status, "action", models.ActionCancel)
		return err
	}

	if err = s.bookings.DeletePending(ctx, bookingID); err != nil {
		failSpan(span, err, "booking deletion failed")
		slog.Error("failed to cancel booking", "booking_id", bookingID, "error", err)
		return err
	}

	publishBookingEvent(ctx, s.producer, models.EventBookingCancelled, booking, s.now())
	slog.Info("booking cancelled", "booking_id", bookingID, "buyer_id", buyerID)
	return nil
}

// Get returns a booking to its buyer, to the vendor of its ticket, or to an admin.
func (s *bookingService) Get(ctx context.Context, caller auth.Identity, bookingID int64) (*models.Booking, error) {
	tracer := otel.Tracer("booking-service")
	ctx, span := tracer.Start(ctx, "GetBooking")
	span.SetAttributes(attribute.Int64("booking_id", bookingID))
	defer span.End()

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		failSpan(span, err, "booking lookup failed")
		return nil, err
	}

	switch {
	case caller.Role == auth.RoleAdmin,
		caller.Role == auth.RoleBuyer && booking.BuyerID == caller.UserID,
		caller.Role == auth.RoleVendor && booking.VendorID == caller.UserID:
		return booking, nil
	}
	failSpan(span, pkgerrors.ErrForbidden, "booking not visible to caller")
	return nil, pkgerrors.ErrForbidden
}

// List returns the caller's own bookings as a buyer, or the bookings made
// against the caller's tickets as a vendor.
func (s *bookingService) List(ctx context.Context, caller auth.Identity) ([]models.Booking, error) {
	tracer := otel.Tracer("booking-service")
	ctx, span := tracer.Start(ctx, "ListBookings")
	defer span.End()

	switch caller.Role {
	case auth.RoleBuyer:
		return s.bookings.ListByBuyer(ctx, caller.UserID)
	case auth.RoleVendor:
		return s.bookings.ListByVendor(ctx, caller.UserID)
	default:
		err := fmt.Errorf("%w: role %q has no booking list", pkgerrors.ErrForbidden, caller.Role)
		failSpan(span, err, "unsupported role")
		return nil, err
	}
}
