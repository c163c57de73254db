package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/kafka"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/observability"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/payment"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/redis"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/repository"
	pkgerrors "github.com/MarufurRahmanRahat/ticket-bari-server/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const intentLockTTL = 30 * time.Second

type PaymentService interface {
	CreateIntent(ctx context.Context, buyerID, bookingID int64) (*payment.ChargeIntent, error)
	Confirm(ctx context.Context, buyerID, bookingID int64, intentID string) (*models.Booking, *models.Transaction, error)
	HandlePaymentEvent(ctx context.Context, event models.PaymentEvent) error
}

type paymentService struct {
	bookings    repository.BookingRepository
	capture     repository.CaptureRepository
	ledger      *InventoryLedger
	gateway     payment.Gateway
	redisClient redis.RedisClient
	producer    kafka.KafkaProducer
	currency    string
	loc         *time.Location
	now         Clock
}

func NewPaymentService(
	bookings repository.BookingRepository,
	capture repository.CaptureRepository,
	ledger *InventoryLedger,
	gateway payment.Gateway,
	redisClient redis.RedisClient,
	producer kafka.KafkaProducer,
	currency string,
	loc *time.Location,
) *paymentService {
	if loc == nil {
		loc = time.UTC
	}
	return &paymentService{
		bookings:    bookings,
		capture:     capture,
		ledger:      ledger,
		gateway:     gateway,
		redisClient: redisClient,
		producer:    producer,
		currency:    strings.ToLower(currency),
		loc:         loc,
		now:         time.Now,
	}
}

// CreateIntent asks the payment provider for a charge intent covering the
// booking total. The booking keeps its status; only the intent reference is
// stored on it. While the stored intent can still be paid it is returned
// instead of a new one.
func (s *paymentService) CreateIntent(ctx context.Context, buyerID, bookingID int64) (*payment.ChargeIntent, error) {
	tracer := otel.Tracer("payment-service")
	ctx, span := tracer.Start(ctx, "CreateIntent")
	span.SetAttributes(attribute.Int64("buyer_id", buyerID), attribute.Int64("booking_id", bookingID))
	defer span.End()

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		failSpan(span, err, "booking lookup failed")
		return nil, err
	}
	if booking.BuyerID != buyerID {
		failSpan(span, pkgerrors.ErrForbidden, "buyer does not own booking")
		return nil, pkgerrors.ErrForbidden
	}
	if booking.Status != models.BookingAccepted {
		err = &pkgerrors.TransitionError{Action: string(models.ActionCapture), From: string(booking.Status)}
		failSpan(span, err, "booking not accepted")
		slog.Warn("payment intent for non-accepted booking", "booking_id", bookingID, "status", booking.Status)
		return nil, err
	}
	if booking.PaymentStatus == models.PaymentPaid {
		failSpan(span, pkgerrors.ErrAlreadyPaid, "booking already paid")
		return nil, pkgerrors.ErrAlreadyPaid
	}
	if booking.Snapshot.Expired(s.now(), s.loc) {
		failSpan(span, pkgerrors.ErrExpired, "departure passed")
		slog.Warn("payment intent for expired booking", "booking_id", bookingID, "departure_date", booking.Snapshot.DepartureDate)
		return nil, pkgerrors.ErrExpired
	}

	available, err := s.ledger.Available(ctx, booking.TicketID, booking.Quantity)
	if err != nil {
		failSpan(span, err, "ticket lookup failed")
		return nil, err
	}
	if !available {
		failSpan(span, pkgerrors.ErrInsufficientInventory, "not enough tickets left")
		slog.Warn("insufficient inventory for payment", "booking_id", bookingID, "ticket_id", booking.TicketID, "quantity", booking.Quantity)
		return nil, pkgerrors.ErrInsufficientInventory
	}

	lockKey := fmt.Sprintf("booking:%d:intent_lock", bookingID)
	ok, err := s.redisClient.SetNX(ctx, lockKey, "locked", intentLockTTL)
	if err != nil {
		failSpan(span, err, "failed to acquire lock")
		slog.Error("failed to acquire intent lock", "booking_id", bookingID, "error", err)
		return nil, fmt.Errorf("%w: failed to acquire intent lock", pkgerrors.ErrInternal)
	}
	if !ok {
		failSpan(span, pkgerrors.ErrRequestInProgress, "intent creation in progress")
		slog.Warn("intent creation already in progress", "booking_id", bookingID)
		return nil, pkgerrors.ErrRequestInProgress
	}
	defer func() {
		if err := s.redisClient.Del(context.WithoutCancel(ctx), lockKey); err != nil {
			slog.Error("failed to release intent lock", "booking_id", bookingID, "error", err)
		}
	}()

	// Reread under the lock so a concurrent request's intent is seen.
	booking, err = s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		failSpan(span, err, "booking lookup failed")
		return nil, err
	}
	if booking.PaymentIntentID != nil {
		existing, err := s.reusableIntent(ctx, *booking.PaymentIntentID)
		if err != nil {
			failSpan(span, err, "stored intent lookup failed")
			slog.Error("failed to retrieve stored payment intent", "booking_id", bookingID, "intent_id", *booking.PaymentIntentID, "error", err)
			return nil, err
		}
		if existing != nil {
			slog.Info("payment intent reused", "booking_id", bookingID, "buyer_id", buyerID, "intent_id", existing.IntentID)
			return existing, nil
		}
	}

	intent, err := s.gateway.CreateChargeIntent(ctx, booking.TotalPrice, s.currency, map[string]string{
		payment.MetadataBookingID: strconv.FormatInt(booking.ID, 10),
		payment.MetadataBuyerID:   strconv.FormatInt(booking.BuyerID, 10),
		payment.MetadataTicketID:  strconv.FormatInt(booking.TicketID, 10),
	})
	if err != nil {
		failSpan(span, err, "charge intent creation failed")
		slog.Error("failed to create charge intent", "booking_id", bookingID, "error", err)
		return nil, err
	}

	if err := s.bookings.SetPaymentIntent(ctx, bookingID, intent.IntentID); err != nil {
		failSpan(span, err, "failed to store intent")
		slog.Error("failed to store payment intent", "booking_id", bookingID, "intent_id", intent.IntentID, "error", err)
		return nil, err
	}

	slog.Info("payment intent created", "booking_id", bookingID, "buyer_id", buyerID, "intent_id", intent.IntentID, "amount", booking.TotalPrice)
	return intent, nil
}

// reusableIntent returns the stored intent unless the provider has canceled it.
func (s *paymentService) reusableIntent(ctx context.Context, intentID string) (*payment.ChargeIntent, error) {
	status, err := s.gateway.RetrieveChargeStatus(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if status.Status == payment.StatusCanceled {
		slog.Info("stored payment intent canceled, creating a new one", "intent_id", intentID)
		return nil, nil
	}
	return &payment.ChargeIntent{IntentID: status.IntentID, ClientSecret: status.ClientSecret}, nil
}

// Confirm captures a succeeded charge: the booking becomes paid, the ticket
// quantity is consumed and exactly one transaction is recorded, all in one
// unit of work. Repeating it for a paid booking returns ErrAlreadyPaid and
// changes nothing.
func (s *paymentService) Confirm(ctx context.Context, buyerID, bookingID int64, intentID string) (booking *models.Booking, txn *models.Transaction, err error) {
	tracer := otel.Tracer("payment-service")
	ctx, span := tracer.Start(ctx, "ConfirmPayment")
	span.SetAttributes(
		attribute.Int64("buyer_id", buyerID),
		attribute.Int64("booking_id", bookingID),
		attribute.String("intent_id", intentID))
	defer span.End()
	defer func() { observability.CaptureOutcomes.WithLabelValues(outcome(err)).Inc() }()

	if strings.TrimSpace(intentID) == "" {
		err = pkgerrors.Invalid("intent id is required")
		failSpan(span, err, "missing intent id")
		return nil, nil, err
	}

	current, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		failSpan(span, err, "booking lookup failed")
		return nil, nil, err
	}
	if current.BuyerID != buyerID {
		err = pkgerrors.ErrForbidden
		failSpan(span, err, "buyer does not own booking")
		return nil, nil, err
	}
	if current.PaymentStatus == models.PaymentPaid {
		err = pkgerrors.ErrAlreadyPaid
		failSpan(span, err, "booking already paid")
		slog.Info("duplicate payment confirmation", "booking_id", bookingID, "intent_id", intentID)
		return nil, nil, err
	}
	if current.Status != models.BookingAccepted {
		err = &pkgerrors.TransitionError{Action: string(models.ActionCapture), From: string(current.Status)}
		failSpan(span, err, "booking not accepted")
		return nil, nil, err
	}

	status, err := s.gateway.RetrieveChargeStatus(ctx, intentID)
	if err != nil {
		failSpan(span, err, "charge status retrieval failed")
		slog.Error("failed to retrieve charge status", "booking_id", bookingID, "intent_id", intentID, "error", err)
		return nil, nil, err
	}
	// An intent replaced on the booking still counts when the provider ties it
	// to this booking.
	stored := current.PaymentIntentID != nil && *current.PaymentIntentID == intentID
	if !stored && status.Metadata[payment.MetadataBookingID] != strconv.FormatInt(bookingID, 10) {
		err = fmt.Errorf("%w: intent %s was not issued for booking %d", pkgerrors.ErrPaymentMismatch, intentID, bookingID)
		failSpan(span, err, "intent mismatch")
		slog.Warn("payment intent does not belong to booking", "booking_id", bookingID, "intent_id", intentID)
		return nil, nil, err
	}
	if status.Status != payment.StatusSucceeded {
		err = fmt.Errorf("%w: charge is %s", pkgerrors.ErrPaymentNotCompleted, status.Status)
		failSpan(span, err, "charge not succeeded")
		slog.Warn("payment not completed", "booking_id", bookingID, "intent_id", intentID, "charge_status", status.Status)
		return nil, nil, err
	}
	if err = s.matchCharge(current, status); err != nil {
		failSpan(span, err, "charge does not match booking")
		slog.Error("captured charge does not match booking",
			"booking_id", bookingID,
			"intent_id", intentID,
			"amount", status.Amount,
			"currency", status.Currency,
			"expected_amount", current.TotalPrice)
		return nil, nil, err
	}

	booking, txn, err = s.capture.Finalize(ctx, models.Capture{
		BookingID:   current.ID,
		TicketID:    current.TicketID,
		BuyerID:     current.BuyerID,
		Quantity:    current.Quantity,
		Amount:      current.TotalPrice,
		Currency:    s.currency,
		ChargeID:    status.ChargeID,
		TicketTitle: current.Snapshot.Title,
		PaidAt:      s.now().UTC(),
	})
	if err != nil {
		failSpan(span, err, "capture failed")
		if stderrors.Is(err, pkgerrors.ErrAlreadyPaid) || stderrors.Is(err, pkgerrors.ErrInsufficientInventory) {
			slog.Warn("capture rejected", "booking_id", bookingID, "intent_id", intentID, "error", err)
		} else {
			slog.Error("failed to finalize capture", "booking_id", bookingID, "intent_id", intentID, "error", err)
		}
		return nil, nil, err
	}

	publishBookingEvent(ctx, s.producer, models.EventBookingPaid, booking, s.now())
	slog.Info("payment captured",
		"booking_id", bookingID,
		"buyer_id", buyerID,
		"transaction_id", txn.ID,
		"charge_id", txn.ChargeID,
		"amount", txn.Amount)
	return booking, txn, nil
}

func (s *paymentService) matchCharge(booking *models.Booking, status *payment.ChargeStatus) error {
	if status.Amount != booking.TotalPrice {
		return fmt.Errorf("%w: charged %d, booking total is %d", pkgerrors.ErrPaymentMismatch, status.Amount, booking.TotalPrice)
	}
	if status.Currency != "" && !strings.EqualFold(status.Currency, s.currency) {
		return fmt.Errorf("%w: charged in %s, expected %s", pkgerrors.ErrPaymentMismatch, status.Currency, s.currency)
	}
	if id, ok := status.Metadata[payment.MetadataBookingID]; ok && id != strconv.FormatInt(booking.ID, 10) {
		return fmt.Errorf("%w: charge belongs to booking %s", pkgerrors.ErrPaymentMismatch, id)
	}
	return nil
}

// HandlePaymentEvent finalizes a capture announced asynchronously by the
// payment provider. A booking that is already paid counts as handled.
func (s *paymentService) HandlePaymentEvent(ctx context.Context, event models.PaymentEvent) error {
	_, _, err := s.Confirm(ctx, event.BuyerID, event.BookingID, event.IntentID)
	if stderrors.Is(err, pkgerrors.ErrAlreadyPaid) {
		slog.Info("payment event already applied", "event_id", event.EventID, "booking_id", event.BookingID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply payment event %s: %w", event.EventID, err)
	}
	slog.Info("payment event applied", "event_id", event.EventID, "booking_id", event.BookingID)
	return nil
}
