package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
	pkgerrors "github.com/MarufurRahmanRahat/ticket-bari-server/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const bookingColumns = `id, ticket_id, buyer_id, vendor_id, quantity, total_price, status, payment_status, ticket_snapshot, payment_intent_id, paid_at, created_at, updated_at`

type PostgresBookingRepository struct {
	db *sql.DB
}

func NewPostgresBookingRepository(db *sql.DB) *PostgresBookingRepository {
	return &PostgresBookingRepository{db: db}
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b        models.Booking
		intentID sql.NullString
		paidAt   sql.NullTime
	)
	err := row.Scan(&b.ID, &b.TicketID, &b.BuyerID, &b.VendorID, &b.Quantity, &b.TotalPrice, &b.Status,
		&b.PaymentStatus, &b.Snapshot, &intentID, &paidAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if intentID.Valid {
		b.PaymentIntentID = &intentID.String
	}
	if paidAt.Valid {
		b.PaidAt = &paidAt.Time
	}
	return &b, nil
}

func (r *PostgresBookingRepository) Create(ctx context.Context, booking *models.Booking) (err error) {
	ctx, done := instrument(ctx, "booking-repository", "CreateBooking")
	defer done(&err)

	if booking == nil {
		err = pkgerrors.ErrNilBooking
		slog.Error("failed to create booking", "method", "Create", "error", err)
		return err
	}

	query := `INSERT INTO bookings (ticket_id, buyer_id, vendor_id, quantity, total_price, status, payment_status, ticket_snapshot) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query,
		booking.TicketID, booking.BuyerID, booking.VendorID, booking.Quantity, booking.TotalPrice,
		booking.Status, booking.PaymentStatus, booking.Snapshot,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		slog.Error("failed to create booking", "method", "Create", "ticket_id", booking.TicketID, "buyer_id", booking.BuyerID, "error", err)
		return fmt.Errorf("failed to create booking: %w", err)
	}

	slog.Info("booking created", "method", "Create", "booking_id", booking.ID, "ticket_id", booking.TicketID, "buyer_id", booking.BuyerID)
	return nil
}

func (r *PostgresBookingRepository) GetByID(ctx context.Context, id int64) (booking *models.Booking, err error) {
	ctx, done := instrument(ctx, "booking-repository", "GetBookingByID", attribute.Int64("booking_id", id))
	defer done(&err)

	booking, err = getBooking(ctx, r.db, id)
	return booking, err
}

func getBooking(ctx context.Context, q querier, id int64) (*models.Booking, error) {
	booking, err := scanBooking(q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrBookingNotFound
	}
	if err != nil {
		slog.Error("failed to get booking by id", "booking_id", id, "error", err)
		return nil, fmt.Errorf("failed to get booking by id: %w", err)
	}
	return booking, nil
}

func (r *PostgresBookingRepository) ListByBuyer(ctx context.Context, buyerID int64) (bookings []models.Booking, err error) {
	ctx, done := instrument(ctx, "booking-repository", "ListBookingsByBuyer", attribute.Int64("buyer_id", buyerID))
	defer done(&err)

	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE buyer_id = $1 ORDER BY created_at DESC`, buyerID)
}

func (r *PostgresBookingRepository) ListByVendor(ctx context.Context, vendorID int64) (bookings []models.Booking, err error) {
	ctx, done := instrument(ctx, "booking-repository", "ListBookingsByVendor", attribute.Int64("vendor_id", vendorID))
	defer done(&err)

	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE vendor_id = $1 ORDER BY created_at DESC`, vendorID)
}

func (r *PostgresBookingRepository) list(ctx context.Context, query string, id int64) ([]models.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		slog.Error("failed to list bookings", "error", err)
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := []models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

func (r *PostgresBookingRepository) Transition(ctx context.Context, id int64, from models.BookingStatus, action models.BookingAction) (booking *models.Booking, err error) {
	ctx, done := instrument(ctx, "booking-repository", "TransitionBooking",
		attribute.Int64("booking_id", id), attribute.String("action", string(action)))
	defer done(&err)

	to, err := from.Next(action)
	if err != nil {
		return nil, err
	}

	query := `UPDATE bookings SET status = $1, updated_at = now() WHERE id = $2 AND status = $3 RETURNING ` + bookingColumns
	booking, err = scanBooking(r.db.QueryRowContext(ctx, query, to, id, from))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = r.staleStatus(ctx, id, action)
		return nil, err
	}
	if err != nil {
		slog.Error("failed to transition booking", "method", "Transition", "booking_id", id, "action", action, "error", err)
		return nil, fmt.Errorf("failed to transition booking: %w", err)
	}

	slog.Info("booking transitioned", "method", "Transition", "booking_id", id, "from", from, "to", to)
	return booking, nil
}

func (r *PostgresBookingRepository) DeletePending(ctx context.Context, id int64) (err error) {
	ctx, done := instrument(ctx, "booking-repository", "DeletePendingBooking", attribute.Int64("booking_id", id))
	defer done(&err)

	res, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1 AND status = $2`, id, models.BookingPending)
	if err != nil {
		slog.Error("failed to delete booking", "method", "DeletePending", "booking_id", id, "error", err)
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if n == 0 {
		err = r.staleStatus(ctx, id, models.ActionCancel)
		return err
	}

	slog.Info("booking deleted", "method", "DeletePending", "booking_id", id)
	return nil
}

func (r *PostgresBookingRepository) SetPaymentIntent(ctx context.Context, id int64, intentID string) (err error) {
	ctx, done := instrument(ctx, "booking-repository", "SetBookingPaymentIntent", attribute.Int64("booking_id", id))
	defer done(&err)

	query := `UPDATE bookings SET payment_intent_id = $1, updated_at = now() WHERE id = $2 AND status = $3 AND payment_status = $4`
	res, err := r.db.ExecContext(ctx, query, intentID, id, models.BookingAccepted, models.PaymentUnpaid)
	if err != nil {
		slog.Error("failed to set payment intent", "method", "SetPaymentIntent", "booking_id", id, "error", err)
		return fmt.Errorf("failed to set payment intent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set payment intent: %w", err)
	}
	if n == 0 {
		err = r.staleStatus(ctx, id, models.ActionCapture)
		return err
	}

	slog.Info("payment intent attached", "method", "SetPaymentIntent", "booking_id", id)
	return nil
}

// staleStatus explains why a guarded write matched no row.
func (r *PostgresBookingRepository) staleStatus(ctx context.Context, id int64, action models.BookingAction) error {
	return classifyBooking(ctx, r.db, id, action)
}

func classifyBooking(ctx context.Context, q querier, id int64, action models.BookingAction) error {
	var status models.BookingStatus
	var paymentStatus models.PaymentStatus
	err := q.QueryRowContext(ctx, `SELECT status, payment_status FROM bookings WHERE id = $1`, id).Scan(&status, &paymentStatus)
	if stderrors.Is(err, sql.ErrNoRows) {
		return pkgerrors.ErrBookingNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read booking status: %w", err)
	}
	if action == models.ActionCapture && paymentStatus == models.PaymentPaid {
		return pkgerrors.ErrAlreadyPaid
	}
	return &pkgerrors.TransitionError{Action: string(action), From: string(status)}
}
