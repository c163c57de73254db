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

type PostgresCaptureRepository struct {
	db *sql.DB
}

func NewPostgresCaptureRepository(db *sql.DB) *PostgresCaptureRepository {
	return &PostgresCaptureRepository{db: db}
}

// Finalize marks the booking paid, decrements the ticket and appends the
// transaction in a single database transaction. The booking row is locked
// first, so a duplicate confirm for the same booking waits and then sees
// it already paid; concurrent captures for the same ticket serialize on the
// ticket row and re-check availability under the lock.
func (r *PostgresCaptureRepository) Finalize(ctx context.Context, c models.Capture) (booking *models.Booking, txn *models.Transaction, err error) {
	ctx, done := instrument(ctx, "capture-repository", "FinalizeCapture",
		attribute.Int64("booking_id", c.BookingID),
		attribute.Int64("ticket_id", c.TicketID),
		attribute.Int("quantity", int(c.Quantity)),
		attribute.Int64("amount", c.Amount),
	)
	defer done(&err)

	if c.ChargeID == "" || c.Quantity < 1 {
		err = pkgerrors.Invalid("capture requires a charge id and a positive quantity")
		return nil, nil, err
	}

	dbTx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		slog.Error("failed to begin transaction", "method", "Finalize", "error", err)
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `UPDATE bookings SET status = $1, payment_status = $2, paid_at = $3, updated_at = $3 WHERE id = $4 AND status = $5 AND payment_status = $6 RETURNING ` + bookingColumns
	booking, err = scanBooking(dbTx.QueryRowContext(ctx, query,
		models.BookingPaid, models.PaymentPaid, c.PaidAt, c.BookingID, models.BookingAccepted, models.PaymentUnpaid))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = rollback(dbTx, "Finalize", classifyBooking(ctx, dbTx, c.BookingID, models.ActionCapture))
		return nil, nil, err
	}
	if err != nil {
		slog.Error("failed to mark booking paid", "method", "Finalize", "booking_id", c.BookingID, "error", err)
		err = rollback(dbTx, "Finalize", fmt.Errorf("failed to mark booking paid: %w", err))
		return nil, nil, err
	}

	if _, err = decrementQuantity(ctx, dbTx, c.TicketID, c.Quantity); err != nil {
		err = rollback(dbTx, "Finalize", err)
		return nil, nil, err
	}

	txn = c.Transaction()
	insert := `INSERT INTO transactions (booking_id, ticket_id, buyer_id, charge_id, amount, currency, ticket_title) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`
	err = dbTx.QueryRowContext(ctx, insert,
		txn.BookingID, txn.TicketID, txn.BuyerID, txn.ChargeID, txn.Amount, txn.Currency, txn.TicketTitle,
	).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			slog.Warn("transaction already recorded", "method", "Finalize", "booking_id", c.BookingID, "charge_id", c.ChargeID)
			err = rollback(dbTx, "Finalize", pkgerrors.ErrAlreadyPaid)
			return nil, nil, err
		}
		slog.Error("failed to create transaction", "method", "Finalize", "booking_id", c.BookingID, "error", err)
		err = rollback(dbTx, "Finalize", fmt.Errorf("failed to create transaction: %w", err))
		return nil, nil, err
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "Finalize", "booking_id", c.BookingID, "error", err)
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("capture finalized", "method", "Finalize", "booking_id", c.BookingID, "ticket_id", c.TicketID, "transaction_id", txn.ID, "charge_id", txn.ChargeID)
	return booking, txn, nil
}
