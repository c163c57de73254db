package repository_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
	repository "github.com/MarufurRahmanRahat/ticket-bari-server/internal/repository/postgres"
	pkgerrors "github.com/MarufurRahmanRahat/ticket-bari-server/pkg/errors"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookingColumnNames = []string{"id", "ticket_id", "buyer_id", "vendor_id", "quantity", "total_price", "status", "payment_status",
	"ticket_snapshot", "payment_intent_id", "paid_at", "created_at", "updated_at"}

const snapshotJSON = `{"title":"Dhaka Express","origin":"Dhaka","destination":"Chittagong","transport_mode":"train","departure_date":"2026-02-01","departure_time":"09:30","unit_price":100}`

func bookingRow(id int64, status models.BookingStatus, paymentStatus models.PaymentStatus, paidAt any) *sqlmock.Rows {
	now := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(bookingColumnNames).
		AddRow(id, 3, 20, 10, 2, 200, string(status), string(paymentStatus), []byte(snapshotJSON), "pi_1", paidAt, now, now)
}

const (
	markPaidQuery  = `UPDATE bookings SET status = $1, payment_status = $2, paid_at = $3, updated_at = $3 WHERE id = $4 AND status = $5 AND payment_status = $6 RETURNING id, ticket_id, buyer_id, vendor_id, quantity, total_price, status, payment_status, ticket_snapshot, payment_intent_id, paid_at, created_at, updated_at`
	decrementQuery = `UPDATE tickets SET quantity = quantity - $1, updated_at = now() WHERE id = $2 AND quantity >= $1 RETURNING quantity`
	existsQuery    = `SELECT EXISTS (SELECT 1 FROM tickets WHERE id = $1)`
	insertTxQuery  = `INSERT INTO transactions (booking_id, ticket_id, buyer_id, charge_id, amount, currency, ticket_title) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`
	statusQuery    = `SELECT status, payment_status FROM bookings WHERE id = $1`
)

func newCapture(paidAt time.Time) models.Capture {
	return models.Capture{
		BookingID:   7,
		TicketID:    3,
		BuyerID:     20,
		Quantity:    2,
		Amount:      200,
		Currency:    "usd",
		ChargeID:    "ch_1",
		TicketTitle: "Dhaka Express",
		PaidAt:      paidAt,
	}
}

func TestPostgresCaptureRepository_Finalize(t *testing.T) {
	ctx := context.Background()
	paidAt := time.Date(2026, 1, 10, 10, 5, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := repository.NewPostgresCaptureRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(markPaidQuery)).
			WithArgs("paid", "paid", paidAt, 7, "accepted", "unpaid").
			WillReturnRows(bookingRow(7, models.BookingPaid, models.PaymentPaid, paidAt))
		mock.ExpectQuery(regexp.QuoteMeta(decrementQuery)).
			WithArgs(2, 3).
			WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(1))
		mock.ExpectQuery(regexp.QuoteMeta(insertTxQuery)).
			WithArgs(7, 3, 20, "ch_1", 200, "usd", "Dhaka Express").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(11, paidAt))
		mock.ExpectCommit()

		booking, txn, err := repo.Finalize(ctx, newCapture(paidAt))
		require.NoError(t, err)
		assert.Equal(t, models.BookingPaid, booking.Status)
		assert.Equal(t, models.PaymentPaid, booking.PaymentStatus)
		assert.Equal(t, "Dhaka Express", booking.Snapshot.Title)
		require.NotNil(t, booking.PaidAt)
		assert.Equal(t, int64(11), txn.ID)
		assert.Equal(t, int64(200), txn.Amount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InsufficientInventoryRollsBack", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := repository.NewPostgresCaptureRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(markPaidQuery)).
			WithArgs("paid", "paid", paidAt, 7, "accepted", "unpaid").
			WillReturnRows(bookingRow(7, models.BookingPaid, models.PaymentPaid, paidAt))
		mock.ExpectQuery(regexp.QuoteMeta(decrementQuery)).
			WithArgs(2, 3).
			WillReturnRows(sqlmock.NewRows([]string{"quantity"}))
		mock.ExpectQuery(regexp.QuoteMeta(existsQuery)).
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		booking, txn, err := repo.Finalize(ctx, newCapture(paidAt))
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientInventory)
		assert.Nil(t, booking)
		assert.Nil(t, txn)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DeletedTicketRollsBack", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := repository.NewPostgresCaptureRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(markPaidQuery)).
			WithArgs("paid", "paid", paidAt, 7, "accepted", "unpaid").
			WillReturnRows(bookingRow(7, models.BookingPaid, models.PaymentPaid, paidAt))
		mock.ExpectQuery(regexp.QuoteMeta(decrementQuery)).
			WithArgs(2, 3).
			WillReturnRows(sqlmock.NewRows([]string{"quantity"}))
		mock.ExpectQuery(regexp.QuoteMeta(existsQuery)).
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectRollback()

		_, _, err = repo.Finalize(ctx, newCapture(paidAt))
		assert.ErrorIs(t, err, pkgerrors.ErrTicketNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AlreadyPaid", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := repository.NewPostgresCaptureRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(markPaidQuery)).
			WithArgs("paid", "paid", paidAt, 7, "accepted", "unpaid").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta(statusQuery)).
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"status", "payment_status"}).AddRow("paid", "paid"))
		mock.ExpectRollback()

		_, _, err = repo.Finalize(ctx, newCapture(paidAt))
		assert.ErrorIs(t, err, pkgerrors.ErrAlreadyPaid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotAccepted", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := repository.NewPostgresCaptureRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(markPaidQuery)).
			WithArgs("paid", "paid", paidAt, 7, "accepted", "unpaid").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta(statusQuery)).
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"status", "payment_status"}).AddRow("pending", "unpaid"))
		mock.ExpectRollback()

		_, _, err = repo.Finalize(ctx, newCapture(paidAt))
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
		status, ok := pkgerrors.CurrentStatus(err)
		assert.True(t, ok)
		assert.Equal(t, "pending", status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DuplicateChargeRollsBack", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := repository.NewPostgresCaptureRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(markPaidQuery)).
			WithArgs("paid", "paid", paidAt, 7, "accepted", "unpaid").
			WillReturnRows(bookingRow(7, models.BookingPaid, models.PaymentPaid, paidAt))
		mock.ExpectQuery(regexp.QuoteMeta(decrementQuery)).
			WithArgs(2, 3).
			WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(1))
		mock.ExpectQuery(regexp.QuoteMeta(insertTxQuery)).
			WithArgs(7, 3, 20, "ch_1", 200, "usd", "Dhaka Express").
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		_, _, err = repo.Finalize(ctx, newCapture(paidAt))
		assert.ErrorIs(t, err, pkgerrors.ErrAlreadyPaid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MissingChargeID", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := repository.NewPostgresCaptureRepository(db)

		c := newCapture(paidAt)
		c.ChargeID = ""
		_, _, err = repo.Finalize(ctx, c)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
