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

const transactionColumns = `id, booking_id, ticket_id, buyer_id, charge_id, amount, currency, ticket_title, created_at`

type PostgresTransactionRepository struct {
	db *sql.DB
}

func NewPostgresTransactionRepository(db *sql.DB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	err := row.Scan(&tx.ID, &tx.BookingID, &tx.TicketID, &tx.BuyerID, &tx.ChargeID, &tx.Amount, &tx.Currency, &tx.TicketTitle, &tx.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id int64) (tx *models.Transaction, err error) {
	ctx, done := instrument(ctx, "transaction-repository", "GetTransactionByID", attribute.Int64("transaction_id", id))
	defer done(&err)

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	tx, err = scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Error("transaction not found", "method", "GetByID", "transaction_id", id, "error", err)
		err = pkgerrors.ErrTransactionNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get transaction by id", "method", "GetByID", "transaction_id", id, "error", err)
		return nil, fmt.Errorf("failed to get transaction by id: %w", err)
	}

	slog.Info("transaction retrieved", "method", "GetByID", "transaction_id", id, "booking_id", tx.BookingID)
	return tx, nil
}

func (r *PostgresTransactionRepository) GetByBookingID(ctx context.Context, bookingID int64) (tx *models.Transaction, err error) {
	ctx, done := instrument(ctx, "transaction-repository", "GetTransactionByBookingID", attribute.Int64("booking_id", bookingID))
	defer done(&err)

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE booking_id = $1`
	tx, err = scanTransaction(r.db.QueryRowContext(ctx, query, bookingID))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrTransactionNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get transaction by booking", "method", "GetByBookingID", "booking_id", bookingID, "error", err)
		return nil, fmt.Errorf("failed to get transaction by booking: %w", err)
	}
	return tx, nil
}

func (r *PostgresTransactionRepository) ListByBuyer(ctx context.Context, buyerID int64) (txs []models.Transaction, err error) {
	ctx, done := instrument(ctx, "transaction-repository", "ListTransactionsByBuyer", attribute.Int64("buyer_id", buyerID))
	defer done(&err)

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE buyer_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, buyerID)
	if err != nil {
		slog.Error("failed to list transactions", "method", "ListByBuyer", "buyer_id", buyerID, "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txs = []models.Transaction{}
	for rows.Next() {
		tx, scanErr := scanTransaction(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan transaction: %w", scanErr)
			return nil, err
		}
		txs = append(txs, *tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	slog.Info("transactions listed", "method", "ListByBuyer", "buyer_id", buyerID, "count", len(txs))
	return txs, nil
}
