package service

import (
	"context"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/repository"
	pkgerrors "github.com/MarufurRahmanRahat/ticket-bari-server/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// TransactionService reads the append-only transaction ledger. Rows are
// written only by a capture.
type TransactionService interface {
	ListByBuyer(ctx context.Context, buyerID int64) ([]models.Transaction, error)
	Get(ctx context.Context, buyerID, transactionID int64) (*models.Transaction, error)
	GetByBooking(ctx context.Context, buyerID, bookingID int64) (*models.Transaction, error)
}

type transactionService struct {
	transactions repository.TransactionRepository
}

func NewTransactionService(transactions repository.TransactionRepository) *transactionService {
	return &transactionService{transactions: transactions}
}

func (s *transactionService) ListByBuyer(ctx context.Context, buyerID int64) ([]models.Transaction, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "ListTransactions")
	span.SetAttributes(attribute.Int64("buyer_id", buyerID))
	defer span.End()

	txs, err := s.transactions.ListByBuyer(ctx, buyerID)
	if err != nil {
		failSpan(span, err, "transaction list failed")
		return nil, err
	}
	return txs, nil
}

func (s *transactionService) Get(ctx context.Context, buyerID, transactionID int64) (*models.Transaction, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "GetTransaction")
	span.SetAttributes(attribute.Int64("buyer_id", buyerID), attribute.Int64("transaction_id", transactionID))
	defer span.End()

	tx, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		failSpan(span, err, "transaction lookup failed")
		return nil, err
	}
	if tx.BuyerID != buyerID {
		failSpan(span, pkgerrors.ErrForbidden, "transaction not owned by buyer")
		return nil, pkgerrors.ErrForbidden
	}
	return tx, nil
}

// GetByBooking returns the transaction a paid booking produced.
func (s *transactionService) GetByBooking(ctx context.Context, buyerID, bookingID int64) (*models.Transaction, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "GetTransactionByBooking")
	span.SetAttributes(attribute.Int64("buyer_id", buyerID), attribute.Int64("booking_id", bookingID))
	defer span.End()

	tx, err := s.transactions.GetByBookingID(ctx, bookingID)
	if err != nil {
		failSpan(span, err, "transaction lookup failed")
		return nil, err
	}
	if tx.BuyerID != buyerID {
		failSpan(span, pkgerrors.ErrForbidden, "transaction not owned by buyer")
		return nil, pkgerrors.ErrForbidden
	}
	return tx, nil
}
