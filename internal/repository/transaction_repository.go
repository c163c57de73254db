package repository

import (
	"context"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
)

type TransactionRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Transaction, error)
	GetByBookingID(ctx context.Context, bookingID int64) (*models.Transaction, error)
	ListByBuyer(ctx context.Context, buyerID int64) ([]models.Transaction, error)
}

// CaptureRepository finalizes a paid booking. The booking update, the
// conditional ticket decrement and the transaction insert commit together
// or not at all.
type CaptureRepository interface {
	Finalize(ctx context.Context, capture models.Capture) (*models.Booking, *models.Transaction, error)
}
