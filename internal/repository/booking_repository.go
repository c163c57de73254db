package repository

import (
	"context"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	ListByBuyer(ctx context.Context, buyerID int64) ([]models.Booking, error)
	ListByVendor(ctx context.Context, vendorID int64) ([]models.Booking, error)
	// Transition applies action to a booking currently in from. It fails with
	// a TransitionError when the stored status is no longer from.
	Transition(ctx context.Context, id int64, from models.BookingStatus, action models.BookingAction) (*models.Booking, error)
	// DeletePending removes the booking only while it is still pending.
	DeletePending(ctx context.Context, id int64) error
	SetPaymentIntent(ctx context.Context, id int64, intentID string) error
}
