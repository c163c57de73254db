package repository

import (
	"context"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
)

type TicketRepository interface {
	Create(ctx context.Context, ticket *models.Ticket) error
	GetByID(ctx context.Context, id int64) (*models.Ticket, error)
	// Update writes the vendor-editable terms. Quantity is written only when
	// expectedQuantity is set, and only if the stored quantity still equals
	// it; otherwise the stored quantity is kept and copied into ticket.
	Update(ctx context.Context, ticket *models.Ticket, expectedQuantity *int32) error
	SetApproval(ctx context.Context, id int64, status models.ApprovalStatus) (*models.Ticket, error)
	// Delete refuses while accepted bookings of the ticket are still unpaid.
	Delete(ctx context.Context, id int64) error
}
