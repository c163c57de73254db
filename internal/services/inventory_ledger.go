package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/repository"
	pkgerrors "github.com/MarufurRahmanRahat/ticket-bari-server/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// InventoryLedger is the only path through which ticket availability is read
// for a decision. Quantity is never cached; every check goes to the
// repository and expiry is evaluated against the clock at call time. Seats are
// consumed only by the capture transaction.
type InventoryLedger struct {
	tickets repository.TicketRepository
	loc     *time.Location
	now     Clock
}

func NewInventoryLedger(tickets repository.TicketRepository, loc *time.Location) *InventoryLedger {
	if loc == nil {
		loc = time.UTC
	}
	return &InventoryLedger{tickets: tickets, loc: loc, now: time.Now}
}

func (l *InventoryLedger) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	return l.tickets.GetByID(ctx, id)
}

// ReserveCheck loads the ticket and reports why qty cannot be booked against
// it right now, if it cannot.
func (l *InventoryLedger) ReserveCheck(ctx context.Context, ticketID int64, qty int32) (*models.Ticket, error) {
	ctx, span := otel.Tracer("inventory-ledger").Start(ctx, "ReserveCheck")
	span.SetAttributes(attribute.Int64("ticket_id", ticketID), attribute.Int("quantity", int(qty)))
	defer span.End()

	if qty < 1 {
		return nil, pkgerrors.Invalid("quantity must be at least 1")
	}

	ticket, err := l.tickets.GetByID(ctx, ticketID)
	if err != nil {
		failSpan(span, err, "ticket lookup failed")
		return nil, err
	}

	switch {
	case ticket.Approval != models.ApprovalApproved:
		err = pkgerrors.ErrNotApproved
	case ticket.Expired(l.now(), l.loc):
		err = pkgerrors.ErrExpired
	case qty > ticket.Quantity:
		err = pkgerrors.ErrInsufficientInventory
	}
	if err != nil {
		failSpan(span, err, "reserve check failed")
		slog.Warn("ticket cannot be reserved", "ticket_id", ticketID, "quantity", qty, "available", ticket.Quantity, "error", err)
		return ticket, err
	}
	return ticket, nil
}

// Available reports whether qty can currently be served by the live ticket,
// regardless of approval or departure.
func (l *InventoryLedger) Available(ctx context.Context, ticketID int64, qty int32) (bool, error) {
	ticket, err := l.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return false, err
	}
	return qty <= ticket.Quantity, nil
}
