package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/repository"
	pkgerrors "github.com/MarufurRahmanRahat/ticket-bari-server/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type TicketService interface {
	Create(ctx context.Context, vendorID int64, ticket *models.Ticket) (*models.Ticket, error)
	Get(ctx context.Context, ticketID int64) (*models.Ticket, error)
	Update(ctx context.Context, vendorID, ticketID int64, changes TicketChanges) (*models.Ticket, error)
	Delete(ctx context.Context, vendorID, ticketID int64) error
	SetApproval(ctx context.Context, ticketID int64, status models.ApprovalStatus) (*models.Ticket, error)
}

// TicketChanges holds the fields a vendor edit sets; nil fields are left as is.
type TicketChanges struct {
	Title         *string
	Origin        *string
	Destination   *string
	TransportMode *models.TransportMode
	UnitPrice     *int64
	Quantity      *int32
	DepartureDate *string
	DepartureTime *string
}

func (c TicketChanges) apply(t *models.Ticket) {
	if c.Title != nil {
		t.Title = *c.Title
	}
	if c.Origin != nil {
		t.Origin = *c.Origin
	}
	if c.Destination != nil {
		t.Destination = *c.Destination
	}
	if c.TransportMode != nil {
		t.TransportMode = *c.TransportMode
	}
	if c.UnitPrice != nil {
		t.UnitPrice = *c.UnitPrice
	}
	if c.Quantity != nil {
		t.Quantity = *c.Quantity
	}
	if c.DepartureDate != nil {
		t.DepartureDate = *c.DepartureDate
	}
	if c.DepartureTime != nil {
		t.DepartureTime = *c.DepartureTime
	}
}

type ticketService struct {
	tickets repository.TicketRepository
}

func NewTicketService(tickets repository.TicketRepository) *ticketService {
	return &ticketService{tickets: tickets}
}

// Create lists a new ticket for the vendor. It starts pending admin approval.
func (s *ticketService) Create(ctx context.Context, vendorID int64, ticket *models.Ticket) (*models.Ticket, error) {
	tracer := otel.Tracer("ticket-service")
	ctx, span := tracer.Start(ctx, "CreateTicket")
	span.SetAttributes(attribute.Int64("vendor_id", vendorID))
	defer span.End()

	if ticket == nil {
		return nil, pkgerrors.ErrNilTicket
	}
	ticket.ID = 0
	ticket.VendorID = vendorID
	ticket.Approval = models.ApprovalPending
	if err := ticket.Validate(); err != nil {
		err = pkgerrors.Invalid("%v", err)
		failSpan(span, err, "invalid ticket")
		return nil, err
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		failSpan(span, err, "ticket creation failed")
		slog.Error("failed to create ticket", "vendor_id", vendorID, "error", err)
		return nil, err
	}

	slog.Info("ticket created", "ticket_id", ticket.ID, "vendor_id", vendorID)
	return ticket, nil
}

func (s *ticketService) Get(ctx context.Context, ticketID int64) (*models.Ticket, error) {
	tracer := otel.Tracer("ticket-service")
	ctx, span := tracer.Start(ctx, "GetTicket")
	span.SetAttributes(attribute.Int64("ticket_id", ticketID))
	defer span.End()

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		failSpan(span, err, "ticket lookup failed")
		return nil, err
	}
	return ticket, nil
}

// Update applies a vendor edit. Editing an approved ticket sends it back for
// approval. Existing bookings keep the terms frozen in their snapshots.
func (s *ticketService) Update(ctx context.Context, vendorID, ticketID int64, changes TicketChanges) (*models.Ticket, error) {
	tracer := otel.Tracer("ticket-service")
	ctx, span := tracer.Start(ctx, "UpdateTicket")
	span.SetAttributes(attribute.Int64("vendor_id", vendorID), attribute.Int64("ticket_id", ticketID))
	defer span.End()

	ticket, err := s.ownedTicket(ctx, vendorID, ticketID)
	if err != nil {
		failSpan(span, err, "ticket not editable")
		return nil, err
	}

	// Quantity is written only for an explicit change, guarded on the value
	// read here so a concurrent capture is never undone.
	var expectedQuantity *int32
	if changes.Quantity != nil {
		read := ticket.Quantity
		expectedQuantity = &read
	}

	changes.apply(ticket)
	if err := ticket.Validate(); err != nil {
		err = pkgerrors.Invalid("%v", err)
		failSpan(span, err, "invalid ticket")
		return nil, err
	}
	if ticket.Approval == models.ApprovalApproved {
		ticket.Approval = models.ApprovalPending
	}

	if err := s.tickets.Update(ctx, ticket, expectedQuantity); err != nil {
		failSpan(span, err, "ticket update failed")
		slog.Error("failed to update ticket", "ticket_id", ticketID, "error", err)
		return nil, err
	}

	slog.Info("ticket updated", "ticket_id", ticketID, "vendor_id", vendorID, "approval_status", ticket.Approval)
	return ticket, nil
}

// Delete removes a vendor's ticket unless accepted bookings of it are still
// awaiting payment.
func (s *ticketService) Delete(ctx context.Context, vendorID, ticketID int64) error {
	tracer := otel.Tracer("ticket-service")
	ctx, span := tracer.Start(ctx, "DeleteTicket")
	span.SetAttributes(attribute.Int64("vendor_id", vendorID), attribute.Int64("ticket_id", ticketID))
	defer span.End()

	if _, err := s.ownedTicket(ctx, vendorID, ticketID); err != nil {
		failSpan(span, err, "ticket not deletable")
		return err
	}
	if err := s.tickets.Delete(ctx, ticketID); err != nil {
		failSpan(span, err, "ticket deletion failed")
		slog.Error("failed to delete ticket", "ticket_id", ticketID, "error", err)
		return err
	}

	slog.Info("ticket deleted", "ticket_id", ticketID, "vendor_id", vendorID)
	return nil
}

// SetApproval records an admin decision on a ticket.
func (s *ticketService) SetApproval(ctx context.Context, ticketID int64, status models.ApprovalStatus) (*models.Ticket, error) {
	tracer := otel.Tracer("ticket-service")
	ctx, span := tracer.Start(ctx, "SetTicketApproval")
	span.SetAttributes(attribute.Int64("ticket_id", ticketID), attribute.String("approval_status", string(status)))
	defer span.End()

	if status != models.ApprovalApproved && status != models.ApprovalRejected {
		err := pkgerrors.Invalid("approval status must be approved or rejected, got %q", status)
		failSpan(span, err, "invalid approval status")
		return nil, err
	}

	ticket, err := s.tickets.SetApproval(ctx, ticketID, status)
	if err != nil {
		failSpan(span, err, "approval update failed")
		slog.Error("failed to set ticket approval", "ticket_id", ticketID, "error", err)
		return nil, err
	}

	slog.Info("ticket approval set", "ticket_id", ticketID, "approval_status", status)
	return ticket, nil
}

// ownedTicket loads a ticket the vendor may still modify. Rejected tickets
// are frozen.
func (s *ticketService) ownedTicket(ctx context.Context, vendorID, ticketID int64) (*models.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.VendorID != vendorID {
		slog.Warn("ticket modification by non-owner", "ticket_id", ticketID, "vendor_id", vendorID)
		return nil, pkgerrors.ErrForbidden
	}
	if ticket.Approval == models.ApprovalRejected {
		return nil, fmt.Errorf("%w: ticket %d was rejected", pkgerrors.ErrForbidden, ticketID)
	}
	return ticket, nil
}
