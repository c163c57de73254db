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

const ticketColumns = `id, vendor_id, title, origin, destination, transport_mode, unit_price, quantity, departure_date, departure_time, approval_status, created_at, updated_at`

type PostgresTicketRepository struct {
	db *sql.DB
}

func NewPostgresTicketRepository(db *sql.DB) *PostgresTicketRepository {
	return &PostgresTicketRepository{db: db}
}

func scanTicket(row rowScanner) (*models.Ticket, error) {
	var t models.Ticket
	err := row.Scan(&t.ID, &t.VendorID, &t.Title, &t.Origin, &t.Destination, &t.TransportMode,
		&t.UnitPrice, &t.Quantity, &t.DepartureDate, &t.DepartureTime, &t.Approval, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresTicketRepository) Create(ctx context.Context, ticket *models.Ticket) (err error) {
	ctx, done := instrument(ctx, "ticket-repository", "CreateTicket")
	defer done(&err)

	if ticket == nil {
		err = pkgerrors.ErrNilTicket
		slog.Error("failed to create ticket", "method", "Create", "error", err)
		return err
	}

	query := `INSERT INTO tickets (vendor_id, title, origin, destination, transport_mode, unit_price, quantity, departure_date, departure_time, approval_status) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id, created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query,
		ticket.VendorID, ticket.Title, ticket.Origin, ticket.Destination, ticket.TransportMode,
		ticket.UnitPrice, ticket.Quantity, ticket.DepartureDate, ticket.DepartureTime, ticket.Approval,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	if err != nil {
		slog.Error("failed to create ticket", "method", "Create", "vendor_id", ticket.VendorID, "error", err)
		return fmt.Errorf("failed to create ticket: %w", err)
	}

	slog.Info("ticket created", "method", "Create", "ticket_id", ticket.ID, "vendor_id", ticket.VendorID)
	return nil
}

func (r *PostgresTicketRepository) GetByID(ctx context.Context, id int64) (ticket *models.Ticket, err error) {
	ctx, done := instrument(ctx, "ticket-repository", "GetTicketByID", attribute.Int64("ticket_id", id))
	defer done(&err)

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	ticket, err = scanTicket(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrTicketNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get ticket by id", "method", "GetByID", "ticket_id", id, "error", err)
		return nil, fmt.Errorf("failed to get ticket by id: %w", err)
	}
	return ticket, nil
}

func (r *PostgresTicketRepository) Update(ctx context.Context, ticket *models.Ticket, expectedQuantity *int32) (err error) {
	if ticket == nil {
		return pkgerrors.ErrNilTicket
	}
	ctx, done := instrument(ctx, "ticket-repository", "UpdateTicket", attribute.Int64("ticket_id", ticket.ID))
	defer done(&err)

	// Quantity is otherwise owned by the capture decrement, so a plain edit
	// never writes it back.
	var row *sql.Row
	if expectedQuantity == nil {
		query := `UPDATE tickets SET title = $1, origin = $2, destination = $3, transport_mode = $4, unit_price = $5, departure_date = $6, departure_time = $7, approval_status = $8, updated_at = now() WHERE id = $9 RETURNING quantity, updated_at`
		row = r.db.QueryRowContext(ctx, query,
			ticket.Title, ticket.Origin, ticket.Destination, ticket.TransportMode, ticket.UnitPrice,
			ticket.DepartureDate, ticket.DepartureTime, ticket.Approval, ticket.ID)
	} else {
		query := `UPDATE tickets SET title = $1, origin = $2, destination = $3, transport_mode = $4, unit_price = $5, departure_date = $6, departure_time = $7, approval_status = $8, quantity = $9, updated_at = now() WHERE id = $10 AND quantity = $11 RETURNING quantity, updated_at`
		row = r.db.QueryRowContext(ctx, query,
			ticket.Title, ticket.Origin, ticket.Destination, ticket.TransportMode, ticket.UnitPrice,
			ticket.DepartureDate, ticket.DepartureTime, ticket.Approval, ticket.Quantity, ticket.ID, *expectedQuantity)
	}

	err = row.Scan(&ticket.Quantity, &ticket.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		if expectedQuantity == nil {
			err = pkgerrors.ErrTicketNotFound
			return err
		}
		exists, existsErr := ticketExists(ctx, r.db, ticket.ID)
		if existsErr != nil {
			err = existsErr
			return err
		}
		if !exists {
			err = pkgerrors.ErrTicketNotFound
			return err
		}
		slog.Warn("ticket quantity changed before edit", "method", "Update", "ticket_id", ticket.ID, "expected", *expectedQuantity)
		err = pkgerrors.ErrInventoryChanged
		return err
	}
	if err != nil {
		slog.Error("failed to update ticket", "method", "Update", "ticket_id", ticket.ID, "error", err)
		return fmt.Errorf("failed to update ticket: %w", err)
	}

	slog.Info("ticket updated", "method", "Update", "ticket_id", ticket.ID, "quantity", ticket.Quantity)
	return nil
}

func (r *PostgresTicketRepository) SetApproval(ctx context.Context, id int64, status models.ApprovalStatus) (ticket *models.Ticket, err error) {
	ctx, done := instrument(ctx, "ticket-repository", "SetTicketApproval",
		attribute.Int64("ticket_id", id), attribute.String("approval_status", string(status)))
	defer done(&err)

	query := `UPDATE tickets SET approval_status = $1, updated_at = now() WHERE id = $2 RETURNING ` + ticketColumns
	ticket, err = scanTicket(r.db.QueryRowContext(ctx, query, status, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrTicketNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to set ticket approval", "method", "SetApproval", "ticket_id", id, "error", err)
		return nil, fmt.Errorf("failed to set ticket approval: %w", err)
	}

	slog.Info("ticket approval changed", "method", "SetApproval", "ticket_id", id, "approval_status", status)
	return ticket, nil
}

func (r *PostgresTicketRepository) Delete(ctx context.Context, id int64) (err error) {
	ctx, done := instrument(ctx, "ticket-repository", "DeleteTicket", attribute.Int64("ticket_id", id))
	defer done(&err)

	query := `DELETE FROM tickets WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM bookings WHERE ticket_id = $1 AND status = $2 AND payment_status = $3)`
	res, err := r.db.ExecContext(ctx, query, id, models.BookingAccepted, models.PaymentUnpaid)
	if err != nil {
		slog.Error("failed to delete ticket", "method", "Delete", "ticket_id", id, "error", err)
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	if n == 0 {
		exists, existsErr := ticketExists(ctx, r.db, id)
		switch {
		case existsErr != nil:
			err = existsErr
		case !exists:
			err = pkgerrors.ErrTicketNotFound
		default:
			slog.Warn("ticket has bookings awaiting payment", "method", "Delete", "ticket_id", id)
			err = pkgerrors.ErrTicketInUse
		}
		return err
	}

	slog.Info("ticket deleted", "method", "Delete", "ticket_id", id)
	return nil
}

func ticketExists(ctx context.Context, q querier, id int64) (bool, error) {
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check ticket: %w", err)
	}
	return exists, nil
}

// decrementQuantity is a single conditional read-modify-write; it never
// drives quantity below zero.
func decrementQuantity(ctx context.Context, q querier, id int64, qty int32) (int32, error) {
	if qty < 1 {
		return 0, pkgerrors.Invalid("quantity must be at least 1")
	}

	var remaining int32
	query := `UPDATE tickets SET quantity = quantity - $1, updated_at = now() WHERE id = $2 AND quantity >= $1 RETURNING quantity`
	err := q.QueryRowContext(ctx, query, qty, id).Scan(&remaining)
	if err == nil {
		slog.Info("ticket quantity decremented", "ticket_id", id, "quantity", qty, "remaining", remaining)
		return remaining, nil
	}
	if !stderrors.Is(err, sql.ErrNoRows) {
		slog.Error("failed to decrement ticket quantity", "ticket_id", id, "error", err)
		return 0, fmt.Errorf("failed to decrement ticket quantity: %w", err)
	}

	exists, err := ticketExists(ctx, q, id)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, pkgerrors.ErrTicketNotFound
	}
	slog.Warn("insufficient ticket quantity", "ticket_id", id, "requested", qty)
	return 0, pkgerrors.ErrInsufficientInventory
}
