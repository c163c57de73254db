package handler

import (
	"context"
	"net/http"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
)

type createBookingRequest struct {
	TicketID int64 `json:"ticket_id" validate:"required,gt=0"`
	Quantity int32 `json:"quantity" validate:"required,gte=1"`
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	identity, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req createBookingRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	booking, err := h.bookings.Create(r.Context(), identity.UserID, req.TicketID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	identity, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	booking, err := h.bookings.Get(r.Context(), identity, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	identity, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	bookings, err := h.bookings.List(r.Context(), identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (h *Handler) AcceptBooking(w http.ResponseWriter, r *http.Request) {
	h.decideBooking(w, r, h.bookings.Accept)
}

func (h *Handler) RejectBooking(w http.ResponseWriter, r *http.Request) {
	h.decideBooking(w, r, h.bookings.Reject)
}

func (h *Handler) decideBooking(w http.ResponseWriter, r *http.Request, decide func(ctx context.Context, vendorID, bookingID int64) (*models.Booking, error)) {
	identity, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	booking, err := decide(r.Context(), identity.UserID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	identity, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.bookings.Cancel(r.Context(), identity.UserID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
