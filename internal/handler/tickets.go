package handler

import (
	"net/http"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
	service "github.com/MarufurRahmanRahat/ticket-bari-server/internal/services"
)

type createTicketRequest struct {
	Title         string `json:"title" validate:"required"`
	Origin        string `json:"origin" validate:"required"`
	Destination   string `json:"destination" validate:"required"`
	TransportMode string `json:"transport_mode" validate:"required,oneof=bus train launch plane"`
	UnitPrice     int64  `json:"unit_price" validate:"gte=0"`
	Quantity      int32  `json:"quantity" validate:"gte=0"`
	DepartureDate string `json:"departure_date" validate:"required,datetime=2006-01-02"`
	DepartureTime string `json:"departure_time" validate:"required,datetime=15:04"`
}

type updateTicketRequest struct {
	Title         *string `json:"title" validate:"omitempty,min=1"`
	Origin        *string `json:"origin" validate:"omitempty,min=1"`
	Destination   *string `json:"destination" validate:"omitempty,min=1"`
	TransportMode *string `json:"transport_mode" validate:"omitempty,oneof=bus train launch plane"`
	UnitPrice     *int64  `json:"unit_price" validate:"omitempty,gte=0"`
	Quantity      *int32  `json:"quantity" validate:"omitempty,gte=0"`
	DepartureDate *string `json:"departure_date" validate:"omitempty,datetime=2006-01-02"`
	DepartureTime *string `json:"departure_time" validate:"omitempty,datetime=15:04"`
}

func (req updateTicketRequest) changes() service.TicketChanges {
	c := service.TicketChanges{
		Title:         req.Title,
		Origin:        req.Origin,
		Destination:   req.Destination,
		UnitPrice:     req.UnitPrice,
		Quantity:      req.Quantity,
		DepartureDate: req.DepartureDate,
		DepartureTime: req.DepartureTime,
	}
	if req.TransportMode != nil {
		mode := models.TransportMode(*req.TransportMode)
		c.TransportMode = &mode
	}
	return c
}

type approvalRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	identity, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req createTicketRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	ticket, err := h.tickets.Create(r.Context(), identity.UserID, &models.Ticket{
		Title:         req.Title,
		Origin:        req.Origin,
		Destination:   req.Destination,
		TransportMode: models.TransportMode(req.TransportMode),
		UnitPrice:     req.UnitPrice,
		Quantity:      req.Quantity,
		DepartureDate: req.DepartureDate,
		DepartureTime: req.DepartureTime,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ticket, err := h.tickets.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) UpdateTicket(w http.ResponseWriter, r *http.Request) {
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

	var req updateTicketRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	ticket, err := h.tickets.Update(r.Context(), identity.UserID, id, req.changes())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
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

	if err := h.tickets.Delete(r.Context(), identity.UserID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetTicketApproval(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req approvalRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	ticket, err := h.tickets.SetApproval(r.Context(), id, models.ApprovalStatus(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}
