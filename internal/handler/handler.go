package handler

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/auth"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/kafka"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/observability"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
	service "github.com/MarufurRahmanRahat/ticket-bari-server/internal/services"
	pkgerrors "github.com/MarufurRahmanRahat/ticket-bari-server/pkg/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// WebhookParser turns a signed provider callback into a payment event.
type WebhookParser interface {
	Parse(payload []byte, signature string) (*models.PaymentEvent, error)
}

type Handler struct {
	tickets      service.TicketService
	bookings     service.BookingService
	payments     service.PaymentService
	transactions service.TransactionService
	webhooks     WebhookParser
	producer     kafka.KafkaProducer
	validate     *validator.Validate
}

func NewHandler(
	tickets service.TicketService,
	bookings service.BookingService,
	payments service.PaymentService,
	transactions service.TransactionService,
	webhooks WebhookParser,
	producer kafka.KafkaProducer,
) *Handler {
	return &Handler{
		tickets:      tickets,
		bookings:     bookings,
		payments:     payments,
		transactions: transactions,
		webhooks:     webhooks,
		producer:     producer,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func errorStatus(err error) int {
	switch {
	case stderrors.Is(err, pkgerrors.ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, pkgerrors.ErrForbidden):
		return http.StatusForbidden
	case stderrors.Is(err, pkgerrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case stderrors.Is(err, pkgerrors.ErrInvalidTransition),
		stderrors.Is(err, pkgerrors.ErrExpired),
		stderrors.Is(err, pkgerrors.ErrInsufficientInventory),
		stderrors.Is(err, pkgerrors.ErrNotApproved),
		stderrors.Is(err, pkgerrors.ErrInvalidInput),
		stderrors.Is(err, pkgerrors.ErrPaymentNotCompleted),
		stderrors.Is(err, pkgerrors.ErrPaymentMismatch),
		stderrors.Is(err, pkgerrors.ErrNilTicket),
		stderrors.Is(err, pkgerrors.ErrNilBooking):
		return http.StatusBadRequest
	case stderrors.Is(err, pkgerrors.ErrAlreadyPaid),
		stderrors.Is(err, pkgerrors.ErrRequestInProgress),
		stderrors.Is(err, pkgerrors.ErrInventoryChanged),
		stderrors.Is(err, pkgerrors.ErrTicketInUse):
		return http.StatusConflict
	case stderrors.Is(err, pkgerrors.ErrPaymentGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	resp := errorResponse{Error: err.Error()}
	if current, ok := pkgerrors.CurrentStatus(err); ok {
		resp.Status = current
	}

	logger := observability.WithContext(r.Context(), "method", r.Method, "path", r.URL.Path, "status", status)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "error", err)
		if status == http.StatusInternalServerError {
			resp.Error = "internal server error"
		}
	default:
		logger.Warn("request rejected", "error", err)
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body into dst and runs the struct's validation tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return pkgerrors.Invalid("malformed request body: %v", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return pkgerrors.Invalid("field %s failed %s validation", fe.Field(), fe.Tag())
		}
		return pkgerrors.Invalid("%v", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, pkgerrors.Invalid("invalid id %q", raw)
	}
	return id, nil
}

func caller(r *http.Request) (auth.Identity, error) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Identity{}, fmt.Errorf("%w: user not authenticated", pkgerrors.ErrUnauthorized)
	}
	return identity, nil
}

func only(handler http.HandlerFunc, roles ...auth.Role) http.Handler {
	return auth.RequireRole(roles...)(handler)
}

// RegisterProtectedRoutes mounts the authenticated API. The caller applies
// the auth middleware to r.
func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.Handle("/tickets", only(h.CreateTicket, auth.RoleVendor)).Methods(http.MethodPost)
	r.HandleFunc("/tickets/{id:[0-9]+}", h.GetTicket).Methods(http.MethodGet)
	r.Handle("/tickets/{id:[0-9]+}", only(h.UpdateTicket, auth.RoleVendor)).Methods(http.MethodPut)
	r.Handle("/tickets/{id:[0-9]+}", only(h.DeleteTicket, auth.RoleVendor)).Methods(http.MethodDelete)
	r.Handle("/admin/tickets/{id:[0-9]+}/approval", only(h.SetTicketApproval, auth.RoleAdmin)).Methods(http.MethodPatch)

	r.Handle("/bookings", only(h.CreateBooking, auth.RoleBuyer)).Methods(http.MethodPost)
	r.Handle("/bookings", only(h.ListBookings, auth.RoleBuyer, auth.RoleVendor)).Methods(http.MethodGet)
	r.HandleFunc("/bookings/{id:[0-9]+}", h.GetBooking).Methods(http.MethodGet)
	r.Handle("/bookings/{id:[0-9]+}/accept", only(h.AcceptBooking, auth.RoleVendor)).Methods(http.MethodPatch)
	r.Handle("/bookings/{id:[0-9]+}/reject", only(h.RejectBooking, auth.RoleVendor)).Methods(http.MethodPatch)
	r.Handle("/bookings/{id:[0-9]+}", only(h.CancelBooking, auth.RoleBuyer)).Methods(http.MethodDelete)
	r.Handle("/bookings/{id:[0-9]+}/transaction", only(h.GetBookingTransaction, auth.RoleBuyer)).Methods(http.MethodGet)

	r.Handle("/payments/intent", only(h.CreatePaymentIntent, auth.RoleBuyer)).Methods(http.MethodPost)
	r.Handle("/payments/confirm", only(h.ConfirmPayment, auth.RoleBuyer)).Methods(http.MethodPost)
	r.Handle("/transactions", only(h.ListTransactions, auth.RoleBuyer)).Methods(http.MethodGet)
	r.Handle("/transactions/{id:[0-9]+}", only(h.GetTransaction, auth.RoleBuyer)).Methods(http.MethodGet)
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods(http.MethodPost)
}
