package handler

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/kafka"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/observability"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
	pkgerrors "github.com/MarufurRahmanRahat/ticket-bari-server/pkg/errors"
)

const maxWebhookBody = 64 << 10

type intentRequest struct {
	BookingID int64 `json:"booking_id" validate:"required,gt=0"`
}

type confirmRequest struct {
	BookingID int64  `json:"booking_id" validate:"required,gt=0"`
	IntentID  string `json:"intent_id" validate:"required"`
}

type confirmResponse struct {
	Booking     *models.Booking     `json:"booking"`
	Transaction *models.Transaction `json:"transaction"`
}

func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	identity, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req intentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	intent, err := h.payments.CreateIntent(r.Context(), identity.UserID, req.BookingID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	identity, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req confirmRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	booking, txn, err := h.payments.Confirm(r.Context(), identity.UserID, req.BookingID, req.IntentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Booking: booking, Transaction: txn})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	identity, err := caller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	txs, err := h.transactions.ListByBuyer(r.Context(), identity.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
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

	txn, err := h.transactions.Get(r.Context(), identity.UserID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// GetBookingTransaction returns the receipt recorded when the buyer's booking
// was paid.
func (h *Handler) GetBookingTransaction(w http.ResponseWriter, r *http.Request) {
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

	txn, err := h.transactions.GetByBooking(r.Context(), identity.UserID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// StripeWebhook verifies the provider signature and hands succeeded intents
// to the capture consumer through Kafka. A publish failure answers 500 so the
// provider redelivers.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.writeError(w, r, pkgerrors.Invalid("unreadable webhook body: %v", err))
		return
	}

	event, err := h.webhooks.Parse(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrUnauthorized) {
			err = pkgerrors.Invalid("%v", err)
		}
		h.writeError(w, r, err)
		return
	}
	if event == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.producer.Send(r.Context(), kafka.TopicPaymentEvents, strconv.FormatInt(event.BookingID, 10), eventBytes); err != nil {
		h.writeError(w, r, err)
		return
	}

	observability.WithContext(r.Context()).Info("payment event queued",
		"event_id", event.EventID,
		"booking_id", event.BookingID,
		"intent_id", event.IntentID)
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
