package payment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
	pkgerrors "github.com/MarufurRahmanRahat/ticket-bari-server/pkg/errors"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const eventPaymentIntentSucceeded = "payment_intent.succeeded"

type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Parse verifies the signature and converts a succeeded payment intent into
// a PaymentEvent. Other event types yield a nil event and no error.
func (v *WebhookVerifier) Parse(payload []byte, signature string) (*models.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrUnauthorized, err)
	}
	if string(event.Type) != eventPaymentIntentSucceeded {
		return nil, nil
	}
	if event.Data == nil {
		return nil, pkgerrors.Invalid("event %s has no data", event.ID)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, pkgerrors.Invalid("decode payment intent: %v", err)
	}

	bookingID, err := strconv.ParseInt(pi.Metadata[MetadataBookingID], 10, 64)
	if err != nil {
		return nil, pkgerrors.Invalid("payment intent %s has no booking_id", pi.ID)
	}
	buyerID, err := strconv.ParseInt(pi.Metadata[MetadataBuyerID], 10, 64)
	if err != nil {
		return nil, pkgerrors.Invalid("payment intent %s has no buyer_id", pi.ID)
	}

	eventID := event.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	return &models.PaymentEvent{
		EventID:    eventID,
		BookingID:  bookingID,
		BuyerID:    buyerID,
		IntentID:   pi.ID,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}, nil
}
