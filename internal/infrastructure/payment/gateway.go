package payment

import "context"

type IntentStatus string

const (
	StatusPending    IntentStatus = "pending"
	StatusProcessing IntentStatus = "processing"
	StatusSucceeded  IntentStatus = "succeeded"
	StatusFailed     IntentStatus = "failed"
	StatusCanceled   IntentStatus = "canceled"
)

const (
	MetadataBookingID = "booking_id"
	MetadataBuyerID   = "buyer_id"
	MetadataTicketID  = "ticket_id"
)

type ChargeIntent struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
}

type ChargeStatus struct {
	IntentID     string
	ClientSecret string
	Status       IntentStatus
	// ChargeID identifies the captured charge; it falls back to the intent id.
	ChargeID string
	Amount   int64
	Currency string
	Metadata map[string]string
}

// Gateway is the external card-payment capability. Implementations bound
// every call with their own timeout and never retry.
type Gateway interface {
	CreateChargeIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*ChargeIntent, error)
	RetrieveChargeStatus(ctx context.Context, intentID string) (*ChargeStatus, error)
}
