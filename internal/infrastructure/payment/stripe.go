package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/observability"
	pkgerrors "github.com/MarufurRahmanRahat/ticket-bari-server/pkg/errors"
	"github.com/stripe/stripe-go/v82"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type StripeGateway struct {
	client  *stripe.Client
	timeout time.Duration
}

func NewStripeGateway(secretKey string, timeout time.Duration) *StripeGateway {
	return NewStripeGatewayWithClient(stripe.NewClient(secretKey), timeout)
}

func NewStripeGatewayWithClient(client *stripe.Client, timeout time.Duration) *StripeGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StripeGateway{client: client, timeout: timeout}
}

func (g *StripeGateway) CreateChargeIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (intent *ChargeIntent, err error) {
	ctx, span := otel.Tracer("stripe-gateway").Start(ctx, "CreateChargeIntent")
	span.SetAttributes(attribute.Int64("amount", amount), attribute.String("currency", currency))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	defer func() { observeGateway("create_intent", start, err) }()

	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create payment intent failed")
		slog.Error("failed to create payment intent", "amount", amount, "currency", currency, "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrPaymentGateway, err)
	}

	slog.Info("payment intent created", "intent_id", pi.ID, "amount", amount, "currency", currency)
	return &ChargeIntent{IntentID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) RetrieveChargeStatus(ctx context.Context, intentID string) (status *ChargeStatus, err error) {
	ctx, span := otel.Tracer("stripe-gateway").Start(ctx, "RetrieveChargeStatus")
	span.SetAttributes(attribute.String("intent_id", intentID))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	defer func() { observeGateway("retrieve_intent", start, err) }()

	pi, err := g.client.V1PaymentIntents.Retrieve(ctx, intentID, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieve payment intent failed")
		slog.Error("failed to retrieve payment intent", "intent_id", intentID, "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrPaymentGateway, err)
	}
	return chargeStatusFromIntent(pi), nil
}

func chargeStatusFromIntent(pi *stripe.PaymentIntent) *ChargeStatus {
	chargeID := pi.ID
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		chargeID = pi.LatestCharge.ID
	}
	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}
	return &ChargeStatus{
		IntentID:     pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       mapStripeStatus(pi.Status),
		ChargeID:     chargeID,
		Amount:       amount,
		Currency:     strings.ToLower(string(pi.Currency)),
		Metadata:     pi.Metadata,
	}
}

func mapStripeStatus(s stripe.PaymentIntentStatus) IntentStatus {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return StatusProcessing
	case stripe.PaymentIntentStatusCanceled:
		return StatusCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture:
		return StatusPending
	default:
		return StatusFailed
	}
}

func observeGateway(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.GatewayDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}
