package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	otelx "github.com/md-rashed-zaman/bookly/libs/otel"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.opentelemetry.io/otel/attribute"
)

type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string, idempotencyKey string) (Intent, error) {
	ctx, span := otelx.StartClientSpan(ctx, "payments.stripe", "payments.create_intent",
		attribute.Int64("payment.amount", amount),
		attribute.String("payment.currency", currency),
	)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if idempotencyKey != "" {
		params.IdempotencyKey = stripe.String(idempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		err = classify(err)
		otelx.EndSpan(span, err)
		return Intent{}, err
	}
	span.End()
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) Confirm(ctx context.Context, intentID string) (Confirmation, error) {
	ctx, span := otelx.StartClientSpan(ctx, "payments.stripe", "payments.confirm",
		attribute.String("payment.intent_id", intentID),
	)

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		if isNotFound(err) {
			span.End()
			return Confirmation{Succeeded: false, Reference: intentID}, nil
		}
		err = classify(err)
		otelx.EndSpan(span, err)
		return Confirmation{}, err
	}
	span.End()
	return confirmationFromIntent(pi), nil
}

func confirmationFromIntent(pi *stripe.PaymentIntent) Confirmation {
	return Confirmation{
		Succeeded:     pi.Status == stripe.PaymentIntentStatusSucceeded,
		Reference:     pi.ID,
		Amount:        pi.Amount,
		AppointmentID: pi.Metadata[MetadataAppointmentID],
	}
}

func isNotFound(err error) bool {
	var se *stripe.Error
	return errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound
}

// classify keeps card and request errors distinct from outages; both reach the engine as
// gateway failures, but only outages wrap ErrGatewayUnavailable.
func classify(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode > 0 && se.HTTPStatusCode < http.StatusInternalServerError &&
		se.HTTPStatusCode != http.StatusUnauthorized && se.HTTPStatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("stripe rejected request: %w", err)
	}
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}
