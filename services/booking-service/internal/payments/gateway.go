package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrGatewayUnavailable marks transport or authentication failures talking to the gateway.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Metadata keys attached to every intent.
const (
	MetadataAppointmentID = "appointmentId"
	MetadataProviderID    = "providerId"
)

type Intent struct {
	ID           string
	ClientSecret string
}

// Confirmation is the gateway's view of an intent. Amount and AppointmentID are zero when the
// gateway cannot report them.
type Confirmation struct {
	Succeeded     bool
	Reference     string
	Amount        int64
	AppointmentID string
}

// Gateway is the seam between the booking engine and a payment processor.
// Confirm is a query and must be safe to call repeatedly.
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string, idempotencyKey string) (Intent, error)
	Confirm(ctx context.Context, intentID string) (Confirmation, error)
}

type Config struct {
	Provider        string
	StripeSecretKey string
	MockLatency     time.Duration
}

// New selects the gateway once at startup.
func New(cfg Config) (Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "mock":
		return NewMockGateway(cfg.MockLatency), nil
	case "stripe":
		if strings.TrimSpace(cfg.StripeSecretKey) == "" {
			return nil, errors.New("stripe payment provider requires STRIPE_SECRET_KEY")
		}
		return NewStripeGateway(cfg.StripeSecretKey), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}
