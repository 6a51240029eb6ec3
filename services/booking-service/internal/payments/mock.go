package payments

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/bookly/libs/otel"
	"go.opentelemetry.io/otel/attribute"
)

const mockIntentPrefix = "pi_mock_"

// MockGateway simulates a processor: it sleeps for the configured latency and reports every
// pi_mock_ intent as succeeded. Intents issued by this instance also report amount and appointment.
type MockGateway struct {
	latency time.Duration
	now     func() time.Time

	mu      sync.Mutex
	intents map[string]mockIntent
	byKey   map[string]Intent
}

type mockIntent struct {
	amount        int64
	appointmentID string
}

func NewMockGateway(latency time.Duration) *MockGateway {
	return &MockGateway{
		latency: latency,
		now:     time.Now,
		intents: map[string]mockIntent{},
		byKey:   map[string]Intent{},
	}
}

func (g *MockGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string, idempotencyKey string) (Intent, error) {
	ctx, span := otelx.StartClientSpan(ctx, "payments.mock", "payments.create_intent",
		attribute.Int64("payment.amount", amount),
		attribute.String("payment.currency", currency),
	)
	if err := g.sleep(ctx); err != nil {
		otelx.EndSpan(span, err)
		return Intent{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	defer span.End()
	if existing, ok := g.byKey[idempotencyKey]; ok && idempotencyKey != "" {
		return existing, nil
	}

	id := fmt.Sprintf("%s%d_%s", mockIntentPrefix, g.now().UnixNano(), randomSuffix())
	intent := Intent{ID: id, ClientSecret: id + "_secret_" + randomSuffix()}
	g.intents[id] = mockIntent{amount: amount, appointmentID: metadata[MetadataAppointmentID]}
	if idempotencyKey != "" {
		g.byKey[idempotencyKey] = intent
	}
	return intent, nil
}

func (g *MockGateway) Confirm(ctx context.Context, intentID string) (Confirmation, error) {
	ctx, span := otelx.StartClientSpan(ctx, "payments.mock", "payments.confirm",
		attribute.String("payment.intent_id", intentID),
	)
	if err := g.sleep(ctx); err != nil {
		otelx.EndSpan(span, err)
		return Confirmation{}, err
	}
	defer span.End()

	if !strings.HasPrefix(intentID, mockIntentPrefix) {
		return Confirmation{Succeeded: false, Reference: intentID}, nil
	}
	g.mu.Lock()
	issued, ok := g.intents[intentID]
	g.mu.Unlock()

	conf := Confirmation{Succeeded: true, Reference: intentID}
	if ok {
		conf.Amount = issued.amount
		conf.AppointmentID = issued.appointmentID
	}
	return conf, nil
}

func (g *MockGateway) sleep(ctx context.Context) error {
	if g.latency <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return nil
	}
	t := time.NewTimer(g.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, ctx.Err())
	case <-t.C:
		return nil
	}
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}
