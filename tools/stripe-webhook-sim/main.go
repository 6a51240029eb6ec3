// Command stripe-webhook-sim posts signed Stripe payment events for an appointment to the
// booking service, for local testing without the Stripe CLI.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	var (
		baseURL     = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "booking service base url")
		evtType     = flag.String("type", getenv("STRIPE_EVENT_TYPE", string(stripe.EventTypePaymentIntentSucceeded)), "stripe event type")
		appointment = flag.String("appointment-id", getenv("APPOINTMENT_ID", ""), "appointmentId metadata")
		intentID    = flag.String("intent-id", getenv("PAYMENT_INTENT_ID", ""), "payment intent id (pi_...)")
		amount      = flag.Int64("amount", 5000, "amount in minor units")
		secret      = flag.String("secret", getenv("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
		eventID     = flag.String("event-id", "", "event id; reuse one to exercise deduplication")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*intentID) == "" {
		fatal("PAYMENT_INTENT_ID is required")
	}

	now := time.Now().UTC()
	id := *eventID
	if id == "" {
		id = fmt.Sprintf("evt_test_%d", now.UnixNano())
	}

	payload, err := buildEventJSON(id, stripe.EventType(*evtType), now, *appointment, *intentID, *amount)
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/payments/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	fmt.Printf("event=%s status=%d body=%s\n", id, resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildEventJSON(eventID string, eventType stripe.EventType, t time.Time, appointmentID, intentID string, amount int64) ([]byte, error) {
	var object map[string]any
	switch eventType {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		if strings.TrimSpace(appointmentID) == "" {
			return nil, fmt.Errorf("%s requires APPOINTMENT_ID", eventType)
		}
		status := "succeeded"
		if eventType == stripe.EventTypePaymentIntentPaymentFailed {
			status = "requires_payment_method"
		}
		object = map[string]any{
			"id":       intentID,
			"object":   "payment_intent",
			"amount":   amount,
			"currency": "usd",
			"status":   status,
			"metadata": map[string]any{"appointmentId": appointmentID},
		}
	case stripe.EventTypeChargeRefunded:
		object = map[string]any{
			"id":              "ch_test_" + strings.TrimPrefix(intentID, "pi_"),
			"object":          "charge",
			"amount":          amount,
			"amount_refunded": amount,
			"refunded":        true,
			"payment_intent":  intentID,
		}
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        string(eventType),
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
