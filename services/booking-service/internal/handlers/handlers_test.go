package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/md-rashed-zaman/bookly/libs/auth"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/payments"
)

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw
}

func decodeBody(t *testing.T, rw *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &out), rw.Body.String())
	return out
}

const createBody = `{"serviceId":"` + serviceA + `","clientName":"Sam","clientEmail":"sam@example.com","clientPhone":"+15551234567","date":"2026-03-02","startTime":"09:00","notes":"first visit"}`

func TestCreateAppointment(t *testing.T) {
	h, engine, _, _ := newTestHandler()
	routes := h.Routes()

	rw := do(t, routes, http.MethodPost, "/api/v1/book/ana/appointment", createBody, map[string]string{"Idempotency-Key": "k1"})
	require.Equal(t, http.StatusCreated, rw.Code, rw.Body.String())
	appt := decodeBody(t, rw)["appointment"].(map[string]any)
	assert.Equal(t, apptA, appt["id"])
	assert.Equal(t, "pending", appt["paymentStatus"])
	assert.Equal(t, "ana", engine.lastCreate.Slug)
	assert.Equal(t, "k1", engine.lastCreate.IdempotencyKey)
	assert.Equal(t, booking.Client{Name: "Sam", Email: "sam@example.com", Phone: "+15551234567"}, engine.lastCreate.Client)
	assert.Equal(t, "first visit", engine.lastCreate.Notes)

	engine.createReplayed = true
	rw = do(t, routes, http.MethodPost, "/api/v1/book/ana/appointment", createBody, map[string]string{"Idempotency-Key": "k1"})
	assert.Equal(t, http.StatusOK, rw.Code)
}

func TestCreateAppointment_PublicErrorsAreGeneric(t *testing.T) {
	h, engine, _, _ := newTestHandler()
	routes := h.Routes()

	engine.createErr = apperr.SlotConflict("time slot already booked")
	rw := do(t, routes, http.MethodPost, "/api/v1/book/ana/appointment", createBody, nil)
	assert.Equal(t, http.StatusConflict, rw.Code)
	body := decodeBody(t, rw)
	assert.Equal(t, "booking failed", body["error"])
	assert.Equal(t, "slot_conflict", body["kind"])

	engine.createErr = apperr.NotFound("service not found")
	rw = do(t, routes, http.MethodPost, "/api/v1/book/ana/appointment", createBody, nil)
	assert.Equal(t, http.StatusNotFound, rw.Code)
	assert.Equal(t, "booking failed", decodeBody(t, rw)["error"])

	engine.createErr = errors.New("connection reset")
	rw = do(t, routes, http.MethodPost, "/api/v1/book/ana/appointment", createBody, nil)
	assert.Equal(t, http.StatusInternalServerError, rw.Code)
	assert.Equal(t, "internal", decodeBody(t, rw)["kind"])
}

func TestCreateAppointment_RejectsMalformedInput(t *testing.T) {
	h, _, _, _ := newTestHandler()
	routes := h.Routes()

	rw := do(t, routes, http.MethodPost, "/api/v1/book/ana/appointment",
		`{"serviceId":"x","clientName":"Sam","clientEmail":"sam@example.com","date":"2026-03-02","startTime":"09:00","price":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rw.Code, "unknown fields are rejected")

	rw = do(t, routes, http.MethodPost, "/api/v1/book/ana/appointment",
		`{"serviceId":"x","client":{"name":"Sam","email":"sam@example.com"},"date":"2026-03-02","startTime":"09:00"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rw.Code, "client fields are flat")

	rw = do(t, routes, http.MethodPost, "/api/v1/book/ana/appointment",
		`{"serviceId":"x","clientName":"Sam","clientEmail":"not-an-email","date":"2026-3-2","startTime":"9:00"}`, nil)
	require.Equal(t, http.StatusBadRequest, rw.Code)
	body := decodeBody(t, rw)
	assert.Equal(t, "validation", body["kind"])
	details := body["details"].(map[string]any)
	assert.Equal(t, "email", details["clientEmail"])
	assert.Equal(t, "date", details["date"])
	assert.Equal(t, "clock", details["startTime"])
}

func TestPlaceHold(t *testing.T) {
	h, _, _, _ := newTestHandler()
	rw := do(t, h.Routes(), http.MethodPost, "/api/v1/book/ana/holds",
		`{"serviceId":"`+serviceA+`","date":"2026-03-02","startTime":"09:00"}`, nil)
	require.Equal(t, http.StatusCreated, rw.Code)
	body := decodeBody(t, rw)
	assert.Equal(t, "hold-1", body["holdToken"])
	assert.Equal(t, "10:00", body["endTime"])
}

func TestPayments(t *testing.T) {
	h, engine, _, _ := newTestHandler()
	routes := h.Routes()

	rw := do(t, routes, http.MethodPost, "/api/v1/payments/intent", `{"amount":5000,"appointmentId":"`+apptA+`"}`, nil)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "pi_mock_1", decodeBody(t, rw)["intentId"])

	rw = do(t, routes, http.MethodPost, "/api/v1/payments/intent", `{"amount":0,"appointmentId":"`+apptA+`"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rw.Code)

	engine.intentErr = apperr.PaymentGateway(payments.ErrGatewayUnavailable, "payment gateway unavailable")
	rw = do(t, routes, http.MethodPost, "/api/v1/payments/intent", `{"amount":5000,"appointmentId":"`+apptA+`"}`, nil)
	assert.Equal(t, http.StatusBadGateway, rw.Code)
	assert.Equal(t, "payment_gateway", decodeBody(t, rw)["kind"])

	rw = do(t, routes, http.MethodPost, "/api/v1/payments/confirm", `{"intentId":"pi_mock_1","appointmentId":"`+apptA+`"}`, nil)
	require.Equal(t, http.StatusOK, rw.Code)
	body := decodeBody(t, rw)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "paid", body["appointment"].(map[string]any)["paymentStatus"])

	engine.confirmFn = func(string, string) (model.Appointment, error) {
		return model.Appointment{}, apperr.PaymentNotConfirmed("payment has not succeeded")
	}
	rw = do(t, routes, http.MethodPost, "/api/v1/payments/confirm", `{"intentId":"pi_x","appointmentId":"`+apptA+`"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rw.Code)
	body = decodeBody(t, rw)
	assert.Equal(t, "payment_not_confirmed", body["kind"])
	assert.Equal(t, "payment has not succeeded", body["error"])
}

func TestPublicBooking_CachedUntilCatalogChanges(t *testing.T) {
	h, _, catalog, _ := newTestHandler()
	routes := h.Routes()

	for i := 0; i < 2; i++ {
		rw := do(t, routes, http.MethodGet, "/api/v1/book/ana", "", nil)
		require.Equal(t, http.StatusOK, rw.Code)
		body := decodeBody(t, rw)
		assert.Equal(t, "ana", body["provider"].(map[string]any)["slug"])
		assert.Len(t, body["services"], 1)
	}
	assert.Equal(t, 1, catalog.reads())

	rw := do(t, routes, http.MethodPost, "/api/v1/services",
		`{"name":"Beard trim","durationMinutes":30,"priceAmount":1500}`, map[string]string{auth.ProviderIDHeader: providerA})
	require.Equal(t, http.StatusCreated, rw.Code, rw.Body.String())

	rw = do(t, routes, http.MethodGet, "/api/v1/book/ana", "", nil)
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Len(t, decodeBody(t, rw)["services"], 2)
	assert.Equal(t, 2, catalog.reads())

	rw = do(t, routes, http.MethodGet, "/api/v1/book/nobody", "", nil)
	assert.Equal(t, http.StatusNotFound, rw.Code)
}

func TestProviderRoutes_RequireProvider(t *testing.T) {
	h, _, _, _ := newTestHandler()
	routes := h.Routes()

	rw := do(t, routes, http.MethodGet, "/api/v1/services", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rw.Code)
	rw = do(t, routes, http.MethodPatch, "/api/v1/appointments/"+apptA, `{"status":"completed"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rw.Code)

	rw = do(t, routes, http.MethodPatch, "/api/v1/appointments/"+apptA, `{"status":"completed"}`, map[string]string{auth.ProviderIDHeader: providerB})
	assert.Equal(t, http.StatusNotFound, rw.Code, "other providers see not found")

	rw = do(t, routes, http.MethodPatch, "/api/v1/appointments/"+apptA, `{"status":"completed"}`, map[string]string{auth.ProviderIDHeader: providerA})
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "completed", decodeBody(t, rw)["appointment"].(map[string]any)["status"])

	rw = do(t, routes, http.MethodGet, "/api/v1/appointments/"+apptA, "", nil)
	assert.Equal(t, http.StatusOK, rw.Code, "checkout lookup is public")
}

func TestServices_UpdateAndDelete(t *testing.T) {
	h, _, _, _ := newTestHandler()
	routes := h.Routes()
	asA := map[string]string{auth.ProviderIDHeader: providerA}
	asB := map[string]string{auth.ProviderIDHeader: providerB}

	rw := do(t, routes, http.MethodPatch, "/api/v1/services/"+serviceA, `{"priceAmount":-1}`, asA)
	assert.Equal(t, http.StatusBadRequest, rw.Code)

	rw = do(t, routes, http.MethodPatch, "/api/v1/services/"+serviceA, `{"priceAmount":6000}`, asB)
	assert.Equal(t, http.StatusNotFound, rw.Code)

	rw = do(t, routes, http.MethodPatch, "/api/v1/services/"+serviceA, `{"priceAmount":6000}`, asA)
	require.Equal(t, http.StatusOK, rw.Code)
	svc := decodeBody(t, rw)["service"].(map[string]any)
	assert.EqualValues(t, 6000, svc["priceAmount"])
	assert.EqualValues(t, 60, svc["durationMinutes"], "absent fields are kept")

	rw = do(t, routes, http.MethodDelete, "/api/v1/services/"+serviceA, "", asA)
	assert.Equal(t, http.StatusNoContent, rw.Code)

	rw = do(t, routes, http.MethodGet, "/api/v1/services", "", asA)
	require.Equal(t, http.StatusOK, rw.Code)
	services := decodeBody(t, rw)["services"].([]any)
	require.Len(t, services, 1)
	assert.Equal(t, false, services[0].(map[string]any)["isActive"])
}

func TestSaveAvailability(t *testing.T) {
	h, _, _, _ := newTestHandler()
	routes := h.Routes()
	asA := map[string]string{auth.ProviderIDHeader: providerA}

	rw := do(t, routes, http.MethodPut, "/api/v1/availability", `[{"dayOfWeek":7,"startTime":"09:00","endTime":"12:00"}]`, asA)
	require.Equal(t, http.StatusBadRequest, rw.Code)
	assert.Equal(t, "max", decodeBody(t, rw)["details"].(map[string]any)["[0].dayOfWeek"])

	rw = do(t, routes, http.MethodPut, "/api/v1/availability", `[{"dayOfWeek":1,"startTime":"12:00","endTime":"09:00"}]`, asA)
	assert.Equal(t, http.StatusBadRequest, rw.Code)

	rw = do(t, routes, http.MethodPut, "/api/v1/availability",
		`[{"dayOfWeek":0,"startTime":"10:00","endTime":"14:00"},{"dayOfWeek":1,"startTime":"09:00","endTime":"17:00","isActive":false}]`, asA)
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	windows := decodeBody(t, rw)["availabilityWindows"].([]any)
	require.Len(t, windows, 2)
	assert.EqualValues(t, 0, windows[0].(map[string]any)["dayOfWeek"])
	assert.Equal(t, true, windows[0].(map[string]any)["isActive"])
	assert.Equal(t, false, windows[1].(map[string]any)["isActive"])

	rw = do(t, routes, http.MethodPut, "/api/v1/availability",
		`[{"dayOfWeek":3,"startTime":"08:00","endTime":"11:00"}]`, asA)
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())

	rw = do(t, routes, http.MethodGet, "/api/v1/availability", "", asA)
	require.Equal(t, http.StatusOK, rw.Code)
	windows = decodeBody(t, rw)["availabilityWindows"].([]any)
	require.Len(t, windows, 1, "windows left out of a save are gone")
	w := windows[0].(map[string]any)
	assert.EqualValues(t, 3, w["dayOfWeek"])
	assert.Equal(t, "08:00", w["startTime"])
	assert.Equal(t, "11:00", w["endTime"])
	assert.Equal(t, true, w["isActive"])

	rw = do(t, routes, http.MethodGet, "/api/v1/availability", "", map[string]string{auth.ProviderIDHeader: providerB})
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Empty(t, decodeBody(t, rw)["availabilityWindows"])
}

func TestSaveProfile_SlugTaken(t *testing.T) {
	h, _, _, _ := newTestHandler()
	routes := h.Routes()

	rw := do(t, routes, http.MethodPut, "/api/v1/profile", `{"slug":"bo","businessName":"Ana"}`, map[string]string{auth.ProviderIDHeader: providerA})
	assert.Equal(t, http.StatusBadRequest, rw.Code)
	assert.Contains(t, decodeBody(t, rw)["error"], "already taken")

	rw = do(t, routes, http.MethodPut, "/api/v1/profile", `{"slug":"ana-studio","businessName":"Ana","timezone":"UTC"}`, map[string]string{auth.ProviderIDHeader: providerA})
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "ana-studio", decodeBody(t, rw)["provider"].(map[string]any)["slug"])
}

func stripeEvent(t *testing.T, id string, eventType stripe.EventType, object map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"created":     time.Now().Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return payload, signed.Header
}

func TestStripeWebhook_PaymentSucceeded(t *testing.T) {
	h, engine, _, _ := newTestHandler()
	routes := h.Routes()

	payload, sig := stripeEvent(t, "evt_1", stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id":       "pi_123",
		"object":   "payment_intent",
		"status":   "succeeded",
		"metadata": map[string]any{payments.MetadataAppointmentID: apptA},
	})

	rw := do(t, routes, http.MethodPost, "/api/v1/payments/webhooks/stripe", string(payload), map[string]string{"Stripe-Signature": sig})
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	assert.Equal(t, []string{apptA + "/pi_123"}, engine.confirmed)

	rw = do(t, routes, http.MethodPost, "/api/v1/payments/webhooks/stripe", string(payload), map[string]string{"Stripe-Signature": sig})
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "duplicate", decodeBody(t, rw)["status"])
	assert.Len(t, engine.confirmed, 1)

	rw = do(t, routes, http.MethodPost, "/api/v1/payments/webhooks/stripe", string(payload), map[string]string{"Stripe-Signature": "t=1,v1=deadbeef"})
	assert.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestStripeWebhook_RetryableFailureIsRedelivered(t *testing.T) {
	h, engine, _, _ := newTestHandler()
	routes := h.Routes()

	engine.confirmFn = func(string, string) (model.Appointment, error) {
		return model.Appointment{}, apperr.PaymentGateway(payments.ErrGatewayUnavailable, "payment gateway unavailable")
	}
	payload, sig := stripeEvent(t, "evt_2", stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id":       "pi_456",
		"object":   "payment_intent",
		"metadata": map[string]any{payments.MetadataAppointmentID: apptA},
	})
	rw := do(t, routes, http.MethodPost, "/api/v1/payments/webhooks/stripe", string(payload), map[string]string{"Stripe-Signature": sig})
	assert.Equal(t, http.StatusInternalServerError, rw.Code)

	engine.confirmFn = nil
	rw = do(t, routes, http.MethodPost, "/api/v1/payments/webhooks/stripe", string(payload), map[string]string{"Stripe-Signature": sig})
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "ok", decodeBody(t, rw)["status"])
	assert.Len(t, engine.confirmed, 2)
}

func TestStripeWebhook_UnappliedPaymentIsAcknowledged(t *testing.T) {
	h, engine, catalog, _ := newTestHandler()
	routes := h.Routes()

	engine.confirmFn = func(string, string) (model.Appointment, error) {
		return model.Appointment{}, apperr.PaymentUnapplied("payment pi_late succeeded but the appointment payment is failed")
	}
	payload, sig := stripeEvent(t, "evt_late", stripe.EventTypePaymentIntentSucceeded, map[string]any{
		"id":       "pi_late",
		"object":   "payment_intent",
		"metadata": map[string]any{payments.MetadataAppointmentID: apptA},
	})
	rw := do(t, routes, http.MethodPost, "/api/v1/payments/webhooks/stripe", string(payload), map[string]string{"Stripe-Signature": sig})
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	assert.True(t, catalog.events[providerStripe+"/evt_late"], "the event stays recorded")

	rw = do(t, routes, http.MethodPost, "/api/v1/payments/webhooks/stripe", string(payload), map[string]string{"Stripe-Signature": sig})
	assert.Equal(t, "duplicate", decodeBody(t, rw)["status"])
	assert.Len(t, engine.confirmed, 1)
}

func TestStripeWebhook_ChargeRefunded(t *testing.T) {
	h, engine, _, _ := newTestHandler()
	payload, sig := stripeEvent(t, "evt_3", stripe.EventTypeChargeRefunded, map[string]any{
		"id":              "ch_1",
		"object":          "charge",
		"refunded":        true,
		"amount_refunded": 5000,
		"payment_intent":  "pi_123",
	})
	rw := do(t, h.Routes(), http.MethodPost, "/api/v1/payments/webhooks/stripe", string(payload), map[string]string{"Stripe-Signature": sig})
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	assert.Equal(t, []string{"pi_123"}, engine.refunded)
}
