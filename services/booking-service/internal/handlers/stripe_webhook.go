package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookly/libs/httpx"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const providerStripe = "stripe"

// StripeWebhook applies asynchronous payment outcomes (no provider auth; the signature is the
// auth). Deliveries are deduplicated by event id; a delivery that fails with a retryable error
// is forgotten again so Stripe's retry is processed.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.cfg.StripeWebhookSecret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.cfg.StripeWebhookSecret, h.cfg.StripeWebhookTolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	log := httpx.LoggerFrom(r.Context(), h.logger).With("provider", providerStripe, "provider_event_id", evt.ID, "event_type", string(evt.Type))
	log.Info("payment provider event received", "occurred_at", time.Unix(evt.Created, 0).UTC().Format(time.RFC3339))

	if err := h.catalog.InsertProviderEvent(r.Context(), storage.ProviderEvent{
		Provider:        providerStripe,
		ProviderEventID: evt.ID,
		EventType:       string(evt.Type),
		Payload:         body,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			log.Info("payment provider event duplicate ignored")
			httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
		log.Error("failed to record provider event", "err", err)
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	if err := h.applyStripeEvent(r, evt); err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindPaymentUnapplied:
			// Money was captured for an appointment that cannot take it; redelivery will not help.
			log.Error("payment captured but not applied; refund required", "err", err)
		case apperr.KindNotFound, apperr.KindValidation, apperr.KindPaymentNotConfirmed:
			// Redelivery cannot change the outcome.
			log.Warn("payment provider event not applied", "err", err)
		default:
			log.Error("payment provider event failed", "err", err)
			if ferr := h.catalog.ForgetProviderEvent(r.Context(), providerStripe, evt.ID); ferr != nil {
				log.Error("failed to release provider event", "err", ferr)
			}
			http.Error(w, "failed to apply provider event", http.StatusInternalServerError)
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) applyStripeEvent(r *http.Request, evt stripe.Event) error {
	log := httpx.LoggerFrom(r.Context(), h.logger)
	switch evt.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return apperr.Validation("invalid payment intent payload")
		}
		appointmentID := strings.TrimSpace(pi.Metadata[payments.MetadataAppointmentID])
		if appointmentID == "" {
			return apperr.Validation("payment intent %s has no appointment metadata", pi.ID)
		}
		appt, err := h.engine.ConfirmPayment(r.Context(), appointmentID, pi.ID)
		if err != nil {
			return err
		}
		log.Info("appointment paid via webhook", "appointment_id", appt.ID, "reference", pi.ID)

	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &charge); err != nil {
			return apperr.Validation("invalid charge payload")
		}
		if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
			return apperr.Validation("charge %s has no payment intent", charge.ID)
		}
		if !charge.Refunded {
			log.Info("partial refund ignored", "charge_id", charge.ID, "amount_refunded", charge.AmountRefunded)
			return nil
		}
		appt, err := h.engine.MarkRefunded(r.Context(), charge.PaymentIntent.ID)
		if err != nil {
			return err
		}
		log.Info("appointment refunded via webhook", "appointment_id", appt.ID, "reference", charge.PaymentIntent.ID)

	case stripe.EventTypePaymentIntentPaymentFailed:
		// The appointment stays pending; the client may retry with a new payment method.
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err == nil {
			log.Info("payment attempt failed", "intent_id", pi.ID, "appointment_id", pi.Metadata[payments.MetadataAppointmentID])
		}
	}
	return nil
}
