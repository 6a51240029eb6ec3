package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/bookly/libs/httpx"
)

type paymentIntentRequest struct {
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	AppointmentID string `json:"appointmentId" validate:"required"`
}

type paymentIntentResponse struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
}

// CreatePaymentIntent starts payment for a pending appointment. amount is in minor units and
// must equal the appointment total.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req paymentIntentRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	intent, err := h.engine.InitiatePayment(r.Context(), strings.TrimSpace(req.AppointmentID), req.Amount)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentIntentResponse{IntentID: intent.ID, ClientSecret: intent.ClientSecret})
}

type confirmPaymentRequest struct {
	IntentID      string `json:"intentId" validate:"required"`
	AppointmentID string `json:"appointmentId" validate:"required"`
}

type confirmPaymentResponse struct {
	Success     bool `json:"success"`
	Appointment any  `json:"appointment"`
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	appt, err := h.engine.ConfirmPayment(r.Context(), strings.TrimSpace(req.AppointmentID), strings.TrimSpace(req.IntentID))
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, confirmPaymentResponse{Success: true, Appointment: appt})
}
