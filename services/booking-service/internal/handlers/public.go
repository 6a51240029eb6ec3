package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/bookly/libs/httpx"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
)

// PublicBooking serves the booking page data, cached per slug.
func (h *Handler) PublicBooking(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	key := cache.PublicBookingKey(slug)
	log := httpx.LoggerFrom(r.Context(), h.logger)

	if body, ok, err := h.cache.Get(r.Context(), key); err != nil {
		log.Warn("public booking cache read failed", "err", err, "slug", slug)
	} else if ok {
		httpx.WriteRawJSON(w, http.StatusOK, body)
		return
	}

	provider, err := h.catalog.GetProviderBySlug(r.Context(), slug)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	services, err := h.catalog.ListServices(r.Context(), provider.ID, true)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}

	body, err := json.Marshal(model.PublicBooking{Provider: provider, Services: services})
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	if err := h.cache.Set(r.Context(), key, body, h.cfg.PublicCacheTTL); err != nil {
		log.Warn("public booking cache write failed", "err", err, "slug", slug)
	}
	httpx.WriteRawJSON(w, http.StatusOK, body)
}

func (h *Handler) DayAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	day, err := h.engine.DayAvailability(r.Context(), chi.URLParam(r, "slug"), q.Get("date"), q.Get("serviceId"))
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, day)
}

type createAppointmentRequest struct {
	ServiceID   string `json:"serviceId" validate:"required"`
	ClientName  string `json:"clientName" validate:"required,max=200"`
	ClientEmail string `json:"clientEmail" validate:"required,email"`
	ClientPhone string `json:"clientPhone" validate:"omitempty,phone"`
	Date        string `json:"date" validate:"required,date"`
	StartTime   string `json:"startTime" validate:"required,clock"`
	Notes       string `json:"notes" validate:"max=2000"`
	HoldToken   string `json:"holdToken"`
}

type appointmentResponse struct {
	Appointment any `json:"appointment"`
}

// CreateAppointment books a pending appointment. A repeated Idempotency-Key replays the
// original appointment with 200 instead of 201.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	appt, replayed, err := h.engine.CreateAppointment(r.Context(), booking.CreateRequest{
		Slug:      chi.URLParam(r, "slug"),
		ServiceID: strings.TrimSpace(req.ServiceID),
		Client: booking.Client{
			Name:  req.ClientName,
			Email: req.ClientEmail,
			Phone: req.ClientPhone,
		},
		Date:           req.Date,
		StartTime:      req.StartTime,
		Notes:          req.Notes,
		HoldToken:      strings.TrimSpace(req.HoldToken),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeError(w, r, err, true)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, appointmentResponse{Appointment: appt})
}

type holdRequest struct {
	ServiceID string `json:"serviceId" validate:"required"`
	Date      string `json:"date" validate:"required,date"`
	StartTime string `json:"startTime" validate:"required,clock"`
}

type holdResponse struct {
	HoldToken string    `json:"holdToken"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) PlaceHold(w http.ResponseWriter, r *http.Request) {
	var req holdRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	hold, err := h.engine.PlaceHold(r.Context(), booking.HoldRequest{
		Slug:      chi.URLParam(r, "slug"),
		ServiceID: strings.TrimSpace(req.ServiceID),
		Date:      req.Date,
		StartTime: req.StartTime,
	})
	if err != nil {
		h.writeError(w, r, err, true)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, holdResponse{
		HoldToken: hold.Token,
		StartTime: hold.StartTime,
		EndTime:   hold.EndTime,
		ExpiresAt: hold.ExpiresAt,
	})
}

// GetAppointment backs the checkout page.
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.engine.GetAppointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appointmentResponse{Appointment: appt})
}
