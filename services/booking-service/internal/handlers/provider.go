package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/bookly/libs/httpx"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/validation"
)

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetProvider(r.Context(), providerID(r))
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"provider": p})
}

type profileRequest struct {
	Slug         string `json:"slug" validate:"required,slug"`
	BusinessName string `json:"businessName" validate:"required,max=200"`
	Description  string `json:"description" validate:"max=2000"`
	Timezone     string `json:"timezone" validate:"omitempty,timezone"`
}

func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	id := providerID(r)
	previous, err := h.catalog.GetProvider(r.Context(), id)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		h.writeError(w, r, err, false)
		return
	}

	saved, err := h.catalog.SaveProfile(r.Context(), model.Provider{
		ID:           id,
		Slug:         req.Slug,
		BusinessName: strings.TrimSpace(req.BusinessName),
		Description:  strings.TrimSpace(req.Description),
		Timezone:     req.Timezone,
	})
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	if previous.Slug != "" && previous.Slug != saved.Slug {
		h.invalidate(r.Context(), previous.Slug)
	}
	h.invalidate(r.Context(), saved.Slug)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"provider": saved})
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.catalog.ListServices(r.Context(), providerID(r), false)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"services": services})
}

type serviceRequest struct {
	Name            *string `json:"name" validate:"omitempty,max=200"`
	Description     *string `json:"description" validate:"omitempty,max=2000"`
	DurationMinutes *int    `json:"durationMinutes"`
	PriceAmount     *int64  `json:"priceAmount"`
	BufferMinutes   *int    `json:"bufferMinutes"`
	IsActive        *bool   `json:"isActive"`
}

// apply overlays the fields present in the request onto s.
func (req serviceRequest) apply(s model.Service) model.Service {
	if req.Name != nil {
		s.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		s.Description = strings.TrimSpace(*req.Description)
	}
	if req.DurationMinutes != nil {
		s.DurationMinutes = *req.DurationMinutes
	}
	if req.PriceAmount != nil {
		s.PriceAmount = *req.PriceAmount
	}
	if req.BufferMinutes != nil {
		s.BufferMinutes = *req.BufferMinutes
	}
	if req.IsActive != nil {
		s.IsActive = *req.IsActive
	}
	return s
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	s := req.apply(model.Service{ProviderID: providerID(r), IsActive: true})
	if err := booking.ValidateService(s); err != nil {
		h.writeError(w, r, err, false)
		return
	}
	created, err := h.catalog.CreateService(r.Context(), s)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	h.invalidateProvider(r.Context(), created.ProviderID)
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"service": created})
}

func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	current, err := h.ownedService(r)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	next := req.apply(current)
	if err := booking.ValidateService(next); err != nil {
		h.writeError(w, r, err, false)
		return
	}
	updated, err := h.catalog.UpdateService(r.Context(), next)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	h.invalidateProvider(r.Context(), updated.ProviderID)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"service": updated})
}

// DeleteService deactivates the service; existing appointments keep their reference.
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	id := providerID(r)
	if err := h.catalog.DeactivateService(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err, false)
		return
	}
	h.invalidateProvider(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ownedService(r *http.Request) (model.Service, error) {
	s, err := h.catalog.GetService(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return model.Service{}, err
	}
	if s.ProviderID != providerID(r) {
		return model.Service{}, apperr.NotFound("service not found")
	}
	return s, nil
}

func (h *Handler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	windows, err := h.catalog.ListWindows(r.Context(), providerID(r))
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"availabilityWindows": windows})
}

type windowInput struct {
	DayOfWeek *int   `json:"dayOfWeek" validate:"required,min=0,max=6"`
	StartTime string `json:"startTime" validate:"required,clock"`
	EndTime   string `json:"endTime" validate:"required,clock"`
	IsActive  *bool  `json:"isActive"`
}

// SaveAvailability replaces the provider's whole weekly schedule.
func (h *Handler) SaveAvailability(w http.ResponseWriter, r *http.Request) {
	var req []windowInput
	if err := validation.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(apperr.KindValidation), "invalid json body", nil)
		return
	}
	windows := make([]model.AvailabilityWindow, 0, len(req))
	for i, in := range req {
		if err := h.val.Struct(in); err != nil {
			details := map[string]string{}
			for field, tag := range validation.Details(err) {
				details["["+strconv.Itoa(i)+"]."+field] = tag
			}
			httpx.WriteError(w, http.StatusBadRequest, string(apperr.KindValidation), "validation error", details)
			return
		}
		active := true
		if in.IsActive != nil {
			active = *in.IsActive
		}
		windows = append(windows, model.AvailabilityWindow{
			DayOfWeek: *in.DayOfWeek,
			StartTime: in.StartTime,
			EndTime:   in.EndTime,
			IsActive:  active,
		})
	}
	if err := booking.ValidateWindows(windows); err != nil {
		h.writeError(w, r, err, false)
		return
	}

	saved, err := h.catalog.ReplaceWindows(r.Context(), providerID(r), windows)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"availabilityWindows": saved})
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			h.writeError(w, r, apperr.Validation("limit must be between 1 and 500"), false)
			return
		}
		limit = n
	}
	appts, err := h.catalog.ListAppointments(r.Context(), providerID(r), limit)
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	appt, err := h.engine.UpdateAppointmentStatus(r.Context(), providerID(r), chi.URLParam(r, "id"), strings.TrimSpace(req.Status))
	if err != nil {
		h.writeError(w, r, err, false)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appointmentResponse{Appointment: appt})
}

func (h *Handler) invalidateProvider(ctx context.Context, id string) {
	p, err := h.catalog.GetProvider(ctx, id)
	if err != nil {
		return
	}
	h.invalidate(ctx, p.Slug)
}

func (h *Handler) invalidate(ctx context.Context, slug string) {
	if err := h.cache.Delete(ctx, cache.PublicBookingKey(slug)); err != nil {
		h.logger.Warn("public booking cache invalidation failed", "err", err, "slug", slug)
	}
}
