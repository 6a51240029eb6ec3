package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/bookly/libs/auth"
	"github.com/md-rashed-zaman/bookly/libs/httpx"
	"github.com/md-rashed-zaman/bookly/services/notification-service/internal/storage"
)

type Lister interface {
	ListByAppointment(ctx context.Context, appointmentID string) ([]storage.Notification, error)
}

type Handler struct {
	repo      Lister
	logger    *slog.Logger
	jwtSecret string
}

func NewHandler(repo Lister, logger *slog.Logger, jwtSecret string) *Handler {
	return &Handler{repo: repo, logger: logger, jwtSecret: jwtSecret}
}

// Routes exposes the notification log to providers.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.WithAccessLog(h.logger))
	r.Route("/api/v1", func(r chi.Router) {
		r.With(auth.RequireProvider(h.jwtSecret)).Get("/appointments/{id}/notifications", h.List)
	})
	return r
}

// List returns the notifications of one appointment. Rows of other providers are hidden.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	providerID, _ := auth.ProviderIDFromContext(r.Context())
	rows, err := h.repo.ListByAppointment(r.Context(), strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		httpx.LoggerFrom(r.Context(), h.logger).Error("list notifications failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Internal", "failed to list notifications", nil)
		return
	}
	out := make([]storage.Notification, 0, len(rows))
	for _, n := range rows {
		if n.ProviderID == providerID {
			out = append(out, n)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"notifications": out})
}
