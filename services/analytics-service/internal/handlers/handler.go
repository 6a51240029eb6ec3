package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/bookly/libs/auth"
	"github.com/md-rashed-zaman/bookly/libs/httpx"
	"github.com/md-rashed-zaman/bookly/services/analytics-service/internal/storage"
)

const (
	dateLayout = "2006-01-02"
	maxRange   = 366 * 24 * time.Hour
)

type Summarizer interface {
	Summary(ctx context.Context, providerID, from, to string) (storage.Summary, error)
}

type Handler struct {
	repo      Summarizer
	logger    *slog.Logger
	jwtSecret string
	now       func() time.Time
}

func NewHandler(repo Summarizer, logger *slog.Logger, jwtSecret string) *Handler {
	return &Handler{repo: repo, logger: logger, jwtSecret: jwtSecret, now: time.Now}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.WithAccessLog(h.logger))
	r.Route("/api/v1/analytics", func(r chi.Router) {
		r.Use(auth.RequireProvider(h.jwtSecret))
		r.Get("/summary", h.Summary)
	})
	return r
}

// Summary reports the provider's booking and revenue counters for ?from=&to= (inclusive,
// appointment dates). The default range is the last 30 days.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	providerID, _ := auth.ProviderIDFromContext(r.Context())

	to := h.now().UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -29)
	var err error
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse(dateLayout, raw); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "Validation", "to must be YYYY-MM-DD", nil)
			return
		}
		from = to.AddDate(0, 0, -29)
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse(dateLayout, raw); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "Validation", "from must be YYYY-MM-DD", nil)
			return
		}
	}
	if from.After(to) || to.Sub(from) > maxRange {
		httpx.WriteError(w, http.StatusBadRequest, "Validation", "range must be ascending and at most one year", nil)
		return
	}

	summary, err := h.repo.Summary(r.Context(), providerID, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		httpx.LoggerFrom(r.Context(), h.logger).Error("analytics summary failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "Internal", "failed to load analytics", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}
