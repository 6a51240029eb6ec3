package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/bookly/libs/auth"
	"github.com/md-rashed-zaman/bookly/libs/httpx"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/holds"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/validation"
)

// Engine is the booking lifecycle as seen by the HTTP layer.
type Engine interface {
	DayAvailability(ctx context.Context, slug, date, serviceID string) (booking.DayAvailability, error)
	CreateAppointment(ctx context.Context, req booking.CreateRequest) (model.Appointment, bool, error)
	PlaceHold(ctx context.Context, req booking.HoldRequest) (holds.Hold, error)
	GetAppointment(ctx context.Context, id string) (model.AppointmentWithService, error)
	InitiatePayment(ctx context.Context, appointmentID string, amount int64) (payments.Intent, error)
	ConfirmPayment(ctx context.Context, appointmentID, reference string) (model.Appointment, error)
	MarkRefunded(ctx context.Context, reference string) (model.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, providerID, appointmentID, status string) (model.Appointment, error)
}

// Catalog is the provider-managed data: profile, services and weekly availability.
type Catalog interface {
	GetProviderBySlug(ctx context.Context, slug string) (model.Provider, error)
	GetProvider(ctx context.Context, id string) (model.Provider, error)
	SaveProfile(ctx context.Context, p model.Provider) (model.Provider, error)

	GetService(ctx context.Context, id string) (model.Service, error)
	ListServices(ctx context.Context, providerID string, activeOnly bool) ([]model.Service, error)
	CreateService(ctx context.Context, s model.Service) (model.Service, error)
	UpdateService(ctx context.Context, s model.Service) (model.Service, error)
	DeactivateService(ctx context.Context, providerID, id string) error

	ListWindows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error)
	ReplaceWindows(ctx context.Context, providerID string, windows []model.AvailabilityWindow) ([]model.AvailabilityWindow, error)

	ListAppointments(ctx context.Context, providerID string, limit int) ([]model.AppointmentWithService, error)

	InsertProviderEvent(ctx context.Context, evt storage.ProviderEvent) error
	ForgetProviderEvent(ctx context.Context, provider, eventID string) error
}

type Config struct {
	// JWTSecret enables Bearer auth on provider routes; empty trusts X-Provider-Id.
	JWTSecret              string
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
	PublicCacheTTL         time.Duration
	// PublicWriteLimit throttles the public routes that create state. Optional.
	PublicWriteLimit httpx.Middleware
}

type Handler struct {
	engine  Engine
	catalog Catalog
	cache   cache.Cache
	val     *validation.Validator
	logger  *slog.Logger
	cfg     Config
}

func NewHandler(engine Engine, catalog Catalog, c cache.Cache, logger *slog.Logger, cfg Config) *Handler {
	if c == nil {
		c = cache.NewNoop()
	}
	if cfg.PublicCacheTTL <= 0 {
		cfg.PublicCacheTTL = time.Minute
	}
	if cfg.StripeWebhookTolerance <= 0 {
		cfg.StripeWebhookTolerance = 5 * time.Minute
	}
	return &Handler{
		engine:  engine,
		catalog: catalog,
		cache:   c,
		val:     validation.New(),
		logger:  logger,
		cfg:     cfg,
	}
}

// Routes mounts the API under /api/v1.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.WithAccessLog(h.logger))

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/book/{slug}", h.PublicBooking)
		api.Get("/book/{slug}/availability", h.DayAvailability)
		api.Get("/appointments/{id}", h.GetAppointment)
		api.Post("/payments/webhooks/stripe", h.StripeWebhook)

		api.Group(func(public chi.Router) {
			if h.cfg.PublicWriteLimit != nil {
				public.Use(h.cfg.PublicWriteLimit)
			}
			public.Post("/book/{slug}/appointment", h.CreateAppointment)
			public.Post("/book/{slug}/holds", h.PlaceHold)
			public.Post("/payments/intent", h.CreatePaymentIntent)
			public.Post("/payments/confirm", h.ConfirmPayment)
		})

		api.Group(func(provider chi.Router) {
			provider.Use(auth.RequireProvider(h.cfg.JWTSecret))
			provider.Get("/profile", h.GetProfile)
			provider.Put("/profile", h.SaveProfile)
			provider.Get("/services", h.ListServices)
			provider.Post("/services", h.CreateService)
			provider.Patch("/services/{id}", h.UpdateService)
			provider.Delete("/services/{id}", h.DeleteService)
			provider.Get("/availability", h.ListAvailability)
			provider.Put("/availability", h.SaveAvailability)
			provider.Get("/appointments", h.ListAppointments)
			provider.Patch("/appointments/{id}", h.UpdateAppointmentStatus)
		})
	})
	return r
}

// genericBookingMessage is all booking-page callers learn about a failure besides its kind.
const genericBookingMessage = "booking failed"

// writeError maps err to its HTTP status. With generic set the message is replaced by
// genericBookingMessage.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, generic bool) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	log := httpx.LoggerFrom(r.Context(), h.logger)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "err", err, "kind", kind, "path", r.URL.Path)
	} else {
		log.Info("request rejected", "err", err, "kind", kind, "path", r.URL.Path)
	}
	msg := apperr.Message(err)
	if generic {
		msg = genericBookingMessage
	}
	httpx.WriteError(w, status, string(kind), msg, nil)
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, generic bool) bool {
	msg := func(specific string) string {
		if generic {
			return genericBookingMessage
		}
		return specific
	}
	if err := validation.DecodeJSON(r, dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(apperr.KindValidation), msg("invalid json body"), nil)
		return false
	}
	if err := h.val.Struct(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, string(apperr.KindValidation), msg("validation error"), validation.Details(err))
		return false
	}
	return true
}

func providerID(r *http.Request) string {
	id, _ := auth.ProviderIDFromContext(r.Context())
	return id
}
