package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/holds"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/payments"
)

type Config struct {
	Mode        availability.Mode
	StepMinutes int
	Currency    string
	HoldTTL     time.Duration
	PendingTTL  time.Duration
}

// Engine owns the appointment lifecycle. It holds no per-appointment state; every transition
// goes through the repository's compare-and-set updates, so engines in different processes can
// act on the same appointment.
type Engine struct {
	repo     Repository
	gateway  payments.Gateway
	holds    holds.Store
	calendar calendar.Calendar
	logger   *slog.Logger
	cfg      Config

	now   func() time.Time
	newID func() string
}

func NewEngine(repo Repository, gateway payments.Gateway, holdStore holds.Store, cal calendar.Calendar, logger *slog.Logger, cfg Config) *Engine {
	if cfg.Mode == "" {
		cfg.Mode = availability.ModeOverlap
	}
	if cfg.StepMinutes <= 0 {
		cfg.StepMinutes = availability.DefaultStepMinutes
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = 5 * time.Minute
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 30 * time.Minute
	}
	if holdStore == nil {
		holdStore = holds.NewMemoryStore()
	}
	if cal == nil {
		cal = calendar.Noop{}
	}
	return &Engine{
		repo:     repo,
		gateway:  gateway,
		holds:    holdStore,
		calendar: cal,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// localNow is the current wall clock in the provider's timezone (UTC when unknown).
func (e *Engine) localNow(p model.Provider) time.Time {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil || p.Timezone == "" {
		loc = time.UTC
	}
	return e.now().In(loc)
}

// busy collects everything that occupies providerID's day: booked appointments, live holds
// other than exceptToken's, and external calendar entries. Hold and calendar lookups are
// advisory and fail open; the storage constraints still guard the insert.
func (e *Engine) busy(ctx context.Context, providerID, date, exceptToken string, booked []model.Appointment) []availability.Busy {
	out := availability.BusyFromAppointments(booked)

	held, err := e.holds.List(ctx, providerID, date)
	if err != nil {
		e.logger.Warn("hold lookup failed", "err", err, "provider_id", providerID, "date", date)
	}
	for _, h := range held {
		if exceptToken != "" && h.Token == exceptToken {
			continue
		}
		out = append(out, availability.Busy{Start: h.StartTime, End: h.EndTime, BufferMinutes: h.BufferMinutes})
	}

	if e.cfg.Mode == availability.ModeOverlap {
		entries, err := e.calendar.Busy(ctx, providerID, date)
		if err != nil {
			e.logger.Warn("calendar lookup failed", "err", err, "provider_id", providerID, "date", date)
		}
		for _, c := range entries {
			out = append(out, availability.Busy{Start: c.Start, End: c.End, External: true})
		}
	}
	return out
}
