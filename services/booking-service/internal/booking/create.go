package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/holds"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/outbox"
)

type BookedSlot struct {
	StartTime     string `json:"startTime"`
	EndTime       string `json:"endTime"`
	BufferMinutes int    `json:"bufferMinutes,omitempty"`
}

// DayAvailability is the public view of one date. Slots stays empty unless a service is given.
type DayAvailability struct {
	Date                string                     `json:"date"`
	AvailabilityWindows []model.AvailabilityWindow `json:"availabilityWindows"`
	BookedAppointments  []BookedSlot               `json:"bookedAppointments"`
	Slots               []availability.Slot        `json:"slots"`
}

func (e *Engine) DayAvailability(ctx context.Context, slug, date, serviceID string) (DayAvailability, error) {
	day, weekday, err := availability.ParseDate(date)
	if err != nil {
		return DayAvailability{}, apperr.Validation("date must be YYYY-MM-DD")
	}
	provider, err := e.repo.GetProviderBySlug(ctx, slug)
	if err != nil {
		return DayAvailability{}, err
	}
	windows, err := e.repo.ListWindows(ctx, provider.ID)
	if err != nil {
		return DayAvailability{}, fmt.Errorf("list windows: %w", err)
	}
	booked, err := e.repo.ListBooked(ctx, provider.ID, date)
	if err != nil {
		return DayAvailability{}, fmt.Errorf("list booked: %w", err)
	}

	out := DayAvailability{
		Date:                day.Format(availability.DateLayout),
		AvailabilityWindows: make([]model.AvailabilityWindow, 0),
		BookedAppointments:  make([]BookedSlot, 0, len(booked)),
		Slots:               make([]availability.Slot, 0),
	}
	for _, w := range windows {
		if w.IsActive && w.DayOfWeek == int(weekday) {
			out.AvailabilityWindows = append(out.AvailabilityWindows, w)
		}
	}
	for _, a := range booked {
		out.BookedAppointments = append(out.BookedAppointments, BookedSlot{StartTime: a.StartTime, EndTime: a.EndTime, BufferMinutes: a.BufferMinutes})
	}

	if strings.TrimSpace(serviceID) == "" {
		return out, nil
	}
	service, err := e.bookableService(ctx, provider, serviceID)
	if err != nil {
		return DayAvailability{}, err
	}
	candidates := availability.GenerateSlots(windows, weekday, service.DurationMinutes, e.cfg.StepMinutes)
	slots := availability.FilterAvailable(candidates, e.busy(ctx, provider.ID, date, "", booked), e.cfg.Mode, service.BufferMinutes)

	now := e.localNow(provider)
	switch today := now.Format(availability.DateLayout); {
	case out.Date < today:
		slots = slots[:0]
	case out.Date == today:
		slots = availability.DropBefore(slots, now.Format("15:04"))
	}
	out.Slots = slots
	return out, nil
}

type Client struct {
	Name  string
	Email string
	Phone string
}

type CreateRequest struct {
	Slug           string
	ServiceID      string
	Client         Client
	Date           string
	StartTime      string
	Notes          string
	HoldToken      string
	IdempotencyKey string
}

// CreateAppointment books a pending appointment. replayed is true when IdempotencyKey was
// already used by this provider and the original appointment is returned instead.
func (e *Engine) CreateAppointment(ctx context.Context, req CreateRequest) (appt model.Appointment, replayed bool, err error) {
	if strings.TrimSpace(req.Client.Name) == "" || strings.TrimSpace(req.Client.Email) == "" {
		return model.Appointment{}, false, apperr.Validation("client name and email are required")
	}
	provider, service, slot, err := e.resolveSlot(ctx, req.Slug, req.ServiceID, req.Date, req.StartTime)
	if err != nil {
		return model.Appointment{}, false, err
	}

	if req.IdempotencyKey != "" {
		existing, ok, err := e.repo.FindByIdempotencyKey(ctx, provider.ID, req.IdempotencyKey)
		if err != nil {
			return model.Appointment{}, false, fmt.Errorf("find idempotency key: %w", err)
		}
		if ok {
			return existing, true, nil
		}
	}

	booked, err := e.repo.ListBooked(ctx, provider.ID, req.Date)
	if err != nil {
		return model.Appointment{}, false, fmt.Errorf("list booked: %w", err)
	}
	if availability.Conflicts(slot, e.busy(ctx, provider.ID, req.Date, req.HoldToken, booked), e.cfg.Mode, service.BufferMinutes) {
		return model.Appointment{}, false, apperr.SlotConflict("time slot already booked")
	}

	now := e.now().UTC()
	appt = model.Appointment{
		ID:            e.newID(),
		ProviderID:    provider.ID,
		ServiceID:     service.ID,
		ClientName:    strings.TrimSpace(req.Client.Name),
		ClientEmail:   strings.TrimSpace(req.Client.Email),
		ClientPhone:   strings.TrimSpace(req.Client.Phone),
		Date:          req.Date,
		StartTime:     slot.Start,
		EndTime:       slot.End,
		Status:        model.StatusScheduled,
		PaymentStatus: model.PaymentPending,
		TotalAmount:   service.PriceAmount,
		BufferMinutes: service.BufferMinutes,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	// Nothing to collect: InitiatePayment rejects a zero total, and a pending free booking would
	// otherwise be expired by the stale-payment sweep.
	if service.PriceAmount == 0 {
		appt.PaymentStatus = model.PaymentPaid
	}

	appt, replayed, err = e.repo.InsertAppointment(ctx, NewAppointment{
		Appointment:    appt,
		IdempotencyKey: req.IdempotencyKey,
		CheckOverlap:   e.cfg.Mode == availability.ModeOverlap,
		Event:          newEvent(outbox.EventAppointmentCreated, appt, "", now),
	})
	if err != nil {
		return model.Appointment{}, false, err
	}

	if req.HoldToken != "" {
		if err := e.holds.Release(ctx, provider.ID, req.Date, slot.Start, req.HoldToken); err != nil {
			e.logger.Warn("hold release failed", "err", err, "appointment_id", appt.ID)
		}
	}
	if !replayed {
		e.logger.Info("appointment created",
			"appointment_id", appt.ID,
			"provider_id", appt.ProviderID,
			"date", appt.Date,
			"start_time", appt.StartTime,
			"payment_status", appt.PaymentStatus,
		)
	}
	return appt, replayed, nil
}

type HoldRequest struct {
	Slug      string
	ServiceID string
	Date      string
	StartTime string
}

// PlaceHold reserves a slot for HoldTTL. The returned token is passed back on create.
func (e *Engine) PlaceHold(ctx context.Context, req HoldRequest) (holds.Hold, error) {
	provider, service, slot, err := e.resolveSlot(ctx, req.Slug, req.ServiceID, req.Date, req.StartTime)
	if err != nil {
		return holds.Hold{}, err
	}
	booked, err := e.repo.ListBooked(ctx, provider.ID, req.Date)
	if err != nil {
		return holds.Hold{}, fmt.Errorf("list booked: %w", err)
	}
	if availability.Conflicts(slot, e.busy(ctx, provider.ID, req.Date, "", booked), e.cfg.Mode, service.BufferMinutes) {
		return holds.Hold{}, apperr.SlotConflict("time slot is not available")
	}

	h := holds.Hold{
		Token:         e.newID(),
		ProviderID:    provider.ID,
		Date:          req.Date,
		StartTime:     slot.Start,
		EndTime:       slot.End,
		BufferMinutes: service.BufferMinutes,
		ExpiresAt:     e.now().Add(e.cfg.HoldTTL).UTC(),
	}
	if err := e.holds.Place(ctx, h); err != nil {
		if errors.Is(err, holds.ErrTaken) {
			return holds.Hold{}, apperr.SlotConflict("time slot is being booked by someone else")
		}
		return holds.Hold{}, fmt.Errorf("place hold: %w", err)
	}
	return h, nil
}

// resolveSlot validates the request shape, resolves provider and service and checks that the
// slot fits the provider's availability and is not in the past.
func (e *Engine) resolveSlot(ctx context.Context, slug, serviceID, date, startTime string) (model.Provider, model.Service, availability.Slot, error) {
	_, weekday, err := availability.ParseDate(date)
	if err != nil {
		return model.Provider{}, model.Service{}, availability.Slot{}, apperr.Validation("date must be YYYY-MM-DD")
	}
	if _, err := availability.ParseClock(startTime); err != nil {
		return model.Provider{}, model.Service{}, availability.Slot{}, apperr.Validation("startTime must be HH:MM")
	}

	provider, err := e.repo.GetProviderBySlug(ctx, slug)
	if err != nil {
		return model.Provider{}, model.Service{}, availability.Slot{}, err
	}
	service, err := e.bookableService(ctx, provider, serviceID)
	if err != nil {
		return model.Provider{}, model.Service{}, availability.Slot{}, err
	}

	end, err := availability.AddMinutes(startTime, service.DurationMinutes)
	if err != nil {
		return model.Provider{}, model.Service{}, availability.Slot{}, apperr.Validation("appointment must end on the same day")
	}
	slot := availability.Slot{Start: startTime, End: end}

	windows, err := e.repo.ListWindows(ctx, provider.ID)
	if err != nil {
		return model.Provider{}, model.Service{}, availability.Slot{}, fmt.Errorf("list windows: %w", err)
	}
	if !availability.Fits(windows, weekday, startTime, service.DurationMinutes) {
		return model.Provider{}, model.Service{}, availability.Slot{}, apperr.Validation("requested time is outside provider availability")
	}

	now := e.localNow(provider)
	if date+" "+startTime < now.Format(availability.DateLayout+" 15:04") {
		return model.Provider{}, model.Service{}, availability.Slot{}, apperr.Validation("requested time is in the past")
	}
	return provider, service, slot, nil
}

// bookableService resolves serviceID and requires it to be an active service of provider.
// A service of another provider is reported as not found.
func (e *Engine) bookableService(ctx context.Context, provider model.Provider, serviceID string) (model.Service, error) {
	service, err := e.repo.GetService(ctx, serviceID)
	if err != nil {
		return model.Service{}, err
	}
	if service.ProviderID != provider.ID || !service.IsActive {
		return model.Service{}, apperr.NotFound("service not found")
	}
	return service, nil
}

func (e *Engine) GetAppointment(ctx context.Context, id string) (model.AppointmentWithService, error) {
	appt, err := e.repo.GetAppointment(ctx, id)
	if err != nil {
		return model.AppointmentWithService{}, err
	}
	out := model.AppointmentWithService{Appointment: appt}
	if service, err := e.repo.GetService(ctx, appt.ServiceID); err == nil {
		out.Service = &service
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return model.AppointmentWithService{}, err
	}
	return out, nil
}
