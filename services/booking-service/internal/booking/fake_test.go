package booking

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/holds"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/payments"
)

// memRepo mirrors the storage guarantees: unique (provider, date, start) among live rows,
// optional overlap rejection, idempotency keys and compare-and-set updates.
type memRepo struct {
	mu        sync.Mutex
	providers map[string]model.Provider
	services  map[string]model.Service
	windows   map[string][]model.AvailabilityWindow
	appts     map[string]model.Appointment
	idem      map[string]string
	events    []outbox.Event
}

func newMemRepo() *memRepo {
	return &memRepo{
		providers: map[string]model.Provider{},
		services:  map[string]model.Service{},
		windows:   map[string][]model.AvailabilityWindow{},
		appts:     map[string]model.Appointment{},
		idem:      map[string]string{},
	}
}

func (r *memRepo) GetProviderBySlug(_ context.Context, slug string) (model.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[slug]
	if !ok {
		return model.Provider{}, apperr.NotFound("provider not found")
	}
	return p, nil
}

func (r *memRepo) GetService(_ context.Context, id string) (model.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.services[id]
	if !ok {
		return model.Service{}, apperr.NotFound("service not found")
	}
	return s, nil
}

func (r *memRepo) ListWindows(_ context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.AvailabilityWindow(nil), r.windows[providerID]...), nil
}

func (r *memRepo) ListBooked(_ context.Context, providerID, date string) ([]model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bookedLocked(providerID, date), nil
}

func (r *memRepo) bookedLocked(providerID, date string) []model.Appointment {
	var out []model.Appointment
	for _, a := range r.appts {
		if a.ProviderID == providerID && a.Date == date && a.Status != model.StatusCancelled {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

func (r *memRepo) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return model.Appointment{}, apperr.NotFound("appointment not found")
	}
	return a, nil
}

func (r *memRepo) GetAppointmentByPaymentReference(_ context.Context, reference string) (model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if a.PaymentReference == reference {
			return a, nil
		}
	}
	return model.Appointment{}, apperr.NotFound("appointment not found")
}

func (r *memRepo) FindByIdempotencyKey(_ context.Context, providerID, key string) (model.Appointment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.idem[providerID+"/"+key]
	if !ok {
		return model.Appointment{}, false, nil
	}
	return r.appts[id], true, nil
}

func (r *memRepo) InsertAppointment(_ context.Context, in NewAppointment) (model.Appointment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := in.Appointment
	if in.IdempotencyKey != "" {
		if id, ok := r.idem[a.ProviderID+"/"+in.IdempotencyKey]; ok {
			return r.appts[id], true, nil
		}
	}
	booked := r.bookedLocked(a.ProviderID, a.Date)
	for _, b := range booked {
		if b.StartTime == a.StartTime {
			return model.Appointment{}, false, apperr.SlotConflict("time slot already booked")
		}
	}
	if in.CheckOverlap && availability.Conflicts(availability.Slot{Start: a.StartTime, End: a.EndTime},
		availability.BusyFromAppointments(booked), availability.ModeOverlap, a.BufferMinutes) {
		return model.Appointment{}, false, apperr.SlotConflict("time slot already booked")
	}
	r.appts[a.ID] = a
	if in.IdempotencyKey != "" {
		r.idem[a.ProviderID+"/"+in.IdempotencyKey] = a.ID
	}
	r.events = append(r.events, in.Event)
	return a, false, nil
}

func (r *memRepo) cas(id string, at time.Time, evt outbox.Event, ok func(model.Appointment) bool, apply func(*model.Appointment)) (model.Appointment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, found := r.appts[id]
	if !found {
		return model.Appointment{}, false, apperr.NotFound("appointment not found")
	}
	if !ok(a) {
		return a, false, nil
	}
	apply(&a)
	a.UpdatedAt = at
	r.appts[id] = a
	r.events = append(r.events, evt)
	return a, true, nil
}

func (r *memRepo) MarkPaid(_ context.Context, id, reference string, at time.Time, evt outbox.Event) (model.Appointment, bool, error) {
	return r.cas(id, at, evt,
		func(a model.Appointment) bool {
			return a.PaymentStatus == model.PaymentPending
		},
		func(a *model.Appointment) {
			a.PaymentStatus = model.PaymentPaid
			a.PaymentReference = reference
		})
}

func (r *memRepo) MarkRefunded(_ context.Context, id string, at time.Time, evt outbox.Event) (model.Appointment, bool, error) {
	return r.cas(id, at, evt,
		func(a model.Appointment) bool { return a.PaymentStatus == model.PaymentPaid },
		func(a *model.Appointment) { a.PaymentStatus = model.PaymentRefunded })
}

func (r *memRepo) TransitionStatus(_ context.Context, id, from, to string, at time.Time, evt outbox.Event) (model.Appointment, bool, error) {
	return r.cas(id, at, evt,
		func(a model.Appointment) bool { return a.Status == from },
		func(a *model.Appointment) { a.Status = to })
}

func (r *memRepo) ExpirePending(_ context.Context, cutoff time.Time, limit int, at time.Time, evt func(model.Appointment) outbox.Event) ([]model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []model.Appointment
	for _, a := range r.appts {
		if a.Status == model.StatusScheduled && a.PaymentStatus == model.PaymentPending && a.CreatedAt.Before(cutoff) {
			stale = append(stale, a)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if len(stale) > limit {
		stale = stale[:limit]
	}
	for i := range stale {
		stale[i].Status = model.StatusCancelled
		stale[i].PaymentStatus = model.PaymentFailed
		stale[i].UpdatedAt = at
		r.appts[stale[i].ID] = stale[i]
		r.events = append(r.events, evt(stale[i]))
	}
	return stale, nil
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

type fakeGateway struct {
	createCalls  atomic.Int32
	confirmCalls atomic.Int32
	createErr    error
	confirmErr   error
	confirmation func(id string) payments.Confirmation
}

func (g *fakeGateway) CreateIntent(_ context.Context, amount int64, _ string, metadata map[string]string, _ string) (payments.Intent, error) {
	n := g.createCalls.Add(1)
	if g.createErr != nil {
		return payments.Intent{}, g.createErr
	}
	id := fmt.Sprintf("pi_test_%d", n)
	return payments.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *fakeGateway) Confirm(_ context.Context, id string) (payments.Confirmation, error) {
	g.confirmCalls.Add(1)
	if g.confirmErr != nil {
		return payments.Confirmation{}, g.confirmErr
	}
	if g.confirmation != nil {
		return g.confirmation(id), nil
	}
	return payments.Confirmation{Succeeded: true, Reference: id}, nil
}

const (
	testProviderID = "11111111-1111-1111-1111-111111111111"
	otherProvider  = "22222222-2222-2222-2222-222222222222"
	haircutID      = "aaaaaaaa-0000-0000-0000-000000000001"
	consultID      = "aaaaaaaa-0000-0000-0000-000000000002"
	freeCallID     = "aaaaaaaa-0000-0000-0000-000000000003"
	retiredID      = "aaaaaaaa-0000-0000-0000-000000000004"
	foreignID      = "bbbbbbbb-0000-0000-0000-000000000001"

	monday = "2026-03-02"
)

// fixture: provider "ana" works Monday 09:00-12:00; the clock reads Sunday 2026-03-01 12:00 UTC.
func newFixture(mode availability.Mode) (*Engine, *memRepo, *fakeGateway) {
	repo := newMemRepo()
	repo.providers["ana"] = model.Provider{ID: testProviderID, Slug: "ana", BusinessName: "Ana Studio", Timezone: "UTC"}
	repo.providers["bo"] = model.Provider{ID: otherProvider, Slug: "bo", BusinessName: "Bo", Timezone: "UTC"}
	repo.services[haircutID] = model.Service{ID: haircutID, ProviderID: testProviderID, Name: "Haircut", DurationMinutes: 60, PriceAmount: 5000, IsActive: true}
	repo.services[consultID] = model.Service{ID: consultID, ProviderID: testProviderID, Name: "Consult", DurationMinutes: 30, PriceAmount: 2500, BufferMinutes: 15, IsActive: true}
	repo.services[freeCallID] = model.Service{ID: freeCallID, ProviderID: testProviderID, Name: "Intro call", DurationMinutes: 15, PriceAmount: 0, IsActive: true}
	repo.services[retiredID] = model.Service{ID: retiredID, ProviderID: testProviderID, Name: "Old", DurationMinutes: 30, PriceAmount: 100, IsActive: false}
	repo.services[foreignID] = model.Service{ID: foreignID, ProviderID: otherProvider, Name: "Massage", DurationMinutes: 60, PriceAmount: 9000, IsActive: true}
	repo.windows[testProviderID] = []model.AvailabilityWindow{
		{ProviderID: testProviderID, DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00", IsActive: true},
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	gw := &fakeGateway{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEngine(repo, gw, holds.NewMemoryStore().WithClock(clock), nil, logger, Config{Mode: mode})
	e.now = clock
	var seq atomic.Int32
	e.newID = func() string {
		return fmt.Sprintf("00000000-0000-0000-0000-%012d", seq.Add(1))
	}
	return e, repo, gw
}

func createReq(serviceID, start string) CreateRequest {
	return CreateRequest{
		Slug:      "ana",
		ServiceID: serviceID,
		Client:    Client{Name: "Sam Client", Email: "sam@example.com"},
		Date:      monday,
		StartTime: start,
	}
}
