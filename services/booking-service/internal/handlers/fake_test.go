package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/holds"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/storage"
)

const (
	providerA = "11111111-1111-1111-1111-111111111111"
	providerB = "22222222-2222-2222-2222-222222222222"
	serviceA  = "aaaaaaaa-0000-0000-0000-000000000001"
	apptA     = "00000000-0000-0000-0000-000000000001"
)

// stubEngine returns canned results and records the requests it saw.
type stubEngine struct {
	mu sync.Mutex

	createErr      error
	createReplayed bool
	lastCreate     booking.CreateRequest

	intentErr error
	confirmFn func(id, ref string) (model.Appointment, error)
	refundFn  func(ref string) (model.Appointment, error)
	statusErr error

	confirmed []string
	refunded  []string
}

func (s *stubEngine) DayAvailability(_ context.Context, slug, date, serviceID string) (booking.DayAvailability, error) {
	if slug != "ana" {
		return booking.DayAvailability{}, apperr.NotFound("provider not found")
	}
	return booking.DayAvailability{Date: date}, nil
}

func (s *stubEngine) CreateAppointment(_ context.Context, req booking.CreateRequest) (model.Appointment, bool, error) {
	s.mu.Lock()
	s.lastCreate = req
	s.mu.Unlock()
	if s.createErr != nil {
		return model.Appointment{}, false, s.createErr
	}
	return model.Appointment{
		ID:            apptA,
		ProviderID:    providerA,
		ServiceID:     req.ServiceID,
		ClientName:    req.Client.Name,
		ClientEmail:   req.Client.Email,
		Date:          req.Date,
		StartTime:     req.StartTime,
		EndTime:       "10:00",
		Status:        model.StatusScheduled,
		PaymentStatus: model.PaymentPending,
		TotalAmount:   5000,
	}, s.createReplayed, nil
}

func (s *stubEngine) PlaceHold(_ context.Context, req booking.HoldRequest) (holds.Hold, error) {
	return holds.Hold{Token: "hold-1", StartTime: req.StartTime, EndTime: "10:00", ExpiresAt: time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)}, nil
}

func (s *stubEngine) GetAppointment(_ context.Context, id string) (model.AppointmentWithService, error) {
	if id != apptA {
		return model.AppointmentWithService{}, apperr.NotFound("appointment not found")
	}
	return model.AppointmentWithService{Appointment: model.Appointment{ID: apptA}}, nil
}

func (s *stubEngine) InitiatePayment(_ context.Context, id string, amount int64) (payments.Intent, error) {
	if s.intentErr != nil {
		return payments.Intent{}, s.intentErr
	}
	return payments.Intent{ID: "pi_mock_1", ClientSecret: "pi_mock_1_secret_x"}, nil
}

func (s *stubEngine) ConfirmPayment(_ context.Context, id, ref string) (model.Appointment, error) {
	s.mu.Lock()
	s.confirmed = append(s.confirmed, id+"/"+ref)
	s.mu.Unlock()
	if s.confirmFn != nil {
		return s.confirmFn(id, ref)
	}
	return model.Appointment{ID: id, PaymentStatus: model.PaymentPaid, PaymentReference: ref}, nil
}

func (s *stubEngine) MarkRefunded(_ context.Context, ref string) (model.Appointment, error) {
	s.mu.Lock()
	s.refunded = append(s.refunded, ref)
	s.mu.Unlock()
	if s.refundFn != nil {
		return s.refundFn(ref)
	}
	return model.Appointment{ID: apptA, PaymentStatus: model.PaymentRefunded, PaymentReference: ref}, nil
}

func (s *stubEngine) UpdateAppointmentStatus(_ context.Context, providerID, id, status string) (model.Appointment, error) {
	if s.statusErr != nil {
		return model.Appointment{}, s.statusErr
	}
	if providerID != providerA || id != apptA {
		return model.Appointment{}, apperr.NotFound("appointment not found")
	}
	return model.Appointment{ID: id, ProviderID: providerID, Status: status}, nil
}

// memCatalog is a small in-memory Catalog.
type memCatalog struct {
	mu        sync.Mutex
	providers map[string]model.Provider
	services  map[string]model.Service
	windows   map[string][]model.AvailabilityWindow
	events    map[string]bool
	slugReads int
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		providers: map[string]model.Provider{
			providerA: {ID: providerA, Slug: "ana", BusinessName: "Ana Studio", Timezone: "UTC"},
			providerB: {ID: providerB, Slug: "bo", BusinessName: "Bo", Timezone: "UTC"},
		},
		services: map[string]model.Service{
			serviceA: {ID: serviceA, ProviderID: providerA, Name: "Haircut", DurationMinutes: 60, PriceAmount: 5000, IsActive: true},
		},
		windows: map[string][]model.AvailabilityWindow{},
		events:  map[string]bool{},
	}
}

func (c *memCatalog) GetProviderBySlug(_ context.Context, slug string) (model.Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slugReads++
	for _, p := range c.providers {
		if p.Slug == slug {
			return p, nil
		}
	}
	return model.Provider{}, apperr.NotFound("provider not found")
}

func (c *memCatalog) GetProvider(_ context.Context, id string) (model.Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.providers[id]
	if !ok {
		return model.Provider{}, apperr.NotFound("provider not found")
	}
	return p, nil
}

func (c *memCatalog) SaveProfile(_ context.Context, p model.Provider) (model.Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, other := range c.providers {
		if other.Slug == p.Slug && id != p.ID {
			return model.Provider{}, apperr.Validation("slug %q is already taken", p.Slug)
		}
	}
	c.providers[p.ID] = p
	return p, nil
}

func (c *memCatalog) GetService(_ context.Context, id string) (model.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.services[id]
	if !ok {
		return model.Service{}, apperr.NotFound("service not found")
	}
	return s, nil
}

func (c *memCatalog) ListServices(_ context.Context, providerID string, activeOnly bool) ([]model.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []model.Service{}
	for _, s := range c.services {
		if s.ProviderID == providerID && (s.IsActive || !activeOnly) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *memCatalog) CreateService(_ context.Context, s model.Service) (model.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.ID = fmt.Sprintf("aaaaaaaa-0000-0000-0000-%012d", len(c.services)+1)
	c.services[s.ID] = s
	return s, nil
}

func (c *memCatalog) UpdateService(_ context.Context, s model.Service) (model.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[s.ID] = s
	return s, nil
}

func (c *memCatalog) DeactivateService(_ context.Context, providerID, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.services[id]
	if !ok || s.ProviderID != providerID {
		return apperr.NotFound("service not found")
	}
	s.IsActive = false
	c.services[id] = s
	return nil
}

func (c *memCatalog) ListWindows(_ context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.AvailabilityWindow{}, c.windows[providerID]...), nil
}

func (c *memCatalog) ReplaceWindows(_ context.Context, providerID string, windows []model.AvailabilityWindow) ([]model.AvailabilityWindow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]model.AvailabilityWindow, 0, len(windows))
	for _, w := range windows {
		w.ProviderID = providerID
		stored = append(stored, w)
	}
	c.windows[providerID] = stored
	return append([]model.AvailabilityWindow{}, stored...), nil
}

func (c *memCatalog) ListAppointments(_ context.Context, providerID string, limit int) ([]model.AppointmentWithService, error) {
	return []model.AppointmentWithService{}, nil
}

func (c *memCatalog) InsertProviderEvent(_ context.Context, evt storage.ProviderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := evt.Provider + "/" + evt.ProviderEventID
	if c.events[k] {
		return storage.ErrDuplicateProviderEvent
	}
	c.events[k] = true
	return nil
}

func (c *memCatalog) ForgetProviderEvent(_ context.Context, provider, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.events, provider+"/"+eventID)
	return nil
}

func (c *memCatalog) reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slugReads
}

// memCache is a map-backed cache.Cache ignoring ttl.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

const testWebhookSecret = "whsec_test"

func newTestHandler() (*Handler, *stubEngine, *memCatalog, *memCache) {
	engine := &stubEngine{}
	catalog := newMemCatalog()
	c := newMemCache()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(engine, catalog, c, logger, Config{StripeWebhookSecret: testWebhookSecret})
	return h, engine, catalog, c
}
