package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/bookly/libs/db"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
)

const providerColumns = `id::text, slug, business_name, description, timezone, created_at, updated_at`

func scanProvider(row pgx.Row) (model.Provider, error) {
	var p model.Provider
	err := row.Scan(&p.ID, &p.Slug, &p.BusinessName, &p.Description, &p.Timezone, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *BookingRepository) GetProviderBySlug(ctx context.Context, slug string) (model.Provider, error) {
	p, err := scanProvider(r.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE slug = $1`, slug))
	if db.IsNoRows(err) {
		return model.Provider{}, apperr.NotFound("provider not found")
	}
	return p, err
}

func (r *BookingRepository) GetProvider(ctx context.Context, id string) (model.Provider, error) {
	if !validID(id) {
		return model.Provider{}, apperr.NotFound("provider not found")
	}
	p, err := scanProvider(r.pool.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return model.Provider{}, apperr.NotFound("provider not found")
	}
	return p, err
}

// SaveProfile creates or updates the provider row keyed by p.ID.
func (r *BookingRepository) SaveProfile(ctx context.Context, p model.Provider) (model.Provider, error) {
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	saved, err := scanProvider(r.pool.QueryRow(ctx, `
		INSERT INTO providers (id, slug, business_name, description, timezone)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET slug = EXCLUDED.slug,
			business_name = EXCLUDED.business_name,
			description = EXCLUDED.description,
			timezone = EXCLUDED.timezone,
			updated_at = now()
		RETURNING `+providerColumns,
		p.ID, p.Slug, p.BusinessName, p.Description, p.Timezone))
	if db.IsUniqueViolation(err) {
		return model.Provider{}, apperr.Validation("slug %q is already taken", p.Slug)
	}
	return saved, err
}

const serviceColumns = `id::text, provider_id::text, name, description, duration_minutes, price_amount,
	buffer_minutes, is_active, created_at, updated_at`

func scanService(row pgx.Row) (model.Service, error) {
	var s model.Service
	err := row.Scan(&s.ID, &s.ProviderID, &s.Name, &s.Description, &s.DurationMinutes, &s.PriceAmount,
		&s.BufferMinutes, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *BookingRepository) GetService(ctx context.Context, id string) (model.Service, error) {
	if !validID(id) {
		return model.Service{}, apperr.NotFound("service not found")
	}
	s, err := scanService(r.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return model.Service{}, apperr.NotFound("service not found")
	}
	return s, err
}

func (r *BookingRepository) ListServices(ctx context.Context, providerID string, activeOnly bool) ([]model.Service, error) {
	if !validID(providerID) {
		return []model.Service{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE provider_id = $1 AND (is_active OR NOT $2)
		ORDER BY created_at ASC
	`, providerID, activeOnly)
	if err != nil {
		return nil, err
	}
	services, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Service, error) {
		return scanService(row)
	})
	if err != nil {
		return nil, err
	}
	if services == nil {
		services = []model.Service{}
	}
	return services, nil
}

func (r *BookingRepository) CreateService(ctx context.Context, s model.Service) (model.Service, error) {
	created, err := scanService(r.pool.QueryRow(ctx, `
		INSERT INTO services (provider_id, name, description, duration_minutes, price_amount, buffer_minutes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+serviceColumns,
		s.ProviderID, s.Name, s.Description, s.DurationMinutes, s.PriceAmount, s.BufferMinutes, s.IsActive))
	if db.IsForeignKeyViolation(err) {
		return model.Service{}, apperr.NotFound("provider profile not found")
	}
	return created, err
}

// UpdateService overwrites the editable fields of a service owned by s.ProviderID.
func (r *BookingRepository) UpdateService(ctx context.Context, s model.Service) (model.Service, error) {
	if !validID(s.ID) {
		return model.Service{}, apperr.NotFound("service not found")
	}
	updated, err := scanService(r.pool.QueryRow(ctx, `
		UPDATE services
		SET name = $3, description = $4, duration_minutes = $5, price_amount = $6,
			buffer_minutes = $7, is_active = $8, updated_at = now()
		WHERE id = $1 AND provider_id = $2
		RETURNING `+serviceColumns,
		s.ID, s.ProviderID, s.Name, s.Description, s.DurationMinutes, s.PriceAmount, s.BufferMinutes, s.IsActive))
	if db.IsNoRows(err) {
		return model.Service{}, apperr.NotFound("service not found")
	}
	return updated, err
}

// DeactivateService hides a service from booking; appointments keep referencing it.
func (r *BookingRepository) DeactivateService(ctx context.Context, providerID, id string) error {
	if !validID(id) {
		return apperr.NotFound("service not found")
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE services SET is_active = false, updated_at = now()
		WHERE id = $1 AND provider_id = $2
	`, id, providerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("service not found")
	}
	return nil
}

func (r *BookingRepository) ListWindows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	if !validID(providerID) {
		return []model.AvailabilityWindow{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, provider_id::text, day_of_week, start_time, end_time, is_active
		FROM availability_windows
		WHERE provider_id = $1
		ORDER BY day_of_week ASC, start_time ASC
	`, providerID)
	if err != nil {
		return nil, err
	}
	windows, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AvailabilityWindow, error) {
		var w model.AvailabilityWindow
		err := row.Scan(&w.ID, &w.ProviderID, &w.DayOfWeek, &w.StartTime, &w.EndTime, &w.IsActive)
		return w, err
	})
	if err != nil {
		return nil, err
	}
	if windows == nil {
		windows = []model.AvailabilityWindow{}
	}
	return windows, nil
}

// ReplaceWindows swaps the provider's whole weekly schedule in one transaction.
func (r *BookingRepository) ReplaceWindows(ctx context.Context, providerID string, windows []model.AvailabilityWindow) ([]model.AvailabilityWindow, error) {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM availability_windows WHERE provider_id = $1`, providerID); err != nil {
			return fmt.Errorf("clear windows: %w", err)
		}
		for _, w := range windows {
			if _, err := tx.Exec(ctx, `
				INSERT INTO availability_windows (provider_id, day_of_week, start_time, end_time, is_active)
				VALUES ($1, $2, $3, $4, $5)
			`, providerID, w.DayOfWeek, w.StartTime, w.EndTime, w.IsActive); err != nil {
				if db.IsForeignKeyViolation(err) {
					return apperr.NotFound("provider profile not found")
				}
				return fmt.Errorf("insert window: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.ListWindows(ctx, providerID)
}

// ListAppointments returns the provider's appointments with their service, newest first.
func (r *BookingRepository) ListAppointments(ctx context.Context, providerID string, limit int) ([]model.AppointmentWithService, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+prefixed("a")+`,
			s.id::text, s.provider_id::text, s.name, s.description, s.duration_minutes, s.price_amount,
			s.buffer_minutes, s.is_active, s.created_at, s.updated_at
		FROM appointments a
		JOIN services s ON s.id = a.service_id
		WHERE a.provider_id = $1
		ORDER BY a.appointment_date DESC, a.start_time DESC
		LIMIT $2
	`, providerID, limit)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AppointmentWithService, error) {
		var (
			a model.Appointment
			s model.Service
		)
		err := row.Scan(
			&a.ID, &a.ProviderID, &a.ServiceID, &a.ClientName, &a.ClientEmail, &a.ClientPhone,
			&a.Date, &a.StartTime, &a.EndTime, &a.Status, &a.PaymentStatus, &a.TotalAmount, &a.BufferMinutes,
			&a.PaymentReference, &a.Notes, &a.CreatedAt, &a.UpdatedAt,
			&s.ID, &s.ProviderID, &s.Name, &s.Description, &s.DurationMinutes, &s.PriceAmount,
			&s.BufferMinutes, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
		)
		return model.AppointmentWithService{Appointment: a, Service: &s}, err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.AppointmentWithService{}
	}
	return out, nil
}

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

var ErrDuplicateProviderEvent = errors.New("duplicate provider event")

// InsertProviderEvent records a payment provider webhook delivery, returning
// ErrDuplicateProviderEvent when it was seen before.
func (r *BookingRepository) InsertProviderEvent(ctx context.Context, evt ProviderEvent) error {
	var payload any
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO payment_provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateProviderEvent
	}
	return nil
}

// ForgetProviderEvent drops a delivery whose processing failed so the provider's retry is handled.
func (r *BookingRepository) ForgetProviderEvent(ctx context.Context, provider, eventID string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM payment_provider_events WHERE provider = $1 AND provider_event_id = $2
	`, provider, eventID)
	return err
}
