package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/bookly/libs/db"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/outbox"
)

// BookingRepository is the Postgres implementation of booking.Repository plus the provider
// catalog queries used by the HTTP layer.
type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

var _ booking.Repository = (*BookingRepository)(nil)

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `id::text, provider_id::text, service_id::text, client_name, client_email, client_phone,
	appointment_date, start_time, end_time, status, payment_status, total_amount, buffer_minutes,
	COALESCE(payment_reference, ''), notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.ServiceID,
		&a.ClientName,
		&a.ClientEmail,
		&a.ClientPhone,
		&a.Date,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.PaymentStatus,
		&a.TotalAmount,
		&a.BufferMinutes,
		&a.PaymentReference,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

// validID guards uuid columns: malformed ids cannot exist, so they read as not found.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *BookingRepository) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, apperr.NotFound("appointment not found")
	}
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if db.IsNoRows(err) {
		return model.Appointment{}, apperr.NotFound("appointment not found")
	}
	return appt, err
}

func (r *BookingRepository) GetAppointmentByPaymentReference(ctx context.Context, reference string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE payment_reference = $1
	`, reference))
	if db.IsNoRows(err) {
		return model.Appointment{}, apperr.NotFound("appointment not found")
	}
	return appt, err
}

func (r *BookingRepository) ListBooked(ctx context.Context, providerID, date string) ([]model.Appointment, error) {
	if !validID(providerID) {
		return nil, nil
	}
	return r.listBooked(ctx, r.pool, providerID, date)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *BookingRepository) listBooked(ctx context.Context, q querier, providerID, date string) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
			AND appointment_date = $2
			AND status <> 'cancelled'
		ORDER BY start_time ASC
	`, providerID, date)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
}

func (r *BookingRepository) FindByIdempotencyKey(ctx context.Context, providerID, key string) (model.Appointment, bool, error) {
	if !validID(providerID) {
		return model.Appointment{}, false, nil
	}
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+prefixed("a")+`
		FROM booking_idempotency_keys k
		JOIN appointments a ON a.id = k.appointment_id
		WHERE k.provider_id = $1 AND k.idempotency_key = $2
	`, providerID, key))
	if db.IsNoRows(err) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}

// InsertAppointment serializes creates per provider by locking the provider row, so the overlap
// re-check and the insert see the same set of live appointments. The partial unique index on
// (provider_id, appointment_date, start_time) backs the start-equality guarantee on its own.
func (r *BookingRepository) InsertAppointment(ctx context.Context, in booking.NewAppointment) (model.Appointment, bool, error) {
	a := in.Appointment
	var (
		out      model.Appointment
		replayed bool
	)
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if in.IdempotencyKey != "" {
			prior, found, err := lockIdempotencyKey(ctx, tx, a.ProviderID, in.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("lock idempotency key: %w", err)
			}
			if found {
				out, replayed = prior, true
				return nil
			}
		}

		var locked string
		err := tx.QueryRow(ctx, `SELECT id::text FROM providers WHERE id = $1 FOR UPDATE`, a.ProviderID).Scan(&locked)
		if db.IsNoRows(err) {
			return apperr.NotFound("provider not found")
		}
		if err != nil {
			return fmt.Errorf("lock provider: %w", err)
		}

		if in.CheckOverlap {
			booked, err := r.listBooked(ctx, tx, a.ProviderID, a.Date)
			if err != nil {
				return fmt.Errorf("list booked: %w", err)
			}
			slot := availability.Slot{Start: a.StartTime, End: a.EndTime}
			if availability.Conflicts(slot, availability.BusyFromAppointments(booked), availability.ModeOverlap, a.BufferMinutes) {
				return apperr.SlotConflict("time slot already booked")
			}
		}

		out, err = scanAppointment(tx.QueryRow(ctx, `
			INSERT INTO appointments
				(id, provider_id, service_id, client_name, client_email, client_phone, appointment_date,
				 start_time, end_time, status, payment_status, total_amount, buffer_minutes, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
			RETURNING `+appointmentColumns,
			a.ID, a.ProviderID, a.ServiceID, a.ClientName, a.ClientEmail, a.ClientPhone, a.Date,
			a.StartTime, a.EndTime, a.Status, a.PaymentStatus, a.TotalAmount, a.BufferMinutes, a.Notes, a.CreatedAt))
		if db.IsConflict(err) {
			return apperr.SlotConflict("time slot already booked")
		}
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}

		if in.IdempotencyKey != "" {
			if _, err := tx.Exec(ctx, `
				UPDATE booking_idempotency_keys
				SET appointment_id = $3, updated_at = now()
				WHERE provider_id = $1 AND idempotency_key = $2
			`, a.ProviderID, in.IdempotencyKey, out.ID); err != nil {
				return fmt.Errorf("finalize idempotency key: %w", err)
			}
		}
		return r.outbox.Insert(ctx, tx, in.Event)
	})
	if err != nil {
		return model.Appointment{}, false, err
	}
	return out, replayed, nil
}

// lockIdempotencyKey claims key for providerID, waiting for a concurrent holder to finish. It
// reports the appointment a previous request created with the same key.
func lockIdempotencyKey(ctx context.Context, tx pgx.Tx, providerID, key string) (model.Appointment, bool, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (provider_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (provider_id, idempotency_key) DO NOTHING
	`, providerID, key); err != nil {
		return model.Appointment{}, false, err
	}

	var appointmentID string
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, '')
		FROM booking_idempotency_keys
		WHERE provider_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, providerID, key).Scan(&appointmentID); err != nil {
		return model.Appointment{}, false, err
	}
	if appointmentID == "" {
		return model.Appointment{}, false, nil
	}
	appt, err := scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, appointmentID))
	if err != nil {
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}

func (r *BookingRepository) MarkPaid(ctx context.Context, id, reference string, at time.Time, evt outbox.Event) (model.Appointment, bool, error) {
	appt, applied, err := r.compareAndSet(ctx, id, evt, `
		UPDATE appointments
		SET payment_status = 'paid', payment_reference = $2, updated_at = $3
		WHERE id = $1 AND payment_status = 'pending'
		RETURNING `+appointmentColumns, id, reference, at)
	if db.IsUniqueViolation(err) {
		return model.Appointment{}, false, apperr.PaymentNotConfirmed("payment reference already used by another appointment")
	}
	return appt, applied, err
}

func (r *BookingRepository) MarkRefunded(ctx context.Context, id string, at time.Time, evt outbox.Event) (model.Appointment, bool, error) {
	return r.compareAndSet(ctx, id, evt, `
		UPDATE appointments
		SET payment_status = 'refunded', updated_at = $2
		WHERE id = $1 AND payment_status = 'paid'
		RETURNING `+appointmentColumns, id, at)
}

func (r *BookingRepository) TransitionStatus(ctx context.Context, id, from, to string, at time.Time, evt outbox.Event) (model.Appointment, bool, error) {
	return r.compareAndSet(ctx, id, evt, `
		UPDATE appointments
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentColumns, id, from, to, at)
}

// compareAndSet runs a guarded UPDATE ... RETURNING. When the guard no longer holds the
// current row is returned with applied = false and no event is written.
func (r *BookingRepository) compareAndSet(ctx context.Context, id string, evt outbox.Event, sql string, args ...any) (model.Appointment, bool, error) {
	if !validID(id) {
		return model.Appointment{}, false, apperr.NotFound("appointment not found")
	}
	var (
		out     model.Appointment
		applied bool
	)
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		updated, err := scanAppointment(tx.QueryRow(ctx, sql, args...))
		if db.IsNoRows(err) {
			current, err := scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
			if db.IsNoRows(err) {
				return apperr.NotFound("appointment not found")
			}
			out = current
			return err
		}
		if err != nil {
			return err
		}
		out, applied = updated, true
		return r.outbox.Insert(ctx, tx, evt)
	})
	if err != nil {
		return model.Appointment{}, false, err
	}
	return out, applied, nil
}

// ExpirePending claims stale rows with SKIP LOCKED so concurrent sweepers split the backlog.
func (r *BookingRepository) ExpirePending(ctx context.Context, cutoff time.Time, limit int, at time.Time, evt func(model.Appointment) outbox.Event) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	var expired []model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE appointments
			SET status = 'cancelled', payment_status = 'failed', updated_at = $3
			WHERE id IN (
				SELECT id FROM appointments
				WHERE status = 'scheduled' AND payment_status = 'pending' AND created_at < $1
				ORDER BY created_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING `+appointmentColumns, cutoff, limit, at)
		if err != nil {
			return err
		}
		expired, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
			return scanAppointment(row)
		})
		if err != nil {
			return err
		}
		for _, a := range expired {
			if err := r.outbox.Insert(ctx, tx, evt(a)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// prefixed qualifies appointmentColumns with a table alias.
func prefixed(alias string) string {
	return alias + `.id::text, ` + alias + `.provider_id::text, ` + alias + `.service_id::text, ` +
		alias + `.client_name, ` + alias + `.client_email, ` + alias + `.client_phone, ` +
		alias + `.appointment_date, ` + alias + `.start_time, ` + alias + `.end_time, ` +
		alias + `.status, ` + alias + `.payment_status, ` + alias + `.total_amount, ` + alias + `.buffer_minutes, ` +
		`COALESCE(` + alias + `.payment_reference, ''), ` + alias + `.notes, ` + alias + `.created_at, ` + alias + `.updated_at`
}
