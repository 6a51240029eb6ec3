package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/outbox"
)

// UpdateAppointmentStatus moves a scheduled appointment of providerID to a terminal delivery
// status. Appointments of other providers are reported as not found.
func (e *Engine) UpdateAppointmentStatus(ctx context.Context, providerID, appointmentID, status string) (model.Appointment, error) {
	if !model.IsTerminal(status) {
		return model.Appointment{}, apperr.Validation("status must be one of completed, cancelled, no_show")
	}
	appt, err := e.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.ProviderID != providerID {
		return model.Appointment{}, apperr.NotFound("appointment not found")
	}
	if appt.Status != model.StatusScheduled {
		return model.Appointment{}, apperr.Validation("appointment is already %s", appt.Status)
	}

	now := e.now().UTC()
	next := appt
	next.Status = status
	next.UpdatedAt = now
	updated, applied, err := e.repo.TransitionStatus(ctx, appt.ID, model.StatusScheduled, status, now,
		newEvent(outbox.EventAppointmentStatusChanged, next, appt.Status, now))
	if err != nil {
		return model.Appointment{}, err
	}
	if !applied {
		return model.Appointment{}, apperr.Validation("appointment is already %s", updated.Status)
	}
	e.logger.Info("appointment status changed", "appointment_id", updated.ID, "from", appt.Status, "to", status)
	return updated, nil
}

// ExpireStalePending cancels appointments whose payment stayed pending longer than PendingTTL.
func (e *Engine) ExpireStalePending(ctx context.Context, limit int) ([]model.Appointment, error) {
	now := e.now().UTC()
	cutoff := now.Add(-e.cfg.PendingTTL)
	expired, err := e.repo.ExpirePending(ctx, cutoff, limit, now, func(a model.Appointment) outbox.Event {
		return newEvent(outbox.EventAppointmentExpired, a, model.StatusScheduled, now)
	})
	if err != nil {
		return nil, err
	}
	for _, a := range expired {
		e.logger.Info("pending appointment expired", "appointment_id", a.ID, "created_at", a.CreatedAt.Format(time.RFC3339))
	}
	return expired, nil
}
