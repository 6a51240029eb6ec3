package booking

import (
	"context"
	"strings"

	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/payments"
)

// InitiatePayment asks the gateway for an intent covering the appointment. It never mutates
// the appointment, so a failed attempt can simply be retried.
func (e *Engine) InitiatePayment(ctx context.Context, appointmentID string, amount int64) (payments.Intent, error) {
	if amount <= 0 {
		return payments.Intent{}, apperr.Validation("amount must be positive")
	}
	appt, err := e.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return payments.Intent{}, err
	}
	if appt.Status != model.StatusScheduled || appt.PaymentStatus != model.PaymentPending {
		return payments.Intent{}, apperr.Validation("appointment is not awaiting payment")
	}
	if amount != appt.TotalAmount {
		return payments.Intent{}, apperr.Validation("amount does not match the appointment total")
	}

	intent, err := e.gateway.CreateIntent(ctx, amount, e.cfg.Currency, map[string]string{
		payments.MetadataAppointmentID: appt.ID,
		payments.MetadataProviderID:    appt.ProviderID,
	}, "intent:"+appt.ID)
	if err != nil {
		e.logger.Error("payment intent failed", "err", err, "appointment_id", appt.ID)
		return payments.Intent{}, apperr.PaymentGateway(err, "payment gateway unavailable")
	}
	e.logger.Info("payment intent created", "appointment_id", appt.ID, "intent_id", intent.ID, "amount", amount)
	return intent, nil
}

// ConfirmPayment is the only path from pending to paid. The gateway is queried before any
// change; confirming an appointment already paid with the same reference returns it unchanged
// without contacting the gateway. Delivery status is left as it is: a completed or cancelled
// appointment still records a payment that succeeded.
func (e *Engine) ConfirmPayment(ctx context.Context, appointmentID, reference string) (model.Appointment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return model.Appointment{}, apperr.Validation("payment reference is required")
	}
	appt, err := e.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if paidWith(appt, reference) {
		return appt, nil
	}

	conf, err := e.gateway.Confirm(ctx, reference)
	if err != nil {
		e.logger.Error("payment confirmation query failed", "err", err, "appointment_id", appt.ID, "reference", reference)
		return model.Appointment{}, apperr.PaymentGateway(err, "payment gateway unavailable")
	}
	switch {
	case !conf.Succeeded:
		return model.Appointment{}, apperr.PaymentNotConfirmed("payment has not succeeded")
	case conf.AppointmentID != "" && conf.AppointmentID != appt.ID:
		return model.Appointment{}, apperr.PaymentNotConfirmed("payment belongs to a different appointment")
	case conf.Amount != 0 && conf.Amount != appt.TotalAmount:
		return model.Appointment{}, apperr.PaymentNotConfirmed("payment amount does not match the appointment total")
	}
	if appt.PaymentStatus != model.PaymentPending {
		return model.Appointment{}, e.unapplied(appt, reference)
	}

	now := e.now().UTC()
	next := appt
	next.PaymentStatus = model.PaymentPaid
	next.PaymentReference = reference
	next.UpdatedAt = now

	updated, applied, err := e.repo.MarkPaid(ctx, appt.ID, reference, now, newEvent(outbox.EventAppointmentPaid, next, "", now))
	if err != nil {
		return model.Appointment{}, err
	}
	if !applied {
		// Lost the race to another confirm or the sweeper.
		if paidWith(updated, reference) {
			return updated, nil
		}
		return model.Appointment{}, e.unapplied(updated, reference)
	}

	e.logger.Info("appointment paid", "appointment_id", updated.ID, "reference", reference, "amount", updated.TotalAmount, "status", updated.Status)
	if updated.Status == model.StatusScheduled {
		e.mirrorToCalendar(ctx, updated)
	}
	return updated, nil
}

func paidWith(appt model.Appointment, reference string) bool {
	return appt.PaymentStatus == model.PaymentPaid && appt.PaymentReference == reference
}

// unapplied reports a captured payment the appointment can no longer take.
func (e *Engine) unapplied(appt model.Appointment, reference string) error {
	e.logger.Error("payment succeeded but cannot be applied; refund required",
		"appointment_id", appt.ID, "reference", reference, "status", appt.Status, "payment_status", appt.PaymentStatus)
	return apperr.PaymentUnapplied("payment %s succeeded but the appointment payment is %s", reference, appt.PaymentStatus)
}

func (e *Engine) mirrorToCalendar(ctx context.Context, appt model.Appointment) {
	summary := appt.ClientName
	if service, err := e.repo.GetService(ctx, appt.ServiceID); err == nil {
		summary = service.Name + " - " + appt.ClientName
	}
	eventID, err := e.calendar.CreateEvent(ctx, appt.ProviderID, calendar.Event{
		Summary:       summary,
		Description:   appt.Notes,
		Date:          appt.Date,
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
		AttendeeEmail: appt.ClientEmail,
	})
	if err != nil {
		e.logger.Warn("calendar event creation failed", "err", err, "appointment_id", appt.ID)
		return
	}
	if eventID != "" {
		e.logger.Info("calendar event created", "appointment_id", appt.ID, "calendar_event_id", eventID)
	}
}

// MarkRefunded records an administrative refund of a paid appointment, identified by its
// payment reference. Repeated calls are no-ops.
func (e *Engine) MarkRefunded(ctx context.Context, reference string) (model.Appointment, error) {
	appt, err := e.repo.GetAppointmentByPaymentReference(ctx, reference)
	if err != nil {
		return model.Appointment{}, err
	}
	switch appt.PaymentStatus {
	case model.PaymentRefunded:
		return appt, nil
	case model.PaymentPaid:
	default:
		return model.Appointment{}, apperr.Validation("only paid appointments can be refunded")
	}

	now := e.now().UTC()
	next := appt
	next.PaymentStatus = model.PaymentRefunded
	next.UpdatedAt = now
	updated, applied, err := e.repo.MarkRefunded(ctx, appt.ID, now, newEvent(outbox.EventAppointmentRefunded, next, "", now))
	if err != nil {
		return model.Appointment{}, err
	}
	if !applied && updated.PaymentStatus != model.PaymentRefunded {
		return model.Appointment{}, apperr.Validation("only paid appointments can be refunded")
	}
	e.logger.Info("appointment refunded", "appointment_id", updated.ID, "reference", reference)
	return updated, nil
}
