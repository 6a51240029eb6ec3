package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/outbox"
)

// Repository is the persistence the engine depends on. Lookups return apperr NotFound for
// missing rows. Mutations are compare-and-set: they apply only when the row is still in the
// expected state, write evt in the same transaction, and report whether they applied together
// with the row as it is after the call.
type Repository interface {
	GetProviderBySlug(ctx context.Context, slug string) (model.Provider, error)
	GetService(ctx context.Context, id string) (model.Service, error)
	ListWindows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error)
	// ListBooked returns the non-cancelled appointments of providerID on date.
	ListBooked(ctx context.Context, providerID, date string) ([]model.Appointment, error)

	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	GetAppointmentByPaymentReference(ctx context.Context, reference string) (model.Appointment, error)
	FindByIdempotencyKey(ctx context.Context, providerID, key string) (model.Appointment, bool, error)

	// InsertAppointment stores a new appointment. A duplicate (providerId, date, startTime), or an
	// overlap when CheckOverlap is set, is an apperr SlotConflict. When the idempotency key was
	// already used the original appointment is returned with replayed = true.
	InsertAppointment(ctx context.Context, in NewAppointment) (appt model.Appointment, replayed bool, err error)

	MarkPaid(ctx context.Context, id, reference string, at time.Time, evt outbox.Event) (model.Appointment, bool, error)
	MarkRefunded(ctx context.Context, id string, at time.Time, evt outbox.Event) (model.Appointment, bool, error)
	TransitionStatus(ctx context.Context, id, from, to string, at time.Time, evt outbox.Event) (model.Appointment, bool, error)

	// ExpirePending cancels up to limit scheduled appointments still pending payment that were
	// created before cutoff, marking their payment failed.
	ExpirePending(ctx context.Context, cutoff time.Time, limit int, at time.Time, evt func(model.Appointment) outbox.Event) ([]model.Appointment, error)
}

type NewAppointment struct {
	Appointment    model.Appointment
	IdempotencyKey string
	CheckOverlap   bool
	Event          outbox.Event
}
