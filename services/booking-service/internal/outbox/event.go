package outbox

// Event is the domain event envelope written to the outbox table in the same transaction as
// the appointment change. The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const AggregateAppointment = "appointment"

const (
	EventAppointmentCreated       = "booking.appointment.created.v1"
	EventAppointmentPaid          = "booking.appointment.paid.v1"
	EventAppointmentStatusChanged = "booking.appointment.status_changed.v1"
	EventAppointmentExpired       = "booking.appointment.expired.v1"
	EventAppointmentRefunded      = "booking.appointment.refunded.v1"
)
