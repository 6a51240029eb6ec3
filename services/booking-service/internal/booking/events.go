package booking

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/outbox"
)

// AppointmentEvent is the payload of every booking.appointment.* event.
type AppointmentEvent struct {
	AppointmentID    string    `json:"appointmentId"`
	ProviderID       string    `json:"providerId"`
	ServiceID        string    `json:"serviceId"`
	ClientName       string    `json:"clientName"`
	ClientEmail      string    `json:"clientEmail"`
	ClientPhone      string    `json:"clientPhone,omitempty"`
	Date             string    `json:"date"`
	StartTime        string    `json:"startTime"`
	EndTime          string    `json:"endTime"`
	Status           string    `json:"status"`
	PreviousStatus   string    `json:"previousStatus,omitempty"`
	PaymentStatus    string    `json:"paymentStatus"`
	TotalAmount      int64     `json:"totalAmount"`
	PaymentReference string    `json:"paymentReference,omitempty"`
	OccurredAt       time.Time `json:"occurredAt"`
}

func newEvent(eventType string, a model.Appointment, previousStatus string, at time.Time) outbox.Event {
	payload, _ := json.Marshal(AppointmentEvent{
		AppointmentID:    a.ID,
		ProviderID:       a.ProviderID,
		ServiceID:        a.ServiceID,
		ClientName:       a.ClientName,
		ClientEmail:      a.ClientEmail,
		ClientPhone:      a.ClientPhone,
		Date:             a.Date,
		StartTime:        a.StartTime,
		EndTime:          a.EndTime,
		Status:           a.Status,
		PreviousStatus:   previousStatus,
		PaymentStatus:    a.PaymentStatus,
		TotalAmount:      a.TotalAmount,
		PaymentReference: a.PaymentReference,
		OccurredAt:       at.UTC(),
	})
	return outbox.Event{
		AggregateType: outbox.AggregateAppointment,
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       payload,
	}
}
