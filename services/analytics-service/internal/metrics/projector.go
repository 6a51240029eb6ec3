// Package metrics projects booking events into per-provider daily counters.
package metrics

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/md-rashed-zaman/bookly/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

const (
	EventAppointmentCreated       = "booking.appointment.created.v1"
	EventAppointmentPaid          = "booking.appointment.paid.v1"
	EventAppointmentStatusChanged = "booking.appointment.status_changed.v1"
	EventAppointmentExpired       = "booking.appointment.expired.v1"
	EventAppointmentRefunded      = "booking.appointment.refunded.v1"
)

var Topics = []string{
	EventAppointmentCreated,
	EventAppointmentPaid,
	EventAppointmentStatusChanged,
	EventAppointmentExpired,
	EventAppointmentRefunded,
}

type AppointmentEvent struct {
	AppointmentID string `json:"appointmentId"`
	ProviderID    string `json:"providerId"`
	ServiceID     string `json:"serviceId"`
	Date          string `json:"date"`
	Status        string `json:"status"`
	TotalAmount   int64  `json:"totalAmount"`
}

// Key identifies one counter row.
type Key struct {
	ProviderID string
	ServiceID  string
	Day        string
}

// Delta is added to the counters of one Key.
type Delta struct {
	Booked         int
	Cancelled      int
	Expired        int
	Completed      int
	NoShow         int
	Paid           int
	PaidAmount     int64
	Refunded       int
	RefundedAmount int64
}

func (d Delta) IsZero() bool { return d == Delta{} }

// DeltaFor maps an event to its counter change. Events that change nothing return a zero Delta.
func DeltaFor(eventType string, evt AppointmentEvent) Delta {
	switch eventType {
	case EventAppointmentCreated:
		return Delta{Booked: 1}
	case EventAppointmentPaid:
		return Delta{Paid: 1, PaidAmount: evt.TotalAmount}
	case EventAppointmentRefunded:
		return Delta{Refunded: 1, RefundedAmount: evt.TotalAmount}
	case EventAppointmentExpired:
		return Delta{Expired: 1}
	case EventAppointmentStatusChanged:
		switch evt.Status {
		case "cancelled":
			return Delta{Cancelled: 1}
		case "completed":
			return Delta{Completed: 1}
		case "no_show":
			return Delta{NoShow: 1}
		}
	}
	return Delta{}
}

type Store interface {
	// Apply adds d to k exactly once per eventID and reports whether it was applied.
	Apply(ctx context.Context, eventID, eventType string, k Key, d Delta) (bool, error)
}

type Projector struct {
	store  Store
	logger *slog.Logger
}

func NewProjector(store Store, logger *slog.Logger) *Projector {
	return &Projector{store: store, logger: logger}
}

// Handle is a kafkax.MessageHandler.
func (p *Projector) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	log := p.logger.With("event_id", meta.EventID, "event_type", meta.EventType)

	var evt AppointmentEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		log.Error("invalid appointment event payload", "err", err)
		return nil
	}
	if evt.ProviderID == "" || evt.ServiceID == "" || evt.Date == "" {
		log.Error("appointment event missing fields")
		return nil
	}

	d := DeltaFor(meta.EventType, evt)
	if d.IsZero() {
		return nil
	}
	applied, err := p.store.Apply(ctx, meta.EventID, meta.EventType, Key{ProviderID: evt.ProviderID, ServiceID: evt.ServiceID, Day: evt.Date}, d)
	if err != nil {
		return err
	}
	if !applied {
		log.Info("duplicate event ignored")
		return nil
	}
	log.Info("metrics recorded", "appointment_id", evt.AppointmentID, "provider_id", evt.ProviderID)
	return nil
}
