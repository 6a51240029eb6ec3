// Package notify turns booking appointment events into client notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/bookly/libs/kafkax"
	"github.com/md-rashed-zaman/bookly/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/bookly/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/bookly/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const (
	EventAppointmentPaid          = "booking.appointment.paid.v1"
	EventAppointmentStatusChanged = "booking.appointment.status_changed.v1"
	EventAppointmentExpired       = "booking.appointment.expired.v1"
	EventAppointmentRefunded      = "booking.appointment.refunded.v1"
)

// Topics lists the booking events that produce a notification.
var Topics = []string{
	EventAppointmentPaid,
	EventAppointmentStatusChanged,
	EventAppointmentExpired,
	EventAppointmentRefunded,
}

// AppointmentEvent mirrors the payload the booking service publishes.
type AppointmentEvent struct {
	AppointmentID  string `json:"appointmentId"`
	ProviderID     string `json:"providerId"`
	ClientName     string `json:"clientName"`
	ClientEmail    string `json:"clientEmail"`
	ClientPhone    string `json:"clientPhone,omitempty"`
	Date           string `json:"date"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previousStatus,omitempty"`
	PaymentStatus  string `json:"paymentStatus"`
	TotalAmount    int64  `json:"totalAmount"`
}

type Store interface {
	Insert(ctx context.Context, n storage.Notification) error
}

type Notifier struct {
	email  email.Sender
	sms    sms.Sender
	store  Store
	logger *slog.Logger
}

// New builds a Notifier. smsSender may be nil to disable SMS.
func New(emailSender email.Sender, smsSender sms.Sender, store Store, logger *slog.Logger) *Notifier {
	if smsSender == nil {
		smsSender = sms.NoopSender{}
	}
	return &Notifier{email: emailSender, sms: smsSender, store: store, logger: logger}
}

// Handle is a kafkax.MessageHandler. Undecodable or irrelevant events are dropped; only a failure to
// persist the notification row is returned, so the consumer retries it.
func (n *Notifier) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	log := n.logger.With("event_id", meta.EventID, "event_type", meta.EventType)

	var evt AppointmentEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		log.Error("invalid appointment event payload", "err", err)
		return nil
	}
	if evt.AppointmentID == "" || evt.ProviderID == "" {
		log.Error("appointment event missing ids")
		return nil
	}

	subject, body, ok := Render(meta.EventType, evt)
	if !ok {
		log.Debug("event has no notification")
		return nil
	}

	if err := n.deliver(ctx, log, meta, evt, msg.Value, "email", evt.ClientEmail, subject, body); err != nil {
		return err
	}
	if strings.TrimSpace(evt.ClientPhone) != "" {
		if err := n.deliver(ctx, log, meta, evt, msg.Value, "sms", evt.ClientPhone, "", subject+". "+withoutGreeting(body)); err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) deliver(ctx context.Context, log *slog.Logger, meta kafkax.EventMeta, evt AppointmentEvent, payload []byte, channel, recipient, subject, body string) error {
	rec := storage.Notification{
		EventID:       meta.EventID,
		EventType:     meta.EventType,
		AppointmentID: evt.AppointmentID,
		ProviderID:    evt.ProviderID,
		Channel:       channel,
		Recipient:     recipient,
		Subject:       subject,
		Payload:       payload,
	}

	var err error
	switch {
	case strings.TrimSpace(recipient) == "":
		rec.Status = storage.StatusSkipped
		rec.Error = "no recipient"
	case channel == "email":
		rec.SentVia = n.email.ProviderID()
		err = n.email.Send(ctx, email.Message{To: recipient, Subject: subject, Body: body})
	default:
		rec.SentVia = n.sms.ProviderID()
		err = n.sms.Send(ctx, sms.Message{To: recipient, Body: body, Reference: meta.EventID})
	}
	if rec.Status == "" {
		rec.Status = storage.StatusSent
		if err != nil {
			rec.Status = storage.StatusFailed
			rec.Error = err.Error()
			log.Error("notification send failed", "err", err, "channel", channel, "appointment_id", evt.AppointmentID)
		}
	}

	if err := n.store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}
	log.Info("notification processed", "channel", channel, "appointment_id", evt.AppointmentID, "status", rec.Status)
	return nil
}

// Render returns the client-facing message for an event, or ok=false when the event does not
// warrant one.
func Render(eventType string, evt AppointmentEvent) (subject, body string, ok bool) {
	when := fmt.Sprintf("%s at %s", evt.Date, evt.StartTime)
	greeting := "Hi"
	if name := strings.TrimSpace(evt.ClientName); name != "" {
		greeting = "Hi " + name
	}

	switch eventType {
	case EventAppointmentPaid:
		return "Your appointment is confirmed",
			fmt.Sprintf("%s,\nyour appointment on %s is confirmed. We received %s.", greeting, when, formatAmount(evt.TotalAmount)), true
	case EventAppointmentExpired:
		return "Your reservation has expired",
			fmt.Sprintf("%s,\nwe did not receive payment for your appointment on %s, so the time was released.", greeting, when), true
	case EventAppointmentRefunded:
		return "Your payment was refunded",
			fmt.Sprintf("%s,\nyour payment of %s for the appointment on %s was refunded.", greeting, formatAmount(evt.TotalAmount), when), true
	case EventAppointmentStatusChanged:
		switch evt.Status {
		case "cancelled":
			return "Your appointment was cancelled",
				fmt.Sprintf("%s,\nyour appointment on %s was cancelled.", greeting, when), true
		case "completed":
			return "Thanks for your visit",
				fmt.Sprintf("%s,\nthanks for coming in on %s.", greeting, when), true
		case "no_show":
			return "We missed you",
				fmt.Sprintf("%s,\nwe missed you at your appointment on %s.", greeting, when), true
		}
	}
	return "", "", false
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func withoutGreeting(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
