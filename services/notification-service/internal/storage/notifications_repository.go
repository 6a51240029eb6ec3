package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/bookly/libs/db"
)

const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

type Notification struct {
	ID            string          `json:"id"`
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	AppointmentID string          `json:"appointmentId"`
	ProviderID    string          `json:"providerId"`
	Channel       string          `json:"channel"`
	Recipient     string          `json:"recipient"`
	Subject       string          `json:"subject,omitempty"`
	Status        string          `json:"status"`
	Error         string          `json:"error,omitempty"`
	SentVia       string          `json:"sentVia,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	payload := n.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (event_id, event_type, appointment_id, provider_id, channel, recipient, subject, status, error, sent_via, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id, channel) DO NOTHING
	`, n.EventID, n.EventType, n.AppointmentID, n.ProviderID, n.Channel, n.Recipient, n.Subject, n.Status, n.Error, n.SentVia, []byte(payload))
	return err
}

// ListByAppointment returns the appointment's notifications, oldest first.
func (r *Repository) ListByAppointment(ctx context.Context, appointmentID string) ([]Notification, error) {
	if _, err := uuid.Parse(appointmentID); err != nil {
		return []Notification{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, event_id, event_type, appointment_id::text, provider_id::text, channel, recipient,
		       subject, status, error, sent_via, payload, created_at
		FROM notifications
		WHERE appointment_id = $1
		ORDER BY created_at, id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Notification, error) {
		var n Notification
		var payload []byte
		err := row.Scan(&n.ID, &n.EventID, &n.EventType, &n.AppointmentID, &n.ProviderID, &n.Channel, &n.Recipient,
			&n.Subject, &n.Status, &n.Error, &n.SentVia, &payload, &n.CreatedAt)
		n.Payload = payload
		return n, err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Notification{}
	}
	return out, nil
}
