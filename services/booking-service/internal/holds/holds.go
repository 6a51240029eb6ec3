package holds

import (
	"context"
	"errors"
	"time"
)

// ErrTaken is returned when another client already holds the same provider/date/start.
var ErrTaken = errors.New("slot already held")

// Hold temporarily reserves a slot for the client presenting Token.
type Hold struct {
	Token         string    `json:"token"`
	ProviderID    string    `json:"providerId"`
	Date          string    `json:"date"`
	StartTime     string    `json:"startTime"`
	EndTime       string    `json:"endTime"`
	BufferMinutes int       `json:"bufferMinutes"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type Store interface {
	// Place stores h until h.ExpiresAt unless the slot is already held.
	Place(ctx context.Context, h Hold) error
	// List returns the live holds of a provider on date.
	List(ctx context.Context, providerID, date string) ([]Hold, error)
	// Release deletes the hold only when token matches.
	Release(ctx context.Context, providerID, date, startTime, token string) error
}

func key(providerID, date, startTime string) string {
	return "hold:" + providerID + ":" + date + ":" + startTime
}
