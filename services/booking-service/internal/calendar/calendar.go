package calendar

import (
	"context"
	"fmt"
	"strings"
)

// Interval is an external busy period on one date, in "HH:MM".
type Interval struct {
	Start   string
	End     string
	Summary string
}

type Event struct {
	Summary       string
	Description   string
	Date          string
	StartTime     string
	EndTime       string
	AttendeeEmail string
}

// Calendar is the provider's external calendar. Busy periods block slots; paid appointments
// are mirrored into it as events.
type Calendar interface {
	Busy(ctx context.Context, providerID, date string) ([]Interval, error)
	CreateEvent(ctx context.Context, providerID string, e Event) (string, error)
}

func New(provider string) (Calendar, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "none":
		return Noop{}, nil
	case "mock":
		return NewMock(DefaultMockBusy()), nil
	default:
		return nil, fmt.Errorf("unknown calendar provider %q", provider)
	}
}

type Noop struct{}

func (Noop) Busy(context.Context, string, string) ([]Interval, error) { return nil, nil }

func (Noop) CreateEvent(context.Context, string, Event) (string, error) { return "", nil }
