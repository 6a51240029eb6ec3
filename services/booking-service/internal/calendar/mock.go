package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mock serves a fixed set of busy periods per date and remembers created events.
type Mock struct {
	busy map[string][]Interval
	now  func() time.Time

	mu     sync.Mutex
	events []Event
}

func NewMock(busy map[string][]Interval) *Mock {
	if busy == nil {
		busy = map[string][]Interval{}
	}
	return &Mock{busy: busy, now: time.Now}
}

// DefaultMockBusy is a demo calendar with a couple of fixed commitments.
func DefaultMockBusy() map[string][]Interval {
	return map[string][]Interval{
		"2025-05-27": {
			{Start: "07:00", End: "08:00", Summary: "Morning Workout"},
			{Start: "14:00", End: "15:00", Summary: "Team Meeting"},
			{Start: "16:00", End: "17:00", Summary: "Client Consultation"},
		},
		"2025-05-28": {
			{Start: "10:00", End: "11:30", Summary: "Client Call"},
		},
	}
}

func (m *Mock) Busy(_ context.Context, _ string, date string) ([]Interval, error) {
	return append([]Interval(nil), m.busy[date]...), nil
}

func (m *Mock) CreateEvent(_ context.Context, _ string, e Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return fmt.Sprintf("mock_event_%d", m.now().UnixNano()), nil
}

func (m *Mock) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
