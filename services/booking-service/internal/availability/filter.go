package availability

import (
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
)

// Mode selects how a candidate slot is compared against busy intervals.
type Mode string

const (
	// ModeStart excludes a slot only when its start equals a booked start.
	ModeStart Mode = "start"
	// ModeOverlap excludes a slot whose buffered interval overlaps a buffered busy interval.
	ModeOverlap Mode = "overlap"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeOverlap:
		return ModeOverlap, nil
	case ModeStart:
		return ModeStart, nil
	}
	return "", fmt.Errorf("unknown conflict mode %q", s)
}

// Busy is an occupied interval on the requested date. External intervals (calendar events)
// carry no booked start of their own and only take part in overlap mode.
type Busy struct {
	Start         string
	End           string
	BufferMinutes int
	External      bool
}

// BusyFromAppointments converts the non-cancelled appointments of a day into busy intervals.
func BusyFromAppointments(appts []model.Appointment) []Busy {
	busy := make([]Busy, 0, len(appts))
	for _, a := range appts {
		if a.Status == model.StatusCancelled {
			continue
		}
		busy = append(busy, Busy{Start: a.StartTime, End: a.EndTime, BufferMinutes: a.BufferMinutes})
	}
	return busy
}

// FilterAvailable drops candidates that conflict with busy and returns the rest sorted by start.
// bufferMinutes is the buffer of the service being booked. An empty result is not an error.
func FilterAvailable(candidates []Slot, busy []Busy, mode Mode, bufferMinutes int) []Slot {
	out := make([]Slot, 0, len(candidates))
	for _, c := range candidates {
		if !Conflicts(c, busy, mode, bufferMinutes) {
			out = append(out, c)
		}
	}
	sortSlots(out)
	return out
}

// Conflicts reports whether slot collides with any busy interval under mode.
func Conflicts(slot Slot, busy []Busy, mode Mode, bufferMinutes int) bool {
	if mode == ModeStart {
		for _, b := range busy {
			if !b.External && b.Start == slot.Start {
				return true
			}
		}
		return false
	}

	start, err := ParseClock(slot.Start)
	if err != nil {
		return true
	}
	end, err := ParseClock(slot.End)
	if err != nil {
		return true
	}
	end += max(bufferMinutes, 0)

	for _, b := range busy {
		bs, err := ParseClock(b.Start)
		if err != nil {
			continue
		}
		be, err := ParseClock(b.End)
		if err != nil {
			continue
		}
		be += max(b.BufferMinutes, 0)
		// Half-open: [start,end) overlaps [bs,be) iff start < be && bs < end.
		if start < be && bs < end {
			return true
		}
	}
	return false
}
