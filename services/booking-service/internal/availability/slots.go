package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
)

const DefaultStepMinutes = 30

// Slot is a candidate {start, end} pair in "HH:MM".
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// GenerateSlots produces candidate slots for every active window on weekday. Each window
// contributes starts at window.start, window.start+step, ... while start+duration <= window.end.
// Windows are concatenated in input order and not merged, so overlapping windows may yield
// duplicate candidates. Windows with unparseable times contribute nothing.
func GenerateSlots(windows []model.AvailabilityWindow, weekday time.Weekday, durationMinutes, stepMinutes int) []Slot {
	if durationMinutes <= 0 {
		return nil
	}
	if stepMinutes <= 0 {
		stepMinutes = DefaultStepMinutes
	}

	var slots []Slot
	for _, w := range windows {
		if !w.IsActive || w.DayOfWeek != int(weekday) {
			continue
		}
		open, err := ParseClock(w.StartTime)
		if err != nil {
			continue
		}
		closeAt, err := ParseClock(w.EndTime)
		if err != nil || closeAt <= open {
			continue
		}
		for t := open; t+durationMinutes <= closeAt; t += stepMinutes {
			slots = append(slots, Slot{Start: FormatClock(t), End: FormatClock(t + durationMinutes)})
		}
	}
	return slots
}

// Fits reports whether [start, start+duration) lies entirely inside one active window on weekday.
func Fits(windows []model.AvailabilityWindow, weekday time.Weekday, start string, durationMinutes int) bool {
	s, err := ParseClock(start)
	if err != nil || durationMinutes <= 0 {
		return false
	}
	for _, w := range windows {
		if !w.IsActive || w.DayOfWeek != int(weekday) {
			continue
		}
		open, err := ParseClock(w.StartTime)
		if err != nil {
			continue
		}
		closeAt, err := ParseClock(w.EndTime)
		if err != nil {
			continue
		}
		if s >= open && s+durationMinutes <= closeAt {
			return true
		}
	}
	return false
}

// DropBefore removes slots starting before clock. Used when the requested date is today.
func DropBefore(slots []Slot, clock string) []Slot {
	cutoff, err := ParseClock(clock)
	if err != nil {
		return slots
	}
	out := slots[:0:0]
	for _, s := range slots {
		if start, err := ParseClock(s.Start); err == nil && start >= cutoff {
			out = append(out, s)
		}
	}
	return out
}

func sortSlots(slots []Slot) {
	// "HH:MM" is zero padded, so lexical order is chronological.
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Start != slots[j].Start {
			return slots[i].Start < slots[j].Start
		}
		return slots[i].End < slots[j].End
	})
}
