package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidClock = errors.New("invalid clock value")

const minutesPerDay = 24 * 60

// ParseClock parses a 24-hour "HH:MM" value into minutes since midnight.
// "24:00" is accepted as the end of the day.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return h*60 + m, nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// AddMinutes returns clock + d formatted as "HH:MM". The result may exceed 24:00 only as an error.
func AddMinutes(clock string, d int) (string, error) {
	start, err := ParseClock(clock)
	if err != nil {
		return "", err
	}
	end := start + d
	if end > minutesPerDay {
		return "", fmt.Errorf("%w: %s plus %d minutes passes midnight", ErrInvalidClock, clock, d)
	}
	return FormatClock(end), nil
}

const DateLayout = "2006-01-02"

// ParseDate parses an ISO-8601 calendar date and returns its weekday.
func ParseDate(s string) (time.Time, time.Weekday, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, 0, err
	}
	return d, d.Weekday(), nil
}
