package booking

import (
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookly/services/booking-service/internal/model"
)

// ValidateWindows checks a full weekly availability set before it replaces the stored one.
func ValidateWindows(windows []model.AvailabilityWindow) error {
	for i, w := range windows {
		if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
			return apperr.Validation("window %d: dayOfWeek must be between 0 and 6", i)
		}
		start, err := availability.ParseClock(w.StartTime)
		if err != nil {
			return apperr.Validation("window %d: startTime must be HH:MM", i)
		}
		end, err := availability.ParseClock(w.EndTime)
		if err != nil {
			return apperr.Validation("window %d: endTime must be HH:MM", i)
		}
		if end <= start {
			return apperr.Validation("window %d: endTime must be after startTime", i)
		}
	}
	return nil
}

func ValidateService(s model.Service) error {
	switch {
	case s.Name == "":
		return apperr.Validation("name is required")
	case s.DurationMinutes < model.MinServiceDurationMinutes:
		return apperr.Validation("durationMinutes must be at least %d", model.MinServiceDurationMinutes)
	case s.DurationMinutes > 24*60:
		return apperr.Validation("durationMinutes must fit in a day")
	case s.PriceAmount < 0:
		return apperr.Validation("priceAmount must not be negative")
	case s.BufferMinutes < 0:
		return apperr.Validation("bufferMinutes must not be negative")
	}
	return nil
}
