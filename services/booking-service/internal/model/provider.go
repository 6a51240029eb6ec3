package model

import "time"

type Provider struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	BusinessName string    `json:"businessName"`
	Description  string    `json:"description,omitempty"`
	Timezone     string    `json:"timezone"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Service prices are minor units (cents).
type Service struct {
	ID              string    `json:"id"`
	ProviderID      string    `json:"providerId"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	DurationMinutes int       `json:"durationMinutes"`
	PriceAmount     int64     `json:"priceAmount"`
	BufferMinutes   int       `json:"bufferMinutes"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

const MinServiceDurationMinutes = 15

// AvailabilityWindow is a recurring open interval. DayOfWeek follows time.Weekday (0 = Sunday).
type AvailabilityWindow struct {
	ID         string `json:"id,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
	DayOfWeek  int    `json:"dayOfWeek"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	IsActive   bool   `json:"isActive"`
}

// PublicBooking is the payload of GET /book/{slug}.
type PublicBooking struct {
	Provider Provider  `json:"provider"`
	Services []Service `json:"services"`
}
