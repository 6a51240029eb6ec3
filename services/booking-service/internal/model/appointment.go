package model

import "time"

// Delivery axis.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

// Payment axis.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// Appointment times are wall-clock "HH:MM" values in the provider's timezone; Date is "YYYY-MM-DD".
type Appointment struct {
	ID               string    `json:"id"`
	ProviderID       string    `json:"providerId"`
	ServiceID        string    `json:"serviceId"`
	ClientName       string    `json:"clientName"`
	ClientEmail      string    `json:"clientEmail"`
	ClientPhone      string    `json:"clientPhone,omitempty"`
	Date             string    `json:"date"`
	StartTime        string    `json:"startTime"`
	EndTime          string    `json:"endTime"`
	Status           string    `json:"status"`
	PaymentStatus    string    `json:"paymentStatus"`
	TotalAmount      int64     `json:"totalAmount"`
	BufferMinutes    int       `json:"bufferMinutes"`
	PaymentReference string    `json:"paymentReference,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// IsTerminal reports whether the delivery status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func ValidStatus(status string) bool {
	return status == StatusScheduled || IsTerminal(status)
}

// AppointmentWithService is the shape returned to checkout and the provider dashboard.
type AppointmentWithService struct {
	Appointment
	Service *Service `json:"service,omitempty"`
}
