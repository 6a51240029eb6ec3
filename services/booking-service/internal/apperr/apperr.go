package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindValidation          Kind = "validation"
	KindPaymentGateway      Kind = "payment_gateway"
	KindPaymentNotConfirmed Kind = "payment_not_confirmed"
	KindSlotConflict        Kind = "slot_conflict"
	KindInternal            Kind = "internal"

	// KindPaymentUnapplied is a payment the gateway captured that the appointment can no longer
	// take (expired, refunded or paid by another payment). The money needs a manual refund.
	KindPaymentUnapplied Kind = "payment_unapplied"
)

// Error is a classified engine failure. Callers branch on Kind, for example retrying
// payment_gateway but not payment_not_confirmed.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func PaymentGateway(err error, message string) error {
	return &Error{Kind: KindPaymentGateway, Message: message, Err: err}
}

func PaymentNotConfirmed(format string, args ...any) error {
	return &Error{Kind: KindPaymentNotConfirmed, Message: fmt.Sprintf(format, args...)}
}

func PaymentUnapplied(format string, args ...any) error {
	return &Error{Kind: KindPaymentUnapplied, Message: fmt.Sprintf(format, args...)}
}

func SlotConflict(format string, args ...any) error {
	return &Error{Kind: KindSlotConflict, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-safe message of err; unclassified errors are hidden.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindPaymentNotConfirmed:
		return http.StatusBadRequest
	case KindPaymentGateway:
		return http.StatusBadGateway
	case KindSlotConflict, KindPaymentUnapplied:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
