package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the booking service has no ticket for a reference
	ErrNotFound = errors.New("not found")
	// ErrSubmissionInProgress rejects a second concurrent payment submission
	ErrSubmissionInProgress = errors.New("payment submission already in progress")
	// ErrInvalidTransition is returned for an event the current state does not accept
	ErrInvalidTransition = errors.New("invalid booking state transition")
	// ErrAlreadyConfirmed is returned when a confirmed booking is submitted again
	ErrAlreadyConfirmed = errors.New("booking already confirmed")
)

// ValidationError is a user input problem detected before any network call
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ServiceError is a reply from the booking service with success=false.
// Message is the service's own text and may be empty.
type ServiceError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: booking service declined (status %d)", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Is lets a 404 reply match ErrNotFound
func (e *ServiceError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == 404
}

// TransportError covers network failures, timeouts and unreadable replies
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IssuanceError reports a failed issuance after the payment settled.
// The draft is kept and issuance may be retried without paying again.
type IssuanceError struct {
	PaymentSettled bool
	Err            error
}

func (e *IssuanceError) Error() string {
	return fmt.Sprintf("issuance failed after payment: %v", e.Err)
}

func (e *IssuanceError) Unwrap() error {
	return e.Err
}
