package booking

import (
	"errors"

	"github.com/cx-tal-miterani/rail-booking-system/internal/fare"
	"github.com/cx-tal-miterani/rail-booking-system/internal/session"
)

// User-facing texts for the booking flow
const (
	MsgConfirmed        = "Payment Successful! Booking Confirmed."
	MsgProcessing       = "Processing Payment..."
	MsgIssuanceFailed   = "Booking failed after payment."
	MsgGenericFailure   = "An error occurred. Please try again."
	MsgNoDraft          = "No booking details found. Redirecting..."
	MsgInProgress       = "Payment is already being processed."
	MsgAlreadyConfirmed = "This booking is already confirmed."
	MsgNotReady         = "Please complete passenger details before paying."
	MsgInvalidHandoff   = "The selected fare could not be read. Please search again."
)

// UserMessage converts a booking-flow error into text for the user
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}

	var ierr *IssuanceError
	if errors.As(err, &ierr) {
		var serr *ServiceError
		if errors.As(ierr.Err, &serr) && serr.Message != "" {
			return serr.Message
		}
		var terr *TransportError
		if errors.As(ierr.Err, &terr) {
			return MsgGenericFailure
		}
		return MsgIssuanceFailed
	}

	switch {
	case errors.Is(err, session.ErrNoDraft):
		return MsgNoDraft
	case errors.Is(err, ErrSubmissionInProgress):
		return MsgInProgress
	case errors.Is(err, ErrAlreadyConfirmed):
		return MsgAlreadyConfirmed
	case errors.Is(err, ErrInvalidTransition):
		return MsgNotReady
	case errors.Is(err, fare.ErrInvalidHandoff):
		return MsgInvalidHandoff
	}

	var serr *ServiceError
	if errors.As(err, &serr) && serr.Message != "" {
		return serr.Message
	}
	return MsgGenericFailure
}
