package ticket

import (
	"context"
	"errors"
	"strings"

	"github.com/cx-tal-miterani/rail-booking-system/internal/booking"
	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"github.com/sirupsen/logrus"
)

// Lookup messages
const (
	MsgBlankReference = "Please enter a PNR number."
	MsgNotFound       = "PNR not found."
	MsgLookupFailed   = "An error occurred while fetching PNR status."
)

// StatusClient fetches ticket segments from the booking service
type StatusClient interface {
	PNRStatus(ctx context.Context, pnr string) ([]models.Segment, error)
}

// Query looks up tickets by reference
type Query struct {
	client StatusClient
	logger *logrus.Entry
}

func NewQuery(client StatusClient, logger *logrus.Logger) *Query {
	return &Query{client: client, logger: logger.WithField("component", "ticket-query")}
}

// Lookup fetches a ticket. A blank reference fails without calling out.
func (q *Query) Lookup(ctx context.Context, ref string) (*View, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, &booking.ValidationError{Field: "pnr", Message: MsgBlankReference}
	}

	segments, err := q.client.PNRStatus(ctx, ref)
	if err != nil {
		if !errors.Is(err, booking.ErrNotFound) {
			q.logger.WithError(err).WithField("pnr", ref).Warn("PNR lookup failed")
		}
		return nil, err
	}
	if len(segments) == 0 {
		return nil, booking.ErrNotFound
	}
	return NewView(segments), nil
}

// LookupMessage converts a lookup error into text for the user
func LookupMessage(err error) string {
	var verr *booking.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}

	var serr *booking.ServiceError
	if errors.As(err, &serr) && serr.Message != "" {
		return serr.Message
	}
	if errors.Is(err, booking.ErrNotFound) {
		return MsgNotFound
	}

	var terr *booking.TransportError
	if errors.As(err, &terr) {
		return MsgLookupFailed
	}
	if serr != nil {
		return MsgNotFound
	}
	return MsgLookupFailed
}
