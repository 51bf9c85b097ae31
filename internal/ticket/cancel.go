package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cx-tal-miterani/rail-booking-system/internal/booking"
	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// CancelClient asks the booking service to cancel a ticket
type CancelClient interface {
	CancelTicket(ctx context.Context, pnr string) error
}

// CancelResult is what the user sees after a cancel request
type CancelResult struct {
	PNR              string               `json:"pnr"`
	Status           models.BookingStatus `json:"status"`
	Cancellable      bool                 `json:"cancellable"`
	AlreadyCancelled bool                 `json:"alreadyCancelled"`
	Message          string               `json:"message"`
}

// Canceller tracks the visible status of shown bookings and cancels them.
// Requests for different references run independently; concurrent
// requests for the same reference share one service call.
type Canceller struct {
	client CancelClient
	logger *logrus.Entry
	group  singleflight.Group

	mu       sync.RWMutex
	statuses map[string]models.BookingStatus
}

func NewCanceller(client CancelClient, logger *logrus.Logger) *Canceller {
	return &Canceller{
		client:   client,
		logger:   logger.WithField("component", "canceller"),
		statuses: make(map[string]models.BookingStatus),
	}
}

// Track records the status a view is showing. A cancelled reference
// never goes back to an active status.
func (c *Canceller) Track(pnr string, status models.BookingStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if current, ok := c.statuses[pnr]; ok && !current.CanBecome(status) {
		return
	}
	c.statuses[pnr] = status
}

// Status returns the tracked status of a reference
func (c *Canceller) Status(pnr string) (models.BookingStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.statuses[pnr]
	return s, ok
}

// Sync makes a freshly looked-up view agree with confirmed cancellations
func (c *Canceller) Sync(v *View) {
	if status, ok := c.Status(v.Header.PNR); ok && status == models.BookingStatusCancelled {
		v.MarkCancelled()
		return
	}
	c.Track(v.Header.PNR, v.Header.BookingStatus)
}

// Cancel requests cancellation of ref. The visible status only changes
// after the service confirms.
func (c *Canceller) Cancel(ctx context.Context, ref string) (CancelResult, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return CancelResult{Message: MsgBlankReference}, &booking.ValidationError{Field: "pnr_number", Message: MsgBlankReference}
	}

	if status, ok := c.Status(ref); ok && status == models.BookingStatusCancelled {
		return CancelResult{
			PNR:              ref,
			Status:           models.BookingStatusCancelled,
			AlreadyCancelled: true,
			Message:          CancelledMessage(ref),
		}, nil
	}

	// Callers sharing the call must not inherit the first caller's cancellation
	callCtx := context.WithoutCancel(ctx)
	_, err, shared := c.group.Do(ref, func() (interface{}, error) {
		if err := c.client.CancelTicket(callCtx, ref); err != nil {
			return nil, err
		}
		c.Track(ref, models.BookingStatusCancelled)
		return nil, nil
	})
	if err != nil {
		c.logger.WithError(err).WithField("pnr", ref).Warn("Cancellation failed")
		status, _ := c.Status(ref)
		return CancelResult{
			PNR:         ref,
			Status:      status,
			Cancellable: true,
			Message:     CancelMessage(ref, err),
		}, err
	}

	c.logger.WithFields(logrus.Fields{"pnr": ref, "shared": shared}).Info("Booking cancelled")
	return CancelResult{
		PNR:     ref,
		Status:  models.BookingStatusCancelled,
		Message: CancelledMessage(ref),
	}, nil
}

// CancelledMessage is shown after a successful cancellation
func CancelledMessage(pnr string) string {
	return fmt.Sprintf("PNR %s has been successfully cancelled.", pnr)
}

// CancelMessage converts a cancellation error into text for the user
func CancelMessage(pnr string, err error) string {
	var verr *booking.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}

	var serr *booking.ServiceError
	if errors.As(err, &serr) {
		if serr.Message != "" {
			return serr.Message
		}
		return fmt.Sprintf("Failed to cancel PNR %s.", pnr)
	}
	return booking.MsgGenericFailure
}
