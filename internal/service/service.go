package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/cx-tal-miterani/rail-booking-system/internal/booking"
	"github.com/cx-tal-miterani/rail-booking-system/internal/fare"
	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"github.com/cx-tal-miterani/rail-booking-system/internal/session"
	"github.com/cx-tal-miterani/rail-booking-system/internal/ticket"
	"github.com/sirupsen/logrus"
)

const (
	TaskQueue = "rail-booking-queue"
)

// BookingService defines the booking service interface
type BookingService interface {
	SearchTrains(ctx context.Context, from, to, date, class string) ([]TrainOption, error)
	CheckSeats(ctx context.Context, train, date, class string) (int, error)
	RouteMap(ctx context.Context, from, to string) ([]byte, string, error)
	SelectQuote(ctx context.Context, sessionID string, handoff url.Values) (*BookingStatus, error)
	SavePassenger(ctx context.Context, sessionID string, p models.Passenger) (*BookingStatus, error)
	GetBooking(ctx context.Context, sessionID string) (*BookingStatus, error)
	SubmitPayment(ctx context.Context, sessionID string) (*booking.Outcome, error)
	LookupPNR(ctx context.Context, pnr string) (*ticket.View, error)
	TicketPDF(ctx context.Context, pnr string) ([]byte, string, error)
	CancelTicket(ctx context.Context, pnr string) (*ticket.CancelResult, error)
}

// RailClient is the part of the booking service API the BFF uses
type RailClient interface {
	booking.Issuer
	ticket.StatusClient
	ticket.CancelClient
	SearchTrains(ctx context.Context, from, to string) ([]models.SearchResult, error)
	CheckSeats(ctx context.Context, train, date, class string) (int, error)
	RouteMap(ctx context.Context, from, to string) ([]byte, string, error)
}

// TrainOption is a search result with its quote and the encoded handoff
// the passenger page posts back
type TrainOption struct {
	models.SearchResult
	Quote   models.FareQuote `json:"quote"`
	Handoff string           `json:"handoff"`
}

// BookingStatus is the session's pending booking as shown to the user
type BookingStatus struct {
	State         booking.State        `json:"state"`
	Draft         *models.BookingDraft `json:"draft,omitempty"`
	ClassLabel    string               `json:"classLabel,omitempty"`
	PNR           string               `json:"pnr,omitempty"`
	TransactionID string               `json:"transactionId,omitempty"`
	Message       string               `json:"message,omitempty"`
	Busy          bool                 `json:"busy"`
}

// Deps wires the service's collaborators
type Deps struct {
	Resolver  *fare.Resolver
	Registry  *booking.Registry
	Rail      RailClient
	Query     *ticket.Query
	Canceller *ticket.Canceller
	Engine    PaymentEngine
	Logger    *logrus.Logger
}

// bookingServiceImpl implements BookingService
type bookingServiceImpl struct {
	resolver  *fare.Resolver
	registry  *booking.Registry
	rail      RailClient
	query     *ticket.Query
	canceller *ticket.Canceller
	engine    PaymentEngine
	logger    *logrus.Logger
}

// NewBookingService creates a new BookingService
func NewBookingService(d Deps) BookingService {
	engine := d.Engine
	if engine == nil {
		engine = InProcessEngine{}
	}
	return &bookingServiceImpl{
		resolver:  d.Resolver,
		registry:  d.Registry,
		rail:      d.Rail,
		query:     d.Query,
		canceller: d.Canceller,
		engine:    engine,
		logger:    d.Logger,
	}
}

func (s *bookingServiceImpl) SearchTrains(ctx context.Context, from, to, date, class string) ([]TrainOption, error) {
	results, err := s.rail.SearchTrains(ctx, from, to)
	if err != nil {
		return nil, err
	}

	options := make([]TrainOption, 0, len(results))
	for _, r := range results {
		q := s.resolver.Resolve(r, date, class)
		options = append(options, TrainOption{
			SearchResult: r,
			Quote:        q,
			Handoff:      s.resolver.Encode(q).Encode(),
		})
	}
	return options, nil
}

func (s *bookingServiceImpl) CheckSeats(ctx context.Context, train, date, class string) (int, error) {
	if class == "" {
		class = fare.DefaultClass
	}
	return s.rail.CheckSeats(ctx, train, date, class)
}

func (s *bookingServiceImpl) RouteMap(ctx context.Context, from, to string) ([]byte, string, error) {
	return s.rail.RouteMap(ctx, from, to)
}

func (s *bookingServiceImpl) SelectQuote(ctx context.Context, sessionID string, handoff url.Values) (*BookingStatus, error) {
	quote, err := s.resolver.Decode(handoff)
	if err != nil {
		s.logger.WithError(err).WithField("sessionId", sessionID).Warn("Rejected fare handoff")
		return nil, err
	}

	c, draft, err := s.registry.Start(ctx, sessionID, quote)
	if err != nil {
		return nil, err
	}

	// A workflow still holding the previous draft must not issue it
	if err := s.engine.Reset(ctx, sessionID); err != nil {
		s.logger.WithError(err).WithField("sessionId", sessionID).Debug("No workflow to reset")
	}
	return statusOf(c, &draft, ""), nil
}

func (s *bookingServiceImpl) SavePassenger(ctx context.Context, sessionID string, p models.Passenger) (*BookingStatus, error) {
	c, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	draft, err := c.CollectPassenger(ctx, p)
	if err != nil {
		return nil, err
	}
	return statusOf(c, &draft, ""), nil
}

// GetBooking reports the session's booking. Progress held by the engine
// wins over the coordinator, and still answers once the draft is cleared.
func (s *bookingServiceImpl) GetBooking(ctx context.Context, sessionID string) (*BookingStatus, error) {
	progress, err := s.engine.Progress(ctx, sessionID)
	if err != nil {
		s.logger.WithError(err).WithField("sessionId", sessionID).Debug("No workflow progress for session")
	}

	c, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		if progress == nil || !errors.Is(err, session.ErrNoDraft) {
			return nil, err
		}
		return &BookingStatus{
			State:         progress.State,
			PNR:           progress.PNR,
			TransactionID: progress.TransactionID,
			Message:       progress.Message,
		}, nil
	}

	status := statusOf(c, nil, "")
	if draft, err := c.Draft(ctx); err == nil {
		status.Draft = &draft
		status.ClassLabel = draft.ClassLabel()
	}
	if progress != nil {
		status.State = progress.State
		status.PNR = progress.PNR
		status.Message = progress.Message
		if progress.TransactionID != "" {
			status.TransactionID = progress.TransactionID
		}
	}
	return status, nil
}

func (s *bookingServiceImpl) SubmitPayment(ctx context.Context, sessionID string) (*booking.Outcome, error) {
	c, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		return &booking.Outcome{State: booking.StateQuoted, Message: booking.UserMessage(err)}, err
	}

	outcome, err := s.engine.Submit(ctx, c)
	return &outcome, err
}

func (s *bookingServiceImpl) LookupPNR(ctx context.Context, pnr string) (*ticket.View, error) {
	v, err := s.query.Lookup(ctx, pnr)
	if err != nil {
		return nil, err
	}
	s.canceller.Sync(v)
	return v, nil
}

func (s *bookingServiceImpl) TicketPDF(ctx context.Context, pnr string) ([]byte, string, error) {
	v, err := s.LookupPNR(ctx, pnr)
	if err != nil {
		return nil, "", err
	}

	data, err := ticket.RenderPDF(v)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build e-ticket: %w", err)
	}
	return data, ticket.Filename(v), nil
}

func (s *bookingServiceImpl) CancelTicket(ctx context.Context, pnr string) (*ticket.CancelResult, error) {
	res, err := s.canceller.Cancel(ctx, pnr)
	return &res, err
}

func statusOf(c *booking.Coordinator, draft *models.BookingDraft, msg string) *BookingStatus {
	snap := c.Snapshot()
	status := &BookingStatus{
		State:         snap.State,
		Draft:         draft,
		PNR:           snap.PNR,
		TransactionID: snap.TransactionID,
		Message:       msg,
		Busy:          c.Busy(),
	}
	if draft != nil {
		status.ClassLabel = draft.ClassLabel()
	}
	return status
}
