package booking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"github.com/cx-tal-miterani/rail-booking-system/internal/session"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var errConnReset = errors.New("connection reset by peer")

func rajdhaniQuote() models.FareQuote {
	return models.FareQuote{
		TrainNumber: "12951",
		TrainName:   "Rajdhani Express",
		JourneyDate: "2024-06-01",
		BaseFare:    500,
		SeatClass:   "Sleeper",
	}
}

func asha() models.Passenger {
	return models.Passenger{Name: "Asha", Age: 30, Gender: "F", Preference: "LOWER"}
}

type CoordinatorTestSuite struct {
	suite.Suite
	store    *session.MemoryStore
	issuer   *fakeIssuer
	gateway  *fakeGateway
	progress []Progress
	mu       sync.Mutex
}

func (s *CoordinatorTestSuite) SetupTest() {
	s.store = session.NewMemoryStore()
	s.issuer = newFakeIssuer(issueResult{pnr: "PNR12345"})
	s.gateway = &fakeGateway{}
	s.progress = nil
}

func (s *CoordinatorTestSuite) newCoordinator() *Coordinator {
	logger, _ := test.NewNullLogger()
	return NewCoordinator(session.New("sess-1", s.store), s.issuer, s.gateway, logger,
		WithObserver(func(p Progress) {
			s.mu.Lock()
			s.progress = append(s.progress, p)
			s.mu.Unlock()
		}))
}

func (s *CoordinatorTestSuite) collected() *Coordinator {
	c := s.newCoordinator()
	_, err := c.Start(context.Background(), rajdhaniQuote())
	s.Require().NoError(err)
	_, err = c.CollectPassenger(context.Background(), asha())
	s.Require().NoError(err)
	return c
}

func (s *CoordinatorTestSuite) states() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []State
	for _, p := range s.progress {
		out = append(out, p.To)
	}
	return out
}

func (s *CoordinatorTestSuite) TestStart_SeedsDraft() {
	c := s.newCoordinator()

	draft, err := c.Start(context.Background(), rajdhaniQuote())

	s.NoError(err)
	s.Equal(StateQuoted, c.State())
	s.Equal(500.0, draft.TotalFare)
	stored, err := s.store.Get(context.Background(), "sess-1")
	s.NoError(err)
	s.Equal(draft, stored)
}

func (s *CoordinatorTestSuite) TestCollectPassenger_Valid() {
	c := s.newCoordinator()
	_, err := c.Start(context.Background(), rajdhaniQuote())
	s.Require().NoError(err)

	draft, err := c.CollectPassenger(context.Background(), models.Passenger{Name: "  Asha ", Age: 30, Gender: "f"})

	s.NoError(err)
	s.Equal(StateDraftCollected, c.State())
	s.Equal("Asha", draft.Name)
	s.Equal(models.GenderFemale, draft.Gender)
	s.Equal(models.BerthAny, draft.Preference)
}

func (s *CoordinatorTestSuite) TestCollectPassenger_InvalidStaysPut() {
	tests := []struct {
		name      string
		passenger models.Passenger
		field     string
	}{
		{"blank name", models.Passenger{Name: "   ", Age: 30, Gender: "F"}, "name"},
		{"zero age", models.Passenger{Name: "Asha", Age: 0, Gender: "F"}, "age"},
		{"negative age", models.Passenger{Name: "Asha", Age: -4, Gender: "F"}, "age"},
		{"unknown gender", models.Passenger{Name: "Asha", Age: 30, Gender: "X"}, "gender"},
		{"unknown berth", models.Passenger{Name: "Asha", Age: 30, Gender: "F", Preference: "ROOF"}, "preference"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			c := s.newCoordinator()
			seeded, err := c.Start(context.Background(), rajdhaniQuote())
			s.Require().NoError(err)

			_, err = c.CollectPassenger(context.Background(), tt.passenger)

			var verr *ValidationError
			s.Require().ErrorAs(err, &verr)
			s.Equal(tt.field, verr.Field)
			s.Equal(StateQuoted, c.State())
			stored, _ := s.store.Get(context.Background(), "sess-1")
			s.Equal(seeded, stored)
			s.Empty(s.issuer.Calls())
		})
	}
}

// A user selects a quote, fills in details and pays; the ticket is issued.
func (s *CoordinatorTestSuite) TestHappyPath() {
	c := s.collected()

	outcome, err := c.SubmitPayment(context.Background())

	s.NoError(err)
	s.Equal(StateConfirmed, outcome.State)
	s.Equal("PNR12345", outcome.PNR)
	s.Equal(MsgConfirmed, outcome.Message)
	s.NotEmpty(outcome.TransactionID)
	s.Equal(1, s.gateway.Charges())

	calls := s.issuer.Calls()
	s.Require().Len(calls, 1)
	s.Equal("Asha", calls[0].draft.Name)
	s.False(calls[0].draft.Paid())
	s.Equal(500.0, calls[0].draft.TotalFare)
	s.NotEmpty(calls[0].key)

	_, err = s.store.Get(context.Background(), "sess-1")
	s.ErrorIs(err, session.ErrNoDraft)

	s.Equal([]State{StateQuoted, StateDraftCollected, StatePaymentInProgress, StateIssuing, StateConfirmed}, s.states())
}

// The train fills up between quote and issuance; the paid draft is kept.
func (s *CoordinatorTestSuite) TestIssuanceRefusedAfterPayment() {
	s.issuer = newFakeIssuer(issueResult{err: &ServiceError{Op: "book_ticket", StatusCode: 500, Message: "Train is Full (Waitlist Assigned)"}})
	c := s.collected()

	outcome, err := c.SubmitPayment(context.Background())

	var ierr *IssuanceError
	s.Require().ErrorAs(err, &ierr)
	s.True(ierr.PaymentSettled)
	s.Equal(StateIssuanceFailedAfterPayment, outcome.State)
	s.Equal("Train is Full (Waitlist Assigned)", outcome.Message)

	stored, err := s.store.Get(context.Background(), "sess-1")
	s.NoError(err)
	s.Equal("Asha", stored.Name)
	s.Require().True(stored.Paid())
	s.Equal(outcome.TransactionID, stored.Payment.TransactionID)
	s.Equal(s.issuer.Calls()[0].key, stored.Payment.IdempotencyKey)
}

func (s *CoordinatorTestSuite) TestIssuanceFailureMessages() {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"service without message", &ServiceError{Op: "book_ticket", StatusCode: 500}, MsgIssuanceFailed},
		{"transport", &TransportError{Op: "book_ticket", Err: errConnReset}, MsgGenericFailure},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			s.issuer = newFakeIssuer(issueResult{err: tt.err})
			c := s.collected()

			outcome, err := c.SubmitPayment(context.Background())

			s.Error(err)
			s.Equal(tt.want, outcome.Message)
			s.Equal(StateIssuanceFailedAfterPayment, c.State())
		})
	}
}

func (s *CoordinatorTestSuite) TestRetryAfterIssuanceFailureSkipsPayment() {
	s.issuer = newFakeIssuer(
		issueResult{err: &TransportError{Op: "book_ticket", Err: errConnReset}},
		issueResult{pnr: "PNR54321"},
	)
	c := s.collected()

	_, err := c.SubmitPayment(context.Background())
	s.Require().Error(err)

	outcome, err := c.SubmitPayment(context.Background())

	s.NoError(err)
	s.Equal(StateConfirmed, outcome.State)
	s.Equal("PNR54321", outcome.PNR)
	s.Equal(1, s.gateway.Charges())

	calls := s.issuer.Calls()
	s.Require().Len(calls, 2)
	s.Equal(calls[0].key, calls[1].key)
	s.Equal(calls[0].draft, calls[1].draft)
}

func (s *CoordinatorTestSuite) TestPaidDraftCannotBeEdited() {
	s.issuer = newFakeIssuer(issueResult{err: &ServiceError{Op: "book_ticket", StatusCode: 500}})
	c := s.collected()
	_, _ = c.SubmitPayment(context.Background())

	_, err := c.CollectPassenger(context.Background(), models.Passenger{Name: "Ravi", Age: 40, Gender: "M"})

	s.ErrorIs(err, ErrInvalidTransition)
	stored, _ := s.store.Get(context.Background(), "sess-1")
	s.Equal("Asha", stored.Name)
}

func (s *CoordinatorTestSuite) TestSubmitWithoutDraft() {
	c := s.collected()
	s.Require().NoError(s.store.Clear(context.Background(), "sess-1"))

	outcome, err := c.SubmitPayment(context.Background())

	s.ErrorIs(err, session.ErrNoDraft)
	s.Equal(MsgNoDraft, outcome.Message)
	s.Equal(StateDraftCollected, c.State())
	s.Zero(s.gateway.Charges())
	s.Empty(s.issuer.Calls())
}

func (s *CoordinatorTestSuite) TestSubmitMalformedDraftFailsPayment() {
	c := s.collected()
	broken, _ := s.store.Get(context.Background(), "sess-1")
	broken.Age = 0
	s.Require().NoError(s.store.Put(context.Background(), "sess-1", broken))

	outcome, err := c.SubmitPayment(context.Background())

	var verr *ValidationError
	s.ErrorAs(err, &verr)
	s.Equal(StatePaymentFailed, outcome.State)
	s.Zero(s.gateway.Charges())

	_, err = s.store.Get(context.Background(), "sess-1")
	s.NoError(err)
}

func (s *CoordinatorTestSuite) TestRecoverFromPaymentFailed() {
	c := s.collected()
	broken, _ := s.store.Get(context.Background(), "sess-1")
	broken.Gender = ""
	s.Require().NoError(s.store.Put(context.Background(), "sess-1", broken))
	_, err := c.SubmitPayment(context.Background())
	s.Require().Error(err)

	_, err = c.CollectPassenger(context.Background(), asha())
	s.Require().NoError(err)
	s.Equal(StateDraftCollected, c.State())

	outcome, err := c.SubmitPayment(context.Background())
	s.NoError(err)
	s.Equal(StateConfirmed, outcome.State)
}

func (s *CoordinatorTestSuite) TestSubmitFromQuotedRejected() {
	c := s.newCoordinator()
	_, err := c.Start(context.Background(), rajdhaniQuote())
	s.Require().NoError(err)

	outcome, err := c.SubmitPayment(context.Background())

	s.ErrorIs(err, ErrInvalidTransition)
	s.Equal(MsgNotReady, outcome.Message)
	s.Equal(StateQuoted, c.State())
	s.Zero(s.gateway.Charges())
}

func (s *CoordinatorTestSuite) TestSubmitAfterConfirmed() {
	c := s.collected()
	_, err := c.SubmitPayment(context.Background())
	s.Require().NoError(err)

	_, err = c.SubmitPayment(context.Background())

	s.ErrorIs(err, ErrAlreadyConfirmed)
	s.Len(s.issuer.Calls(), 1)
}

func (s *CoordinatorTestSuite) TestDoubleSubmitRejected() {
	s.gateway = &fakeGateway{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	c := s.collected()

	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitPayment(context.Background())
		done <- err
	}()
	<-s.gateway.entered

	outcome, err := c.SubmitPayment(context.Background())
	s.ErrorIs(err, ErrSubmissionInProgress)
	s.Equal(MsgInProgress, outcome.Message)
	s.True(c.Busy())

	close(s.gateway.gate)
	s.NoError(<-done)
	s.Equal(1, s.gateway.Charges())
	s.Len(s.issuer.Calls(), 1)
	s.False(c.Busy())
}

func (s *CoordinatorTestSuite) TestCancelledContextDoesNotAbortPayment() {
	c := s.collected()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := c.SubmitPayment(ctx)

	s.NoError(err)
	s.Equal(StateConfirmed, outcome.State)
}

func (s *CoordinatorTestSuite) TestGatewayFailure() {
	s.gateway = &fakeGateway{err: errors.New("gateway offline")}
	c := s.collected()

	outcome, err := c.SubmitPayment(context.Background())

	s.Error(err)
	s.Equal(StatePaymentFailed, outcome.State)
	s.Equal(MsgGenericFailure, outcome.Message)
	s.Empty(s.issuer.Calls())
}

func (s *CoordinatorTestSuite) TestTotalFareAlwaysMatchesBase() {
	c := s.collected()
	draft, err := c.Draft(context.Background())
	s.Require().NoError(err)
	s.Equal(draft.BaseFare, draft.TotalFare)

	_, err = c.SubmitPayment(context.Background())
	s.Require().NoError(err)
	issued := s.issuer.Calls()[0].draft
	s.Equal(issued.BaseFare, issued.TotalFare)
}

// Replacing the quote or saving details holds the same guard as payment
func (s *CoordinatorTestSuite) TestSubmitWhileDraftIsWrittenRejected() {
	tests := []struct {
		name  string
		write func(c *Coordinator) error
	}{
		{"new quote", func(c *Coordinator) error {
			_, err := c.Start(context.Background(), rajdhaniQuote())
			return err
		}},
		{"passenger details", func(c *Coordinator) error {
			_, err := c.CollectPassenger(context.Background(), asha())
			return err
		}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			c := s.collected()
			gated := &gatedStore{MemoryStore: s.store, entered: make(chan struct{}, 1), gate: make(chan struct{})}
			c.session = session.New("sess-1", gated)

			done := make(chan error, 1)
			go func() { done <- tt.write(c) }()
			<-gated.entered

			outcome, err := c.SubmitPayment(context.Background())
			s.ErrorIs(err, ErrSubmissionInProgress)
			s.Equal(MsgInProgress, outcome.Message)

			close(gated.gate)
			s.NoError(<-done)
			s.Zero(s.gateway.Charges())
			s.Empty(s.issuer.Calls())
			s.False(c.Busy())
		})
	}
}

func (s *CoordinatorTestSuite) TestNewQuoteWhilePaymentInFlightRejected() {
	s.gateway = &fakeGateway{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	c := s.collected()

	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitPayment(context.Background())
		done <- err
	}()
	<-s.gateway.entered

	_, err := c.Start(context.Background(), rajdhaniQuote())
	s.ErrorIs(err, ErrSubmissionInProgress)
	_, err = c.CollectPassenger(context.Background(), asha())
	s.ErrorIs(err, ErrSubmissionInProgress)

	close(s.gateway.gate)
	s.NoError(<-done)
	s.Equal(StateConfirmed, c.State())
	s.Equal("PNR12345", c.Snapshot().PNR)
}

func (s *CoordinatorTestSuite) TestNewQuoteReplacesUnissuedBooking() {
	s.issuer = newFakeIssuer(
		issueResult{err: &ServiceError{Op: "book_ticket", StatusCode: 500}},
		issueResult{pnr: "PNR54321"},
	)
	c := s.collected()
	_, err := c.SubmitPayment(context.Background())
	s.Require().Error(err)

	quote := rajdhaniQuote()
	quote.TrainNumber = "12009"
	_, err = c.Start(context.Background(), quote)
	s.Require().NoError(err)

	s.Equal(StateQuoted, c.State())
	s.Empty(c.Snapshot().TransactionID)
	stored, err := s.store.Get(context.Background(), "sess-1")
	s.Require().NoError(err)
	s.Equal("12009", stored.TrainNumber)
	s.False(stored.Paid())

	_, err = c.CollectPassenger(context.Background(), asha())
	s.Require().NoError(err)
	outcome, err := c.SubmitPayment(context.Background())
	s.Require().NoError(err)
	s.Equal("PNR54321", outcome.PNR)
	s.Equal(2, s.gateway.Charges())

	calls := s.issuer.Calls()
	s.Require().Len(calls, 2)
	s.Equal("12009", calls[1].draft.TrainNumber)
	s.NotEqual(calls[0].key, calls[1].key)
}

func (s *CoordinatorTestSuite) TestNewQuoteAfterConfirmedRejected() {
	c := s.collected()
	_, err := c.SubmitPayment(context.Background())
	s.Require().NoError(err)

	_, err = c.Start(context.Background(), rajdhaniQuote())

	s.ErrorIs(err, ErrInvalidTransition)
	s.Equal(StateConfirmed, c.State())
}

func (s *CoordinatorTestSuite) TestProgressCarriesOutcomeMessage() {
	s.issuer = newFakeIssuer(issueResult{err: &ServiceError{Op: "book_ticket", StatusCode: 500, Message: "Train is Full (Waitlist Assigned)"}})
	c := s.collected()

	_, err := c.SubmitPayment(context.Background())
	s.Require().Error(err)

	s.mu.Lock()
	last := s.progress[len(s.progress)-1]
	s.mu.Unlock()
	s.Equal(StateIssuanceFailedAfterPayment, last.To)
	s.Equal("Train is Full (Waitlist Assigned)", last.Message)
}

func TestCoordinatorTestSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}

func TestResume(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := session.NewMemoryStore()
	ctx := context.Background()

	_, err := Resume(ctx, session.New("gone", store), newFakeIssuer(issueResult{}), &fakeGateway{}, logger)
	assert.ErrorIs(t, err, session.ErrNoDraft)

	c := NewCoordinator(session.New("sess-1", store), newFakeIssuer(issueResult{}), &fakeGateway{}, logger)
	_, err = c.Start(ctx, rajdhaniQuote())
	require.NoError(t, err)

	resumed, err := Resume(ctx, session.New("sess-1", store), newFakeIssuer(issueResult{}), &fakeGateway{}, logger)
	require.NoError(t, err)
	assert.Equal(t, StateQuoted, resumed.State())

	_, err = c.CollectPassenger(ctx, asha())
	require.NoError(t, err)

	resumed, err = Resume(ctx, session.New("sess-1", store), newFakeIssuer(issueResult{}), &fakeGateway{}, logger)
	require.NoError(t, err)
	assert.Equal(t, StateDraftCollected, resumed.State())
}

func TestResume_PaidDraftRetriesIssuanceOnly(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := session.NewMemoryStore()
	ctx := context.Background()
	draft := completeDraft()
	draft.Payment = &models.PaymentRecord{TransactionID: "TXN00000000000A", IdempotencyKey: "key-1"}
	require.NoError(t, store.Put(ctx, "sess-1", draft))

	gateway := &fakeGateway{}
	issuer := newFakeIssuer(issueResult{pnr: "PNR77777"})
	c, err := Resume(ctx, session.New("sess-1", store), issuer, gateway, logger)
	require.NoError(t, err)
	assert.Equal(t, StateIssuanceFailedAfterPayment, c.State())
	assert.Equal(t, "TXN00000000000A", c.Snapshot().TransactionID)

	outcome, err := c.SubmitPayment(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, outcome.State)
	assert.Zero(t, gateway.Charges())

	calls := issuer.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "key-1", calls[0].key)
	assert.Equal(t, draft.Booking(), calls[0].draft)
}
