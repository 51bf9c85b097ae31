package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cx-tal-miterani/rail-booking-system/internal/fare"
	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"github.com/cx-tal-miterani/rail-booking-system/internal/payment"
	"github.com/cx-tal-miterani/rail-booking-system/internal/session"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Issuer asks the booking service for a ticket. The key is the same for
// every attempt of one booking run.
type Issuer interface {
	IssueTicket(ctx context.Context, draft models.BookingDraft, idempotencyKey string) (string, error)
}

// PaymentGateway settles the charge for a draft
type PaymentGateway interface {
	Charge(ctx context.Context, draft models.BookingDraft) (payment.Receipt, error)
}

// Outcome is what the payment step reports back to the user
type Outcome struct {
	State         State  `json:"state"`
	PNR           string `json:"pnr,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	Message       string `json:"message"`
}

// Progress is published on every state change
type Progress struct {
	SessionID string    `json:"sessionId"`
	From      State     `json:"from"`
	To        State     `json:"to"`
	PNR       string    `json:"pnr,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Observer receives progress. It must not block.
type Observer func(Progress)

// Option configures a Coordinator
type Option func(*Coordinator)

// WithObserver registers a progress observer
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		c.observers = append(c.observers, o)
	}
}

// Coordinator drives one session's booking from quote to confirmed ticket
type Coordinator struct {
	session   *session.Session
	issuer    Issuer
	payments  PaymentGateway
	logger    *logrus.Entry
	observers []Observer

	submitting atomic.Bool

	mu             sync.Mutex
	state          State
	receipt        *payment.Receipt
	idempotencyKey string
	pnr            string
}

// NewCoordinator returns a coordinator in the Quoted state
func NewCoordinator(sess *session.Session, issuer Issuer, payments PaymentGateway, logger *logrus.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		session:  sess,
		issuer:   issuer,
		payments: payments,
		logger:   logger.WithField("sessionId", sess.ID),
		state:    StateQuoted,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resume rebuilds a coordinator from the session's stored draft, for
// example after a page reload. A draft carrying a settled payment resumes
// in IssuanceFailedAfterPayment so the next submission only retries issuance.
func Resume(ctx context.Context, sess *session.Session, issuer Issuer, payments PaymentGateway, logger *logrus.Logger, opts ...Option) (*Coordinator, error) {
	draft, err := sess.Get(ctx)
	if err != nil {
		return nil, err
	}

	c := NewCoordinator(sess, issuer, payments, logger, opts...)
	switch {
	case draft.Paid():
		c.state = StateIssuanceFailedAfterPayment
		c.idempotencyKey = draft.Payment.IdempotencyKey
		c.receipt = &payment.Receipt{
			TransactionID: draft.Payment.TransactionID,
			Amount:        draft.TotalFare,
			SettledAt:     draft.Payment.SettledAt,
		}
		c.logger.WithField("transactionId", draft.Payment.TransactionID).Info("Resumed a paid booking awaiting issuance")
	case Complete(draft):
		c.state = StateDraftCollected
	}
	return c, nil
}

// State returns the current state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot reports the current state, PNR and receipt without a message
func (c *Coordinator) Snapshot() Outcome {
	return c.outcome("")
}

// SessionID returns the session this coordinator serves
func (c *Coordinator) SessionID() string {
	return c.session.ID
}

// Busy reports whether a payment submission is in flight
func (c *Coordinator) Busy() bool {
	return c.submitting.Load()
}

// Draft returns the session's stored draft
func (c *Coordinator) Draft(ctx context.Context) (models.BookingDraft, error) {
	return c.session.Get(ctx)
}

// Start consumes a quote into a fresh draft, replacing any earlier one.
// It holds the submission guard so a payment cannot start meanwhile.
func (c *Coordinator) Start(ctx context.Context, quote models.FareQuote) (models.BookingDraft, error) {
	if !c.submitting.CompareAndSwap(false, true) {
		return models.BookingDraft{}, ErrSubmissionInProgress
	}
	defer c.submitting.Store(false)

	from := c.State()
	if _, err := Next(from, EventDraftReplaced); err != nil {
		return models.BookingDraft{}, err
	}

	draft := fare.Seed(quote)
	if err := c.session.Put(ctx, draft); err != nil {
		return draft, fmt.Errorf("failed to store draft: %w", err)
	}

	c.mu.Lock()
	receipt := c.receipt
	c.receipt = nil
	c.idempotencyKey = ""
	c.pnr = ""
	c.mu.Unlock()

	if from.Paid() && receipt != nil {
		c.logger.WithField("transactionId", receipt.TransactionID).Warn("Replacing a paid booking that was never issued")
	}
	c.logger.WithFields(logrus.Fields{
		"train": quote.TrainNumber,
		"class": quote.SeatClass,
		"fare":  quote.BaseFare,
	}).Info("Fare quote selected")

	if _, err := c.advance(EventDraftReplaced, ""); err != nil {
		return draft, err
	}
	return draft, nil
}

// CollectPassenger merges passenger details into the draft. Invalid input
// leaves both the state and the stored draft unchanged.
func (c *Coordinator) CollectPassenger(ctx context.Context, p models.Passenger) (models.BookingDraft, error) {
	if !c.submitting.CompareAndSwap(false, true) {
		return models.BookingDraft{}, ErrSubmissionInProgress
	}
	defer c.submitting.Store(false)

	state := c.State()
	if !state.Editable() {
		return models.BookingDraft{}, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, state, EventDraftValid)
	}

	draft, err := c.session.Get(ctx)
	if err != nil {
		return draft, err
	}

	updated := draft.WithPassenger(p)
	if err := ValidateDraft(updated); err != nil {
		return draft, err
	}
	if err := c.session.Put(ctx, updated); err != nil {
		return draft, fmt.Errorf("failed to store draft: %w", err)
	}

	if _, err := c.advance(EventDraftValid, ""); err != nil {
		return updated, err
	}
	return updated, nil
}

// SubmitPayment runs payment and issuance. Only one submission per session
// may be in flight; a concurrent call gets ErrSubmissionInProgress.
func (c *Coordinator) SubmitPayment(ctx context.Context) (Outcome, error) {
	if !c.submitting.CompareAndSwap(false, true) {
		return c.outcome(MsgInProgress), ErrSubmissionInProgress
	}
	defer c.submitting.Store(false)

	// The user cannot abort a payment once it has started
	ctx = context.WithoutCancel(ctx)

	state := c.State()
	if state == StateConfirmed {
		return c.outcome(MsgAlreadyConfirmed), ErrAlreadyConfirmed
	}

	draft, err := c.session.Get(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNoDraft) {
			c.logger.Warn("Payment submitted without a pending booking")
			return c.outcome(MsgNoDraft), err
		}
		return c.outcome(MsgGenericFailure), fmt.Errorf("failed to load draft: %w", err)
	}

	if state == StateIssuanceFailedAfterPayment {
		if _, err := c.advance(EventPaymentSubmitted, MsgProcessing); err != nil {
			return c.outcome(UserMessage(err)), err
		}
		c.logger.Info("Retrying issuance for settled payment")
		return c.issue(ctx, draft)
	}

	if !state.Submittable() {
		err := fmt.Errorf("%w: %s on %s", ErrInvalidTransition, state, EventPaymentSubmitted)
		return c.outcome(MsgNotReady), err
	}

	if err := ValidateDraft(draft); err != nil {
		c.advance(EventSubmissionFailed, UserMessage(err))
		c.logger.WithError(err).Warn("Stored draft is not payable")
		return c.outcome(UserMessage(err)), err
	}

	if _, err := c.advance(EventPaymentSubmitted, MsgProcessing); err != nil {
		return c.outcome(UserMessage(err)), err
	}

	receipt, err := c.payments.Charge(ctx, draft)
	if err != nil {
		c.advance(EventSubmissionFailed, MsgGenericFailure)
		c.logger.WithError(err).Error("Payment failed")
		return c.outcome(MsgGenericFailure), fmt.Errorf("failed to charge: %w", err)
	}

	key := uuid.NewString()
	c.mu.Lock()
	c.receipt = &receipt
	c.idempotencyKey = key
	c.mu.Unlock()

	// Record the settlement next to the draft so a retry from another
	// process, or after this coordinator is evicted, skips the charge.
	draft.Payment = &models.PaymentRecord{
		TransactionID:  receipt.TransactionID,
		IdempotencyKey: key,
		SettledAt:      receipt.SettledAt,
	}
	if err := c.session.Put(ctx, draft); err != nil {
		c.logger.WithError(err).WithField("transactionId", receipt.TransactionID).Error("Settled payment could not be recorded")
	}

	if _, err := c.advance(EventPaymentSettled, MsgProcessing); err != nil {
		return c.outcome(UserMessage(err)), err
	}
	return c.issue(ctx, draft)
}

func (c *Coordinator) issue(ctx context.Context, draft models.BookingDraft) (Outcome, error) {
	c.mu.Lock()
	if c.idempotencyKey == "" && draft.Paid() {
		c.idempotencyKey = draft.Payment.IdempotencyKey
	}
	if c.idempotencyKey == "" {
		c.idempotencyKey = uuid.NewString()
	}
	key := c.idempotencyKey
	c.mu.Unlock()

	pnr, err := c.issuer.IssueTicket(ctx, draft.Booking(), key)
	if err != nil {
		ierr := &IssuanceError{PaymentSettled: true, Err: err}
		c.advance(EventIssuanceFailed, UserMessage(ierr))
		c.logger.WithError(err).WithField("idempotencyKey", key).Warn("Ticket issuance failed after payment")
		return c.outcome(UserMessage(ierr)), ierr
	}

	c.mu.Lock()
	c.pnr = pnr
	c.mu.Unlock()

	if _, err := c.advance(EventIssued, MsgConfirmed); err != nil {
		return c.outcome(UserMessage(err)), err
	}

	if err := c.session.Clear(ctx); err != nil {
		c.logger.WithError(err).Error("Booking confirmed but draft could not be cleared")
	}
	c.logger.WithField("pnr", pnr).Info("Booking confirmed")
	return c.outcome(MsgConfirmed), nil
}

// advance applies ev and notifies observers of the change with msg
func (c *Coordinator) advance(ev Event, msg string) (State, error) {
	c.mu.Lock()
	from := c.state
	to, err := Next(from, ev)
	if err != nil {
		c.mu.Unlock()
		c.logger.WithError(err).Error("Rejected state transition")
		return from, err
	}
	c.state = to
	c.mu.Unlock()

	if from != to {
		c.logger.WithFields(logrus.Fields{"from": from, "to": to}).Debug("Booking state changed")
	}
	c.notify(from, to, msg)
	return to, nil
}

func (c *Coordinator) notify(from, to State, msg string) {
	if len(c.observers) == 0 {
		return
	}
	c.mu.Lock()
	p := Progress{SessionID: c.session.ID, From: from, To: to, PNR: c.pnr, Message: msg, At: time.Now()}
	c.mu.Unlock()

	for _, o := range c.observers {
		o(p)
	}
}

func (c *Coordinator) outcome(msg string) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	o := Outcome{State: c.state, PNR: c.pnr, Message: msg}
	if c.receipt != nil {
		o.TransactionID = c.receipt.TransactionID
	}
	return o
}
