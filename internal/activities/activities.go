package activities

import (
	"context"
	"errors"
	"fmt"

	"github.com/cx-tal-miterani/rail-booking-system/internal/booking"
	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"github.com/cx-tal-miterani/rail-booking-system/internal/session"
	"go.temporal.io/sdk/activity"
)

// Activities bundles the side effects of the booking workflow
type Activities struct {
	Store  session.Store
	Issuer booking.Issuer
}

func NewActivities(store session.Store, issuer booking.Issuer) *Activities {
	return &Activities{Store: store, Issuer: issuer}
}

// LoadDraftOutput describes the session's stored draft
type LoadDraftOutput struct {
	Found    bool                `json:"found"`
	Complete bool                `json:"complete"`
	Problem  string              `json:"problem,omitempty"`
	Draft    models.BookingDraft `json:"draft"`
}

// IssueTicketInput is the input for ticket issuance
type IssueTicketInput struct {
	SessionID      string              `json:"sessionId"`
	Draft          models.BookingDraft `json:"draft"`
	IdempotencyKey string              `json:"idempotencyKey"`
}

// DraftInput names the draft a workflow step acts on. The step only
// touches the stored draft while it is still the same booking.
type DraftInput struct {
	SessionID string              `json:"sessionId"`
	Draft     models.BookingDraft `json:"draft"`
}

// IssueTicketOutput is the issuance result. A refusal is a result, not an
// activity error, so Temporal never retries it on its own.
type IssueTicketOutput struct {
	Success bool   `json:"success"`
	PNR     string `json:"pnr,omitempty"`
	Message string `json:"message,omitempty"`
}

// LoadDraft reads the session's draft and checks it is payable
func (a *Activities) LoadDraft(ctx context.Context, sessionID string) (*LoadDraftOutput, error) {
	logger := activity.GetLogger(ctx)

	draft, err := a.Store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNoDraft) {
		logger.Warn("No pending booking", "sessionId", sessionID)
		return &LoadDraftOutput{Found: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}

	out := &LoadDraftOutput{Found: true, Draft: draft, Complete: true}
	if verr := booking.ValidateDraft(draft); verr != nil {
		out.Complete = false
		out.Problem = booking.UserMessage(verr)
	}
	return out, nil
}

// IssueTicket asks the booking service for a ticket
func (a *Activities) IssueTicket(ctx context.Context, input IssueTicketInput) (*IssueTicketOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Issuing ticket", "sessionId", input.SessionID, "train", input.Draft.TrainNumber)

	pnr, err := a.Issuer.IssueTicket(ctx, input.Draft.Booking(), input.IdempotencyKey)
	if err != nil {
		logger.Warn("Issuance failed after payment", "sessionId", input.SessionID, "error", err)
		return &IssueTicketOutput{
			Success: false,
			Message: booking.UserMessage(&booking.IssuanceError{PaymentSettled: true, Err: err}),
		}, nil
	}

	logger.Info("Ticket issued", "sessionId", input.SessionID, "pnr", pnr)
	return &IssueTicketOutput{Success: true, PNR: pnr}, nil
}

// RecordPayment stores the settled payment with the draft so a later run
// retries issuance instead of charging again
func (a *Activities) RecordPayment(ctx context.Context, input DraftInput) error {
	logger := activity.GetLogger(ctx)

	current, err := a.sameBooking(ctx, input)
	if err != nil || !current {
		return err
	}
	if err := a.Store.Put(ctx, input.SessionID, input.Draft); err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}
	logger.Info("Payment recorded", "sessionId", input.SessionID)
	return nil
}

// ClearDraft removes the session's draft after a confirmed issuance. A
// draft for a different booking is left alone.
func (a *Activities) ClearDraft(ctx context.Context, input DraftInput) error {
	current, err := a.sameBooking(ctx, input)
	if err != nil || !current {
		return err
	}
	if err := a.Store.Clear(ctx, input.SessionID); err != nil {
		return fmt.Errorf("failed to clear draft: %w", err)
	}
	activity.GetLogger(ctx).Info("Draft cleared", "sessionId", input.SessionID)
	return nil
}

// sameBooking reports whether the stored draft is still input's booking
func (a *Activities) sameBooking(ctx context.Context, input DraftInput) (bool, error) {
	stored, err := a.Store.Get(ctx, input.SessionID)
	if errors.Is(err, session.ErrNoDraft) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load draft: %w", err)
	}
	if !stored.SameBooking(input.Draft) {
		activity.GetLogger(ctx).Warn("Draft was replaced, leaving it untouched",
			"sessionId", input.SessionID, "train", stored.TrainNumber)
		return false, nil
	}
	return true, nil
}
