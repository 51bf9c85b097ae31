package workflows

import (
	"fmt"
	"time"

	"github.com/cx-tal-miterani/rail-booking-system/internal/activities"
	"github.com/cx-tal-miterani/rail-booking-system/internal/booking"
	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"github.com/cx-tal-miterani/rail-booking-system/internal/payment"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	// IssuanceTimeout bounds one issuance attempt
	IssuanceTimeout = 30 * time.Second
	// DefaultIdleTimeout ends a workflow nobody has touched for this long
	DefaultIdleTimeout = 30 * time.Minute
)

// BookingWorkflowResult is the result of the booking workflow
type BookingWorkflowResult struct {
	State           string `json:"state"`
	PNR             string `json:"pnr,omitempty"`
	TransactionID   string `json:"transactionId,omitempty"`
	Message         string `json:"message,omitempty"`
	PaymentsSettled int    `json:"paymentsSettled"`
}

// BookingWorkflow runs payment and issuance for one session's draft. It waits
// for payment-submitted signals; after a failed issuance the next signal
// retries issuance without charging again. A draft-replaced signal, or a
// stored draft for a different booking, starts the run over from Quoted.
func BookingWorkflow(ctx workflow.Context, input models.BookingWorkflowInput) (*BookingWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Booking workflow started", "sessionId", input.SessionID)

	delay := input.PaymentDelay
	if delay <= 0 {
		delay = payment.DefaultDelay
	}
	idle := input.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	state := models.BookingWorkflowState{
		SessionID:   input.SessionID,
		State:       string(booking.StateQuoted),
		LastUpdated: workflow.Now(ctx),
	}
	if err := workflow.SetQueryHandler(ctx, models.QueryGetState, func() (models.BookingWorkflowState, error) {
		return state, nil
	}); err != nil {
		return nil, err
	}

	advance := func(ev booking.Event) bool {
		next, err := booking.Next(booking.State(state.State), ev)
		if err != nil {
			logger.Error("Rejected state transition", "error", err)
			return false
		}
		state.State = string(next)
		state.LastUpdated = workflow.Now(ctx)
		return true
	}
	result := func() *BookingWorkflowResult {
		return &BookingWorkflowResult{
			State:           state.State,
			PNR:             state.PNR,
			TransactionID:   state.TransactionID,
			Message:         state.Message,
			PaymentsSettled: state.PaymentsSettled,
		}
	}

	var a *activities.Activities
	var loaded activities.LoadDraftOutput
	if err := workflow.ExecuteActivity(ctx, a.LoadDraft, input.SessionID).Get(ctx, &loaded); err != nil {
		return nil, err
	}
	if !loaded.Found {
		state.Message = booking.MsgNoDraft
		return result(), nil
	}

	var paid models.BookingDraft
	idempotencyKey := ""
	switch {
	case loaded.Draft.Paid():
		// An earlier run charged this draft but never issued it
		paid = loaded.Draft
		idempotencyKey = paid.Payment.IdempotencyKey
		state.State = string(booking.StateIssuanceFailedAfterPayment)
		state.TransactionID = paid.Payment.TransactionID
		logger.Info("Resuming a paid booking", "transactionId", state.TransactionID)
	case loaded.Complete:
		advance(booking.EventDraftValid)
	}

	reset := func() {
		if !advance(booking.EventDraftReplaced) {
			return
		}
		paid = models.BookingDraft{}
		idempotencyKey = ""
		state.PNR = ""
		state.TransactionID = ""
		state.Message = ""
	}

	// Payment and issuance must finish even if the workflow is cancelled meanwhile
	payCtx, _ := workflow.NewDisconnectedContext(ctx)
	issueCtx := workflow.WithActivityOptions(payCtx, workflow.ActivityOptions{
		StartToCloseTimeout: IssuanceTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	runID := workflow.GetInfo(ctx).WorkflowExecution.RunID
	submitCh := workflow.GetSignalChannel(ctx, models.SignalSubmitPayment)
	replacedCh := workflow.GetSignalChannel(ctx, models.SignalDraftReplaced)

	for {
		var signal models.SubmitPaymentSignal
		timedOut := false
		replaced := false

		timerCtx, cancelTimer := workflow.WithCancel(ctx)
		selector := workflow.NewSelector(ctx)
		selector.AddReceive(replacedCh, func(c workflow.ReceiveChannel, more bool) {
			var sig models.DraftReplacedSignal
			c.Receive(ctx, &sig)
			replaced = true
		})
		selector.AddReceive(submitCh, func(c workflow.ReceiveChannel, more bool) {
			c.Receive(ctx, &signal)
		})
		selector.AddFuture(workflow.NewTimer(timerCtx, idle), func(f workflow.Future) {
			timedOut = true
		})
		selector.Select(ctx)
		cancelTimer()

		if ctx.Err() != nil {
			logger.Info("Booking workflow cancelled", "state", state.State)
			return result(), nil
		}
		if timedOut {
			logger.Info("Booking workflow idle, draft kept", "state", state.State)
			return result(), nil
		}
		if replaced {
			logger.Info("Draft replaced", "state", state.State)
			reset()
			continue
		}

		logger.Info("Payment submitted", "state", state.State)

		var fresh activities.LoadDraftOutput
		if err := workflow.ExecuteActivity(ctx, a.LoadDraft, input.SessionID).Get(ctx, &fresh); err != nil {
			return nil, err
		}
		if !fresh.Found {
			state.Message = booking.MsgNoDraft
			return result(), nil
		}
		if booking.State(state.State) == booking.StateIssuanceFailedAfterPayment && !fresh.Draft.SameBooking(paid) {
			logger.Warn("Paid draft was replaced, starting over", "train", fresh.Draft.TrainNumber)
			reset()
		}

		if booking.State(state.State) != booking.StateIssuanceFailedAfterPayment {
			if !fresh.Complete {
				if booking.State(state.State) == booking.StateQuoted {
					state.Message = fresh.Problem
				} else {
					advance(booking.EventSubmissionFailed)
					state.Message = fresh.Problem
				}
				drain(submitCh)
				continue
			}
			if booking.State(state.State) != booking.StateDraftCollected {
				advance(booking.EventDraftValid)
			}

			advance(booking.EventPaymentSubmitted)
			state.Message = booking.MsgProcessing
			if err := workflow.Sleep(payCtx, delay); err != nil {
				return nil, err
			}
			state.PaymentsSettled++

			var transactionID string
			if err := workflow.SideEffect(ctx, func(workflow.Context) interface{} {
				return payment.NewTransactionID()
			}).Get(&transactionID); err != nil {
				return nil, err
			}
			idempotencyKey = fmt.Sprintf("%s-%d", runID, state.PaymentsSettled)
			state.TransactionID = transactionID

			paid = fresh.Draft
			paid.Payment = &models.PaymentRecord{
				TransactionID:  transactionID,
				IdempotencyKey: idempotencyKey,
				SettledAt:      workflow.Now(ctx),
			}
			record := activities.DraftInput{SessionID: input.SessionID, Draft: paid}
			if err := workflow.ExecuteActivity(payCtx, a.RecordPayment, record).Get(payCtx, nil); err != nil {
				logger.Error("Settled payment could not be recorded", "error", err)
			}
			advance(booking.EventPaymentSettled)
		} else {
			advance(booking.EventPaymentSubmitted)
		}

		state.IssuanceAttempts++
		var issued activities.IssueTicketOutput
		err := workflow.ExecuteActivity(issueCtx, a.IssueTicket, activities.IssueTicketInput{
			SessionID:      input.SessionID,
			Draft:          paid.Booking(),
			IdempotencyKey: idempotencyKey,
		}).Get(issueCtx, &issued)
		if err != nil {
			logger.Error("Issuance activity failed", "error", err)
			issued = activities.IssueTicketOutput{Message: booking.MsgGenericFailure}
		}

		if !issued.Success {
			advance(booking.EventIssuanceFailed)
			state.Message = issued.Message
			drain(submitCh)
			continue
		}

		state.PNR = issued.PNR
		state.Message = booking.MsgConfirmed
		advance(booking.EventIssued)

		issuedDraft := activities.DraftInput{SessionID: input.SessionID, Draft: paid}
		if err := workflow.ExecuteActivity(payCtx, a.ClearDraft, issuedDraft).Get(payCtx, nil); err != nil {
			logger.Error("Booking confirmed but draft could not be cleared", "error", err)
		}
		logger.Info("Booking confirmed", "pnr", state.PNR)
		return result(), nil
	}
}

// drain discards submissions that queued up while an attempt was running
func drain(ch workflow.ReceiveChannel) {
	var dup models.SubmitPaymentSignal
	for ch.ReceiveAsync(&dup) {
	}
}
