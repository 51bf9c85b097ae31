package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cx-tal-miterani/rail-booking-system/internal/booking"
	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"go.temporal.io/sdk/client"
)

// PaymentEngine runs the payment step for a session
type PaymentEngine interface {
	Submit(ctx context.Context, c *booking.Coordinator) (booking.Outcome, error)
	// Progress returns state the engine holds outside the coordinator, or nil
	Progress(ctx context.Context, sessionID string) (*booking.Outcome, error)
	// Reset tells the engine the session's draft was replaced
	Reset(ctx context.Context, sessionID string) error
}

// InProcessEngine runs payment and issuance inside the request
type InProcessEngine struct{}

func (InProcessEngine) Submit(ctx context.Context, c *booking.Coordinator) (booking.Outcome, error) {
	return c.SubmitPayment(ctx)
}

func (InProcessEngine) Progress(context.Context, string) (*booking.Outcome, error) {
	return nil, nil
}

// Reset is a no-op: the coordinator already started over
func (InProcessEngine) Reset(context.Context, string) error {
	return nil
}

// TemporalEngine hands payment to the durable booking workflow
type TemporalEngine struct {
	temporalClient client.Client
	paymentDelay   time.Duration
	idleTimeout    time.Duration
}

func NewTemporalEngine(temporalClient client.Client, paymentDelay, idleTimeout time.Duration) *TemporalEngine {
	return &TemporalEngine{
		temporalClient: temporalClient,
		paymentDelay:   paymentDelay,
		idleTimeout:    idleTimeout,
	}
}

// Submit checks the draft locally, then signals the session's workflow,
// starting it when none is running.
func (e *TemporalEngine) Submit(ctx context.Context, c *booking.Coordinator) (booking.Outcome, error) {
	draft, err := c.Draft(ctx)
	if err != nil {
		return booking.Outcome{State: c.State(), Message: booking.UserMessage(err)}, err
	}
	if err := booking.ValidateDraft(draft); err != nil {
		return booking.Outcome{State: c.State(), Message: booking.UserMessage(err)}, err
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:        models.WorkflowID(c.SessionID()),
		TaskQueue: TaskQueue,
	}
	input := models.BookingWorkflowInput{
		SessionID:    c.SessionID(),
		PaymentDelay: e.paymentDelay,
		IdleTimeout:  e.idleTimeout,
	}
	signal := models.SubmitPaymentSignal{RequestedAt: time.Now()}

	_, err = e.temporalClient.SignalWithStartWorkflow(ctx, workflowOptions.ID, models.SignalSubmitPayment, signal, workflowOptions, "BookingWorkflow", input)
	if err != nil {
		return booking.Outcome{State: c.State(), Message: booking.MsgGenericFailure}, fmt.Errorf("failed to signal workflow: %w", err)
	}

	return booking.Outcome{State: booking.StatePaymentInProgress, Message: booking.MsgProcessing}, nil
}

// Progress queries the workflow's state
func (e *TemporalEngine) Progress(ctx context.Context, sessionID string) (*booking.Outcome, error) {
	response, err := e.temporalClient.QueryWorkflow(ctx, models.WorkflowID(sessionID), "", models.QueryGetState)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow: %w", err)
	}

	var state models.BookingWorkflowState
	if err := response.Get(&state); err != nil {
		return nil, fmt.Errorf("failed to decode workflow state: %w", err)
	}

	return &booking.Outcome{
		State:         booking.State(state.State),
		PNR:           state.PNR,
		TransactionID: state.TransactionID,
		Message:       state.Message,
	}, nil
}

// Reset signals a running workflow to drop its paid draft and start over.
// It fails when no workflow runs for the session.
func (e *TemporalEngine) Reset(ctx context.Context, sessionID string) error {
	signal := models.DraftReplacedSignal{ReplacedAt: time.Now()}
	if err := e.temporalClient.SignalWorkflow(ctx, models.WorkflowID(sessionID), "", models.SignalDraftReplaced, signal); err != nil {
		return fmt.Errorf("failed to signal workflow: %w", err)
	}
	return nil
}
