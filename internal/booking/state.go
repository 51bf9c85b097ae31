package booking

import "fmt"

// State of a booking run
type State string

const (
	StateQuoted                     State = "QUOTED"
	StateDraftCollected             State = "DRAFT_COLLECTED"
	StatePaymentInProgress          State = "PAYMENT_IN_PROGRESS"
	StateIssuing                    State = "ISSUING"
	StateConfirmed                  State = "CONFIRMED"
	StatePaymentFailed              State = "PAYMENT_FAILED"
	StateIssuanceFailedAfterPayment State = "ISSUANCE_FAILED_AFTER_PAYMENT"
)

// Event drives a transition
type Event string

const (
	EventDraftValid       Event = "draft_valid"
	EventPaymentSubmitted Event = "payment_submitted"
	EventSubmissionFailed Event = "submission_failed"
	EventPaymentSettled   Event = "payment_settled"
	EventIssued           Event = "issued"
	EventIssuanceFailed   Event = "issuance_failed"
	EventDraftReplaced    Event = "draft_replaced"
)

// transitions is the complete state machine. Submitting from
// IssuanceFailedAfterPayment goes straight to Issuing: the charge already settled.
// A new quote may replace the draft only while no submission is in flight.
var transitions = map[State]map[Event]State{
	StateQuoted: {
		EventDraftValid:    StateDraftCollected,
		EventDraftReplaced: StateQuoted,
	},
	StateDraftCollected: {
		EventDraftValid:       StateDraftCollected,
		EventPaymentSubmitted: StatePaymentInProgress,
		EventSubmissionFailed: StatePaymentFailed,
		EventDraftReplaced:    StateQuoted,
	},
	StatePaymentFailed: {
		EventDraftValid:       StateDraftCollected,
		EventPaymentSubmitted: StatePaymentInProgress,
		EventSubmissionFailed: StatePaymentFailed,
		EventDraftReplaced:    StateQuoted,
	},
	StatePaymentInProgress: {
		EventPaymentSettled:   StateIssuing,
		EventSubmissionFailed: StatePaymentFailed,
	},
	StateIssuing: {
		EventIssued:         StateConfirmed,
		EventIssuanceFailed: StateIssuanceFailedAfterPayment,
	},
	StateIssuanceFailedAfterPayment: {
		EventPaymentSubmitted: StateIssuing,
		EventDraftReplaced:    StateQuoted,
	},
	StateConfirmed: {},
}

// Next returns the state reached from `from` on ev
func Next(from State, ev Event) (State, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, from, ev)
	}
	return to, nil
}

// Terminal reports whether no further event is accepted
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Paid reports whether the charge for this run has settled
func (s State) Paid() bool {
	switch s {
	case StateIssuing, StateConfirmed, StateIssuanceFailedAfterPayment:
		return true
	}
	return false
}

// Editable reports whether passenger details may still change
func (s State) Editable() bool {
	_, ok := transitions[s][EventDraftValid]
	return ok
}

// Submittable reports whether Pay Now is accepted
func (s State) Submittable() bool {
	_, ok := transitions[s][EventPaymentSubmitted]
	return ok
}
