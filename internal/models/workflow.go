package models

import "time"

// BookingWorkflowInput is the input for the booking workflow
type BookingWorkflowInput struct {
	SessionID    string        `json:"sessionId"`
	PaymentDelay time.Duration `json:"paymentDelay,omitempty"`
	IdleTimeout  time.Duration `json:"idleTimeout,omitempty"`
}

// BookingWorkflowState represents the current state of the booking workflow
type BookingWorkflowState struct {
	SessionID        string    `json:"sessionId"`
	State            string    `json:"state"`
	PNR              string    `json:"pnr,omitempty"`
	TransactionID    string    `json:"transactionId,omitempty"`
	Message          string    `json:"message,omitempty"`
	IssuanceAttempts int       `json:"issuanceAttempts"`
	PaymentsSettled  int       `json:"paymentsSettled"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// Signals for workflow communication
const (
	SignalSubmitPayment = "payment-submitted"
	SignalDraftReplaced = "draft-replaced"
)

// SubmitPaymentSignal is sent when the user presses Pay Now
type SubmitPaymentSignal struct {
	RequestedAt time.Time `json:"requestedAt"`
}

// DraftReplacedSignal is sent when the session selects a new quote
type DraftReplacedSignal struct {
	ReplacedAt time.Time `json:"replacedAt"`
}

// Queries for workflow state
const (
	QueryGetState = "get_state"
)

// WorkflowID returns the booking workflow id for a browser session
func WorkflowID(sessionID string) string {
	return "booking-" + sessionID
}
