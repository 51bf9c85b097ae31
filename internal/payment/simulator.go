package payment

import (
	"context"
	"strings"
	"time"

	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultDelay is how long a simulated charge takes
const DefaultDelay = time.Second

// Receipt records a settled simulated charge
type Receipt struct {
	TransactionID string    `json:"transactionId"`
	Amount        float64   `json:"amount"`
	SettledAt     time.Time `json:"settledAt"`
}

// Simulator stands in for a payment gateway
type Simulator struct {
	delay  time.Duration
	logger *logrus.Logger
}

func NewSimulator(delay time.Duration, logger *logrus.Logger) *Simulator {
	if delay < 0 {
		delay = 0
	}
	return &Simulator{delay: delay, logger: logger}
}

// Charge waits out the delay and settles. It never fails and does not
// observe cancellation.
func (s *Simulator) Charge(_ context.Context, draft models.BookingDraft) (Receipt, error) {
	s.logger.WithFields(logrus.Fields{
		"train":  draft.TrainNumber,
		"amount": draft.TotalFare,
	}).Debug("Processing simulated payment")

	timer := time.NewTimer(s.delay)
	<-timer.C

	receipt := Receipt{
		TransactionID: NewTransactionID(),
		Amount:        draft.TotalFare,
		SettledAt:     time.Now(),
	}
	s.logger.WithField("transactionId", receipt.TransactionID).Info("Simulated payment settled")
	return receipt, nil
}

// NewTransactionID returns a receipt number such as TXN3F2A9C01B7D4
func NewTransactionID() string {
	return "TXN" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
