package booking

import (
	"context"
	"sync"
	"time"

	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"github.com/cx-tal-miterani/rail-booking-system/internal/session"
	"github.com/sirupsen/logrus"
)

// DefaultIdleTimeout is how long an untouched coordinator stays in memory
const DefaultIdleTimeout = 30 * time.Minute

type entry struct {
	coordinator *Coordinator
	touched     time.Time
}

// Registry holds one coordinator per browser session. Coordinators idle
// for longer than the idle timeout are dropped; the stored draft brings
// them back on the next request.
type Registry struct {
	store    session.Store
	issuer   Issuer
	payments PaymentGateway
	logger   *logrus.Logger
	opts     []Option

	mu           sync.Mutex
	coordinators map[string]*entry
	idleTimeout  time.Duration
	lastSweep    time.Time
	now          func() time.Time
}

func NewRegistry(store session.Store, issuer Issuer, payments PaymentGateway, logger *logrus.Logger, opts ...Option) *Registry {
	return &Registry{
		store:        store,
		issuer:       issuer,
		payments:     payments,
		logger:       logger,
		opts:         opts,
		coordinators: make(map[string]*entry),
		idleTimeout:  DefaultIdleTimeout,
		lastSweep:    time.Now(),
		now:          time.Now,
	}
}

// SetIdleTimeout changes how long an untouched coordinator is kept.
// Non-positive values are ignored.
func (r *Registry) SetIdleTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.idleTimeout = d
	r.mu.Unlock()
}

// Start begins a new booking run for the session from a quote
func (r *Registry) Start(ctx context.Context, sessionID string, quote models.FareQuote) (*Coordinator, models.BookingDraft, error) {
	r.mu.Lock()
	now := r.now()
	r.sweepLocked(now)
	e, ok := r.coordinators[sessionID]
	if !ok || e.coordinator.State().Terminal() {
		e = &entry{coordinator: NewCoordinator(session.New(sessionID, r.store), r.issuer, r.payments, r.logger, r.opts...)}
		r.coordinators[sessionID] = e
	}
	e.touched = now
	r.mu.Unlock()

	draft, err := e.coordinator.Start(ctx, quote)
	return e.coordinator, draft, err
}

// Get returns the session's coordinator, resuming one from the stored
// draft when this process has none.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Coordinator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweepLocked(now)
	if e, ok := r.coordinators[sessionID]; ok {
		e.touched = now
		return e.coordinator, nil
	}

	c, err := Resume(ctx, session.New(sessionID, r.store), r.issuer, r.payments, r.logger, r.opts...)
	if err != nil {
		return nil, err
	}
	r.coordinators[sessionID] = &entry{coordinator: c, touched: now}
	return c, nil
}

// sweepLocked drops idle coordinators that have no submission in flight.
// It runs at most once per half idle timeout.
func (r *Registry) sweepLocked(now time.Time) {
	if now.Sub(r.lastSweep) < r.idleTimeout/2 {
		return
	}
	r.lastSweep = now

	evicted := 0
	for id, e := range r.coordinators {
		if now.Sub(e.touched) < r.idleTimeout || e.coordinator.Busy() {
			continue
		}
		delete(r.coordinators, id)
		evicted++
	}
	if evicted > 0 {
		r.logger.WithFields(logrus.Fields{
			"evicted":   evicted,
			"remaining": len(r.coordinators),
		}).Debug("Dropped idle booking sessions")
	}
}
