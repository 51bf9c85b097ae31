package booking

import (
	"context"
	"sync"

	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"github.com/cx-tal-miterani/rail-booking-system/internal/payment"
	"github.com/cx-tal-miterani/rail-booking-system/internal/session"
)

type issueCall struct {
	draft models.BookingDraft
	key   string
}

// fakeIssuer replays scripted results in order; the last one repeats
type fakeIssuer struct {
	mu      sync.Mutex
	results []issueResult
	calls   []issueCall
}

type issueResult struct {
	pnr string
	err error
}

func newFakeIssuer(results ...issueResult) *fakeIssuer {
	return &fakeIssuer{results: results}
}

func (f *fakeIssuer) IssueTicket(_ context.Context, draft models.BookingDraft, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, issueCall{draft: draft, key: key})
	idx := len(f.calls) - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx].pnr, f.results[idx].err
}

func (f *fakeIssuer) Calls() []issueCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]issueCall(nil), f.calls...)
}

// fakeGateway settles instantly, or blocks until released when gate is set
type fakeGateway struct {
	mu      sync.Mutex
	charges int
	entered chan struct{}
	gate    chan struct{}
	err     error
}

func (g *fakeGateway) Charge(_ context.Context, draft models.BookingDraft) (payment.Receipt, error) {
	g.mu.Lock()
	g.charges++
	g.mu.Unlock()

	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.gate != nil {
		<-g.gate
	}
	if g.err != nil {
		return payment.Receipt{}, g.err
	}
	return payment.Receipt{TransactionID: "TXN000000000001", Amount: draft.TotalFare}, nil
}

func (g *fakeGateway) Charges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.charges
}

// gatedStore blocks Put until released when gate is set
type gatedStore struct {
	*session.MemoryStore
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedStore) Put(ctx context.Context, sessionID string, draft models.BookingDraft) error {
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.gate != nil {
		<-g.gate
	}
	return g.MemoryStore.Put(ctx, sessionID, draft)
}
