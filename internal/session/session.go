package session

import (
	"context"
	"errors"

	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
)

// DraftKey is the key under which a session's pending booking is stored
const DraftKey = "pendingBooking"

// ErrNoDraft is returned when a session holds no pending booking
var ErrNoDraft = errors.New("no pending booking for session")

// Store persists at most one draft per session id
type Store interface {
	Put(ctx context.Context, sessionID string, draft models.BookingDraft) error
	Get(ctx context.Context, sessionID string) (models.BookingDraft, error)
	Clear(ctx context.Context, sessionID string) error
}

// Key returns the storage key for a session's draft
func Key(sessionID string) string {
	return DraftKey + ":" + sessionID
}

// Session binds a browser session id to a draft store
type Session struct {
	ID    string
	store Store
}

func New(id string, store Store) *Session {
	return &Session{ID: id, store: store}
}

// Put replaces any prior draft for the session
func (s *Session) Put(ctx context.Context, draft models.BookingDraft) error {
	return s.store.Put(ctx, s.ID, draft)
}

// Get returns ErrNoDraft when nothing is stored
func (s *Session) Get(ctx context.Context) (models.BookingDraft, error) {
	return s.store.Get(ctx, s.ID)
}

// Clear is idempotent
func (s *Session) Clear(ctx context.Context) error {
	return s.store.Clear(ctx, s.ID)
}
