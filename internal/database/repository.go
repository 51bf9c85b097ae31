package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cx-tal-miterani/rail-booking-system/internal/models"
	"github.com/cx-tal-miterani/rail-booking-system/internal/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx pool for dsn and verifies it with a ping
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// DraftRepository is a session.Store backed by Postgres
type DraftRepository struct {
	pool *pgxpool.Pool
}

// NewDraftRepository creates a new repository
func NewDraftRepository(pool *pgxpool.Pool) *DraftRepository {
	return &DraftRepository{pool: pool}
}

// EnsureSchema creates the drafts table when missing
func (r *DraftRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create booking_drafts: %w", err)
	}
	return nil
}

// Put upserts the session's draft
func (r *DraftRepository) Put(ctx context.Context, sessionID string, draft models.BookingDraft) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}

	query := `
		INSERT INTO booking_drafts (session_id, draft, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (session_id) DO UPDATE
		SET draft = EXCLUDED.draft, updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, sessionID, data); err != nil {
		return fmt.Errorf("failed to store draft: %w", err)
	}
	return nil
}

// Get returns session.ErrNoDraft when the session has no row
func (r *DraftRepository) Get(ctx context.Context, sessionID string) (models.BookingDraft, error) {
	var draft models.BookingDraft

	rec, err := r.GetRecord(ctx, sessionID)
	if err != nil {
		return draft, err
	}
	if err := json.Unmarshal(rec.Draft, &draft); err != nil {
		return draft, fmt.Errorf("failed to decode draft: %w", err)
	}
	return draft, nil
}

// GetRecord returns the raw row including its update time
func (r *DraftRepository) GetRecord(ctx context.Context, sessionID string) (*DraftRecord, error) {
	query := `
		SELECT session_id, draft, updated_at
		FROM booking_drafts
		WHERE session_id = $1
	`

	var rec DraftRecord
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(&rec.SessionID, &rec.Draft, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrNoDraft
		}
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	return &rec, nil
}

// Clear deletes the row; deleting a missing row is not an error
func (r *DraftRepository) Clear(ctx context.Context, sessionID string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM booking_drafts WHERE session_id = $1", sessionID); err != nil {
		return fmt.Errorf("failed to clear draft: %w", err)
	}
	return nil
}
