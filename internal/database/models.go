package database

import (
	"encoding/json"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS booking_drafts (
	session_id TEXT PRIMARY KEY,
	draft      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// DraftRecord is a row of booking_drafts
type DraftRecord struct {
	SessionID string          `json:"sessionId"`
	Draft     json.RawMessage `json:"draft"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
