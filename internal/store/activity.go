package store

import (
	"context"
	"fmt"
	"time"
)

// Triage actions recorded in the ledger.
const (
	ActionFetched = "fetched"
	ActionDrafted = "drafted"
	ActionSent    = "sent"
	ActionFailed  = "failed"
)

// Activity is one row of the triage ledger: what happened to a thread
// and when. The ledger exists for operator visibility; the mail client
// itself never consults it.
type Activity struct {
	ID        int64     `db:"id"`
	ThreadID  string    `db:"thread_id"`
	MessageID string    `db:"message_id"`
	Sender    string    `db:"sender"`
	Subject   string    `db:"subject"`
	Action    string    `db:"action"`
	Detail    string    `db:"detail"`
	CreatedAt time.Time `db:"created_at"`
}

// RecordActivity inserts a ledger entry.
func (db *DB) RecordActivity(ctx context.Context, a *Activity) error {
	query := `
		INSERT INTO triage_activity (thread_id, message_id, sender, subject, action, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		a.ThreadID, a.MessageID, a.Sender, a.Subject, a.Action, a.Detail, now)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.ID = id
	a.CreatedAt = now
	return nil
}

// ThreadActivity returns the ledger entries for one thread, oldest
// first.
func (db *DB) ThreadActivity(ctx context.Context, threadID string) ([]Activity, error) {
	var out []Activity
	query := `SELECT * FROM triage_activity WHERE thread_id = ? ORDER BY id`
	if err := db.SelectContext(ctx, &out, query, threadID); err != nil {
		return nil, fmt.Errorf("failed to load thread activity: %w", err)
	}
	return out, nil
}

// RecentActivity returns the newest ledger entries, most recent first.
func (db *DB) RecentActivity(ctx context.Context, limit int) ([]Activity, error) {
	var out []Activity
	query := `SELECT * FROM triage_activity ORDER BY id DESC LIMIT ?`
	if err := db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, fmt.Errorf("failed to load recent activity: %w", err)
	}
	return out, nil
}
