package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Direction names which way a relayed message travelled.
type Direction string

const (
	// Inbound entries are keyed by WhatsApp message id.
	Inbound Direction = "wa_to_chatwoot"
	// Outbound entries are keyed by Chatwoot message id.
	Outbound Direction = "chatwoot_to_wa"
)

// Relay is one ledger entry.
type Relay struct {
	Direction      Direction
	ExternalID     string
	CorrelationID  string
	ChatJID        string
	Status         string // claimed, done
	ConversationID int64
	ResultID       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Claim records that externalID is being relayed. It returns false when the
// id was already claimed, which marks a re-delivered event.
func (db *DB) Claim(ctx context.Context, dir Direction, externalID, correlationID, chatJID string) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `
		INSERT INTO relays (direction, external_id, correlation_id, chat_jid, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'claimed', ?, ?)
		ON CONFLICT (direction, external_id) DO NOTHING`,
		string(dir), externalID, correlationID, chatJID, now, now)
	if err != nil {
		return false, fmt.Errorf("claim %s %s: %w", dir, externalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Complete marks a claimed entry done. resultID is the id the message got on
// the other side.
func (db *DB) Complete(ctx context.Context, dir Direction, externalID string, conversationID int64, resultID string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE relays SET status = 'done', conversation_id = ?, result_id = ?, updated_at = ?
		WHERE direction = ? AND external_id = ?`,
		conversationID, resultID, time.Now().UnixMilli(), string(dir), externalID)
	if err != nil {
		return fmt.Errorf("complete %s %s: %w", dir, externalID, err)
	}
	return nil
}

// Release drops a claim after a failed relay so a later delivery can retry it.
func (db *DB) Release(ctx context.Context, dir Direction, externalID string) error {
	_, err := db.ExecContext(ctx, `
		DELETE FROM relays WHERE direction = ? AND external_id = ? AND status = 'claimed'`,
		string(dir), externalID)
	if err != nil {
		return fmt.Errorf("release %s %s: %w", dir, externalID, err)
	}
	return nil
}

// SentByBridge reports whether waMsgID was produced by an outbound relay.
// Empty replies are recorded without an id and never match.
func (db *DB) SentByBridge(ctx context.Context, waMsgID string) (bool, error) {
	if waMsgID == "" {
		return false, nil
	}
	var one int
	err := db.QueryRowContext(ctx, `
		SELECT 1 FROM relays WHERE direction = ? AND result_id = ? LIMIT 1`,
		string(Outbound), waMsgID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup sent message %s: %w", waMsgID, err)
	}
	return true, nil
}

// GetRelay returns a ledger entry, or nil if none exists.
func (db *DB) GetRelay(ctx context.Context, dir Direction, externalID string) (*Relay, error) {
	var (
		r                    Relay
		direction            string
		createdAt, updatedAt int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT direction, external_id, correlation_id, chat_jid, status, conversation_id, result_id, created_at, updated_at
		FROM relays WHERE direction = ? AND external_id = ?`,
		string(dir), externalID).Scan(&direction, &r.ExternalID, &r.CorrelationID, &r.ChatJID, &r.Status,
		&r.ConversationID, &r.ResultID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Direction = Direction(direction)
	r.CreatedAt = time.UnixMilli(createdAt)
	r.UpdatedAt = time.UnixMilli(updatedAt)
	return &r, nil
}

// Prune deletes entries last touched before cutoff. A claim that old was left
// by a process that stopped mid-relay and is dropped along with finished ones.
func (db *DB) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM relays WHERE updated_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune ledger: %w", err)
	}
	return res.RowsAffected()
}
