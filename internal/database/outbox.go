package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxMessage is an event waiting to be published
type OutboxMessage struct {
	ID        string
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// AddToOutbox queues a message. Call it inside InTx to make it atomic with
// the change it describes.
func (d *Database) AddToOutbox(ctx context.Context, topic, key string, payload []byte) error {
	_, err := d.exec(ctx,
		`INSERT INTO outbox (id, topic, msg_key, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), topic, key, string(payload), now())
	if err != nil {
		return fmt.Errorf("failed to add outbox message: %w", err)
	}
	return nil
}

// GetPendingOutboxMessages returns unprocessed messages, oldest first
func (d *Database) GetPendingOutboxMessages(ctx context.Context, limit int) ([]OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.query(ctx,
		`SELECT id, topic, msg_key, payload, created_at FROM outbox
		WHERE processed_at IS NULL
		ORDER BY created_at, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var payload string
		if err := rows.Scan(&m.ID, &m.Topic, &m.Key, &payload, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Payload = []byte(payload)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkOutboxMessageAsProcessed marks an outbox message as published
func (d *Database) MarkOutboxMessageAsProcessed(ctx context.Context, id string) error {
	_, err := d.exec(ctx, `UPDATE outbox SET processed_at = ? WHERE id = ?`, now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message: %w", err)
	}
	return nil
}

// DeleteProcessedOutbox removes published messages older than before
func (d *Database) DeleteProcessedOutbox(ctx context.Context, before time.Time) (int64, error) {
	res, err := d.exec(ctx,
		`DELETE FROM outbox WHERE processed_at IS NOT NULL AND processed_at < ?`, dbTime(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune outbox: %w", err)
	}
	return res.RowsAffected()
}
