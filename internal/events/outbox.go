package events

import (
	"context"
	"log"
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/database"
)

// OutboxStore is the slice of the database the relay needs
type OutboxStore interface {
	GetPendingOutboxMessages(ctx context.Context, limit int) ([]database.OutboxMessage, error)
	MarkOutboxMessageAsProcessed(ctx context.Context, id string) error
}

// OutboxRelay moves queued outbox messages to the publisher
type OutboxRelay struct {
	store     OutboxStore
	publisher Publisher
	interval  time.Duration
	batch     int
}

// NewOutboxRelay creates a relay polling every interval
func NewOutboxRelay(store OutboxStore, publisher Publisher, interval time.Duration) *OutboxRelay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &OutboxRelay{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batch:     50,
	}
}

// Run relays messages until ctx is cancelled
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("[Outbox] Relay started (interval %s)", r.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Outbox] Relay stopped")
			return
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil {
				log.Printf("[Outbox] %v", err)
			}
		}
	}
}

// Flush publishes one batch of pending messages and returns how many were
// sent. A message that fails to publish stays pending and stops the batch
// so ordering per key is kept.
func (r *OutboxRelay) Flush(ctx context.Context) (int, error) {
	messages, err := r.store.GetPendingOutboxMessages(ctx, r.batch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, msg := range messages {
		if err := r.publisher.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			return sent, err
		}
		if err := r.store.MarkOutboxMessageAsProcessed(ctx, msg.ID); err != nil {
			// Published but not marked: it will be sent again. Consumers dedupe by alert id.
			return sent, err
		}
		sent++
	}
	return sent, nil
}
