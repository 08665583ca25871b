package pipeline

import (
	"sync"
)

// EventBus provides pub/sub for evaluated frames
type EventBus struct {
	subscribers map[*eventSubscription]bool
	mu          sync.RWMutex
}

type eventSubscription struct {
	cameraFilter string // Empty string means receive all cameras
	handler      FrameResultHandler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[*eventSubscription]bool),
	}
}

// Subscribe registers a handler for results from all cameras
// Returns an unsubscribe function
func (b *EventBus) Subscribe(handler FrameResultHandler) func() {
	return b.add(&eventSubscription{handler: handler})
}

// SubscribeCamera registers a handler for results from a specific camera
func (b *EventBus) SubscribeCamera(cameraID string, handler FrameResultHandler) func() {
	return b.add(&eventSubscription{cameraFilter: cameraID, handler: handler})
}

func (b *EventBus) add(sub *eventSubscription) func() {
	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
	}
}

// Publish sends a result to all subscribers
func (b *EventBus) Publish(result *FrameResult) {
	if result == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if sub.cameraFilter != "" && sub.cameraFilter != result.CameraID {
			continue
		}

		// Handlers run synchronously so frames reach them in order.
		// Handlers must not block; slow work belongs on a queue.
		sub.handler.OnFrameResult(result)
	}
}

// SubscriberCount returns the number of active subscribers
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes all subscribers
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.subscribers)
}
