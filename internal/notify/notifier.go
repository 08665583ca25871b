package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/severity"
)

// Notification is one alert pushed to the outside world
type Notification struct {
	Animal    string
	Level     severity.Level
	ImageURL  string
	Location  string
	CameraID  string
	Timestamp time.Time
	// PlayerIDs targets specific devices. Empty means broadcast.
	PlayerIDs []string
}

// Notifier delivers alert notifications
type Notifier interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// Multi fans a notification out to several notifiers. Every notifier is
// tried; the returned error joins the individual failures.
type Multi []Notifier

// Name returns the joined notifier name
func (m Multi) Name() string {
	return "multi"
}

// Notify sends n through every notifier
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			log.Printf("[Notify] %s failed: %v", notifier.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Nop drops every notification
type Nop struct{}

func (Nop) Name() string                               { return "nop" }
func (Nop) Notify(context.Context, Notification) error { return nil }

// AnimalEmoji returns the marker shown in front of an animal name
func AnimalEmoji(animal string) string {
	switch strings.ToLower(strings.TrimSpace(animal)) {
	case "tiger":
		return "🐅"
	case "bear":
		return "🐻"
	case "elephant":
		return "🐘"
	case "boar":
		return "🐗"
	case "human":
		return "👤"
	default:
		return "🦁"
	}
}
