package services

import (
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"time"

	"github.com/samber/lo"
	goa "goa.design/goa/v3/pkg"

	"github.com/NarenCandy/wild-animal-detection/internal/database"
	"github.com/NarenCandy/wild-animal-detection/internal/events"
	"github.com/NarenCandy/wild-animal-detection/internal/geometry"
	"github.com/NarenCandy/wild-animal-detection/internal/metrics"
	"github.com/NarenCandy/wild-animal-detection/internal/middleware"
	"github.com/NarenCandy/wild-animal-detection/internal/notify"
	"github.com/NarenCandy/wild-animal-detection/internal/severity"
	"github.com/NarenCandy/wild-animal-detection/internal/ws"
)

// Notification locations, depending on whether the owner has devices
const (
	LocationTargeted  = "Your Farm"
	LocationBroadcast = "Farm Camera"
)

// AlertStore is the alert persistence the alert service needs
type AlertStore interface {
	CreateAlert(ctx context.Context, a *database.AlertRecord) error
	CreateAlertWithEvent(ctx context.Context, a *database.AlertRecord, topic string, payload func(*database.AlertRecord) ([]byte, error)) error
	ListAlertsByUser(ctx context.Context, userID string, since *time.Time, limit int) ([]*database.AlertRecord, error)
	DeleteAlert(ctx context.Context, id, userID string) error
	DeleteAlertsBefore(ctx context.Context, before time.Time) (int64, error)
}

// PlayerLister returns the push devices of a user
type PlayerLister interface {
	ListPlayerIDs(ctx context.Context, userID string) ([]string, error)
}

// AlertPublisher pushes stored alerts to live clients
type AlertPublisher interface {
	PublishAlert(userID string, msg *ws.AlertMessage)
}

// CreateAlertPayload is the body of an alert creation request
type CreateAlertPayload struct {
	Animal     string        `json:"animal"`
	ImageURL   string        `json:"image_url,omitempty"`
	Confidence *float64      `json:"confidence,omitempty"`
	BBox       *geometry.Box `json:"bbox,omitempty"`
	CameraID   string        `json:"camera_id,omitempty"`

	// Level and Timestamp are set by the in-process dispatcher only.
	// Requests over HTTP are always classified server side.
	Level     severity.Level `json:"-"`
	Timestamp time.Time      `json:"-"`
}

// AlertView is the public form of an alert
type AlertView struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	Animal     string        `json:"animal"`
	ImageURL   string        `json:"image_url"`
	AlertLevel string        `json:"alert_level"`
	Confidence *float64      `json:"confidence,omitempty"`
	BBox       *geometry.Box `json:"bbox,omitempty"`
	CameraID   string        `json:"camera_id,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// ListAlertsPayload filters an alert listing
type ListAlertsPayload struct {
	Since *time.Time
	Limit int
}

// AlertList wraps a listing
type AlertList struct {
	Alerts []*AlertView `json:"alerts"`
}

// DeleteResult reports the outcome of a delete
type DeleteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AlertServiceConfig tunes the alert service
type AlertServiceConfig struct {
	// Topic, when set, queues an outbox event with every stored alert
	Topic string
}

// AlertService stores alerts and fans them out to notifications and live
// clients
type AlertService struct {
	alerts     AlertStore
	players    PlayerLister
	classifier *severity.Classifier
	notifier   notify.Notifier
	publisher  AlertPublisher
	metrics    *metrics.Metrics
	cfg        AlertServiceConfig
	now        func() time.Time
}

// NewAlertService creates a new alert service. Requests reporting a human
// are stored as LOW, whatever the class table says.
func NewAlertService(alerts AlertStore, players PlayerLister, classifier *severity.Classifier, notifier notify.Notifier, publisher AlertPublisher, m *metrics.Metrics, cfg AlertServiceConfig) *AlertService {
	if classifier == nil {
		classifier = severity.NewClassifier(nil)
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &AlertService{
		alerts:     alerts,
		players:    players,
		classifier: classifier.With("human", severity.Low),
		notifier:   notifier,
		publisher:  publisher,
		metrics:    m,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Create stores an alert for the authenticated user
func (s *AlertService) Create(ctx context.Context, p *CreateAlertPayload) (*AlertView, error) {
	claims, err := middleware.RequireAuth(ctx)
	if err != nil {
		return nil, unauthorized("Could not validate credentials")
	}
	if p != nil {
		p.Level = ""
		p.Timestamp = time.Time{}
	}
	return s.CreateFor(ctx, claims.UserID, p)
}

// CreateFor stores an alert owned by userID, notifies the owner's devices
// and pushes it to live clients. A failed notification does not fail the
// call.
func (s *AlertService) CreateFor(ctx context.Context, userID string, p *CreateAlertPayload) (*AlertView, error) {
	if err := validateAlert(p); err != nil {
		return nil, err
	}

	animal := strings.ToLower(strings.TrimSpace(p.Animal))
	level := p.Level
	if level == "" {
		level = s.classifier.Classify(animal)
	}
	ts := p.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	rec := &database.AlertRecord{
		UserID:     userID,
		Animal:     animal,
		ImageURL:   p.ImageURL,
		AlertLevel: string(level),
		Confidence: lo.FromPtr(p.Confidence),
		BBox:       p.BBox,
		CameraID:   p.CameraID,
		Timestamp:  ts,
	}

	if s.cfg.Topic != "" {
		err := s.alerts.CreateAlertWithEvent(ctx, rec, s.cfg.Topic, func(a *database.AlertRecord) ([]byte, error) {
			return toEvent(a).Encode()
		})
		if err != nil {
			return nil, err
		}
	} else if err := s.alerts.CreateAlert(ctx, rec); err != nil {
		return nil, err
	}
	s.metrics.Inc(metrics.Stored)

	log.Printf("[Alerts] Alert created: %s (%s) - ID: %s", rec.Animal, rec.AlertLevel, rec.ID)

	s.notify(ctx, rec)

	view := toView(rec)
	if s.publisher != nil {
		s.publisher.PublishAlert(userID, &ws.AlertMessage{
			Type:       "alert",
			ID:         view.ID,
			Animal:     view.Animal,
			AlertLevel: view.AlertLevel,
			ImageURL:   view.ImageURL,
			Confidence: rec.Confidence,
			BBox:       view.BBox,
			CameraID:   view.CameraID,
			Timestamp:  view.Timestamp,
		})
	}
	return view, nil
}

func (s *AlertService) notify(ctx context.Context, rec *database.AlertRecord) {
	var players []string
	if s.players != nil {
		ids, err := s.players.ListPlayerIDs(ctx, rec.UserID)
		if err != nil {
			log.Printf("[Alerts] Failed to get player ids: %v", err)
		}
		players = ids
	}

	location := LocationBroadcast
	if len(players) > 0 {
		location = LocationTargeted
	}

	err := s.notifier.Notify(ctx, notify.Notification{
		Animal:    rec.Animal,
		Level:     severity.Level(rec.AlertLevel),
		ImageURL:  rec.ImageURL,
		Location:  location,
		CameraID:  rec.CameraID,
		Timestamp: rec.Timestamp,
		PlayerIDs: players,
	})
	if err != nil {
		log.Printf("[Alerts] Notification failed for alert %s: %v", rec.ID, err)
		s.metrics.Inc(metrics.NotificationFailed)
		return
	}
	s.metrics.Inc(metrics.NotificationSent)
}

// List returns the authenticated user's alerts, newest first
func (s *AlertService) List(ctx context.Context, p *ListAlertsPayload) (*AlertList, error) {
	claims, err := middleware.RequireAuth(ctx)
	if err != nil {
		return nil, unauthorized("Could not validate credentials")
	}
	if p == nil {
		p = &ListAlertsPayload{}
	}
	if p.Limit < 0 {
		return nil, badRequest("limit must not be negative")
	}

	records, err := s.alerts.ListAlertsByUser(ctx, claims.UserID, p.Since, p.Limit)
	if err != nil {
		return nil, err
	}
	return &AlertList{Alerts: lo.Map(records, func(r *database.AlertRecord, _ int) *AlertView {
		return toView(r)
	})}, nil
}

// Delete removes one of the authenticated user's alerts
func (s *AlertService) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	claims, err := middleware.RequireAuth(ctx)
	if err != nil {
		return nil, unauthorized("Could not validate credentials")
	}

	err = s.alerts.DeleteAlert(ctx, id, claims.UserID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return &DeleteResult{Success: false, Message: "Alert not found or unauthorized"}, nil
	case err != nil:
		return &DeleteResult{Success: false, Message: err.Error()}, nil
	}
	return &DeleteResult{Success: true, Message: "Alert deleted"}, nil
}

// Prune deletes alerts older than retention
func (s *AlertService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return s.alerts.DeleteAlertsBefore(ctx, s.now().Add(-retention))
}

// RunRetention prunes old alerts every interval until ctx is done
func (s *AlertService) RunRetention(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Prune(ctx, retention)
			if err != nil {
				log.Printf("[Alerts] Retention prune failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[Alerts] Pruned %d alerts older than %s", n, retention)
			}
		}
	}
}

func validateAlert(p *CreateAlertPayload) error {
	if p == nil {
		return badRequest("request body is required")
	}
	var err error
	if strings.TrimSpace(p.Animal) == "" {
		err = goa.MergeErrors(err, goa.MissingFieldError("animal", "body"))
	}
	if p.Confidence != nil {
		c := *p.Confidence
		if math.IsNaN(c) || c < 0 || c > 1 {
			err = goa.MergeErrors(err, badRequest("confidence must be within [0,1]"))
		}
	}
	if p.BBox != nil && !(p.BBox.IsNormalized() && p.BBox.Valid()) {
		err = goa.MergeErrors(err, badRequest("bbox must be a normalized box with x1<=x2 and y1<=y2"))
	}
	return err
}

func toView(r *database.AlertRecord) *AlertView {
	v := &AlertView{
		ID:         r.ID,
		UserID:     r.UserID,
		Animal:     r.Animal,
		ImageURL:   r.ImageURL,
		AlertLevel: r.AlertLevel,
		BBox:       r.BBox,
		CameraID:   r.CameraID,
		Timestamp:  r.Timestamp,
	}
	if r.Confidence > 0 {
		v.Confidence = lo.ToPtr(r.Confidence)
	}
	return v
}

func toEvent(a *database.AlertRecord) events.AlertEvent {
	return events.AlertEvent{
		ID:         a.ID,
		UserID:     a.UserID,
		Animal:     a.Animal,
		AlertLevel: a.AlertLevel,
		Confidence: a.Confidence,
		CameraID:   a.CameraID,
		ImageURL:   a.ImageURL,
		Timestamp:  a.Timestamp,
	}
}
