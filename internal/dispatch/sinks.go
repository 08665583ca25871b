package dispatch

import (
	"context"
	"errors"

	"github.com/samber/lo"

	"github.com/NarenCandy/wild-animal-detection/internal/client"
	"github.com/NarenCandy/wild-animal-detection/internal/geometry"
	"github.com/NarenCandy/wild-animal-detection/internal/services"
)

// ErrNoOwner is returned when an alert is raised while nobody owns the
// monitor
var ErrNoOwner = errors.New("alert has no owner")

// AlertCreator stores alerts in-process
type AlertCreator interface {
	CreateFor(ctx context.Context, userID string, p *services.CreateAlertPayload) (*services.AlertView, error)
}

// LocalSink stores alerts through the in-process alert service
type LocalSink struct {
	alerts AlertCreator
}

// NewLocalSink creates a sink over the alert service
func NewLocalSink(alerts AlertCreator) *LocalSink {
	return &LocalSink{alerts: alerts}
}

// Deliver stores the alert, keeping the engine's level
func (s *LocalSink) Deliver(ctx context.Context, a *Alert) error {
	if a.Owner == "" {
		return ErrNoOwner
	}
	_, err := s.alerts.CreateFor(ctx, a.Owner, &services.CreateAlertPayload{
		Animal:     a.Animal,
		ImageURL:   a.ImageURL,
		Confidence: lo.ToPtr(a.Confidence),
		BBox:       boxOrNil(a.BBox),
		CameraID:   a.CameraID,
		Level:      a.Level,
		Timestamp:  a.Timestamp,
	})
	return err
}

// AlertPoster posts alerts to a remote API
type AlertPoster interface {
	CreateAlert(ctx context.Context, req *client.CreateAlertRequest) (*client.Alert, error)
}

// RemoteSink posts alerts to the API server with the client's token. The
// server classifies and owns them.
type RemoteSink struct {
	api AlertPoster
}

// NewRemoteSink creates a sink over an API client
func NewRemoteSink(api AlertPoster) *RemoteSink {
	return &RemoteSink{api: api}
}

// Deliver posts the alert
func (s *RemoteSink) Deliver(ctx context.Context, a *Alert) error {
	_, err := s.api.CreateAlert(ctx, &client.CreateAlertRequest{
		Animal:     a.Animal,
		ImageURL:   a.ImageURL,
		Confidence: lo.ToPtr(a.Confidence),
		BBox:       boxOrNil(a.BBox),
		CameraID:   a.CameraID,
	})
	return err
}

// boxOrNil drops boxes that cannot be stored, such as the degenerate
// boxes of malformed detections
func boxOrNil(b geometry.Box) *geometry.Box {
	if !b.Valid() || !b.IsNormalized() {
		return nil
	}
	return &b
}
