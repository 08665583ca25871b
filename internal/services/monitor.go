package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/engine"
	"github.com/NarenCandy/wild-animal-detection/internal/geometry"
	"github.com/NarenCandy/wild-animal-detection/internal/middleware"
	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
)

// CameraSource describes the monitored camera
type CameraSource struct {
	ID     string
	Device string
	FPS    int
	Width  int
	Height int
	// Detection overrides the global detection settings for this camera
	Detection *pipeline.CameraDetectionConfig
}

// Capture starts and stops frame capture
type Capture interface {
	Start(cameraID, device string, fps, width, height int) error
	Stop(cameraID string) error
}

// Detection starts and stops the per-camera detection loop
type Detection interface {
	StartCamera(cameraID string, cfg *pipeline.CameraDetectionConfig) error
	StopCamera(cameraID string) error
	GetStats(cameraID string) *pipeline.PipelineStats
	GetEffectiveConfig(cameraID string) *pipeline.EffectiveConfig
}

// Viewer is notified when a camera starts or stops streaming
type Viewer interface {
	Attach(cameraID string) error
	Detach(cameraID string)
}

// OwnerSetter receives the user that owns alerts raised while monitoring
type OwnerSetter interface {
	SetOwner(userID string)
}

// MonitorDeps wires the monitor service
type MonitorDeps struct {
	Camera    CameraSource
	Capture   Capture
	Detection Detection
	Owner     OwnerSetter
	Viewer    Viewer
	// State reports the tracked per-class state of the camera's engine
	State func() map[string]engine.ClassState
}

// MonitorStatusResult reports the outcome of a start/stop
type MonitorStatusResult struct {
	Status string `json:"status"`
}

// ClassStateView is one tracked class
type ClassStateView struct {
	Class         string       `json:"class"`
	LastAlertTime time.Time    `json:"last_alert_time"`
	LastBBox      geometry.Box `json:"last_bbox"`
}

// MonitorStatus describes the running monitor
type MonitorStatus struct {
	Running   bool                      `json:"running"`
	Owner     string                    `json:"owner,omitempty"`
	CameraID  string                    `json:"camera_id"`
	StartedAt *time.Time                `json:"started_at,omitempty"`
	Stats     *pipeline.PipelineStats   `json:"stats,omitempty"`
	Config    *pipeline.EffectiveConfig `json:"config,omitempty"`
	Classes   []ClassStateView          `json:"classes"`
}

// MonitorService starts and stops wildlife monitoring of the camera on
// behalf of a user
type MonitorService struct {
	deps MonitorDeps

	mu        sync.Mutex
	running   bool
	owner     string
	startedAt time.Time
}

// NewMonitorService creates a new monitor service
func NewMonitorService(deps MonitorDeps) *MonitorService {
	return &MonitorService{deps: deps}
}

// Start begins monitoring. Alerts raised are owned by the calling user.
func (s *MonitorService) Start(ctx context.Context) (*MonitorStatusResult, error) {
	claims, err := middleware.RequireAuth(ctx)
	if err != nil {
		return nil, unauthorized("Could not validate credentials")
	}
	return s.StartFor(claims.UserID)
}

// StartFor begins monitoring on behalf of userID
func (s *MonitorService) StartFor(userID string) (*MonitorStatusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return &MonitorStatusResult{Status: "already running"}, nil
	}

	cam := s.deps.Camera
	if err := s.deps.Capture.Start(cam.ID, cam.Device, cam.FPS, cam.Width, cam.Height); err != nil {
		return nil, unavailable("failed to start capture: %v", err)
	}
	if err := s.deps.Detection.StartCamera(cam.ID, cam.Detection); err != nil {
		if stopErr := s.deps.Capture.Stop(cam.ID); stopErr != nil {
			log.Printf("[Monitor] Stop camera %s: %v", cam.ID, stopErr)
		}
		return nil, unavailable("failed to start detection: %v", err)
	}
	if s.deps.Viewer != nil {
		if err := s.deps.Viewer.Attach(cam.ID); err != nil {
			log.Printf("[Monitor] Live view unavailable for camera %s: %v", cam.ID, err)
		}
	}
	if s.deps.Owner != nil {
		s.deps.Owner.SetOwner(userID)
	}

	s.running = true
	s.owner = userID
	s.startedAt = time.Now()
	log.Printf("[Monitor] Started camera %s for user %s", cam.ID, userID)
	return &MonitorStatusResult{Status: "started"}, nil
}

// Stop halts monitoring
func (s *MonitorService) Stop(ctx context.Context) (*MonitorStatusResult, error) {
	if _, err := middleware.RequireAuth(ctx); err != nil {
		return nil, unauthorized("Could not validate credentials")
	}
	return s.stop()
}

func (s *MonitorService) stop() (*MonitorStatusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return &MonitorStatusResult{Status: "not running"}, nil
	}

	cam := s.deps.Camera
	var errs []error
	if err := s.deps.Detection.StopCamera(cam.ID); err != nil {
		errs = append(errs, err)
	}
	if s.deps.Viewer != nil {
		s.deps.Viewer.Detach(cam.ID)
	}
	if err := s.deps.Capture.Stop(cam.ID); err != nil {
		errs = append(errs, err)
	}
	if s.deps.Owner != nil {
		s.deps.Owner.SetOwner("")
	}

	s.running = false
	s.owner = ""
	for _, err := range errs {
		log.Printf("[Monitor] Stop camera %s: %v", cam.ID, err)
	}
	log.Printf("[Monitor] Stopped camera %s", cam.ID)
	return &MonitorStatusResult{Status: "stopped"}, nil
}

// Status reports the monitor state and the tracked classes
func (s *MonitorService) Status(ctx context.Context) (*MonitorStatus, error) {
	if _, err := middleware.RequireAuth(ctx); err != nil {
		return nil, unauthorized("Could not validate credentials")
	}

	s.mu.Lock()
	status := &MonitorStatus{
		Running:  s.running,
		Owner:    s.owner,
		CameraID: s.deps.Camera.ID,
		Classes:  []ClassStateView{},
	}
	if s.running {
		started := s.startedAt
		status.StartedAt = &started
		status.Stats = s.deps.Detection.GetStats(s.deps.Camera.ID)
		status.Config = s.deps.Detection.GetEffectiveConfig(s.deps.Camera.ID)
	}
	s.mu.Unlock()

	if s.deps.State != nil {
		for class, st := range s.deps.State() {
			status.Classes = append(status.Classes, ClassStateView{Class: class, LastAlertTime: st.LastAlertTime, LastBBox: st.LastBBox})
		}
		sort.Slice(status.Classes, func(i, j int) bool {
			return status.Classes[i].Class < status.Classes[j].Class
		})
	}
	return status, nil
}

// Running reports whether the camera is monitored
func (s *MonitorService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Close stops monitoring if it is running
func (s *MonitorService) Close() error {
	if _, err := s.stop(); err != nil {
		return fmt.Errorf("failed to stop monitor: %w", err)
	}
	return nil
}
