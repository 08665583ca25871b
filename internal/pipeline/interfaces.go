package pipeline

import (
	"context"
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/engine"
)

// Detector is the unified interface for all detection backends
type Detector interface {
	// Name returns the detector identifier (e.g., "yolo", "grpc")
	Name() string

	// Type returns the detector type constant
	Type() DetectorType

	// IsHealthy returns true if the detector is operational
	IsHealthy() bool

	// Detect runs detection on a frame and returns normalized results
	Detect(ctx context.Context, frame *FrameData) (*DetectionResult, error)

	// Close releases detector resources
	Close() error
}

// FrameSubscription represents an active subscription to frame data
type FrameSubscription struct {
	CameraID string
	Channel  chan *FrameData
	Done     chan struct{} // Closed when subscription is cancelled
}

// FrameProvider captures frames from camera sources and broadcasts to subscribers
type FrameProvider interface {
	// Start begins capturing frames from the specified camera
	Start(cameraID string, device string, fps int, width int, height int) error

	// Stop halts frame capture for a camera
	Stop(cameraID string) error

	// Subscribe returns a channel that receives frames for a camera
	// Caller must call Unsubscribe when done to prevent resource leaks
	Subscribe(cameraID string, bufferSize int) (*FrameSubscription, error)

	// Unsubscribe removes a frame subscription
	Unsubscribe(sub *FrameSubscription)

	// IsRunning returns true if a camera is actively capturing
	IsRunning(cameraID string) bool

	// GetStats returns capture statistics for a camera
	GetStats(cameraID string) *CaptureStats
}

// CaptureStats contains frame capture statistics
type CaptureStats struct {
	CameraID          string  `json:"camera_id"`
	FramesCaptured    uint64  `json:"frames_captured"`
	FramesDropped     uint64  `json:"frames_dropped"`
	CurrentFPS        float32 `json:"current_fps"`
	LastFrameTime     int64   `json:"last_frame_time"` // Unix timestamp
	ReconnectAttempts uint64  `json:"reconnect_attempts"`
}

// DetectionStrategy decides which frames go through detection.
// Frames it rejects are still streamed, just not evaluated.
type DetectionStrategy interface {
	// Name returns the strategy identifier
	Name() string

	// ShouldDetect determines if detection should run for this frame
	ShouldDetect(frame *FrameData) bool

	// OnDetectionComplete is called after detection completes
	OnDetectionComplete(result *FrameResult)

	// Reset clears internal state (e.g., on camera switch)
	Reset()
}

// Evaluator turns one frame's detections into alert decisions.
// *engine.Engine satisfies it.
type Evaluator interface {
	Evaluate(detections []engine.Detection, now time.Time) []engine.Decision
}

// FrameResultHandler receives evaluated frames
type FrameResultHandler interface {
	// OnFrameResult is called synchronously for every evaluated frame
	OnFrameResult(result *FrameResult)
}

// FrameResultHandlerFunc adapts a function to FrameResultHandler
type FrameResultHandlerFunc func(result *FrameResult)

// OnFrameResult calls f(result)
func (f FrameResultHandlerFunc) OnFrameResult(result *FrameResult) {
	f(result)
}

// DetectorRegistry manages available detectors
type DetectorRegistry interface {
	// Register adds a detector to the registry
	Register(detector Detector) error

	// Get returns a detector by name
	Get(name string) (Detector, bool)

	// GetAll returns all registered detectors
	GetAll() []Detector

	// GetHealthy returns only healthy detectors
	GetHealthy() []Detector

	// GetHealthyByNames returns healthy detectors matching the given names, in order
	GetHealthyByNames(names []string) []Detector

	// Close releases all detector resources
	Close() error
}

// PipelineManager orchestrates the complete detection pipeline
type PipelineManager interface {
	// StartCamera initializes detection for a camera whose frames are already
	// being captured by the frame provider. cameraConfig can be nil.
	StartCamera(cameraID string, cameraConfig *CameraDetectionConfig) error

	// StopCamera halts detection for a camera
	StopCamera(cameraID string) error

	// GetStats returns pipeline statistics
	GetStats(cameraID string) *PipelineStats

	// SubscribeResults registers a handler for evaluated frames
	SubscribeResults(handler FrameResultHandler) func() // Returns unsubscribe function

	// Close shuts down the pipeline manager
	Close() error
}

// PipelineStats contains pipeline performance metrics
type PipelineStats struct {
	CameraID          string        `json:"camera_id"`
	CaptureStats      *CaptureStats `json:"capture,omitempty"`
	FramesSeen        uint64        `json:"frames_seen"`
	FramesEvaluated   uint64        `json:"frames_evaluated"`
	DetectionErrors   uint64        `json:"detection_errors"`
	AlertsEmitted     uint64        `json:"alerts_emitted"`
	AlertsSuppressed  uint64        `json:"alerts_suppressed"`
	AvgInferenceMs    float32       `json:"avg_inference_ms"`
	LastDetectionTime int64         `json:"last_detection_time"`
	ActiveDetectors   []string      `json:"active_detectors"`
	CurrentMode       DetectionMode `json:"current_mode"`
}
