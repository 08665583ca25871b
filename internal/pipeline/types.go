package pipeline

import (
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/engine"
)

// DetectionMode defines which frames are sent through detection
type DetectionMode string

const (
	// DetectionModeDisabled - no detection, streaming only
	DetectionModeDisabled DetectionMode = "disabled"
	// DetectionModeInterval - detect on every Nth frame
	DetectionModeInterval DetectionMode = "interval"
	// DetectionModeContinuous - detect on every frame, optionally rate limited
	DetectionModeContinuous DetectionMode = "continuous"
	// DetectionModeScheduled - detect at fixed wall-clock intervals
	DetectionModeScheduled DetectionMode = "scheduled"
)

// FrameData represents a captured video frame
type FrameData struct {
	CameraID  string    // Camera identifier
	Data      []byte    // JPEG frame data
	Seq       uint64    // Frame sequence number
	Timestamp time.Time // Capture timestamp
	Width     int       // Frame width (if known)
	Height    int       // Frame height (if known)
}

// DetectorType identifies the type of detector
type DetectorType string

const (
	DetectorTypeYOLO DetectorType = "yolo"
	DetectorTypeGRPC DetectorType = "grpc"
)

// DetectionResult is the raw output of one detector for one frame.
// Boxes are normalized to [0,1].
type DetectionResult struct {
	CameraID     string             `json:"camera_id"`
	FrameSeq     uint64             `json:"frame_seq"`
	Timestamp    time.Time          `json:"timestamp"`
	DetectorType DetectorType       `json:"detector_type"`
	Detections   []engine.Detection `json:"detections"`
	InferenceMs  float32            `json:"inference_ms"`
}

// FrameResult is what the pipeline publishes for every evaluated frame:
// the detections, the engine's decisions and the source frame.
type FrameResult struct {
	CameraID    string             `json:"camera_id"`
	FrameSeq    uint64             `json:"frame_seq"`
	Timestamp   time.Time          `json:"timestamp"`
	Detector    string             `json:"detector"`
	Detections  []engine.Detection `json:"detections"`
	Decisions   []engine.Decision  `json:"decisions"`
	InferenceMs float32            `json:"inference_ms"`
	Frame       *FrameData         `json:"-"`
}

// Emitted returns the decisions that became alerts
func (r *FrameResult) Emitted() []engine.Decision {
	return engine.Emitted(r.Decisions)
}

// CameraDetectionConfig contains per-camera overrides
// Nil/zero values mean "inherit from global config"
type CameraDetectionConfig struct {
	Mode             *DetectionMode `json:"mode,omitempty"`
	Detectors        []string       `json:"detectors,omitempty"`
	SampleEvery      *int           `json:"sample_every,omitempty"`
	ScheduleInterval *time.Duration `json:"schedule_interval,omitempty"`
	MinInterval      *time.Duration `json:"min_interval,omitempty"`
	DetectTimeout    *time.Duration `json:"detect_timeout,omitempty"`
}

// GlobalDetectionConfig contains global default detection settings
type GlobalDetectionConfig struct {
	Mode             DetectionMode `json:"mode"`
	Detectors        []string      `json:"detectors"`
	SampleEvery      int           `json:"sample_every"`
	ScheduleInterval time.Duration `json:"schedule_interval"`
	MinInterval      time.Duration `json:"min_interval"`
	DetectTimeout    time.Duration `json:"detect_timeout"`
}

// EffectiveConfig represents the merged configuration for a camera
// (camera overrides applied to global defaults)
type EffectiveConfig struct {
	CameraID         string        `json:"camera_id"`
	Mode             DetectionMode `json:"mode"`
	Detectors        []string      `json:"detectors"`
	SampleEvery      int           `json:"sample_every"`
	ScheduleInterval time.Duration `json:"schedule_interval"`
	MinInterval      time.Duration `json:"min_interval"`
	DetectTimeout    time.Duration `json:"detect_timeout"`
}

// DefaultGlobalConfig returns sensible defaults for global detection config
func DefaultGlobalConfig() *GlobalDetectionConfig {
	return &GlobalDetectionConfig{
		Mode:             DetectionModeInterval,
		Detectors:        []string{"yolo"},
		SampleEvery:      5,
		ScheduleInterval: time.Second,
		DetectTimeout:    15 * time.Second,
	}
}

// MergeWithGlobal merges camera-specific config with global defaults
func (c *CameraDetectionConfig) MergeWithGlobal(cameraID string, global *GlobalDetectionConfig) *EffectiveConfig {
	if global == nil {
		global = DefaultGlobalConfig()
	}

	effective := &EffectiveConfig{
		CameraID:         cameraID,
		Mode:             global.Mode,
		Detectors:        global.Detectors,
		SampleEvery:      global.SampleEvery,
		ScheduleInterval: global.ScheduleInterval,
		MinInterval:      global.MinInterval,
		DetectTimeout:    global.DetectTimeout,
	}

	if c == nil {
		return effective
	}

	if c.Mode != nil {
		effective.Mode = *c.Mode
	}
	if len(c.Detectors) > 0 {
		effective.Detectors = c.Detectors
	}
	if c.SampleEvery != nil {
		effective.SampleEvery = *c.SampleEvery
	}
	if c.ScheduleInterval != nil {
		effective.ScheduleInterval = *c.ScheduleInterval
	}
	if c.MinInterval != nil {
		effective.MinInterval = *c.MinInterval
	}
	if c.DetectTimeout != nil {
		effective.DetectTimeout = *c.DetectTimeout
	}

	return effective
}
