package strategies

import (
	"sync"
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
)

// ContinuousStrategy triggers detection on every frame
// Optionally rate-limits to avoid overwhelming the detector
type ContinuousStrategy struct {
	minInterval   time.Duration // Minimum time between detections
	lastDetection time.Time
	mu            sync.Mutex
}

// NewContinuousStrategy creates a continuous detection strategy
// minInterval can be 0 to process every frame, or a duration to rate-limit
func NewContinuousStrategy(minInterval time.Duration) *ContinuousStrategy {
	return &ContinuousStrategy{
		minInterval: minInterval,
	}
}

func (s *ContinuousStrategy) Name() string {
	return string(pipeline.DetectionModeContinuous)
}

func (s *ContinuousStrategy) ShouldDetect(frame *pipeline.FrameData) bool {
	if s.minInterval <= 0 {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastDetection.IsZero() || frameTime(frame).Sub(s.lastDetection) >= s.minInterval
}

func (s *ContinuousStrategy) OnDetectionComplete(result *pipeline.FrameResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDetection = resultTime(result)
}

func (s *ContinuousStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDetection = time.Time{}
}

// frameTime prefers the capture timestamp so replayed footage samples the
// same way it did live
func frameTime(frame *pipeline.FrameData) time.Time {
	if frame != nil && !frame.Timestamp.IsZero() {
		return frame.Timestamp
	}
	return time.Now()
}

func resultTime(result *pipeline.FrameResult) time.Time {
	if result != nil && !result.Timestamp.IsZero() {
		return result.Timestamp
	}
	return time.Now()
}
