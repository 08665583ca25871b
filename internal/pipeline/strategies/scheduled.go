package strategies

import (
	"sync"
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
)

// ScheduledStrategy triggers detection at fixed time intervals
type ScheduledStrategy struct {
	interval      time.Duration
	lastDetection time.Time
	mu            sync.Mutex
}

// NewScheduledStrategy creates a scheduled detection strategy
func NewScheduledStrategy(interval time.Duration) *ScheduledStrategy {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ScheduledStrategy{
		interval: interval,
	}
}

func (s *ScheduledStrategy) Name() string {
	return string(pipeline.DetectionModeScheduled)
}

func (s *ScheduledStrategy) ShouldDetect(frame *pipeline.FrameData) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastDetection.IsZero() || frameTime(frame).Sub(s.lastDetection) >= s.interval
}

func (s *ScheduledStrategy) OnDetectionComplete(result *pipeline.FrameResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDetection = resultTime(result)
}

func (s *ScheduledStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDetection = time.Time{}
}

// SetInterval updates the detection interval
func (s *ScheduledStrategy) SetInterval(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = interval
}
