package strategies

import (
	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
)

// DisabledStrategy never triggers detection
// Used when streaming only is desired
type DisabledStrategy struct{}

// NewDisabledStrategy creates a disabled detection strategy
func NewDisabledStrategy() *DisabledStrategy {
	return &DisabledStrategy{}
}

func (s *DisabledStrategy) Name() string {
	return string(pipeline.DetectionModeDisabled)
}

func (s *DisabledStrategy) ShouldDetect(frame *pipeline.FrameData) bool {
	return false
}

func (s *DisabledStrategy) OnDetectionComplete(result *pipeline.FrameResult) {}

func (s *DisabledStrategy) Reset() {}
