package strategies

import (
	"sync"

	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
)

// DefaultSampleEvery is the sampling interval used when none is configured
const DefaultSampleEvery = 5

// IntervalStrategy sends the first frame and every Nth frame after it
// through detection. The count is over frames offered to the strategy,
// not over sequence numbers, so gaps from dropped frames do not skew it.
type IntervalStrategy struct {
	every int
	seen  uint64
	mu    sync.Mutex
}

// NewIntervalStrategy creates an every-Nth-frame strategy.
// every <= 0 falls back to DefaultSampleEvery.
func NewIntervalStrategy(every int) *IntervalStrategy {
	if every <= 0 {
		every = DefaultSampleEvery
	}
	return &IntervalStrategy{every: every}
}

func (s *IntervalStrategy) Name() string {
	return string(pipeline.DetectionModeInterval)
}

// Every returns the sampling interval
func (s *IntervalStrategy) Every() int {
	return s.every
}

func (s *IntervalStrategy) ShouldDetect(frame *pipeline.FrameData) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.seen
	s.seen++
	return n%uint64(s.every) == 0
}

func (s *IntervalStrategy) OnDetectionComplete(result *pipeline.FrameResult) {}

func (s *IntervalStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = 0
}
