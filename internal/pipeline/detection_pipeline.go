package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/metrics"
)

// EvaluatorFactory returns the decision evaluator for a camera
type EvaluatorFactory func(cameraID string) Evaluator

// DetectionPipeline runs sampling, detection and evaluation for a single camera
type DetectionPipeline struct {
	cameraID      string
	config        *EffectiveConfig
	strategy      DetectionStrategy
	registry      DetectorRegistry
	evaluator     Evaluator
	frameProvider FrameProvider
	eventBus      *EventBus
	metrics       *metrics.Metrics
	ctx           context.Context
	cancel        context.CancelFunc
	stopCh        chan struct{}
	doneCh        chan struct{}
	stopOnce      sync.Once
	mu            sync.RWMutex
	stats         *PipelineStats
	statsMu       sync.RWMutex
}

// DetectionPipelineManager manages detection pipelines for all cameras
type DetectionPipelineManager struct {
	pipelines       map[string]*DetectionPipeline
	frameProvider   FrameProvider
	registry        DetectorRegistry
	eventBus        *EventBus
	strategyFactory func(*EffectiveConfig) (DetectionStrategy, error)
	evaluators      EvaluatorFactory
	metrics         *metrics.Metrics
	mu              sync.RWMutex
	globalConfig    *GlobalDetectionConfig
}

// NewDetectionPipelineManager creates a new pipeline manager
func NewDetectionPipelineManager(
	frameProvider FrameProvider,
	registry DetectorRegistry,
	eventBus *EventBus,
	strategyFactory func(*EffectiveConfig) (DetectionStrategy, error),
	evaluators EvaluatorFactory,
) *DetectionPipelineManager {
	return &DetectionPipelineManager{
		pipelines:       make(map[string]*DetectionPipeline),
		frameProvider:   frameProvider,
		registry:        registry,
		eventBus:        eventBus,
		strategyFactory: strategyFactory,
		evaluators:      evaluators,
		globalConfig:    DefaultGlobalConfig(),
	}
}

// SetGlobalConfig updates the global detection configuration
func (m *DetectionPipelineManager) SetGlobalConfig(config *GlobalDetectionConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalConfig = config
}

// SetMetrics sets the collector pipelines started afterwards report to
func (m *DetectionPipelineManager) SetMetrics(mt *metrics.Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = mt
}

// EventBus returns the bus evaluated frames are published on
func (m *DetectionPipelineManager) EventBus() *EventBus {
	return m.eventBus
}

// StartCamera starts the detection pipeline for a camera
func (m *DetectionPipelineManager) StartCamera(cameraID string, cameraConfig *CameraDetectionConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pipelines[cameraID]; exists {
		return fmt.Errorf("pipeline already exists for camera %s", cameraID)
	}

	effectiveConfig := cameraConfig.MergeWithGlobal(cameraID, m.globalConfig)

	strategy, err := m.strategyFactory(effectiveConfig)
	if err != nil {
		return fmt.Errorf("failed to create strategy: %w", err)
	}

	if effectiveConfig.Mode != DetectionModeDisabled && len(m.registry.GetHealthyByNames(effectiveConfig.Detectors)) == 0 {
		log.Printf("[Pipeline] Warning: no healthy detectors available for camera %s yet", cameraID)
	}

	sub, err := m.frameProvider.Subscribe(cameraID, 5)
	if err != nil {
		return fmt.Errorf("failed to subscribe to frames: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &DetectionPipeline{
		cameraID:      cameraID,
		config:        effectiveConfig,
		strategy:      strategy,
		registry:      m.registry,
		evaluator:     m.evaluators(cameraID),
		frameProvider: m.frameProvider,
		eventBus:      m.eventBus,
		metrics:       m.metrics,
		ctx:           ctx,
		cancel:        cancel,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		stats: &PipelineStats{
			CameraID:        cameraID,
			CurrentMode:     effectiveConfig.Mode,
			ActiveDetectors: effectiveConfig.Detectors,
		},
	}

	m.pipelines[cameraID] = p

	go p.run(sub)

	log.Printf("[Pipeline] Started detection pipeline for camera %s (mode: %s, detectors: %v)",
		cameraID, effectiveConfig.Mode, effectiveConfig.Detectors)
	return nil
}

// StopCamera stops the detection pipeline for a camera
func (m *DetectionPipelineManager) StopCamera(cameraID string) error {
	m.mu.Lock()
	p, exists := m.pipelines[cameraID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("pipeline not found for camera %s", cameraID)
	}
	delete(m.pipelines, cameraID)
	m.mu.Unlock()

	p.stop()
	log.Printf("[Pipeline] Stopped detection pipeline for camera %s", cameraID)
	return nil
}

// GetStats returns pipeline statistics for a camera
func (m *DetectionPipelineManager) GetStats(cameraID string) *PipelineStats {
	m.mu.RLock()
	p, exists := m.pipelines[cameraID]
	m.mu.RUnlock()

	if !exists {
		return nil
	}

	p.statsMu.RLock()
	stats := *p.stats
	p.statsMu.RUnlock()

	stats.CaptureStats = m.frameProvider.GetStats(cameraID)
	return &stats
}

// Cameras returns the ids of cameras with an active pipeline
func (m *DetectionPipelineManager) Cameras() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.pipelines))
	for id := range m.pipelines {
		ids = append(ids, id)
	}
	return ids
}

// SubscribeResults registers a handler for evaluated frames
func (m *DetectionPipelineManager) SubscribeResults(handler FrameResultHandler) func() {
	return m.eventBus.Subscribe(handler)
}

// Close shuts down all pipelines
func (m *DetectionPipelineManager) Close() error {
	m.mu.Lock()
	pipelines := m.pipelines
	m.pipelines = make(map[string]*DetectionPipeline)
	m.mu.Unlock()

	for _, p := range pipelines {
		p.stop()
	}
	m.eventBus.Close()

	log.Printf("[Pipeline] Closed all detection pipelines")
	return nil
}

// GetEffectiveConfig returns the merged detection configuration of a running
// camera, or nil when it has no pipeline
func (m *DetectionPipelineManager) GetEffectiveConfig(cameraID string) *EffectiveConfig {
	m.mu.RLock()
	p, exists := m.pipelines[cameraID]
	m.mu.RUnlock()

	if !exists {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	config := *p.config
	return &config
}

// run is the processing loop for a single camera. Frames are handled one at
// a time so each frame's decisions are made against the previous frame's state.
func (p *DetectionPipeline) run(sub *FrameSubscription) {
	defer close(p.doneCh)
	defer p.frameProvider.Unsubscribe(sub)

	log.Printf("[Pipeline] Processing loop started for camera %s", p.cameraID)

	for {
		select {
		case <-p.stopCh:
			return
		case <-sub.Done:
			return
		case frame := <-sub.Channel:
			if frame == nil {
				continue
			}
			p.processFrame(frame)
		}
	}
}

func (p *DetectionPipeline) stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.cancel()
	})

	select {
	case <-p.doneCh:
	case <-time.After(5 * time.Second):
		log.Printf("[Pipeline] Camera %s loop did not stop in time", p.cameraID)
	}
}

func (p *DetectionPipeline) processFrame(frame *FrameData) {
	p.mu.RLock()
	strategy := p.strategy
	config := p.config
	p.mu.RUnlock()

	p.statsMu.Lock()
	p.stats.FramesSeen++
	p.statsMu.Unlock()

	if !strategy.ShouldDetect(frame) {
		return
	}
	p.metrics.Inc(metrics.FrameSampled)

	detector := p.primaryDetector(config.Detectors)
	if detector == nil {
		p.recordError()
		return
	}

	timeout := config.DetectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	detected, err := detector.Detect(ctx, frame)
	cancel()
	if p.stopped() {
		// Results finishing after StopCamera belong to no monitor
		return
	}
	if err != nil {
		// A failed inference is not an empty frame; leave engine state alone
		log.Printf("[Pipeline] Detection error (%s) for camera %s: %v", detector.Name(), p.cameraID, err)
		p.recordError()
		return
	}

	now := frame.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	result := &FrameResult{
		CameraID:    frame.CameraID,
		FrameSeq:    frame.Seq,
		Timestamp:   now,
		Detector:    detector.Name(),
		Detections:  detected.Detections,
		Decisions:   p.evaluator.Evaluate(detected.Detections, now),
		InferenceMs: detected.InferenceMs,
		Frame:       frame,
	}

	strategy.OnDetectionComplete(result)

	emitted := len(result.Emitted())
	p.statsMu.Lock()
	p.stats.FramesEvaluated++
	p.stats.AlertsEmitted += uint64(emitted)
	p.stats.AlertsSuppressed += uint64(len(result.Decisions) - emitted)
	p.stats.LastDetectionTime = now.Unix()
	if p.stats.AvgInferenceMs == 0 {
		p.stats.AvgInferenceMs = result.InferenceMs
	} else {
		p.stats.AvgInferenceMs = (p.stats.AvgInferenceMs + result.InferenceMs) / 2
	}
	p.statsMu.Unlock()

	p.eventBus.Publish(result)
}

func (p *DetectionPipeline) stopped() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

// primaryDetector returns the first healthy detector in configured order
func (p *DetectionPipeline) primaryDetector(names []string) Detector {
	healthy := p.registry.GetHealthyByNames(names)
	if len(healthy) == 0 {
		return nil
	}
	return healthy[0]
}

func (p *DetectionPipeline) recordError() {
	p.statsMu.Lock()
	p.stats.DetectionErrors++
	n := p.stats.DetectionErrors
	p.statsMu.Unlock()
	p.metrics.Inc(metrics.DetectionError)

	if n == 1 || n%50 == 0 {
		log.Printf("[Pipeline] Camera %s: %d frames failed detection", p.cameraID, n)
	}
}

var _ PipelineManager = (*DetectionPipelineManager)(nil)
