package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/engine"
	"github.com/NarenCandy/wild-animal-detection/internal/geometry"
	"github.com/NarenCandy/wild-animal-detection/internal/metrics"
	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
	"github.com/NarenCandy/wild-animal-detection/internal/pipeline/detectors"
	"github.com/NarenCandy/wild-animal-detection/internal/pipeline/strategies"
)

// fakeProvider feeds frames pushed by the test to subscribers
type fakeProvider struct {
	mu   sync.Mutex
	subs map[*pipeline.FrameSubscription]bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{subs: make(map[*pipeline.FrameSubscription]bool)}
}

func (p *fakeProvider) Start(string, string, int, int, int) error { return nil }
func (p *fakeProvider) Stop(string) error                         { return nil }
func (p *fakeProvider) IsRunning(string) bool                     { return true }
func (p *fakeProvider) GetStats(id string) *pipeline.CaptureStats {
	return &pipeline.CaptureStats{CameraID: id}
}

func (p *fakeProvider) Subscribe(cameraID string, bufferSize int) (*pipeline.FrameSubscription, error) {
	sub := &pipeline.FrameSubscription{
		CameraID: cameraID,
		Channel:  make(chan *pipeline.FrameData, 64),
		Done:     make(chan struct{}),
	}
	p.mu.Lock()
	p.subs[sub] = true
	p.mu.Unlock()
	return sub, nil
}

func (p *fakeProvider) Unsubscribe(sub *pipeline.FrameSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subs[sub] {
		delete(p.subs, sub)
		close(sub.Done)
	}
}

func (p *fakeProvider) push(f *pipeline.FrameData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sub := range p.subs {
		sub.Channel <- f
	}
}

// scriptedDetector returns the same detections for every frame
type scriptedDetector struct {
	mu    sync.Mutex
	dets  []engine.Detection
	err   error
	calls int
}

func (d *scriptedDetector) Name() string                { return "yolo" }
func (d *scriptedDetector) Type() pipeline.DetectorType { return pipeline.DetectorTypeYOLO }
func (d *scriptedDetector) IsHealthy() bool             { return true }
func (d *scriptedDetector) Close() error                { return nil }
func (d *scriptedDetector) Detect(ctx context.Context, f *pipeline.FrameData) (*pipeline.DetectionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return &pipeline.DetectionResult{CameraID: f.CameraID, FrameSeq: f.Seq, Detections: d.dets, InferenceMs: 10}, nil
}

var tigerBox = geometry.Box{X1: 0.1, Y1: 0.1, X2: 0.3, Y2: 0.3}

func newManager(t *testing.T, det pipeline.Detector) (*pipeline.DetectionPipelineManager, *fakeProvider, *engine.Engine) {
	t.Helper()
	reg := detectors.NewRegistry()
	if err := reg.Register(det); err != nil {
		t.Fatal(err)
	}
	eng := engine.New(engine.DefaultConfig(), nil)
	provider := newFakeProvider()
	m := pipeline.NewDetectionPipelineManager(provider, reg, pipeline.NewEventBus(), strategies.Create,
		func(string) pipeline.Evaluator { return eng })
	t.Cleanup(func() { m.Close() })
	return m, provider, eng
}

// resultsOf buffers published results for cameraID, or every camera when
// cameraID is empty
func resultsOf(bus *pipeline.EventBus, cameraID string) (<-chan *pipeline.FrameResult, func()) {
	ch := make(chan *pipeline.FrameResult, 10)
	h := pipeline.FrameResultHandlerFunc(func(r *pipeline.FrameResult) {
		select {
		case ch <- r:
		default:
		}
	})
	if cameraID == "" {
		return ch, bus.Subscribe(h)
	}
	return ch, bus.SubscribeCamera(cameraID, h)
}

func collect(t *testing.T, ch <-chan *pipeline.FrameResult, n int) []*pipeline.FrameResult {
	t.Helper()
	var out []*pipeline.FrameResult
	for len(out) < n {
		select {
		case r := <-ch:
			out = append(out, r)
		case <-time.After(2 * time.Second):
			t.Fatalf("want %d results, got %d", n, len(out))
		}
	}
	return out
}

func TestPipeline_SamplesAndEvaluates(t *testing.T) {
	det := &scriptedDetector{dets: []engine.Detection{{Class: "tiger", Confidence: 0.9, BBox: tigerBox}}}
	m, provider, _ := newManager(t, det)

	results, unsubscribe := resultsOf(m.EventBus(), "cam0")
	defer unsubscribe()

	if err := m.StartCamera("cam0", nil); err != nil {
		t.Fatalf("StartCamera: %v", err)
	}

	start := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		provider.push(&pipeline.FrameData{CameraID: "cam0", Seq: uint64(i + 1), Timestamp: start.Add(time.Duration(i) * 100 * time.Millisecond)})
	}

	got := collect(t, results, 2)
	if got[0].FrameSeq != 1 || got[1].FrameSeq != 6 {
		t.Errorf("want frames 1 and 6 evaluated, got %d and %d", got[0].FrameSeq, got[1].FrameSeq)
	}
	if d := got[0].Decisions[0]; d.Action != engine.ActionEmit {
		t.Errorf("first sighting: want emit, got %+v", d)
	}
	if d := got[1].Decisions[0]; d.Action != engine.ActionSuppress || d.Reason != engine.ReasonDuplicatePosition {
		t.Errorf("repeat sighting: want duplicate suppression, got %+v", d)
	}
	if got[0].Frame == nil {
		t.Error("want source frame attached to the result")
	}

	stats := m.GetStats("cam0")
	if stats.FramesEvaluated != 2 || stats.AlertsEmitted != 1 || stats.AlertsSuppressed != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPipeline_DetectorErrorLeavesStateAlone(t *testing.T) {
	det := &scriptedDetector{err: errors.New("inference failed")}
	m, provider, eng := newManager(t, det)

	results, unsubscribe := resultsOf(m.EventBus(), "")
	defer unsubscribe()

	every := 1
	if err := m.StartCamera("cam0", &pipeline.CameraDetectionConfig{SampleEvery: &every}); err != nil {
		t.Fatal(err)
	}
	provider.push(&pipeline.FrameData{CameraID: "cam0", Seq: 1, Timestamp: time.Now()})

	deadline := time.After(2 * time.Second)
	for {
		if s := m.GetStats("cam0"); s != nil && s.DetectionErrors == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("want one detection error recorded")
		case <-time.After(10 * time.Millisecond):
		}
	}

	select {
	case r := <-results:
		t.Errorf("want nothing published for a failed frame, got %+v", r)
	default:
	}
	if eng.State().Len() != 0 {
		t.Error("failed detection must not touch engine state")
	}
}

func TestPipeline_StartStop(t *testing.T) {
	m, _, _ := newManager(t, &scriptedDetector{})

	if err := m.StartCamera("cam0", nil); err != nil {
		t.Fatal(err)
	}
	if err := m.StartCamera("cam0", nil); err == nil {
		t.Error("want error starting the same camera twice")
	}
	if got := m.Cameras(); len(got) != 1 {
		t.Errorf("want 1 camera, got %v", got)
	}
	if err := m.StopCamera("cam0"); err != nil {
		t.Fatal(err)
	}
	if err := m.StopCamera("cam0"); err == nil {
		t.Error("want error stopping an unknown camera")
	}
	if m.GetStats("cam0") != nil {
		t.Error("want no stats after stop")
	}
}

func TestMergeWithGlobal(t *testing.T) {
	global := pipeline.DefaultGlobalConfig()
	eff := (*pipeline.CameraDetectionConfig)(nil).MergeWithGlobal("cam0", global)
	if eff.Mode != pipeline.DetectionModeInterval || eff.SampleEvery != 5 {
		t.Errorf("want global defaults, got %+v", eff)
	}

	mode := pipeline.DetectionModeContinuous
	every := 2
	eff = (&pipeline.CameraDetectionConfig{Mode: &mode, SampleEvery: &every}).MergeWithGlobal("cam0", global)
	if eff.Mode != mode || eff.SampleEvery != 2 || eff.CameraID != "cam0" {
		t.Errorf("want camera overrides, got %+v", eff)
	}
}

func TestEventBus_CameraFilter(t *testing.T) {
	bus := pipeline.NewEventBus()

	var mu sync.Mutex
	got := map[string]int{}
	record := func(key string) pipeline.FrameResultHandlerFunc {
		return func(r *pipeline.FrameResult) {
			mu.Lock()
			got[key+":"+r.CameraID]++
			mu.Unlock()
		}
	}

	unsubAll := bus.Subscribe(record("all"))
	unsubGate := bus.SubscribeCamera("gate", record("gate"))
	if n := bus.SubscriberCount(); n != 2 {
		t.Fatalf("want 2 subscribers, got %d", n)
	}

	bus.Publish(&pipeline.FrameResult{CameraID: "gate"})
	bus.Publish(&pipeline.FrameResult{CameraID: "barn"})
	bus.Publish(nil)

	want := map[string]int{"all:gate": 1, "all:barn": 1, "gate:gate": 1}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: want %d, got %d", k, v, got[k])
		}
	}
	if len(got) != len(want) {
		t.Errorf("unexpected deliveries: %v", got)
	}

	unsubGate()
	unsubAll()
	if n := bus.SubscriberCount(); n != 0 {
		t.Errorf("want 0 subscribers after unsubscribe, got %d", n)
	}
}

// blockingDetector holds every call until its context ends
type blockingDetector struct {
	entered  chan struct{}
	canceled chan struct{}
}

func (d *blockingDetector) Name() string                { return "yolo" }
func (d *blockingDetector) Type() pipeline.DetectorType { return pipeline.DetectorTypeYOLO }
func (d *blockingDetector) IsHealthy() bool             { return true }
func (d *blockingDetector) Close() error                { return nil }
func (d *blockingDetector) Detect(ctx context.Context, f *pipeline.FrameData) (*pipeline.DetectionResult, error) {
	close(d.entered)
	<-ctx.Done()
	close(d.canceled)
	return &pipeline.DetectionResult{
		CameraID:   f.CameraID,
		Detections: []engine.Detection{{Class: "tiger", Confidence: 0.9, BBox: tigerBox}},
	}, nil
}

func TestPipeline_StopCancelsInflightDetection(t *testing.T) {
	det := &blockingDetector{entered: make(chan struct{}), canceled: make(chan struct{})}
	m, provider, eng := newManager(t, det)

	results, unsubscribe := resultsOf(m.EventBus(), "")
	defer unsubscribe()

	if err := m.StartCamera("cam0", nil); err != nil {
		t.Fatal(err)
	}
	provider.push(&pipeline.FrameData{CameraID: "cam0", Seq: 1, Timestamp: time.Now()})

	select {
	case <-det.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("detector never called")
	}

	start := time.Now()
	if err := m.StopCamera("cam0"); err != nil {
		t.Fatal(err)
	}
	if d := time.Since(start); d > time.Second {
		t.Errorf("StopCamera took %v, want the in-flight detection canceled", d)
	}
	select {
	case <-det.canceled:
	default:
		t.Error("want the detect context canceled by StopCamera")
	}

	select {
	case r := <-results:
		t.Errorf("want nothing published after stop, got %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
	if eng.State().Len() != 0 {
		t.Error("a frame finishing after stop must not touch engine state")
	}
}

func TestPipeline_ReportsMetrics(t *testing.T) {
	det := &scriptedDetector{err: errors.New("inference failed")}
	m, provider, _ := newManager(t, det)
	mt := metrics.New()
	m.SetMetrics(mt)

	every := 1
	if err := m.StartCamera("cam0", &pipeline.CameraDetectionConfig{SampleEvery: &every}); err != nil {
		t.Fatal(err)
	}
	provider.push(&pipeline.FrameData{CameraID: "cam0", Seq: 1, Timestamp: time.Now()})
	provider.push(&pipeline.FrameData{CameraID: "cam0", Seq: 2, Timestamp: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for mt.DetectionErrors.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("want 2 detection errors counted, got %d", mt.DetectionErrors.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := mt.FramesSampled.Load(); got != 2 {
		t.Errorf("want 2 sampled frames, got %d", got)
	}
}

func TestPipeline_EffectiveConfig(t *testing.T) {
	m, _, _ := newManager(t, &scriptedDetector{})
	m.SetGlobalConfig(&pipeline.GlobalDetectionConfig{
		Mode:        pipeline.DetectionModeInterval,
		Detectors:   []string{"yolo"},
		SampleEvery: 3,
	})

	if m.GetEffectiveConfig("cam0") != nil {
		t.Error("want nil config for a camera that is not running")
	}

	every := 7
	if err := m.StartCamera("cam0", &pipeline.CameraDetectionConfig{SampleEvery: &every}); err != nil {
		t.Fatal(err)
	}
	cfg := m.GetEffectiveConfig("cam0")
	if cfg == nil || cfg.SampleEvery != 7 || cfg.Mode != pipeline.DetectionModeInterval {
		t.Errorf("want camera override over global defaults, got %+v", cfg)
	}
}

func TestPipeline_CloseDropsSubscribers(t *testing.T) {
	m, _, _ := newManager(t, &scriptedDetector{})
	m.SubscribeResults(pipeline.FrameResultHandlerFunc(func(*pipeline.FrameResult) {}))

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if n := m.EventBus().SubscriberCount(); n != 0 {
		t.Errorf("want no subscribers after Close, got %d", n)
	}
}
