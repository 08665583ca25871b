package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/NarenCandy/wild-animal-detection/internal/engine"
	"github.com/NarenCandy/wild-animal-detection/internal/geometry"
	"github.com/NarenCandy/wild-animal-detection/internal/metrics"
	"github.com/NarenCandy/wild-animal-detection/internal/objectstore"
	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
	"github.com/NarenCandy/wild-animal-detection/internal/severity"
	"github.com/NarenCandy/wild-animal-detection/internal/stream"
	"github.com/NarenCandy/wild-animal-detection/internal/ws"
)

// ErrQueueFull is returned by Submit when the queue has no room
var ErrQueueFull = errors.New("dispatch queue full")

// Alert is one emitted decision ready for delivery
type Alert struct {
	Owner      string
	Animal     string
	Level      severity.Level
	Confidence float64
	BBox       geometry.Box
	CameraID   string
	ImageURL   string
	Timestamp  time.Time
}

// Sink delivers alerts to their final destination
type Sink interface {
	Deliver(ctx context.Context, alert *Alert) error
}

// SnapshotStore uploads annotated frames
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, key string, jpeg []byte) (string, error)
}

// DecisionPublisher receives every evaluated frame for live views
type DecisionPublisher interface {
	PublishDecisions(userID string, msg *ws.DecisionMessage)
}

// Config tunes the dispatcher
type Config struct {
	QueueSize  int
	Workers    int
	JobTimeout time.Duration
}

// DefaultConfig returns the default dispatcher configuration
func DefaultConfig() Config {
	return Config{QueueSize: 32, Workers: 2, JobTimeout: 30 * time.Second}
}

// job is one alert plus the frame it was raised on
type job struct {
	alert     *Alert
	frame     []byte
	decisions []engine.Decision
	humans    []engine.Detection
}

// Dispatcher turns emitted decisions into delivered alerts off the frame
// loop. Submission never blocks; a full queue drops the alert.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	snapshots SnapshotStore
	decisions DecisionPublisher
	isHuman   func(engine.Detection) bool
	metrics   *metrics.Metrics

	queue chan job
	wg    sync.WaitGroup

	mu     sync.RWMutex
	owner  string
	closed bool
}

// Option customizes a dispatcher
type Option func(*Dispatcher)

// WithSnapshots uploads an annotated frame with every alert
func WithSnapshots(s SnapshotStore) Option {
	return func(d *Dispatcher) { d.snapshots = s }
}

// WithDecisionPublisher forwards every evaluated frame to live views
func WithDecisionPublisher(p DecisionPublisher) Option {
	return func(d *Dispatcher) { d.decisions = p }
}

// WithHumanFilter selects the detections drawn as humans
func WithHumanFilter(f func(engine.Detection) bool) Option {
	return func(d *Dispatcher) { d.isHuman = f }
}

// WithMetrics records queue and delivery counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a dispatcher and starts its workers
func New(cfg Config, sink Sink, opts ...Option) *Dispatcher {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}

	d := &Dispatcher{
		cfg:     cfg,
		sink:    sink,
		isHuman: func(engine.Detection) bool { return false },
		queue:   make(chan job, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

// SetOwner sets the user that owns subsequently raised alerts
func (d *Dispatcher) SetOwner(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owner = userID
}

// Owner returns the current alert owner
func (d *Dispatcher) Owner() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.owner
}

// OnFrameResult queues one alert per emitted decision of the frame
func (d *Dispatcher) OnFrameResult(result *pipeline.FrameResult) {
	d.metrics.ObserveDecisions(result.Decisions)
	owner := d.Owner()

	humans := lo.Filter(result.Detections, func(det engine.Detection, _ int) bool {
		return d.isHuman(det)
	})

	if d.decisions != nil && owner != "" {
		msg := ws.NewDecisionMessage(result.CameraID, result.FrameSeq, result.Timestamp, result.Decisions)
		for _, h := range humans {
			msg.AddHuman(h.BBox)
		}
		d.decisions.PublishDecisions(owner, msg)
	}

	var frame []byte
	if result.Frame != nil {
		frame = result.Frame.Data
	}

	for _, dec := range result.Emitted() {
		alert := &Alert{
			Owner:      owner,
			Animal:     dec.Detection.Class,
			Level:      dec.Level,
			Confidence: dec.Detection.Confidence,
			BBox:       dec.Detection.BBox,
			CameraID:   result.CameraID,
			Timestamp:  result.Timestamp,
		}
		err := d.Submit(alert, frame, result.Decisions, humans)
		if err != nil {
			log.Printf("[Dispatcher] Dropped %s alert on camera %s: %v", alert.Animal, alert.CameraID, err)
		}
	}
}

// Submit queues an alert without blocking
func (d *Dispatcher) Submit(alert *Alert, frame []byte, decisions []engine.Decision, humans []engine.Detection) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errors.New("dispatcher closed")
	}

	select {
	case d.queue <- job{alert: alert, frame: frame, decisions: decisions, humans: humans}:
		d.metrics.Inc(metrics.Queued)
		return nil
	default:
		d.metrics.Inc(metrics.Dropped)
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for j := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.JobTimeout)
		if err := d.process(ctx, j); err != nil {
			d.metrics.Inc(metrics.Failed)
			log.Printf("[Dispatcher] Worker %d: %s alert on camera %s failed: %v", id, j.alert.Animal, j.alert.CameraID, err)
		}
		cancel()
	}
}

// process annotates and uploads the frame, then delivers the alert. A
// failed upload still delivers the alert, without an image.
func (d *Dispatcher) process(ctx context.Context, j job) error {
	if d.snapshots != nil && len(j.frame) > 0 {
		url, err := d.upload(ctx, j)
		if err != nil {
			log.Printf("[Dispatcher] Snapshot upload failed: %v", err)
		} else {
			j.alert.ImageURL = url
		}
	}

	if err := d.sink.Deliver(ctx, j.alert); err != nil {
		return fmt.Errorf("failed to deliver alert: %w", err)
	}
	return nil
}

func (d *Dispatcher) upload(ctx context.Context, j job) (string, error) {
	img := j.frame
	annotated, err := stream.Annotate(j.frame, stream.OverlaysFor(j.decisions, j.humans))
	if err == nil {
		img = annotated
	}
	ts := j.alert.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return d.snapshots.PutSnapshot(ctx, objectstore.SnapshotKey(j.alert.CameraID, ts), img)
}

// Pending returns the number of queued alerts
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops accepting alerts and waits for queued ones to finish
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}
