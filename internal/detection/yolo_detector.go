package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/engine"
	"github.com/NarenCandy/wild-animal-detection/internal/geometry"
)

// healthCacheTTL is how long a successful health check is trusted
const healthCacheTTL = 30 * time.Second

// YOLODetector calls an HTTP YOLO inference service
type YOLODetector struct {
	endpoint      string
	client        *http.Client
	enabled       bool
	confThreshold float32
	classesFilter string
	healthCheck   time.Time
	mu            sync.RWMutex
}

// YOLODetection is a single detection as reported by the service
type YOLODetection struct {
	Class      string    `json:"class"`
	ClassID    int       `json:"class_id"`
	Confidence float32   `json:"confidence"`
	BBox       []float32 `json:"bbox"` // [x1, y1, x2, y2]
}

// YOLOResult is the /detect response body
type YOLOResult struct {
	Detections      []YOLODetection `json:"detections"`
	Count           int             `json:"count"`
	InferenceTimeMs float32         `json:"inference_time_ms"`
	Device          string          `json:"device"`
	ImageWidth      int             `json:"image_width,omitempty"`
	ImageHeight     int             `json:"image_height,omitempty"`
	Normalized      bool            `json:"normalized,omitempty"`
}

// YOLOHealthResponse represents health check response
type YOLOHealthResponse struct {
	Status       string `json:"status"`
	Device       string `json:"device"`
	GPUAvailable bool   `json:"gpu_available"`
	ModelLoaded  bool   `json:"model_loaded"`
}

// YOLOConfig holds configuration for the detector
type YOLOConfig struct {
	Enabled             bool
	ServiceEndpoint     string
	ConfidenceThreshold float32
	ClassesFilter       string
	Timeout             time.Duration
}

// Frame is the input to a detection call
type Frame struct {
	Data   []byte
	Width  int // 0 when unknown
	Height int
}

// Result is a normalized detection result
type Result struct {
	Detections  []engine.Detection
	InferenceMs float32
}

// NewYOLODetector creates a detector for the service at endpoint
func NewYOLODetector(endpoint string) *YOLODetector {
	return &YOLODetector{
		endpoint: strings.TrimRight(endpoint, "/"),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		enabled:       true,
		confThreshold: 0.25,
	}
}

// NewYOLODetectorWithConfig creates a new YOLO detector with configuration
func NewYOLODetectorWithConfig(cfg YOLOConfig) *YOLODetector {
	d := NewYOLODetector(cfg.ServiceEndpoint)
	d.enabled = cfg.Enabled
	if cfg.ConfidenceThreshold > 0 {
		d.confThreshold = cfg.ConfidenceThreshold
	}
	d.classesFilter = cfg.ClassesFilter
	if cfg.Timeout > 0 {
		d.client.Timeout = cfg.Timeout
	}
	return d
}

// Endpoint returns the service base URL
func (yd *YOLODetector) Endpoint() string {
	return yd.endpoint
}

// IsHealthy checks if the YOLO service is available. A successful check is
// cached; failures are retried on the next call.
func (yd *YOLODetector) IsHealthy() bool {
	yd.mu.RLock()
	if !yd.enabled {
		yd.mu.RUnlock()
		return false
	}
	if time.Since(yd.healthCheck) < healthCacheTTL {
		yd.mu.RUnlock()
		return true
	}
	yd.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := yd.GetHealthInfo(ctx)
	if err != nil || !health.ModelLoaded {
		return false
	}

	yd.mu.Lock()
	yd.healthCheck = time.Now()
	yd.mu.Unlock()
	return true
}

// GetHealthInfo returns detailed health information
func (yd *YOLODetector) GetHealthInfo(ctx context.Context) (*YOLOHealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, yd.endpoint+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := yd.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check YOLO health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("YOLO health check returned status %d", resp.StatusCode)
	}

	var health YOLOHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}

// DetectObjects posts an image to /detect and returns the raw service result
func (yd *YOLODetector) DetectObjects(ctx context.Context, imageData []byte, confThreshold float32) (*YOLOResult, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(imageData); err != nil {
		return nil, err
	}

	if confThreshold <= 0 {
		confThreshold = yd.confThreshold
	}
	w.WriteField("conf_threshold", fmt.Sprintf("%.3f", confThreshold))

	yd.mu.RLock()
	if yd.classesFilter != "" {
		w.WriteField("classes_filter", yd.classesFilter)
	}
	yd.mu.RUnlock()

	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, yd.endpoint+"/detect", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := yd.client.Do(req)
	if err != nil {
		yd.invalidateHealth()
		return nil, fmt.Errorf("failed to call YOLO service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("YOLO detection failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result YOLOResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode YOLO response: %w", err)
	}
	return &result, nil
}

// Detect runs detection and returns boxes normalized to [0,1]
func (yd *YOLODetector) Detect(ctx context.Context, frame Frame) (*Result, error) {
	if !yd.IsHealthy() {
		return nil, fmt.Errorf("YOLO detection service unavailable")
	}

	raw, err := yd.DetectObjects(ctx, frame.Data, 0)
	if err != nil {
		return nil, err
	}

	width, height := raw.ImageWidth, raw.ImageHeight
	if width <= 0 || height <= 0 {
		width, height = frameSize(frame)
	}

	out := &Result{
		Detections:  make([]engine.Detection, 0, len(raw.Detections)),
		InferenceMs: raw.InferenceTimeMs,
	}
	for _, d := range raw.Detections {
		box := toBox(d.BBox)
		if !raw.Normalized && box.Finite() && !box.IsNormalized() {
			if width <= 0 || height <= 0 {
				return nil, fmt.Errorf("cannot normalize pixel boxes: frame size unknown")
			}
			box = box.Normalize(width, height)
		}
		out.Detections = append(out.Detections, engine.Detection{
			Class:      strings.ToLower(d.Class),
			Confidence: float64(d.Confidence),
			BBox:       box,
		})
	}
	return out, nil
}

// Close is a no-op; the detector only holds an HTTP client
func (yd *YOLODetector) Close() error {
	return nil
}

func (yd *YOLODetector) invalidateHealth() {
	yd.mu.Lock()
	yd.healthCheck = time.Time{}
	yd.mu.Unlock()
}

// frameSize returns the frame dimensions, decoding the image header when
// the capture layer did not know them
func frameSize(frame Frame) (int, int) {
	if frame.Width > 0 && frame.Height > 0 {
		return frame.Width, frame.Height
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(frame.Data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// toBox converts a 4-element slice; anything else becomes a NaN box that
// the engine treats as malformed
func toBox(v []float32) geometry.Box {
	if len(v) < 4 {
		n := math.NaN()
		return geometry.Box{X1: n, Y1: n, X2: n, Y2: n}
	}
	return geometry.Box{X1: float64(v[0]), Y1: float64(v[1]), X2: float64(v[2]), Y2: float64(v[3])}
}
