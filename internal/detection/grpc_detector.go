package detection

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/NarenCandy/wild-animal-detection/internal/engine"
	"github.com/NarenCandy/wild-animal-detection/internal/geometry"
)

// Full method names of the detection service. Messages are carried as
// google.protobuf.Struct so no generated stubs are needed on either side.
const (
	DetectMethod      = "/detection.v1.DetectionService/Detect"
	HealthCheckMethod = "/detection.v1.DetectionService/HealthCheck"
)

// GRPCDetector runs detection against a gRPC inference service
type GRPCDetector struct {
	endpoint      string
	conn          *grpc.ClientConn
	confThreshold float32
	healthy       bool
	lastHealth    time.Time
	healthMu      sync.RWMutex
}

// GRPCDetectorConfig holds configuration for the gRPC detector
type GRPCDetectorConfig struct {
	Endpoint      string
	ConfThreshold float32
	DialOptions   []grpc.DialOption
}

// NewGRPCDetector creates a client for the service at config.Endpoint.
// The connection is established lazily on the first call.
func NewGRPCDetector(config GRPCDetectorConfig) (*GRPCDetector, error) {
	kacp := keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             5 * time.Second,
		PermitWithoutStream: true,
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, config.DialOptions...)

	conn, err := grpc.NewClient(config.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client: %w", err)
	}

	threshold := config.ConfThreshold
	if threshold <= 0 {
		threshold = 0.25
	}

	log.Printf("[GRPCDetector] Using detection service at %s", config.Endpoint)
	return &GRPCDetector{
		endpoint:      config.Endpoint,
		conn:          conn,
		confThreshold: threshold,
	}, nil
}

// IsHealthy checks if the gRPC detection service is available
func (gd *GRPCDetector) IsHealthy() bool {
	gd.healthMu.RLock()
	if gd.healthy && time.Since(gd.lastHealth) < healthCacheTTL {
		gd.healthMu.RUnlock()
		return true
	}
	gd.healthMu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp := &structpb.Struct{}
	err := gd.conn.Invoke(ctx, HealthCheckMethod, &structpb.Struct{}, resp)

	healthy := err == nil &&
		resp.GetFields()["status"].GetStringValue() == "healthy" &&
		resp.GetFields()["model_loaded"].GetBoolValue()
	if err != nil {
		log.Printf("[GRPCDetector] Health check failed: %v", err)
	}

	gd.healthMu.Lock()
	gd.healthy = healthy
	gd.lastHealth = time.Now()
	gd.healthMu.Unlock()

	return healthy
}

// Detect sends one frame and returns boxes normalized to [0,1]
func (gd *GRPCDetector) Detect(ctx context.Context, cameraID string, seq uint64, frame Frame) (*Result, error) {
	req, err := structpb.NewStruct(map[string]any{
		"camera_id":      cameraID,
		"frame_seq":      float64(seq),
		"timestamp_ns":   float64(time.Now().UnixNano()),
		"jpeg_data":      base64.StdEncoding.EncodeToString(frame.Data),
		"conf_threshold": float64(gd.confThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := gd.conn.Invoke(ctx, DetectMethod, req, resp); err != nil {
		gd.healthMu.Lock()
		gd.healthy = false
		gd.healthMu.Unlock()
		return nil, fmt.Errorf("gRPC detection failed: %w", err)
	}

	return gd.convertResponse(resp, frame)
}

// convertResponse maps the response struct onto engine detections
func (gd *GRPCDetector) convertResponse(resp *structpb.Struct, frame Frame) (*Result, error) {
	fields := resp.GetFields()
	normalized := fields["normalized"].GetBoolValue()

	width := int(fields["image_width"].GetNumberValue())
	height := int(fields["image_height"].GetNumberValue())
	if width <= 0 || height <= 0 {
		width, height = frameSize(frame)
	}

	list := fields["detections"].GetListValue().GetValues()
	out := &Result{
		Detections:  make([]engine.Detection, 0, len(list)),
		InferenceMs: float32(fields["inference_time_ms"].GetNumberValue()),
	}

	for _, v := range list {
		det := v.GetStructValue().GetFields()
		bbox := det["bbox"].GetStructValue().GetFields()
		box := geometry.Box{
			X1: bbox["x1"].GetNumberValue(),
			Y1: bbox["y1"].GetNumberValue(),
			X2: bbox["x2"].GetNumberValue(),
			Y2: bbox["y2"].GetNumberValue(),
		}
		if !normalized && box.Finite() && !box.IsNormalized() {
			if width <= 0 || height <= 0 {
				return nil, fmt.Errorf("cannot normalize pixel boxes: frame size unknown")
			}
			box = box.Normalize(width, height)
		}

		out.Detections = append(out.Detections, engine.Detection{
			Class:      strings.ToLower(det["class_name"].GetStringValue()),
			Confidence: det["confidence"].GetNumberValue(),
			BBox:       box,
		})
	}
	return out, nil
}

// Close closes the gRPC connection
func (gd *GRPCDetector) Close() error {
	if gd.conn != nil {
		return gd.conn.Close()
	}
	return nil
}
