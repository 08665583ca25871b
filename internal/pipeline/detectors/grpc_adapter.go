package detectors

import (
	"context"
	"fmt"

	"github.com/NarenCandy/wild-animal-detection/internal/detection"
	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
)

// GRPCAdapter exposes the gRPC detection client as a pipeline detector
type GRPCAdapter struct {
	detector *detection.GRPCDetector
}

// NewGRPCAdapter creates a new gRPC detector adapter
func NewGRPCAdapter(detector *detection.GRPCDetector) *GRPCAdapter {
	return &GRPCAdapter{detector: detector}
}

func (a *GRPCAdapter) Name() string {
	return "grpc"
}

func (a *GRPCAdapter) Type() pipeline.DetectorType {
	return pipeline.DetectorTypeGRPC
}

func (a *GRPCAdapter) IsHealthy() bool {
	return a.detector != nil && a.detector.IsHealthy()
}

func (a *GRPCAdapter) Detect(ctx context.Context, frame *pipeline.FrameData) (*pipeline.DetectionResult, error) {
	if a.detector == nil {
		return nil, fmt.Errorf("gRPC detector not configured")
	}

	res, err := a.detector.Detect(ctx, frame.CameraID, frame.Seq,
		detection.Frame{Data: frame.Data, Width: frame.Width, Height: frame.Height})
	if err != nil {
		return nil, err
	}
	return toPipelineResult(frame, pipeline.DetectorTypeGRPC, res), nil
}

func (a *GRPCAdapter) Close() error {
	if a.detector == nil {
		return nil
	}
	return a.detector.Close()
}

var _ pipeline.Detector = (*GRPCAdapter)(nil)
