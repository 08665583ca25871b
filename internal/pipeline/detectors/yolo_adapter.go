package detectors

import (
	"context"
	"fmt"

	"github.com/NarenCandy/wild-animal-detection/internal/detection"
	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
)

// YOLOAdapter exposes the HTTP YOLO client as a pipeline detector
type YOLOAdapter struct {
	detector *detection.YOLODetector
}

// NewYOLOAdapter creates a new YOLO detector adapter
func NewYOLOAdapter(detector *detection.YOLODetector) *YOLOAdapter {
	return &YOLOAdapter{detector: detector}
}

func (a *YOLOAdapter) Name() string {
	return "yolo"
}

func (a *YOLOAdapter) Type() pipeline.DetectorType {
	return pipeline.DetectorTypeYOLO
}

func (a *YOLOAdapter) IsHealthy() bool {
	return a.detector != nil && a.detector.IsHealthy()
}

func (a *YOLOAdapter) Detect(ctx context.Context, frame *pipeline.FrameData) (*pipeline.DetectionResult, error) {
	if a.detector == nil {
		return nil, fmt.Errorf("YOLO detector not configured")
	}

	res, err := a.detector.Detect(ctx, detection.Frame{Data: frame.Data, Width: frame.Width, Height: frame.Height})
	if err != nil {
		return nil, err
	}
	return toPipelineResult(frame, pipeline.DetectorTypeYOLO, res), nil
}

func (a *YOLOAdapter) Close() error {
	if a.detector == nil {
		return nil
	}
	return a.detector.Close()
}

func toPipelineResult(frame *pipeline.FrameData, kind pipeline.DetectorType, res *detection.Result) *pipeline.DetectionResult {
	return &pipeline.DetectionResult{
		CameraID:     frame.CameraID,
		FrameSeq:     frame.Seq,
		Timestamp:    frame.Timestamp,
		DetectorType: kind,
		Detections:   res.Detections,
		InferenceMs:  res.InferenceMs,
	}
}

var _ pipeline.Detector = (*YOLOAdapter)(nil)
