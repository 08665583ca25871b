package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func newYOLOServer(t *testing.T, result YOLOResult) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(YOLOHealthResponse{Status: "healthy", ModelLoaded: true})
	})
	mux.HandleFunc("/detect", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		if r.FormValue("conf_threshold") == "" {
			http.Error(w, "missing conf_threshold", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(result)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestYOLODetector_NormalizesPixelBoxes(t *testing.T) {
	srv := newYOLOServer(t, YOLOResult{
		Detections: []YOLODetection{
			{Class: "Tiger", Confidence: 0.91, BBox: []float32{20, 10, 100, 50}},
		},
		InferenceTimeMs: 12,
	})

	d := NewYOLODetector(srv.URL)
	res, err := d.Detect(context.Background(), Frame{Data: testJPEG(t, 200, 100)})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(res.Detections) != 1 {
		t.Fatalf("want 1 detection, got %d", len(res.Detections))
	}

	got := res.Detections[0]
	if got.Class != "tiger" {
		t.Errorf("want class tiger, got %q", got.Class)
	}
	if !approx(got.Confidence, 0.91) {
		t.Errorf("want confidence 0.91, got %v", got.Confidence)
	}
	if !approx(got.BBox.X1, 0.1) || !approx(got.BBox.Y1, 0.1) || !approx(got.BBox.X2, 0.5) || !approx(got.BBox.Y2, 0.5) {
		t.Errorf("want box (0.1,0.1,0.5,0.5), got %+v", got.BBox)
	}
	if res.InferenceMs != 12 {
		t.Errorf("want inference 12ms, got %v", res.InferenceMs)
	}
}

func TestYOLODetector_KeepsNormalizedBoxes(t *testing.T) {
	srv := newYOLOServer(t, YOLOResult{
		Detections: []YOLODetection{{Class: "bear", Confidence: 0.7, BBox: []float32{0.2, 0.2, 0.4, 0.6}}},
		Normalized: true,
	})

	res, err := NewYOLODetector(srv.URL).Detect(context.Background(), Frame{Data: []byte("not a jpeg")})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if b := res.Detections[0].BBox; !approx(b.X2, 0.4) || !approx(b.Y2, 0.6) {
		t.Errorf("normalized boxes must pass through, got %+v", b)
	}
}

func TestYOLODetector_ShortBBoxIsMalformed(t *testing.T) {
	srv := newYOLOServer(t, YOLOResult{
		Detections: []YOLODetection{{Class: "boar", Confidence: 0.8, BBox: []float32{1, 2}}},
		Normalized: true,
	})

	res, err := NewYOLODetector(srv.URL).Detect(context.Background(), Frame{})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.Detections[0].BBox.Finite() {
		t.Errorf("want non-finite box for short bbox, got %+v", res.Detections[0].BBox)
	}
}

func TestYOLODetector_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewYOLODetector(srv.URL)
	if d.IsHealthy() {
		t.Fatal("want unhealthy detector")
	}
	if _, err := d.Detect(context.Background(), Frame{Data: testJPEG(t, 10, 10)}); err == nil {
		t.Fatal("want error from unhealthy detector")
	}
}

func TestYOLODetector_Disabled(t *testing.T) {
	d := NewYOLODetectorWithConfig(YOLOConfig{Enabled: false, ServiceEndpoint: "http://127.0.0.1:1"})
	if d.IsHealthy() {
		t.Error("disabled detector must report unhealthy")
	}
}

// detectionServer is the handler type for the test service
type detectionServer interface{}

type fakeDetectionService struct {
	response *structpb.Struct
	lastReq  *structpb.Struct
}

func startGRPCService(t *testing.T, svc *fakeDetectionService) *GRPCDetector {
	t.Helper()

	unary := func(fn func(*structpb.Struct) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
		return func(_ any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
			in := &structpb.Struct{}
			if err := dec(in); err != nil {
				return nil, err
			}
			return fn(in)
		}
	}

	desc := grpc.ServiceDesc{
		ServiceName: "detection.v1.DetectionService",
		HandlerType: (*detectionServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Detect", Handler: unary(func(in *structpb.Struct) (*structpb.Struct, error) {
				svc.lastReq = in
				return svc.response, nil
			})},
			{MethodName: "HealthCheck", Handler: unary(func(*structpb.Struct) (*structpb.Struct, error) {
				return structpb.NewStruct(map[string]any{"status": "healthy", "model_loaded": true})
			})},
		},
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&desc, svc)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	d, err := NewGRPCDetector(GRPCDetectorConfig{
		Endpoint: "passthrough:///bufnet",
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
	if err != nil {
		t.Fatalf("NewGRPCDetector: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestGRPCDetector_Detect(t *testing.T) {
	resp, err := structpb.NewStruct(map[string]any{
		"inference_time_ms": 8.5,
		"image_width":       400.0,
		"image_height":      200.0,
		"detections": []any{
			map[string]any{
				"class_name": "Elephant",
				"confidence": 0.88,
				"bbox":       map[string]any{"x1": 40.0, "y1": 20.0, "x2": 200.0, "y2": 100.0},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	svc := &fakeDetectionService{response: resp}
	d := startGRPCService(t, svc)

	if !d.IsHealthy() {
		t.Fatal("want healthy detector")
	}

	res, err := d.Detect(context.Background(), "cam0", 7, Frame{Data: []byte{0xFF, 0xD8}})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(res.Detections) != 1 {
		t.Fatalf("want 1 detection, got %d", len(res.Detections))
	}
	got := res.Detections[0]
	if got.Class != "elephant" || !approx(got.Confidence, 0.88) {
		t.Errorf("want elephant 0.88, got %s %v", got.Class, got.Confidence)
	}
	if !approx(got.BBox.X1, 0.1) || !approx(got.BBox.Y2, 0.5) {
		t.Errorf("want normalized box, got %+v", got.BBox)
	}
	if res.InferenceMs != 8.5 {
		t.Errorf("want 8.5ms, got %v", res.InferenceMs)
	}

	if cam := svc.lastReq.GetFields()["camera_id"].GetStringValue(); cam != "cam0" {
		t.Errorf("want camera_id cam0 in request, got %q", cam)
	}
	if seq := svc.lastReq.GetFields()["frame_seq"].GetNumberValue(); seq != 7 {
		t.Errorf("want frame_seq 7 in request, got %v", seq)
	}
}
