package stream

import (
	"bufio"
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/engine"
	"github.com/NarenCandy/wild-animal-detection/internal/geometry"
	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
	"github.com/NarenCandy/wild-animal-detection/internal/severity"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{30, 120, 30, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestAnnotate_DrawsBox(t *testing.T) {
	src := testJPEG(t, 200, 100)
	out, err := Annotate(src, []Overlay{
		{Box: geometry.Box{X1: 0.25, Y1: 0.4, X2: 0.75, Y2: 0.9}, Label: "tiger", Color: ColorEmit},
		{Box: geometry.Box{X1: 0.1, Y1: 0.1, X2: math.NaN(), Y2: 0.2}, Label: "bad", Color: ColorEmit},
	})
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 100 {
		t.Fatalf("size changed: %v", img.Bounds())
	}
	// left edge of the box at x=50, midway down
	r, g, _, _ := img.At(50, 70).RGBA()
	if r>>8 < 150 || g>>8 > 110 {
		t.Errorf("want red box edge at (50,70), got r=%d g=%d", r>>8, g>>8)
	}
}

func TestAnnotate_RejectsNonJPEG(t *testing.T) {
	if _, err := Annotate([]byte("nope"), nil); err == nil {
		t.Error("want decode error")
	}
}

func TestOverlaysFor_Colors(t *testing.T) {
	box := geometry.Box{X1: 0.1, Y1: 0.1, X2: 0.3, Y2: 0.3}
	overlays := OverlaysFor([]engine.Decision{
		{Detection: engine.Detection{Class: "bear", Confidence: 0.9, BBox: box}, Level: severity.High, Action: engine.ActionEmit},
		{Detection: engine.Detection{Class: "boar", Confidence: 0.8, BBox: box}, Level: severity.Medium, Action: engine.ActionSuppress, Reason: engine.ReasonDuplicatePosition},
		{Detection: engine.Detection{Class: "tiger", Confidence: 0.7, BBox: box}, Level: severity.High, Action: engine.ActionSuppress, Reason: engine.ReasonHumanNearby},
	}, []engine.Detection{{Class: "human", Confidence: 0.95, BBox: box}})

	want := []color.RGBA{ColorHuman, ColorEmit, ColorDuplicate, ColorNearHuman}
	if len(overlays) != len(want) {
		t.Fatalf("want %d overlays, got %d", len(want), len(overlays))
	}
	for i, c := range want {
		if overlays[i].Color != c {
			t.Errorf("overlay %d: want %v, got %v", i, c, overlays[i].Color)
		}
	}
	if overlays[1].Label != "bear HIGH 90%" {
		t.Errorf("unexpected label %q", overlays[1].Label)
	}
}

type memProvider struct {
	mu  sync.Mutex
	sub *pipeline.FrameSubscription
}

func (p *memProvider) Start(string, string, int, int, int) error { return nil }
func (p *memProvider) Stop(string) error                         { return nil }
func (p *memProvider) IsRunning(string) bool                     { return true }
func (p *memProvider) GetStats(string) *pipeline.CaptureStats    { return nil }
func (p *memProvider) Unsubscribe(*pipeline.FrameSubscription)   {}
func (p *memProvider) Subscribe(cameraID string, n int) (*pipeline.FrameSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sub = &pipeline.FrameSubscription{CameraID: cameraID, Channel: make(chan *pipeline.FrameData, 8), Done: make(chan struct{})}
	return p.sub, nil
}

func TestRelay_SnapshotAndStream(t *testing.T) {
	provider := &memProvider{}
	relay := NewRelay(provider, func(d engine.Detection) bool { return d.Class == "human" })
	if err := relay.Attach("gate"); err != nil {
		t.Fatal(err)
	}
	defer relay.Detach("gate")

	rec := httptest.NewRecorder()
	relay.ServeSnapshot(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no frame yet: want 503, got %d", rec.Code)
	}

	srv := httptest.NewServer(http.HandlerFunc(relay.ServeHTTP))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/video_feed?camera=gate")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("unexpected content type %q", ct)
	}

	frame := testJPEG(t, 64, 48)
	// keep pushing until the streaming client has registered
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case provider.sub.Channel <- &pipeline.FrameData{CameraID: "gate", Data: frame, Timestamp: time.Now()}:
				time.Sleep(20 * time.Millisecond)
			}
		}
	}()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(line) != "--frame" {
		t.Errorf("want boundary line, got %q", line)
	}

	if snap := relay.Snapshot("gate"); !bytes.Equal(snap, frame) {
		t.Error("snapshot without overlays must be the raw frame")
	}

	relay.OnFrameResult(&pipeline.FrameResult{
		CameraID: "gate",
		Decisions: []engine.Decision{{
			Detection: engine.Detection{Class: "bear", Confidence: 0.9, BBox: geometry.Box{X1: 0.2, Y1: 0.2, X2: 0.8, Y2: 0.8}},
			Level:     severity.High,
			Action:    engine.ActionEmit,
		}},
	})
	if snap := relay.Snapshot(""); bytes.Equal(snap, frame) || snap == nil {
		t.Error("snapshot with fresh overlays must be annotated")
	}
}

func TestRelay_UnknownCamera(t *testing.T) {
	relay := NewRelay(&memProvider{}, nil)
	rec := httptest.NewRecorder()
	relay.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/video_feed?camera=x", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("want 404, got %d", rec.Code)
	}
}
