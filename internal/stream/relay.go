package stream

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/NarenCandy/wild-animal-detection/internal/engine"
	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
)

// DefaultOverlayTTL is how long a frame's decisions stay drawn
const DefaultOverlayTTL = 2 * time.Second

// Relay re-serves captured camera frames as MJPEG, with the latest
// decisions drawn on top
type Relay struct {
	provider   pipeline.FrameProvider
	isHuman    func(engine.Detection) bool
	overlayTTL time.Duration

	mu      sync.RWMutex
	streams map[string]*cameraStream
	order   []string
}

type cameraStream struct {
	cameraID string
	sub      *pipeline.FrameSubscription
	done     chan struct{}

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameMu   sync.RWMutex
	current   []byte
	overlays  []Overlay
	overlayAt time.Time
}

// NewRelay creates a relay over a frame provider. isHuman selects the
// detections drawn as humans; nil draws none.
func NewRelay(provider pipeline.FrameProvider, isHuman func(engine.Detection) bool) *Relay {
	if isHuman == nil {
		isHuman = func(engine.Detection) bool { return false }
	}
	return &Relay{
		provider:   provider,
		isHuman:    isHuman,
		overlayTTL: DefaultOverlayTTL,
		streams:    make(map[string]*cameraStream),
	}
}

// Attach starts relaying a camera whose frames are being captured
func (r *Relay) Attach(cameraID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.streams[cameraID]; exists {
		return nil
	}

	sub, err := r.provider.Subscribe(cameraID, 5)
	if err != nil {
		return fmt.Errorf("failed to subscribe to camera %s: %w", cameraID, err)
	}

	s := &cameraStream{
		cameraID: cameraID,
		sub:      sub,
		done:     make(chan struct{}),
		clients:  make(map[chan []byte]struct{}),
	}
	r.streams[cameraID] = s
	r.order = append(r.order, cameraID)

	go r.receive(s)
	log.Printf("[Relay] Relaying camera %s", cameraID)
	return nil
}

// Detach stops relaying a camera
func (r *Relay) Detach(cameraID string) {
	r.mu.Lock()
	s, exists := r.streams[cameraID]
	if exists {
		delete(r.streams, cameraID)
		r.order = lo.Without(r.order, cameraID)
	}
	r.mu.Unlock()

	if !exists {
		return
	}
	close(s.done)
	r.provider.Unsubscribe(s.sub)
}

// OnFrameResult records the decisions of an evaluated frame for drawing
func (r *Relay) OnFrameResult(result *pipeline.FrameResult) {
	s := r.stream(result.CameraID)
	if s == nil {
		return
	}

	humans := lo.Filter(result.Detections, func(d engine.Detection, _ int) bool {
		return r.isHuman(d)
	})

	s.frameMu.Lock()
	s.overlays = OverlaysFor(result.Decisions, humans)
	s.overlayAt = time.Now()
	s.frameMu.Unlock()
}

func (r *Relay) stream(cameraID string) *cameraStream {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cameraID == "" && len(r.order) > 0 {
		cameraID = r.order[0]
	}
	return r.streams[cameraID]
}

// receive copies frames from the provider to MJPEG clients
func (r *Relay) receive(s *cameraStream) {
	for {
		select {
		case <-s.done:
			return
		case <-s.sub.Done:
			return
		case frame, ok := <-s.sub.Channel:
			if !ok {
				return
			}
			if frame == nil {
				continue
			}
			out := r.render(s, frame.Data)

			s.clientsMu.RLock()
			for ch := range s.clients {
				select {
				case ch <- out:
				default:
					// slow client, skip this frame
				}
			}
			s.clientsMu.RUnlock()
		}
	}
}

// render stores the frame and returns it with fresh overlays drawn
func (r *Relay) render(s *cameraStream, raw []byte) []byte {
	s.frameMu.Lock()
	s.current = raw
	overlays := s.overlays
	fresh := time.Since(s.overlayAt) < r.overlayTTL
	s.frameMu.Unlock()

	if !fresh || len(overlays) == 0 {
		return raw
	}
	annotated, err := Annotate(raw, overlays)
	if err != nil {
		return raw
	}
	return annotated
}

// Snapshot returns the latest frame of a camera with overlays drawn
func (r *Relay) Snapshot(cameraID string) []byte {
	s := r.stream(cameraID)
	if s == nil {
		return nil
	}
	s.frameMu.RLock()
	raw := s.current
	s.frameMu.RUnlock()
	if raw == nil {
		return nil
	}
	return r.render(s, raw)
}

// ServeHTTP serves the MJPEG stream of the camera named by the "camera"
// query parameter, or the first attached camera
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s := r.stream(req.URL.Query().Get("camera"))
	if s == nil {
		http.Error(w, "camera not streaming", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientCh := make(chan []byte, 5)
	s.clientsMu.Lock()
	s.clients[clientCh] = struct{}{}
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, clientCh)
		s.clientsMu.Unlock()
	}()

	log.Printf("[Relay] Client connected to camera %s", s.cameraID)

	for {
		select {
		case <-req.Context().Done():
			log.Printf("[Relay] Client disconnected from camera %s", s.cameraID)
			return
		case <-s.done:
			return
		case frame := <-clientCh:
			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
			w.Write(frame)
			fmt.Fprintf(w, "\r\n")
			flusher.Flush()
		}
	}
}

// ServeSnapshot serves a single annotated JPEG
func (r *Relay) ServeSnapshot(w http.ResponseWriter, req *http.Request) {
	frame := r.Snapshot(req.URL.Query().Get("camera"))
	if frame == nil {
		http.Error(w, "No frame available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(frame)))
	w.Write(frame)
}
