package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SourceKind identifies how frames are pulled from a camera device
type SourceKind string

const (
	SourceSnapshot SourceKind = "snapshot" // HTTP still image polled at fps
	SourceMJPEG    SourceKind = "mjpeg"    // HTTP multipart/x-mixed-replace stream
	SourceFFmpeg   SourceKind = "ffmpeg"   // RTSP, V4L2 or anything ffmpeg can open
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// FFmpegFrameProvider captures frames from cameras and broadcasts them to
// multiple subscribers. HTTP snapshot and MJPEG sources are read natively,
// everything else goes through an ffmpeg image2pipe process.
type FFmpegFrameProvider struct {
	cameras map[string]*cameraCapture
	client  *http.Client
	mu      sync.RWMutex
}

// cameraCapture handles frame capture for a single camera
type cameraCapture struct {
	cameraID    string
	device      string
	kind        SourceKind
	fps         int
	width       int
	height      int
	client      *http.Client
	running     atomic.Bool
	ctx         context.Context
	cancel      context.CancelFunc
	subscribers map[*FrameSubscription]bool
	subMu       sync.RWMutex
	frameSeq    atomic.Uint64
	stats       *CaptureStats
	statsMu     sync.RWMutex
	fpsWindow   []time.Time
}

// NewFFmpegFrameProvider creates a new frame provider
func NewFFmpegFrameProvider() *FFmpegFrameProvider {
	return &FFmpegFrameProvider{
		cameras: make(map[string]*cameraCapture),
		// No overall timeout: MJPEG responses stay open for the life of the stream
		client: &http.Client{},
	}
}

// DetectSource picks the capture method for a device string
func DetectSource(device string) SourceKind {
	lower := strings.ToLower(device)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return SourceFFmpeg
	}
	if strings.Contains(lower, "video_feed") || strings.Contains(lower, "mjpg") || strings.Contains(lower, "mjpeg") {
		return SourceMJPEG
	}
	if strings.Contains(lower, ".jpg") || strings.Contains(lower, ".jpeg") ||
		strings.Contains(lower, "image") || strings.Contains(lower, "snapshot") {
		return SourceSnapshot
	}
	return SourceFFmpeg
}

func (p *FFmpegFrameProvider) Start(cameraID string, device string, fps int, width int, height int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.cameras[cameraID]; exists {
		return fmt.Errorf("camera %s already started", cameraID)
	}
	if fps <= 0 {
		fps = 15
	}

	ctx, cancel := context.WithCancel(context.Background())
	capture := &cameraCapture{
		cameraID:    cameraID,
		device:      device,
		kind:        DetectSource(device),
		fps:         fps,
		width:       width,
		height:      height,
		client:      p.client,
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[*FrameSubscription]bool),
		stats: &CaptureStats{
			CameraID: cameraID,
		},
	}

	p.cameras[cameraID] = capture
	capture.running.Store(true)

	go capture.run()

	log.Printf("[FrameProvider] Started %s capture for camera %s (device: %s, fps: %d)", capture.kind, cameraID, device, fps)
	return nil
}

func (p *FFmpegFrameProvider) Stop(cameraID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	capture, exists := p.cameras[cameraID]
	if !exists {
		return fmt.Errorf("camera %s not found", cameraID)
	}

	capture.stop()
	delete(p.cameras, cameraID)

	log.Printf("[FrameProvider] Stopped capture for camera %s", cameraID)
	return nil
}

// StopAll stops every camera
func (p *FFmpegFrameProvider) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, capture := range p.cameras {
		capture.stop()
		delete(p.cameras, id)
	}
}

func (p *FFmpegFrameProvider) Subscribe(cameraID string, bufferSize int) (*FrameSubscription, error) {
	p.mu.RLock()
	capture, exists := p.cameras[cameraID]
	p.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("camera %s not found", cameraID)
	}

	if bufferSize <= 0 {
		bufferSize = 5
	}

	sub := &FrameSubscription{
		CameraID: cameraID,
		Channel:  make(chan *FrameData, bufferSize),
		Done:     make(chan struct{}),
	}

	capture.subMu.Lock()
	capture.subscribers[sub] = true
	total := len(capture.subscribers)
	capture.subMu.Unlock()

	log.Printf("[FrameProvider] New subscriber for camera %s (total: %d)", cameraID, total)
	return sub, nil
}

func (p *FFmpegFrameProvider) Unsubscribe(sub *FrameSubscription) {
	if sub == nil {
		return
	}

	p.mu.RLock()
	capture, exists := p.cameras[sub.CameraID]
	p.mu.RUnlock()

	if !exists {
		return
	}

	capture.subMu.Lock()
	if _, ok := capture.subscribers[sub]; ok {
		delete(capture.subscribers, sub)
		close(sub.Done)
	}
	remaining := len(capture.subscribers)
	capture.subMu.Unlock()

	log.Printf("[FrameProvider] Unsubscribed from camera %s (remaining: %d)", sub.CameraID, remaining)
}

func (p *FFmpegFrameProvider) IsRunning(cameraID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	capture, exists := p.cameras[cameraID]
	if !exists {
		return false
	}
	return capture.running.Load()
}

func (p *FFmpegFrameProvider) GetStats(cameraID string) *CaptureStats {
	p.mu.RLock()
	capture, exists := p.cameras[cameraID]
	p.mu.RUnlock()

	if !exists {
		return nil
	}

	capture.statsMu.RLock()
	defer capture.statsMu.RUnlock()

	stats := *capture.stats
	return &stats
}

// run keeps the source open, reconnecting with exponential backoff until
// the capture is stopped
func (c *cameraCapture) run() {
	defer c.running.Store(false)

	delay := reconnectBaseDelay
	for {
		start := time.Now()
		var err error
		switch c.kind {
		case SourceSnapshot:
			err = c.captureHTTPImages()
		case SourceMJPEG:
			err = c.captureMJPEG()
		default:
			err = c.captureFFmpeg()
		}

		if c.ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("[FrameProvider] Camera %s source error: %v", c.cameraID, err)
		}

		// A source that ran for a while before failing gets a fresh backoff
		if time.Since(start) > reconnectMaxDelay {
			delay = reconnectBaseDelay
		}

		c.statsMu.Lock()
		c.stats.ReconnectAttempts++
		c.statsMu.Unlock()

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, reconnectMaxDelay)
	}
}

func (c *cameraCapture) stop() {
	c.cancel()

	c.subMu.Lock()
	for sub := range c.subscribers {
		close(sub.Done)
		delete(c.subscribers, sub)
	}
	c.subMu.Unlock()
}

func (c *cameraCapture) captureHTTPImages() error {
	interval := time.Second / time.Duration(c.fps)
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-c.ctx.Done():
			return nil
		case <-ticker.C:
			frame, err := c.fetchSnapshot()
			if err != nil {
				failures++
				if failures >= 10 {
					return fmt.Errorf("failed to fetch snapshot %d times: %w", failures, err)
				}
				continue
			}
			failures = 0
			c.broadcastFrame(frame)
		}
	}
}

func (c *cameraCapture) fetchSnapshot() ([]byte, error) {
	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.device, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// captureMJPEG reads a multipart/x-mixed-replace stream part by part
func (c *cameraCapture) captureMJPEG() error {
	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, c.device, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	return readMJPEG(resp.Header.Get("Content-Type"), resp.Body, c.broadcastFrame)
}

// readMJPEG splits an MJPEG body into JPEG frames. Streams without a usable
// boundary are scanned for JPEG markers instead.
func readMJPEG(contentType string, body io.Reader, emit func([]byte)) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return scanJPEGStream(body, emit)
	}

	mr := multipart.NewReader(body, strings.TrimPrefix(params["boundary"], "--"))
	for {
		part, err := mr.NextPart()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read stream part: %w", err)
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return fmt.Errorf("failed to read frame: %w", err)
		}
		if len(data) > 0 {
			emit(data)
		}
	}
}

// scanJPEGStream extracts concatenated JPEG images from a raw byte stream
func scanJPEGStream(r io.Reader, emit func([]byte)) error {
	frameBuffer := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 32*1024)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			frameBuffer = append(frameBuffer, chunk[:n]...)
			for {
				frame := extractJPEGFrame(&frameBuffer)
				if frame == nil {
					break
				}
				emit(frame)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (c *cameraCapture) ffmpegArgs() []string {
	out := []string{"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-"}
	switch {
	case strings.HasPrefix(c.device, "rtsp://"):
		return append([]string{"-rtsp_transport", "tcp", "-i", c.device, "-r", fmt.Sprintf("%d", c.fps)}, out...)
	case strings.HasPrefix(c.device, "http://"), strings.HasPrefix(c.device, "https://"):
		return append([]string{"-i", c.device, "-r", fmt.Sprintf("%d", c.fps)}, out...)
	default:
		// V4L2 device (USB camera)
		args := []string{"-f", "v4l2"}
		if c.width > 0 && c.height > 0 {
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.width, c.height))
		}
		args = append(args, "-framerate", fmt.Sprintf("%d", c.fps), "-i", c.device)
		return append(args, out...)
	}
}

func (c *cameraCapture) captureFFmpeg() error {
	cmd := exec.CommandContext(c.ctx, "ffmpeg", c.ffmpegArgs()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// Keep the last stderr line for the error report
	var lastLine atomic.Value
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			lastLine.Store(scanner.Text())
		}
	}()

	readErr := scanJPEGStream(stdout, c.broadcastFrame)
	waitErr := cmd.Wait()

	if c.ctx.Err() != nil {
		return nil
	}
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		if line, ok := lastLine.Load().(string); ok {
			return fmt.Errorf("ffmpeg exited: %w (%s)", waitErr, line)
		}
		return fmt.Errorf("ffmpeg exited: %w", waitErr)
	}
	return errors.New("ffmpeg stream ended")
}

func (c *cameraCapture) broadcastFrame(data []byte) {
	seq := c.frameSeq.Add(1)
	now := time.Now()

	frame := &FrameData{
		CameraID:  c.cameraID,
		Data:      data,
		Seq:       seq,
		Timestamp: now,
		Width:     c.width,
		Height:    c.height,
	}

	c.statsMu.Lock()
	c.stats.FramesCaptured++
	c.stats.LastFrameTime = now.Unix()
	c.fpsWindow = append(c.fpsWindow, now)
	cutoff := now.Add(-time.Second)
	for len(c.fpsWindow) > 0 && c.fpsWindow[0].Before(cutoff) {
		c.fpsWindow = c.fpsWindow[1:]
	}
	c.stats.CurrentFPS = float32(len(c.fpsWindow))
	c.statsMu.Unlock()

	c.subMu.RLock()
	dropped := 0
	for sub := range c.subscribers {
		select {
		case sub.Channel <- frame:
		default:
			// Subscriber is slow, drop frame
			dropped++
		}
	}
	subCount := len(c.subscribers)
	c.subMu.RUnlock()

	if dropped > 0 {
		c.statsMu.Lock()
		c.stats.FramesDropped += uint64(dropped)
		c.statsMu.Unlock()
	}

	if seq%500 == 0 {
		log.Printf("[FrameProvider] Camera %s: frame %d, %d subscribers", c.cameraID, seq, subCount)
	}
}

// extractJPEGFrame extracts a complete JPEG frame from buffer
func extractJPEGFrame(buffer *[]byte) []byte {
	buf := *buffer
	if len(buf) < 4 {
		return nil
	}

	startIdx := -1
	for i := 0; i < len(buf)-1; i++ {
		if buf[i] == 0xFF && buf[i+1] == 0xD8 {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		// Nothing useful yet; keep the last byte in case it starts a marker
		*buffer = buf[len(buf)-1:]
		return nil
	}

	endIdx := -1
	for i := startIdx + 2; i < len(buf)-1; i++ {
		if buf[i] == 0xFF && buf[i+1] == 0xD9 {
			endIdx = i + 2
			break
		}
	}
	if endIdx == -1 {
		*buffer = buf[startIdx:]
		return nil
	}

	frame := make([]byte, endIdx-startIdx)
	copy(frame, buf[startIdx:endIdx])
	*buffer = buf[endIdx:]

	return frame
}

var _ FrameProvider = (*FFmpegFrameProvider)(nil)
