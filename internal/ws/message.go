package ws

import (
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/engine"
	"github.com/NarenCandy/wild-animal-detection/internal/geometry"
)

// AlertMessage is pushed when an alert has been stored
type AlertMessage struct {
	Type       string        `json:"type"` // "alert"
	ID         string        `json:"id"`
	Animal     string        `json:"animal"`
	AlertLevel string        `json:"alert_level"`
	ImageURL   string        `json:"image_url,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	BBox       *geometry.Box `json:"bbox,omitempty"`
	CameraID   string        `json:"camera_id,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// DecisionMessage carries every decision of one evaluated frame, suppressed
// ones included, for live overlays
type DecisionMessage struct {
	Type      string          `json:"type"` // "decision"
	CameraID  string          `json:"camera_id"`
	FrameSeq  uint64          `json:"frame_seq"`
	Timestamp time.Time       `json:"timestamp"`
	Decisions []DecisionEntry `json:"decisions"`
	Humans    []geometry.Box  `json:"humans,omitempty"`
}

// DecisionEntry is one decision in wire form
type DecisionEntry struct {
	Class      string        `json:"class"`
	Confidence float64       `json:"confidence"`
	BBox       geometry.Box  `json:"bbox"`
	Level      string        `json:"level"`
	Action     engine.Action `json:"action"`
	Reason     engine.Reason `json:"reason,omitempty"`
}

// NewDecisionMessage builds a decision message for a frame
func NewDecisionMessage(cameraID string, seq uint64, ts time.Time, decisions []engine.Decision) *DecisionMessage {
	msg := &DecisionMessage{
		Type:      "decision",
		CameraID:  cameraID,
		FrameSeq:  seq,
		Timestamp: ts,
		Decisions: make([]DecisionEntry, 0, len(decisions)),
	}
	for _, d := range decisions {
		msg.Decisions = append(msg.Decisions, DecisionEntry{
			Class:      d.Detection.Class,
			Confidence: d.Detection.Confidence,
			BBox:       d.Detection.BBox,
			Level:      string(d.Level),
			Action:     d.Action,
			Reason:     d.Reason,
		})
	}
	return msg
}

// AddHuman records a human box for the overlay
func (m *DecisionMessage) AddHuman(box geometry.Box) {
	m.Humans = append(m.Humans, box)
}
