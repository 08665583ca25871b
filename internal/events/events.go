package events

import (
	"encoding/json"
	"time"
)

// DefaultTopic is the Kafka topic alert events are published to
const DefaultTopic = "wildlife.alerts"

// AlertEvent is the payload published for every stored alert
type AlertEvent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Animal     string    `json:"animal"`
	AlertLevel string    `json:"alert_level"`
	Confidence float64   `json:"confidence,omitempty"`
	CameraID   string    `json:"camera_id,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Encode returns the JSON form of the event
func (e AlertEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}
