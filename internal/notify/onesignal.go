package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOneSignalURL is the OneSignal notifications endpoint
	DefaultOneSignalURL = "https://onesignal.com/api/v1/notifications"
	// DefaultAndroidChannel is the channel carrying the alert sound on Android
	DefaultAndroidChannel = "2fe37f53-0fc7-4e4f-94c0-8dac5edd28de"
)

// OneSignalConfig holds OneSignal credentials
type OneSignalConfig struct {
	Enabled          bool
	AppID            string
	RESTKey          string
	URL              string
	AndroidChannelID string
	Timeout          time.Duration
}

// OneSignal sends push notifications to the mobile app
type OneSignal struct {
	cfg        OneSignalConfig
	httpClient *http.Client
}

// oneSignalPayload is the notifications request body
type oneSignalPayload struct {
	AppID            string            `json:"app_id"`
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
	Data             map[string]string `json:"data"`
	BigPicture       string            `json:"big_picture,omitempty"`
	LargeIcon        string            `json:"large_icon,omitempty"`
	Priority         int               `json:"priority"`
	AndroidChannelID string            `json:"android_channel_id"`
	IncludePlayerIDs []string          `json:"include_player_ids,omitempty"`
	IncludedSegments []string          `json:"included_segments,omitempty"`
}

// oneSignalResponse is the subset of the response we look at
type oneSignalResponse struct {
	ID         string          `json:"id"`
	Recipients int             `json:"recipients"`
	Errors     json.RawMessage `json:"errors,omitempty"`
}

// NewOneSignal creates a OneSignal client
func NewOneSignal(cfg OneSignalConfig) *OneSignal {
	if cfg.URL == "" {
		cfg.URL = DefaultOneSignalURL
	}
	if cfg.AndroidChannelID == "" {
		cfg.AndroidChannelID = DefaultAndroidChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &OneSignal{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the notifier name
func (o *OneSignal) Name() string {
	return "onesignal"
}

// Notify sends a wildlife alert push. Targeted when player ids are given,
// otherwise to the "All" segment.
func (o *OneSignal) Notify(ctx context.Context, n Notification) error {
	if !o.cfg.Enabled {
		return nil
	}

	ts := n.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	location := n.Location
	if location == "" {
		location = "Unknown"
	}

	payload := oneSignalPayload{
		AppID:    o.cfg.AppID,
		Headings: map[string]string{"en": fmt.Sprintf("%s Wildlife Alert", n.Level.Emoji())},
		Contents: map[string]string{"en": fmt.Sprintf("%s %s detected at %s", AnimalEmoji(n.Animal), strings.ToUpper(n.Animal), location)},
		Data: map[string]string{
			"animal_type": n.Animal,
			"image_url":   n.ImageURL,
			"alert_level": string(n.Level),
			"location":    location,
			"timestamp":   ts.Format(time.RFC3339),
		},
		BigPicture:       n.ImageURL,
		LargeIcon:        n.ImageURL,
		Priority:         10,
		AndroidChannelID: o.cfg.AndroidChannelID,
	}
	if len(n.PlayerIDs) > 0 {
		payload.IncludePlayerIDs = n.PlayerIDs
	} else {
		payload.IncludedSegments = []string{"All"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+o.cfg.RESTKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("onesignal returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result oneSignalResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if result.Recipients == 0 {
		log.Printf("[OneSignal] %s %s sent with no recipients", n.Animal, n.Level)
	}
	return nil
}

// ValidateOneSignalConfig checks the credentials of an enabled client
func ValidateOneSignalConfig(cfg OneSignalConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.AppID == "" {
		return fmt.Errorf("onesignal app id is required when enabled")
	}
	if cfg.RESTKey == "" {
		return fmt.Errorf("onesignal REST API key is required when enabled")
	}
	return nil
}
