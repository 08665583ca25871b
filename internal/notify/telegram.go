package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultTelegramAPI is the Telegram Bot API base URL
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
	APIBase  string
}

// Telegram posts alerts to a Telegram chat
type Telegram struct {
	mu         sync.RWMutex
	botToken   string
	chatID     string
	enabled    bool
	apiBase    string
	httpClient *http.Client
}

// telegramResponse represents the response from Telegram API
type telegramResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// NewTelegram creates a new Telegram notifier
func NewTelegram(cfg TelegramConfig) *Telegram {
	base := cfg.APIBase
	if base == "" {
		base = DefaultTelegramAPI
	}
	return &Telegram{
		botToken:   cfg.BotToken,
		chatID:     cfg.ChatID,
		enabled:    cfg.Enabled,
		apiBase:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the notifier name
func (t *Telegram) Name() string {
	return "telegram"
}

// IsEnabled returns whether the bot is enabled
func (t *Telegram) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// SetEnabled enables or disables the bot
func (t *Telegram) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// Notify posts the alert, as a photo when the snapshot has a URL
func (t *Telegram) Notify(ctx context.Context, n Notification) error {
	t.mu.RLock()
	enabled := t.enabled
	t.mu.RUnlock()
	if !enabled {
		return nil
	}

	caption := FormatCaption(n)
	if n.ImageURL != "" {
		return t.send(ctx, "sendPhoto", map[string]any{
			"chat_id":    t.chatID,
			"photo":      n.ImageURL,
			"caption":    caption,
			"parse_mode": "HTML",
		})
	}
	return t.send(ctx, "sendMessage", map[string]any{
		"chat_id":    t.chatID,
		"text":       caption,
		"parse_mode": "HTML",
	})
}

// SendTestMessage sends a test message to verify the bot configuration
func (t *Telegram) SendTestMessage(ctx context.Context) error {
	now := time.Now()
	zoneName, _ := now.Zone()
	message := fmt.Sprintf(
		"🤖 <b>Wildlife Alert Test</b>\n\n"+
			"✅ Telegram bot is working correctly!\n"+
			"🕐 Test sent at: %s %s",
		now.Format("2 Jan 2006, 15:04:05"), zoneName,
	)
	return t.send(ctx, "sendMessage", map[string]any{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "HTML",
	})
}

// FormatCaption renders the HTML alert text
func FormatCaption(n Notification) string {
	ts := n.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	zoneName, _ := ts.Zone()

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>Wildlife Alert!</b>\n\n", n.Level.Emoji())
	fmt.Fprintf(&b, "%s Detected: %s\n", AnimalEmoji(n.Animal), html.EscapeString(strings.ToUpper(n.Animal)))
	fmt.Fprintf(&b, "⚠️ Level: %s\n", n.Level)
	if n.CameraID != "" {
		fmt.Fprintf(&b, "📹 Camera: %s\n", html.EscapeString(n.CameraID))
	}
	if n.Location != "" {
		fmt.Fprintf(&b, "📍 Location: %s\n", html.EscapeString(n.Location))
	}
	fmt.Fprintf(&b, "🕐 Time: %s %s", ts.Format("2 Jan 2006, 15:04:05"), zoneName)
	return b.String()
}

// send posts a JSON request to a Bot API method
func (t *Telegram) send(ctx context.Context, method string, payload map[string]any) error {
	t.mu.RLock()
	token, chatID := t.botToken, t.chatID
	t.mu.RUnlock()

	if token == "" || chatID == "" {
		return fmt.Errorf("telegram bot token or chat ID not configured")
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.apiBase, token, method)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	return handleTelegramResponse(resp)
}

// handleTelegramResponse processes the Telegram API response
func handleTelegramResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var tr telegramResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !tr.OK {
		return fmt.Errorf("telegram API error %d: %s", tr.ErrorCode, tr.Description)
	}
	return nil
}

// ValidateTelegramConfig validates the Telegram bot configuration
func ValidateTelegramConfig(cfg TelegramConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BotToken == "" {
		return fmt.Errorf("telegram bot token is required when enabled")
	}
	if cfg.ChatID == "" {
		return fmt.Errorf("telegram chat ID is required when enabled")
	}
	return nil
}
