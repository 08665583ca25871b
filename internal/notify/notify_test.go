package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/severity"
)

func TestOneSignal_TargetedPayload(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"id":"n1","recipients":2}`))
	}))
	defer srv.Close()

	o := NewOneSignal(OneSignalConfig{Enabled: true, AppID: "app", RESTKey: "key", URL: srv.URL})
	err := o.Notify(context.Background(), Notification{
		Animal:    "tiger",
		Level:     severity.High,
		ImageURL:  "http://img/x.jpg",
		Location:  "Your Farm",
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		PlayerIDs: []string{"p1", "p2"},
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	if auth != "Basic key" {
		t.Errorf("want Basic key, got %q", auth)
	}
	if h := got["headings"].(map[string]any)["en"]; h != "🔴 Wildlife Alert" {
		t.Errorf("unexpected heading %v", h)
	}
	if c := got["contents"].(map[string]any)["en"]; c != "🐅 TIGER detected at Your Farm" {
		t.Errorf("unexpected contents %v", c)
	}
	if got["android_channel_id"] != DefaultAndroidChannel {
		t.Errorf("want default channel, got %v", got["android_channel_id"])
	}
	if got["priority"] != float64(10) {
		t.Errorf("want priority 10, got %v", got["priority"])
	}
	ids := got["include_player_ids"].([]any)
	if len(ids) != 2 || ids[0] != "p1" {
		t.Errorf("unexpected player ids %v", ids)
	}
	if _, ok := got["included_segments"]; ok {
		t.Error("targeted push must not carry segments")
	}
	data := got["data"].(map[string]any)
	if data["alert_level"] != "HIGH" || data["timestamp"] != "2024-01-02T03:04:05Z" {
		t.Errorf("unexpected data block %v", data)
	}
}

func TestOneSignal_BroadcastAndErrors(t *testing.T) {
	status := http.StatusOK
	var segments []any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		segments, _ = body["included_segments"].([]any)
		w.WriteHeader(status)
		w.Write([]byte(`{"recipients":0}`))
	}))
	defer srv.Close()

	o := NewOneSignal(OneSignalConfig{Enabled: true, AppID: "app", RESTKey: "key", URL: srv.URL})
	if err := o.Notify(context.Background(), Notification{Animal: "boar", Level: severity.Medium}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(segments) != 1 || segments[0] != "All" {
		t.Errorf("want All segment, got %v", segments)
	}

	status = http.StatusBadRequest
	if err := o.Notify(context.Background(), Notification{Animal: "boar", Level: severity.Medium}); err == nil {
		t.Error("want error on 400")
	}
}

func TestOneSignal_DisabledIsNoop(t *testing.T) {
	o := NewOneSignal(OneSignalConfig{URL: "http://127.0.0.1:1"})
	if err := o.Notify(context.Background(), Notification{Animal: "bear"}); err != nil {
		t.Errorf("disabled client must not send, got %v", err)
	}
}

func TestTelegram_PhotoAndMessage(t *testing.T) {
	var paths []string
	var last map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		json.NewDecoder(r.Body).Decode(&last)
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{BotToken: "T", ChatID: "42", Enabled: true, APIBase: srv.URL})
	n := Notification{Animal: "elephant", Level: severity.Medium, CameraID: "gate", ImageURL: "http://img/e.jpg"}
	if err := tg.Notify(context.Background(), n); err != nil {
		t.Fatalf("photo: %v", err)
	}
	if last["photo"] != "http://img/e.jpg" || last["chat_id"] != "42" {
		t.Errorf("unexpected photo payload %v", last)
	}

	n.ImageURL = ""
	if err := tg.Notify(context.Background(), n); err != nil {
		t.Fatalf("message: %v", err)
	}
	if !strings.Contains(last["text"].(string), "ELEPHANT") {
		t.Errorf("want animal in text, got %v", last["text"])
	}

	want := []string{"/botT/sendPhoto", "/botT/sendMessage"}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Errorf("want %v, got %v", want, paths)
	}
}

func TestTelegram_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error_code":403,"description":"bot was blocked"}`))
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{BotToken: "T", ChatID: "42", Enabled: true, APIBase: srv.URL})
	err := tg.Notify(context.Background(), Notification{Animal: "bear", Level: severity.High})
	if err == nil || !strings.Contains(err.Error(), "bot was blocked") {
		t.Errorf("want API error, got %v", err)
	}
}

func TestFormatCaption_EscapesHTML(t *testing.T) {
	c := FormatCaption(Notification{Animal: "bear", Level: severity.High, CameraID: "<gate>"})
	if !strings.Contains(c, "&lt;gate&gt;") {
		t.Errorf("camera id must be escaped, got %q", c)
	}
	if !strings.HasPrefix(c, "🔴") {
		t.Errorf("want level emoji first, got %q", c)
	}
}

type failing struct{ name string }

func (f failing) Name() string                               { return f.name }
func (f failing) Notify(context.Context, Notification) error { return errors.New("down") }

func TestMulti_TriesEveryNotifier(t *testing.T) {
	calls := 0
	counting := countingNotifier{calls: &calls}
	m := Multi{failing{"a"}, counting, failing{"b"}}

	err := m.Notify(context.Background(), Notification{Animal: "tiger"})
	if err == nil {
		t.Fatal("want joined error")
	}
	if calls != 1 {
		t.Errorf("want the healthy notifier called once, got %d", calls)
	}
	if !strings.Contains(err.Error(), "a: down") || !strings.Contains(err.Error(), "b: down") {
		t.Errorf("want both failures, got %v", err)
	}
}

type countingNotifier struct{ calls *int }

func (c countingNotifier) Name() string { return "counting" }
func (c countingNotifier) Notify(context.Context, Notification) error {
	*c.calls++
	return nil
}

func TestValidateConfigs(t *testing.T) {
	if err := ValidateOneSignalConfig(OneSignalConfig{Enabled: true}); err == nil {
		t.Error("want missing app id error")
	}
	if err := ValidateTelegramConfig(TelegramConfig{Enabled: true, BotToken: "x"}); err == nil {
		t.Error("want missing chat id error")
	}
	if err := ValidateTelegramConfig(TelegramConfig{}); err != nil {
		t.Errorf("disabled config is valid, got %v", err)
	}
}

func TestAnimalEmoji(t *testing.T) {
	tests := map[string]string{"Tiger": "🐅", "human": "👤", "leopard": "🦁"}
	for in, want := range tests {
		if got := AnimalEmoji(in); got != want {
			t.Errorf("%s: want %s, got %s", in, want, got)
		}
	}
}
