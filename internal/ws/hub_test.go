package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NarenCandy/wild-animal-detection/internal/auth"
	"github.com/NarenCandy/wild-animal-detection/internal/engine"
	"github.com/NarenCandy/wild-animal-detection/internal/geometry"
	"github.com/NarenCandy/wild-animal-detection/internal/middleware"
	"github.com/NarenCandy/wild-animal-detection/internal/severity"
)

func dial(t *testing.T, hub *AlertHub, userID string) (*websocket.Conn, func()) {
	t.Helper()
	jwtm := auth.NewJWTManager("secret", time.Hour)
	token, _, err := jwtm.GenerateToken(userID, userID+"@farm")
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(middleware.StreamAuthMiddleware(jwtm)(NewHandler(hub)))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !hub.HasClients(userID) {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestHub_PublishAlertReachesOwnerOnly(t *testing.T) {
	hub := NewAlertHub()
	owner, closeOwner := dial(t, hub, "u1")
	defer closeOwner()
	other, closeOther := dial(t, hub, "u2")
	defer closeOther()

	if hub.ClientCount() != 2 {
		t.Fatalf("want 2 clients, got %d", hub.ClientCount())
	}

	hub.PublishAlert("u1", &AlertMessage{Type: "alert", ID: "a1", Animal: "tiger", AlertLevel: "HIGH"})

	owner.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := owner.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got AlertMessage
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "a1" || got.Animal != "tiger" {
		t.Errorf("unexpected message %+v", got)
	}

	other.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Error("other user must not receive the alert")
	}
}

func TestHandler_RejectsAnonymous(t *testing.T) {
	srv := httptest.NewServer(NewHandler(NewAlertHub()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws/alerts")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("want 401, got %d", resp.StatusCode)
	}
}

func TestNewDecisionMessage(t *testing.T) {
	box := geometry.Box{X1: 0.1, Y1: 0.1, X2: 0.2, Y2: 0.2}
	msg := NewDecisionMessage("gate", 11, time.Unix(0, 0), []engine.Decision{
		{Detection: engine.Detection{Class: "bear", Confidence: 0.9, BBox: box}, Level: severity.High, Action: engine.ActionSuppress, Reason: engine.ReasonHumanNearby},
	})
	msg.AddHuman(box)

	if msg.Type != "decision" || len(msg.Decisions) != 1 || len(msg.Humans) != 1 {
		t.Fatalf("unexpected message %+v", msg)
	}
	if d := msg.Decisions[0]; d.Level != "HIGH" || d.Reason != engine.ReasonHumanNearby {
		t.Errorf("unexpected entry %+v", d)
	}
}

func TestHub_StalledClientDoesNotBlockPublisher(t *testing.T) {
	hub := NewAlertHub()
	defer hub.Close()
	_, closeStalled := dial(t, hub, "u1") // never read
	defer closeStalled()

	payload := []byte(`"` + strings.Repeat("x", 256*1024) + `"`)
	start := time.Now()
	for i := 0; i < 200; i++ {
		hub.BroadcastToUser("u1", payload)
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("broadcasting to a stalled client took %v", d)
	}
	if hub.Dropped() == 0 {
		t.Error("want messages dropped for the stalled client")
	}
}

func TestHub_SlowClientKeepsLaterMessagesFlowing(t *testing.T) {
	hub := NewAlertHub()
	defer hub.Close()
	conn, closeConn := dial(t, hub, "u1")
	defer closeConn()

	for i := 0; i < sendBuffer*4; i++ {
		hub.PublishAlert("u1", &AlertMessage{Type: "alert", ID: "a", Animal: "boar"})
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("want queued messages delivered, got %v", err)
	}
	if !hub.HasClients("u1") {
		t.Error("a slow client must stay registered")
	}
}

func TestHub_CloseDisconnects(t *testing.T) {
	hub := NewAlertHub()
	conn, closeConn := dial(t, hub, "u1")
	defer closeConn()

	hub.Close()
	if hub.ClientCount() != 0 {
		t.Errorf("want 0 clients after Close, got %d", hub.ClientCount())
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("want the connection closed")
	}
}
