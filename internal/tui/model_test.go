package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/NarenCandy/wild-animal-detection/internal/client"
)

type mockAPI struct {
	alerts  []client.Alert
	deleted []string
	running bool
	listErr error
}

func (m *mockAPI) ListAlerts(ctx context.Context, limit int) ([]client.Alert, error) {
	return m.alerts, m.listErr
}

func (m *mockAPI) DeleteAlert(ctx context.Context, id string) (bool, string, error) {
	m.deleted = append(m.deleted, id)
	return true, "Alert deleted", nil
}

func (m *mockAPI) StartMonitor(ctx context.Context) (string, error) {
	m.running = true
	return "started", nil
}

func (m *mockAPI) StopMonitor(ctx context.Context) (string, error) {
	m.running = false
	return "stopped", nil
}

func (m *mockAPI) MonitorStatus(ctx context.Context) (*client.MonitorStatus, error) {
	return &client.MonitorStatus{Running: m.running, CameraID: "gate"}, nil
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func loaded(t *testing.T, api *mockAPI) Model {
	t.Helper()
	m := NewModel(api)
	alerts, _ := api.ListAlerts(context.Background(), 0)
	next, _ := m.Update(alertsMsg{alerts: alerts})
	return next.(Model)
}

func sampleAlerts() []client.Alert {
	conf := 0.91
	return []client.Alert{
		{ID: "a2", Animal: "tiger", AlertLevel: "HIGH", Confidence: &conf, CameraID: "gate", Timestamp: time.Now()},
		{ID: "a1", Animal: "boar", AlertLevel: "MEDIUM", CameraID: "gate", Timestamp: time.Now().Add(-time.Minute)},
	}
}

func TestModel_AlertsPopulateTable(t *testing.T) {
	m := loaded(t, &mockAPI{alerts: sampleAlerts()})

	rows := m.table.Rows()
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(rows))
	}
	if rows[0][1] != "tiger" || rows[0][3] != "91%" || rows[1][3] != "-" {
		t.Errorf("unexpected rows %v", rows)
	}
	if a, ok := m.Selected(); !ok || a.ID != "a2" {
		t.Errorf("want newest alert selected, got %+v", a)
	}
	if !strings.Contains(m.View(), "TIGER") {
		t.Error("view should describe the selected alert")
	}
}

func TestModel_DeleteSelected(t *testing.T) {
	api := &mockAPI{alerts: sampleAlerts()}
	m := loaded(t, api)

	_, cmd := m.Update(keyMsg("d"))
	if cmd == nil {
		t.Fatal("want a delete command")
	}
	msg := cmd()
	action, ok := msg.(actionMsg)
	if !ok {
		t.Fatalf("want actionMsg, got %T", msg)
	}
	if len(api.deleted) != 1 || api.deleted[0] != "a2" {
		t.Errorf("want a2 deleted, got %v", api.deleted)
	}
	if action.text != "Alert deleted" || !action.refresh {
		t.Errorf("unexpected action %+v", action)
	}
}

func TestModel_DeleteWithoutAlerts(t *testing.T) {
	m := NewModel(&mockAPI{})
	if _, cmd := m.Update(keyMsg("d")); cmd != nil {
		t.Error("delete with an empty table must be a no-op")
	}
}

func TestModel_StartStop(t *testing.T) {
	api := &mockAPI{}
	m := NewModel(api)

	_, cmd := m.Update(keyMsg("s"))
	if msg := cmd().(actionMsg); msg.text != "monitor started" || !api.running {
		t.Errorf("start: got %+v", msg)
	}
	_, cmd = m.Update(keyMsg("x"))
	if msg := cmd().(actionMsg); msg.text != "monitor stopped" || api.running {
		t.Errorf("stop: got %+v", msg)
	}
}

func TestModel_ListErrorKeepsRows(t *testing.T) {
	m := loaded(t, &mockAPI{alerts: sampleAlerts()})
	next, _ := m.Update(alertsMsg{err: errors.New("connection refused")})
	m = next.(Model)
	if len(m.table.Rows()) != 2 {
		t.Error("a failed poll must keep the previous rows")
	}
	if !strings.Contains(m.View(), "connection refused") {
		t.Error("view should show the error")
	}
}

func TestModel_Quit(t *testing.T) {
	m := NewModel(&mockAPI{})
	next, cmd := m.Update(keyMsg("q"))
	if cmd == nil || !next.(Model).quitting {
		t.Error("q should quit")
	}
	if next.(Model).View() != "" {
		t.Error("quitting view should be empty")
	}
}

func TestStatusLine(t *testing.T) {
	m := NewModel(&mockAPI{})
	if !strings.Contains(m.statusLine(), "unknown") {
		t.Error("want unknown status before the first poll")
	}
	next, _ := m.Update(statusMsg{status: &client.MonitorStatus{Running: true, CameraID: "gate"}})
	if !strings.Contains(next.(Model).statusLine(), "monitoring gate") {
		t.Errorf("unexpected status line %q", next.(Model).statusLine())
	}
}
