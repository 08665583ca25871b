// Package tui is a terminal viewer for a user's wildlife alerts
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NarenCandy/wild-animal-detection/internal/client"
	"github.com/NarenCandy/wild-animal-detection/internal/notify"
)

// API is the part of the API client the viewer uses
type API interface {
	ListAlerts(ctx context.Context, limit int) ([]client.Alert, error)
	DeleteAlert(ctx context.Context, id string) (bool, string, error)
	StartMonitor(ctx context.Context) (string, error)
	StopMonitor(ctx context.Context) (string, error)
	MonitorStatus(ctx context.Context) (*client.MonitorStatus, error)
}

type tickMsg time.Time

type alertsMsg struct {
	alerts []client.Alert
	err    error
}

type statusMsg struct {
	status *client.MonitorStatus
	err    error
}

// actionMsg reports the result of a delete or start/stop
type actionMsg struct {
	text    string
	err     error
	refresh bool
}

const requestTimeout = 10 * time.Second

type Model struct {
	api     API
	keys    KeyMap
	table   table.Model
	refresh time.Duration
	limit   int

	alerts  []client.Alert
	status  *client.MonitorStatus
	message string
	err     error

	width    int
	quitting bool
}

type ModelOption func(*Model)

// WithRefresh sets the poll interval
func WithRefresh(d time.Duration) ModelOption {
	return func(m *Model) {
		if d > 0 {
			m.refresh = d
		}
	}
}

// WithLimit caps the number of alerts fetched per poll
func WithLimit(n int) ModelOption {
	return func(m *Model) { m.limit = n }
}

func NewModel(api API, opts ...ModelOption) Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 19},
			{Title: "Animal", Width: 14},
			{Title: "Level", Width: 9},
			{Title: "Conf", Width: 5},
			{Title: "Camera", Width: 12},
			{Title: "Image", Width: 5},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("28"))
	t.SetStyles(styles)

	m := Model{
		api:     api,
		keys:    DefaultKeyMap(),
		table:   t,
		refresh: 5 * time.Second,
		limit:   100,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchAlerts(), m.fetchStatus(), m.tickCmd())
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetchAlerts() tea.Cmd {
	api, limit := m.api, m.limit
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		alerts, err := api.ListAlerts(ctx, limit)
		return alertsMsg{alerts: alerts, err: err}
	}
}

func (m Model) fetchStatus() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		st, err := api.MonitorStatus(ctx)
		return statusMsg{status: st, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if h := msg.Height - 8; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchAlerts(), m.fetchStatus(), m.tickCmd())

	case alertsMsg:
		m.err = msg.err
		if msg.err == nil {
			m.alerts = msg.alerts
			m.table.SetRows(alertRows(msg.alerts))
		}
		return m, nil

	case statusMsg:
		if msg.err == nil {
			m.status = msg.status
		}
		return m, nil

	case actionMsg:
		m.err = msg.err
		m.message = msg.text
		if msg.refresh {
			return m, tea.Batch(m.fetchAlerts(), m.fetchStatus())
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Refresh):
		return m, tea.Batch(m.fetchAlerts(), m.fetchStatus())
	case key.Matches(msg, m.keys.Delete):
		return m, m.deleteSelected()
	case key.Matches(msg, m.keys.Start):
		return m, m.monitorAction(m.api.StartMonitor)
	case key.Matches(msg, m.keys.Stop):
		return m, m.monitorAction(m.api.StopMonitor)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// Selected returns the alert under the cursor
func (m Model) Selected() (client.Alert, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.alerts) {
		return client.Alert{}, false
	}
	return m.alerts[i], true
}

func (m Model) deleteSelected() tea.Cmd {
	alert, ok := m.Selected()
	if !ok {
		return nil
	}
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, text, err := api.DeleteAlert(ctx, alert.ID)
		return actionMsg{text: text, err: err, refresh: true}
	}
}

func (m Model) monitorAction(call func(context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		status, err := call(ctx)
		return actionMsg{text: "monitor " + status, err: err, refresh: true}
	}
}

func alertRows(alerts []client.Alert) []table.Row {
	rows := make([]table.Row, 0, len(alerts))
	for _, a := range alerts {
		conf := "-"
		if a.Confidence != nil {
			conf = fmt.Sprintf("%.0f%%", *a.Confidence*100)
		}
		image := ""
		if a.ImageURL != "" {
			image = "yes"
		}
		rows = append(rows, table.Row{
			a.Timestamp.Local().Format("2006-01-02 15:04:05"),
			a.Animal,
			a.AlertLevel,
			conf,
			a.CameraID,
			image,
		})
	}
	return rows
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("wildwatch alerts"))
	b.WriteString("  ")
	b.WriteString(m.statusLine())
	b.WriteString("\n")

	b.WriteString(panelBorderStyle.Render(m.table.View()))
	b.WriteString("\n")

	if a, ok := m.Selected(); ok {
		b.WriteString(fmt.Sprintf("%s %s %s", notify.AnimalEmoji(a.Animal), strings.ToUpper(a.Animal), levelStyle(a.AlertLevel).Render(a.AlertLevel)))
		if a.ImageURL != "" {
			b.WriteString(dimStyle.Render("  " + a.ImageURL))
		}
		b.WriteString("\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	case m.message != "":
		b.WriteString(m.message)
		b.WriteString("\n")
	}

	help := make([]string, 0, len(m.keys.help()))
	for _, k := range m.keys.help() {
		h := k.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	b.WriteString(dimStyle.Render(strings.Join(help, " • ")))
	return b.String()
}

func (m Model) statusLine() string {
	if m.status == nil {
		return dimStyle.Render("monitor status unknown")
	}
	if !m.status.Running {
		return stoppedStyle.Render("monitor stopped")
	}
	line := "monitoring " + m.status.CameraID
	if m.status.Stats != nil {
		line += fmt.Sprintf(" (%d frames evaluated, %d alerts)", m.status.Stats.FramesEvaluated, m.status.Stats.AlertsEmitted)
	}
	return runningStyle.Render(line)
}
