package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NarenCandy/wild-animal-detection/internal/engine"
)

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.ObserveDecisions([]engine.Decision{
		{Detection: engine.Detection{Class: "tiger"}, Action: engine.ActionEmit},
		{Detection: engine.Detection{Class: "tiger"}, Action: engine.ActionSuppress, Reason: engine.ReasonDuplicatePosition},
	})
	m.Inc(Dropped)
	m.Inc(Dropped)
	m.RegisterGauge("wildwatch_ws_clients", "Connected websocket clients", func() float64 { return 3 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`wildwatch_decisions_total{action="emit",class="tiger",reason=""} 1`,
		`wildwatch_decisions_total{action="suppress",class="tiger",reason="duplicate_position"} 1`,
		"wildwatch_dispatch_dropped_total 2",
		"wildwatch_frames_evaluated_total 1",
		"wildwatch_ws_clients 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("want %q in exposition", want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Inc(Failed)
	m.ObserveDecisions([]engine.Decision{{Action: engine.ActionEmit}})
	m.RegisterGauge("x", "y", func() float64 { return 0 })
}
