package engine

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/NarenCandy/wild-animal-detection/internal/geometry"
	"github.com/NarenCandy/wild-animal-detection/internal/severity"
)

// Detection is one classified, localized object reported by the model for
// one frame. BBox is normalized to [0,1].
type Detection struct {
	Class      string       `json:"class"`
	Confidence float64      `json:"confidence"`
	BBox       geometry.Box `json:"bbox"`
}

// Action is the outcome of evaluating one detection
type Action string

const (
	ActionEmit     Action = "emit"
	ActionSuppress Action = "suppress"
)

// Reason explains a suppression
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonHumanNearby       Reason = "human_nearby"
	ReasonDuplicatePosition Reason = "duplicate_position"
)

// Decision is the engine's verdict for one non-human detection
type Decision struct {
	Detection Detection      `json:"detection"`
	Level     severity.Level `json:"level"`
	Action    Action         `json:"action"`
	Reason    Reason         `json:"reason,omitempty"`
}

// Emitted reports whether the decision promotes the detection to an alert
func (d Decision) Emitted() bool {
	return d.Action == ActionEmit
}

// Config holds the engine thresholds. All coordinates, including the
// proximity threshold, are in normalized frame units.
type Config struct {
	ConfidenceThreshold float64
	ProximityThreshold  float64
	SimilarityThreshold float64
	Cooldowns           severity.Cooldowns
	Classes             map[string]severity.Level
	HumanLabels         []string
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.6,
		ProximityThreshold:  0.15,
		SimilarityThreshold: 0.7,
		Cooldowns:           severity.DefaultCooldowns(),
		Classes:             severity.DefaultTable(),
		HumanLabels:         []string{"human"},
	}
}

// Engine turns per-frame detection sets into alert decisions
type Engine struct {
	cfg        Config
	classifier *severity.Classifier
	humans     map[string]bool
	state      *StateStore
	mu         sync.Mutex
}

// New creates an engine over the given state store. A nil store gets a
// fresh empty one.
func New(cfg Config, state *StateStore) *Engine {
	if cfg.Cooldowns == nil {
		cfg.Cooldowns = severity.DefaultCooldowns()
	}
	if len(cfg.HumanLabels) == 0 {
		cfg.HumanLabels = []string{"human"}
	}
	if state == nil {
		state = NewStateStore()
	}

	humans := lo.SliceToMap(cfg.HumanLabels, func(l string) (string, bool) {
		return severity.NormalizeLabel(l), true
	})

	return &Engine{
		cfg:        cfg,
		classifier: severity.NewClassifier(cfg.Classes),
		humans:     humans,
		state:      state,
	}
}

// State returns the engine's state store
func (e *Engine) State() *StateStore {
	return e.state
}

// Classifier returns the class→level classifier in use
func (e *Engine) Classifier() *severity.Classifier {
	return e.classifier
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// IsHuman reports whether a label is treated as a human
func (e *Engine) IsHuman(label string) bool {
	return e.humans[severity.NormalizeLabel(label)]
}

// Evaluate decides, for every detection of one frame, whether to emit an
// alert or suppress it. The full frame must be supplied at once since human
// detections anywhere in it suppress nearby animals. Decisions come back in
// input order, one per non-human detection that passed the confidence gate.
// State changes for the frame are applied atomically.
func (e *Engine) Evaluate(detections []Detection, now time.Time) []Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	var humans []geometry.Box
	candidates := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if !(d.Confidence >= e.cfg.ConfidenceThreshold) {
			continue
		}
		if e.IsHuman(d.Class) {
			humans = append(humans, d.BBox)
			continue
		}
		candidates = append(candidates, d)
	}

	decisions := make([]Decision, 0, len(candidates))
	staged := make(map[string]ClassState)

	for _, d := range candidates {
		if e.humanNearby(d.BBox, humans) {
			decisions = append(decisions, Decision{
				Detection: d,
				Level:     e.classifier.Classify(d.Class),
				Action:    ActionSuppress,
				Reason:    ReasonHumanNearby,
			})
			continue
		}

		level := e.classifier.Classify(d.Class)
		decision := Decision{Detection: d, Level: level, Action: ActionEmit}

		// "Tiger" and "tiger " share one state entry
		key := severity.NormalizeLabel(d.Class)
		prev, ok := staged[key]
		if !ok {
			prev, ok = e.state.Get(key)
		}
		if ok && now.Sub(prev.LastAlertTime) < e.cfg.Cooldowns.For(level) &&
			geometry.IoU(d.BBox, prev.LastBBox) > e.cfg.SimilarityThreshold {
			decision.Action = ActionSuppress
			decision.Reason = ReasonDuplicatePosition
		}

		if decision.Emitted() {
			staged[key] = ClassState{LastAlertTime: now, LastBBox: d.BBox}
		}
		decisions = append(decisions, decision)
	}

	e.state.Commit(staged)
	return decisions
}

// humanNearby reports whether any human center lies within the proximity
// threshold of the box center
func (e *Engine) humanNearby(box geometry.Box, humans []geometry.Box) bool {
	for _, h := range humans {
		if geometry.CenterDistance(box, h) < e.cfg.ProximityThreshold {
			return true
		}
	}
	return false
}

// Emitted filters decisions down to the ones that became alerts
func Emitted(decisions []Decision) []Decision {
	return lo.Filter(decisions, func(d Decision, _ int) bool {
		return d.Emitted()
	})
}
