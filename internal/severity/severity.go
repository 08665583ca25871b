package severity

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Level is the urgency of an alert. It drives cooldown duration and
// notification priority.
type Level string

const (
	Critical Level = "CRITICAL"
	High     Level = "HIGH"
	Medium   Level = "MEDIUM"
	Low      Level = "LOW"
)

// Levels lists every level from most to least urgent.
var Levels = []Level{Critical, High, Medium, Low}

// Default is returned for labels missing from the class table.
const Default = Medium

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if !lo.Contains(Levels, l) {
		return "", fmt.Errorf("unknown alert level: %q", s)
	}
	return l, nil
}

// Rank orders levels, 0 being the most urgent. Unknown levels rank last.
func (l Level) Rank() int {
	if i := lo.IndexOf(Levels, l); i >= 0 {
		return i
	}
	return len(Levels)
}

// Emoji returns the marker used in notification headings.
func (l Level) Emoji() string {
	switch l {
	case Critical:
		return "🚨"
	case High:
		return "🔴"
	case Medium:
		return "🟡"
	case Low:
		return "🟢"
	default:
		return "⚪"
	}
}

// DefaultTable maps the model's wildlife classes to levels. CRITICAL and LOW
// have no class mapped by default.
func DefaultTable() map[string]Level {
	return map[string]Level{
		"tiger":    High,
		"bear":     High,
		"elephant": Medium,
		"boar":     Medium,
	}
}

// DefaultCooldowns returns the per-level minimum interval between two alerts
// of the same class at the same position.
func DefaultCooldowns() Cooldowns {
	return Cooldowns{
		Critical: 15 * time.Second,
		High:     30 * time.Second,
		Medium:   60 * time.Second,
		Low:      120 * time.Second,
	}
}

// Cooldowns holds a cooldown duration per level.
type Cooldowns map[Level]time.Duration

// For returns the cooldown for a level, falling back to the MEDIUM cooldown.
func (c Cooldowns) For(l Level) time.Duration {
	if d, ok := c[l]; ok {
		return d
	}
	return c[Medium]
}

// Classifier maps class labels to levels using a fixed table.
type Classifier struct {
	table    map[string]Level
	fallback Level
}

// NewClassifier builds a classifier from a label→level table. Labels are
// matched case-insensitively. A nil table uses DefaultTable.
func NewClassifier(table map[string]Level) *Classifier {
	if table == nil {
		table = DefaultTable()
	}
	normalized := lo.MapKeys(table, func(_ Level, label string) string {
		return NormalizeLabel(label)
	})
	return &Classifier{table: normalized, fallback: Default}
}

// ParseTable converts a label→name table (as read from configuration) into
// a level table.
func ParseTable(raw map[string]string) (map[string]Level, error) {
	table := make(map[string]Level, len(raw))
	for label, name := range raw {
		level, err := ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("class %q: %w", label, err)
		}
		table[label] = level
	}
	return table, nil
}

// Classify returns the level for a label, or MEDIUM when it is not mapped.
func (c *Classifier) Classify(label string) Level {
	if l, ok := c.table[NormalizeLabel(label)]; ok {
		return l
	}
	return c.fallback
}

// With returns a copy of the classifier with extra label mappings.
func (c *Classifier) With(label string, level Level) *Classifier {
	table := lo.Assign(c.table, map[string]Level{NormalizeLabel(label): level})
	return &Classifier{table: table, fallback: c.fallback}
}

// Reachable returns the levels at least one label maps to.
func (c *Classifier) Reachable() []Level {
	seen := lo.Uniq(lo.Values(c.table))
	return lo.Filter(Levels, func(l Level, _ int) bool {
		return l == c.fallback || lo.Contains(seen, l)
	})
}

// NormalizeLabel returns the form labels are compared and keyed in
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
