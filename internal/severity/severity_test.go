package severity

import (
	"testing"
	"time"
)

func TestClassify_DefaultTable(t *testing.T) {
	c := NewClassifier(nil)

	tests := []struct {
		label string
		want  Level
	}{
		{"tiger", High},
		{"bear", High},
		{"elephant", Medium},
		{"boar", Medium},
		{"Tiger", High},
		{"  BEAR ", High},
		{"unknown_species", Medium},
		{"", Medium},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := c.Classify(tt.label); got != tt.want {
				t.Errorf("Classify(%q): want %s, got %s", tt.label, tt.want, got)
			}
		})
	}
}

func TestClassify_CustomTableReachesAllLevels(t *testing.T) {
	c := NewClassifier(map[string]Level{
		"tiger": Critical,
		"deer":  Low,
	})

	if got := c.Classify("tiger"); got != Critical {
		t.Errorf("tiger: want CRITICAL, got %s", got)
	}
	if got := c.Classify("deer"); got != Low {
		t.Errorf("deer: want LOW, got %s", got)
	}
	if got := c.Classify("bear"); got != Medium {
		t.Errorf("bear is not in the custom table: want MEDIUM, got %s", got)
	}
}

func TestClassifier_Reachable(t *testing.T) {
	got := NewClassifier(nil).Reachable()
	want := []Level{High, Medium}
	if len(got) != len(want) {
		t.Fatalf("Reachable: want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Reachable[%d]: want %s, got %s", i, want[i], got[i])
		}
	}
}

func TestClassifier_With(t *testing.T) {
	base := NewClassifier(nil)
	c := base.With("Human", Low)

	if got := c.Classify("human"); got != Low {
		t.Errorf("override: want LOW, got %s", got)
	}
	if got := base.Classify("human"); got != Medium {
		t.Errorf("base must be unchanged: want MEDIUM, got %s", got)
	}
	if got := c.Classify("tiger"); got != High {
		t.Errorf("inherited mapping: want HIGH, got %s", got)
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"critical", "HIGH", " Medium ", "low"} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q): unexpected error %v", s, err)
		}
	}
	if _, err := ParseLevel("urgent"); err == nil {
		t.Error("ParseLevel(urgent): expected error")
	}
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable(map[string]string{"tiger": "critical", "boar": "low"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table["tiger"] != Critical || table["boar"] != Low {
		t.Errorf("ParseTable: got %v", table)
	}

	if _, err := ParseTable(map[string]string{"tiger": "extreme"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestCooldowns_For(t *testing.T) {
	c := DefaultCooldowns()
	if got := c.For(High); got != 30*time.Second {
		t.Errorf("HIGH cooldown: want 30s, got %v", got)
	}
	if got := c.For(Level("BOGUS")); got != c[Medium] {
		t.Errorf("unknown level: want MEDIUM cooldown %v, got %v", c[Medium], got)
	}
}

func TestLevel_RankAndEmoji(t *testing.T) {
	if Critical.Rank() >= Low.Rank() {
		t.Errorf("CRITICAL must rank before LOW")
	}
	if Level("X").Rank() != len(Levels) {
		t.Errorf("unknown level must rank last")
	}
	if High.Emoji() != "🔴" {
		t.Errorf("HIGH emoji: want 🔴, got %s", High.Emoji())
	}
}
