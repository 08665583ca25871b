package strategies

import (
	"testing"
	"time"

	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
)

func frames(n int, start time.Time, step time.Duration) []*pipeline.FrameData {
	out := make([]*pipeline.FrameData, n)
	for i := range out {
		out[i] = &pipeline.FrameData{
			CameraID:  "cam0",
			Seq:       uint64(i + 1),
			Timestamp: start.Add(time.Duration(i) * step),
		}
	}
	return out
}

func sampled(s pipeline.DetectionStrategy, fs []*pipeline.FrameData) []uint64 {
	var got []uint64
	for _, f := range fs {
		if s.ShouldDetect(f) {
			got = append(got, f.Seq)
			s.OnDetectionComplete(&pipeline.FrameResult{CameraID: f.CameraID, FrameSeq: f.Seq, Timestamp: f.Timestamp})
		}
	}
	return got
}

func equalSeqs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestIntervalStrategy(t *testing.T) {
	start := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		every int
		n     int
		want  []uint64
	}{
		{"default", 0, 12, []uint64{1, 6, 11}},
		{"every 5", 5, 16, []uint64{1, 6, 11, 16}},
		{"every 3", 3, 7, []uint64{1, 4, 7}},
		{"every frame", 1, 3, []uint64{1, 2, 3}},
		{"negative falls back", -2, 6, []uint64{1, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sampled(NewIntervalStrategy(tt.every), frames(tt.n, start, 100*time.Millisecond))
			if !equalSeqs(got, tt.want) {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIntervalStrategy_Reset(t *testing.T) {
	s := NewIntervalStrategy(5)
	fs := frames(3, time.Now(), time.Millisecond)
	sampled(s, fs)
	s.Reset()
	if !s.ShouldDetect(fs[0]) {
		t.Error("want first frame after reset to be sampled")
	}
}

func TestContinuousStrategy(t *testing.T) {
	start := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	fs := frames(6, start, 200*time.Millisecond)

	if got := sampled(NewContinuousStrategy(0), fs); len(got) != 6 {
		t.Errorf("unlimited: want 6 frames, got %v", got)
	}

	want := []uint64{1, 4}
	if got := sampled(NewContinuousStrategy(500*time.Millisecond), fs); !equalSeqs(got, want) {
		t.Errorf("rate limited: want %v, got %v", want, got)
	}
}

func TestScheduledStrategy(t *testing.T) {
	start := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	fs := frames(10, start, 500*time.Millisecond)

	want := []uint64{1, 5, 9}
	if got := sampled(NewScheduledStrategy(2*time.Second), fs); !equalSeqs(got, want) {
		t.Errorf("want %v, got %v", want, got)
	}
}

func TestDisabledStrategy(t *testing.T) {
	if got := sampled(NewDisabledStrategy(), frames(5, time.Now(), time.Second)); len(got) != 0 {
		t.Errorf("want no frames, got %v", got)
	}
}

func TestCreate(t *testing.T) {
	tests := []struct {
		mode    pipeline.DetectionMode
		want    string
		wantErr bool
	}{
		{pipeline.DetectionModeInterval, "interval", false},
		{"", "interval", false},
		{pipeline.DetectionModeContinuous, "continuous", false},
		{pipeline.DetectionModeScheduled, "scheduled", false},
		{pipeline.DetectionModeDisabled, "disabled", false},
		{"motion", "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			s, err := CreateFromMode(tt.mode)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("want error for mode %q", tt.mode)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Name() != tt.want {
				t.Errorf("want %s, got %s", tt.want, s.Name())
			}
		})
	}

	s, err := Create(&pipeline.EffectiveConfig{Mode: pipeline.DetectionModeInterval, SampleEvery: 7})
	if err != nil {
		t.Fatal(err)
	}
	if every := s.(*IntervalStrategy).Every(); every != 7 {
		t.Errorf("want every 7, got %d", every)
	}
}
