package geometry

import (
	"math"
	"testing"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b Box
		want float64
	}{
		{
			name: "identical",
			a:    Box{0.1, 0.1, 0.3, 0.3},
			b:    Box{0.1, 0.1, 0.3, 0.3},
			want: 1,
		},
		{
			name: "disjoint",
			a:    Box{0.1, 0.1, 0.3, 0.3},
			b:    Box{0.6, 0.6, 0.8, 0.8},
			want: 0,
		},
		{
			name: "touching edges",
			a:    Box{0, 0, 0.5, 0.5},
			b:    Box{0.5, 0, 1, 0.5},
			want: 0,
		},
		{
			name: "half overlap",
			a:    Box{0, 0, 2, 1},
			b:    Box{1, 0, 3, 1},
			want: 1.0 / 3.0,
		},
		{
			name: "contained",
			a:    Box{0, 0, 1, 1},
			b:    Box{0.25, 0.25, 0.75, 0.75},
			want: 0.25,
		},
		{
			name: "zero area",
			a:    Box{0.2, 0.2, 0.2, 0.4},
			b:    Box{0.1, 0.1, 0.3, 0.3},
			want: 0,
		},
		{
			name: "both zero area",
			a:    Box{0.2, 0.2, 0.2, 0.2},
			b:    Box{0.2, 0.2, 0.2, 0.2},
			want: 0,
		},
		{
			name: "inverted",
			a:    Box{0.3, 0.3, 0.1, 0.1},
			b:    Box{0.1, 0.1, 0.3, 0.3},
			want: 0,
		},
		{
			name: "nan coordinate",
			a:    Box{math.NaN(), 0.1, 0.3, 0.3},
			b:    Box{0.1, 0.1, 0.3, 0.3},
			want: 0,
		},
		{
			name: "infinite coordinate",
			a:    Box{0.1, 0.1, math.Inf(1), 0.3},
			b:    Box{0.1, 0.1, 0.3, 0.3},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IoU(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("IoU: want %f, got %f", tt.want, got)
			}
			if rev := IoU(tt.b, tt.a); math.Abs(rev-got) > 1e-9 {
				t.Errorf("IoU not symmetric: %f vs %f", got, rev)
			}
		})
	}
}

func TestIoU_SelfOverlapIsOne(t *testing.T) {
	boxes := []Box{
		{0, 0, 1, 1},
		{0.1, 0.2, 0.15, 0.9},
		{0.5, 0.5, 0.5001, 0.5001},
		{10, 20, 300, 400},
	}
	for _, b := range boxes {
		if got := IoU(b, b); math.Abs(got-1) > 1e-9 {
			t.Errorf("IoU(%v, %v): want 1, got %f", b, b, got)
		}
	}
}

func TestCenterDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b Box
		want float64
	}{
		{"same box", Box{0.1, 0.1, 0.3, 0.3}, Box{0.1, 0.1, 0.3, 0.3}, 0},
		{"horizontal", Box{0, 0, 0.2, 0.2}, Box{0.3, 0, 0.5, 0.2}, 0.3},
		{"diagonal", Box{0, 0, 0, 0}, Box{0.6, 0.8, 0.6, 0.8}, 1},
		{"nested centers", Box{0.1, 0.1, 0.3, 0.3}, Box{0.15, 0.15, 0.25, 0.25}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CenterDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CenterDistance: want %f, got %f", tt.want, got)
			}
		})
	}
}

func TestCenterDistance_MalformedIsInfinite(t *testing.T) {
	good := Box{0.1, 0.1, 0.3, 0.3}
	bad := []Box{
		{math.NaN(), 0, 0.1, 0.1},
		{0.3, 0.3, 0.1, 0.1},
		{0, 0, math.Inf(-1), 0.1},
	}
	for _, b := range bad {
		if got := CenterDistance(good, b); !math.IsInf(got, 1) {
			t.Errorf("CenterDistance(%v): want +Inf, got %f", b, got)
		}
	}
}

func TestNormalizeAndScale(t *testing.T) {
	px := Box{X1: 64, Y1: 48, X2: 320, Y2: 240}
	n := px.Normalize(640, 480)

	want := Box{X1: 0.1, Y1: 0.1, X2: 0.5, Y2: 0.5}
	if math.Abs(n.X1-want.X1) > 1e-9 || math.Abs(n.Y2-want.Y2) > 1e-9 {
		t.Errorf("Normalize: want %v, got %v", want, n)
	}
	if !n.IsNormalized() {
		t.Errorf("expected %v to be normalized", n)
	}

	back := n.Scale(640, 480)
	if math.Abs(back.X2-px.X2) > 1e-9 || math.Abs(back.Y1-px.Y1) > 1e-9 {
		t.Errorf("Scale: want %v, got %v", px, back)
	}

	if same := px.Normalize(0, 480); same != px {
		t.Errorf("Normalize with zero width: want %v unchanged, got %v", px, same)
	}
}
