package anchors

import (
	"math"
	"testing"

	"github.com/camden-git/attendancesys/tracking"
)

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func TestRetinaFacePriorsCount(t *testing.T) {
	// 640x640: (80*80 + 40*40 + 20*20) * 2 anchors per cell
	priors := RetinaFacePriors(640, 640)
	if want := (6400 + 1600 + 400) * 2; len(priors) != want {
		t.Fatalf("got %d priors, want %d", len(priors), want)
	}

	first := priors[0]
	if !near(first.Cx, 4.0/640) || !near(first.Cy, 4.0/640) || !near(first.W, 16.0/640) {
		t.Errorf("first prior = %+v", first)
	}
	if !near(priors[1].W, 32.0/640) || priors[1].Cx != first.Cx {
		t.Errorf("second prior should share the cell with size 32: %+v", priors[1])
	}
	last := priors[len(priors)-1]
	if !near(last.W, 512.0/640) || !near(last.Cx, 624.0/640) {
		t.Errorf("last prior = %+v", last)
	}
}

func TestDecodeBoxZeroRegressionIsPrior(t *testing.T) {
	p := Prior{Cx: 0.5, Cy: 0.5, W: 0.2, H: 0.4}
	got := DecodeBox([4]float32{}, p, Variances)
	want := [4]float32{0.4, 0.3, 0.6, 0.7}
	for i := range got {
		if !near(got[i], want[i]) {
			t.Fatalf("DecodeBox = %v, want %v", got, want)
		}
	}

	shifted := DecodeBox([4]float32{1, 0, 0, 0}, p, Variances)
	if !near(shifted[0], 0.42) || !near(shifted[2], 0.62) {
		t.Errorf("x shift = %v", shifted)
	}
}

func TestDecodeLandmark(t *testing.T) {
	p := Prior{Cx: 0.5, Cy: 0.5, W: 0.2, H: 0.4}
	got := DecodeLandmark([2]float32{-1, 1}, p, Variances)
	if !near(got[0], 0.48) || !near(got[1], 0.54) {
		t.Errorf("DecodeLandmark = %v", got)
	}
}

func TestScaleBox(t *testing.T) {
	tests := []struct {
		name string
		norm [4]float32
		ok   bool
		want tracking.BBox
	}{
		{"inside", [4]float32{0.25, 0.25, 0.5, 0.5}, true, tracking.BBox{X1: 160, Y1: 120, X2: 320, Y2: 240}},
		{"clamped", [4]float32{-0.1, -0.1, 1.2, 0.5}, true, tracking.BBox{X1: 0, Y1: 0, X2: 640, Y2: 240}},
		{"outside", [4]float32{1.1, 0.1, 1.3, 0.2}, false, tracking.BBox{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ScaleBox(tt.norm, 640, 480)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("ScaleBox = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNMS(t *testing.T) {
	cands := []Candidate{
		{Box: tracking.BBox{X1: 0, Y1: 0, X2: 100, Y2: 100}, Score: 0.8},
		{Box: tracking.BBox{X1: 5, Y1: 5, X2: 105, Y2: 105}, Score: 0.95},
		{Box: tracking.BBox{X1: 300, Y1: 300, X2: 400, Y2: 400}, Score: 0.6},
		{Box: tracking.BBox{X1: 60, Y1: 60, X2: 160, Y2: 160}, Score: 0.7},
	}
	kept := NMS(cands, 0.5)
	if len(kept) != 3 {
		t.Fatalf("kept %d, want 3: %+v", len(kept), kept)
	}
	wantScores := []float32{0.95, 0.7, 0.6}
	for i, c := range kept {
		if c.Score != wantScores[i] {
			t.Errorf("kept[%d].Score = %v, want %v", i, c.Score, wantScores[i])
		}
	}
	if cands[0].Score != 0.8 {
		t.Error("NMS reordered its input")
	}
	if NMS(nil, 0.5) != nil {
		t.Error("NMS(nil) should be nil")
	}
}
