// Package anchors holds the RetinaFace prior-box math and non-maximum
// suppression. It has no OpenCV dependency so it can be tested on its own.
package anchors

import (
	"image"
	"math"
	"sort"

	"github.com/camden-git/attendancesys/tracking"
)

// Variances used by the RetinaFace training config.
var Variances = [2]float32{0.1, 0.2}

// Prior defines an anchor box (center_x, center_y, width, height), normalized to the input size.
type Prior struct {
	Cx, Cy, W, H float32
}

// RetinaFacePriors generates the priors for an input of imgW x imgH, in the
// order the ONNX export emits its predictions.
func RetinaFacePriors(imgW, imgH int) []Prior {
	minSizes := [][]int{{16, 32}, {64, 128}, {256, 512}}
	steps := []int{8, 16, 32}

	priors := []Prior{}
	for k, step := range steps {
		fmH := int(math.Ceil(float64(imgH) / float64(step)))
		fmW := int(math.Ceil(float64(imgW) / float64(step)))
		for i := 0; i < fmH; i++ {
			for j := 0; j < fmW; j++ {
				for _, minSize := range minSizes[k] {
					priors = append(priors, Prior{
						Cx: (float32(j) + 0.5) * float32(step) / float32(imgW),
						Cy: (float32(i) + 0.5) * float32(step) / float32(imgH),
						W:  float32(minSize) / float32(imgW),
						H:  float32(minSize) / float32(imgH),
					})
				}
			}
		}
	}
	return priors
}

// DecodeBox turns a [dx, dy, dw, dh] regression into normalized corner
// coordinates [x1, y1, x2, y2].
func DecodeBox(raw [4]float32, p Prior, variances [2]float32) [4]float32 {
	cx := p.Cx + raw[0]*variances[0]*p.W
	cy := p.Cy + raw[1]*variances[0]*p.H
	w := p.W * exp32(raw[2]*variances[1])
	h := p.H * exp32(raw[3]*variances[1])
	return [4]float32{cx - w/2, cy - h/2, cx + w/2, cy + h/2}
}

// DecodeLandmark turns a landmark offset into a normalized point.
func DecodeLandmark(raw [2]float32, p Prior, variances [2]float32) [2]float32 {
	return [2]float32{
		p.Cx + raw[0]*variances[0]*p.W,
		p.Cy + raw[1]*variances[0]*p.H,
	}
}

func exp32(x float32) float32 {
	return float32(math.Exp(float64(x)))
}

// Candidate is a scored face box in frame pixels.
type Candidate struct {
	Box       tracking.BBox
	Score     float32
	Landmarks []image.Point
}

// ScaleBox maps normalized corners onto a width x height frame, clamped to
// the frame. ok is false when nothing of the box remains.
func ScaleBox(norm [4]float32, width, height int) (tracking.BBox, bool) {
	w, h := float64(width), float64(height)
	b := tracking.BBox{
		X1: math.Max(0, float64(norm[0])*w),
		Y1: math.Max(0, float64(norm[1])*h),
		X2: math.Min(w, float64(norm[2])*w),
		Y2: math.Min(h, float64(norm[3])*h),
	}
	return b, !b.Empty()
}

// NMS keeps the highest scoring candidates, dropping any whose overlap with
// an already kept candidate exceeds iouThreshold. Equal scores keep input order.
func NMS(cands []Candidate, iouThreshold float64) []Candidate {
	if len(cands) == 0 {
		return nil
	}
	sorted := make([]Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	kept := make([]Candidate, 0, len(sorted))
	suppressed := make([]bool, len(sorted))
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if !suppressed[j] && tracking.IOU(sorted[i].Box, sorted[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
