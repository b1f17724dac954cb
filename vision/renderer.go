package vision

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/camden-git/attendancesys/pipeline"
	"github.com/camden-git/attendancesys/recognition"
)

var (
	colorKnown    = color.RGBA{0, 255, 0, 0}
	colorUnknown  = color.RGBA{255, 0, 0, 0}
	colorTracking = color.RGBA{255, 165, 0, 0}
	colorText     = color.RGBA{255, 255, 255, 0}
	colorPanel    = gocv.NewScalar(40, 40, 40, 0)
)

const (
	panelLineHeight = 22
	jpegQuality     = 80
)

// Renderer annotates frames with track boxes and an info panel, encodes
// them as JPEG and optionally shows them in a window.
type Renderer struct {
	window *gocv.Window
}

var _ pipeline.Renderer = (*Renderer)(nil)

// NewRenderer creates a renderer. A non-empty title opens a display window;
// pressing q or Esc in it stops the feed.
func NewRenderer(title string) *Renderer {
	r := &Renderer{}
	if title != "" {
		r.window = gocv.NewWindow(title)
	}
	return r
}

func trackColor(v pipeline.TrackView) color.RGBA {
	switch {
	case v.Recognized():
		return colorKnown
	case v.Status == recognition.StatusUnknown:
		return colorUnknown
	default:
		return colorTracking
	}
}

func (r *Renderer) Render(frame image.Image, res pipeline.FrameResult, ov pipeline.Overlay) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	origin := frame.Bounds().Min
	for _, d := range res.Detections {
		for _, p := range d.Landmarks {
			gocv.Circle(&mat, p.Sub(origin), 2, colorKnown, -1)
		}
	}
	for _, t := range res.Tracks {
		c := trackColor(t)
		box := t.BBox.Rect().Sub(origin)
		gocv.Rectangle(&mat, box, c, 2)

		size := gocv.GetTextSize(t.Label, gocv.FontHersheySimplex, 0.5, 1)
		top := box.Min.Y - size.Y - 8
		if top < 0 {
			top = box.Max.Y
		}
		gocv.Rectangle(&mat, image.Rect(box.Min.X, top, box.Min.X+size.X+8, top+size.Y+8), c, -1)
		gocv.PutText(&mat, t.Label, image.Pt(box.Min.X+4, top+size.Y+4), gocv.FontHersheySimplex, 0.5, color.RGBA{0, 0, 0, 0}, 1)
	}

	out := withPanel(mat, ov)
	defer out.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, out, []int{gocv.IMWriteJpegQuality, jpegQuality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	jpeg := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	if r.window != nil {
		r.window.IMShow(out)
		if key := r.window.WaitKey(1); key == 'q' || key == 27 {
			return jpeg, pipeline.ErrQuit
		}
	}
	return jpeg, nil
}

// withPanel stacks the info panel above the frame.
func withPanel(frame gocv.Mat, ov pipeline.Overlay) gocv.Mat {
	lines := []string{
		fmt.Sprintf("Feed: %s", ov.Feed),
		fmt.Sprintf("Registered: %d", ov.Registered),
		fmt.Sprintf("Present: %d", ov.Present),
		fmt.Sprintf("FPS: %.1f", ov.FPS),
	}
	panel := gocv.NewMatWithSize(panelLineHeight*len(lines)+8, frame.Cols(), frame.Type())
	defer panel.Close()
	panel.SetTo(colorPanel)
	for i, line := range lines {
		gocv.PutText(&panel, line, image.Pt(10, panelLineHeight*(i+1)), gocv.FontHersheySimplex, 0.6, colorText, 1)
	}

	out := gocv.NewMat()
	gocv.Vconcat(panel, frame, &out)
	return out
}

func (r *Renderer) Close() error {
	if r.window != nil {
		return r.window.Close()
	}
	return nil
}
