package pipeline

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/camden-git/attendancesys/realtime"
	"github.com/camden-git/attendancesys/recognition"
	"github.com/camden-git/attendancesys/tracking"
)

var (
	// ErrEndOfStream is returned by a Source that has no more frames.
	ErrEndOfStream = errors.New("end of stream")
	// ErrQuit is returned by a Renderer when the operator closed the display.
	ErrQuit = errors.New("display closed by operator")
)

// Detection is one face found in a frame. It lives for a single frame.
type Detection struct {
	BBox       tracking.BBox
	Confidence float32
	// Embedding is empty when the detector could not embed the face.
	Embedding []float32
	Landmarks []image.Point
}

// Detector finds faces and computes their embeddings. Zero detections is a
// valid result.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]Detection, error)
}

// Source yields frames from a camera or file.
type Source interface {
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

// SourceOpener acquires a Source when a feed starts.
type SourceOpener interface {
	Open(ctx context.Context) (Source, error)
}

// SourceOpenerFunc adapts a function to SourceOpener.
type SourceOpenerFunc func(ctx context.Context) (Source, error)

func (f SourceOpenerFunc) Open(ctx context.Context) (Source, error) { return f(ctx) }

// Overlay is the info panel content drawn above each frame.
type Overlay struct {
	Feed       string
	Registered int
	Present    int
	FPS        float64
}

// Renderer draws a processed frame. It returns the annotated frame encoded as
// JPEG for previews, and ErrQuit when the operator asked to stop.
type Renderer interface {
	Render(frame image.Image, result FrameResult, overlay Overlay) ([]byte, error)
	Close() error
}

// Publisher receives live events; *realtime.Hub implements it.
type Publisher interface {
	Broadcast(event realtime.Event)
}

// TrackView is the per-track outcome of one frame.
type TrackView struct {
	TrackID  int                `json:"track_id"`
	BBox     tracking.BBox      `json:"bbox"`
	Status   recognition.Status `json:"status"`
	PersonID string             `json:"person_id,omitempty"`
	Name     string             `json:"name,omitempty"`
	Score    float64            `json:"score,omitempty"`
	Label    string             `json:"label"`
}

// Recognized reports whether the track has an identity.
func (v TrackView) Recognized() bool {
	return v.Status == recognition.StatusKnown || v.Status == recognition.StatusNewlyBound
}

// FrameResult is everything one frame produced.
type FrameResult struct {
	Time       time.Time
	Detections []Detection
	Tracks     []TrackView
	Messages   []string
	Err        error
}
