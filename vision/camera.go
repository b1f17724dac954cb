package vision

import (
	"context"
	"fmt"
	"image"
	"log"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"github.com/camden-git/attendancesys/pipeline"
)

const maxReadFailures = 30

// Camera opens a capture device by index ("0") or a file or stream URL.
type Camera struct {
	Source string
	Width  int
	Height int
}

var _ pipeline.SourceOpener = Camera{}

func (c Camera) Open(ctx context.Context) (pipeline.Source, error) {
	var device any = c.Source
	index, convErr := strconv.Atoi(c.Source)
	if convErr == nil {
		device = index
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open video source '%s': %w", c.Source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video source '%s' did not open", c.Source)
	}
	if c.Width > 0 && c.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}
	log.Printf("vision: opened video source '%s'", c.Source)

	return &captureSource{
		name: c.Source,
		vc:   vc,
		mat:  gocv.NewMat(),
		live: convErr == nil,
	}, nil
}

type captureSource struct {
	name string
	vc   *gocv.VideoCapture
	mat  gocv.Mat
	// live devices get a few retries before a failed read ends the stream
	live bool
}

func (s *captureSource) Read(ctx context.Context) (image.Image, error) {
	for failures := 0; ; failures++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.vc.Read(&s.mat) && !s.mat.Empty() {
			img, err := s.mat.ToImage()
			if err != nil {
				return nil, fmt.Errorf("failed to convert frame from '%s': %w", s.name, err)
			}
			return img, nil
		}
		if !s.live || failures >= maxReadFailures {
			return nil, pipeline.ErrEndOfStream
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (s *captureSource) Close() error {
	s.mat.Close()
	return s.vc.Close()
}
