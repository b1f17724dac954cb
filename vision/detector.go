package vision

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"

	"gocv.io/x/gocv"

	"github.com/camden-git/attendancesys/pipeline"
	"github.com/camden-git/attendancesys/vision/anchors"
)

type boxDetector interface {
	name() string
	detect(img gocv.Mat) []anchors.Candidate
	Close() error
}

// DetectorOptions selects the models. When DetectorConfig is set the model is
// treated as an SSD (Caffe prototxt or TensorFlow pbtxt pair), otherwise as a
// RetinaFace ONNX export.
type DetectorOptions struct {
	DetectorModel    string
	DetectorConfig   string
	RecognitionModel string
	RecognitionName  string
	Confidence       float32
	// MinFaceSize drops faces narrower or shorter than this many pixels.
	MinFaceSize int
}

// FaceDetector finds faces and embeds each one. OpenCV nets are not safe for
// concurrent use, so calls are serialized.
type FaceDetector struct {
	mu       sync.Mutex
	boxes    boxDetector
	embedder *Embedder
	minFace  int
}

var _ pipeline.Detector = (*FaceDetector)(nil)

func NewFaceDetector(opts DetectorOptions) (*FaceDetector, error) {
	if opts.Confidence <= 0 {
		opts.Confidence = 0.5
	}

	var boxes boxDetector
	var err error
	if opts.DetectorConfig != "" {
		boxes, err = newSSDFace(opts.DetectorModel, opts.DetectorConfig, opts.Confidence)
	} else {
		boxes, err = newRetinaFace(opts.DetectorModel, opts.Confidence)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load face detector: %w", err)
	}

	embedder, err := NewEmbedder(opts.RecognitionModel, opts.RecognitionName)
	if err != nil {
		boxes.Close()
		return nil, fmt.Errorf("failed to load face recognition model: %w", err)
	}

	log.Printf("vision: face detector ready (%s + %s)", boxes.name(), opts.RecognitionName)
	return &FaceDetector{boxes: boxes, embedder: embedder, minFace: opts.MinFaceSize}, nil
}

// Detect returns every face in frame with its embedding, in frame coordinates.
func (d *FaceDetector) Detect(ctx context.Context, frame image.Image) ([]pipeline.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	bounds := image.Rect(0, 0, mat.Cols(), mat.Rows())
	origin := frame.Bounds().Min
	cands := d.boxes.detect(mat)

	dets := make([]pipeline.Detection, 0, len(cands))
	for _, c := range cands {
		rect := c.Box.Clamp(bounds)
		if rect.Empty() || rect.Dx() < d.minFace || rect.Dy() < d.minFace {
			continue
		}

		region := mat.Region(rect)
		embedding := d.embedder.Embed(region)
		region.Close()

		box := c.Box
		box.X1 += float64(origin.X)
		box.X2 += float64(origin.X)
		box.Y1 += float64(origin.Y)
		box.Y2 += float64(origin.Y)
		landmarks := make([]image.Point, len(c.Landmarks))
		for i, p := range c.Landmarks {
			landmarks[i] = p.Add(origin)
		}

		dets = append(dets, pipeline.Detection{
			BBox:       box,
			Confidence: c.Score,
			Embedding:  embedding,
			Landmarks:  landmarks,
		})
	}
	return dets, nil
}

func (d *FaceDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.boxes.Close()
	if eerr := d.embedder.Close(); err == nil {
		err = eerr
	}
	return err
}
