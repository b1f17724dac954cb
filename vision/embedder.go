package vision

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/camden-git/attendancesys/recognition"
)

// Embedder extracts L2-normalized face embeddings with ArcFace or FaceNet.
type Embedder struct {
	net       gocv.Net
	modelName string
	inputSize image.Point
}

// NewEmbedder loads a recognition model. modelName selects the input size:
// "facenet" uses 160x160, anything else the 112x112 ArcFace layout.
func NewEmbedder(modelPath, modelName string) (*Embedder, error) {
	net, err := loadNet("recognition", modelPath, "")
	if err != nil {
		return nil, err
	}
	size := image.Pt(112, 112)
	if modelName == "facenet" {
		size = image.Pt(160, 160)
	}
	return &Embedder{net: net, modelName: modelName, inputSize: size}, nil
}

// Embed returns the embedding of a BGR face crop, or nil for an empty crop.
func (e *Embedder) Embed(face gocv.Mat) []float32 {
	if face.Empty() {
		return nil
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	if face.Channels() == 3 {
		gocv.CvtColor(face, &rgb, gocv.ColorBGRToRGB)
	} else {
		face.CopyTo(&rgb)
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(rgb, &resized, e.inputSize, 0, 0, gocv.InterpolationLinear)

	asFloat := gocv.NewMat()
	defer asFloat.Close()
	resized.ConvertTo(&asFloat, gocv.MatTypeCV32F)

	blob := gocv.BlobFromImage(asFloat, 1.0/255.0, e.inputSize, gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	output := e.net.Forward("")
	defer output.Close()
	if output.Empty() {
		return nil
	}

	flattened := output.Reshape(1, 1)
	defer flattened.Close()
	embedding := make([]float32, flattened.Cols())
	for i := range embedding {
		embedding[i] = flattened.GetFloatAt(0, i)
	}
	return recognition.Normalize(embedding)
}

func (e *Embedder) Close() error {
	return e.net.Close()
}
