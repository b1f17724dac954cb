package vision

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/camden-git/attendancesys/vision/anchors"
)

const retinaFaceInput = 640

// retinaFace runs a RetinaFace ONNX export with "bbox", "confidence" and
// "landmark" outputs.
type retinaFace struct {
	net           gocv.Net
	priors        []anchors.Prior
	mean          gocv.Scalar
	confThreshold float32
	iouThreshold  float64
}

func newRetinaFace(modelPath string, confThreshold float32) (*retinaFace, error) {
	net, err := loadNet("detection(retinaface)", modelPath, "")
	if err != nil {
		return nil, err
	}
	return &retinaFace{
		net:           net,
		priors:        anchors.RetinaFacePriors(retinaFaceInput, retinaFaceInput),
		mean:          gocv.NewScalar(104.0, 117.0, 123.0, 0),
		confThreshold: confThreshold,
		iouThreshold:  0.5,
	}, nil
}

func (r *retinaFace) name() string { return "retinaface" }

func (r *retinaFace) detect(img gocv.Mat) []anchors.Candidate {
	blob := gocv.BlobFromImage(img, 1.0, image.Pt(retinaFaceInput, retinaFaceInput), r.mean, false, false)
	defer blob.Close()

	r.net.SetInput(blob, "")
	outs := r.net.ForwardLayers([]string{"bbox", "confidence", "landmark"})
	defer func() {
		for _, m := range outs {
			m.Close()
		}
	}()
	if len(outs) != 3 {
		return nil
	}
	return r.parse(outs[0], outs[1], outs[2], img.Cols(), img.Rows())
}

// parse decodes the [1, N, 4], [1, N, 2] and [1, N, 10] outputs.
func (r *retinaFace) parse(boxes, scores, landmarks gocv.Mat, width, height int) []anchors.Candidate {
	sizes := boxes.Size()
	if len(sizes) < 2 || sizes[1] != len(r.priors) {
		return nil
	}

	var cands []anchors.Candidate
	for i, prior := range r.priors {
		score := scores.GetFloatAt(0, i*2+1)
		if score < r.confThreshold {
			continue
		}
		var raw [4]float32
		for j := 0; j < 4; j++ {
			raw[j] = boxes.GetFloatAt(0, i*4+j)
		}
		box, ok := anchors.ScaleBox(anchors.DecodeBox(raw, prior, anchors.Variances), width, height)
		if !ok {
			continue
		}

		pts := make([]image.Point, 0, 5)
		for j := 0; j < 5; j++ {
			lm := anchors.DecodeLandmark([2]float32{
				landmarks.GetFloatAt(0, i*10+j*2),
				landmarks.GetFloatAt(0, i*10+j*2+1),
			}, prior, anchors.Variances)
			pts = append(pts, image.Pt(int(lm[0]*float32(width)), int(lm[1]*float32(height))))
		}
		cands = append(cands, anchors.Candidate{Box: box, Score: score, Landmarks: pts})
	}
	return anchors.NMS(cands, r.iouThreshold)
}

func (r *retinaFace) Close() error {
	return r.net.Close()
}
